// Package authclient is the client side session and authorization core of
// the church management app: it acquires, persists and validates the
// bearer token, tracks the signed in user, resolves the active role and
// keeps the selected church consistent with the session.
//
// Session lifecycle:
//   - SessionMachine owns { user, token, isAuthenticated, isLoading, error }
//     inside a Store. Initialize, Login, FetchProfile, UpdateProfile and
//     Logout are the only transitions. Results are applied in arrival order
//     and dropped when the session token changed while they were in flight.
//   - Payloads without a user identifier never replace the current user.
//     UpdateProfile keeps available_roles and role_assignments when the
//     server does not echo them.
//
// Failure classification:
//   - Classifier maps 401 and 429 responses to a FailureKind. Only an
//     affirmatively recognized dead credential revokes the stored token;
//     ambiguous 401s are privilege failures and keep the session.
//   - The keyword lists live in ClassifierRules and can be replaced from
//     configuration.
//
// Roles and churches:
//   - RoleService changes the active role server side and re-fetches the
//     profile; permissions are always projected from the refreshed user.
//   - ChurchSelector resolves the selected church (persisted id, then home
//     church, then none) and resets when the session ends.
//
// Activity sinks:
//   - ActivitySink receives login, logout, revocation, profile, role and
//     church events. Sinks run best-effort (errors are logged).
package authclient
