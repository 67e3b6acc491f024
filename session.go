package authclient

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SessionMachine owns the session state and its transitions. All
// transitions apply their results to a single Store in the order the
// responses arrive. A result is dropped when the token it was requested
// with is no longer the session token (logout or revocation happened in
// between).
type SessionMachine struct {
	backend  SessionBackend
	creds    CredentialStore
	store    *Store
	logger   Logger
	activity ActivitySink
	now      func() time.Time
	region   string

	bgMu      sync.Mutex
	bg        sync.WaitGroup
	lastClear chan struct{}
}

// NewSessionMachine returns a machine in StatusUnknown.
func NewSessionMachine(backend SessionBackend, creds CredentialStore) *SessionMachine {
	return &SessionMachine{
		backend:  backend,
		creds:    creds,
		store:    NewStore(),
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
		region:   DefaultPhoneRegion,
	}
}

// WithLogger overrides the logger used by the machine.
func (m *SessionMachine) WithLogger(logger Logger) *SessionMachine {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithActivitySink sets the sink used to emit session events.
func (m *SessionMachine) WithActivitySink(sink ActivitySink) *SessionMachine {
	m.activity = normalizeActivitySink(sink)
	return m
}

// WithClock overrides the time source for activity events.
func (m *SessionMachine) WithClock(now func() time.Time) *SessionMachine {
	if now != nil {
		m.now = now
	}
	return m
}

// WithStore shares an existing state container. Call it before any
// transition runs.
func (m *SessionMachine) WithStore(store *Store) *SessionMachine {
	if store != nil {
		m.store = store
	}
	return m
}

// WithPhoneRegion sets the region used to normalize profile phone numbers.
func (m *SessionMachine) WithPhoneRegion(region string) *SessionMachine {
	if region = strings.TrimSpace(region); region != "" {
		m.region = region
	}
	return m
}

// Store returns the state container.
func (m *SessionMachine) Store() *Store {
	return m.store
}

// Snapshot returns the current session state.
func (m *SessionMachine) Snapshot() Snapshot {
	return m.store.Snapshot()
}

// Initialize reads the stored token and, if there is one, fetches the
// profile. It only runs from StatusUnknown; later calls return nil.
//
// Only an invalid credential removes the stored token. Any other failure
// keeps it so a later FetchProfile can recover the session.
func (m *SessionMachine) Initialize(ctx context.Context) error {
	started := false
	m.store.update(func(st *sessionState) {
		if st.status != StatusUnknown {
			return
		}
		st.status = StatusInitializing
		st.inflight++
		started = true
	})
	if !started {
		return nil
	}

	token := m.readToken(ctx)
	if token == "" {
		m.settle(func(st *sessionState) {
			m.moveTo(st, StatusUnauthenticated)
			st.err = ""
		})
		m.logger.Debug("initialize: no stored token")
		return nil
	}

	info, _ := InspectToken(token)
	m.store.update(func(st *sessionState) {
		st.token = token
		st.tokenInfo = info
	})

	user, err := m.fetchUser(ctx)
	if err != nil {
		revoked := IsInvalidCredential(err)
		current := false
		m.settle(func(st *sessionState) {
			if st.token != token {
				return
			}
			current = true
			if revoked {
				clearIdentity(st)
			}
			st.isAuthenticated = false
			st.err = ErrorMessage(err)
			m.moveTo(st, StatusUnauthenticated)
		})
		if revoked && current {
			m.removeToken(ctx, token)
		}
		m.logger.Warn("initialize: profile fetch failed: %v", err)
		return err
	}

	m.settle(func(st *sessionState) {
		if st.token != token {
			return
		}
		st.user = user
		st.isAuthenticated = true
		st.err = ""
		m.moveTo(st, StatusAuthenticated)
	})
	m.record(ctx, ActivityEventProfileRefreshed, user.ID, StatusInitializing, StatusAuthenticated, nil)
	return nil
}

// Login exchanges credentials for a token. The returned user may be
// partial; follow with FetchProfile (or use SignIn) for the full record.
func (m *SessionMachine) Login(ctx context.Context, creds Credentials) error {
	creds.Identifier = strings.TrimSpace(creds.Identifier)
	if err := creds.Validate(); err != nil {
		m.fail(err)
		return err
	}

	from := m.Snapshot().Status
	m.begin()

	resp, err := m.backend.Login(ctx, creds)
	if err == nil {
		err = validateLogin(resp)
	}

	var user *User
	if err == nil {
		user, err = resp.User.Decode()
	}

	if err != nil {
		m.settle(func(st *sessionState) {
			st.err = ErrorMessage(err)
			if !st.isAuthenticated && st.status == StatusUnknown {
				m.moveTo(st, StatusUnauthenticated)
			}
		})
		m.logger.Warn("login failed for %s: %v", creds.Identifier, err)
		m.record(ctx, ActivityEventLoginFailure, "", from, from, map[string]any{
			"identifier": creds.Identifier,
			"error":      ErrorMessage(err),
		})
		return err
	}

	if err := m.awaitClear(ctx); err != nil {
		m.logger.Warn("login: pending credential clear did not finish: %v", err)
	}
	if err := m.creds.Set(ctx, KeyAuthToken, resp.Token); err != nil {
		m.logger.Error("login: failed to persist token: %v", err)
	}

	info, _ := InspectToken(resp.Token)
	m.settle(func(st *sessionState) {
		st.token = resp.Token
		st.tokenInfo = info
		st.user = user
		st.isAuthenticated = true
		st.err = ""
		m.moveTo(st, StatusAuthenticated)
	})

	m.logger.Info("login succeeded for %s", creds.Identifier)
	m.record(ctx, ActivityEventLoginSuccess, user.ID, from, StatusAuthenticated, map[string]any{
		"identifier": creds.Identifier,
	})
	return nil
}

// SignIn runs Login followed by FetchProfile. A failed profile fetch does
// not undo the login: it is logged, left in the snapshot error and the
// session stays authenticated with the partial user.
func (m *SessionMachine) SignIn(ctx context.Context, creds Credentials) error {
	if err := m.Login(ctx, creds); err != nil {
		return err
	}
	if err := m.FetchProfile(ctx); err != nil {
		m.logger.Warn("sign in: profile fetch after login failed: %v", err)
		if !m.Snapshot().IsAuthenticated {
			return err
		}
	}
	return nil
}

// FetchProfile replaces the user with the server's record. Payloads
// without an identifier are rejected and the current user is kept.
func (m *SessionMachine) FetchProfile(ctx context.Context) error {
	snap := m.Snapshot()
	if !snap.HasToken() {
		return ErrNotAuthenticated
	}
	token := snap.Token
	m.begin()

	user, err := m.fetchUser(ctx)
	if err != nil {
		return m.rejectProfile(ctx, token, snap, err, ActivityEventProfileRefreshed)
	}

	m.settle(func(st *sessionState) {
		if st.token != token {
			return
		}
		st.user = user
		st.isAuthenticated = true
		st.err = ""
		m.moveTo(st, StatusAuthenticated)
	})
	m.record(ctx, ActivityEventProfileRefreshed, user.ID, snap.Status, StatusAuthenticated, nil)
	return nil
}

// UpdateProfile sends a partial update and shallow merges the response
// into the user that is current when the response arrives.
func (m *SessionMachine) UpdateProfile(ctx context.Context, update ProfileUpdate) error {
	snap := m.Snapshot()
	if !snap.HasToken() {
		return ErrNotAuthenticated
	}

	if err := update.Normalize(m.region); err != nil {
		m.fail(err)
		return err
	}
	if err := update.Validate(); err != nil {
		m.fail(err)
		return err
	}

	token := snap.Token
	m.begin()

	payload, err := m.backend.UpdateProfile(ctx, update)
	if err == nil {
		_, err = payload.User()
	}
	if err != nil {
		return m.rejectProfile(ctx, token, snap, err, ActivityEventProfileUpdated)
	}

	var mergeErr error
	var merged *User
	m.settle(func(st *sessionState) {
		if st.token != token {
			return
		}
		merged, mergeErr = MergeUser(st.user, payload)
		if mergeErr != nil {
			st.err = ErrorMessage(mergeErr)
			return
		}
		st.user = merged
		st.isAuthenticated = true
		st.err = ""
		m.moveTo(st, StatusAuthenticated)
	})
	if mergeErr != nil {
		m.logger.Error("update profile: merge failed: %v", mergeErr)
		return mergeErr
	}

	userID := ""
	if merged != nil {
		userID = merged.ID
	}
	m.record(ctx, ActivityEventProfileUpdated, userID, snap.Status, StatusAuthenticated, map[string]any{
		"fields": updatedFields(update),
	})
	return nil
}

// Logout clears the in-memory session immediately and clears the
// credential store in the background. Use Wait to block until the
// background work is done.
func (m *SessionMachine) Logout(ctx context.Context) {
	var from Status
	var userID string
	m.store.update(func(st *sessionState) {
		from = st.status
		if st.user != nil {
			userID = st.user.ID
		}
		clearIdentity(st)
		st.err = ""
		m.moveTo(st, StatusUnauthenticated)
	})

	m.spawnClear(ctx)
	m.logger.Info("logout")
	m.record(ctx, ActivityEventLogout, userID, from, StatusUnauthenticated, nil)
}

// CredentialRevoked drops the in-memory session after the HTTP client
// classified a response to a request sent with token as an invalid
// credential. It does nothing once the session holds another token. The
// client has already removed the stored token.
func (m *SessionMachine) CredentialRevoked(ctx context.Context, token string, cause error) {
	token = strings.TrimSpace(token)
	var from Status
	var userID string
	applied := false
	m.store.update(func(st *sessionState) {
		if token == "" || st.token != token {
			return
		}
		from = st.status
		if st.user != nil {
			userID = st.user.ID
		}
		clearIdentity(st)
		st.err = ErrorMessage(cause)
		m.moveTo(st, StatusUnauthenticated)
		applied = true
	})
	if !applied {
		return
	}

	m.logger.Warn("credential revoked: %v", cause)
	m.record(ctx, ActivityEventCredentialRevoked, userID, from, StatusUnauthenticated, map[string]any{
		"error": ErrorMessage(cause),
	})
}

// Wait blocks until background credential clearing has finished.
func (m *SessionMachine) Wait() {
	m.bg.Wait()
}

func (m *SessionMachine) fetchUser(ctx context.Context) (*User, error) {
	payload, err := m.backend.Me(ctx)
	if err != nil {
		return nil, err
	}
	return payload.User()
}

func (m *SessionMachine) rejectProfile(ctx context.Context, token string, snap Snapshot, err error, event ActivityEventType) error {
	revoked := IsInvalidCredential(err)
	current := false
	m.settle(func(st *sessionState) {
		if st.token != token {
			return
		}
		current = true
		if revoked {
			clearIdentity(st)
			m.moveTo(st, StatusUnauthenticated)
		}
		st.err = ErrorMessage(err)
	})
	if revoked && current {
		m.removeToken(ctx, token)
	}

	userID := ""
	if snap.User != nil {
		userID = snap.User.ID
	}

	switch {
	case IsMalformedPayload(err):
		m.logger.Warn("%s rejected: %v", event, err)
		m.record(ctx, ActivityEventProfileRejected, userID, snap.Status, snap.Status, map[string]any{
			"source": string(event),
			"error":  err.Error(),
		})
	case revoked:
		m.logger.Warn("%s: credential is no longer valid: %v", event, err)
	default:
		m.logger.Warn("%s failed: %v", event, err)
	}
	return err
}

func (m *SessionMachine) readToken(ctx context.Context) string {
	token, err := m.creds.Get(ctx, KeyAuthToken)
	if err != nil {
		if !IsCredentialNotFound(err) {
			m.logger.Warn("credential store read failed, treating token as absent: %v", err)
		}
		return ""
	}
	return strings.TrimSpace(token)
}

// removeToken removes the stored token only while it is still token.
func (m *SessionMachine) removeToken(ctx context.Context, token string) {
	if m.readToken(ctx) != token {
		return
	}
	if err := m.creds.Remove(ctx, KeyAuthToken); err != nil && !IsCredentialNotFound(err) {
		m.logger.Warn("failed to remove revoked token: %v", err)
	}
}

func (m *SessionMachine) spawnClear(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	done := make(chan struct{})

	m.bgMu.Lock()
	m.lastClear = done
	m.bg.Add(1)
	m.bgMu.Unlock()

	go func() {
		defer m.bg.Done()
		defer close(done)
		if err := m.creds.Clear(ctx); err != nil {
			m.logger.Error("logout: failed to clear credential store: %v", err)
		}
	}()
}

// awaitClear keeps a fresh login from being wiped by a slow logout clear.
func (m *SessionMachine) awaitClear(ctx context.Context) error {
	m.bgMu.Lock()
	done := m.lastClear
	m.bgMu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SessionMachine) begin() {
	m.store.update(func(st *sessionState) {
		st.inflight++
	})
}

// settle applies fn and ends one in-flight transition.
func (m *SessionMachine) settle(fn func(st *sessionState)) {
	m.store.update(func(st *sessionState) {
		if st.inflight > 0 {
			st.inflight--
		}
		fn(st)
	})
}

func (m *SessionMachine) fail(err error) {
	m.store.update(func(st *sessionState) {
		st.err = ErrorMessage(err)
	})
}

func (m *SessionMachine) moveTo(st *sessionState, to Status) {
	if !CanTransition(st.status, to) {
		m.logger.Error("%v", transitionError(st.status, to))
		return
	}
	st.status = to
}

func (m *SessionMachine) record(ctx context.Context, eventType ActivityEventType, userID string, from, to Status, meta map[string]any) {
	recordActivity(ctx, m.activity, m.logger, m.now, ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		FromStatus: from,
		ToStatus:   to,
		Metadata:   meta,
	})
}

func clearIdentity(st *sessionState) {
	st.user = nil
	st.token = ""
	st.tokenInfo = nil
	st.isAuthenticated = false
}

func validateLogin(resp *LoginResponse) error {
	missing := ""
	switch {
	case resp == nil || resp.Token == "":
		missing = "token"
	case resp.User == nil:
		missing = "user"
	default:
		return nil
	}
	return goerrors.New("login response is missing the "+missing, goerrors.CategoryBadInput).
		WithTextCode(TextCodeMalformedPayload).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"resource": "login"})
}

func updatedFields(u ProfileUpdate) []string {
	var fields []string
	if u.Name != "" {
		fields = append(fields, "name")
	}
	if u.LastName != "" {
		fields = append(fields, "last_name")
	}
	if u.Email != "" {
		fields = append(fields, "email")
	}
	if u.Phone != "" {
		fields = append(fields, "phone")
	}
	if u.ProfileImage != "" {
		fields = append(fields, "profile_image")
	}
	return fields
}
