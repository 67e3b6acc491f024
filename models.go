package authclient

import (
	"bytes"
	"encoding/json"
	"strings"
)

// User is the identity record returned by the backend.
type User struct {
	ID              string           `json:"id"`
	Name            string           `json:"name,omitempty"`
	LastName        string           `json:"last_name,omitempty"`
	Email           string           `json:"email,omitempty"`
	Phone           string           `json:"phone,omitempty"`
	ProfileImage    string           `json:"profile_image,omitempty"`
	Role            Role             `json:"role,omitempty"`
	CurrentRole     Role             `json:"current_role,omitempty"`
	AvailableRoles  []Role           `json:"available_roles,omitempty"`
	RoleAssignments []RoleAssignment `json:"role_assignments,omitempty"`
	ChurchID        string           `json:"church_id,omitempty"`
	Church          *Church          `json:"church,omitempty"`
}

// UnmarshalJSON accepts both "id" and the document style "_id".
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		DocumentID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" {
		u.ID = aux.DocumentID
	}
	return nil
}

// HomeChurchID returns the user's own church reference, if any.
func (u *User) HomeChurchID() (string, bool) {
	if u == nil {
		return "", false
	}
	if id := strings.TrimSpace(u.ChurchID); id != "" {
		return id, true
	}
	if u.Church != nil {
		if id := strings.TrimSpace(u.Church.ID); id != "" {
			return id, true
		}
	}
	return "", false
}

// Clone returns a deep copy so snapshots never share slices with state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.AvailableRoles != nil {
		c.AvailableRoles = append([]Role(nil), u.AvailableRoles...)
	}
	if u.RoleAssignments != nil {
		c.RoleAssignments = append([]RoleAssignment(nil), u.RoleAssignments...)
	}
	if u.Church != nil {
		church := *u.Church
		c.Church = &church
	}
	return &c
}

// RoleAssignment binds a role to an optional organizational scope.
type RoleAssignment struct {
	Role      Role   `json:"role"`
	ChurchID  string `json:"church_id,omitempty"`
	NetworkID string `json:"network_id,omitempty"`
}

// Church is an organizational unit a user can be scoped to.
type Church struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Church) UnmarshalJSON(data []byte) error {
	type plain Church
	var aux struct {
		plain
		DocumentID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Church(aux.plain)
	if c.ID == "" {
		c.ID = aux.DocumentID
	}
	return nil
}

// LoginResponse is the body of POST /auth/login.
type LoginResponse struct {
	Token string
	User  Payload
}

// Payload is a raw user object. Keeping the raw fields lets callers tell
// an omitted field from an empty one.
type Payload map[string]json.RawMessage

const (
	fieldID             = "id"
	fieldDocumentID     = "_id"
	fieldAvailableRoles = "available_roles"
	fieldRoleAssignment = "role_assignments"
)

// DecodePayload reads a user object, unwrapping a {"user": {...}} or
// {"data": {...}} envelope when present.
func DecodePayload(data []byte) (Payload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, NewMalformedPayloadError(nil, "user")
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, NewMalformedPayloadError(err, "user")
	}

	for _, envelope := range []string{"user", "data"} {
		raw, ok := p[envelope]
		if !ok || !isJSONObject(raw) {
			continue
		}
		var inner Payload
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, NewMalformedPayloadError(err, "user")
		}
		return inner, nil
	}

	return p, nil
}

// DecodeLoginResponse reads {token, user}.
func DecodeLoginResponse(data []byte) (*LoginResponse, error) {
	var body struct {
		Token string          `json:"token"`
		User  json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, NewMalformedPayloadError(err, "login")
	}

	resp := &LoginResponse{Token: strings.TrimSpace(body.Token)}
	if isJSONObject(body.User) {
		var p Payload
		if err := json.Unmarshal(body.User, &p); err != nil {
			return nil, NewMalformedPayloadError(err, "login")
		}
		resp.User = p
	}
	return resp, nil
}

// Has reports whether the key was sent with a non-null value.
func (p Payload) Has(key string) bool {
	raw, ok := p[key]
	if !ok {
		return false
	}
	return !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Decode converts the payload into a User without validating it.
func (p Payload) Decode() (*User, error) {
	if p == nil {
		return nil, NewMalformedPayloadError(nil, "user")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, NewMalformedPayloadError(err, "user")
	}
	user := &User{}
	if err := json.Unmarshal(data, user); err != nil {
		return nil, NewMalformedPayloadError(err, "user")
	}
	return user, nil
}

// User decodes and rejects payloads without an identifier.
func (p Payload) User() (*User, error) {
	user, err := p.Decode()
	if err != nil {
		return nil, err
	}
	if err := ValidateUserPayload(user); err != nil {
		return nil, err
	}
	return user, nil
}

// MergeUser shallow merges patch over prev. available_roles and
// role_assignments are kept from prev when patch omits them.
func MergeUser(prev *User, patch Payload) (*User, error) {
	base := Payload{}
	if prev != nil {
		data, err := json.Marshal(prev)
		if err != nil {
			return nil, NewMalformedPayloadError(err, "user")
		}
		if err := json.Unmarshal(data, &base); err != nil {
			return nil, NewMalformedPayloadError(err, "user")
		}
	}

	for k, v := range patch {
		if (k == fieldAvailableRoles || k == fieldRoleAssignment) && !patch.Has(k) {
			continue
		}
		base[k] = v
	}

	if patch.Has(fieldDocumentID) && !patch.Has(fieldID) {
		delete(base, fieldID)
	}

	merged, err := base.Decode()
	if err != nil {
		return nil, err
	}

	if prev != nil {
		if !patch.Has(fieldAvailableRoles) {
			merged.AvailableRoles = prev.Clone().AvailableRoles
		}
		if !patch.Has(fieldRoleAssignment) {
			merged.RoleAssignments = prev.Clone().RoleAssignments
		}
	}

	return merged, nil
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
