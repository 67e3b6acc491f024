package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	authclient "github.com/goliatone/go-auth-client"
)

// API paths consumed by the session core.
const (
	PathLogin          = "/auth/login"
	PathMe             = "/auth/me"
	PathUpdatePassword = "/auth/updatepassword"
	PathProfile        = "/users/profile"
	PathAvailableRoles = "/roles/available-roles"
	PathChangeRole     = "/roles/change-role"
	PathChurches       = "/churches"
)

// Login calls POST /auth/login. A failed login never revokes a stored token.
func (c *Client) Login(ctx context.Context, creds authclient.Credentials) (*authclient.LoginResponse, error) {
	body, err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     PathLogin,
		body:     creds,
		noRevoke: true,
	})
	if err != nil {
		return nil, err
	}
	return authclient.DecodeLoginResponse(body)
}

// Me calls GET /auth/me.
func (c *Client) Me(ctx context.Context) (authclient.Payload, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: PathMe})
	if err != nil {
		return nil, err
	}
	return authclient.DecodePayload(body)
}

// UpdateProfile calls PUT /users/profile with the non empty fields.
func (c *Client) UpdateProfile(ctx context.Context, update authclient.ProfileUpdate) (authclient.Payload, error) {
	body, err := c.do(ctx, request{method: http.MethodPut, path: PathProfile, body: update})
	if err != nil {
		return nil, err
	}
	return authclient.DecodePayload(body)
}

// UpdatePassword calls PUT /auth/updatepassword.
func (c *Client) UpdatePassword(ctx context.Context, change authclient.PasswordChange) error {
	_, err := c.do(ctx, request{method: http.MethodPut, path: PathUpdatePassword, body: change})
	return err
}

// AvailableRoles calls GET /roles/available-roles.
func (c *Client) AvailableRoles(ctx context.Context) ([]authclient.Role, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: PathAvailableRoles})
	if err != nil {
		return nil, err
	}

	var out struct {
		AvailableRoles []authclient.Role `json:"available_roles"`
		Data           *struct {
			AvailableRoles []authclient.Role `json:"available_roles"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		var bare []authclient.Role
		if errBare := json.Unmarshal(body, &bare); errBare != nil {
			return nil, authclient.NewMalformedPayloadError(err, "available_roles")
		}
		return authclient.NormalizeRoles(bare), nil
	}
	if out.AvailableRoles == nil && out.Data != nil {
		out.AvailableRoles = out.Data.AvailableRoles
	}
	return authclient.NormalizeRoles(out.AvailableRoles), nil
}

// ChangeRole calls POST /roles/change-role.
func (c *Client) ChangeRole(ctx context.Context, role authclient.Role) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   PathChangeRole,
		body:   map[string]string{"role": role.String()},
	})
	return err
}

// Churches calls GET /churches. Accepts a bare array or an object with a
// "churches" or "data" array.
func (c *Client) Churches(ctx context.Context) ([]authclient.Church, error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: PathChurches})
	if err != nil {
		return nil, err
	}
	return DecodeChurches(body)
}

// DecodeChurches reads a church list response.
func DecodeChurches(body []byte) ([]authclient.Church, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, authclient.NewMalformedPayloadError(nil, "churches")
	}

	if body[0] == '[' {
		var list []authclient.Church
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, authclient.NewMalformedPayloadError(err, "churches")
		}
		return list, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, authclient.NewMalformedPayloadError(err, "churches")
	}
	for _, key := range []string{"churches", "data"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var list []authclient.Church
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, authclient.NewMalformedPayloadError(err, "churches")
		}
		return list, nil
	}
	return nil, authclient.NewMalformedPayloadError(nil, "churches")
}
