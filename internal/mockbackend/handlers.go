package mockbackend

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/middleware/csrf"
	"github.com/goliatone/go-auth-client/middleware/jwtware"
)

const userIDKey = "user_id"

func (s *Server) routes() {
	s.app.Use(s.inject)

	s.app.Post("/auth/login", s.login)
	s.app.Get("/auth/me", s.authenticate, s.me)
	s.app.Put("/auth/updatepassword", s.authenticate, s.updatePassword)
	s.app.Put("/users/profile", s.authenticate, s.updateProfile)
	s.app.Get("/roles/available-roles", s.authenticate, s.availableRoles)
	s.app.Post("/roles/change-role", s.authenticate, s.changeRole)
	s.app.Get("/churches", s.authenticate, s.listChurches)
}

func (s *Server) inject(c *fiber.Ctx) error {
	f, ok := s.nextFailure(c.Method() + " " + c.Path())
	if !ok {
		return c.Next()
	}

	if f.Status >= fiber.StatusBadRequest {
		if f.Body != nil {
			return c.Status(f.Status).JSON(f.Body)
		}
		body := fiber.Map{"message": f.Message}
		if f.Code != "" {
			body["code"] = f.Code
		}
		return c.Status(f.Status).JSON(body)
	}

	if f.Body != nil {
		status := f.Status
		if status == 0 {
			status = fiber.StatusOK
		}
		return c.Status(status).JSON(f.Body)
	}
	return c.Next()
}

// IssueToken signs an HS256 token for userID.
func (s *Server) IssueToken(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    "mockbackend",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// Revoke makes the server reject token as invalid from now on.
func (s *Server) Revoke(token string) error {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[claims.ID] = struct{}{}
	return nil
}

func unauthorized(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"code":    code,
		"message": message,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": message})
}

func (s *Server) authenticate(c *fiber.Ctx) error {
	raw, err := jwtware.ExtractToken(c.Get(fiber.HeaderAuthorization), "Bearer")
	if err != nil {
		return unauthorized(c, "NO_TOKEN", "Not authenticated")
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return unauthorized(c, "TOKEN_EXPIRED", "Token expired")
		}
		return unauthorized(c, "INVALID_TOKEN", "Invalid token")
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.ID]
	_, known := s.byID[claims.Subject]
	s.mu.Unlock()
	if revoked || !known {
		return unauthorized(c, "INVALID_TOKEN", "Invalid token")
	}

	if s.csrf != nil && isUnsafe(c.Method()) {
		if err := s.csrf.Verify(c.Get(csrf.DefaultHeaderName), claims.Subject); err != nil {
			if errors.Is(err, csrf.ErrTokenExpired) {
				return unauthorized(c, "CSRF_TOKEN_EXPIRED", "Session expired, please sign in again")
			}
			return unauthorized(c, "CSRF_INVALID", "Invalid CSRF token")
		}
	}

	c.Locals(userIDKey, claims.Subject)
	return c.Next()
}

func isUnsafe(method string) bool {
	switch strings.ToUpper(method) {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions, fiber.MethodTrace:
		return false
	}
	return true
}

func (s *Server) current(c *fiber.Ctx) (*account, bool) {
	id, _ := c.Locals(userIDKey).(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byID[id]
	return acc, ok
}

func (s *Server) login(c *fiber.Ctx) error {
	var body authclient.Credentials
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}

	err := validation.ValidateStruct(&body,
		validation.Field(&body.Identifier, validation.Required),
		validation.Field(&body.Secret, validation.Required),
	)
	if err != nil {
		return badRequest(c, err.Error())
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(strings.TrimSpace(body.Identifier))]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(body.Secret)) != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid credentials"})
	}

	s.mu.Lock()
	user := *acc.user.Clone()
	s.mu.Unlock()

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return err
	}

	if s.csrf != nil {
		csrfToken, err := s.csrf.Issue(user.ID)
		if err != nil {
			return err
		}
		c.Set(csrf.DefaultHeaderName, csrfToken)
	}

	// login only returns the identity basics
	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

func (s *Server) me(c *fiber.Ctx) error {
	acc, ok := s.current(c)
	if !ok {
		return unauthorized(c, "INVALID_TOKEN", "Invalid token")
	}
	s.mu.Lock()
	user := *acc.user.Clone()
	s.mu.Unlock()
	return c.JSON(fiber.Map{"user": user})
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	acc, ok := s.current(c)
	if !ok {
		return unauthorized(c, "INVALID_TOKEN", "Invalid token")
	}

	var body authclient.ProfileUpdate
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}
	err := validation.ValidateStruct(&body,
		validation.Field(&body.Email, is.Email),
	)
	if err != nil {
		return badRequest(c, err.Error())
	}

	s.mu.Lock()
	u := &acc.user
	if body.Name != "" {
		u.Name = body.Name
	}
	if body.LastName != "" {
		u.LastName = body.LastName
	}
	if body.Email != "" {
		u.Email = body.Email
	}
	if body.Phone != "" {
		u.Phone = body.Phone
	}
	if body.ProfileImage != "" {
		u.ProfileImage = body.ProfileImage
	}
	view := *u.Clone()
	s.mu.Unlock()

	// the profile endpoint does not echo role data
	view.AvailableRoles = nil
	view.RoleAssignments = nil
	return c.JSON(fiber.Map{"user": view})
}

func (s *Server) updatePassword(c *fiber.Ctx) error {
	acc, ok := s.current(c)
	if !ok {
		return unauthorized(c, "INVALID_TOKEN", "Invalid token")
	}

	var body authclient.PasswordChange
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}
	err := validation.ValidateStruct(&body,
		validation.Field(&body.CurrentSecret, validation.Required),
		validation.Field(&body.NewSecret, validation.Required, validation.Length(6, 128)),
	)
	if err != nil {
		return badRequest(c, err.Error())
	}

	s.mu.Lock()
	hash := acc.hash
	s.mu.Unlock()
	if bcrypt.CompareHashAndPassword(hash, []byte(body.CurrentSecret)) != nil {
		return badRequest(c, "Current password is incorrect")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(body.NewSecret), s.hashCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	acc.hash = newHash
	s.mu.Unlock()
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) availableRoles(c *fiber.Ctx) error {
	acc, ok := s.current(c)
	if !ok {
		return unauthorized(c, "INVALID_TOKEN", "Invalid token")
	}
	s.mu.Lock()
	roles := authclient.AssignableRoles(&acc.user)
	s.mu.Unlock()
	return c.JSON(fiber.Map{"available_roles": roles})
}

func (s *Server) changeRole(c *fiber.Ctx) error {
	acc, ok := s.current(c)
	if !ok {
		return unauthorized(c, "INVALID_TOKEN", "Invalid token")
	}

	var body struct {
		Role string `json:"role"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "Invalid request body")
	}
	role := authclient.NormalizeRole(body.Role)
	if role == "" {
		return badRequest(c, "role is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !authclient.HasRole(&acc.user, role) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"message": "Role not allowed for this user",
		})
	}
	acc.user.CurrentRole = role
	return c.JSON(fiber.Map{"success": true, "current_role": role})
}

func (s *Server) listChurches(c *fiber.Ctx) error {
	s.mu.Lock()
	churches := append([]authclient.Church{}, s.churches...)
	s.mu.Unlock()
	return c.JSON(churches)
}
