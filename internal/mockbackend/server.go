// Package mockbackend is an in-process implementation of the church API
// endpoints used by the session core. It exists for tests and for the
// authctl mock-server command; failures can be injected per route.
package mockbackend

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/hashid/pkg/hashid"
	"golang.org/x/crypto/bcrypt"

	authclient "github.com/goliatone/go-auth-client"
	"github.com/goliatone/go-auth-client/middleware/csrf"
)

// Route keys used with FailNext and Calls.
const (
	RouteLogin          = "POST /auth/login"
	RouteMe             = "GET /auth/me"
	RouteProfile        = "PUT /users/profile"
	RouteUpdatePassword = "PUT /auth/updatepassword"
	RouteAvailableRoles = "GET /roles/available-roles"
	RouteChangeRole     = "POST /roles/change-role"
	RouteChurches       = "GET /churches"
)

// ErrConnectionDropped is returned by Transport for a Failure with Status 0.
var ErrConnectionDropped = errors.New("mockbackend: connection dropped")

// Failure is a canned response for the next call of a route. Status 0
// drops the connection (only observable through Transport). A Status
// below 400 with a Body replaces a successful response verbatim.
type Failure struct {
	Status  int
	Code    string
	Message string
	Body    any
}

type account struct {
	identifier string
	hash       []byte
	user       authclient.User
}

// Server holds accounts, churches and injected failures.
type Server struct {
	app        *fiber.App
	signingKey []byte
	tokenTTL   time.Duration
	csrf       *csrf.Signer
	logger     authclient.Logger
	now        func() time.Time
	hashCost   int

	mu       sync.Mutex
	accounts map[string]*account
	byID     map[string]*account
	churches []authclient.Church
	failures map[string][]Failure
	calls    map[string]int
	revoked  map[string]struct{}
}

type Option func(*Server)

// WithSigningKey sets the HS256 key for issued tokens.
func WithSigningKey(key []byte) Option {
	return func(s *Server) {
		if len(key) > 0 {
			s.signingKey = key
		}
	}
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Server) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// WithCSRF enables anti-forgery tokens: issued on login and required on
// unsafe authenticated requests.
func WithCSRF(signer *csrf.Signer) Option {
	return func(s *Server) {
		s.csrf = signer
	}
}

// WithChurches sets the church list.
func WithChurches(churches ...authclient.Church) Option {
	return func(s *Server) {
		s.churches = append([]authclient.Church(nil), churches...)
	}
}

func WithLogger(logger authclient.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for token issue and checks.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a server with no accounts.
func New(opts ...Option) *Server {
	s := &Server{
		signingKey: []byte("mockbackend-signing-key"),
		tokenTTL:   time.Hour,
		logger:     authclient.NopLogger(),
		now:        time.Now,
		hashCost:   bcrypt.MinCost,
		accounts:   map[string]*account{},
		byID:       map[string]*account{},
		failures:   map[string][]Failure{},
		calls:      map[string]int{},
		revoked:    map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.routes()
	return s
}

// AddAccount registers a login. A user without an id gets a stable id
// derived from the identifier.
func (s *Server) AddAccount(identifier, secret string, user authclient.User) (authclient.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if user.ID == "" {
		id, err := hashid.NewUUID(identifier)
		if err != nil {
			return authclient.User{}, err
		}
		user.ID = id.String()
	}
	if user.Email == "" && strings.Contains(identifier, "@") {
		user.Email = identifier
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.hashCost)
	if err != nil {
		return authclient.User{}, err
	}

	acc := &account{identifier: identifier, hash: hash, user: *user.Clone()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[identifier] = acc
	s.byID[user.ID] = acc
	return *user.Clone(), nil
}

// User returns the stored record for id.
func (s *Server) User(id string) (authclient.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byID[id]
	if !ok {
		return authclient.User{}, false
	}
	return *acc.user.Clone(), true
}

// SetChurches replaces the church list.
func (s *Server) SetChurches(churches ...authclient.Church) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.churches = append([]authclient.Church(nil), churches...)
}

// FailNext queues f for the next call of route ("METHOD /path").
func (s *Server) FailNext(route string, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], f)
}

// Calls returns how many requests reached route, injected failures included.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// App exposes the fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown stops a listening server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Transport returns a RoundTripper that serves requests in process.
func (s *Server) Transport() http.RoundTripper {
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		route := req.Method + " " + req.URL.Path
		if s.dropConnection(route) {
			return nil, ErrConnectionDropped
		}
		return s.app.Test(req, -1)
	})
}

func (s *Server) dropConnection(route string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.failures[route]
	if len(queue) == 0 || queue[0].Status != 0 {
		return false
	}
	s.failures[route] = queue[1:]
	s.calls[route]++
	return true
}

func (s *Server) nextFailure(route string) (Failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[route]++
	queue := s.failures[route]
	if len(queue) == 0 {
		return Failure{}, false
	}
	s.failures[route] = queue[1:]
	return queue[0], true
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	s.logger.Error("mockbackend %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(code).JSON(fiber.Map{"message": err.Error()})
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
