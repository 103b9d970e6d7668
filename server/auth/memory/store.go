package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cyp0633/smartdate/server/auth"
)

// User represents a user in the memory store
type User struct {
	Username string
	Password string
	ReadOnly bool
}

// Store implements an in-memory authentication store
type Store struct {
	mu     sync.RWMutex
	users  map[string]User // map[username]User
	logger *slog.Logger
}

var _ auth.Authenticator = (*Store)(nil)

// New creates a new in-memory authentication store
func New(opts ...Option) *Store {
	s := &Store{
		users:  make(map[string]User),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Option represents a configuration option for the Store
type Option func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// AddUser adds a new user to the store
func (s *Store) AddUser(user User) error {
	if user.Username == "" {
		return fmt.Errorf("username is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		s.logger.Warn("failed to add user: already exists",
			"username", user.Username)
		return fmt.Errorf("user already exists: %s", user.Username)
	}

	s.users[user.Username] = user
	s.logger.Debug("user added", "username", user.Username, "read_only", user.ReadOnly)
	return nil
}

// Authenticate implements auth.Authenticator
func (s *Store) Authenticate(_ context.Context, creds auth.Credentials) (*auth.Principal, error) {
	s.mu.RLock()
	user, exists := s.users[creds.Username]
	s.mu.RUnlock()

	if !exists {
		s.logger.Info("authentication failed: user not found",
			"username", creds.Username)
		return nil, &auth.Error{
			Type:    auth.ErrInvalidCredentials,
			Message: "invalid username or password",
		}
	}

	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(creds.Password)) != 1 {
		s.logger.Info("authentication failed: invalid password",
			"username", creds.Username)
		return nil, &auth.Error{
			Type:    auth.ErrInvalidCredentials,
			Message: "invalid username or password",
		}
	}

	return &auth.Principal{ID: user.Username, ReadOnly: user.ReadOnly}, nil
}

// ValidateAccess implements auth.Authenticator. Read-only users are limited to GET and HEAD.
func (s *Store) ValidateAccess(_ context.Context, principal *auth.Principal, method, path string) error {
	if principal == nil {
		return &auth.Error{
			Type:    auth.ErrUnauthorized,
			Message: "authentication required",
		}
	}

	if principal.ReadOnly && method != http.MethodGet && method != http.MethodHead {
		s.logger.Warn("access validation failed: read-only user",
			"username", principal.ID,
			"method", method,
			"path", path)
		return &auth.Error{
			Type:    auth.ErrForbidden,
			Message: fmt.Sprintf("%s not allowed on %s", method, path),
		}
	}
	return nil
}
