// Package auth owns the authentication session: its state machine, the
// persisted token slot and the startup restore flow.
package auth

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/imunoz/finsight/internal/api"
)

// Status is the session lifecycle state.
type Status int

const (
	Anonymous Status = iota
	Authenticating
	Authenticated
	SessionError
)

func (s Status) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case SessionError:
		return "error"
	default:
		return "unknown"
	}
}

// Fallback messages when the server response carries no detail field.
const (
	fallbackLogin    = "could not sign in"
	fallbackRegister = "could not create account"
)

// Gateway is the slice of the API client the session needs. *api.Client
// satisfies it.
type Gateway interface {
	Login(ctx context.Context, email, password string) (api.AuthResponse, error)
	Register(ctx context.Context, email, password, fullName string) (api.AuthResponse, error)
	Me(ctx context.Context) (api.User, error)
}

// Session is the authentication state container. Construct with NewSession;
// all methods are safe for concurrent use. Only the token is persisted —
// user and status are volatile and rebuilt by CheckAuth.
type Session struct {
	mu     sync.Mutex
	status Status
	user   *api.User
	token  string
	errMsg string

	// gen invalidates in-flight operations: a completion handler whose
	// generation no longer matches must not write its result. This is how a
	// 401 interceptor firing mid-login wins the race.
	gen uint64

	gw     Gateway
	store  TokenStore
	checks singleflight.Group
	log    *zap.Logger
}

// NewSession creates an Anonymous session backed by the given gateway and
// token store. Pass nil for log to disable logging.
func NewSession(gw Gateway, store TokenStore, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{gw: gw, store: store, log: log}
}

// Login authenticates with email/password. On success the token is persisted
// and the session becomes Authenticated. On failure the session carries a
// user-readable error message and the error is returned so callers can abort
// whatever flow triggered the login.
func (s *Session) Login(ctx context.Context, email, password string) error {
	return s.authenticate(fallbackLogin, func() (api.AuthResponse, error) {
		return s.gw.Login(ctx, email, password)
	})
}

// Register creates an account; the session side effects match Login.
func (s *Session) Register(ctx context.Context, email, password, fullName string) error {
	return s.authenticate(fallbackRegister, func() (api.AuthResponse, error) {
		return s.gw.Register(ctx, email, password, fullName)
	})
}

func (s *Session) authenticate(fallback string, call func() (api.AuthResponse, error)) error {
	s.mu.Lock()
	s.status = Authenticating
	s.errMsg = ""
	gen := s.gen
	s.mu.Unlock()

	resp, err := call()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// Session was invalidated while the call was in flight; the server's
		// rejection is ground truth, so the result is discarded.
		s.log.Debug("discarding stale auth result")
		return errors.New("session invalidated")
	}
	if err != nil {
		s.status = SessionError
		s.errMsg = api.Detail(err, fallback)
		s.log.Info("authentication failed", zap.String("error", s.errMsg))
		return err
	}

	if serr := s.store.Save(resp.AccessToken); serr != nil {
		// The session still works for this process; persistence is best-effort.
		s.log.Warn("persisting token failed", zap.Error(serr))
	}
	user := resp.User
	s.user = &user
	s.token = resp.AccessToken
	s.status = Authenticated
	s.log.Info("authenticated", zap.String("email", user.Email), zap.String("role", user.Role))
	return nil
}

// Logout clears the persisted token and all in-memory session state. It is
// synchronous, never errors and is callable from any state.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.errMsg = ""
	s.log.Info("logged out")
}

// Invalidate is the 401 interceptor target: it drops the persisted token and
// resets to Anonymous. Any operation in flight when it fires will find its
// generation stale and discard its result, so the session always ends
// Anonymous after the race.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.log.Info("session invalidated")
}

// reset must be called with mu held.
func (s *Session) reset() {
	if err := s.store.Clear(); err != nil {
		s.log.Warn("clearing token store failed", zap.Error(err))
	}
	s.user = nil
	s.token = ""
	s.status = Anonymous
	s.gen++
}

// CheckAuth restores the session at startup. With no persisted token it
// settles on Anonymous; otherwise it validates the token against /auth/me,
// clearing it when the server rejects it. Concurrent calls collapse into one
// network request and the call is idempotent.
func (s *Session) CheckAuth(ctx context.Context) error {
	_, err, _ := s.checks.Do("check", func() (any, error) {
		return nil, s.checkAuth(ctx)
	})
	return err
}

func (s *Session) checkAuth(ctx context.Context) error {
	token, err := s.store.Load()
	if err != nil {
		s.mu.Lock()
		s.user = nil
		s.token = ""
		s.status = Anonymous
		s.mu.Unlock()
		if errors.Is(err, ErrNoToken) {
			return nil
		}
		return err
	}

	// Install the restored token before calling /auth/me so the gateway can
	// attach it.
	s.mu.Lock()
	s.token = token
	gen := s.gen
	s.mu.Unlock()

	user, err := s.gw.Me(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil
	}
	if err != nil {
		s.reset()
		s.log.Info("stored token rejected", zap.Error(err))
		return nil
	}
	s.user = &user
	s.status = Authenticated
	s.log.Debug("session restored", zap.String("email", user.Email))
	return nil
}

// ClearError drops the error message without touching authentication state.
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// Token implements api.TokenSource from in-memory state.
func (s *Session) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Authenticated reports whether a validated token is present.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == Authenticated && s.token != ""
}

// User returns a copy of the profile, or false when no user is signed in.
func (s *Session) User() (api.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return api.User{}, false
	}
	return *s.user, true
}

// Err returns the current user-facing error message, empty when none.
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}
