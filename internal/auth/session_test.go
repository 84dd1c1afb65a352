package auth

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imunoz/finsight/internal/api"
)

// fakeGateway is a scriptable Gateway double.
type fakeGateway struct {
	mu          sync.Mutex
	loginResp   api.AuthResponse
	loginErr    error
	meResp      api.User
	meErr       error
	loginCalls  int
	meCalls     int
	onLogin     func() // runs before the login result is returned
	onMe        func()
	registerErr error
}

func (g *fakeGateway) Login(ctx context.Context, email, password string) (api.AuthResponse, error) {
	g.mu.Lock()
	g.loginCalls++
	hook := g.onLogin
	resp, err := g.loginResp, g.loginErr
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	return resp, err
}

func (g *fakeGateway) Register(ctx context.Context, email, password, fullName string) (api.AuthResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.registerErr != nil {
		return api.AuthResponse{}, g.registerErr
	}
	return g.loginResp, nil
}

func (g *fakeGateway) Me(ctx context.Context) (api.User, error) {
	g.mu.Lock()
	g.meCalls++
	hook := g.onMe
	resp, err := g.meResp, g.meErr
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	return resp, err
}

var ana = api.User{ID: 1, Email: "analyst@example.com", FullName: "Ana", Role: api.RoleAnalyst, IsActive: true}

func newTestSession(gw Gateway) (*Session, *MemoryTokenStore) {
	store := &MemoryTokenStore{}
	return NewSession(gw, store, nil), store
}

func TestLogin_RoundTrip(t *testing.T) {
	gw := &fakeGateway{loginResp: api.AuthResponse{AccessToken: "tok-1", TokenType: "bearer", User: ana}}
	s, store := newTestSession(gw)

	err := s.Login(context.Background(), "analyst@example.com", "analyst123")
	require.NoError(t, err)

	assert.Equal(t, Authenticated, s.Status())
	assert.True(t, s.Authenticated())

	tok, ok := s.Token()
	require.True(t, ok)
	assert.Equal(t, "tok-1", tok)

	user, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, "Ana", user.FullName)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", persisted)
}

func TestLogin_WrongPassword(t *testing.T) {
	gw := &fakeGateway{loginErr: &api.Error{Status: http.StatusUnauthorized, Detail: "Invalid credentials"}}
	s, store := newTestSession(gw)

	err := s.Login(context.Background(), "analyst@example.com", "nope")
	require.Error(t, err)

	assert.Equal(t, SessionError, s.Status())
	assert.False(t, s.Authenticated())
	assert.Equal(t, "Invalid credentials", s.Err())

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestLogin_FallbackMessage(t *testing.T) {
	gw := &fakeGateway{loginErr: context.DeadlineExceeded}
	s, _ := newTestSession(gw)

	err := s.Login(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	assert.Equal(t, fallbackLogin, s.Err())
}

func TestRegister_SameSideEffectsAsLogin(t *testing.T) {
	gw := &fakeGateway{loginResp: api.AuthResponse{AccessToken: "tok-9", User: ana}}
	s, store := newTestSession(gw)

	require.NoError(t, s.Register(context.Background(), "analyst@example.com", "pw", "Ana"))
	assert.True(t, s.Authenticated())
	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok-9", persisted)
}

func TestLogout_ClearsEverything(t *testing.T) {
	gw := &fakeGateway{loginResp: api.AuthResponse{AccessToken: "tok-1", User: ana}}
	s, store := newTestSession(gw)
	require.NoError(t, s.Login(context.Background(), ana.Email, "pw"))

	s.Logout()

	assert.Equal(t, Anonymous, s.Status())
	assert.False(t, s.Authenticated())
	_, ok := s.User()
	assert.False(t, ok)
	_, ok = s.Token()
	assert.False(t, ok)
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestLogout_SafeFromAnyState(t *testing.T) {
	s, _ := newTestSession(&fakeGateway{})
	s.Logout()
	s.Logout()
	assert.Equal(t, Anonymous, s.Status())
}

func TestCheckAuth_NoTokenIsAnonymous(t *testing.T) {
	gw := &fakeGateway{meResp: ana}
	s, _ := newTestSession(gw)

	for n := 0; n < 3; n++ {
		require.NoError(t, s.CheckAuth(context.Background()))
		assert.Equal(t, Anonymous, s.Status())
	}
	assert.Zero(t, gw.meCalls, "no /auth/me call expected without a token")
}

func TestCheckAuth_RestoresSession(t *testing.T) {
	gw := &fakeGateway{meResp: ana}
	s, store := newTestSession(gw)
	require.NoError(t, store.Save("tok-1"))

	require.NoError(t, s.CheckAuth(context.Background()))

	assert.True(t, s.Authenticated())
	user, ok := s.User()
	require.True(t, ok)
	assert.Equal(t, ana.Email, user.Email)
	tok, _ := s.Token()
	assert.Equal(t, "tok-1", tok)
}

func TestCheckAuth_RejectedTokenCleared(t *testing.T) {
	gw := &fakeGateway{meErr: &api.Error{Status: http.StatusUnauthorized, Detail: "Not authenticated"}}
	s, store := newTestSession(gw)
	require.NoError(t, store.Save("stale"))

	require.NoError(t, s.CheckAuth(context.Background()))

	assert.Equal(t, Anonymous, s.Status())
	assert.False(t, s.Authenticated())
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestCheckAuth_ConcurrentCallsCollapse(t *testing.T) {
	gw := &fakeGateway{meResp: ana}
	s, store := newTestSession(gw)
	require.NoError(t, store.Save("tok-1"))

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.CheckAuth(context.Background())
		}()
	}
	wg.Wait()

	assert.True(t, s.Authenticated())
	gw.mu.Lock()
	calls := gw.meCalls
	gw.mu.Unlock()
	assert.GreaterOrEqual(t, calls, 1)
	tok, _ := s.Token()
	assert.Equal(t, "tok-1", tok, "state must stay consistent under concurrent checks")
}

func TestInvalidate_WinsRaceWithLogin(t *testing.T) {
	gw := &fakeGateway{loginResp: api.AuthResponse{AccessToken: "tok-1", User: ana}}
	s, store := newTestSession(gw)

	// The 401 interceptor fires while the login response is in flight; the
	// session must end Anonymous and the rejected token must not stick.
	gw.onLogin = func() { s.Invalidate() }

	err := s.Login(context.Background(), ana.Email, "pw")
	require.Error(t, err)
	assert.Equal(t, Anonymous, s.Status())
	assert.False(t, s.Authenticated())
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestClearError_KeepsAuthState(t *testing.T) {
	gw := &fakeGateway{loginErr: &api.Error{Status: 401, Detail: "Invalid credentials"}}
	s, _ := newTestSession(gw)
	_ = s.Login(context.Background(), "a@b.c", "bad")

	s.ClearError()

	assert.Empty(t, s.Err())
	assert.Equal(t, SessionError, s.Status(), "ClearError must not change authentication state")
}
