package portal

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/user"
)

// Session is the authenticated identity and its credential token.
type Session struct {
	UserID   string
	Username string
	Role     user.Role
	FullName string
	Email    string
	Token    string
}

// TeacherSession is a Session known to hold the teacher role. Only AsTeacher builds one.
type TeacherSession struct{ Session }

// StudentSession is a Session known to hold the student role. Only AsStudent builds one.
type StudentSession struct{ Session }

func (s *Session) AsTeacher() (TeacherSession, error) {
	if s == nil {
		return TeacherSession{}, ErrNoSession
	}
	if s.Role != user.RoleTeacher {
		return TeacherSession{}, ErrUnauthorized
	}
	return TeacherSession{*s}, nil
}

func (s *Session) AsStudent() (StudentSession, error) {
	if s == nil {
		return StudentSession{}, ErrNoSession
	}
	if s.Role != user.RoleStudent {
		return StudentSession{}, ErrUnauthorized
	}
	return StudentSession{*s}, nil
}

func newSession(p user.Profile, token string) (*Session, error) {
	if !p.Role.Valid() {
		return nil, errors.Errorf("unknown role %q", p.Role)
	}
	return &Session{
		UserID:   p.ID,
		Username: p.Username,
		Role:     p.Role,
		FullName: p.FullName,
		Email:    p.Email,
		Token:    token,
	}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        user.Profile `json:"user"`
}

// SessionManager is the single writer of the Session and of the persisted token.
type SessionManager struct {
	req    Requester
	store  TokenStore
	logger core.Logger

	mu       sync.RWMutex
	current  *Session
	teardown []func()
}

func NewSessionManager(req Requester, store TokenStore, logger core.Logger) *SessionManager {
	vala.BeginValidation().Validate(
		vala.IsNotNil(req, "req"),
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &SessionManager{req: req, store: store, logger: logger}
}

// Current returns a copy of the current session, nil when logged out.
func (m *SessionManager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	sess := *m.current
	return &sess
}

// OnTeardown registers fn to be run whenever the session ends (logout, expiry).
func (m *SessionManager) OnTeardown(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown = append(m.teardown, fn)
}

// Login authenticates the user and stores the token. Any failure is an *AuthError and leaves the session unset.
// A previous session and its stored token are discarded first, whatever the outcome.
func (m *SessionManager) Login(ctx context.Context, username, password string) (*Session, error) {
	m.discard()

	username = core.CleanString(username, true /* lower */)
	if username == "" || password == "" {
		return nil, &AuthError{Reason: "Username and password are required"}
	}

	var resp loginResponse
	err := m.req.Do(ctx, http.MethodPost, "/api/auth/login", "", loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return nil, &AuthError{Reason: messageFor(err, "Login failed"), Err: err}
	}
	if resp.AccessToken == "" {
		return nil, &AuthError{Reason: "Login failed", Err: errors.New("empty access token")}
	}
	sess, err := newSession(resp.User, resp.AccessToken)
	if err != nil {
		return nil, &AuthError{Reason: "Login failed", Err: err}
	}
	if err := m.store.Save(sess.Token); err != nil {
		return nil, &AuthError{Reason: "Could not store credentials", Err: err}
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()

	m.logger.Info(fmt.Sprintf("logged in as %q (%s)", sess.Username, sess.Role), resp.User)
	return m.Current(), nil
}

// Restore rebuilds the session from the persisted token. It returns (nil, nil) when no token is stored
// and ErrSessionExpired (token cleared) when the server rejects the token.
// Any other failure keeps the token so that a later restore may succeed.
func (m *SessionManager) Restore(ctx context.Context) (*Session, error) {
	token, err := m.store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "loading token")
	}
	if token == "" {
		return nil, nil
	}

	var profile user.Profile
	if err := m.req.Do(ctx, http.MethodGet, "/api/user/profile", token, nil, &profile); err != nil {
		switch errors.Cause(err) {
		case errUnauthenticated, ErrUnauthorized: // expired, invalid or deactivated
			if clrErr := m.store.Clear(); clrErr != nil {
				m.logger.Error("clearing rejected token", clrErr)
			}
			m.logger.Warn(fmt.Sprintf("stored token rejected: %v", err))
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	sess, err := newSession(profile, token)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return m.Current(), nil
}

// Logout clears the token and the session, then runs the teardown hooks.
// The hooks always run, even when clearing the token fails.
func (m *SessionManager) Logout() error {
	err := m.store.Clear()
	m.end()
	return errors.Wrap(err, "clearing token")
}

// Expire ends a session whose token the server rejected. It always returns ErrSessionExpired.
func (m *SessionManager) Expire() error {
	if err := m.store.Clear(); err != nil {
		m.logger.Error("clearing expired token", err)
	}
	m.end()
	m.logger.Warn("session expired")
	return ErrSessionExpired
}

// discard clears the stored token and ends the current session, if any.
func (m *SessionManager) discard() {
	if err := m.store.Clear(); err != nil {
		m.logger.Error("clearing previous token", err)
	}
	if m.Current() != nil {
		m.end()
	}
}

// drop forgets the in-memory session but keeps the stored token.
func (m *SessionManager) drop() {
	m.end()
}

func (m *SessionManager) end() {
	m.mu.Lock()
	m.current = nil
	hooks := append([]func(){}, m.teardown...)
	m.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
