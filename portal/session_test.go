package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mahudhurio/apps/shared"
	"github.com/trezcool/mahudhurio/core/user"
	testutil "github.com/trezcool/mahudhurio/tests"
)

func TestSessionManager_Login(t *testing.T) {
	env := setup(t)
	testutil.CreateUser(t, env.usrRepo, "N Dog", "ndog", "password123", user.RoleTeacher, "", false)

	tests := []struct {
		name       string
		username   string
		password   string
		wantRole   user.Role
		wantReason string // when an *AuthError is expected
		wantCalls  int
	}{
		{name: "missing password", username: "teacher1", wantReason: "Username and password are required"},
		{name: "missing username", password: "password123", wantReason: "Username and password are required"},
		{name: "invalid password", username: "teacher1", password: "lol", wantReason: "Invalid credentials", wantCalls: 1},
		{name: "unknown user", username: "lol", password: "password123", wantReason: "Invalid credentials", wantCalls: 1},
		{name: "deactivated account", username: "ndog", password: "password123", wantReason: "account deactivated", wantCalls: 1},
		{name: "teacher", username: " Teacher1 ", password: shared.DefaultTeacherPassword, wantRole: user.RoleTeacher, wantCalls: 1},
		{name: "student", username: "st001", password: shared.DefaultStudentPassword, wantRole: user.RoleStudent, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := env.requester()
			store := NewMemoryTokenStore()
			sessions := env.client(req, store).Sessions

			sess, err := sessions.Login(context.Background(), tt.username, tt.password)
			assert.Len(t, req.recorded(), tt.wantCalls)
			token, _ := store.Load()

			if tt.wantReason != "" {
				var authErr *AuthError
				require.True(t, errors.As(err, &authErr), "Login() error = %v, want an *AuthError", err)
				assert.Equal(t, tt.wantReason, authErr.Reason)
				assert.Nil(t, sess)
				assert.Nil(t, sessions.Current())
				assert.Empty(t, token)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, sess.Role)
			assert.NotEmpty(t, sess.Token)
			assert.Equal(t, sess.Token, token)
			assert.Equal(t, sess, sessions.Current())
		})
	}
}

func TestSessionManager_Login_networkError(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	env := setup(t)
	sessions := env.client(NewHTTPRequester(dead.URL, time.Second), NewMemoryTokenStore()).Sessions

	_, err := sessions.Login(context.Background(), "teacher1", "password123")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "Login() error = %v, want an *AuthError", err)
	assert.Equal(t, "Login failed", authErr.Reason)

	var tErr *TransportError
	assert.True(t, errors.As(err, &tErr))
	assert.Nil(t, sessions.Current())
}

func TestSessionManager_Restore(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	t.Run("no token", func(t *testing.T) {
		sessions := env.client(env.requester(), NewMemoryTokenStore()).Sessions
		sess, err := sessions.Restore(ctx)
		assert.NoError(t, err)
		assert.Nil(t, sess)
	})

	t.Run("valid token", func(t *testing.T) {
		store := NewMemoryTokenStore()
		loggedIn, err := env.client(env.requester(), store).Sessions.Login(ctx, "st001", shared.DefaultStudentPassword)
		require.NoError(t, err)

		sessions := env.client(env.requester(), store).Sessions
		sess, err := sessions.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, loggedIn, sess)
		assert.Equal(t, sess, sessions.Current())
	})

	t.Run("rejected token", func(t *testing.T) {
		store := NewMemoryTokenStore()
		require.NoError(t, store.Save("lol.lol.lol"))

		sessions := env.client(env.requester(), store).Sessions
		sess, err := sessions.Restore(ctx)
		if err != ErrSessionExpired {
			t.Errorf("Restore() error = %v, wantErr %v", err, ErrSessionExpired)
		}
		assert.Nil(t, sess)
		token, _ := store.Load()
		assert.Empty(t, token)
	})

	t.Run("server unreachable keeps the token", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()

		store := NewMemoryTokenStore()
		require.NoError(t, store.Save("tok"))

		_, err := env.client(NewHTTPRequester(dead.URL, time.Second), store).Sessions.Restore(ctx)
		var tErr *TransportError
		assert.True(t, errors.As(err, &tErr), "Restore() error = %v, want a *TransportError", err)
		token, _ := store.Load()
		assert.Equal(t, "tok", token)
	})
}

func TestSessionManager_Logout(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	store := NewMemoryTokenStore()
	sessions := env.client(env.requester(), store).Sessions
	var tornDown int
	sessions.OnTeardown(func() { tornDown++ })

	_, err := sessions.Login(ctx, shared.DefaultTeacherUsername, shared.DefaultTeacherPassword)
	require.NoError(t, err)

	require.NoError(t, sessions.Logout())
	assert.Equal(t, 1, tornDown)
	assert.Nil(t, sessions.Current())
	token, _ := store.Load()
	assert.Empty(t, token)

	sess, err := sessions.Restore(ctx)
	assert.NoError(t, err)
	assert.Nil(t, sess)

	// expiring also tears down
	_, err = sessions.Login(ctx, shared.DefaultTeacherUsername, shared.DefaultTeacherPassword)
	require.NoError(t, err)
	assert.Equal(t, ErrSessionExpired, sessions.Expire())
	assert.Equal(t, 2, tornDown)
	assert.Nil(t, sessions.Current())
}

func TestSession_roles(t *testing.T) {
	teacher := &Session{Role: user.RoleTeacher}
	student := &Session{Role: user.RoleStudent}
	var none *Session

	_, err := teacher.AsTeacher()
	assert.NoError(t, err)
	_, err = teacher.AsStudent()
	assert.Equal(t, ErrUnauthorized, err)

	_, err = student.AsStudent()
	assert.NoError(t, err)
	_, err = student.AsTeacher()
	assert.Equal(t, ErrUnauthorized, err)

	_, err = none.AsTeacher()
	assert.Equal(t, ErrNoSession, err)
}

func TestSessionManager_Login_replacesThePreviousSession(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	store := NewMemoryTokenStore()
	sessions := env.client(env.requester(), store).Sessions
	var tornDown int
	sessions.OnTeardown(func() { tornDown++ })

	_, err := sessions.Login(ctx, shared.DefaultTeacherUsername, shared.DefaultTeacherPassword)
	require.NoError(t, err)

	_, err = sessions.Login(ctx, "st001", "lol")
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "Login() error = %v, want an *AuthError", err)
	assert.Equal(t, 1, tornDown)
	assert.Nil(t, sessions.Current())
	token, _ := store.Load()
	assert.Empty(t, token)

	// nothing left to restore
	sess, err := env.client(env.requester(), store).Sessions.Restore(ctx)
	assert.NoError(t, err)
	assert.Nil(t, sess)

	sess, err = sessions.Login(ctx, "st001", shared.DefaultStudentPassword)
	require.NoError(t, err)
	assert.Equal(t, "st001", sess.Username)
	assert.Equal(t, 1, tornDown)
}
