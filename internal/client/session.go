package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"smart-task-manager/internal/client/localstore"

	"go.uber.org/zap"
)

const (
	keyToken        = "token"
	keyRefreshToken = "refresh_token"
	keyUser         = "user"
)

// Session is a point-in-time view of the auth state.
type Session struct {
	Token string
	User  *Profile
}

// Authenticated reports whether the session looks usable. A token
// without a cached profile still counts: the profile fetch may simply
// not have completed yet.
func (s Session) Authenticated() bool {
	return s.Token != "" || s.User != nil
}

// SessionManager owns the persisted auth state. All reads and writes of
// the token and cached profile go through it, and interested parties
// subscribe for change notifications instead of polling the store.
type SessionManager struct {
	api    *API
	store  *localstore.Store
	logger *zap.Logger

	mu      sync.Mutex
	subs    map[int]func(Session)
	nextSub int
}

func NewSessionManager(api *API, store *localstore.Store, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &SessionManager{
		api:    api,
		store:  store,
		logger: logger,
		subs:   make(map[int]func(Session)),
	}

	api.SetTokenSource(m.Token)
	api.SetUnauthorizedHook(m.handleUnauthorized)
	return m
}

// Subscribe registers fn to run after every session change. The
// returned function cancels the subscription.
func (m *SessionManager) Subscribe(fn func(Session)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *SessionManager) notify() {
	session := m.Current()

	m.mu.Lock()
	subs := make([]func(Session), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(session)
	}
}

func (m *SessionManager) Token() string {
	token, _, err := m.store.Get(keyToken)
	if err != nil {
		m.logger.Warn("failed to read token", zap.Error(err))
		return ""
	}
	return token
}

func (m *SessionManager) cachedUser() *Profile {
	value, ok, err := m.store.Get(keyUser)
	if err != nil || !ok {
		return nil
	}

	var profile Profile
	if err := json.Unmarshal([]byte(value), &profile); err != nil {
		m.logger.Warn("corrupt cached profile, discarding", zap.Error(err))
		_ = m.store.Delete(keyUser)
		return nil
	}
	return &profile
}

// Current returns the session as stored, without touching the network.
func (m *SessionManager) Current() Session {
	return Session{Token: m.Token(), User: m.cachedUser()}
}

type authResponse struct {
	Success      bool    `json:"success"`
	Token        string  `json:"token"`
	RefreshToken string  `json:"refresh_token"`
	User         Profile `json:"user"`
}

func (m *SessionManager) Signup(ctx context.Context, name, email, password string) (Session, error) {
	var resp authResponse
	err := m.api.Post(ctx, "/api/auth/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return Session{}, err
	}
	return m.persistAuth(resp)
}

func (m *SessionManager) Login(ctx context.Context, email, password string) (Session, error) {
	var resp authResponse
	err := m.api.Post(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return Session{}, err
	}
	return m.persistAuth(resp)
}

func (m *SessionManager) persistAuth(resp authResponse) (Session, error) {
	userData, err := json.Marshal(resp.User)
	if err != nil {
		return Session{}, err
	}

	if err := m.store.Set(keyToken, resp.Token); err != nil {
		return Session{}, err
	}
	if err := m.store.Set(keyRefreshToken, resp.RefreshToken); err != nil {
		return Session{}, err
	}
	if err := m.store.Set(keyUser, string(userData)); err != nil {
		return Session{}, err
	}

	m.notify()
	return Session{Token: resp.Token, User: &resp.User}, nil
}

// Refresh exchanges the stored refresh token for a new pair.
func (m *SessionManager) Refresh(ctx context.Context) error {
	refreshToken, ok, err := m.store.Get(keyRefreshToken)
	if err != nil {
		return err
	}
	if !ok || refreshToken == "" {
		return errors.New("no refresh token stored")
	}

	var resp authResponse
	err = m.api.Post(ctx, "/api/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, &resp)
	if err != nil {
		return err
	}

	if err := m.store.Set(keyToken, resp.Token); err != nil {
		return err
	}
	if err := m.store.Set(keyRefreshToken, resp.RefreshToken); err != nil {
		return err
	}

	m.notify()
	return nil
}

// Profile fetches the profile from the server, refreshing the cached
// copy on success. When the server is unreachable it falls back to the
// cached profile so the user still sees who they are signed in as.
func (m *SessionManager) Profile(ctx context.Context) (*Profile, error) {
	var resp struct {
		Success bool    `json:"success"`
		User    Profile `json:"user"`
	}

	err := m.api.Get(ctx, "/api/user/profile", &resp)
	if err == nil {
		if data, merr := json.Marshal(resp.User); merr == nil {
			if serr := m.store.Set(keyUser, string(data)); serr != nil {
				m.logger.Warn("failed to cache profile", zap.Error(serr))
			}
		}
		return &resp.User, nil
	}

	if errors.Is(err, ErrUnreachable) {
		if cached := m.cachedUser(); cached != nil {
			m.logger.Debug("profile fetch failed, serving cached copy", zap.Error(err))
			return cached, nil
		}
	}
	return nil, err
}

// Logout revokes the refresh token server-side when possible and always
// clears local state. A dead server must not trap the user in a
// signed-in client.
func (m *SessionManager) Logout(ctx context.Context) error {
	refreshToken, _, _ := m.store.Get(keyRefreshToken)
	if refreshToken != "" {
		err := m.api.Post(ctx, "/api/auth/logout", map[string]string{
			"refresh_token": refreshToken,
		}, nil)
		if err != nil {
			m.logger.Warn("server-side logout failed, clearing locally", zap.Error(err))
		}
	}

	m.clear()
	return nil
}

func (m *SessionManager) clear() {
	_ = m.store.Delete(keyToken)
	_ = m.store.Delete(keyRefreshToken)
	_ = m.store.Delete(keyUser)
	_ = m.store.ClearTasks()
	_ = m.store.ClearPending()
	m.notify()
}

// handleUnauthorized decides whether a 401 means the stored token is
// dead. Only auth-shaped rejections clear the session; a 401 from some
// unrelated endpoint quirk must not log the user out.
func (m *SessionManager) handleUnauthorized(apiErr *APIError) {
	if m.Token() == "" {
		return
	}

	msg := strings.ToLower(apiErr.Message)
	if strings.Contains(msg, "token") || strings.Contains(msg, "authorized") {
		m.logger.Info("session rejected by server, signing out", zap.String("reason", apiErr.Message))
		m.clear()
	}
}
