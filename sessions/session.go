package sessions

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-resource-sync/tabstorage"
	"github.com/jrsteele09/go-resource-sync/token"
)

// Storage keys holding the persisted compact token strings
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// Session holds the credentials of one tab. It is created once at start-up,
// loads whatever tokens the tab storage already has, and persists every
// change back through it.
type Session struct {
	mu         sync.RWMutex
	storage    *tabstorage.Storage
	accessRaw  string
	access     *token.Token
	refreshRaw string
	refresh    *token.Token
	loggedIn   bool
	generation uint64
	nowFunc    func() time.Time
	logger     zerolog.Logger
}

type Option func(*Session)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Session) {
		s.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New loads the persisted tokens from storage. The session starts logged in
// when the stored refresh token is still valid.
func New(storage *tabstorage.Storage, options ...Option) (*Session, error) {
	s := &Session{
		storage: storage,
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	var err error
	if s.accessRaw, s.access, err = s.load(AccessTokenKey); err != nil {
		return nil, err
	}
	if s.refreshRaw, s.refresh, err = s.load(RefreshTokenKey); err != nil {
		return nil, err
	}
	s.loggedIn = token.IsValid(s.refresh, s.nowFunc())
	return s, nil
}

func (s *Session) load(key string) (string, *token.Token, error) {
	var raw string
	ok, err := s.storage.Get(key, &raw)
	if err != nil {
		return "", nil, err
	}
	if !ok || raw == "" {
		return "", nil, nil
	}
	tok, err := token.Decode(raw)
	if err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("Session: ignoring stored token")
		return raw, nil, nil
	}
	return raw, tok, nil
}

// SetAccessToken replaces the access token and persists its compact form.
// An undecodable string leaves the session without an access token.
func (s *Session) SetAccessToken(raw string) error {
	tok, _ := token.Decode(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessRaw, s.access = raw, tok
	return s.persist(AccessTokenKey, raw)
}

// SetAccessTokenIf stores raw like SetAccessToken, but only while the
// session is still at generation gen. It reports whether the token was stored.
func (s *Session) SetAccessTokenIf(gen uint64, raw string) (bool, error) {
	tok, _ := token.Decode(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return false, nil
	}
	s.accessRaw, s.access = raw, tok
	return true, s.persist(AccessTokenKey, raw)
}

// SetRefreshToken replaces the refresh token and persists its compact form.
// It starts a new generation.
func (s *Session) SetRefreshToken(raw string) error {
	tok, _ := token.Decode(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshRaw, s.refresh = raw, tok
	s.generation++
	return s.persist(RefreshTokenKey, raw)
}

func (s *Session) persist(key, raw string) error {
	if raw == "" {
		return s.storage.Remove(key)
	}
	return s.storage.Set(key, raw)
}

func (s *Session) SetLoggedIn(loggedIn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = loggedIn
}

// Clear drops both tokens and their persisted forms and marks the session
// logged out. It starts a new generation.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++

	s.accessRaw, s.access = "", nil
	s.refreshRaw, s.refresh = "", nil
	s.loggedIn = false

	if err := s.storage.Remove(AccessTokenKey); err != nil {
		return err
	}
	return s.storage.Remove(RefreshTokenKey)
}

func (s *Session) AccessToken() *token.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access
}

func (s *Session) AccessTokenString() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessRaw
}

func (s *Session) RefreshToken() *token.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

func (s *Session) RefreshTokenString() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshRaw
}

// RefreshCredential returns the refresh token together with the generation it
// belongs to. Clear and SetRefreshToken move the session to a new generation.
func (s *Session) RefreshCredential() (string, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshRaw, s.generation
}

func (s *Session) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggedIn
}

// Now returns the session clock
func (s *Session) Now() time.Time {
	return s.nowFunc()
}
