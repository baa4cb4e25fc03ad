// Package mockapi is a small in-process backend that implements the
// authentication and protected endpoint contracts. It backs the integration
// tests and the `synccli serve-mock` command.
package mockapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-resource-sync/apiclient"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
}

func (u User) dto() apiclient.UserDto {
	return apiclient.UserDto{
		ID:           u.ID,
		EmailAddress: u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
	}
}

type Server struct {
	mux           *http.ServeMux
	handler       http.HandlerFunc
	issuer        *Issuer
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	refreshDelay  time.Duration
	nowFunc       func() time.Time

	mu     sync.RWMutex
	users  map[string]*User  // id -> user
	emails map[string]string // email -> id

	loginCalls   atomic.Int64
	refreshCalls atomic.Int64
	userReads    atomic.Int64
	userWrites   atomic.Int64
}

type Option func(*Server)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func WithTokenExpiry(accessExpiry, refreshExpiry time.Duration) Option {
	return func(s *Server) {
		s.accessExpiry = accessExpiry
		s.refreshExpiry = refreshExpiry
	}
}

// WithRefreshDelay slows down POST /refresh-token, which makes concurrent
// refresh attempts overlap in tests.
func WithRefreshDelay(d time.Duration) Option {
	return func(s *Server) {
		s.refreshDelay = d
	}
}

func New(signer Signer, options ...Option) *Server {
	s := &Server{
		mux:           http.NewServeMux(),
		issuer:        NewIssuer(signer, "localhost"),
		accessExpiry:  15 * time.Minute,
		refreshExpiry: 7 * 24 * time.Hour,
		nowFunc:       time.Now,
		users:         make(map[string]*User),
		emails:        make(map[string]string),
	}
	for _, opt := range options {
		opt(s)
	}

	s.mux.HandleFunc("POST /login", s.LoginHandler())
	s.mux.HandleFunc("POST /refresh-token", s.RefreshTokenHandler())
	s.mux.HandleFunc("GET /user", s.requireAccess(s.GetUserHandler()))
	s.mux.HandleFunc("PUT /user", s.requireAccess(s.PutUserHandler()))
	if provider, ok := signer.(JWKSProvider); ok {
		s.mux.HandleFunc("GET "+JWKSPath, s.JWKSHandler(provider))
	}
	s.handler = chainMiddleware(s.mux.ServeHTTP, recoverMiddleware, loggingMiddleware)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler(w, r)
}

func (s *Server) Issuer() *Issuer {
	return s.issuer
}

// AddUser stores user with a bcrypt hash of password and returns its id
func (s *Server) AddUser(user User, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("mockapi.AddUser hash: %w", err)
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.PasswordHash = string(hash)
	user.Email = normalizeEmail(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = &user
	s.emails[user.Email] = user.ID
	return user.ID, nil
}

func (s *Server) User(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

func (s *Server) LoginCalls() int64   { return s.loginCalls.Load() }
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }
func (s *Server) UserReads() int64    { return s.userReads.Load() }
func (s *Server) UserWrites() int64   { return s.userWrites.Load() }

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.loginCalls.Add(1)

		var req apiclient.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s.mu.RLock()
		user, ok := s.users[s.emails[normalizeEmail(req.EmailAddress)]]
		s.mu.RUnlock()
		if !ok || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		now := s.nowFunc()
		access, err := s.issuer.AccessToken(user.ID, now, now.Add(s.accessExpiry), true)
		if err != nil {
			log.Err(err).Msg("Login: failed to issue access token")
			writeError(w, http.StatusInternalServerError, "token issue failed")
			return
		}
		refresh, err := s.issuer.RefreshToken(user.ID, now, now.Add(s.refreshExpiry))
		if err != nil {
			log.Err(err).Msg("Login: failed to issue refresh token")
			writeError(w, http.StatusInternalServerError, "token issue failed")
			return
		}

		writeJSON(w, http.StatusOK, apiclient.LoginResponse{AccessToken: access, RefreshToken: refresh})
	}
}

func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.refreshCalls.Add(1)
		if s.refreshDelay > 0 {
			time.Sleep(s.refreshDelay)
		}

		var req apiclient.RefreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		now := s.nowFunc()
		sub, err := s.issuer.Verify(req.RefreshToken, "refresh", now)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		access, err := s.issuer.AccessToken(sub, now, now.Add(s.accessExpiry), false)
		if err != nil {
			log.Err(err).Msg("Refresh: failed to issue access token")
			writeError(w, http.StatusInternalServerError, "token issue failed")
			return
		}
		writeJSON(w, http.StatusOK, apiclient.RefreshResponse{AccessToken: access})
	}
}

func (s *Server) JWKSHandler(provider JWKSProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := provider.JWKS()
		if err != nil {
			log.Err(err).Msg("JWKS: failed to build key set")
			writeError(w, http.StatusInternalServerError, "key set unavailable")
			return
		}
		writeJSON(w, http.StatusOK, jwks)
	}
}

func (s *Server) GetUserHandler() func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, userID string) {
		s.userReads.Add(1)
		user, ok := s.User(userID)
		if !ok {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeJSON(w, http.StatusOK, user.dto())
	}
}

// PutUserHandler applies only the changed fields. Values are normalized the
// way a real backend would, so the stored value can differ from the draft.
func (s *Server) PutUserHandler() func(http.ResponseWriter, *http.Request, string) {
	return func(w http.ResponseWriter, r *http.Request, userID string) {
		s.userWrites.Add(1)

		var req apiclient.UpdateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		user, ok := s.users[userID]
		if !ok {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}

		updated := *user
		for field, raw := range req.Changed {
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("field %q must be a string", field))
				return
			}
			switch field {
			case "email_address":
				updated.Email = normalizeEmail(value)
			case "first_name":
				updated.FirstName = strings.TrimSpace(value)
			case "last_name":
				updated.LastName = strings.TrimSpace(value)
			default:
				writeError(w, http.StatusBadRequest, fmt.Sprintf("field %q is read-only", field))
				return
			}
		}

		delete(s.emails, user.Email)
		s.emails[updated.Email] = updated.ID
		s.users[userID] = &updated
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) requireAccess(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.issuer.Verify(raw, "access", s.nowFunc())
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r, userID)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiclient.ErrorResponse{Error: message})
}
