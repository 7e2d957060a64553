package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	sessionCookieName      = "attendance_admin_session"
	defaultSessionDuration = 12 * time.Hour
)

// Session represents an authenticated admin session
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StoredSession is the persisted form of a session.
type StoredSession struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRepository persists sessions across restarts. Optional.
type SessionRepository interface {
	Save(ctx context.Context, id string, createdAt, expiresAt time.Time) error
	Get(ctx context.Context, sessionID string) (*StoredSession, error)
	Delete(ctx context.Context, sessionID string) error
}

// SessionManager handles session creation and validation
type SessionManager struct {
	secret   []byte
	ttl      time.Duration
	repo     SessionRepository
	logger   *zap.Logger
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewSessionManager creates a new session manager. repo may be nil for in-memory only.
func NewSessionManager(secret string, repo SessionRepository) *SessionManager {
	// Use a default secret if none provided (for development)
	if secret == "" {
		secret = "face-attendance-dev-secret-change-in-production"
	}
	return &SessionManager{
		secret:   []byte(secret),
		ttl:      defaultSessionDuration,
		repo:     repo,
		logger:   zap.NewNop(),
		sessions: make(map[string]*Session),
	}
}

// WithTTL overrides the session lifetime.
func (sm *SessionManager) WithTTL(ttl time.Duration) *SessionManager {
	if ttl > 0 {
		sm.ttl = ttl
	}
	return sm
}

// WithLogger sets the logger used for persistence failures.
func (sm *SessionManager) WithLogger(logger *zap.Logger) *SessionManager {
	if logger != nil {
		sm.logger = logger
	}
	return sm
}

// CreateSession creates a new admin session
func (sm *SessionManager) CreateSession(ctx context.Context) (*Session, error) {
	// Generate session ID
	idBytes := make([]byte, 32)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, err
	}
	sessionID := base64.URLEncoding.EncodeToString(idBytes)

	now := time.Now()
	session := &Session{
		ID:        sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(sm.ttl),
	}

	sm.mu.Lock()
	sm.sessions[sessionID] = session
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Save(ctx, session.ID, session.CreatedAt, session.ExpiresAt); err != nil {
			sm.logger.Warn("failed to persist session", zap.Error(err))
		}
	}

	return session, nil
}

// GetSession retrieves a session by ID, falling back to the repository.
func (sm *SessionManager) GetSession(ctx context.Context, sessionID string) *Session {
	sm.mu.RLock()
	session, ok := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if !ok && sm.repo != nil {
		stored, err := sm.repo.Get(ctx, sessionID)
		if err != nil {
			sm.logger.Warn("failed to load session", zap.Error(err))
		}
		if stored != nil {
			session = &Session{ID: stored.ID, CreatedAt: stored.CreatedAt, ExpiresAt: stored.ExpiresAt}
			sm.mu.Lock()
			sm.sessions[sessionID] = session
			sm.mu.Unlock()
			ok = true
		}
	}
	if !ok {
		return nil
	}

	// Check if session has expired
	if time.Now().After(session.ExpiresAt) {
		sm.DeleteSession(ctx, sessionID)
		return nil
	}

	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if sm.repo != nil {
		if err := sm.repo.Delete(ctx, sessionID); err != nil {
			sm.logger.Warn("failed to delete session", zap.Error(err))
		}
	}
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session) {
	// Sign the session ID
	signature := sm.signData(session.ID)
	cookieValue := session.ID + "." + signature

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    cookieValue,
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sm.ttl.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// GetSessionFromRequest extracts the session from a request
func (sm *SessionManager) GetSessionFromRequest(r *http.Request) *Session {
	// Try cookie first
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil {
		parts := strings.SplitN(cookie.Value, ".", 2)
		if len(parts) == 2 {
			sessionID := parts[0]
			signature := parts[1]
			if sm.verifySignature(sessionID, signature) {
				if session := sm.GetSession(r.Context(), sessionID); session != nil {
					return session
				}
			}
		}
	}

	// Try Authorization header
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		sessionID := strings.TrimPrefix(authHeader, "Bearer ")
		if session := sm.GetSession(r.Context(), sessionID); session != nil {
			return session
		}
	}

	return nil
}

// signData creates an HMAC signature for data
func (sm *SessionManager) signData(data string) string {
	h := hmac.New(sha256.New, sm.secret)
	h.Write([]byte(data))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// verifySignature verifies an HMAC signature
func (sm *SessionManager) verifySignature(data, signature string) bool {
	expected := sm.signData(data)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// SessionData is a helper struct for JSON responses
type SessionData struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// ToJSON returns the session data for JSON response
func (s *Session) ToJSON() SessionData {
	return SessionData{
		SessionID: s.ID,
		ExpiresAt: s.ExpiresAt.Format(time.RFC3339),
	}
}

// MarshalJSON implements json.Marshaler
func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToJSON())
}
