package account

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-desk/internal/cache"
)

// Session is the server-side state behind a session cookie
type Session struct {
	ID string

	mu       sync.Mutex
	username string
	temp     map[string]string
	uploads  map[string]string
}

// Username returns the signed-in user, or "" for an anonymous session
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// SetUsername binds the session to a user
func (s *Session) SetUsername(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
}

// PutTemp stores a value that survives until it is read once
func (s *Session) PutTemp(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.temp == nil {
		s.temp = make(map[string]string)
	}
	s.temp[key] = value
}

// TakeTemp returns and removes a temp value
func (s *Session) TakeTemp(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	value := s.temp[key]
	delete(s.temp, key)
	return value
}

// AddUpload records a stored document and its detected type as issued to this session
func (s *Session) AddUpload(name, docType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploads == nil {
		s.uploads = make(map[string]string)
	}
	s.uploads[name] = docType
}

// Upload returns the type recorded for a document issued to this session
func (s *Session) Upload(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docType, ok := s.uploads[name]
	return docType, ok
}

// RemoveUpload forgets an issued document, usually once an invoice owns it
func (s *Session) RemoveUpload(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, name)
}

// Uploads returns a copy of the documents issued to this session and not yet claimed
func (s *Session) Uploads() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.uploads))
	for name, docType := range s.uploads {
		out[name] = docType
	}
	return out
}

// Sessions keeps sessions in memory; idle sessions expire after the configured TTL
type Sessions struct {
	cache *cache.Cache[*Session]
}

// NewSessions creates a session registry with the given idle timeout
func NewSessions(ttl time.Duration) *Sessions {
	return NewSessionsWithExpiry(ttl, nil)
}

// NewSessionsWithExpiry is NewSessions with a callback for sessions that time out.
// Sessions ended with Delete are not reported.
func NewSessionsWithExpiry(ttl time.Duration, onExpire func(*Session)) *Sessions {
	var opts []cache.Option[*Session]
	if onExpire != nil {
		opts = append(opts, cache.WithOnExpire(func(_ string, s *Session) {
			onExpire(s)
		}))
	}
	return &Sessions{cache: cache.New[*Session](ttl, opts...)}
}

// Create starts a new anonymous session
func (m *Sessions) Create() *Session {
	s := &Session{ID: uuid.NewString()}
	m.cache.Set(s.ID, s)
	return s
}

// Get returns the session for id and extends its lifetime
func (m *Sessions) Get(id string) (*Session, bool) {
	s, ok := m.cache.Get(id)
	if !ok {
		return nil, false
	}
	m.cache.Set(id, s)
	return s, true
}

// Delete ends a session
func (m *Sessions) Delete(id string) {
	m.cache.Delete(id)
}

// Close stops the expiry sweeper
func (m *Sessions) Close() error {
	return m.cache.Close()
}
