package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"funquiz-service/internal/game"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions hold timers and observers, so the session itself stays in a local map.
//   - Redis holds a liveness marker per session (quiz and player) with a TTL, so other
//     instances and operators can see who is mid-game. Markers of crashed instances expire.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*game.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*game.Session),
	}
}

// Put keeps the session locally only once its marker is written.
func (s *SessionStore) Put(ctx context.Context, session *game.Session) error {
	marker := strconv.FormatInt(session.QuizID(), 10) + ":" + session.Player()
	if err := s.client.Set(ctx, s.key(session.ID()), marker, s.ttl).Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) Get(ctx context.Context, sessionID string) (*game.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok && s.ttl > 0 {
		// best-effort refresh of the liveness marker
		_ = s.client.Expire(ctx, s.key(sessionID), s.ttl).Err()
	}
	return session, ok
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	_ = s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *SessionStore) key(sessionID string) string {
	return "funquiz:session:" + sessionID
}
