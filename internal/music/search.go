package music

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrSearchExpired = errors.New("search session expired or missing")

const SearchSessionTTL = 2 * time.Minute

type SearchSession struct {
	GuildID   string
	UserID    string
	Query     string
	Results   []Track
	CreatedAt time.Time
}

// Searches remembers the last result list each user got per guild, so a
// follow-up selection can load one of them.
type Searches struct {
	mu   sync.RWMutex
	data map[string]SearchSession
	ttl  time.Duration
	now  func() time.Time
}

func NewSearches(ttl time.Duration) *Searches {
	if ttl <= 0 {
		ttl = SearchSessionTTL
	}
	return &Searches{
		data: make(map[string]SearchSession),
		ttl:  ttl,
		now:  time.Now,
	}
}

func searchKey(guildID, userID string) string {
	return guildID + ":" + userID
}

func (s *Searches) Save(session SearchSession) {
	if session.GuildID == "" || session.UserID == "" {
		return
	}
	session.CreatedAt = s.now().UTC()
	session.Results = append([]Track(nil), session.Results...)

	s.mu.Lock()
	s.data[searchKey(session.GuildID, session.UserID)] = session
	s.mu.Unlock()
}

func (s *Searches) Get(guildID, userID string) (SearchSession, bool) {
	s.mu.RLock()
	session, ok := s.data[searchKey(guildID, userID)]
	s.mu.RUnlock()
	if !ok {
		return SearchSession{}, false
	}
	if s.now().Sub(session.CreatedAt) > s.ttl {
		s.Delete(guildID, userID)
		return SearchSession{}, false
	}
	return session, true
}

// Pick returns result index (0-based) and closes the session.
func (s *Searches) Pick(guildID, userID string, index int) (Track, error) {
	session, ok := s.Get(guildID, userID)
	if !ok || len(session.Results) == 0 {
		return Track{}, ErrSearchExpired
	}
	if index < 0 || index >= len(session.Results) {
		return Track{}, fmt.Errorf("invalid selection %d, allowed: 1-%d", index+1, len(session.Results))
	}

	s.Delete(guildID, userID)
	return session.Results[index], nil
}

func (s *Searches) Delete(guildID, userID string) {
	s.mu.Lock()
	delete(s.data, searchKey(guildID, userID))
	s.mu.Unlock()
}

// Purge drops every session belonging to guildID.
func (s *Searches) Purge(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, session := range s.data {
		if session.GuildID == guildID {
			delete(s.data, key)
		}
	}
}
