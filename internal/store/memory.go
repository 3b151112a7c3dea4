// Package store — in-memory Store implementation.
// Used when no SQL backend is configured (local dev, tests). Supports
// file-based snapshot persistence so sessions survive restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raincheck/raincheck/pkg/models"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Sessions map[string]*models.Session `json:"sessions"`
}

// MemoryStore implements Store with an in-memory map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session // key: session id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals background goroutines to stop

	// Session TTL — sessions idle longer than this are evicted.
	// Set via RAINCHECK_SESSION_TTL (Go duration string), default 24h,
	// zero keeps sessions forever.
	sessionTTL time.Duration
}

// NewMemoryStore creates a new in-memory store. If dataDir is non-empty,
// sessions are persisted to a JSON file in that directory; otherwise to
// ~/.raincheck/sessions.json.
func NewMemoryStore(dataDir string) *MemoryStore {
	sessionTTL := 24 * time.Hour
	if ttlStr := os.Getenv("RAINCHECK_SESSION_TTL"); ttlStr != "" {
		if parsed, err := time.ParseDuration(ttlStr); err == nil {
			sessionTTL = parsed
		} else {
			log.Warn().Str("value", ttlStr).Msg("Invalid RAINCHECK_SESSION_TTL, using default 24h")
		}
	}

	m := &MemoryStore{
		sessions:   make(map[string]*models.Session),
		saveCh:     make(chan struct{}, 1),
		doneCh:     make(chan struct{}),
		sessionTTL: sessionTTL,
	}

	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".raincheck")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "sessions.json")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	go m.evictionLoop()

	log.Info().
		Str("session_ttl", sessionTTL.String()).
		Str("snapshot", m.snapshotPath).
		Msg("Memory store configured")

	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// evictionLoop periodically removes sessions idle longer than sessionTTL.
func (m *MemoryStore) evictionLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.doneCh:
			return
		case <-ticker.C:
			m.evictExpiredSessions()
		}
	}
}

func (m *MemoryStore) evictExpiredSessions() {
	if m.sessionTTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.sessionTTL)

	m.mu.Lock()
	var evicted int
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	m.mu.Unlock()

	if evicted > 0 {
		log.Info().Int("evicted", evicted).Str("ttl", m.sessionTTL.String()).Msg("Evicted idle sessions")
		m.requestSave()
	}
}

// saveSnapshot persists all sessions to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	data, err := json.MarshalIndent(snapshot{Sessions: m.sessions}, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	// Write to temp file then rename for atomicity
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", tmp).Msg("Failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to rename snapshot")
		return
	}

	log.Debug().Str("path", m.snapshotPath).Msg("Snapshot saved")
}

// loadSnapshot reads sessions from disk on startup.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", m.snapshotPath).Msg("No snapshot file found, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", m.snapshotPath).Msg("Failed to read snapshot")
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Error().Err(err).Str("path", m.snapshotPath).Msg("Failed to parse snapshot, starting fresh")
		return
	}

	m.mu.Lock()
	if snap.Sessions != nil {
		m.sessions = snap.Sessions
	}
	m.mu.Unlock()

	log.Info().Int("sessions", len(snap.Sessions)).Str("path", m.snapshotPath).Msg("Snapshot loaded")
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// Close stops background goroutines and forces a final snapshot write.
// Safe to call multiple times (second call is a no-op).
func (m *MemoryStore) Close() error {
	select {
	case <-m.doneCh:
		// Already closed
		return nil
	default:
		close(m.doneCh)
	}

	// Force a final snapshot write so no in-flight data is lost
	if m.snapshotPath != "" {
		log.Info().Msg("Flushing final snapshot before shutdown...")
		m.saveSnapshot()
	}

	log.Info().Msg("Memory store closed")
	return nil
}

// ── Session CRUD ────────────────────────────────────────────

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "session", Key: id}
	}
	return s.Clone(), nil
}

func (m *MemoryStore) PutSession(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	m.sessions[session.ID] = session.Clone()
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{Entity: "session", Key: id}
	}
	delete(m.sessions, id)
	m.mu.Unlock()
	m.requestSave()
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	result := make([]models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, *s.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
