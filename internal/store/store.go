// Transcodenag - Jellyfin Transcode Nag Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transcodenag

// Package store implements the durable nag event log.
//
// The log is a single JSON document of NagEvent records, rewritten in full on
// every mutation. All operations - reads included - serialize through one
// mutex, because load -> mutate -> prune -> save is not atomic against the
// backing file and concurrent playback/session triggers are expected.
//
// Failure semantics: a load failure degrades to an empty log, a save failure
// keeps the in-memory append and is reported through logging and metrics.
// Neither is ever surfaced to a trigger caller; losing a nag record must not
// break playback handling.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/transcodenag/internal/logging"
	"github.com/tomtom215/transcodenag/internal/metrics"
	"github.com/tomtom215/transcodenag/internal/models"
)

const (
	dataFileName = "events.json"
	lockFileName = "events.lock"

	// RetentionDays bounds the log: every append prunes events older than
	// this horizon relative to the append's timestamp.
	RetentionDays = 30
)

// EventStore is the file-backed event log. Construct with New; the zero value
// is not usable.
type EventStore struct {
	path     string
	fileLock *flock.Flock
	log      zerolog.Logger

	// now is replaceable in tests.
	now func() time.Time

	mu     sync.Mutex
	loaded bool
	events []models.NagEvent
}

// New creates an event store rooted at dataDir, creating the directory if
// needed. An exclusive OS-level lock file guards against a second service
// instance interleaving whole-file rewrites; holding it is a hard startup
// requirement, unlike the soft I/O failure handling of the log itself.
func New(dataDir string) (*EventStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	fileLock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire event log lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("event log in %s is locked by another instance", dataDir)
	}

	return &EventStore{
		path:     filepath.Join(dataDir, dataFileName),
		fileLock: fileLock,
		log:      logging.With().Str("component", "store").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases the OS-level lock. The in-memory state is already persisted
// after every mutation, so there is nothing to flush.
func (s *EventStore) Close() error {
	return s.fileLock.Unlock()
}

// Append adds an event, applies the credit invariants, prunes expired events
// and persists the result, all as one logical transaction.
//
// Persistence failures are logged and counted but deliberately not returned:
// the append stays effective in memory and only a process restart can lose
// it.
func (s *EventStore) Append(event models.NagEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoadedLocked()
	s.applyCreditRulesLocked(&event)
	s.events = append(s.events, event)
	s.pruneLocked(event.Timestamp)
	s.saveLocked()

	metrics.EventsAppended.WithLabelValues(event.Kind.String()).Inc()
}

// applyCreditRulesLocked enforces the improvement-credit invariants before an
// append:
//   - a new credit supersedes any prior credit for the user (at most one
//     credit per user, last write wins)
//   - a new bad transcode invalidates the user's existing credit; a credit is
//     only meaningful until the next regression
func (s *EventStore) applyCreditRulesLocked(incoming *models.NagEvent) {
	if incoming.Kind != models.EventImprovementCredit && incoming.Kind != models.EventBadTranscode {
		return
	}

	kept := s.events[:0]
	for i := range s.events {
		e := s.events[i]
		if e.UserID == incoming.UserID && e.Kind == models.EventImprovementCredit {
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
}

// pruneLocked drops events older than the retention horizon relative to now.
// Pruning is idempotent and never touches events younger than the horizon.
func (s *EventStore) pruneLocked(now time.Time) {
	cutoff := now.AddDate(0, 0, -RetentionDays)

	kept := s.events[:0]
	pruned := 0
	for i := range s.events {
		if s.events[i].Timestamp.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, s.events[i])
	}
	s.events = kept

	if pruned > 0 {
		metrics.EventsPruned.Add(float64(pruned))
		s.log.Debug().Int("pruned", pruned).Msg("Pruned expired events")
	}
}

// QueryUser returns the user's events within the trailing window, most recent
// first. It does not mutate state and does not prune.
func (s *EventStore) QueryUser(userID string, windowDays int) []models.NagEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoadedLocked()
	cutoff := s.now().AddDate(0, 0, -windowDays)

	var result []models.NagEvent
	for i := range s.events {
		e := s.events[i]
		if e.UserID == userID && !e.Timestamp.Before(cutoff) {
			result = append(result, e)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result
}

// Status computes the user's derived nag status over the trailing window.
// Reads go through the same mutex as mutations so a concurrent append can
// never expose a half-applied collection.
func (s *EventStore) Status(userID string, windowDays int) models.UserNagStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ensureLoadedLocked()
	return ProjectStatus(s.events, userID, windowDays, s.now())
}

// ensureLoadedLocked lazily reads the backing file on first access. Any read
// or decode failure degrades to an empty log: better to restart nag history
// than to take playback handling down with it.
func (s *EventStore) ensureLoadedLocked() {
	if s.loaded {
		return
	}
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			metrics.StoreLoadErrors.Inc()
			s.log.Error().Err(err).Str("path", s.path).Msg("Failed to load event log, starting empty")
		}
		return
	}

	var events []models.NagEvent
	if err := json.Unmarshal(data, &events); err != nil {
		metrics.StoreLoadErrors.Inc()
		s.log.Error().Err(err).Str("path", s.path).Msg("Failed to decode event log, starting empty")
		return
	}

	s.events = events
}

// saveLocked rewrites the full document. Write-to-temp plus rename keeps a
// crashed write from truncating the previous good document.
func (s *EventStore) saveLocked() {
	data, err := json.MarshalIndent(s.events, "", "  ")
	if err != nil {
		metrics.StoreSaveErrors.Inc()
		s.log.Error().Err(err).Str("path", s.path).Msg("Failed to encode event log")
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		metrics.StoreSaveErrors.Inc()
		s.log.Error().Err(err).Str("path", tmp).Msg("Failed to write event log")
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		metrics.StoreSaveErrors.Inc()
		s.log.Error().Err(err).Str("path", s.path).Msg("Failed to replace event log")
	}
}
