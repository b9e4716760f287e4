// Package cop holds the Common Operational Picture: the authoritative
// entity_id to EntityCOP map, its atomic merge-and-upsert write path, and
// the one-time recipient bootstrap.
package cop

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/fusion"
)

// Syncer pushes changed entities to the external visualization service.
// Calls are best-effort: failures are logged and never roll back the COP.
type Syncer interface {
	SyncEntities(ctx context.Context, entities []schemas.EntityCOP) error
}

// Store is the single shared mutable state of the engine. All writes run
// under one mutex so that merge decision plus upsert is atomic per entity;
// external calls never happen while the lock is held.
type Store struct {
	mu         sync.RWMutex
	entities   map[string]schemas.EntityCOP
	generation int64

	matcher fusion.Matcher
	syncer  Syncer
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore builds an empty picture. syncer may be nil to disable
// visualization sync.
func NewStore(matcher fusion.Matcher, syncer Syncer, logger *zap.Logger) *Store {
	return &Store{
		entities: make(map[string]schemas.EntityCOP),
		matcher:  matcher,
		syncer:   syncer,
		logger:   logger.Named("cop_store"),
		now:      time.Now,
	}
}

// Get returns a copy of the entity with the given id.
func (s *Store) Get(entityID string) (schemas.EntityCOP, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityID]
	if !ok {
		return schemas.EntityCOP{}, false
	}
	return e.Clone(), true
}

// All returns a copy of every entity in the picture.
func (s *Store) All() []schemas.EntityCOP {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schemas.EntityCOP, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.Clone())
	}
	return out
}

// Generation returns the monotonic write counter. Observers compare
// generations to detect change.
func (s *Store) Generation() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Snapshot returns a point-in-time copy of the whole picture.
func (s *Store) Snapshot() schemas.COPSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := schemas.COPSnapshot{
		Generation: s.generation,
		TakenAt:    s.now().UTC(),
		Entities:   make(map[string]schemas.EntityCOP, len(s.entities)),
	}
	for id, e := range s.entities {
		snap.Entities[id] = e.Clone()
	}
	return snap
}

// Ingest runs the fusion stage for each incoming entity and applies the
// result to the picture: a matching track is merged in place, anything else
// is inserted as a new track. The merge decision and the upsert for one
// entity form a single critical section. It returns the records as
// upserted, then fires a best-effort sync outside the lock.
func (s *Store) Ingest(ctx context.Context, incoming []schemas.EntityCOP) []schemas.EntityCOP {
	changed := make([]schemas.EntityCOP, 0, len(incoming))

	s.mu.Lock()
	for _, in := range incoming {
		if existing, ok := s.matcher.FindDuplicate(in, s.entities); ok {
			merged := fusion.Merge(existing, in)
			s.entities[merged.EntityID] = merged
			changed = append(changed, merged.Clone())
			s.logger.Debug("Merged duplicate report into existing track",
				zap.String("entity_id", merged.EntityID),
				zap.String("incoming_id", in.EntityID),
				zap.Float64("confidence", merged.Confidence),
			)
			continue
		}
		s.entities[in.EntityID] = in.Clone()
		changed = append(changed, in.Clone())
	}
	if len(changed) > 0 {
		s.generation++
	}
	s.mu.Unlock()

	s.syncChanged(ctx, changed)
	return changed
}

// Upsert replaces-or-inserts entities by id without fusion. Idempotent per
// key.
func (s *Store) Upsert(ctx context.Context, entities []schemas.EntityCOP) {
	s.mu.Lock()
	for _, e := range entities {
		s.entities[e.EntityID] = e.Clone()
	}
	if len(entities) > 0 {
		s.generation++
	}
	s.mu.Unlock()

	s.syncChanged(ctx, entities)
}

// syncChanged pushes changed entities to the visualization service. Never
// called with the store lock held; failures are logged and swallowed.
func (s *Store) syncChanged(ctx context.Context, changed []schemas.EntityCOP) {
	if s.syncer == nil || len(changed) == 0 {
		return
	}
	if err := s.syncer.SyncEntities(ctx, changed); err != nil {
		s.logger.Warn("Visualization sync failed; COP state unaffected",
			zap.Int("entities", len(changed)),
			zap.Error(err),
		)
	}
}

// BootstrapRecipients materializes the recipient roster into the picture as
// synthetic friendly entities so distance math treats recipients uniformly
// as positions. The whole check-sentinel-then-insert sequence is one
// critical section, so it is idempotent and safe to call every run.
// Recipients without a static location are skipped and counted. Returns
// (inserted, skipped).
func (s *Store) BootstrapRecipients(recipients []schemas.RecipientInfo) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entities {
		if e.HasSensor(schemas.BootstrapSensorTag) {
			s.logger.Debug("Recipient roster already materialized; skipping bootstrap")
			return 0, 0
		}
	}

	inserted, skipped := 0, 0
	for _, r := range recipients {
		if r.Location == nil {
			skipped++
			continue
		}
		s.entities[r.RecipientID] = schemas.EntityCOP{
			EntityID:           r.RecipientID,
			EntityType:         "base",
			Location:           *r.Location,
			Timestamp:          s.now().UTC(),
			Classification:     schemas.ClassFriendly,
			InfoClassification: schemas.InfoSecret,
			Confidence:         1.0,
			SourceSensors:      []string{schemas.BootstrapSensorTag},
			Metadata: map[string]any{
				"operational_role": r.OperationalRole,
			},
		}
		inserted++
	}
	if inserted > 0 {
		s.generation++
	}

	s.logger.Info("Recipient roster materialized into COP",
		zap.Int("inserted", inserted),
		zap.Int("skipped_no_location", skipped),
	)
	return inserted, skipped
}
