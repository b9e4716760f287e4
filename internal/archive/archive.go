// Package archive writes an audit trail of threat assessments, routing
// decisions, and COP snapshots to PostgreSQL. The archive is write-only
// from the engine's perspective; the in-memory picture is never rebuilt
// from it.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/api/schemas"
)

// DBPool abstracts pgxpool.Pool so tests can run against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Archive persists audit records.
type Archive struct {
	pool DBPool
	log  *zap.Logger
}

// New creates an archive and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Archive, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Archive{
		pool: pool,
		log:  logger.Named("archive"),
	}, nil
}

// RecordAssessment stores one threat assessment together with the messages
// it produced, in a single transaction.
func (a *Archive) RecordAssessment(ctx context.Context, assessment schemas.ThreatAssessment, messages []schemas.OutgoingMessage) error {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			a.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	distances, err := json.Marshal(assessment.DistancesKm)
	if err != nil {
		return fmt.Errorf("failed to marshal distances: %w", err)
	}
	affected, err := json.Marshal(assessment.AffectedEntities)
	if err != nil {
		return fmt.Errorf("failed to marshal affected entities: %w", err)
	}

	const sqlAssessment = `
        INSERT INTO threat_assessments (assessment_id, threat_level, threat_source_id, affected_entities, reasoning, confidence, threat_score, distances_km, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (assessment_id) DO NOTHING;
    `
	if _, err := tx.Exec(ctx, sqlAssessment,
		assessment.AssessmentID, string(assessment.ThreatLevel), assessment.ThreatSourceID,
		affected, assessment.Reasoning, assessment.Confidence,
		assessment.ThreatScore, distances, assessment.Timestamp.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert assessment %s: %w", assessment.AssessmentID, err)
	}

	if len(messages) > 0 {
		if err := a.recordMessages(ctx, tx, assessment.AssessmentID, messages); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (a *Archive) recordMessages(ctx context.Context, tx pgx.Tx, assessmentID string, messages []schemas.OutgoingMessage) error {
	rows := make([][]interface{}, len(messages))
	for i, m := range messages {
		rows[i] = []interface{}{
			m.MessageID, assessmentID, m.DecisionID, m.RecipientID,
			string(m.FormatType), m.Content, m.Timestamp.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"outgoing_messages"},
		[]string{"message_id", "assessment_id", "decision_id", "recipient_id", "format_type", "content", "sent_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy outgoing messages: %w", err)
	}
	if int(copyCount) != len(messages) {
		return fmt.Errorf("mismatch in copied message count: expected %d, got %d", len(messages), copyCount)
	}
	return nil
}

// SnapshotCOP stores the current picture as a batch of per-entity upserts
// under one generation number.
func (a *Archive) SnapshotCOP(ctx context.Context, snapshot schemas.COPSnapshot) error {
	if len(snapshot.Entities) == 0 {
		return nil
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			a.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := a.upsertEntities(ctx, tx, snapshot); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// upsertEntities queues the snapshot entities as one batch. The batch
// results are closed before the caller commits.
func (a *Archive) upsertEntities(ctx context.Context, tx pgx.Tx, snapshot schemas.COPSnapshot) error {
	const sqlEntity = `
        INSERT INTO cop_entities (entity_id, generation, entity_type, classification, information_classification, confidence, record, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (entity_id) DO UPDATE SET
            generation = EXCLUDED.generation,
            entity_type = EXCLUDED.entity_type,
            classification = EXCLUDED.classification,
            information_classification = EXCLUDED.information_classification,
            confidence = EXCLUDED.confidence,
            record = EXCLUDED.record,
            updated_at = EXCLUDED.updated_at;
    `

	ids := make([]string, 0, len(snapshot.Entities))
	for id := range snapshot.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, id := range ids {
		e := snapshot.Entities[id]
		record, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entity %s: %w", e.EntityID, err)
		}
		batch.Queue(sqlEntity, e.EntityID, snapshot.Generation, e.EntityType,
			string(e.Classification), string(e.InfoClassification), e.Confidence, record, now)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()

	for i, id := range ids {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to execute batch upsert for entity %s (index %d): %w", id, i, err)
		}
	}
	return nil
}
