// Package engine runs the per-event pipeline: validate, fuse into the COP,
// assess threats, route, publish. Events run concurrently; the COP store is
// the single serialization point, and no reasoner or I/O call ever happens
// under its lock.
package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/cop"
	"github.com/xkilldash9x/tifda/internal/dissemination"
	"github.com/xkilldash9x/tifda/internal/threat"
	"github.com/xkilldash9x/tifda/internal/validate"
)

// defaultMaxConcurrent bounds how many entity pipelines run at once.
const defaultMaxConcurrent = 8

// Publisher delivers one routed message to its recipient.
type Publisher interface {
	Report(ctx context.Context, msg schemas.OutgoingMessage) error
}

// Archiver records assessments and their outbound messages for audit.
type Archiver interface {
	RecordAssessment(ctx context.Context, assessment schemas.ThreatAssessment, messages []schemas.OutgoingMessage) error
	SnapshotCOP(ctx context.Context, snapshot schemas.COPSnapshot) error
}

// Decision is the review verdict for one assessment.
type Decision struct {
	Approved          bool
	EmergencyOverride bool
}

// Approver is the human review gate between threat assessment and
// dissemination. The default approver releases everything without override.
type Approver interface {
	Approve(ctx context.Context, assessment schemas.ThreatAssessment) (Decision, error)
}

type autoApprover struct{}

func (autoApprover) Approve(context.Context, schemas.ThreatAssessment) (Decision, error) {
	return Decision{Approved: true}, nil
}

// Summary aggregates one batch run.
type Summary struct {
	Accepted    int
	Rejected    int
	Assessments []schemas.ThreatAssessment
	Published   int
	Routing     dissemination.Stats
	// PublishFailures counts messages that routed but failed delivery.
	PublishFailures int
}

// Engine wires the pipeline stages together.
type Engine struct {
	normalizer *validate.Normalizer
	store      *cop.Store
	evaluator  *threat.Evaluator
	router     *dissemination.Router
	publisher  Publisher
	archiver   Archiver
	approver   Approver
	logger     *zap.Logger

	maxConcurrent int
}

// Option tweaks engine construction.
type Option func(*Engine)

// WithArchiver attaches the audit sink.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) { e.archiver = a }
}

// WithApprover replaces the auto-approving review gate.
func WithApprover(a Approver) Option {
	return func(e *Engine) { e.approver = a }
}

// WithMaxConcurrent bounds the event-level parallelism.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = n
		}
	}
}

// New builds an Engine. publisher may be nil to run route-only (dry-run)
// pipelines.
func New(
	normalizer *validate.Normalizer,
	store *cop.Store,
	evaluator *threat.Evaluator,
	router *dissemination.Router,
	publisher Publisher,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		normalizer:    normalizer,
		store:         store,
		evaluator:     evaluator,
		router:        router,
		publisher:     publisher,
		approver:      autoApprover{},
		logger:        logger.Named("engine"),
		maxConcurrent: defaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bootstrap materializes the recipient roster into the COP. Safe to call on
// every start.
func (e *Engine) Bootstrap(recipients []schemas.RecipientInfo) {
	inserted, skipped := e.store.BootstrapRecipients(recipients)
	e.logger.Info("Engine bootstrap complete",
		zap.Int("recipients_inserted", inserted),
		zap.Int("recipients_skipped", skipped),
	)
}

// ProcessBatch runs one sensor batch through the full pipeline. Item-level
// validation failures drop the item, never the batch. The returned error
// covers pipeline failures only; blocked recipients and publish failures
// are reported through the Summary.
func (e *Engine) ProcessBatch(ctx context.Context, sensorID string, reports []schemas.EntityCOP) (Summary, error) {
	var summary Summary

	normalized, itemErrs := e.normalizer.NormalizeBatch(sensorID, reports)
	summary.Accepted = len(normalized)
	summary.Rejected = len(itemErrs)
	for _, ie := range itemErrs {
		e.logger.Warn("Report rejected by validation",
			zap.String("sensor_id", sensorID),
			zap.String("entity_id", ie.EntityID),
			zap.Error(ie.Err),
		)
	}
	if len(normalized) == 0 {
		return summary, nil
	}

	changed := e.store.Ingest(ctx, normalized)

	// Snapshot once; every evaluation sees the same picture.
	picture := e.store.All()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)

	for _, entity := range changed {
		g.Go(func() error {
			result, err := e.processEntity(gctx, entity, picture)
			if err != nil {
				return err
			}
			if result == nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			summary.Assessments = append(summary.Assessments, result.assessment)
			summary.Published += result.published
			summary.PublishFailures += result.publishFailures
			summary.Routing.Emitted += result.stats.Emitted
			summary.Routing.BlockedThreatLevel += result.stats.BlockedThreatLevel
			summary.Routing.BlockedClearance += result.stats.BlockedClearance
			summary.Routing.BlockedNeedToKnow += result.stats.BlockedNeedToKnow
			summary.Routing.BlockedDistance += result.stats.BlockedDistance
			summary.Routing.SecurityViolations += result.stats.SecurityViolations
			return nil
		})
	}

	err := g.Wait()
	return summary, err
}

type entityResult struct {
	assessment      schemas.ThreatAssessment
	stats           dissemination.Stats
	published       int
	publishFailures int
}

// processEntity runs one linear assess-approve-route-publish sequence.
func (e *Engine) processEntity(ctx context.Context, entity schemas.EntityCOP, picture []schemas.EntityCOP) (*entityResult, error) {
	assessment, err := e.evaluator.Evaluate(ctx, entity, picture)
	if err != nil {
		return nil, err
	}
	if assessment == nil || assessment.ThreatLevel == schemas.ThreatNone {
		return nil, nil
	}

	decision, err := e.approver.Approve(ctx, *assessment)
	if err != nil {
		return nil, err
	}
	if !decision.Approved {
		e.logger.Info("Assessment withheld by review",
			zap.String("assessment_id", assessment.AssessmentID),
			zap.String("threat_level", string(assessment.ThreatLevel)),
		)
		return nil, nil
	}

	messages, stats, routeErr := e.router.Route(*assessment, decision.EmergencyOverride)
	if routeErr != nil {
		// Security violations already blocked the offending recipients; the
		// rest of the roster still gets its messages.
		e.logger.Error("Routing reported security violations",
			zap.String("assessment_id", assessment.AssessmentID),
			zap.Error(routeErr),
		)
	}

	result := &entityResult{assessment: *assessment, stats: stats}
	for _, msg := range messages {
		if e.publisher == nil {
			continue
		}
		if err := e.publisher.Report(ctx, msg); err != nil {
			result.publishFailures++
			e.logger.Error("Failed to publish dissemination report",
				zap.String("message_id", msg.MessageID),
				zap.String("recipient_id", msg.RecipientID),
				zap.Error(err),
			)
			continue
		}
		result.published++
	}

	if e.archiver != nil {
		if err := e.archiver.RecordAssessment(ctx, *assessment, messages); err != nil {
			e.logger.Warn("Audit archive write failed",
				zap.String("assessment_id", assessment.AssessmentID),
				zap.Error(err),
			)
		}
	}
	return result, nil
}

// ArchiveSnapshot records the current picture to the audit archive. No-op
// without an archiver.
func (e *Engine) ArchiveSnapshot(ctx context.Context) error {
	if e.archiver == nil {
		return nil
	}
	return e.archiver.SnapshotCOP(ctx, e.store.Snapshot())
}
