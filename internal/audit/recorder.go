package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bhadresh-123/phicore/internal/alert"
	"github.com/bhadresh-123/phicore/internal/model"
	"github.com/bhadresh-123/phicore/internal/repository"
	"github.com/bhadresh-123/phicore/pkg/messaging"
	"github.com/bhadresh-123/phicore/pkg/metrics"
)

// Recorder appends immutable, retention-stamped access records. A failed
// append is retried once, then spilled to the fallback channel, then
// escalated as an operational compliance incident. None of those outcomes
// ever propagate an error to the business operation that triggered the
// record.
type Recorder struct {
	store    repository.AuditRepository
	fallback messaging.Broker
	notifier alert.Notifier
	logger   *zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRecorder(store repository.AuditRepository, fallback messaging.Broker, notifier alert.Notifier, logger *zerolog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		store:    store,
		fallback: fallback,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Record stamps and persists one audit entry. The write is not cancellable:
// an access that happened must be logged even if the caller's request
// context is already gone.
func (r *Recorder) Record(ctx context.Context, entry *model.AuditLogEntry) {
	ctx = context.WithoutCancel(ctx)
	r.stamp(entry)

	err := r.store.Append(ctx, entry)
	if err == nil {
		r.observe("ok")
		return
	}

	r.logger.Warn().Err(err).Str("entry_id", entry.ID.String()).Msg("audit append failed, retrying")
	if err = r.store.Append(ctx, entry); err == nil {
		r.observe("retried")
		return
	}

	r.logger.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("audit append failed after retry, spilling to fallback channel")
	if r.fallback != nil {
		if pubErr := r.fallback.Publish(ctx, messaging.ChannelAuditFallback, entry); pubErr == nil {
			r.observe("fallback")
			return
		} else {
			err = fmt.Errorf("append: %w; fallback publish: %w", err, pubErr)
		}
	}

	r.escalate(ctx, entry, err)
}

// stamp fills the fields the recorder owns: identity, timestamps, retention
// expiry and, when the gate left them unset, the security classification
// and risk score.
func (r *Recorder) stamp(entry *model.AuditLogEntry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	entry.RetentionExpiresAt = entry.CreatedAt.AddDate(model.RetentionPeriodYears, 0, 0)

	if entry.SecurityLevel == "" {
		entry.SecurityLevel = classify(entry)
	}
	if entry.RiskScore == 0 {
		entry.RiskScore = riskScore(entry)
	}
	// An entry is non-compliant only when the operation failed for a reason
	// other than a clean authorization denial, meaning the PHI state at the
	// time of failure is uncertain.
	entry.Compliant = entry.Success || entry.DenialReason != ""
}

func classify(entry *model.AuditLogEntry) model.SecurityLevel {
	switch {
	case entry.Action == model.AuditActionPHIAccess || entry.PHIFieldCount > 0:
		return model.SecurityLevelPHIProtected
	case entry.ResourceType == "" && entry.Action != model.AuditActionLogin:
		return model.SecurityLevelAdmin
	default:
		return model.SecurityLevelStandard
	}
}

func riskScore(entry *model.AuditLogEntry) int {
	score := 0
	switch entry.Action {
	case model.AuditActionRead, model.AuditActionLogin:
		score = 10
	case model.AuditActionCreate:
		score = 20
	case model.AuditActionUpdate, model.AuditActionPHIAccess:
		score = 30
	case model.AuditActionDelete:
		score = 40
	}
	score += entry.PHIFieldCount * 2
	if !entry.Success {
		score += 25
	}
	if score > 100 {
		score = 100
	}
	return score
}

// escalate is the end of the line: the access happened and could not be
// logged anywhere durable. That is a compliance incident, not a transient
// bug.
func (r *Recorder) escalate(ctx context.Context, entry *model.AuditLogEntry, err error) {
	r.observe("escalated")
	if r.metrics != nil {
		r.metrics.AuditEscalations.Inc()
	}

	r.logger.Error().
		Err(err).
		Str("entry_id", entry.ID.String()).
		Str("action", string(entry.Action)).
		Str("resource_type", string(entry.ResourceType)).
		Msg("UNAUDITED PHI ACCESS: audit write failed on all channels")

	if r.notifier == nil {
		return
	}
	body := fmt.Sprintf(
		"Audit entry %s (action=%s resource_type=%s phi_fields=%d) could not be persisted: %v",
		entry.ID, entry.Action, entry.ResourceType, entry.PHIFieldCount, err,
	)
	if notifyErr := r.notifier.Notify(ctx, "audit write failure", body); notifyErr != nil {
		r.logger.Error().Err(notifyErr).Msg("failed to deliver audit escalation alert")
	}
}

func (r *Recorder) observe(status string) {
	if r.metrics != nil {
		r.metrics.AuditWrites.WithLabelValues(status).Inc()
	}
}
