package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bhadresh-123/phicore/internal/audit"
	"github.com/bhadresh-123/phicore/internal/model"
	"github.com/bhadresh-123/phicore/internal/phi"
	"github.com/bhadresh-123/phicore/internal/repository"
	apperrors "github.com/bhadresh-123/phicore/pkg/errors"
	"github.com/bhadresh-123/phicore/pkg/metrics"
)

// Gate is the single choke point for every operation on a protected
// resource: authorize, transform PHI, persist, audit. Every call writes
// exactly one audit entry whether it grants, denies or fails internally.
// Denials and true absence surface identically as not-found so callers
// cannot probe for resource existence.
type Gate struct {
	resolver  *Resolver
	codec     *phi.Codec
	resources repository.ResourceRepository
	recorder  *audit.Recorder
	logger    *zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewGate(resolver *Resolver, codec *phi.Codec, resources repository.ResourceRepository, recorder *audit.Recorder, logger *zerolog.Logger, m *metrics.Metrics) *Gate {
	return &Gate{
		resolver:  resolver,
		codec:     codec,
		resources: resources,
		recorder:  recorder,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// ReadProtected fetches a resource, authorizes the caller for ViewPHI,
// decrypts the protected fields and derives the display age. The audit
// entry lists exactly the field names that were decrypted.
func (g *Gate) ReadProtected(ctx context.Context, resourceID, callerID uuid.UUID) (*model.ResourceView, error) {
	start := g.now()

	res, err := g.resources.FindByID(ctx, resourceID)
	if err != nil {
		return nil, g.finishMissing(ctx, model.AuditActionRead, resourceID, callerID, start, err)
	}

	decision, err := g.authorize(ctx, callerID, res, CapabilityViewPHI)
	if err != nil {
		return nil, g.finishInternal(ctx, model.AuditActionRead, res, callerID, start, err)
	}
	if !decision.Allowed {
		return nil, g.finishDenied(ctx, model.AuditActionRead, res, callerID, start, decision)
	}

	fields, err := g.codec.DecryptFields(res.Type, res.PHI)
	if err != nil {
		g.observeCodec("decrypt", "error")
		return nil, g.finishInternal(ctx, model.AuditActionRead, res, callerID, start, err)
	}
	g.observeCodec("decrypt", "ok")

	view := g.buildView(res, fields)

	entry := g.newEntry(ctx, model.AuditActionPHIAccess, res.OrganizationID, res.Type, &res.ID, callerID, start)
	entry.Success = true
	entry.FieldsAccessed = fieldNames(res.Type, fields)
	entry.PHIFieldCount = len(fields)
	entry.RequestMeta.Status = http.StatusOK
	g.finish(ctx, entry, "read")

	return view, nil
}

// WriteProtected creates or updates a protected resource. A nil resource ID
// means create (requiring CreateResource); otherwise the stored resource is
// fetched and updated under ModifyPHI. Supplied PHI fields are encrypted
// with their search hashes recomputed; an empty update value removes the
// stored field entirely. Nothing is persisted if any field fails to
// encrypt.
func (g *Gate) WriteProtected(ctx context.Context, res *model.ProtectedResource, updates model.PlaintextBag, callerID uuid.UUID) (*model.ResourceView, error) {
	if res == nil {
		return nil, apperrors.NewBadRequest("resource is required", nil)
	}
	if res.ID == uuid.Nil {
		return g.createProtected(ctx, res, updates, callerID)
	}
	return g.updateProtected(ctx, res.ID, updates, callerID)
}

func (g *Gate) createProtected(ctx context.Context, res *model.ProtectedResource, updates model.PlaintextBag, callerID uuid.UUID) (*model.ResourceView, error) {
	start := g.now()

	decision, err := g.authorize(ctx, callerID, res, CapabilityCreateResource)
	if err != nil {
		return nil, g.finishInternal(ctx, model.AuditActionCreate, res, callerID, start, err)
	}
	if !decision.Allowed {
		return nil, g.finishDenied(ctx, model.AuditActionCreate, res, callerID, start, decision)
	}

	if err := validateRequired(res.Type, updates); err != nil {
		g.auditOutcome(ctx, model.AuditActionCreate, res, callerID, start, false, "", http.StatusBadRequest)
		return nil, apperrors.NewBadRequest(err.Error(), err)
	}

	ebag, err := g.codec.EncryptFields(res.Type, updates)
	if err != nil {
		g.observeCodec("encrypt", "error")
		return nil, g.finishInternal(ctx, model.AuditActionCreate, res, callerID, start, err)
	}
	g.observeCodec("encrypt", "ok")

	res.ID = uuid.New()
	res.CreatedAt = g.now()
	res.UpdatedAt = res.CreatedAt
	res.PHI = ebag

	if err := g.resources.Create(ctx, res); err != nil {
		return nil, g.finishInternal(ctx, model.AuditActionCreate, res, callerID, start, err)
	}

	entry := g.newEntry(ctx, model.AuditActionCreate, res.OrganizationID, res.Type, &res.ID, callerID, start)
	entry.Success = true
	entry.FieldsAccessed = fieldNames(res.Type, updates)
	entry.PHIFieldCount = len(updates)
	entry.RequestMeta.Status = http.StatusCreated
	g.finish(ctx, entry, "create")

	return g.buildView(res, supplied(updates)), nil
}

func (g *Gate) updateProtected(ctx context.Context, resourceID uuid.UUID, updates model.PlaintextBag, callerID uuid.UUID) (*model.ResourceView, error) {
	start := g.now()

	res, err := g.resources.FindByID(ctx, resourceID)
	if err != nil {
		return nil, g.finishMissing(ctx, model.AuditActionUpdate, resourceID, callerID, start, err)
	}

	decision, err := g.authorize(ctx, callerID, res, CapabilityModifyPHI)
	if err != nil {
		return nil, g.finishInternal(ctx, model.AuditActionUpdate, res, callerID, start, err)
	}
	if !decision.Allowed {
		return nil, g.finishDenied(ctx, model.AuditActionUpdate, res, callerID, start, decision)
	}

	ebag, err := g.codec.EncryptFields(res.Type, updates)
	if err != nil {
		g.observeCodec("encrypt", "error")
		return nil, g.finishInternal(ctx, model.AuditActionUpdate, res, callerID, start, err)
	}
	g.observeCodec("encrypt", "ok")

	if res.PHI == nil {
		res.PHI = make(model.EncryptedBag, len(ebag))
	}
	for name, value := range updates {
		if value == "" {
			// Blanking a field removes its stored value and hash together.
			delete(res.PHI, name)
			continue
		}
		res.PHI[name] = ebag[name]
	}
	res.UpdatedAt = g.now()

	if err := g.resources.Update(ctx, res); err != nil {
		return nil, g.finishInternal(ctx, model.AuditActionUpdate, res, callerID, start, err)
	}

	entry := g.newEntry(ctx, model.AuditActionUpdate, res.OrganizationID, res.Type, &res.ID, callerID, start)
	entry.Success = true
	entry.FieldsAccessed = fieldNames(res.Type, updates)
	entry.PHIFieldCount = len(updates)
	entry.RequestMeta.Status = http.StatusOK
	g.finish(ctx, entry, "update")

	fields, err := g.codec.DecryptFields(res.Type, res.PHI)
	if err != nil {
		return nil, apperrors.NewCodec(err)
	}
	return g.buildView(res, fields), nil
}

// DeleteProtected soft-deletes a resource: the row is marked with the
// deleter and timestamp and never physically removed.
func (g *Gate) DeleteProtected(ctx context.Context, resourceID, callerID uuid.UUID) error {
	start := g.now()

	res, err := g.resources.FindByID(ctx, resourceID)
	if err != nil {
		return g.finishMissing(ctx, model.AuditActionDelete, resourceID, callerID, start, err)
	}

	decision, err := g.authorize(ctx, callerID, res, CapabilityModifyPHI)
	if err != nil {
		return g.finishInternal(ctx, model.AuditActionDelete, res, callerID, start, err)
	}
	if !decision.Allowed {
		return g.finishDenied(ctx, model.AuditActionDelete, res, callerID, start, decision)
	}

	if err := g.resources.SoftDelete(ctx, res.ID, callerID, g.now()); err != nil {
		return g.finishInternal(ctx, model.AuditActionDelete, res, callerID, start, err)
	}

	g.auditOutcome(ctx, model.AuditActionDelete, res, callerID, start, true, "", http.StatusOK)
	return nil
}

// SearchBy looks up resources by the search hash of one searchable field,
// then filters the results through per-result authorization. Denied results
// are silently dropped. One audit entry covers the whole search.
func (g *Gate) SearchBy(ctx context.Context, rt model.ResourceType, field model.FieldName, query string, callerID uuid.UUID) ([]*model.ResourceView, error) {
	start := g.now()

	d, ok := phi.Descriptor(rt, field)
	if !ok || !d.Hashed {
		return nil, apperrors.NewBadRequest(fmt.Sprintf("field %q is not searchable", field), nil)
	}

	hash := g.codec.SearchHash(query)
	if hash == nil {
		return nil, apperrors.NewBadRequest("search query is empty", nil)
	}

	candidates, err := g.resources.FindBySearchHash(ctx, rt, field, *hash)
	if err != nil {
		res := &model.ProtectedResource{Type: rt}
		return nil, g.finishInternal(ctx, model.AuditActionRead, res, callerID, start, err)
	}

	var views []*model.ResourceView
	phiCount := 0
	orgID := uuid.Nil
	for _, res := range candidates {
		decision, err := g.authorize(ctx, callerID, res, CapabilityViewPHI)
		if err != nil || !decision.Allowed {
			continue
		}
		fields, err := g.codec.DecryptFields(res.Type, res.PHI)
		if err != nil {
			g.observeCodec("decrypt", "error")
			return nil, g.finishInternal(ctx, model.AuditActionRead, res, callerID, start, err)
		}
		g.observeCodec("decrypt", "ok")
		views = append(views, g.buildView(res, fields))
		phiCount += len(fields)
		orgID = res.OrganizationID
	}

	entry := g.newEntry(ctx, model.AuditActionPHIAccess, orgID, rt, nil, callerID, start)
	entry.Success = true
	entry.FieldsAccessed = model.StringList{string(field)}
	entry.PHIFieldCount = phiCount
	entry.RequestMeta.Status = http.StatusOK
	g.finish(ctx, entry, "search")

	return views, nil
}

// Authorize exposes the bare authorization decision for callers that gate
// non-PHI behavior (calendar display, staff admin screens) on it.
func (g *Gate) Authorize(ctx context.Context, callerID uuid.UUID, res *model.ProtectedResource, cap Capability) (Decision, error) {
	return g.authorize(ctx, callerID, res, cap)
}

func (g *Gate) authorize(ctx context.Context, callerID uuid.UUID, res *model.ProtectedResource, cap Capability) (Decision, error) {
	decision, err := g.resolver.Authorize(ctx, callerID, res, cap)
	if g.metrics != nil {
		outcome := "granted"
		switch {
		case err != nil:
			outcome = "error"
		case !decision.Allowed:
			outcome = "denied"
		}
		g.metrics.AccessDecisions.WithLabelValues(cap.String(), outcome).Inc()
	}
	return decision, err
}

// finishDenied audits a denial and returns the uniform not-found error. The
// audit entry carries the real reason; the caller never sees it.
func (g *Gate) finishDenied(ctx context.Context, action model.AuditAction, res *model.ProtectedResource, callerID uuid.UUID, start time.Time, decision Decision) error {
	g.auditOutcome(ctx, action, res, callerID, start, false, decision.Reason, http.StatusNotFound)
	g.logger.Info().
		Str("caller_id", callerID.String()).
		Str("resource_id", res.ID.String()).
		Str("reason", string(decision.Reason)).
		Msg("access denied")
	return apperrors.NewNotFound(string(res.Type), nil)
}

// finishMissing audits an attempt against a resource that could not be
// fetched. A true not-found and a repository failure are audited either
// way; the organization is unknown so the entry carries the nil org id.
func (g *Gate) finishMissing(ctx context.Context, action model.AuditAction, resourceID, callerID uuid.UUID, start time.Time, err error) error {
	entry := g.newEntry(ctx, action, uuid.Nil, "", &resourceID, callerID, start)
	entry.Success = false
	entry.RequestMeta.Status = http.StatusNotFound
	if isNoRows(err) {
		entry.DenialReason = "NOT_FOUND"
	}
	g.finish(ctx, entry, strings.ToLower(string(action)))

	if isNoRows(err) {
		return apperrors.NewNotFound("resource", err)
	}
	return apperrors.NewInternal(err)
}

func (g *Gate) finishInternal(ctx context.Context, action model.AuditAction, res *model.ProtectedResource, callerID uuid.UUID, start time.Time, err error) error {
	g.auditOutcome(ctx, action, res, callerID, start, false, "", http.StatusInternalServerError)
	g.logger.Error().Err(err).
		Str("caller_id", callerID.String()).
		Str("resource_id", res.ID.String()).
		Msg("protected operation failed")
	if errors.Is(err, apperrors.ErrPHICodec) {
		return apperrors.NewCodec(err)
	}
	return apperrors.NewInternal(err)
}

func (g *Gate) auditOutcome(ctx context.Context, action model.AuditAction, res *model.ProtectedResource, callerID uuid.UUID, start time.Time, success bool, reason ReasonCode, status int) {
	var resID *uuid.UUID
	if res.ID != uuid.Nil {
		id := res.ID
		resID = &id
	}
	entry := g.newEntry(ctx, action, res.OrganizationID, res.Type, resID, callerID, start)
	entry.Success = success
	entry.DenialReason = string(reason)
	entry.RequestMeta.Status = status
	g.finish(ctx, entry, strings.ToLower(string(action)))
}

func (g *Gate) newEntry(ctx context.Context, action model.AuditAction, orgID uuid.UUID, rt model.ResourceType, resourceID *uuid.UUID, callerID uuid.UUID, start time.Time) *model.AuditLogEntry {
	meta := RequestMetaFrom(ctx)
	meta.LatencyMillis = g.now().Sub(start).Milliseconds()

	var actor *uuid.UUID
	if callerID != uuid.Nil {
		id := callerID
		actor = &id
	}

	return &model.AuditLogEntry{
		ActorID:        actor,
		OrganizationID: orgID,
		Action:         action,
		ResourceType:   rt,
		ResourceID:     resourceID,
		FieldsAccessed: model.StringList{},
		RequestMeta:    meta,
	}
}

// finish writes the audit entry and observes gate latency. The recorder
// never returns an error; audit failures are its problem, not the caller's.
func (g *Gate) finish(ctx context.Context, entry *model.AuditLogEntry, op string) {
	g.recorder.Record(ctx, entry)
	if g.metrics != nil {
		g.metrics.GateLatency.WithLabelValues(op).Observe(float64(entry.RequestMeta.LatencyMillis) / 1000)
	}
}

func (g *Gate) observeCodec(op, status string) {
	if g.metrics != nil {
		g.metrics.CodecOperations.WithLabelValues(op, status).Inc()
	}
}

func (g *Gate) buildView(res *model.ProtectedResource, fields model.PlaintextBag) *model.ResourceView {
	view := &model.ResourceView{
		ID:               res.ID,
		OrganizationID:   res.OrganizationID,
		Type:             res.Type,
		PrimaryStaffID:   res.PrimaryStaffID,
		AssignedStaffIDs: res.AssignedStaffIDs,
		Status:           res.Status,
		BillingAmount:    res.BillingAmount,
		Fields:           fields,
	}
	if dob, ok := fields[phi.FieldDateOfBirth]; ok {
		view.DisplayAge = phi.ComputeAge(dob, g.now()).String()
	}
	return view
}

// fieldNames returns the bag's field names in the resource type's table
// order, so audit entries are stable regardless of map iteration.
func fieldNames(rt model.ResourceType, bag model.PlaintextBag) model.StringList {
	names := make(model.StringList, 0, len(bag))
	for _, d := range phi.Fields(rt) {
		if _, ok := bag[d.Name]; ok {
			names = append(names, string(d.Name))
		}
	}
	return names
}

func validateRequired(rt model.ResourceType, bag model.PlaintextBag) error {
	for _, d := range phi.Fields(rt) {
		if d.Required && bag[d.Name] == "" {
			return fmt.Errorf("field %q is required", d.Name)
		}
	}
	return nil
}

// supplied filters out blanked fields so a create's returned view matches
// what was stored.
func supplied(bag model.PlaintextBag) model.PlaintextBag {
	out := make(model.PlaintextBag, len(bag))
	for name, v := range bag {
		if v != "" {
			out[name] = v
		}
	}
	return out
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, apperrors.ErrResourceNotFound)
}
