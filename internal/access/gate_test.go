package access_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhadresh-123/phicore/internal/access"
	"github.com/bhadresh-123/phicore/internal/audit"
	"github.com/bhadresh-123/phicore/internal/model"
	"github.com/bhadresh-123/phicore/internal/phi"
	apperrors "github.com/bhadresh-123/phicore/pkg/errors"
	"github.com/bhadresh-123/phicore/pkg/security"
)

type fakeLookup struct {
	memberships []*model.OrganizationMembership
	err         error
}

func (f *fakeLookup) FindByUser(_ context.Context, userID uuid.UUID) ([]*model.OrganizationMembership, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*model.OrganizationMembership
	for _, m := range f.memberships {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeResources struct {
	byID        map[uuid.UUID]*model.ProtectedResource
	created     []*model.ProtectedResource
	updated     []*model.ProtectedResource
	softDeleted map[uuid.UUID]uuid.UUID
}

func newFakeResources() *fakeResources {
	return &fakeResources{
		byID:        make(map[uuid.UUID]*model.ProtectedResource),
		softDeleted: make(map[uuid.UUID]uuid.UUID),
	}
}

func (f *fakeResources) Create(_ context.Context, r *model.ProtectedResource) error {
	f.created = append(f.created, r)
	f.byID[r.ID] = r
	return nil
}

func (f *fakeResources) Update(_ context.Context, r *model.ProtectedResource) error {
	f.updated = append(f.updated, r)
	f.byID[r.ID] = r
	return nil
}

func (f *fakeResources) FindByID(_ context.Context, id uuid.UUID) (*model.ProtectedResource, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r, nil
}

func (f *fakeResources) SoftDelete(_ context.Context, id, deletedBy uuid.UUID, at time.Time) error {
	f.softDeleted[id] = deletedBy
	return nil
}

func (f *fakeResources) FindBySearchHash(_ context.Context, rt model.ResourceType, field model.FieldName, hash string) ([]*model.ProtectedResource, error) {
	var out []*model.ProtectedResource
	for _, r := range f.byID {
		if r.Type != rt {
			continue
		}
		if ef, ok := r.PHI[field]; ok && ef.SearchHash != nil && *ef.SearchHash == hash {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeAuditStore struct {
	entries []*model.AuditLogEntry
}

func (f *fakeAuditStore) Append(_ context.Context, entry *model.AuditLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditStore) List(context.Context, map[string]interface{}) ([]*model.AuditLogEntry, error) {
	return f.entries, nil
}

func (f *fakeAuditStore) ExpungeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeAuditStore) last(t *testing.T) *model.AuditLogEntry {
	t.Helper()
	require.NotEmpty(t, f.entries)
	return f.entries[len(f.entries)-1]
}

type gateFixture struct {
	gate      *access.Gate
	codec     *phi.Codec
	lookup    *fakeLookup
	resources *fakeResources
	store     *fakeAuditStore
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	keys, err := security.DeriveKeys(strings.Repeat("0a", 32))
	require.NoError(t, err)
	codec, err := phi.NewCodec(keys)
	require.NoError(t, err)

	lookup := &fakeLookup{}
	resources := newFakeResources()
	store := &fakeAuditStore{}
	nop := zerolog.Nop()

	recorder := audit.NewRecorder(store, nil, nil, &nop, nil)
	gate := access.NewGate(access.NewResolver(lookup), codec, resources, recorder, &nop, nil)

	return &gateFixture{
		gate:      gate,
		codec:     codec,
		lookup:    lookup,
		resources: resources,
		store:     store,
	}
}

func (fx *gateFixture) addPatient(t *testing.T, orgID uuid.UUID, primaryStaff *uuid.UUID, fields model.PlaintextBag) *model.ProtectedResource {
	t.Helper()
	ebag, err := fx.codec.EncryptFields(model.ResourcePatient, fields)
	require.NoError(t, err)

	res := &model.ProtectedResource{
		Base:           model.Base{ID: uuid.New(), CreatedAt: time.Now(), UpdatedAt: time.Now()},
		OrganizationID: orgID,
		Type:           model.ResourcePatient,
		PrimaryStaffID: primaryStaff,
		Status:         "active",
		PHI:            ebag,
	}
	fx.resources.byID[res.ID] = res
	return res
}

func (fx *gateFixture) grantMembership(orgID, userID uuid.UUID, mutate func(*model.OrganizationMembership)) {
	fx.lookup.memberships = append(fx.lookup.memberships, membership(orgID, userID, mutate))
}

func TestReadProtectedAssignedTherapist(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	therapist := uuid.New()

	fx.grantMembership(orgID, therapist, nil)
	res := fx.addPatient(t, orgID, &therapist, model.PlaintextBag{
		phi.FieldFirstName: "Jo",
		phi.FieldEmail:     "jo@example.com",
	})

	view, err := fx.gate.ReadProtected(context.Background(), res.ID, therapist)
	require.NoError(t, err)
	assert.Equal(t, "Jo", view.Fields[phi.FieldFirstName])
	assert.Equal(t, "jo@example.com", view.Fields[phi.FieldEmail])

	require.Len(t, fx.store.entries, 1)
	entry := fx.store.last(t)
	assert.Equal(t, model.AuditActionPHIAccess, entry.Action)
	assert.True(t, entry.Success)
	assert.ElementsMatch(t, model.StringList{"first_name", "email"}, entry.FieldsAccessed)
	assert.Equal(t, 2, entry.PHIFieldCount)
	assert.Equal(t, model.SecurityLevelPHIProtected, entry.SecurityLevel)
	assert.Equal(t, &therapist, entry.ActorID)
	assert.Equal(t, orgID, entry.OrganizationID)
}

func TestReadProtectedDeniedIsNotFoundShaped(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	therapist := uuid.New()
	otherTherapist := uuid.New()

	fx.grantMembership(orgID, therapist, nil)
	res := fx.addPatient(t, orgID, &otherTherapist, model.PlaintextBag{
		phi.FieldFirstName: "Jo",
	})

	view, err := fx.gate.ReadProtected(context.Background(), res.ID, therapist)
	require.Error(t, err)
	assert.Nil(t, view)
	assert.True(t, apperrors.IsNotFound(err), "denial must be not-found shaped")
	assert.NotContains(t, err.Error(), "INSUFFICIENT", "reason code must not leak")

	require.Len(t, fx.store.entries, 1)
	entry := fx.store.last(t)
	assert.Equal(t, model.AuditActionRead, entry.Action)
	assert.False(t, entry.Success)
	assert.Equal(t, 0, entry.PHIFieldCount)
	assert.Equal(t, string(access.ReasonInsufficientCapability), entry.DenialReason)
	assert.True(t, entry.Compliant, "a blocked denial is a compliant outcome")
}

func TestReadProtectedMissingResourceStillAudited(t *testing.T) {
	fx := newGateFixture(t)

	_, err := fx.gate.ReadProtected(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	require.Len(t, fx.store.entries, 1)
	assert.False(t, fx.store.last(t).Success)
}

func TestRetentionStamp(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	therapist := uuid.New()

	fx.grantMembership(orgID, therapist, nil)
	res := fx.addPatient(t, orgID, &therapist, model.PlaintextBag{phi.FieldFirstName: "Jo"})

	_, err := fx.gate.ReadProtected(context.Background(), res.ID, therapist)
	require.NoError(t, err)

	entry := fx.store.last(t)
	assert.Equal(t, entry.CreatedAt.AddDate(7, 0, 0), entry.RetentionExpiresAt)
}

func TestCreateProtected(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	caller := uuid.New()

	fx.grantMembership(orgID, caller, func(m *model.OrganizationMembership) {
		m.CanCreatePatients = true
	})

	view, err := fx.gate.WriteProtected(context.Background(), &model.ProtectedResource{
		OrganizationID: orgID,
		Type:           model.ResourcePatient,
		Status:         "active",
	}, model.PlaintextBag{
		phi.FieldFirstName: "Jo",
		phi.FieldLastName:  "Smith",
		phi.FieldEmail:     "jo@example.com",
	}, caller)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, view.ID)
	assert.Equal(t, "Jo", view.Fields[phi.FieldFirstName])

	require.Len(t, fx.resources.created, 1)
	stored := fx.resources.created[0]
	assert.NotNil(t, stored.PHI[phi.FieldEmail].SearchHash)
	assert.NotContains(t, stored.PHI[phi.FieldEmail].Ciphertext, "jo@example.com")

	require.Len(t, fx.store.entries, 1)
	entry := fx.store.last(t)
	assert.Equal(t, model.AuditActionCreate, entry.Action)
	assert.True(t, entry.Success)
	assert.ElementsMatch(t, model.StringList{"first_name", "last_name", "email"}, entry.FieldsAccessed)
	assert.Equal(t, 3, entry.PHIFieldCount)
}

func TestCreateProtectedDeniedPersistsNothing(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	caller := uuid.New()

	fx.grantMembership(orgID, caller, nil)

	_, err := fx.gate.WriteProtected(context.Background(), &model.ProtectedResource{
		OrganizationID: orgID,
		Type:           model.ResourcePatient,
	}, model.PlaintextBag{phi.FieldFirstName: "Jo", phi.FieldLastName: "Smith"}, caller)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	assert.Empty(t, fx.resources.created)
	require.Len(t, fx.store.entries, 1)
	entry := fx.store.last(t)
	assert.Equal(t, model.AuditActionCreate, entry.Action)
	assert.False(t, entry.Success)
	assert.Equal(t, 0, entry.PHIFieldCount)
}

func TestCreateProtectedRequiresRequiredFields(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	caller := uuid.New()

	fx.grantMembership(orgID, caller, func(m *model.OrganizationMembership) {
		m.CanCreatePatients = true
	})

	_, err := fx.gate.WriteProtected(context.Background(), &model.ProtectedResource{
		OrganizationID: orgID,
		Type:           model.ResourcePatient,
	}, model.PlaintextBag{phi.FieldEmail: "jo@example.com"}, caller)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
	assert.Empty(t, fx.resources.created)
	assert.Len(t, fx.store.entries, 1)
}

func TestUpdateRecomputesSearchHash(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	therapist := uuid.New()

	fx.grantMembership(orgID, therapist, nil)
	res := fx.addPatient(t, orgID, &therapist, model.PlaintextBag{
		phi.FieldFirstName: "Jo",
		phi.FieldEmail:     "old@example.com",
	})
	oldHash := *res.PHI[phi.FieldEmail].SearchHash

	_, err := fx.gate.WriteProtected(context.Background(), &model.ProtectedResource{
		Base: model.Base{ID: res.ID},
	}, model.PlaintextBag{phi.FieldEmail: "new@example.com"}, therapist)
	require.NoError(t, err)

	require.Len(t, fx.resources.updated, 1)
	newHash := fx.resources.updated[0].PHI[phi.FieldEmail].SearchHash
	require.NotNil(t, newHash)
	assert.NotEqual(t, oldHash, *newHash)
	assert.Equal(t, *fx.codec.SearchHash("new@example.com"), *newHash)

	entry := fx.store.last(t)
	assert.Equal(t, model.AuditActionUpdate, entry.Action)
	assert.ElementsMatch(t, model.StringList{"email"}, entry.FieldsAccessed)
}

func TestUpdateBlankingFieldRemovesStoredValue(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	therapist := uuid.New()

	fx.grantMembership(orgID, therapist, nil)
	res := fx.addPatient(t, orgID, &therapist, model.PlaintextBag{
		phi.FieldFirstName: "Jo",
		phi.FieldEmail:     "jo@example.com",
	})

	_, err := fx.gate.WriteProtected(context.Background(), &model.ProtectedResource{
		Base: model.Base{ID: res.ID},
	}, model.PlaintextBag{phi.FieldEmail: ""}, therapist)
	require.NoError(t, err)

	_, present := fx.resources.updated[0].PHI[phi.FieldEmail]
	assert.False(t, present, "blanked field must leave no stored value or hash")
}

func TestDeleteProtectedSoftDeletes(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	therapist := uuid.New()

	fx.grantMembership(orgID, therapist, nil)
	res := fx.addPatient(t, orgID, &therapist, model.PlaintextBag{phi.FieldFirstName: "Jo"})

	require.NoError(t, fx.gate.DeleteProtected(context.Background(), res.ID, therapist))

	assert.Equal(t, therapist, fx.resources.softDeleted[res.ID])
	entry := fx.store.last(t)
	assert.Equal(t, model.AuditActionDelete, entry.Action)
	assert.True(t, entry.Success)
	assert.Equal(t, 0, entry.PHIFieldCount)
}

func TestSearchByFiltersUnauthorizedResults(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	therapist := uuid.New()
	otherTherapist := uuid.New()

	fx.grantMembership(orgID, therapist, nil)
	mine := fx.addPatient(t, orgID, &therapist, model.PlaintextBag{
		phi.FieldFirstName: "Jo",
		phi.FieldLastName:  "Smith",
	})
	fx.addPatient(t, orgID, &otherTherapist, model.PlaintextBag{
		phi.FieldFirstName: "Jim",
		phi.FieldLastName:  "Smith",
	})

	views, err := fx.gate.SearchBy(context.Background(), model.ResourcePatient, phi.FieldLastName, "Smith", therapist)
	require.NoError(t, err)
	require.Len(t, views, 1, "unauthorized results must be dropped")
	assert.Equal(t, mine.ID, views[0].ID)

	require.Len(t, fx.store.entries, 1)
	entry := fx.store.last(t)
	assert.Equal(t, model.AuditActionPHIAccess, entry.Action)
	assert.Equal(t, model.StringList{"last_name"}, entry.FieldsAccessed)
}

func TestSearchByRejectsUnsearchableField(t *testing.T) {
	fx := newGateFixture(t)

	_, err := fx.gate.SearchBy(context.Background(), model.ResourcePatient, "clinical_notes", "x", uuid.New())
	require.Error(t, err)

	_, err = fx.gate.SearchBy(context.Background(), model.ResourcePatient, phi.FieldEmail, "", uuid.New())
	require.Error(t, err)
	assert.Empty(t, fx.store.entries, "rejected input never reaches the audited path")
}

func TestDisplayAgeBucketsOver89(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	therapist := uuid.New()

	fx.grantMembership(orgID, therapist, nil)
	res := fx.addPatient(t, orgID, &therapist, model.PlaintextBag{
		phi.FieldFirstName:   "Eve",
		phi.FieldLastName:    "Adams",
		phi.FieldDateOfBirth: "1920-01-01",
	})

	view, err := fx.gate.ReadProtected(context.Background(), res.ID, therapist)
	require.NoError(t, err)
	assert.Equal(t, "90+", view.DisplayAge)
	// The exact date of birth is still returned to authorized callers; only
	// the derived display value is bucketed.
	assert.Equal(t, "1920-01-01", view.Fields[phi.FieldDateOfBirth])
}

func TestEveryOperationWritesExactlyOneEntry(t *testing.T) {
	fx := newGateFixture(t)
	orgID := uuid.New()
	therapist := uuid.New()

	fx.grantMembership(orgID, therapist, nil)
	res := fx.addPatient(t, orgID, &therapist, model.PlaintextBag{phi.FieldFirstName: "Jo"})

	_, _ = fx.gate.ReadProtected(context.Background(), res.ID, therapist)
	assert.Len(t, fx.store.entries, 1)

	_, _ = fx.gate.ReadProtected(context.Background(), uuid.New(), therapist)
	assert.Len(t, fx.store.entries, 2)

	_, _ = fx.gate.WriteProtected(context.Background(), &model.ProtectedResource{
		Base: model.Base{ID: res.ID},
	}, model.PlaintextBag{phi.FieldFirstName: "Joanna"}, therapist)
	assert.Len(t, fx.store.entries, 3)

	_ = fx.gate.DeleteProtected(context.Background(), res.ID, therapist)
	assert.Len(t, fx.store.entries, 4)
}
