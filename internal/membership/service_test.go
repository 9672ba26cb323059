package membership

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhadresh-123/phicore/internal/audit"
	"github.com/bhadresh-123/phicore/internal/model"
)

type stubMembershipRepo struct {
	byOrgUser    map[string]*model.OrganizationMembership
	primaryOwner *model.OrganizationMembership
	created      []*model.OrganizationMembership
	deactivated  []uuid.UUID
	findCalls    int
}

func newStubRepo() *stubMembershipRepo {
	return &stubMembershipRepo{byOrgUser: make(map[string]*model.OrganizationMembership)}
}

func key(orgID, userID uuid.UUID) string {
	return orgID.String() + "/" + userID.String()
}

func (r *stubMembershipRepo) Create(_ context.Context, m *model.OrganizationMembership) error {
	r.created = append(r.created, m)
	r.byOrgUser[key(m.OrganizationID, m.UserID)] = m
	return nil
}

func (r *stubMembershipRepo) Update(_ context.Context, m *model.OrganizationMembership) error {
	r.byOrgUser[key(m.OrganizationID, m.UserID)] = m
	return nil
}

func (r *stubMembershipRepo) FindByUser(_ context.Context, userID uuid.UUID) ([]*model.OrganizationMembership, error) {
	r.findCalls++
	var out []*model.OrganizationMembership
	for _, m := range r.byOrgUser {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *stubMembershipRepo) FindByOrgAndUser(_ context.Context, orgID, userID uuid.UUID) (*model.OrganizationMembership, error) {
	m, ok := r.byOrgUser[key(orgID, userID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return m, nil
}

func (r *stubMembershipRepo) FindPrimaryOwner(_ context.Context, orgID uuid.UUID) (*model.OrganizationMembership, error) {
	if r.primaryOwner == nil || r.primaryOwner.OrganizationID != orgID {
		return nil, sql.ErrNoRows
	}
	return r.primaryOwner, nil
}

func (r *stubMembershipRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	r.deactivated = append(r.deactivated, id)
	for _, m := range r.byOrgUser {
		if m.ID == id {
			m.IsActive = false
		}
	}
	return nil
}

type captureAuditStore struct {
	entries []*model.AuditLogEntry
}

func (s *captureAuditStore) Append(_ context.Context, entry *model.AuditLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *captureAuditStore) List(context.Context, map[string]interface{}) ([]*model.AuditLogEntry, error) {
	return s.entries, nil
}

func (s *captureAuditStore) ExpungeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func newTestService(repo *stubMembershipRepo) (*Service, *captureAuditStore, *CachedLookup) {
	store := &captureAuditStore{}
	nop := zerolog.Nop()
	lookup := NewCachedLookup(repo, time.Minute, time.Minute)
	recorder := audit.NewRecorder(store, nil, nil, &nop, nil)
	return NewService(repo, lookup, recorder), store, lookup
}

func therapistMembership(orgID, userID uuid.UUID) *model.OrganizationMembership {
	return &model.OrganizationMembership{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           model.RoleTherapist,
	}
}

func TestGrant(t *testing.T) {
	repo := newStubRepo()
	svc, store, _ := newTestService(repo)
	orgID, userID, admin := uuid.New(), uuid.New(), uuid.New()

	err := svc.Grant(context.Background(), admin, therapistMembership(orgID, userID))
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	created := repo.created[0]
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.True(t, created.IsActive)

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, model.SecurityLevelAdmin, entry.SecurityLevel)
	assert.Equal(t, model.AuditActionCreate, entry.Action)
	assert.Equal(t, admin, *entry.ActorID)
}

func TestGrantRejectsDuplicateActiveMembership(t *testing.T) {
	repo := newStubRepo()
	svc, _, _ := newTestService(repo)
	orgID, userID := uuid.New(), uuid.New()

	require.NoError(t, svc.Grant(context.Background(), uuid.New(), therapistMembership(orgID, userID)))

	err := svc.Grant(context.Background(), uuid.New(), therapistMembership(orgID, userID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already holds an active membership")
	assert.Len(t, repo.created, 1)
}

func TestGrantRejectsSecondPrimaryOwner(t *testing.T) {
	repo := newStubRepo()
	svc, _, _ := newTestService(repo)
	orgID := uuid.New()

	first := therapistMembership(orgID, uuid.New())
	first.Role = model.RoleOwner
	first.IsPrimaryOwner = true
	require.NoError(t, svc.Grant(context.Background(), uuid.New(), first))
	repo.primaryOwner = first

	second := therapistMembership(orgID, uuid.New())
	second.Role = model.RoleOwner
	second.IsPrimaryOwner = true
	err := svc.Grant(context.Background(), uuid.New(), second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a primary owner")
}

func TestGrantRejectsNonOwnerPrimaryOwner(t *testing.T) {
	repo := newStubRepo()
	svc, _, _ := newTestService(repo)

	m := therapistMembership(uuid.New(), uuid.New())
	m.IsPrimaryOwner = true
	err := svc.Grant(context.Background(), uuid.New(), m)
	require.Error(t, err)
	assert.Empty(t, repo.created)
}

func TestGrantInvalidatesCachedLookup(t *testing.T) {
	repo := newStubRepo()
	svc, _, lookup := newTestService(repo)
	orgID, userID := uuid.New(), uuid.New()

	// Prime the cache with the empty membership set.
	memberships, err := lookup.FindByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, memberships)

	require.NoError(t, svc.Grant(context.Background(), uuid.New(), therapistMembership(orgID, userID)))

	memberships, err = lookup.FindByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, memberships, 1, "grant must be visible immediately, not after cache expiry")
}

func TestDeactivate(t *testing.T) {
	repo := newStubRepo()
	svc, store, _ := newTestService(repo)
	orgID, userID, admin := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, svc.Grant(context.Background(), admin, therapistMembership(orgID, userID)))

	err := svc.Deactivate(context.Background(), admin, orgID, userID)
	require.NoError(t, err)
	assert.Len(t, repo.deactivated, 1)
	assert.Len(t, store.entries, 2)

	// Repeating is a no-op, not an error, and writes no second entry.
	require.NoError(t, svc.Deactivate(context.Background(), admin, orgID, userID))
	assert.Len(t, repo.deactivated, 1)
	assert.Len(t, store.entries, 2)
}

func TestDeactivateUnknownMembership(t *testing.T) {
	repo := newStubRepo()
	svc, _, _ := newTestService(repo)

	err := svc.Deactivate(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestCachedLookupServesFromCache(t *testing.T) {
	repo := newStubRepo()
	lookup := NewCachedLookup(repo, time.Minute, time.Minute)
	userID := uuid.New()

	_, err := lookup.FindByUser(context.Background(), userID)
	require.NoError(t, err)
	_, err = lookup.FindByUser(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.findCalls, "second read must hit the cache")
}
