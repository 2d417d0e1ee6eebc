package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

func TestWhereNumbersPlaceholders(t *testing.T) {
	var w where
	w.add("type = ?", "Private")
	w.raw("NOT deleted")
	w.add("status = ?", "Pending")
	assert.Equal(t, " WHERE type = $1 AND NOT deleted AND status = $2", w.String())
	assert.Equal(t, " LIMIT $3 OFFSET $4", w.page(10, 5))
	assert.Equal(t, []any{"Private", "Pending", 5, 10}, w.args)

	var empty where
	assert.Equal(t, "", empty.String())
	assert.Equal(t, "", empty.page(0, 0))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("REL_INTEGRATION") != "1" {
		t.Skip("set REL_INTEGRATION=1 and DATABASE_URL to run Postgres tests")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	s := New(pool)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestContractApplyIntegration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ctid := "ctr_" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.Contracts().Create(ctx, domain.NewContract(ctid, "A", "B", "terms", "desc", now)))

	invited, err := s.Contracts().List(ctx, domain.ContractFilter{IDs: []string{ctid}, OrgID: "B"})
	require.NoError(t, err)
	assert.Len(t, invited, 1)
	stranger, err := s.Contracts().List(ctx, domain.ContractFilter{IDs: []string{ctid}, OrgID: "Z"})
	require.NoError(t, err)
	assert.Empty(t, stranger)

	applied, err := s.Contracts().Apply(ctx, ctid, domain.ContractPatch{
		RemovePending:    []string{"B"},
		AddOrganisations: []string{"B"},
		AddItems:         []domain.ContractItem{{Oid: "o1", Cid: "A", Enabled: true}},
		Status:           domain.ContractApproved,
	})
	require.NoError(t, err)
	require.True(t, applied)

	got, err := s.Contracts().Get(ctx, ctid)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got.Organisations)
	assert.Empty(t, got.PendingOrganisations)
	assert.Equal(t, []string{"o1"}, got.ItemIDs())
	assert.Equal(t, domain.ContractApproved, got.Status)

	del := domain.ContractPatch{MarkDeleted: true, Status: domain.ContractDeleted}
	applied, err = s.Contracts().Apply(ctx, ctid, del)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.Contracts().Apply(ctx, ctid, del)
	require.NoError(t, err)
	assert.False(t, applied)

	live, err := s.Contracts().List(ctx, domain.ContractFilter{IDs: []string{ctid}})
	require.NoError(t, err)
	assert.Empty(t, live)

	_, err = s.Contracts().Get(ctx, "ctr_missing_"+uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommunityPartnershipLookupIntegration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, b := "org_"+uuid.NewString(), "org_"+uuid.NewString()
	c, err := domain.NewCommunity("com_"+uuid.NewString(), "pair", "", domain.KindPartnership,
		[]domain.CommunityOrg{{Cid: a}, {Cid: b}}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, s.Communities().Create(ctx, c))

	found, err := s.Communities().FindPartnership(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, c.CommID, found.CommID)

	applied, err := s.Communities().Apply(ctx, c.CommID, domain.CommunityPatch{AddNode: &domain.NodeRef{Cid: a, Agid: "n1"}})
	require.NoError(t, err)
	assert.Equal(t, c.CommID, applied.CommID)
	got, err := s.Communities().Get(ctx, c.CommID)
	require.NoError(t, err)
	m, _ := got.Member(a)
	assert.Equal(t, []string{"n1"}, m.Nodes)

	require.NoError(t, s.Communities().Delete(ctx, c.CommID))
	_, err = s.Communities().FindPartnership(ctx, a, b)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexArraysIntegration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	oid := "item_" + uuid.NewString()
	require.NoError(t, s.Items().Put(ctx, domain.Item{Oid: oid, Cid: "A", Status: domain.ItemEnabled, Privacy: domain.PrivacyPublic}))

	require.NoError(t, s.Items().AddContract(ctx, oid, "c1"))
	require.NoError(t, s.Items().AddContract(ctx, oid, "c1"))
	it, err := s.Items().Get(ctx, oid)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, it.HasContracts)

	require.NoError(t, s.Items().RemoveContract(ctx, oid, "c1"))
	it, err = s.Items().Get(ctx, oid)
	require.NoError(t, err)
	assert.Empty(t, it.HasContracts)

	assert.ErrorIs(t, s.Items().AddContract(ctx, "missing_"+oid, "c1"), domain.ErrNotFound)
}
