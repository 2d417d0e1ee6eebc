package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/app"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/config"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/lifecycle"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/memstore"
)

type directory struct{ groups map[string]bool }

func (d *directory) CreateGroup(_ context.Context, id, _ string) error {
	d.groups[id] = true
	return nil
}
func (d *directory) DeleteGroup(_ context.Context, id string) error {
	delete(d.groups, id)
	return nil
}
func (d *directory) AddPrincipal(context.Context, string, string) error    { return nil }
func (d *directory) RemovePrincipal(context.Context, string, string) error { return nil }
func (d *directory) GetGroup(_ context.Context, id string) (lifecycle.Group, error) {
	if !d.groups[id] {
		return lifecycle.Group{}, domain.ErrNotFound
	}
	return lifecycle.Group{ID: id}, nil
}

type agents struct{}

func (agents) NotifyContractChanged(context.Context, string, string) error { return nil }

func memoryBuilder(t *testing.T) builder {
	t.Helper()
	s := memstore.New()
	s.Load(memstore.Seed{Organisations: []domain.Organisation{
		{Cid: "A", Status: domain.OrgActive, HasContracts: []string{"c1"}},
		{Cid: "B", Status: domain.OrgActive},
	}})
	require.NoError(t, s.Contracts().Create(context.Background(),
		domain.NewContract("c1", "A", "B", "terms", "", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	cfg := config.Config{GatewayPushConcurrency: 1}
	dir := &directory{groups: map[string]bool{}}
	return func(context.Context) (*app.App, error) {
		return app.Assemble(cfg, app.MemoryStores(s), dir, agents{}, nil), nil
	}
}

func execute(t *testing.T, b builder, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(b)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestContractGet(t *testing.T) {
	out, err := execute(t, memoryBuilder(t), "contract", "get", "c1")
	require.NoError(t, err)
	var c domain.Contract
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, "c1", c.Ctid)
	assert.Equal(t, []string{"B"}, c.PendingOrganisations)
}

func TestContractGetMissing(t *testing.T) {
	_, err := execute(t, memoryBuilder(t), "contract", "get", "nope")
	require.Error(t, err)
	assert.Equal(t, 404, domain.StatusOf(err))
}

func TestReconcilePrintsReport(t *testing.T) {
	b := memoryBuilder(t)

	out, err := execute(t, b, "reconcile", "--fail-on-repair")
	require.Error(t, err, "the invited organisation's request index and the group had drifted")
	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, float64(1), rep["organisations"])
	assert.Equal(t, float64(1), rep["groups_created"])

	_, err = execute(t, b, "reconcile", "--fail-on-repair")
	require.NoError(t, err)
}

func TestCommunityGetRequiresID(t *testing.T) {
	_, err := execute(t, memoryBuilder(t), "community", "get")
	require.Error(t, err)
}
