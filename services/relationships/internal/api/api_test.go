package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/authn"
	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/lifecycle"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/memstore"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/reconcile"
)

type nopDirectory struct{}

func (nopDirectory) CreateGroup(context.Context, string, string) error { return nil }
func (nopDirectory) DeleteGroup(context.Context, string) error         { return nil }
func (nopDirectory) AddPrincipal(context.Context, string, string) error { return nil }
func (nopDirectory) RemovePrincipal(context.Context, string, string) error {
	return nil
}
func (nopDirectory) GetGroup(_ context.Context, id string) (lifecycle.Group, error) {
	return lifecycle.Group{ID: id}, nil
}

type nopAgents struct{}

func (nopAgents) NotifyContractChanged(context.Context, string, string) error { return nil }

type stubSweeper struct{ calls int }

func (s *stubSweeper) RunOnce(context.Context) (reconcile.Report, error) {
	s.calls++
	return reconcile.Report{Organisations: 1}, nil
}

type testServer struct {
	srv     *httptest.Server
	store   *memstore.Store
	engine  *lifecycle.Engine
	sweeper *stubSweeper
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := memstore.New()
	s.Load(memstore.Seed{
		Organisations: []domain.Organisation{
			{Cid: "A", Name: "Org A", Status: domain.OrgActive, Knows: []string{"B"}},
			{Cid: "B", Name: "Org B", Status: domain.OrgActive, Knows: []string{"A"}},
		},
		Items: []domain.Item{
			{Oid: "itemA1", Cid: "A", Uid: "ua", Agid: "gwA", Status: domain.ItemEnabled, Privacy: domain.PrivacyPublic},
		},
		Nodes: []domain.Node{
			{Agid: "nodeA1", Cid: "A"},
			{Agid: "nodeB1", Cid: "B"},
		},
	})
	engine := lifecycle.New(lifecycle.Deps{
		Contracts:     s.Contracts(),
		Communities:   s.Communities(),
		Organisations: s.Organisations(),
		Items:         s.Items(),
		Nodes:         s.Nodes(),
		Notifications: s.Notifications(),
		Audit:         s.Audit(),
		Directory:     nopDirectory{},
		Agents:        nopAgents{},
	})
	sw := &stubSweeper{}
	r := chi.NewRouter()
	New(engine, s.Notifications(), sw, authn.Authenticator{}, nil).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		engine.Wait()
	})
	return &testServer{srv: srv, store: s, engine: engine, sweeper: sw}
}

func (ts *testServer) call(t *testing.T, org, roles, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.srv.URL+"/relationships/v1"+path, rd)
	require.NoError(t, err)
	if org != "" {
		req.Header.Set(authn.OrgHeader, org)
		req.Header.Set(authn.UserHeader, "user-"+org)
	}
	if roles != "" {
		req.Header.Set(authn.RoleHeader, roles)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestRequiresCallerIdentity(t *testing.T) {
	ts := newTestServer(t)
	status, out := ts.call(t, "", "", http.MethodGet, "/contracts", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(out))
}

func TestContractInvitationFlow(t *testing.T) {
	ts := newTestServer(t)

	status, out := ts.call(t, "A", "", http.MethodPost, "/contracts", map[string]any{
		"terms_and_conditions": "terms",
		"invited_organisations": []string{"B"},
		"description":           "Shared sensors",
	})
	require.Equal(t, http.StatusCreated, status, out)
	ctid, _ := out["ctid"].(string)
	require.NotEmpty(t, ctid)

	status, out = ts.call(t, "B", "", http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["notifications"], 1)

	status, _ = ts.call(t, "B", "", http.MethodPost, "/contracts/"+ctid+"/accept", nil)
	require.Equal(t, http.StatusOK, status)

	status, out = ts.call(t, "A", "", http.MethodGet, "/contracts/"+ctid, nil)
	require.Equal(t, http.StatusOK, status)
	c := out["contract"].(map[string]any)
	assert.Equal(t, string(domain.ContractApproved), c["status"])
	assert.ElementsMatch(t, []any{"A", "B"}, c["organisations"])

	status, _ = ts.call(t, "A", "", http.MethodPost, "/contracts/"+ctid+"/items", map[string]any{"oid": "itemA1", "rw": true})
	require.Equal(t, http.StatusCreated, status)
	status, _ = ts.call(t, "A", "", http.MethodPatch, "/contracts/"+ctid+"/items/itemA1", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, status)

	got, err := ts.store.Contracts().Get(context.Background(), ctid)
	require.NoError(t, err)
	it, found := got.Item("itemA1")
	require.True(t, found)
	assert.True(t, it.RW)
	assert.False(t, it.Enabled)

	status, _ = ts.call(t, "A", "", http.MethodDelete, "/contracts/"+ctid+"/items", map[string]any{"oids": []string{"itemA1"}})
	require.Equal(t, http.StatusOK, status)

	status, out = ts.call(t, "A", "", http.MethodGet, "/contracts", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["contracts"], 1)
}

func TestContractValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	status, out := ts.call(t, "A", "", http.MethodPost, "/contracts", map[string]any{
		"terms_and_conditions": "terms",
		"invited_organisations": []string{},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", errorCode(out))

	status, out = ts.call(t, "A", "", http.MethodPost, "/contracts", map[string]any{
		"terms_and_conditions": "terms",
		"invited_organisations": []string{"A"},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	e := out["error"].(map[string]any)
	assert.Equal(t, "ContractLifecycle.CreateOne", e["source"])

	status, out = ts.call(t, "A", "", http.MethodPost, "/contracts", map[string]any{"bogus": 1})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_JSON", errorCode(out))

	status, out = ts.call(t, "A", "", http.MethodGet, "/contracts/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(out))
}

func TestCommunityEndpoints(t *testing.T) {
	ts := newTestServer(t)

	status, out := ts.call(t, "A", "", http.MethodPost, "/communities", map[string]any{
		"name": "Mesh", "kind": "COMMUNITY",
		"organisations": []map[string]any{{"cid": "B", "nodes": []string{"nodeB1"}}},
	})
	assert.Equal(t, http.StatusForbidden, status, "caller must take part")

	status, out = ts.call(t, "A", "", http.MethodPost, "/communities", map[string]any{
		"name": "Mesh", "kind": "COMMUNITY",
		"organisations": []map[string]any{{"cid": "A", "nodes": []string{"nodeA1"}}},
	})
	require.Equal(t, http.StatusCreated, status, out)
	commID := out["comm_id"].(string)

	status, out = ts.call(t, "B", "", http.MethodPost, "/communities/"+commID+"/nodes", map[string]any{"agid": "nodeB1"})
	require.Equal(t, http.StatusOK, status, out)

	status, out = ts.call(t, "A", "", http.MethodGet, "/communities?cid=B", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["communities"], 1)

	status, _ = ts.call(t, "B", "", http.MethodDelete, "/communities/"+commID, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = ts.call(t, "B", AdminRole, http.MethodDelete, "/communities/"+commID, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = ts.call(t, "A", "", http.MethodGet, "/communities/"+commID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.call(t, "A", "", http.MethodDelete, "/partnerships/B", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestReconcileRequiresAdministrator(t *testing.T) {
	ts := newTestServer(t)

	status, _ := ts.call(t, "A", "", http.MethodPost, "/admin/reconcile", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Zero(t, ts.sweeper.calls)

	status, out := ts.call(t, "A", AdminRole, http.MethodPost, "/admin/reconcile", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, ts.sweeper.calls)
	rep := out["report"].(map[string]any)
	assert.Equal(t, float64(1), rep["organisations"])
}

func TestContractAccessIsScopedToParticipants(t *testing.T) {
	ts := newTestServer(t)

	status, out := ts.call(t, "A", "", http.MethodPost, "/contracts", map[string]any{
		"terms_and_conditions": "terms",
		"invited_organisations": []string{"B"},
	})
	require.Equal(t, http.StatusCreated, status, out)
	ctid := out["ctid"].(string)

	status, _ = ts.call(t, "B", "", http.MethodGet, "/contracts/"+ctid, nil)
	assert.Equal(t, http.StatusOK, status, "invited organisations can read the request")
	status, out = ts.call(t, "Z", "", http.MethodGet, "/contracts/"+ctid, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(out))
	status, _ = ts.call(t, "Z", AdminRole, http.MethodGet, "/contracts/"+ctid, nil)
	assert.Equal(t, http.StatusOK, status)

	status, out = ts.call(t, "Z", "", http.MethodGet, "/contracts", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, out["contracts"])
	status, out = ts.call(t, "B", "", http.MethodGet, "/contracts", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["contracts"], 1)
	status, out = ts.call(t, "Z", AdminRole, http.MethodGet, "/contracts", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["contracts"], 1)

	status, _ = ts.call(t, "B", "", http.MethodPost, "/contracts/"+ctid+"/items", map[string]any{"oid": "itemA1"})
	assert.Equal(t, http.StatusForbidden, status, "pending organisations cannot attach items")

	status, _ = ts.call(t, "B", "", http.MethodPost, "/contracts/"+ctid+"/accept", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = ts.call(t, "B", "", http.MethodPost, "/contracts/"+ctid+"/items", map[string]any{"oid": "itemA1"})
	assert.Equal(t, http.StatusForbidden, status, "members cannot attach items they do not own")

	status, _ = ts.call(t, "A", "", http.MethodPost, "/contracts/"+ctid+"/items", map[string]any{"oid": "itemA1"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = ts.call(t, "B", "", http.MethodPatch, "/contracts/"+ctid+"/items/itemA1", map[string]any{"enabled": false})
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = ts.call(t, "Z", "", http.MethodDelete, "/contracts/"+ctid+"/items", map[string]any{"oids": []string{"itemA1"}})
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = ts.call(t, "B", "", http.MethodDelete, "/contracts/"+ctid+"/items", map[string]any{"oids": []string{"itemA1"}})
	assert.Equal(t, http.StatusForbidden, status)

	got, err := ts.store.Contracts().Get(context.Background(), ctid)
	require.NoError(t, err)
	it, found := got.Item("itemA1")
	require.True(t, found, "the item survives rejected removals")
	assert.True(t, it.Enabled)
}
