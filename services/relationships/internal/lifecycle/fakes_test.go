package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/memstore"
)

var errDown = errors.New("service unavailable")

// fakeDirectory records every call in order and keeps group membership in memory.
type fakeDirectory struct {
	mu     sync.Mutex
	calls  []string
	groups map[string]*Group
	fail   map[string]error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{groups: map[string]*Group{}, fail: map[string]error{}}
}

func (d *fakeDirectory) record(call string, method string) error {
	d.calls = append(d.calls, call)
	return d.fail[method]
}

func (d *fakeDirectory) CreateGroup(_ context.Context, id, displayName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("create "+id, "CreateGroup"); err != nil {
		return err
	}
	d.groups[id] = &Group{ID: id, DisplayName: displayName}
	return nil
}

func (d *fakeDirectory) DeleteGroup(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("delete "+id, "DeleteGroup"); err != nil {
		return err
	}
	delete(d.groups, id)
	return nil
}

func (d *fakeDirectory) AddPrincipal(_ context.Context, principalID, groupID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("add "+principalID+" "+groupID, "AddPrincipal"); err != nil {
		return err
	}
	g, ok := d.groups[groupID]
	if !ok {
		return fmt.Errorf("group %s not found", groupID)
	}
	if !slices.Contains(g.Members, principalID) {
		g.Members = append(g.Members, principalID)
	}
	return nil
}

func (d *fakeDirectory) RemovePrincipal(_ context.Context, principalID, groupID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("remove "+principalID+" "+groupID, "RemovePrincipal"); err != nil {
		return err
	}
	if g, ok := d.groups[groupID]; ok {
		g.Members = slices.DeleteFunc(g.Members, func(m string) bool { return m == principalID })
	}
	return nil
}

func (d *fakeDirectory) GetGroup(_ context.Context, id string) (Group, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, ok := d.groups[id]
	if !ok {
		return Group{}, domain.ErrNotFound
	}
	return Group{ID: g.ID, DisplayName: g.DisplayName, Members: slices.Clone(g.Members)}, nil
}

func (d *fakeDirectory) group(id string) (Group, bool) {
	g, err := d.GetGroup(context.Background(), id)
	return g, err == nil
}

func (d *fakeDirectory) count(call string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (d *fakeDirectory) failOn(method string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[method] = err
}

type push struct {
	Gateway string
	Ctid    string
}

type fakeAgents struct {
	mu     sync.Mutex
	pushes []push
	err    error
}

func (a *fakeAgents) NotifyContractChanged(_ context.Context, gatewayID, ctid string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pushes = append(a.pushes, push{Gateway: gatewayID, Ctid: ctid})
	return a.err
}

func (a *fakeAgents) gateways(ctid string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, p := range a.pushes {
		if p.Ctid == ctid {
			out = append(out, p.Gateway)
		}
	}
	slices.Sort(out)
	return out
}

func (a *fakeAgents) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pushes = nil
}

// failingOrgs wraps an organisation store and fails Apply.
type failingOrgs struct {
	OrganisationStore
	err error
}

func (f failingOrgs) Apply(context.Context, string, domain.OrganisationPatch) error { return f.err }

// failingItems wraps an item store and fails RemoveContract.
type failingItems struct {
	ItemStore
	err error
}

func (f failingItems) RemoveContract(context.Context, string, string) error { return f.err }

type fixture struct {
	store  *memstore.Store
	dir    *fakeDirectory
	agents *fakeAgents
	deps   Deps
	engine *Engine
}

// newFixture seeds two friendly organisations A and B, a third organisation C that
// knows nobody, an inactive organisation D, their items and nodes.
func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	s := memstore.New()
	s.Load(memstore.Seed{
		Organisations: []domain.Organisation{
			{Cid: "A", Name: "Org A", Status: domain.OrgActive, Knows: []string{"B", "D"}},
			{Cid: "B", Name: "Org B", Status: domain.OrgActive, Knows: []string{"A"}},
			{Cid: "C", Name: "Org C", Status: domain.OrgActive},
			{Cid: "D", Name: "Org D", Status: domain.OrgInactive, Knows: []string{"A"}},
		},
		Items: []domain.Item{
			{Oid: "itemA1", Cid: "A", Uid: "userA", Agid: "gwA", Type: "Device", Status: domain.ItemEnabled, Privacy: domain.PrivacyPublic},
			{Oid: "itemA2", Cid: "A", Uid: "userA", Agid: "gwA", Type: "Service", Status: domain.ItemEnabled, Privacy: domain.PrivacyForFriends},
			{Oid: "itemB1", Cid: "B", Uid: "userB", Agid: "gwB", Type: "Device", Status: domain.ItemEnabled, Privacy: domain.PrivacyPublic},
			{Oid: "itemPrivate", Cid: "A", Agid: "gwA", Status: domain.ItemEnabled, Privacy: domain.PrivacyPrivate},
			{Oid: "itemDisabled", Cid: "A", Agid: "gwA", Status: domain.ItemDisabled, Privacy: domain.PrivacyPublic},
			{Oid: "itemC1", Cid: "C", Agid: "gwC", Status: domain.ItemEnabled, Privacy: domain.PrivacyPublic},
		},
		Nodes: []domain.Node{
			{Agid: "nodeA1", Cid: "A", Name: "gateway A1"},
			{Agid: "nodeA2", Cid: "A", Name: "gateway A2"},
			{Agid: "nodeB1", Cid: "B", Name: "gateway B1"},
			{Agid: "nodeC1", Cid: "C", Name: "gateway C1"},
		},
	})

	seq := 0
	var seqMu sync.Mutex
	f := &fixture{store: s, dir: newFakeDirectory(), agents: &fakeAgents{}}
	f.deps = Deps{
		Contracts:     s.Contracts(),
		Communities:   s.Communities(),
		Organisations: s.Organisations(),
		Items:         s.Items(),
		Nodes:         s.Nodes(),
		Notifications: s.Notifications(),
		Audit:         s.Audit(),
		Directory:     f.dir,
		Agents:        f.agents,
		NewID: func(prefix string) string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("%s%d", prefix, seq)
		},
		Now: func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	for _, m := range mutate {
		m(&f.deps)
	}
	f.engine = New(f.deps)
	return f
}

var ctx = context.Background()

func (f *fixture) org(t *testing.T, cid string) domain.Organisation {
	t.Helper()
	o, err := f.store.Organisations().Get(ctx, cid)
	if err != nil {
		t.Fatalf("get organisation %s: %v", cid, err)
	}
	return o
}

func (f *fixture) contract(t *testing.T, ctid string) domain.Contract {
	t.Helper()
	c, err := f.store.Contracts().Get(ctx, ctid)
	if err != nil {
		t.Fatalf("get contract %s: %v", ctid, err)
	}
	return c
}

func (f *fixture) item(t *testing.T, oid string) domain.Item {
	t.Helper()
	it, err := f.store.Items().Get(ctx, oid)
	if err != nil {
		t.Fatalf("get item %s: %v", oid, err)
	}
	return it
}

func (f *fixture) node(t *testing.T, agid string) domain.Node {
	t.Helper()
	n, err := f.store.Nodes().Get(ctx, agid)
	if err != nil {
		t.Fatalf("get node %s: %v", agid, err)
	}
	return n
}

func (f *fixture) requests(t *testing.T, owner, ctid string) []domain.Notification {
	t.Helper()
	ns, err := f.store.Notifications().Find(ctx, domain.NotificationFilter{
		Owner: owner, Type: domain.NotifContractRequest, ObjectID: ctid,
	})
	if err != nil {
		t.Fatalf("find notifications: %v", err)
	}
	return ns
}

func (f *fixture) auditTypes() []domain.AuditType {
	var out []domain.AuditType
	for _, e := range f.store.Audit().Events() {
		out = append(out, e.Type)
	}
	return out
}

// createAB creates a pending contract from A to B.
func (f *fixture) createAB(t *testing.T) string {
	t.Helper()
	ctid, err := f.engine.Contracts.CreateOne(ctx, CreateContractInput{
		InviterOrg:  "A",
		ActingUser:  "userA",
		Terms:       "terms",
		InvitedOrgs: []string{"B"},
		Description: "A and B",
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return ctid
}

// approvedAB creates a contract between A and B, accepted by B.
func (f *fixture) approvedAB(t *testing.T) string {
	t.Helper()
	ctid := f.createAB(t)
	if err := f.engine.Contracts.AcceptContractRequest(ctx, ctid, "B", "userB", domain.AuditContext{}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	f.engine.Wait()
	return ctid
}
