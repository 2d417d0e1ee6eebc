// Package reconcile repairs derived data that lifecycle operations leave behind when a
// step fails midway: the reverse indices on organisations, items and nodes, and the
// directory groups mirroring contracts and communities. Contracts and communities are
// the source of truth.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/lifecycle"
)

var tracer = otel.Tracer("relationships.reconcile")

var (
	repairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relationships_reconcile_repairs_total",
		Help: "Repairs applied by the reconciliation sweep",
	}, []string{"kind"})

	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relationships_reconcile_failures_total",
		Help: "Individual repairs that failed during a sweep",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relationships_reconcile_sweep_duration_seconds",
		Help:    "Duration of reconciliation sweeps",
		Buckets: prometheus.DefBuckets,
	})
)

// ContractSource is read twice: a listing drives the sweep and Get re-checks every entry
// before an index is touched.
type ContractSource interface {
	List(ctx context.Context, f domain.ContractFilter) ([]domain.Contract, error)
	Get(ctx context.Context, ctid string) (domain.Contract, error)
}

type CommunitySource interface {
	List(ctx context.Context, f domain.CommunityFilter) ([]domain.Community, error)
	Get(ctx context.Context, commID string) (domain.Community, error)
}

type OrganisationIndex interface {
	List(ctx context.Context) ([]domain.Organisation, error)
	Apply(ctx context.Context, cid string, p domain.OrganisationPatch) error
}

type ItemIndex interface {
	List(ctx context.Context) ([]domain.Item, error)
	AddContract(ctx context.Context, oid, ctid string) error
	RemoveContract(ctx context.Context, oid, ctid string) error
}

type NodeIndex interface {
	List(ctx context.Context) ([]domain.Node, error)
	AddCommunity(ctx context.Context, agid, commID string) error
	RemoveCommunity(ctx context.Context, agid, commID string) error
}

type Sweeper struct {
	Contracts     ContractSource
	Communities   CommunitySource
	Organisations OrganisationIndex
	Items         ItemIndex
	Nodes         NodeIndex
	Directory     lifecycle.DirectoryGroupClient
	Logger        *slog.Logger

	// GroupConcurrency bounds concurrent directory checks.
	GroupConcurrency int
}

// Report counts what one sweep repaired.
type Report struct {
	Organisations  int      `json:"organisations"`
	Items          int      `json:"items"`
	Nodes          int      `json:"nodes"`
	GroupsCreated  int      `json:"groups_created"`
	GroupsDeleted  int      `json:"groups_deleted"`
	MembersAdded   int      `json:"members_added"`
	MembersRemoved int      `json:"members_removed"`
	Failures       []string `json:"failures,omitempty"`
}

func (r Report) Repairs() int {
	return r.Organisations + r.Items + r.Nodes + r.GroupsCreated + r.GroupsDeleted + r.MembersAdded + r.MembersRemoved
}

// tally is a Report shared by concurrent group checks.
type tally struct {
	mu sync.Mutex
	Report
}

func (t *tally) add(kind string, n int) {
	if n == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch kind {
	case "organisation":
		t.Organisations += n
	case "item":
		t.Items += n
	case "node":
		t.Nodes += n
	case "group_created":
		t.GroupsCreated += n
	case "group_deleted":
		t.GroupsDeleted += n
	case "member_added":
		t.MembersAdded += n
	case "member_removed":
		t.MembersRemoved += n
	}
	repairsTotal.WithLabelValues(kind).Add(float64(n))
}

func (s *Sweeper) fail(ctx context.Context, t *tally, what string, err error) {
	sweepFailures.Inc()
	s.logger().WarnContext(ctx, "reconcile repair failed", "module", "reconcile", "target", what, "error", err)
	t.mu.Lock()
	t.Failures = append(t.Failures, what+": "+err.Error())
	t.mu.Unlock()
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// RunOnce performs one full sweep. Failures of individual repairs are collected in the
// report; an error is returned only when the sources of truth cannot be read.
func (s *Sweeper) RunOnce(ctx context.Context) (rep Report, err error) {
	ctx, span := tracer.Start(ctx, "Reconcile.RunOnce")
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		sweepDuration.Observe(time.Since(start).Seconds())
	}()

	contracts, err := s.Contracts.List(ctx, domain.ContractFilter{IncludeDeleted: true})
	if err != nil {
		return Report{}, err
	}
	communities, err := s.Communities.List(ctx, domain.CommunityFilter{})
	if err != nil {
		return Report{}, err
	}

	t := &tally{}
	if err := s.organisations(ctx, t, contracts); err != nil {
		return Report{}, err
	}
	if err := s.items(ctx, t, contracts); err != nil {
		return Report{}, err
	}
	if err := s.nodes(ctx, t, communities); err != nil {
		return Report{}, err
	}
	s.groups(ctx, t, contracts, communities)

	sort.Strings(t.Failures)
	s.logger().InfoContext(ctx, "reconcile sweep finished",
		"module", "reconcile",
		"repairs", t.Repairs(),
		"failures", len(t.Failures),
	)
	return t.Report, nil
}

// organisations repairs hasContracts and hasContractRequests. The listing only nominates
// suspects: each one is decided from a fresh read of its contract, and every change is a
// single add or remove, so operations that land during the sweep are never undone.
func (s *Sweeper) organisations(ctx context.Context, t *tally, contracts []domain.Contract) error {
	members, pending := map[string][]string{}, map[string][]string{}
	for _, c := range contracts {
		if c.Deleted {
			continue
		}
		for _, cid := range c.Organisations {
			members[cid] = append(members[cid], c.Ctid)
		}
		for _, cid := range c.PendingOrganisations {
			pending[cid] = append(pending[cid], c.Ctid)
		}
	}
	orgs, err := s.Organisations.List(ctx)
	if err != nil {
		return err
	}
	for _, o := range orgs {
		ids := append(suspects(members[o.Cid], o.HasContracts), suspects(pending[o.Cid], o.HasContractRequests)...)
		slices.Sort(ids)
		var p domain.OrganisationPatch
		failed := false
		for _, ctid := range slices.Compact(ids) {
			c, err := s.contract(ctx, ctid)
			if err != nil {
				s.fail(ctx, t, "organisation "+o.Cid, err)
				failed = true
				break
			}
			member := !c.Deleted && c.IsMember(o.Cid)
			switch has := domain.Contains(o.HasContracts, ctid); {
			case member && !has:
				p.AddContracts = append(p.AddContracts, ctid)
			case !member && has:
				p.RemoveContracts = append(p.RemoveContracts, ctid)
			}
			invited := !c.Deleted && c.IsPending(o.Cid)
			switch has := domain.Contains(o.HasContractRequests, ctid); {
			case invited && !has:
				p.AddContractRequests = append(p.AddContractRequests, ctid)
			case !invited && has:
				p.RemoveContractRequests = append(p.RemoveContractRequests, ctid)
			}
		}
		if failed || p.Empty() {
			continue
		}
		if err := s.Organisations.Apply(ctx, o.Cid, p); err != nil {
			s.fail(ctx, t, "organisation "+o.Cid, err)
			continue
		}
		t.add("organisation", 1)
	}
	return nil
}

func (s *Sweeper) items(ctx context.Context, t *tally, contracts []domain.Contract) error {
	want := map[string][]string{}
	for _, c := range contracts {
		if c.Deleted {
			continue
		}
		for _, it := range c.Items {
			want[it.Oid] = append(want[it.Oid], c.Ctid)
		}
	}
	items, err := s.Items.List(ctx)
	if err != nil {
		return err
	}
	for _, it := range items {
		changed, err := s.item(ctx, it, suspects(want[it.Oid], it.HasContracts))
		if err != nil {
			s.fail(ctx, t, "item "+it.Oid, err)
		}
		if changed {
			t.add("item", 1)
		}
	}
	return nil
}

func (s *Sweeper) item(ctx context.Context, it domain.Item, ctids []string) (changed bool, err error) {
	for _, ctid := range ctids {
		c, err := s.contract(ctx, ctid)
		if err != nil {
			return changed, err
		}
		_, attached := c.Item(it.Oid)
		attached = attached && !c.Deleted
		switch has := domain.Contains(it.HasContracts, ctid); {
		case attached && !has:
			err = s.Items.AddContract(ctx, it.Oid, ctid)
		case !attached && has:
			err = s.Items.RemoveContract(ctx, it.Oid, ctid)
		default:
			continue
		}
		if err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

func (s *Sweeper) nodes(ctx context.Context, t *tally, communities []domain.Community) error {
	want := map[string][]string{}
	for _, c := range communities {
		for _, agid := range c.Nodes() {
			want[agid] = append(want[agid], c.CommID)
		}
	}
	nodes, err := s.Nodes.List(ctx)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		changed, err := s.node(ctx, n, suspects(want[n.Agid], n.HasCommunities))
		if err != nil {
			s.fail(ctx, t, "node "+n.Agid, err)
		}
		if changed {
			t.add("node", 1)
		}
	}
	return nil
}

func (s *Sweeper) node(ctx context.Context, n domain.Node, commIDs []string) (changed bool, err error) {
	for _, commID := range commIDs {
		c, err := s.Communities.Get(ctx, commID)
		missing := errors.Is(err, domain.ErrNotFound)
		if err != nil && !missing {
			return changed, err
		}
		tagged := !missing && domain.Contains(c.Nodes(), n.Agid)
		switch has := domain.Contains(n.HasCommunities, commID); {
		case tagged && !has:
			err = s.Nodes.AddCommunity(ctx, n.Agid, commID)
		case !tagged && has:
			err = s.Nodes.RemoveCommunity(ctx, n.Agid, commID)
		default:
			continue
		}
		if err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// contract reads ctid fresh. A contract that no longer exists reads as deleted.
func (s *Sweeper) contract(ctx context.Context, ctid string) (domain.Contract, error) {
	c, err := s.Contracts.Get(ctx, ctid)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Contract{Ctid: ctid, Deleted: true}, nil
	}
	return c, err
}

// suspects lists the ids on which a snapshot and an index disagree, in either direction.
func suspects(snapshot, index []string) []string {
	missing, extra := domain.Diff(snapshot, index)
	return append(missing, extra...)
}

type groupSpec struct {
	id, name string
	members  []string
	gone     bool
}

func (s *Sweeper) groups(ctx context.Context, t *tally, contracts []domain.Contract, communities []domain.Community) {
	var specs []groupSpec
	for _, c := range contracts {
		specs = append(specs, groupSpec{id: c.Ctid, name: c.GroupName(), members: c.GroupMembers(), gone: c.Deleted})
	}
	for _, c := range communities {
		specs = append(specs, groupSpec{id: c.CommID, name: c.GroupName(), members: c.Nodes()})
	}

	limit := s.GroupConcurrency
	if limit <= 0 {
		limit = 4
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, spec := range specs {
		g.Go(func() error {
			if err := s.group(ctx, t, spec); err != nil {
				s.fail(ctx, t, "group "+spec.id, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Sweeper) group(ctx context.Context, t *tally, spec groupSpec) error {
	g, err := s.Directory.GetGroup(ctx, spec.id)
	missing := errors.Is(err, domain.ErrNotFound)
	if err != nil && !missing {
		return err
	}
	if spec.gone {
		if missing {
			return nil
		}
		if err := s.Directory.DeleteGroup(ctx, spec.id); err != nil {
			return err
		}
		t.add("group_deleted", 1)
		return nil
	}
	if missing {
		if err := s.Directory.CreateGroup(ctx, spec.id, spec.name); err != nil {
			return err
		}
		t.add("group_created", 1)
	}
	add, remove := domain.Diff(spec.members, g.Members)
	for _, p := range add {
		if err := s.Directory.AddPrincipal(ctx, p, spec.id); err != nil {
			return err
		}
		t.add("member_added", 1)
	}
	for _, p := range remove {
		if err := s.Directory.RemovePrincipal(ctx, p, spec.id); err != nil {
			return err
		}
		t.add("member_removed", 1)
	}
	return nil
}
