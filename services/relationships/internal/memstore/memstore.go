// Package memstore keeps every relationship document in process memory. It backs tests
// and the "memory" store backend; each method holds the store mutex for the whole
// document update, which gives the same single-document atomicity as the database
// backends.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

type Store struct {
	mu            sync.Mutex
	contracts     map[string]domain.Contract
	communities   map[string]domain.Community
	organisations map[string]domain.Organisation
	items         map[string]domain.Item
	nodes         map[string]domain.Node
	notifications []domain.Notification
	audit         []domain.AuditEvent
}

func New() *Store {
	return &Store{
		contracts:     map[string]domain.Contract{},
		communities:   map[string]domain.Community{},
		organisations: map[string]domain.Organisation{},
		items:         map[string]domain.Item{},
		nodes:         map[string]domain.Node{},
	}
}

// Seed is the initial content of a store: the parts of the platform this service reads
// but does not own.
type Seed struct {
	Organisations []domain.Organisation `json:"organisations"`
	Items         []domain.Item         `json:"items"`
	Nodes         []domain.Node         `json:"nodes"`
}

func (s *Store) Load(seed Seed) {
	for _, o := range seed.Organisations {
		s.PutOrganisation(o)
	}
	for _, it := range seed.Items {
		s.PutItem(it)
	}
	for _, n := range seed.Nodes {
		s.PutNode(n)
	}
}

func (s *Store) PutOrganisation(o domain.Organisation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.organisations[o.Cid] = cloneOrg(o)
}

func (s *Store) PutItem(it domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.HasContracts = slices.Clone(it.HasContracts)
	s.items[it.Oid] = it
}

func (s *Store) PutNode(n domain.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.HasCommunities = slices.Clone(n.HasCommunities)
	s.nodes[n.Agid] = n
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

// Contracts

type Contracts struct{ *Store }

func (s *Store) Contracts() Contracts { return Contracts{s} }

func (r Contracts) Create(_ context.Context, c domain.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contracts[c.Ctid]; ok {
		return fmt.Errorf("contract %s already exists", c.Ctid)
	}
	r.contracts[c.Ctid] = cloneContract(c)
	return nil
}

func (r Contracts) Get(_ context.Context, ctid string) (domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[ctid]
	if !ok {
		return domain.Contract{}, notFound("contract", ctid)
	}
	return cloneContract(c), nil
}

func (r Contracts) List(_ context.Context, f domain.ContractFilter) ([]domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.Contract
	for _, c := range r.contracts {
		if f.Matches(c) {
			all = append(all, cloneContract(c))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Created.Equal(all[j].Created) {
			return all[i].Created.Before(all[j].Created)
		}
		return all[i].Ctid < all[j].Ctid
	})
	return domain.Page(all, f.Offset, f.PageSize), nil
}

func (r Contracts) Apply(_ context.Context, ctid string, p domain.ContractPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[ctid]
	if !ok {
		return false, notFound("contract", ctid)
	}
	if p.Rejects(c) {
		return false, nil
	}
	r.contracts[ctid] = domain.ApplyContractPatch(cloneContract(c), p)
	return true, nil
}

// Communities

type Communities struct{ *Store }

func (s *Store) Communities() Communities { return Communities{s} }

func (r Communities) Create(_ context.Context, c domain.Community) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.communities[c.CommID]; ok {
		return fmt.Errorf("community %s already exists", c.CommID)
	}
	r.communities[c.CommID] = cloneCommunity(c)
	return nil
}

func (r Communities) Get(_ context.Context, commID string) (domain.Community, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.communities[commID]
	if !ok {
		return domain.Community{}, notFound("community", commID)
	}
	return cloneCommunity(c), nil
}

func (r Communities) List(_ context.Context, f domain.CommunityFilter) ([]domain.Community, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.Community
	for _, c := range r.communities {
		if f.Matches(c) {
			all = append(all, cloneCommunity(c))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Created.Equal(all[j].Created) {
			return all[i].Created.Before(all[j].Created)
		}
		return all[i].CommID < all[j].CommID
	})
	return domain.Page(all, f.Offset, f.PageSize), nil
}

func (r Communities) Apply(_ context.Context, commID string, p domain.CommunityPatch) (domain.Community, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.communities[commID]
	if !ok {
		return domain.Community{}, notFound("community", commID)
	}
	next := domain.ApplyCommunityPatch(cloneCommunity(c), p)
	if p.Dissolves(next) {
		delete(r.communities, commID)
		return next, nil
	}
	r.communities[commID] = next
	return cloneCommunity(next), nil
}

func (r Communities) Delete(_ context.Context, commID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.communities[commID]; !ok {
		return notFound("community", commID)
	}
	delete(r.communities, commID)
	return nil
}

func (r Communities) FindPartnership(_ context.Context, orgA, orgB string) (domain.Community, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.communities {
		if c.IsPartnershipOf(orgA, orgB) {
			return cloneCommunity(c), nil
		}
	}
	return domain.Community{}, notFound("partnership", orgA+"/"+orgB)
}

// Organisations

type Organisations struct{ *Store }

func (s *Store) Organisations() Organisations { return Organisations{s} }

func (r Organisations) Get(_ context.Context, cid string) (domain.Organisation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.organisations[cid]
	if !ok {
		return domain.Organisation{}, notFound("organisation", cid)
	}
	return cloneOrg(o), nil
}

func (r Organisations) List(_ context.Context) ([]domain.Organisation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Organisation, 0, len(r.organisations))
	for _, o := range r.organisations {
		out = append(out, cloneOrg(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cid < out[j].Cid })
	return out, nil
}

func (r Organisations) Apply(_ context.Context, cid string, p domain.OrganisationPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.organisations[cid]
	if !ok {
		return notFound("organisation", cid)
	}
	r.organisations[cid] = domain.ApplyOrganisationPatch(cloneOrg(o), p)
	return nil
}

// Items

type Items struct{ *Store }

func (s *Store) Items() Items { return Items{s} }

func (r Items) Get(_ context.Context, oid string) (domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[oid]
	if !ok {
		return domain.Item{}, notFound("item", oid)
	}
	it.HasContracts = slices.Clone(it.HasContracts)
	return it, nil
}

// GetMany returns the items that exist among oids, in the order given.
func (r Items) GetMany(_ context.Context, oids []string) ([]domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Item
	for _, oid := range oids {
		if it, ok := r.items[oid]; ok {
			it.HasContracts = slices.Clone(it.HasContracts)
			out = append(out, it)
		}
	}
	return out, nil
}

func (r Items) List(_ context.Context) ([]domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Item, 0, len(r.items))
	for _, it := range r.items {
		it.HasContracts = slices.Clone(it.HasContracts)
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Oid < out[j].Oid })
	return out, nil
}

func (r Items) AddContract(_ context.Context, oid, ctid string) error {
	return r.updateItem(oid, func(it *domain.Item) {
		if !domain.Contains(it.HasContracts, ctid) {
			it.HasContracts = append(it.HasContracts, ctid)
		}
	})
}

func (r Items) RemoveContract(_ context.Context, oid, ctid string) error {
	return r.updateItem(oid, func(it *domain.Item) {
		it.HasContracts = slices.DeleteFunc(it.HasContracts, func(v string) bool { return v == ctid })
	})
}

func (r Items) updateItem(oid string, fn func(*domain.Item)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[oid]
	if !ok {
		return notFound("item", oid)
	}
	it.HasContracts = slices.Clone(it.HasContracts)
	fn(&it)
	r.items[oid] = it
	return nil
}

// Nodes

type Nodes struct{ *Store }

func (s *Store) Nodes() Nodes { return Nodes{s} }

func (r Nodes) Get(_ context.Context, agid string) (domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[agid]
	if !ok {
		return domain.Node{}, notFound("node", agid)
	}
	n.HasCommunities = slices.Clone(n.HasCommunities)
	return n, nil
}

func (r Nodes) List(_ context.Context) ([]domain.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		n.HasCommunities = slices.Clone(n.HasCommunities)
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agid < out[j].Agid })
	return out, nil
}

func (r Nodes) AddCommunity(_ context.Context, agid, commID string) error {
	return r.updateNode(agid, func(n *domain.Node) {
		if !domain.Contains(n.HasCommunities, commID) {
			n.HasCommunities = append(n.HasCommunities, commID)
		}
	})
}

func (r Nodes) RemoveCommunity(_ context.Context, agid, commID string) error {
	return r.updateNode(agid, func(n *domain.Node) {
		n.HasCommunities = slices.DeleteFunc(n.HasCommunities, func(v string) bool { return v == commID })
	})
}

func (r Nodes) updateNode(agid string, fn func(*domain.Node)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[agid]
	if !ok {
		return notFound("node", agid)
	}
	n.HasCommunities = slices.Clone(n.HasCommunities)
	fn(&n)
	r.nodes[agid] = n
	return nil
}

// Notifications

type Notifications struct{ *Store }

func (s *Store) Notifications() Notifications { return Notifications{s} }

func (r Notifications) Create(_ context.Context, n domain.Notification) (domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return n, nil
}

func (r Notifications) Find(_ context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.notifications {
		if f.Matches(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r Notifications) MarkRead(_ context.Context, id string) error {
	return r.updateNotification(id, func(n *domain.Notification) { n.Read = true })
}

func (r Notifications) SetStatus(_ context.Context, id string, status domain.NotificationStatus) error {
	return r.updateNotification(id, func(n *domain.Notification) { n.Status = status })
}

func (r Notifications) updateNotification(id string, fn func(*domain.Notification)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.notifications {
		if r.notifications[i].ID == id {
			fn(&r.notifications[i])
			return nil
		}
	}
	return notFound("notification", id)
}

// Audit

type Audit struct{ *Store }

func (s *Store) Audit() Audit { return Audit{s} }

func (r Audit) Record(_ context.Context, e domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = append(r.audit, e)
	return nil
}

// Events returns the recorded audit trail in insertion order.
func (r Audit) Events() []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.audit)
}

func cloneContract(c domain.Contract) domain.Contract {
	c.Organisations = slices.Clone(c.Organisations)
	c.PendingOrganisations = slices.Clone(c.PendingOrganisations)
	c.Items = slices.Clone(c.Items)
	return c
}

func cloneCommunity(c domain.Community) domain.Community {
	orgs := make([]domain.CommunityOrg, len(c.Organisations))
	for i, o := range c.Organisations {
		o.Nodes = slices.Clone(o.Nodes)
		orgs[i] = o
	}
	c.Organisations = orgs
	return c
}

func cloneOrg(o domain.Organisation) domain.Organisation {
	o.Knows = slices.Clone(o.Knows)
	o.KnowsRequestsFrom = slices.Clone(o.KnowsRequestsFrom)
	o.KnowsRequestsTo = slices.Clone(o.KnowsRequestsTo)
	o.HasContracts = slices.Clone(o.HasContracts)
	o.HasContractRequests = slices.Clone(o.HasContractRequests)
	return o
}
