package domain

import "time"

type CommunityKind string

const (
	KindCommunity   CommunityKind = "COMMUNITY"
	KindPartnership CommunityKind = "PARTNERSHIP"
)

func (k CommunityKind) Valid() bool { return k == KindCommunity || k == KindPartnership }

const communitySource = "community"

type CommunityOrg struct {
	Cid   string   `json:"cid" bson:"cid"`
	Name  string   `json:"name" bson:"name"`
	Nodes []string `json:"nodes" bson:"nodes"`
}

type Community struct {
	CommID        string         `json:"comm_id" bson:"_id"`
	Name          string         `json:"name" bson:"name"`
	Description   string         `json:"description,omitempty" bson:"description,omitempty"`
	Kind          CommunityKind  `json:"kind" bson:"kind"`
	Organisations []CommunityOrg `json:"organisations" bson:"organisations"`
	Created       time.Time      `json:"created" bson:"created"`
}

// NewCommunity validates the creation input. COMMUNITY entries must each list at least
// one node; a PARTNERSHIP is exactly two distinct organisations.
func NewCommunity(commID, name, description string, kind CommunityKind, orgs []CommunityOrg, now time.Time) (Community, error) {
	if !kind.Valid() {
		return Community{}, Validation(communitySource, "unknown community kind "+string(kind))
	}
	if len(orgs) == 0 {
		return Community{}, Validation(communitySource, "community needs at least one organisation")
	}
	seen := map[string]bool{}
	entries := make([]CommunityOrg, 0, len(orgs))
	for _, o := range orgs {
		if o.Cid == "" {
			return Community{}, Validation(communitySource, "organisation id is required")
		}
		if seen[o.Cid] {
			return Community{}, Validation(communitySource, "organisation "+o.Cid+" listed twice")
		}
		seen[o.Cid] = true
		if kind == KindCommunity && len(o.Nodes) == 0 {
			return Community{}, Validation(communitySource, "organisation "+o.Cid+" must contribute at least one node")
		}
		entries = append(entries, CommunityOrg{Cid: o.Cid, Name: o.Name, Nodes: dedupe(o.Nodes)})
	}
	if kind == KindPartnership && len(entries) != 2 {
		return Community{}, Validation(communitySource, "a partnership is exactly two organisations")
	}
	return Community{
		CommID:        commID,
		Name:          name,
		Description:   description,
		Kind:          kind,
		Organisations: entries,
		Created:       now,
	}, nil
}

// GroupName is the display name of the community's directory group.
func (c Community) GroupName() string {
	if c.Kind == KindPartnership && c.Description != "" {
		return c.Description
	}
	return c.Name
}

func (c Community) Member(cid string) (CommunityOrg, bool) {
	for _, o := range c.Organisations {
		if o.Cid == cid {
			return o, true
		}
	}
	return CommunityOrg{}, false
}

func (c Community) OrgIDs() []string {
	out := make([]string, 0, len(c.Organisations))
	for _, o := range c.Organisations {
		out = append(out, o.Cid)
	}
	return out
}

// Nodes lists every member node across organisations.
func (c Community) Nodes() []string {
	var out []string
	for _, o := range c.Organisations {
		out = addToSet(out, o.Nodes)
	}
	return out
}

// IsPartnershipOf reports whether c is the partnership between a and b.
func (c Community) IsPartnershipOf(a, b string) bool {
	return c.Kind == KindPartnership && SameSet(c.OrgIDs(), []string{a, b})
}

type NodeRef struct {
	Cid  string
	Agid string
}

// CommunityPatch is a set of operations applied atomically to one community document.
// PruneEmpty drops COMMUNITY entries left without nodes, judged on the document the
// patch is applied to.
type CommunityPatch struct {
	AddOrganisation *CommunityOrg
	AddNode         *NodeRef
	RemoveNode      *NodeRef
	PruneEmpty      bool
}

func (p CommunityPatch) Empty() bool {
	return p.AddOrganisation == nil && p.AddNode == nil && p.RemoveNode == nil && !p.PruneEmpty
}

// Dissolves reports whether applying p produced next with nobody left. Repositories
// delete such a document instead of saving it.
func (p CommunityPatch) Dissolves(next Community) bool {
	return p.PruneEmpty && len(next.Organisations) == 0
}

// ApplyCommunityPatch is the reference semantics every repository must reproduce.
func ApplyCommunityPatch(c Community, p CommunityPatch) Community {
	orgs := make([]CommunityOrg, 0, len(c.Organisations)+1)
	for _, o := range c.Organisations {
		o.Nodes = append([]string{}, o.Nodes...)
		if p.AddNode != nil && p.AddNode.Cid == o.Cid {
			o.Nodes = addToSet(o.Nodes, []string{p.AddNode.Agid})
		}
		if p.RemoveNode != nil && p.RemoveNode.Cid == o.Cid {
			o.Nodes = without(o.Nodes, []string{p.RemoveNode.Agid})
		}
		if p.PruneEmpty && c.Kind == KindCommunity && len(o.Nodes) == 0 {
			continue
		}
		orgs = append(orgs, o)
	}
	if p.AddOrganisation != nil {
		if _, ok := (Community{Organisations: orgs}).Member(p.AddOrganisation.Cid); !ok {
			add := *p.AddOrganisation
			add.Nodes = dedupe(add.Nodes)
			orgs = append(orgs, add)
		}
	}
	c.Organisations = orgs
	return c
}

// CommunityTransition is the result of a pure community command. Destroy is set when the
// community, as read, would have no organisation left.
type CommunityTransition struct {
	Next    Community
	Patch   CommunityPatch
	Destroy bool
}

// AddNode grows the community by one node. An organisation that is not yet a member
// joins with this node, which only a COMMUNITY allows.
func (c Community) AddNode(cid, orgName, agid string) (CommunityTransition, error) {
	var p CommunityPatch
	if _, ok := c.Member(cid); ok {
		p.AddNode = &NodeRef{Cid: cid, Agid: agid}
	} else {
		if c.Kind == KindPartnership {
			return CommunityTransition{}, Validation(communitySource, "organisation "+cid+" is not part of partnership "+c.CommID)
		}
		p.AddOrganisation = &CommunityOrg{Cid: cid, Name: orgName, Nodes: []string{agid}}
	}
	return CommunityTransition{Next: ApplyCommunityPatch(c, p), Patch: p}, nil
}

// RemoveNode drops a node and prunes COMMUNITY entries left without nodes.
func (c Community) RemoveNode(cid, agid string) (CommunityTransition, error) {
	org, ok := c.Member(cid)
	if !ok {
		return CommunityTransition{}, Validation(communitySource, "organisation "+cid+" is not part of community "+c.CommID)
	}
	if !contains(org.Nodes, agid) {
		return CommunityTransition{}, Validation(communitySource, "node "+agid+" is not part of community "+c.CommID)
	}
	p := CommunityPatch{RemoveNode: &NodeRef{Cid: cid, Agid: agid}, PruneEmpty: true}
	next := ApplyCommunityPatch(c, p)
	return CommunityTransition{Next: next, Patch: p, Destroy: p.Dissolves(next)}, nil
}
