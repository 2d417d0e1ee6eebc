package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

const (
	opCreateCommunity   = "CommunityMembership.CreateOne"
	opRemoveCommunity   = "CommunityMembership.RemoveOne"
	opAddNode           = "CommunityMembership.AddNode"
	opRemoveNode        = "CommunityMembership.RemoveNode"
	opRemovePartnership = "CommunityMembership.RemovePartnership"
	opGetCommunity      = "CommunityMembership.Get"
	opGetCommunities    = "CommunityMembership.GetMany"
)

// CommunityManager owns communities and partnerships and the node tagging that goes
// with them.
type CommunityManager struct {
	*core
}

type CreateCommunityInput struct {
	Name          string
	Description   string
	Kind          domain.CommunityKind
	Organisations []domain.CommunityOrg
}

// CreateOne creates a community, its directory group and tags every listed node.
func (m *CommunityManager) CreateOne(ctx context.Context, in CreateCommunityInput) (commID string, err error) {
	ctx, done := startOp(ctx, opCreateCommunity, attribute.String("kind", string(in.Kind)))
	defer func() { done(&err) }()

	c, err := domain.NewCommunity(m.NewID("com_"), in.Name, in.Description, in.Kind, in.Organisations, m.Now())
	if err != nil {
		return "", err
	}
	for i, o := range c.Organisations {
		org, err := m.loadOrg(ctx, opCreateCommunity, o.Cid)
		if err != nil {
			return "", err
		}
		if o.Name == "" {
			c.Organisations[i].Name = org.Name
		}
		for _, agid := range o.Nodes {
			if err := m.requireNodeOf(ctx, opCreateCommunity, o.Cid, agid); err != nil {
				return "", err
			}
		}
	}

	steps := []step{
		critical("persist_community", func(ctx context.Context) error { return m.Communities.Create(ctx, c) }),
		critical("directory_create_group", func(ctx context.Context) error {
			return m.Directory.CreateGroup(ctx, c.CommID, c.GroupName())
		}),
	}
	for _, agid := range c.Nodes() {
		steps = append(steps, m.joinSteps(c.CommID, agid)...)
	}
	if err := m.runSteps(ctx, opCreateCommunity, steps...); err != nil {
		return "", err
	}
	return c.CommID, nil
}

// RemoveOne tears a community down: nodes untagged, document and group deleted.
func (m *CommunityManager) RemoveOne(ctx context.Context, commID string) (err error) {
	ctx, done := startOp(ctx, opRemoveCommunity, attribute.String("comm_id", commID))
	defer func() { done(&err) }()

	c, err := m.loadCommunity(ctx, opRemoveCommunity, commID)
	if err != nil {
		return err
	}
	return m.runSteps(ctx, opRemoveCommunity, m.teardownSteps(c)...)
}

// AddNode adds a node of orgID to the community. A COMMUNITY admits new organisations
// this way; a PARTNERSHIP does not.
func (m *CommunityManager) AddNode(ctx context.Context, commID, orgID, agid string) (err error) {
	ctx, done := startOp(ctx, opAddNode, attribute.String("comm_id", commID), attribute.String("agid", agid))
	defer func() { done(&err) }()

	c, err := m.loadCommunity(ctx, opAddNode, commID)
	if err != nil {
		return err
	}
	var orgName string
	if _, member := c.Member(orgID); !member && c.Kind == domain.KindCommunity {
		org, err := m.loadOrg(ctx, opAddNode, orgID)
		if err != nil {
			return err
		}
		orgName = org.Name
	}
	t, err := c.AddNode(orgID, orgName, agid)
	if err != nil {
		return err
	}
	if err := m.requireNodeOf(ctx, opAddNode, orgID, agid); err != nil {
		return err
	}
	steps := []step{
		critical("persist_community", func(ctx context.Context) error {
			_, err := m.Communities.Apply(ctx, commID, t.Patch)
			return err
		}),
	}
	steps = append(steps, m.joinSteps(commID, agid)...)
	return m.runSteps(ctx, opAddNode, steps...)
}

// RemoveNode drops a node, prunes emptied organisation entries and destroys the
// community once nobody is left. Pruning is decided by the repository on the stored
// document, so a node added concurrently keeps its organisation in.
func (m *CommunityManager) RemoveNode(ctx context.Context, commID, orgID, agid string) (err error) {
	ctx, done := startOp(ctx, opRemoveNode, attribute.String("comm_id", commID), attribute.String("agid", agid))
	defer func() { done(&err) }()

	c, err := m.loadCommunity(ctx, opRemoveNode, commID)
	if err != nil {
		return err
	}
	t, err := c.RemoveNode(orgID, agid)
	if err != nil {
		return err
	}
	var after domain.Community
	steps := append(m.leaveSteps(commID, agid), critical("persist_community", func(ctx context.Context) error {
		var err error
		after, err = m.Communities.Apply(ctx, commID, t.Patch)
		return err
	}))
	if err := m.runSteps(ctx, opRemoveNode, steps...); err != nil {
		return err
	}
	if t.Patch.Dissolves(after) {
		return m.runSteps(ctx, opRemoveNode, m.dropGroupStep(commID))
	}
	return nil
}

// RemovePartnership tears down the partnership between orgA and orgB. Friendship
// between the two organisations is left as it is.
func (m *CommunityManager) RemovePartnership(ctx context.Context, orgA, orgB string) (err error) {
	ctx, done := startOp(ctx, opRemovePartnership, attribute.String("org_a", orgA), attribute.String("org_b", orgB))
	defer func() { done(&err) }()

	if orgA == "" || orgB == "" || orgA == orgB {
		return domain.Validation(opRemovePartnership, "two distinct organisations are required")
	}
	c, err := m.Communities.FindPartnership(ctx, orgA, orgB)
	if err != nil {
		return notFoundOr(opRemovePartnership, "partnership between "+orgA+" and "+orgB, err)
	}
	return m.runSteps(ctx, opRemovePartnership, m.teardownSteps(c)...)
}

func (m *CommunityManager) Get(ctx context.Context, commID string) (domain.Community, error) {
	return m.loadCommunity(ctx, opGetCommunity, commID)
}

func (m *CommunityManager) GetMany(ctx context.Context, f domain.CommunityFilter) (out []domain.Community, err error) {
	ctx, done := startOp(ctx, opGetCommunities)
	defer func() { done(&err) }()

	f.PageSize = domain.ClampPageSize(f.PageSize)
	out, err = m.Communities.List(ctx, f)
	if err != nil {
		return nil, domain.Unexpected(opGetCommunities, err)
	}
	return out, nil
}

func (m *CommunityManager) requireNodeOf(ctx context.Context, op, cid, agid string) error {
	n, err := m.loadNode(ctx, op, agid)
	if err != nil {
		return err
	}
	if n.Cid != cid {
		return domain.Validation(op, "node "+agid+" does not belong to organisation "+cid)
	}
	return nil
}

func (m *CommunityManager) joinSteps(commID, agid string) []step {
	return []step{
		critical("tag_node", func(ctx context.Context) error { return m.Nodes.AddCommunity(ctx, agid, commID) }),
		critical("directory_add_principal", func(ctx context.Context) error {
			return m.Directory.AddPrincipal(ctx, agid, commID)
		}),
	}
}

func (m *CommunityManager) leaveSteps(commID, agid string) []step {
	return []step{
		critical("untag_node", func(ctx context.Context) error { return m.Nodes.RemoveCommunity(ctx, agid, commID) }),
		bestEffort("directory_remove_principal", func(ctx context.Context) error {
			return m.Directory.RemovePrincipal(ctx, agid, commID)
		}),
	}
}

func (m *CommunityManager) destroySteps(commID string) []step {
	return []step{
		critical("delete_community", func(ctx context.Context) error { return m.Communities.Delete(ctx, commID) }),
		m.dropGroupStep(commID),
	}
}

func (m *CommunityManager) dropGroupStep(commID string) step {
	return bestEffort("directory_delete_group", func(ctx context.Context) error { return m.Directory.DeleteGroup(ctx, commID) })
}

func (m *CommunityManager) teardownSteps(c domain.Community) []step {
	var steps []step
	for _, agid := range c.Nodes() {
		steps = append(steps, m.leaveSteps(c.CommID, agid)...)
	}
	return append(steps, m.destroySteps(c.CommID)...)
}
