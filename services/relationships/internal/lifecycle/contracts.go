package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

const (
	opCreateContract = "ContractLifecycle.CreateOne"
	opAcceptContract = "ContractLifecycle.AcceptContractRequest"
	opRejectContract = "ContractLifecycle.RejectContractRequest"
	opRemoveOrg      = "ContractLifecycle.RemoveOrgFromContract"
	opCascade        = "ContractLifecycle.TestAfterRemoving"
	opGetContracts   = "ContractLifecycle.GetMany"
	opGetContract    = "ContractLifecycle.Get"
)

// ContractManager owns contract creation, invitation accept/reject, member abandonment
// and the cascade rule.
type ContractManager struct {
	*core
}

type CreateContractInput struct {
	InviterOrg  string
	ActingUser  string
	Terms       string
	InvitedOrgs []string
	Description string
	Audit       domain.AuditContext
}

// CreateOne creates a contract between the inviter and exactly one invited organisation
// and returns its ctid.
func (m *ContractManager) CreateOne(ctx context.Context, in CreateContractInput) (ctid string, err error) {
	ctx, done := startOp(ctx, opCreateContract, attribute.String("inviter", in.InviterOrg))
	defer func() { done(&err) }()

	switch {
	case len(in.InvitedOrgs) == 0:
		return "", domain.Validation(opCreateContract, "an invited organisation is required")
	case len(in.InvitedOrgs) > 1:
		return "", domain.Validation(opCreateContract, "contracts with more than one invited organisation are not supported")
	}
	invitedID := in.InvitedOrgs[0]
	if invitedID == in.InviterOrg {
		return "", domain.Validation(opCreateContract, "an organisation cannot invite itself")
	}
	inviter, err := m.loadOrg(ctx, opCreateContract, in.InviterOrg)
	if err != nil {
		return "", err
	}
	invited, err := m.loadOrg(ctx, opCreateContract, invitedID)
	if err != nil {
		return "", err
	}
	if !invited.IsActive() {
		return "", domain.Validation(opCreateContract, "organisation "+invitedID+" is not active")
	}
	if !invited.IsFriendOf(inviter.Cid) {
		return "", domain.Validation(opCreateContract, "organisations "+inviter.Cid+" and "+invitedID+" are not partners")
	}
	if inviter.SharesContractWith(invited) {
		return "", domain.Validation(opCreateContract, "a contract or contract request already exists between "+inviter.Cid+" and "+invitedID)
	}

	c := domain.NewContract(m.NewID("ctr_"), inviter.Cid, invitedID, in.Terms, in.Description, m.Now())
	err = m.runSteps(ctx, opCreateContract,
		critical("persist_contract", func(ctx context.Context) error { return m.Contracts.Create(ctx, c) }),
		critical("index_inviter", m.patchOrg(inviter.Cid, domain.OrganisationPatch{AddContracts: []string{c.Ctid}})),
		critical("index_invited", m.patchOrg(invitedID, domain.OrganisationPatch{AddContractRequests: []string{c.Ctid}})),
		critical("notify_invited", func(ctx context.Context) error {
			return m.requestContract(ctx, inviter.Cid, invitedID, c.Ctid)
		}),
		critical("audit_created", func(ctx context.Context) error {
			return m.auditContract(ctx, domain.AuditContractCreated, in.ActingUser, inviter.Cid, c.Ctid, in.Audit)
		}),
		critical("directory_create_group", func(ctx context.Context) error {
			return m.Directory.CreateGroup(ctx, c.Ctid, c.GroupName())
		}),
	)
	if err != nil {
		return "", err
	}
	return c.Ctid, nil
}

// requireRequest checks the reverse index before touching the contract: only an
// organisation that holds ctid among its contract requests may answer it.
func (m *ContractManager) requireRequest(ctx context.Context, op, ctid, orgID string) (domain.Contract, error) {
	org, err := m.loadOrg(ctx, op, orgID)
	if err != nil {
		return domain.Contract{}, err
	}
	if !domain.Contains(org.HasContractRequests, ctid) {
		return domain.Contract{}, domain.Validation(op, "organisation "+orgID+" has no request for contract "+ctid)
	}
	return m.loadContract(ctx, op, ctid)
}

// AcceptContractRequest makes a pending organisation an active member.
func (m *ContractManager) AcceptContractRequest(ctx context.Context, ctid, orgID, userID string, ac domain.AuditContext) (err error) {
	ctx, done := startOp(ctx, opAcceptContract, attribute.String("ctid", ctid), attribute.String("cid", orgID))
	defer func() { done(&err) }()

	c, err := m.requireRequest(ctx, opAcceptContract, ctid, orgID)
	if err != nil {
		return err
	}
	t, err := c.Accept(orgID)
	if err != nil {
		return err
	}
	steps := []step{
		critical("persist_contract", func(ctx context.Context) error { return m.applyContract(ctx, ctid, t.Patch) }),
		critical("index_member", m.patchOrg(orgID, domain.OrganisationPatch{
			RemoveContractRequests: []string{ctid},
			AddContracts:           []string{ctid},
		})),
		critical("resolve_request", func(ctx context.Context) error {
			return m.resolveRequest(ctx, orgID, ctid, domain.NotifAccepted)
		}),
		critical("audit_joined", func(ctx context.Context) error {
			return m.auditContract(ctx, domain.AuditContractJoined, userID, orgID, ctid, ac)
		}),
	}
	steps = append(steps, m.gatewaySteps(opAcceptContract, ctid, t.Effects)...)
	return m.runSteps(ctx, opAcceptContract, steps...)
}

// RejectContractRequest drops a pending organisation and runs the cascade rule.
func (m *ContractManager) RejectContractRequest(ctx context.Context, ctid, orgID, userID string, ac domain.AuditContext) (err error) {
	ctx, done := startOp(ctx, opRejectContract, attribute.String("ctid", ctid), attribute.String("cid", orgID))
	defer func() { done(&err) }()

	c, err := m.requireRequest(ctx, opRejectContract, ctid, orgID)
	if err != nil {
		return err
	}
	t, err := c.Reject(orgID)
	if err != nil {
		return err
	}
	err = m.runSteps(ctx, opRejectContract,
		critical("persist_contract", func(ctx context.Context) error { return m.applyContract(ctx, ctid, t.Patch) }),
		critical("index_request", m.patchOrg(orgID, domain.OrganisationPatch{RemoveContractRequests: []string{ctid}})),
		critical("resolve_request", func(ctx context.Context) error {
			return m.resolveRequest(ctx, orgID, ctid, domain.NotifRejected)
		}),
	)
	if err != nil {
		return err
	}
	return m.afterRemoving(ctx, opRejectContract, ctid, orgID, userID, ac, nil)
}

// RemoveOrgFromContract is the abandonment of a contract by one of its active members.
func (m *ContractManager) RemoveOrgFromContract(ctx context.Context, ctid, orgID, userID string, ac domain.AuditContext) (err error) {
	ctx, done := startOp(ctx, opRemoveOrg, attribute.String("ctid", ctid), attribute.String("cid", orgID))
	defer func() { done(&err) }()

	c, err := m.loadContract(ctx, opRemoveOrg, ctid)
	if err != nil {
		return err
	}
	t, err := c.Abandon(orgID)
	if err != nil {
		return err
	}
	steps := []step{
		critical("persist_contract", func(ctx context.Context) error { return m.applyContract(ctx, ctid, t.Patch) }),
	}
	steps = append(steps, m.memberSteps(ctid, t.Effects)...)
	steps = append(steps,
		critical("index_member", m.patchOrg(orgID, domain.OrganisationPatch{RemoveContracts: []string{ctid}})),
		critical("audit_abandoned", func(ctx context.Context) error {
			return m.auditContract(ctx, domain.AuditContractAbandoned, userID, orgID, ctid, ac)
		}),
	)
	if err := m.runSteps(ctx, opRemoveOrg, steps...); err != nil {
		return err
	}
	return m.afterRemoving(ctx, opRemoveOrg, ctid, orgID, userID, ac, c.ItemIDs())
}

// afterRemoving runs the cascade rule and records the deletion. The gateways that served
// the contract before the change hear about it whether or not the contract survives.
func (m *ContractManager) afterRemoving(ctx context.Context, op, ctid, orgID, userID string, ac domain.AuditContext, servedBefore []string) error {
	removed, err := m.cascade(ctx, ctid, servedBefore)
	if err != nil {
		return err
	}
	if removed {
		return m.runSteps(ctx, op, critical("audit_deleted", func(ctx context.Context) error {
			return m.auditContract(ctx, domain.AuditContractDeleted, userID, orgID, ctid, ac)
		}))
	}
	if len(servedBefore) > 0 {
		return m.runSteps(ctx, op, m.pushStep(op, ctid, servedBefore))
	}
	return nil
}

// TestAfterRemoving applies the cascade rule to ctid and reports whether the contract
// was deleted by this call. It is a no-op on a contract that is already deleted.
func (m *ContractManager) TestAfterRemoving(ctx context.Context, ctid string) (bool, error) {
	return m.cascade(ctx, ctid, nil)
}

// cascade applies the cascade rule. servedBefore lists items that were attached before
// the caller's own change; their gateways are pushed together with the remaining ones.
func (m *ContractManager) cascade(ctx context.Context, ctid string, servedBefore []string) (removed bool, err error) {
	ctx, done := startOp(ctx, opCascade, attribute.String("ctid", ctid))
	defer func() { done(&err) }()

	c, err := m.loadContract(ctx, opCascade, ctid)
	if err != nil {
		return false, err
	}
	t, out := c.Cascade()
	if t.Patch.Empty() {
		return false, nil
	}

	applied := false
	err = m.runSteps(ctx, opCascade, critical("persist_contract", func(ctx context.Context) error {
		var err error
		applied, err = m.Contracts.Apply(ctx, ctid, t.Patch)
		return err
	}))
	if err != nil {
		return false, err
	}
	if !applied {
		// Another cascade deleted the contract first and owns the teardown.
		return false, nil
	}

	groupDelete, rest := splitEffects(t.Effects, domain.EffectGroupDelete)
	steps := m.memberSteps(ctid, rest)
	if out.Detached != "" {
		steps = append(steps, critical("index_detached", m.patchOrg(out.Detached, domain.OrganisationPatch{RemoveContracts: []string{ctid}})))
	}
	for _, pending := range out.StillPending {
		steps = append(steps,
			critical("reject_pending_request", func(ctx context.Context) error {
				return m.resolveRequest(ctx, pending, ctid, domain.NotifRejected)
			}),
			critical("index_pending", m.patchOrg(pending, domain.OrganisationPatch{RemoveContractRequests: []string{ctid}})),
		)
	}
	steps = append(steps, m.memberSteps(ctid, groupDelete)...)
	steps = append(steps, m.gatewaySteps(opCascade, ctid, rest, servedBefore...)...)
	if err := m.runSteps(ctx, opCascade, steps...); err != nil {
		return false, err
	}
	return out.Removed, nil
}

// GetMany lists contracts; deleted ones only when the filter asks for them.
func (m *ContractManager) GetMany(ctx context.Context, f domain.ContractFilter) (out []domain.Contract, err error) {
	ctx, done := startOp(ctx, opGetContracts)
	defer func() { done(&err) }()

	f.PageSize = domain.ClampPageSize(f.PageSize)
	out, err = m.Contracts.List(ctx, f)
	if err != nil {
		return nil, domain.Unexpected(opGetContracts, err)
	}
	return out, nil
}

func (m *ContractManager) Get(ctx context.Context, ctid string) (domain.Contract, error) {
	return m.loadContract(ctx, opGetContract, ctid)
}
