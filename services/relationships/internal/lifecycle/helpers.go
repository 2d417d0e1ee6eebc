package lifecycle

import (
	"context"
	"errors"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

const auditSource = "relationships"

func notFoundOr(op, what string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFound(op, what+" not found")
	}
	return domain.Unexpected(op, err)
}

func (c *core) loadContract(ctx context.Context, op, ctid string) (domain.Contract, error) {
	ct, err := c.Contracts.Get(ctx, ctid)
	if err != nil {
		return domain.Contract{}, notFoundOr(op, "contract "+ctid, err)
	}
	return ct, nil
}

func (c *core) loadOrg(ctx context.Context, op, cid string) (domain.Organisation, error) {
	o, err := c.Organisations.Get(ctx, cid)
	if err != nil {
		return domain.Organisation{}, notFoundOr(op, "organisation "+cid, err)
	}
	return o, nil
}

func (c *core) loadCommunity(ctx context.Context, op, commID string) (domain.Community, error) {
	cm, err := c.Communities.Get(ctx, commID)
	if err != nil {
		return domain.Community{}, notFoundOr(op, "community "+commID, err)
	}
	return cm, nil
}

func (c *core) loadNode(ctx context.Context, op, agid string) (domain.Node, error) {
	n, err := c.Nodes.Get(ctx, agid)
	if err != nil {
		return domain.Node{}, notFoundOr(op, "node "+agid, err)
	}
	return n, nil
}

func (c *core) applyContract(ctx context.Context, ctid string, p domain.ContractPatch) error {
	_, err := c.Contracts.Apply(ctx, ctid, p)
	return err
}

func (c *core) patchOrg(cid string, p domain.OrganisationPatch) func(context.Context) error {
	return func(ctx context.Context) error { return c.Organisations.Apply(ctx, cid, p) }
}

func (c *core) requestContract(ctx context.Context, inviter, invited, ctid string) error {
	_, err := c.Notifications.Create(ctx, domain.Notification{
		ID:      c.NewID("ntf_"),
		Owner:   invited,
		Actor:   domain.EntityRef{ID: inviter, Type: domain.EntityOrganisation},
		Target:  domain.EntityRef{ID: invited, Type: domain.EntityOrganisation},
		Object:  &domain.EntityRef{ID: ctid, Type: domain.EntityContract},
		Type:    domain.NotifContractRequest,
		Status:  domain.NotifWaiting,
		Created: c.Now(),
	})
	return err
}

// resolveRequest moves every WAITING contract request addressed to owner for ctid into
// status and marks it read.
func (c *core) resolveRequest(ctx context.Context, owner, ctid string, status domain.NotificationStatus) error {
	found, err := c.Notifications.Find(ctx, domain.NotificationFilter{
		Owner:    owner,
		Type:     domain.NotifContractRequest,
		Status:   domain.NotifWaiting,
		ObjectID: ctid,
	})
	if err != nil {
		return err
	}
	for _, n := range found {
		if err := c.Notifications.SetStatus(ctx, n.ID, status); err != nil {
			return err
		}
		if err := c.Notifications.MarkRead(ctx, n.ID); err != nil {
			return err
		}
	}
	return nil
}

func (c *core) auditContract(ctx context.Context, typ domain.AuditType, userID, cid, ctid string, ac domain.AuditContext) error {
	return c.Audit.Record(ctx, domain.AuditEvent{
		ID:      c.NewID("aud_"),
		Actor:   domain.EntityRef{ID: userID, Type: domain.EntityUser},
		Target:  domain.EntityRef{ID: cid, Type: domain.EntityOrganisation},
		Object:  &domain.EntityRef{ID: ctid, Type: domain.EntityContract},
		Type:    typ,
		Labels:  domain.AuditLabels{AuditContext: ac, Source: auditSource},
		Created: c.Now(),
	})
}

func splitEffects(effects []domain.Effect, kind domain.EffectKind) (match, rest []domain.Effect) {
	for _, e := range effects {
		if e.Kind == kind {
			match = append(match, e)
		} else {
			rest = append(rest, e)
		}
	}
	return match, rest
}
