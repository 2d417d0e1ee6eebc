package lifecycle

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

const (
	opAddItem     = "ContractItems.AddItem"
	opEditItem    = "ContractItems.EditItem"
	opRemoveItems = "ContractItems.RemoveItems"
)

// ItemRegistry manages the items attached to a contract.
type ItemRegistry struct {
	*core
}

// Item returns a registered item; callers use it to check ownership before attaching.
func (r *ItemRegistry) Item(ctx context.Context, oid string) (domain.Item, error) {
	return r.Items.Get(ctx, oid)
}

// AddItem attaches an item owned by an active member of ctid.
func (r *ItemRegistry) AddItem(ctx context.Context, ctid, oid string, rw, enabled bool) (err error) {
	ctx, done := startOp(ctx, opAddItem, attribute.String("ctid", ctid), attribute.String("oid", oid))
	defer func() { done(&err) }()

	c, err := r.loadContract(ctx, opAddItem, ctid)
	if err != nil {
		return err
	}
	it, err := r.Items.Get(ctx, oid)
	if err != nil {
		return notFoundOr(opAddItem, "item "+oid, err)
	}
	t, err := c.AttachItem(it, "", rw, enabled)
	if err != nil {
		return err
	}
	steps := []step{
		critical("persist_contract", func(ctx context.Context) error { return r.applyContract(ctx, ctid, t.Patch) }),
	}
	steps = append(steps, r.memberSteps(ctid, t.Effects)...)
	steps = append(steps, r.gatewaySteps(opAddItem, ctid, t.Effects)...)
	return r.runSteps(ctx, opAddItem, steps...)
}

type EditItemInput struct {
	Enabled *bool
	RW      *bool
}

// EditItem changes the enabled/rw flags of an attached item.
func (r *ItemRegistry) EditItem(ctx context.Context, ctid, oid string, in EditItemInput) (err error) {
	ctx, done := startOp(ctx, opEditItem, attribute.String("ctid", ctid), attribute.String("oid", oid))
	defer func() { done(&err) }()

	c, err := r.loadContract(ctx, opEditItem, ctid)
	if err != nil {
		return err
	}
	t, err := c.EditItem(oid, in.Enabled, in.RW)
	if err != nil {
		return err
	}
	steps := []step{
		critical("persist_contract", func(ctx context.Context) error { return r.applyContract(ctx, ctid, t.Patch) }),
	}
	steps = append(steps, r.memberSteps(ctid, t.Effects)...)
	steps = append(steps, r.gatewaySteps(opEditItem, ctid, t.Effects)...)
	return r.runSteps(ctx, opEditItem, steps...)
}

// RemoveItems detaches oids from ctid. Nothing changes unless every oid is attached.
func (r *ItemRegistry) RemoveItems(ctx context.Context, ctid string, oids []string) (err error) {
	ctx, done := startOp(ctx, opRemoveItems, attribute.String("ctid", ctid), attribute.String("oids", strings.Join(oids, ",")))
	defer func() { done(&err) }()

	if len(oids) == 0 {
		return domain.Validation(opRemoveItems, "at least one item id is required")
	}
	c, err := r.loadContract(ctx, opRemoveItems, ctid)
	if err != nil {
		return err
	}
	t, err := c.DetachItems(oids)
	if err != nil {
		return err
	}
	steps := []step{
		critical("persist_contract", func(ctx context.Context) error { return r.applyContract(ctx, ctid, t.Patch) }),
	}
	steps = append(steps, r.memberSteps(ctid, t.Effects)...)
	steps = append(steps, r.gatewaySteps(opRemoveItems, ctid, t.Effects)...)
	return r.runSteps(ctx, opRemoveItems, steps...)
}
