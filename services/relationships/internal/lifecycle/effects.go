package lifecycle

import (
	"context"
	"errors"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

func effectRank(k domain.EffectKind) int {
	switch k {
	case domain.EffectItemIndexAdd, domain.EffectItemIndexRemove:
		return 0
	case domain.EffectGroupMemberAdd, domain.EffectGroupMemberRemove:
		return 1
	case domain.EffectGroupDelete:
		return 2
	default:
		return 3
	}
}

// memberSteps turns the index and directory effects of a contract transition into steps,
// item index writes first. Additions are critical; removals are best-effort since the
// directory and the item index are derived data.
func (c *core) memberSteps(ctid string, effects []domain.Effect) []step {
	sorted := append([]domain.Effect{}, effects...)
	sort.SliceStable(sorted, func(i, j int) bool { return effectRank(sorted[i].Kind) < effectRank(sorted[j].Kind) })

	var steps []step
	for _, e := range sorted {
		principal := e.Principal
		switch e.Kind {
		case domain.EffectItemIndexAdd:
			steps = append(steps, critical("item_index_add", func(ctx context.Context) error {
				return c.Items.AddContract(ctx, principal, ctid)
			}))
		case domain.EffectItemIndexRemove:
			steps = append(steps, bestEffort("item_index_remove", func(ctx context.Context) error {
				return c.Items.RemoveContract(ctx, principal, ctid)
			}))
		case domain.EffectGroupMemberAdd:
			steps = append(steps, critical("directory_add_principal", func(ctx context.Context) error {
				return c.Directory.AddPrincipal(ctx, principal, ctid)
			}))
		case domain.EffectGroupMemberRemove:
			steps = append(steps, bestEffort("directory_remove_principal", func(ctx context.Context) error {
				return c.Directory.RemovePrincipal(ctx, principal, ctid)
			}))
		case domain.EffectGroupDelete:
			steps = append(steps, bestEffort("directory_delete_group", func(ctx context.Context) error {
				return c.Directory.DeleteGroup(ctx, ctid)
			}))
		}
	}
	return steps
}

// gatewaySteps schedules the gateway pushes requested by a transition. extra items are
// added to the push only when the transition asks for one.
func (c *core) gatewaySteps(op, ctid string, effects []domain.Effect, extra ...string) []step {
	var oids []string
	found := false
	for _, e := range effects {
		if e.Kind == domain.EffectGatewaysChanged {
			found = true
			oids = append(oids, e.Oids...)
		}
	}
	if !found {
		return nil
	}
	oids = append(oids, extra...)
	slices.Sort(oids)
	return []step{c.pushStep(op, ctid, slices.Compact(oids))}
}

func (c *core) pushStep(op, ctid string, oids []string) step {
	return bestEffort("gateway_push", func(ctx context.Context) error {
		c.pushContractChanged(ctx, op, ctid, oids)
		return nil
	})
}

// pushContractChanged notifies, in the background, every gateway serving one of oids.
// The caller's response never waits on gateways; failures are only logged.
func (c *core) pushContractChanged(ctx context.Context, op, ctid string, oids []string) {
	if c.Agents == nil || len(oids) == 0 {
		return
	}
	bg := context.WithoutCancel(ctx)
	c.pushes.Add(1)
	go func() {
		defer c.pushes.Done()
		gateways, err := c.gatewaysFor(bg, oids)
		if err != nil {
			bestEffortFailures.WithLabelValues(op, "gateway_lookup").Inc()
			c.Logger.WarnContext(bg, "gateway lookup failed",
				"module", "lifecycle", "operation", op, "ctid", ctid, "error", err)
			return
		}
		g := new(errgroup.Group)
		g.SetLimit(c.PushConcurrency)
		for _, gw := range gateways {
			g.Go(func() error {
				if err := c.Agents.NotifyContractChanged(bg, gw, ctid); err != nil {
					gatewayPushes.WithLabelValues("failure").Inc()
					c.Logger.WarnContext(bg, "gateway push failed",
						"module", "lifecycle", "operation", op, "ctid", ctid, "agid", gw, "error", err)
					return nil
				}
				gatewayPushes.WithLabelValues("success").Inc()
				return nil
			})
		}
		_ = g.Wait()
	}()
}

// gatewaysFor resolves the distinct gateways serving the given items. Items that no
// longer exist are skipped.
func (c *core) gatewaysFor(ctx context.Context, oids []string) ([]string, error) {
	items, err := c.Items.GetMany(ctx, oids)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	var out []string
	seen := map[string]bool{}
	for _, it := range items {
		if it.Agid == "" || seen[it.Agid] {
			continue
		}
		seen[it.Agid] = true
		out = append(out, it.Agid)
	}
	return out, nil
}
