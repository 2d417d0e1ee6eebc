package domain

import (
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func approved(items ...ContractItem) Contract {
	c := NewContract("ctr_1", "A", "B", "terms", "", t0)
	c = ApplyContractPatch(c, ContractPatch{RemovePending: []string{"B"}, AddOrganisations: []string{"B"}, AddItems: items, Status: ContractApproved})
	return c
}

func kinds(effects []Effect) []EffectKind {
	var out []EffectKind
	for _, e := range effects {
		out = append(out, e.Kind)
	}
	return out
}

func TestAcceptMovesPendingToMembers(t *testing.T) {
	c := NewContract("ctr_1", "A", "B", "terms", "", t0)
	tr, err := c.Accept("B")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !reflect.DeepEqual(tr.Next.Organisations, []string{"A", "B"}) || len(tr.Next.PendingOrganisations) != 0 {
		t.Fatalf("unexpected membership: %+v", tr.Next)
	}
	if tr.Patch.Status != ContractApproved || tr.Next.Status != ContractApproved {
		t.Fatalf("expected approved status, got patch=%q next=%q", tr.Patch.Status, tr.Next.Status)
	}
	if got := ApplyContractPatch(c, tr.Patch); !reflect.DeepEqual(got, tr.Next) {
		t.Fatalf("patch does not reproduce next state:\n%+v\n%+v", got, tr.Next)
	}
	if _, err := c.Accept("A"); StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for active member, got %v", err)
	}
}

func TestAbandonStripsOwnedItems(t *testing.T) {
	c := approved(
		ContractItem{Oid: "a1", Cid: "A", Enabled: true},
		ContractItem{Oid: "a2", Cid: "A"},
		ContractItem{Oid: "b1", Cid: "B", Enabled: true},
	)
	tr, err := c.Abandon("A")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if !reflect.DeepEqual(tr.Next.ItemIDs(), []string{"b1"}) {
		t.Fatalf("expected only b1 left, got %v", tr.Next.ItemIDs())
	}
	want := []EffectKind{EffectItemIndexRemove, EffectGroupMemberRemove, EffectItemIndexRemove}
	if !reflect.DeepEqual(kinds(tr.Effects), want) {
		t.Fatalf("effects = %v, want %v", kinds(tr.Effects), want)
	}
	if _, err := c.Abandon("Z"); StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-member, got %v", err)
	}
}

func TestCascadeDetachesSoleMemberAndDeletes(t *testing.T) {
	c := approved(ContractItem{Oid: "a1", Cid: "A", Enabled: true})
	c = ApplyContractPatch(c, ContractPatch{RemoveOrganisations: []string{"B"}})

	tr, out := c.Cascade()
	if out.Detached != "A" || !out.Removed || len(out.StillPending) != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !tr.Patch.MarkDeleted || !tr.Next.Deleted || tr.Next.Status != ContractDeleted {
		t.Fatalf("expected deletion, got %+v", tr.Next)
	}
	if len(tr.Next.Items) != 0 || len(tr.Next.Organisations) != 0 {
		t.Fatalf("expected empty contract, got %+v", tr.Next)
	}
	last := tr.Effects[len(tr.Effects)-1]
	if last.Kind != EffectGatewaysChanged || !reflect.DeepEqual(last.Oids, []string{"a1"}) {
		t.Fatalf("expected gateways push for a1, got %+v", last)
	}
}

func TestCascadeKeepsInvitationsAliveUntilMembersLeave(t *testing.T) {
	c := NewContract("ctr_1", "A", "B", "terms", "", t0)
	if tr, out := c.Cascade(); !tr.Patch.Empty() || out.Removed {
		t.Fatalf("pending contract must survive, got %+v %+v", tr.Patch, out)
	}

	c = ApplyContractPatch(c, ContractPatch{RemoveOrganisations: []string{"A"}})
	_, out := c.Cascade()
	if !out.Removed || !reflect.DeepEqual(out.StillPending, []string{"B"}) || out.Detached != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestCascadeOnDeletedContractIsEmpty(t *testing.T) {
	c := NewContract("ctr_1", "A", "B", "terms", "", t0)
	c.Deleted = true
	tr, out := c.Cascade()
	if !tr.Patch.Empty() || len(tr.Effects) != 0 || out.Removed {
		t.Fatalf("expected no-op, got %+v %+v", tr, out)
	}
	if !(ContractPatch{MarkDeleted: true}).Rejects(c) {
		t.Fatalf("deletion of a deleted contract must be rejected")
	}
}

func TestAttachItemPreconditions(t *testing.T) {
	c := approved(ContractItem{Oid: "a1", Cid: "A"})
	cases := []struct {
		name string
		item Item
	}{
		{"private", Item{Oid: "x", Cid: "A", Status: ItemEnabled, Privacy: PrivacyPrivate}},
		{"disabled", Item{Oid: "x", Cid: "A", Status: ItemDisabled, Privacy: PrivacyPublic}},
		{"foreign", Item{Oid: "x", Cid: "Z", Status: ItemEnabled, Privacy: PrivacyPublic}},
		{"duplicate", Item{Oid: "a1", Cid: "A", Status: ItemEnabled, Privacy: PrivacyPublic}},
	}
	for _, tc := range cases {
		if _, err := c.AttachItem(tc.item, "", false, true); StatusOf(err) != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %v", tc.name, err)
		}
	}

	tr, err := c.AttachItem(Item{Oid: "a2", Cid: "A", Uid: "u", Status: ItemEnabled, Privacy: PrivacyForFriends}, "", true, false)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	want := []EffectKind{EffectItemIndexAdd, EffectGatewaysChanged}
	if !reflect.DeepEqual(kinds(tr.Effects), want) {
		t.Fatalf("effects = %v, want %v", kinds(tr.Effects), want)
	}
	if it, _ := tr.Next.Item("a2"); !it.RW || it.Enabled || it.Uid != "u" {
		t.Fatalf("unexpected item %+v", it)
	}
}

func TestTransitionsOnDeletedContractAreNotFound(t *testing.T) {
	c := approved()
	c.Deleted = true
	_, err := c.Abandon("A")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := c.DetachItems([]string{"x"}); StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestApplyContractPatchKeepsMembershipDisjoint(t *testing.T) {
	c := NewContract("ctr_1", "A", "B", "terms", "", t0)
	c = ApplyContractPatch(c, ContractPatch{AddOrganisations: []string{"B"}})
	if !reflect.DeepEqual(c.Organisations, []string{"A", "B"}) || len(c.PendingOrganisations) != 0 {
		t.Fatalf("adding a member must clear its pending entry: %+v", c)
	}
}
