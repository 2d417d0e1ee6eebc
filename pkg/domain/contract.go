package domain

import "time"

type ContractStatus string

const (
	ContractPending  ContractStatus = "Pending"
	ContractApproved ContractStatus = "Approved"
	ContractDeleted  ContractStatus = "Deleted"
)

type ContractType string

const ContractPrivate ContractType = "Private"

const contractSource = "contract"

type ContractItem struct {
	Oid     string `json:"oid" bson:"oid"`
	Cid     string `json:"cid" bson:"cid"`
	Uid     string `json:"uid" bson:"uid"`
	Type    string `json:"type" bson:"type"`
	Enabled bool   `json:"enabled" bson:"enabled"`
	RW      bool   `json:"rw" bson:"rw"`
}

// Contract is a bilateral agreement between organisations. Organisations holds the
// active members and PendingOrganisations the invited ones; the two never overlap.
type Contract struct {
	Ctid                 string         `json:"ctid" bson:"_id"`
	Organisations        []string       `json:"organisations" bson:"organisations"`
	PendingOrganisations []string       `json:"pending_organisations" bson:"pending_organisations"`
	Items                []ContractItem `json:"items" bson:"items"`
	TermsAndConditions   string         `json:"terms_and_conditions" bson:"terms_and_conditions"`
	Description          string         `json:"description,omitempty" bson:"description,omitempty"`
	Type                 ContractType   `json:"type" bson:"type"`
	Status               ContractStatus `json:"status" bson:"status"`
	Deleted              bool           `json:"deleted" bson:"deleted"`
	Created              time.Time      `json:"created" bson:"created"`
	Updated              time.Time      `json:"updated" bson:"updated"`
}

// NewContract builds the initial document: the inviter is the only active member and the
// invited organisation the only pending one.
func NewContract(ctid, inviter, invited, terms, description string, now time.Time) Contract {
	return Contract{
		Ctid:                 ctid,
		Organisations:        []string{inviter},
		PendingOrganisations: []string{invited},
		Items:                []ContractItem{},
		TermsAndConditions:   terms,
		Description:          description,
		Type:                 ContractPrivate,
		Status:               ContractPending,
		Created:              now,
		Updated:              now,
	}
}

func (c Contract) IsMember(cid string) bool  { return contains(c.Organisations, cid) }
func (c Contract) IsPending(cid string) bool { return contains(c.PendingOrganisations, cid) }

func (c Contract) Item(oid string) (ContractItem, bool) {
	for _, it := range c.Items {
		if it.Oid == oid {
			return it, true
		}
	}
	return ContractItem{}, false
}

func (c Contract) ItemIDs() []string {
	out := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, it.Oid)
	}
	return out
}

// ItemsOf returns the attached items owned by cid.
func (c Contract) ItemsOf(cid string) []ContractItem {
	var out []ContractItem
	for _, it := range c.Items {
		if it.Cid == cid {
			out = append(out, it)
		}
	}
	return out
}

// GroupName is the display name of the contract's directory group.
func (c Contract) GroupName() string {
	if c.Description != "" {
		return c.Description
	}
	return c.Ctid
}

// GroupMembers is the directory membership the contract implies: every enabled item.
func (c Contract) GroupMembers() []string {
	var out []string
	for _, it := range c.Items {
		if it.Enabled {
			out = append(out, it.Oid)
		}
	}
	return out
}

func (c Contract) statusAfter() ContractStatus {
	switch {
	case c.Deleted:
		return ContractDeleted
	case len(c.PendingOrganisations) > 0:
		return ContractPending
	default:
		return ContractApproved
	}
}

type ItemFlags struct {
	Oid     string
	Enabled bool
	RW      bool
}

// ContractPatch is a set of field operations applied atomically to one contract document.
type ContractPatch struct {
	AddOrganisations    []string
	RemoveOrganisations []string
	RemovePending       []string
	AddItems            []ContractItem
	RemoveItems         []string
	SetItemFlags        []ItemFlags
	Status              ContractStatus
	MarkDeleted         bool
}

func (p ContractPatch) Empty() bool {
	return len(p.AddOrganisations) == 0 && len(p.RemoveOrganisations) == 0 &&
		len(p.RemovePending) == 0 && len(p.AddItems) == 0 && len(p.RemoveItems) == 0 &&
		len(p.SetItemFlags) == 0 && p.Status == "" && !p.MarkDeleted
}

// Rejects reports whether the patch must not be applied to c. A deletion is conditional
// on the contract still being live, which makes the cascade rule idempotent.
func (p ContractPatch) Rejects(c Contract) bool { return p.MarkDeleted && c.Deleted }

// ApplyContractPatch is the reference semantics every repository must reproduce.
func ApplyContractPatch(c Contract, p ContractPatch) Contract {
	c.PendingOrganisations = without(c.PendingOrganisations, append(append([]string{}, p.RemovePending...), p.AddOrganisations...))
	c.Organisations = addToSet(without(c.Organisations, p.RemoveOrganisations), p.AddOrganisations)

	items := make([]ContractItem, 0, len(c.Items)+len(p.AddItems))
	for _, it := range c.Items {
		if contains(p.RemoveItems, it.Oid) {
			continue
		}
		for _, f := range p.SetItemFlags {
			if f.Oid == it.Oid {
				it.Enabled, it.RW = f.Enabled, f.RW
			}
		}
		items = append(items, it)
	}
	for _, it := range p.AddItems {
		if _, dup := (Contract{Items: items}).Item(it.Oid); !dup {
			items = append(items, it)
		}
	}
	c.Items = items

	if p.MarkDeleted {
		c.Deleted = true
	}
	if p.Status != "" {
		c.Status = p.Status
	}
	return c
}

type EffectKind string

const (
	EffectGroupMemberAdd    EffectKind = "group.member_add"
	EffectGroupMemberRemove EffectKind = "group.member_remove"
	EffectGroupDelete       EffectKind = "group.delete"
	EffectItemIndexAdd      EffectKind = "item.index_add"
	EffectItemIndexRemove   EffectKind = "item.index_remove"
	EffectGatewaysChanged   EffectKind = "gateways.changed"
)

// Effect is a side effect a transition asks the engine to carry out after the document
// write. Principal is an item oid or node agid; Oids lists the items whose gateways must
// hear about the change.
type Effect struct {
	Kind      EffectKind
	Principal string
	Oids      []string
}

// Transition is the result of a pure contract command.
type Transition struct {
	Next    Contract
	Patch   ContractPatch
	Effects []Effect
}

func (c Contract) transition(p ContractPatch, effects ...Effect) Transition {
	next := ApplyContractPatch(c, p)
	if p.Status == "" {
		if st := next.statusAfter(); st != c.Status {
			p.Status = st
			next.Status = st
		}
	}
	return Transition{Next: next, Patch: p, Effects: effects}
}

func (c Contract) live() error {
	if c.Deleted {
		return NotFound(contractSource, "contract "+c.Ctid+" not found")
	}
	return nil
}

// Accept moves cid from the pending set into the active members.
func (c Contract) Accept(cid string) (Transition, error) {
	if err := c.live(); err != nil {
		return Transition{}, err
	}
	if !c.IsPending(cid) {
		return Transition{}, Validation(contractSource, "organisation "+cid+" has no pending invitation to contract "+c.Ctid)
	}
	return c.transition(
		ContractPatch{RemovePending: []string{cid}, AddOrganisations: []string{cid}},
		Effect{Kind: EffectGatewaysChanged, Oids: c.ItemIDs()},
	), nil
}

// Reject drops cid from the pending set.
func (c Contract) Reject(cid string) (Transition, error) {
	if err := c.live(); err != nil {
		return Transition{}, err
	}
	if !c.IsPending(cid) {
		return Transition{}, Validation(contractSource, "organisation "+cid+" has no pending invitation to contract "+c.Ctid)
	}
	return c.transition(ContractPatch{RemovePending: []string{cid}}), nil
}

// Abandon removes an active member together with every item it owns.
func (c Contract) Abandon(cid string) (Transition, error) {
	if err := c.live(); err != nil {
		return Transition{}, err
	}
	if !c.IsMember(cid) {
		return Transition{}, Validation(contractSource, "organisation "+cid+" is not a member of contract "+c.Ctid)
	}
	owned := c.ItemsOf(cid)
	p := ContractPatch{RemoveOrganisations: []string{cid}}
	var effects []Effect
	for _, it := range owned {
		p.RemoveItems = append(p.RemoveItems, it.Oid)
		effects = append(effects, Effect{Kind: EffectItemIndexRemove, Principal: it.Oid})
		if it.Enabled {
			effects = append(effects, Effect{Kind: EffectGroupMemberRemove, Principal: it.Oid})
		}
	}
	return c.transition(p, effects...), nil
}

// CascadeOutcome describes what the cascade rule decided for a contract.
type CascadeOutcome struct {
	Detached     string
	Removed      bool
	StillPending []string
}

// Cascade evaluates the cascade rule. A sole remaining member with nobody left to invite
// is detached, and a contract left without active members is deleted. A deleted contract
// yields an empty transition.
func (c Contract) Cascade() (Transition, CascadeOutcome) {
	if c.Deleted {
		return Transition{Next: c}, CascadeOutcome{}
	}
	var out CascadeOutcome
	t := Transition{Next: c}
	if len(c.Organisations) == 1 && len(c.PendingOrganisations) == 0 {
		out.Detached = c.Organisations[0]
		t, _ = c.Abandon(out.Detached)
	}
	if len(t.Next.Organisations) > 0 {
		return t, out
	}
	out.Removed = true
	out.StillPending = append([]string{}, t.Next.PendingOrganisations...)
	t.Patch.MarkDeleted = true
	t.Patch.Status = ContractDeleted
	t.Next = ApplyContractPatch(c, t.Patch)
	t.Effects = append(t.Effects,
		Effect{Kind: EffectGroupDelete},
		Effect{Kind: EffectGatewaysChanged, Oids: c.ItemIDs()},
	)
	return t, out
}

// AttachItem adds an item owned by an active member.
func (c Contract) AttachItem(it Item, uid string, rw, enabled bool) (Transition, error) {
	if err := c.live(); err != nil {
		return Transition{}, err
	}
	if !it.Available() {
		return Transition{}, Validation(contractSource, "item "+it.Oid+" is not available or is private")
	}
	if !c.IsMember(it.Cid) {
		return Transition{}, Validation(contractSource, "item "+it.Oid+" does not belong to a member of contract "+c.Ctid)
	}
	if _, ok := c.Item(it.Oid); ok {
		return Transition{}, Validation(contractSource, "item "+it.Oid+" is already in contract "+c.Ctid)
	}
	if uid == "" {
		uid = it.Uid
	}
	ci := ContractItem{Oid: it.Oid, Cid: it.Cid, Uid: uid, Type: it.Type, Enabled: enabled, RW: rw}
	effects := []Effect{{Kind: EffectItemIndexAdd, Principal: it.Oid}}
	if enabled {
		effects = append(effects, Effect{Kind: EffectGroupMemberAdd, Principal: it.Oid})
	}
	effects = append(effects, Effect{Kind: EffectGatewaysChanged, Oids: append(c.ItemIDs(), it.Oid)})
	return c.transition(ContractPatch{AddItems: []ContractItem{ci}}, effects...), nil
}

// EditItem updates the flags of an attached item; nil leaves a flag unchanged.
func (c Contract) EditItem(oid string, enabled, rw *bool) (Transition, error) {
	if err := c.live(); err != nil {
		return Transition{}, err
	}
	cur, ok := c.Item(oid)
	if !ok {
		return Transition{}, Validation(contractSource, "item "+oid+" is not in contract "+c.Ctid)
	}
	f := ItemFlags{Oid: oid, Enabled: cur.Enabled, RW: cur.RW}
	if enabled != nil {
		f.Enabled = *enabled
	}
	if rw != nil {
		f.RW = *rw
	}
	var effects []Effect
	switch {
	case !cur.Enabled && f.Enabled:
		effects = append(effects, Effect{Kind: EffectGroupMemberAdd, Principal: oid})
	case cur.Enabled && !f.Enabled:
		effects = append(effects, Effect{Kind: EffectGroupMemberRemove, Principal: oid})
	}
	effects = append(effects, Effect{Kind: EffectGatewaysChanged, Oids: c.ItemIDs()})
	return c.transition(ContractPatch{SetItemFlags: []ItemFlags{f}}, effects...), nil
}

// DetachItems removes the given attached items. Every oid must be attached.
func (c Contract) DetachItems(oids []string) (Transition, error) {
	if err := c.live(); err != nil {
		return Transition{}, err
	}
	var effects []Effect
	for _, oid := range dedupe(oids) {
		it, ok := c.Item(oid)
		if !ok {
			return Transition{}, Validation(contractSource, "item "+oid+" is not in contract "+c.Ctid)
		}
		effects = append(effects, Effect{Kind: EffectItemIndexRemove, Principal: oid})
		if it.Enabled {
			effects = append(effects, Effect{Kind: EffectGroupMemberRemove, Principal: oid})
		}
	}
	effects = append(effects, Effect{Kind: EffectGatewaysChanged, Oids: c.ItemIDs()})
	return c.transition(ContractPatch{RemoveItems: dedupe(oids)}, effects...), nil
}
