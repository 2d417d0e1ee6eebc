package domain

import "time"

type OrgStatus string

const (
	OrgActive   OrgStatus = "active"
	OrgInactive OrgStatus = "inactive"
)

// Organisation is the relationship view of an organisation. The hasContracts and
// hasContractRequests fields are a reverse index of Contract membership written by the
// lifecycle engine.
type Organisation struct {
	Cid                 string    `json:"cid" bson:"_id"`
	Name                string    `json:"name" bson:"name"`
	Status              OrgStatus `json:"status" bson:"status"`
	Knows               []string  `json:"knows" bson:"knows"`
	KnowsRequestsFrom   []string  `json:"knows_requests_from" bson:"knows_requests_from"`
	KnowsRequestsTo     []string  `json:"knows_requests_to" bson:"knows_requests_to"`
	HasContracts        []string  `json:"has_contracts" bson:"has_contracts"`
	HasContractRequests []string  `json:"has_contract_requests" bson:"has_contract_requests"`
	Created             time.Time `json:"created" bson:"created"`
}

func (o Organisation) IsActive() bool { return o.Status == OrgActive }

// IsFriendOf reports whether o lists cid among the organisations it knows.
func (o Organisation) IsFriendOf(cid string) bool { return contains(o.Knows, cid) }

// ContractIDs is the union of active contracts and pending contract requests.
func (o Organisation) ContractIDs() []string {
	return union(o.HasContracts, o.HasContractRequests)
}

// SharesContractWith reports whether o and other already have a contract or a pending
// request in common.
func (o Organisation) SharesContractWith(other Organisation) bool {
	return len(intersect(o.ContractIDs(), other.ContractIDs())) > 0
}

// OrganisationPatch is a set of array operations applied atomically to one organisation.
type OrganisationPatch struct {
	AddContracts           []string
	RemoveContracts        []string
	AddContractRequests    []string
	RemoveContractRequests []string
}

func (p OrganisationPatch) Empty() bool {
	return len(p.AddContracts) == 0 && len(p.RemoveContracts) == 0 &&
		len(p.AddContractRequests) == 0 && len(p.RemoveContractRequests) == 0
}

// ApplyOrganisationPatch is the reference semantics every repository must reproduce.
// Removals run before additions so that moving an id between sets works in one patch.
func ApplyOrganisationPatch(o Organisation, p OrganisationPatch) Organisation {
	o.HasContracts = addToSet(without(o.HasContracts, p.RemoveContracts), p.AddContracts)
	o.HasContractRequests = addToSet(without(o.HasContractRequests, p.RemoveContractRequests), p.AddContractRequests)
	return o
}

type ItemStatus string

const (
	ItemEnabled  ItemStatus = "Enabled"
	ItemDisabled ItemStatus = "Disabled"
)

type ItemPrivacy int

const (
	PrivacyPrivate    ItemPrivacy = 0
	PrivacyForFriends ItemPrivacy = 1
	PrivacyPublic     ItemPrivacy = 2
)

// Item is an IoT item served by a gateway (agid) on behalf of an organisation.
type Item struct {
	Oid          string      `json:"oid" bson:"_id"`
	Cid          string      `json:"cid" bson:"cid"`
	Uid          string      `json:"uid" bson:"uid"`
	Agid         string      `json:"agid" bson:"agid"`
	Type         string      `json:"type" bson:"type"`
	Status       ItemStatus  `json:"status" bson:"status"`
	Privacy      ItemPrivacy `json:"privacy" bson:"privacy"`
	HasContracts []string    `json:"has_contracts" bson:"has_contracts"`
}

// Available reports whether the item may be attached to a contract.
func (i Item) Available() bool {
	return i.Status == ItemEnabled && i.Privacy != PrivacyPrivate
}

// Node is an IoT gateway registered by an organisation.
type Node struct {
	Agid           string   `json:"agid" bson:"_id"`
	Cid            string   `json:"cid" bson:"cid"`
	Name           string   `json:"name" bson:"name"`
	HasCommunities []string `json:"has_communities" bson:"has_communities"`
}
