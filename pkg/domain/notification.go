package domain

import "time"

type NotificationStatus string

const (
	NotifWaiting  NotificationStatus = "waiting"
	NotifAccepted NotificationStatus = "accepted"
	NotifRejected NotificationStatus = "rejected"
	NotifInfo     NotificationStatus = "info"
)

type NotificationType string

const NotifContractRequest NotificationType = "contracts.request"

type EntityType string

const (
	EntityUser         EntityType = "user"
	EntityOrganisation EntityType = "organisation"
	EntityContract     EntityType = "contract"
	EntityCommunity    EntityType = "community"
)

type EntityRef struct {
	ID   string     `json:"id" bson:"id"`
	Type EntityType `json:"type" bson:"type"`
}

// Notification is an append-only record addressed to an owner (organisation or user).
type Notification struct {
	ID      string             `json:"id" bson:"_id"`
	Owner   string             `json:"owner" bson:"owner"`
	Actor   EntityRef          `json:"actor" bson:"actor"`
	Target  EntityRef          `json:"target" bson:"target"`
	Object  *EntityRef         `json:"object,omitempty" bson:"object,omitempty"`
	Type    NotificationType   `json:"type" bson:"type"`
	Status  NotificationStatus `json:"status" bson:"status"`
	Read    bool               `json:"read" bson:"read"`
	Created time.Time          `json:"created" bson:"created"`
}

// NotificationFilter selects notifications; empty fields match anything.
type NotificationFilter struct {
	Owner    string
	Type     NotificationType
	Status   NotificationStatus
	ObjectID string
}

func (f NotificationFilter) Matches(n Notification) bool {
	if f.Owner != "" && n.Owner != f.Owner {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Status != "" && n.Status != f.Status {
		return false
	}
	if f.ObjectID != "" && (n.Object == nil || n.Object.ID != f.ObjectID) {
		return false
	}
	return true
}

type AuditType string

const (
	AuditContractCreated   AuditType = "contracts.created"
	AuditContractJoined    AuditType = "contracts.joined"
	AuditContractAbandoned AuditType = "contracts.abandoned"
	AuditContractDeleted   AuditType = "contracts.deleted"
)

// AuditContext carries request metadata captured by the calling layer.
type AuditContext struct {
	IP     string `json:"ip,omitempty" bson:"ip,omitempty"`
	Origin string `json:"origin,omitempty" bson:"origin,omitempty"`
	Method string `json:"method,omitempty" bson:"method,omitempty"`
}

type AuditLabels struct {
	AuditContext `bson:",inline"`
	Source       string `json:"source,omitempty" bson:"source,omitempty"`
}

type AuditEvent struct {
	ID      string      `json:"id" bson:"_id"`
	Actor   EntityRef   `json:"actor" bson:"actor"`
	Target  EntityRef   `json:"target" bson:"target"`
	Object  *EntityRef  `json:"object,omitempty" bson:"object,omitempty"`
	Type    AuditType   `json:"type" bson:"type"`
	Labels  AuditLabels `json:"labels" bson:"labels"`
	Created time.Time   `json:"created" bson:"created"`
}
