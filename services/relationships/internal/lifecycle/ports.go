package lifecycle

import (
	"context"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

// Repositories return domain.ErrNotFound (possibly wrapped) for missing documents.

type ContractStore interface {
	Create(ctx context.Context, c domain.Contract) error
	Get(ctx context.Context, ctid string) (domain.Contract, error)
	List(ctx context.Context, f domain.ContractFilter) ([]domain.Contract, error)
	// Apply executes the patch atomically on one contract. It reports false, without
	// writing, when the patch is rejected by the current state (see ContractPatch.Rejects).
	Apply(ctx context.Context, ctid string, p domain.ContractPatch) (bool, error)
}

type CommunityStore interface {
	Create(ctx context.Context, c domain.Community) error
	Get(ctx context.Context, commID string) (domain.Community, error)
	List(ctx context.Context, f domain.CommunityFilter) ([]domain.Community, error)
	// Apply returns the community as stored after the patch. A patch that dissolves the
	// community deletes it.
	Apply(ctx context.Context, commID string, p domain.CommunityPatch) (domain.Community, error)
	Delete(ctx context.Context, commID string) error
	FindPartnership(ctx context.Context, orgA, orgB string) (domain.Community, error)
}

// OrganisationStore is the relationship graph: organisations and their reverse indices.
type OrganisationStore interface {
	Get(ctx context.Context, cid string) (domain.Organisation, error)
	List(ctx context.Context) ([]domain.Organisation, error)
	Apply(ctx context.Context, cid string, p domain.OrganisationPatch) error
}

type ItemStore interface {
	Get(ctx context.Context, oid string) (domain.Item, error)
	GetMany(ctx context.Context, oids []string) ([]domain.Item, error)
	AddContract(ctx context.Context, oid, ctid string) error
	RemoveContract(ctx context.Context, oid, ctid string) error
}

type NodeStore interface {
	Get(ctx context.Context, agid string) (domain.Node, error)
	AddCommunity(ctx context.Context, agid, commID string) error
	RemoveCommunity(ctx context.Context, agid, commID string) error
}

type NotificationDispatcher interface {
	Create(ctx context.Context, n domain.Notification) (domain.Notification, error)
	Find(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status domain.NotificationStatus) error
}

type AuditRecorder interface {
	Record(ctx context.Context, e domain.AuditEvent) error
}

// Group is a directory group and its member principals.
type Group struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Members     []string `json:"members"`
}

// DirectoryGroupClient talks to the external group/roster service used for message routing.
type DirectoryGroupClient interface {
	CreateGroup(ctx context.Context, id, displayName string) error
	DeleteGroup(ctx context.Context, id string) error
	AddPrincipal(ctx context.Context, principalID, groupID string) error
	RemovePrincipal(ctx context.Context, principalID, groupID string) error
	GetGroup(ctx context.Context, id string) (Group, error)
}

// AgentNotifier pushes a contract-changed event to an IoT gateway.
type AgentNotifier interface {
	NotifyContractChanged(ctx context.Context, gatewayID, ctid string) error
}
