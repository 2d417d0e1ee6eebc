package lifecycle

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultPushConcurrency = 8

// Deps are the collaborators injected into the lifecycle managers.
type Deps struct {
	Contracts     ContractStore
	Communities   CommunityStore
	Organisations OrganisationStore
	Items         ItemStore
	Nodes         NodeStore
	Notifications NotificationDispatcher
	Audit         AuditRecorder
	Directory     DirectoryGroupClient
	Agents        AgentNotifier
	Logger        *slog.Logger

	// PushConcurrency bounds concurrent gateway pushes for one change.
	PushConcurrency int
	NewID           func(prefix string) string
	Now             func() time.Time
}

// Engine bundles the three managers around a shared set of collaborators.
type Engine struct {
	Contracts   *ContractManager
	Items       *ItemRegistry
	Communities *CommunityManager

	core *core
}

func New(d Deps) *Engine {
	if d.Logger == nil {
		d.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.NewID == nil {
		d.NewID = func(prefix string) string { return prefix + uuid.NewString() }
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.PushConcurrency <= 0 {
		d.PushConcurrency = defaultPushConcurrency
	}
	c := &core{Deps: d}
	return &Engine{
		Contracts:   &ContractManager{core: c},
		Items:       &ItemRegistry{core: c},
		Communities: &CommunityManager{core: c},
		core:        c,
	}
}

// Wait blocks until every fire-and-forget gateway push started so far has finished.
func (e *Engine) Wait() { e.core.pushes.Wait() }

type core struct {
	Deps
	pushes sync.WaitGroup
}
