// Package app wires configuration into stores, clients, the lifecycle engine and the
// reconciliation sweeper.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/db"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/agentclient"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/config"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/dirclient"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/lifecycle"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/memstore"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/mongostore"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/reconcile"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/store"
)

type organisationStore interface {
	lifecycle.OrganisationStore
	reconcile.OrganisationIndex
}

type itemStore interface {
	lifecycle.ItemStore
	reconcile.ItemIndex
}

type nodeStore interface {
	lifecycle.NodeStore
	reconcile.NodeIndex
}

// Stores is one persistence backend seen through the ports the service needs.
type Stores struct {
	Contracts     lifecycle.ContractStore
	Communities   lifecycle.CommunityStore
	Organisations organisationStore
	Items         itemStore
	Nodes         nodeStore
	Notifications lifecycle.NotificationDispatcher
	Audit         lifecycle.AuditRecorder

	close func(context.Context) error
}

func (s Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

type App struct {
	Config  config.Config
	Stores  Stores
	Engine  *lifecycle.Engine
	Sweeper *reconcile.Sweeper
	Logger  *slog.Logger
}

func NewLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// Build opens the configured backend and assembles the engine around it.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	directory := dirclient.New(cfg.DirectoryURL, cfg.DirectoryToken, cfg.DirectoryTimeout, cfg.DirectoryRetries)
	agents := agentclient.New(cfg.AgentURL, cfg.AgentSecret, cfg.AgentTimeout)
	return Assemble(cfg, stores, directory, agents, logger), nil
}

// Assemble builds the engine and sweeper from already opened collaborators.
func Assemble(cfg config.Config, stores Stores, directory lifecycle.DirectoryGroupClient, agents lifecycle.AgentNotifier, logger *slog.Logger) *App {
	engine := lifecycle.New(lifecycle.Deps{
		Contracts:       stores.Contracts,
		Communities:     stores.Communities,
		Organisations:   stores.Organisations,
		Items:           stores.Items,
		Nodes:           stores.Nodes,
		Notifications:   stores.Notifications,
		Audit:           stores.Audit,
		Directory:       directory,
		Agents:          agents,
		Logger:          logger,
		PushConcurrency: cfg.GatewayPushConcurrency,
	})
	sweeper := &reconcile.Sweeper{
		Contracts:     stores.Contracts,
		Communities:   stores.Communities,
		Organisations: stores.Organisations,
		Items:         stores.Items,
		Nodes:         stores.Nodes,
		Directory:     directory,
		Logger:        logger,
	}
	return &App{Config: cfg, Stores: stores, Engine: engine, Sweeper: sweeper, Logger: logger}
}

func OpenStores(ctx context.Context, cfg config.Config) (Stores, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return Stores{}, err
		}
		s := store.New(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return Stores{}, fmt.Errorf("migrate: %w", err)
		}
		return Stores{
			Contracts:     s.Contracts(),
			Communities:   s.Communities(),
			Organisations: s.Organisations(),
			Items:         s.Items(),
			Nodes:         s.Nodes(),
			Notifications: s.Notifications(),
			Audit:         s.Audit(),
			close:         func(context.Context) error { pool.Close(); return nil },
		}, nil

	case config.BackendMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return Stores{}, err
		}
		s := mongostore.New(database)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return Stores{}, err
		}
		return Stores{
			Contracts:     s.Contracts(),
			Communities:   s.Communities(),
			Organisations: s.Organisations(),
			Items:         s.Items(),
			Nodes:         s.Nodes(),
			Notifications: s.Notifications(),
			Audit:         s.Audit(),
			close:         client.Disconnect,
		}, nil

	case config.BackendMemory:
		s := memstore.New()
		if cfg.SeedFile != "" {
			seed, err := ReadSeed(cfg.SeedFile)
			if err != nil {
				return Stores{}, err
			}
			s.Load(seed)
		}
		return MemoryStores(s), nil
	}
	return Stores{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func MemoryStores(s *memstore.Store) Stores {
	return Stores{
		Contracts:     s.Contracts(),
		Communities:   s.Communities(),
		Organisations: s.Organisations(),
		Items:         s.Items(),
		Nodes:         s.Nodes(),
		Notifications: s.Notifications(),
		Audit:         s.Audit(),
	}
}

func ReadSeed(path string) (memstore.Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return memstore.Seed{}, fmt.Errorf("read seed: %w", err)
	}
	var seed memstore.Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return memstore.Seed{}, fmt.Errorf("decode seed %s: %w", path, err)
	}
	return seed, nil
}
