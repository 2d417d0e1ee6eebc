// Package mongostore persists relationship documents in MongoDB. Array indices are
// maintained with single-document update operators ($addToSet, $pull); contracts and
// communities, whose patches touch several arrays with ordering rules, are rewritten
// with a revision compare-and-swap.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

const (
	colContracts     = "contracts"
	colCommunities   = "communities"
	colOrganisations = "organisations"
	colItems         = "items"
	colNodes         = "nodes"
	colNotifications = "notifications"
	colAudit         = "audits"

	maxCASAttempts = 8
)

// ErrConflict is returned when a document kept changing under a compare-and-swap.
var ErrConflict = errors.New("document changed concurrently")

type Store struct{ DB *mongo.Database }

func New(db *mongo.Database) *Store { return &Store{DB: db} }

// EnsureIndexes creates the secondary indexes the repositories query by.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colContracts: {
			{Keys: bson.D{{Key: "deleted", Value: 1}, {Key: "created", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colCommunities: {
			{Keys: bson.D{{Key: "organisations.cid", Value: 1}}},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "created", Value: 1}}},
		},
		colItems: {
			{Keys: bson.D{{Key: "agid", Value: 1}}},
		},
		colNotifications: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "type", Value: 1}, {Key: "status", Value: 1}, {Key: "object.id", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Contracts() *Contracts         { return &Contracts{col: s.DB.Collection(colContracts)} }
func (s *Store) Communities() *Communities     { return &Communities{col: s.DB.Collection(colCommunities)} }
func (s *Store) Organisations() *Organisations { return &Organisations{col: s.DB.Collection(colOrganisations)} }
func (s *Store) Items() *Items                 { return &Items{col: s.DB.Collection(colItems)} }
func (s *Store) Nodes() *Nodes                 { return &Nodes{col: s.DB.Collection(colNodes)} }
func (s *Store) Notifications() *Notifications { return &Notifications{col: s.DB.Collection(colNotifications)} }
func (s *Store) Audit() *Audit                 { return &Audit{col: s.DB.Collection(colAudit)} }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

func noDocuments(err error, kind, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return notFound(kind, id)
	}
	return err
}

func matched(res *mongo.UpdateResult, err error, kind, id string) error {
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return notFound(kind, id)
	}
	return nil
}

func findOptions(sortField string, offset, size int) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(bson.D{{Key: sortField, Value: 1}, {Key: "_id", Value: 1}})
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	if size > 0 {
		opts.SetLimit(int64(size))
	}
	return opts
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
