// Package store persists relationship documents in Postgres. Each document patch runs in
// its own transaction on a row locked with SELECT ... FOR UPDATE, so a patch is applied
// atomically to one document and never across documents.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

//go:embed schema.sql
var schemaSQL string

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// Migrate creates the relationship tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Contracts() *Contracts         { return &Contracts{db: s.DB} }
func (s *Store) Communities() *Communities     { return &Communities{db: s.DB} }
func (s *Store) Organisations() *Organisations { return &Organisations{db: s.DB} }
func (s *Store) Items() *Items                 { return &Items{db: s.DB} }
func (s *Store) Nodes() *Nodes                 { return &Nodes{db: s.DB} }
func (s *Store) Notifications() *Notifications { return &Notifications{db: s.DB} }
func (s *Store) Audit() *Audit                 { return &Audit{db: s.DB} }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, domain.ErrNotFound)
}

func noRows(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(kind, id)
	}
	return err
}

func affected(tag pgconn.CommandTag, kind, id string) error {
	if tag.RowsAffected() == 0 {
		return notFound(kind, id)
	}
	return nil
}

// withTx runs fn in a transaction and commits when it returns nil.
func withTx(ctx context.Context, db *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) raw(cond string) { w.conds = append(w.conds, cond) }

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) page(offset, size int) string {
	var b strings.Builder
	if size > 0 {
		w.args = append(w.args, size)
		fmt.Fprintf(&b, " LIMIT $%d", len(w.args))
	}
	if offset > 0 {
		w.args = append(w.args, offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(w.args))
	}
	return b.String()
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
