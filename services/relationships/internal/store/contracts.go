package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

type Contracts struct{ db *pgxpool.Pool }

const contractColumns = `ctid,organisations,pending_organisations,items,terms_and_conditions,description,type,status,deleted,created_at,updated_at`

func (r *Contracts) Create(ctx context.Context, c domain.Contract) error {
	items, err := jsonText(c.Items)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
INSERT INTO rel_contracts(`+contractColumns+`)
VALUES($1,$2,$3,$4::jsonb,$5,$6,$7,$8,$9,$10,$11)
`, c.Ctid, emptyIfNil(c.Organisations), emptyIfNil(c.PendingOrganisations), items,
		c.TermsAndConditions, c.Description, string(c.Type), string(c.Status), c.Deleted, c.Created, c.Updated)
	return err
}

func (r *Contracts) Get(ctx context.Context, ctid string) (domain.Contract, error) {
	c, err := scanContract(r.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM rel_contracts WHERE ctid=$1`, ctid))
	return c, noRows(err, "contract", ctid)
}

func (r *Contracts) List(ctx context.Context, f domain.ContractFilter) ([]domain.Contract, error) {
	var w where
	if len(f.IDs) > 0 {
		w.add("ctid = ANY(?)", f.IDs)
	}
	if f.OrgID != "" {
		w.add("(?::text = ANY(organisations) OR ?::text = ANY(pending_organisations))", f.OrgID)
	}
	if f.Type != "" {
		w.add("type = ?", string(f.Type))
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if !f.IncludeDeleted {
		w.raw("NOT deleted")
	}
	q := `SELECT ` + contractColumns + ` FROM rel_contracts` + w.String() + ` ORDER BY created_at, ctid` + w.page(f.Offset, f.PageSize)
	rows, err := r.db.Query(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Apply locks the contract row, applies the patch in memory and writes the result back
// in the same transaction.
func (r *Contracts) Apply(ctx context.Context, ctid string, p domain.ContractPatch) (bool, error) {
	applied := false
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		cur, err := scanContract(tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM rel_contracts WHERE ctid=$1 FOR UPDATE`, ctid))
		if err != nil {
			return noRows(err, "contract", ctid)
		}
		if p.Rejects(cur) {
			return nil
		}
		next := domain.ApplyContractPatch(cur, p)
		items, err := jsonText(next.Items)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
UPDATE rel_contracts
SET organisations=$2, pending_organisations=$3, items=$4::jsonb, status=$5, deleted=$6, updated_at=now()
WHERE ctid=$1
`, ctid, emptyIfNil(next.Organisations), emptyIfNil(next.PendingOrganisations), items, string(next.Status), next.Deleted); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func scanContract(row pgx.Row) (domain.Contract, error) {
	var (
		c           domain.Contract
		items       []byte
		typ, status string
	)
	if err := row.Scan(&c.Ctid, &c.Organisations, &c.PendingOrganisations, &items, &c.TermsAndConditions,
		&c.Description, &typ, &status, &c.Deleted, &c.Created, &c.Updated); err != nil {
		return domain.Contract{}, err
	}
	c.Type, c.Status = domain.ContractType(typ), domain.ContractStatus(status)
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return domain.Contract{}, fmt.Errorf("decode items of contract %s: %w", c.Ctid, err)
	}
	return c, nil
}
