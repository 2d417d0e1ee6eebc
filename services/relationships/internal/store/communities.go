package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

type Communities struct{ db *pgxpool.Pool }

const communityColumns = `comm_id,name,description,kind,organisations,created_at`

// memberOf matches communities listing the organisation bound to the placeholder.
const memberOf = `organisations @> jsonb_build_array(jsonb_build_object('cid', ?::text))`

func (r *Communities) Create(ctx context.Context, c domain.Community) error {
	orgs, err := jsonText(c.Organisations)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
INSERT INTO rel_communities(`+communityColumns+`)
VALUES($1,$2,$3,$4,$5::jsonb,$6)
`, c.CommID, c.Name, c.Description, string(c.Kind), orgs, c.Created)
	return err
}

func (r *Communities) Get(ctx context.Context, commID string) (domain.Community, error) {
	c, err := scanCommunity(r.db.QueryRow(ctx, `SELECT `+communityColumns+` FROM rel_communities WHERE comm_id=$1`, commID))
	return c, noRows(err, "community", commID)
}

func (r *Communities) List(ctx context.Context, f domain.CommunityFilter) ([]domain.Community, error) {
	var w where
	if f.Kind != "" {
		w.add("kind = ?", string(f.Kind))
	}
	if f.OrgID != "" {
		w.add(memberOf, f.OrgID)
	}
	q := `SELECT ` + communityColumns + ` FROM rel_communities` + w.String() + ` ORDER BY created_at, comm_id` + w.page(f.Offset, f.PageSize)
	return r.query(ctx, q, w.args...)
}

func (r *Communities) Apply(ctx context.Context, commID string, p domain.CommunityPatch) (domain.Community, error) {
	var next domain.Community
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		cur, err := scanCommunity(tx.QueryRow(ctx, `SELECT `+communityColumns+` FROM rel_communities WHERE comm_id=$1 FOR UPDATE`, commID))
		if err != nil {
			return noRows(err, "community", commID)
		}
		next = domain.ApplyCommunityPatch(cur, p)
		if p.Dissolves(next) {
			_, err = tx.Exec(ctx, `DELETE FROM rel_communities WHERE comm_id=$1`, commID)
			return err
		}
		orgs, err := jsonText(next.Organisations)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE rel_communities SET organisations=$2::jsonb WHERE comm_id=$1`, commID, orgs)
		return err
	})
	if err != nil {
		return domain.Community{}, err
	}
	return next, nil
}

func (r *Communities) Delete(ctx context.Context, commID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rel_communities WHERE comm_id=$1`, commID)
	if err != nil {
		return err
	}
	return affected(tag, "community", commID)
}

func (r *Communities) FindPartnership(ctx context.Context, orgA, orgB string) (domain.Community, error) {
	var w where
	w.add("kind = ?", string(domain.KindPartnership))
	w.raw("jsonb_array_length(organisations) = 2")
	w.add(memberOf, orgA)
	w.add(memberOf, orgB)
	found, err := r.query(ctx, `SELECT `+communityColumns+` FROM rel_communities`+w.String()+` ORDER BY created_at LIMIT 1`, w.args...)
	if err != nil {
		return domain.Community{}, err
	}
	if len(found) == 0 {
		return domain.Community{}, notFound("partnership", orgA+"/"+orgB)
	}
	return found[0], nil
}

func (r *Communities) query(ctx context.Context, q string, args ...any) ([]domain.Community, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Community{}
	for rows.Next() {
		c, err := scanCommunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCommunity(row pgx.Row) (domain.Community, error) {
	var (
		c    domain.Community
		kind string
		orgs []byte
	)
	if err := row.Scan(&c.CommID, &c.Name, &c.Description, &kind, &orgs, &c.Created); err != nil {
		return domain.Community{}, err
	}
	c.Kind = domain.CommunityKind(kind)
	if err := json.Unmarshal(orgs, &c.Organisations); err != nil {
		return domain.Community{}, fmt.Errorf("decode organisations of community %s: %w", c.CommID, err)
	}
	return c, nil
}
