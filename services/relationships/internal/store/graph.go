package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

type Organisations struct{ db *pgxpool.Pool }

const orgColumns = `cid,name,status,knows,knows_requests_from,knows_requests_to,has_contracts,has_contract_requests,created_at`

func (r *Organisations) Get(ctx context.Context, cid string) (domain.Organisation, error) {
	o, err := scanOrg(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM rel_organisations WHERE cid=$1`, cid))
	return o, noRows(err, "organisation", cid)
}

func (r *Organisations) List(ctx context.Context) ([]domain.Organisation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orgColumns+` FROM rel_organisations ORDER BY cid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Organisation{}
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Organisations) Apply(ctx context.Context, cid string, p domain.OrganisationPatch) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		cur, err := scanOrg(tx.QueryRow(ctx, `SELECT `+orgColumns+` FROM rel_organisations WHERE cid=$1 FOR UPDATE`, cid))
		if err != nil {
			return noRows(err, "organisation", cid)
		}
		next := domain.ApplyOrganisationPatch(cur, p)
		_, err = tx.Exec(ctx, `
UPDATE rel_organisations SET has_contracts=$2, has_contract_requests=$3 WHERE cid=$1
`, cid, emptyIfNil(next.HasContracts), emptyIfNil(next.HasContractRequests))
		return err
	})
}

// Put inserts or replaces an organisation. The wider platform owns organisations; this
// is used to seed a database for local runs and tests.
func (r *Organisations) Put(ctx context.Context, o domain.Organisation) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO rel_organisations(cid,name,status,knows,knows_requests_from,knows_requests_to,has_contracts,has_contract_requests)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (cid) DO UPDATE SET name=EXCLUDED.name, status=EXCLUDED.status, knows=EXCLUDED.knows,
  knows_requests_from=EXCLUDED.knows_requests_from, knows_requests_to=EXCLUDED.knows_requests_to,
  has_contracts=EXCLUDED.has_contracts, has_contract_requests=EXCLUDED.has_contract_requests
`, o.Cid, o.Name, string(o.Status), emptyIfNil(o.Knows), emptyIfNil(o.KnowsRequestsFrom), emptyIfNil(o.KnowsRequestsTo),
		emptyIfNil(o.HasContracts), emptyIfNil(o.HasContractRequests))
	return err
}

func scanOrg(row pgx.Row) (domain.Organisation, error) {
	var (
		o      domain.Organisation
		status string
	)
	err := row.Scan(&o.Cid, &o.Name, &status, &o.Knows, &o.KnowsRequestsFrom, &o.KnowsRequestsTo,
		&o.HasContracts, &o.HasContractRequests, &o.Created)
	o.Status = domain.OrgStatus(status)
	return o, err
}

type Items struct{ db *pgxpool.Pool }

const itemColumns = `oid,cid,uid,agid,type,status,privacy,has_contracts`

func (r *Items) Get(ctx context.Context, oid string) (domain.Item, error) {
	it, err := scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM rel_items WHERE oid=$1`, oid))
	return it, noRows(err, "item", oid)
}

func (r *Items) GetMany(ctx context.Context, oids []string) ([]domain.Item, error) {
	return r.query(ctx, `SELECT `+itemColumns+` FROM rel_items WHERE oid = ANY($1) ORDER BY oid`, oids)
}

func (r *Items) List(ctx context.Context) ([]domain.Item, error) {
	return r.query(ctx, `SELECT `+itemColumns+` FROM rel_items ORDER BY oid`)
}

func (r *Items) AddContract(ctx context.Context, oid, ctid string) error {
	tag, err := r.db.Exec(ctx, `
UPDATE rel_items
SET has_contracts = CASE WHEN $2 = ANY(has_contracts) THEN has_contracts ELSE array_append(has_contracts, $2) END
WHERE oid=$1
`, oid, ctid)
	if err != nil {
		return err
	}
	return affected(tag, "item", oid)
}

func (r *Items) RemoveContract(ctx context.Context, oid, ctid string) error {
	tag, err := r.db.Exec(ctx, `UPDATE rel_items SET has_contracts = array_remove(has_contracts, $2) WHERE oid=$1`, oid, ctid)
	if err != nil {
		return err
	}
	return affected(tag, "item", oid)
}

func (r *Items) Put(ctx context.Context, it domain.Item) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO rel_items(`+itemColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (oid) DO UPDATE SET cid=EXCLUDED.cid, uid=EXCLUDED.uid, agid=EXCLUDED.agid, type=EXCLUDED.type,
  status=EXCLUDED.status, privacy=EXCLUDED.privacy, has_contracts=EXCLUDED.has_contracts
`, it.Oid, it.Cid, it.Uid, it.Agid, it.Type, string(it.Status), int(it.Privacy), emptyIfNil(it.HasContracts))
	return err
}

func (r *Items) query(ctx context.Context, q string, args ...any) ([]domain.Item, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanItem(row pgx.Row) (domain.Item, error) {
	var (
		it      domain.Item
		status  string
		privacy int
	)
	err := row.Scan(&it.Oid, &it.Cid, &it.Uid, &it.Agid, &it.Type, &status, &privacy, &it.HasContracts)
	it.Status, it.Privacy = domain.ItemStatus(status), domain.ItemPrivacy(privacy)
	return it, err
}

type Nodes struct{ db *pgxpool.Pool }

const nodeColumns = `agid,cid,name,has_communities`

func (r *Nodes) Get(ctx context.Context, agid string) (domain.Node, error) {
	var n domain.Node
	err := r.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM rel_nodes WHERE agid=$1`, agid).
		Scan(&n.Agid, &n.Cid, &n.Name, &n.HasCommunities)
	return n, noRows(err, "node", agid)
}

func (r *Nodes) List(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.db.Query(ctx, `SELECT `+nodeColumns+` FROM rel_nodes ORDER BY agid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Node{}
	for rows.Next() {
		var n domain.Node
		if err := rows.Scan(&n.Agid, &n.Cid, &n.Name, &n.HasCommunities); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Nodes) AddCommunity(ctx context.Context, agid, commID string) error {
	tag, err := r.db.Exec(ctx, `
UPDATE rel_nodes
SET has_communities = CASE WHEN $2 = ANY(has_communities) THEN has_communities ELSE array_append(has_communities, $2) END
WHERE agid=$1
`, agid, commID)
	if err != nil {
		return err
	}
	return affected(tag, "node", agid)
}

func (r *Nodes) RemoveCommunity(ctx context.Context, agid, commID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE rel_nodes SET has_communities = array_remove(has_communities, $2) WHERE agid=$1`, agid, commID)
	if err != nil {
		return err
	}
	return affected(tag, "node", agid)
}

func (r *Nodes) Put(ctx context.Context, n domain.Node) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO rel_nodes(`+nodeColumns+`) VALUES($1,$2,$3,$4)
ON CONFLICT (agid) DO UPDATE SET cid=EXCLUDED.cid, name=EXCLUDED.name, has_communities=EXCLUDED.has_communities
`, n.Agid, n.Cid, n.Name, emptyIfNil(n.HasCommunities))
	return err
}
