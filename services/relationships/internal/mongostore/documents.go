package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

type contractDoc struct {
	domain.Contract `bson:",inline"`
	Rev             int64 `bson:"rev"`
}

type Contracts struct{ col *mongo.Collection }

func (r *Contracts) Create(ctx context.Context, c domain.Contract) error {
	_, err := r.col.InsertOne(ctx, contractDoc{Contract: normaliseContract(c)})
	return err
}

func (r *Contracts) Get(ctx context.Context, ctid string) (domain.Contract, error) {
	doc, err := r.load(ctx, ctid)
	return doc.Contract, err
}

func (r *Contracts) load(ctx context.Context, ctid string) (contractDoc, error) {
	var doc contractDoc
	err := r.col.FindOne(ctx, bson.M{"_id": ctid}).Decode(&doc)
	return doc, noDocuments(err, "contract", ctid)
}

func (r *Contracts) List(ctx context.Context, f domain.ContractFilter) ([]domain.Contract, error) {
	filter := bson.M{}
	if len(f.IDs) > 0 {
		filter["_id"] = bson.M{"$in": f.IDs}
	}
	if f.OrgID != "" {
		filter["$or"] = bson.A{bson.M{"organisations": f.OrgID}, bson.M{"pending_organisations": f.OrgID}}
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if !f.IncludeDeleted {
		filter["deleted"] = false
	}
	cur, err := r.col.Find(ctx, filter, findOptions("created", f.Offset, f.PageSize))
	if err != nil {
		return nil, err
	}
	var docs []contractDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Contract, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Contract)
	}
	return out, nil
}

// Apply rewrites the contract only if its revision is still the one the patch was
// computed against, retrying on concurrent writers.
func (r *Contracts) Apply(ctx context.Context, ctid string, p domain.ContractPatch) (bool, error) {
	for range maxCASAttempts {
		doc, err := r.load(ctx, ctid)
		if err != nil {
			return false, err
		}
		if p.Rejects(doc.Contract) {
			return false, nil
		}
		next := contractDoc{Contract: normaliseContract(domain.ApplyContractPatch(doc.Contract, p)), Rev: doc.Rev + 1}
		next.Updated = now()
		res, err := r.col.ReplaceOne(ctx, bson.M{"_id": ctid, "rev": doc.Rev}, next)
		if err != nil {
			return false, err
		}
		if res.MatchedCount == 1 {
			return true, nil
		}
	}
	return false, ErrConflict
}

func normaliseContract(c domain.Contract) domain.Contract {
	c.Organisations = emptyIfNil(c.Organisations)
	c.PendingOrganisations = emptyIfNil(c.PendingOrganisations)
	if c.Items == nil {
		c.Items = []domain.ContractItem{}
	}
	return c
}

type communityDoc struct {
	domain.Community `bson:",inline"`
	Rev              int64 `bson:"rev"`
}

type Communities struct{ col *mongo.Collection }

func (r *Communities) Create(ctx context.Context, c domain.Community) error {
	_, err := r.col.InsertOne(ctx, communityDoc{Community: c})
	return err
}

func (r *Communities) Get(ctx context.Context, commID string) (domain.Community, error) {
	doc, err := r.load(ctx, commID)
	return doc.Community, err
}

func (r *Communities) load(ctx context.Context, commID string) (communityDoc, error) {
	var doc communityDoc
	err := r.col.FindOne(ctx, bson.M{"_id": commID}).Decode(&doc)
	return doc, noDocuments(err, "community", commID)
}

func (r *Communities) List(ctx context.Context, f domain.CommunityFilter) ([]domain.Community, error) {
	filter := bson.M{}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}
	if f.OrgID != "" {
		filter["organisations.cid"] = f.OrgID
	}
	return r.find(ctx, filter, findOptions("created", f.Offset, f.PageSize))
}

func (r *Communities) Apply(ctx context.Context, commID string, p domain.CommunityPatch) (domain.Community, error) {
	for range maxCASAttempts {
		doc, err := r.load(ctx, commID)
		if err != nil {
			return domain.Community{}, err
		}
		next := communityDoc{Community: domain.ApplyCommunityPatch(doc.Community, p), Rev: doc.Rev + 1}
		current := bson.M{"_id": commID, "rev": doc.Rev}
		var hit int64
		if p.Dissolves(next.Community) {
			res, err := r.col.DeleteOne(ctx, current)
			if err != nil {
				return domain.Community{}, err
			}
			hit = res.DeletedCount
		} else {
			res, err := r.col.ReplaceOne(ctx, current, next)
			if err != nil {
				return domain.Community{}, err
			}
			hit = res.MatchedCount
		}
		if hit == 1 {
			return next.Community, nil
		}
	}
	return domain.Community{}, ErrConflict
}

func (r *Communities) Delete(ctx context.Context, commID string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": commID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return notFound("community", commID)
	}
	return nil
}

func (r *Communities) FindPartnership(ctx context.Context, orgA, orgB string) (domain.Community, error) {
	found, err := r.find(ctx, bson.M{
		"kind":              domain.KindPartnership,
		"organisations":     bson.M{"$size": 2},
		"organisations.cid": bson.M{"$all": []string{orgA, orgB}},
	}, findOptions("created", 0, 1))
	if err != nil {
		return domain.Community{}, err
	}
	if len(found) == 0 {
		return domain.Community{}, notFound("partnership", orgA+"/"+orgB)
	}
	return found[0], nil
}

func (r *Communities) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]domain.Community, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []communityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Community, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Community)
	}
	return out, nil
}
