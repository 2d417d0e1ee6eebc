package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

var now = func() time.Time { return time.Now().UTC() }

type Organisations struct{ col *mongo.Collection }

func (r *Organisations) Get(ctx context.Context, cid string) (domain.Organisation, error) {
	var o domain.Organisation
	err := r.col.FindOne(ctx, bson.M{"_id": cid}).Decode(&o)
	return o, noDocuments(err, "organisation", cid)
}

func (r *Organisations) List(ctx context.Context) ([]domain.Organisation, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []domain.Organisation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply translates the patch into $pull/$addToSet operators. MongoDB refuses both on the
// same path in one update, so a patch that removes and adds on one array is split into a
// removal update followed by an addition update.
func (r *Organisations) Apply(ctx context.Context, cid string, p domain.OrganisationPatch) error {
	pull, add := bson.M{}, bson.M{}
	arrayOps(pull, add, "has_contracts", p.RemoveContracts, p.AddContracts)
	arrayOps(pull, add, "has_contract_requests", p.RemoveContractRequests, p.AddContractRequests)

	overlap := false
	for k := range pull {
		if _, ok := add[k]; ok {
			overlap = true
		}
	}
	var updates []bson.M
	switch {
	case overlap:
		updates = []bson.M{{"$pull": pull}, {"$addToSet": add}}
	case len(pull) > 0 && len(add) > 0:
		updates = []bson.M{{"$pull": pull, "$addToSet": add}}
	case len(pull) > 0:
		updates = []bson.M{{"$pull": pull}}
	case len(add) > 0:
		updates = []bson.M{{"$addToSet": add}}
	}
	for _, u := range updates {
		res, err := r.col.UpdateByID(ctx, cid, u)
		if err := matched(res, err, "organisation", cid); err != nil {
			return err
		}
	}
	return nil
}

func arrayOps(pull, add bson.M, field string, remove, insert []string) {
	if len(remove) > 0 {
		pull[field] = bson.M{"$in": remove}
	}
	if len(insert) > 0 {
		add[field] = bson.M{"$each": insert}
	}
}

func (r *Organisations) Put(ctx context.Context, o domain.Organisation) error {
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": o.Cid}, o, options.Replace().SetUpsert(true))
	return err
}

type Items struct{ col *mongo.Collection }

func (r *Items) Get(ctx context.Context, oid string) (domain.Item, error) {
	var it domain.Item
	err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&it)
	return it, noDocuments(err, "item", oid)
}

func (r *Items) GetMany(ctx context.Context, oids []string) ([]domain.Item, error) {
	return r.find(ctx, bson.M{"_id": bson.M{"$in": oids}})
}

func (r *Items) List(ctx context.Context) ([]domain.Item, error) {
	return r.find(ctx, bson.M{})
}

func (r *Items) find(ctx context.Context, filter bson.M) ([]domain.Item, error) {
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []domain.Item{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Items) AddContract(ctx context.Context, oid, ctid string) error {
	res, err := r.col.UpdateByID(ctx, oid, bson.M{"$addToSet": bson.M{"has_contracts": ctid}})
	return matched(res, err, "item", oid)
}

func (r *Items) RemoveContract(ctx context.Context, oid, ctid string) error {
	res, err := r.col.UpdateByID(ctx, oid, bson.M{"$pull": bson.M{"has_contracts": ctid}})
	return matched(res, err, "item", oid)
}

func (r *Items) Put(ctx context.Context, it domain.Item) error {
	it.HasContracts = emptyIfNil(it.HasContracts)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": it.Oid}, it, options.Replace().SetUpsert(true))
	return err
}

type Nodes struct{ col *mongo.Collection }

func (r *Nodes) Get(ctx context.Context, agid string) (domain.Node, error) {
	var n domain.Node
	err := r.col.FindOne(ctx, bson.M{"_id": agid}).Decode(&n)
	return n, noDocuments(err, "node", agid)
}

func (r *Nodes) List(ctx context.Context) ([]domain.Node, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []domain.Node{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Nodes) AddCommunity(ctx context.Context, agid, commID string) error {
	res, err := r.col.UpdateByID(ctx, agid, bson.M{"$addToSet": bson.M{"has_communities": commID}})
	return matched(res, err, "node", agid)
}

func (r *Nodes) RemoveCommunity(ctx context.Context, agid, commID string) error {
	res, err := r.col.UpdateByID(ctx, agid, bson.M{"$pull": bson.M{"has_communities": commID}})
	return matched(res, err, "node", agid)
}

func (r *Nodes) Put(ctx context.Context, n domain.Node) error {
	n.HasCommunities = emptyIfNil(n.HasCommunities)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": n.Agid}, n, options.Replace().SetUpsert(true))
	return err
}

type Notifications struct{ col *mongo.Collection }

func (r *Notifications) Create(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if _, err := r.col.InsertOne(ctx, n); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

func (r *Notifications) Find(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	filter := bson.M{}
	if f.Owner != "" {
		filter["owner"] = f.Owner
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.ObjectID != "" {
		filter["object.id"] = f.ObjectID
	}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []domain.Notification{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Notifications) MarkRead(ctx context.Context, id string) error {
	res, err := r.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"read": true}})
	return matched(res, err, "notification", id)
}

func (r *Notifications) SetStatus(ctx context.Context, id string, status domain.NotificationStatus) error {
	res, err := r.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"status": status}})
	return matched(res, err, "notification", id)
}

type Audit struct{ col *mongo.Collection }

func (r *Audit) Record(ctx context.Context, e domain.AuditEvent) error {
	_, err := r.col.InsertOne(ctx, e)
	return err
}
