package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
)

type Notifications struct{ db *pgxpool.Pool }

func (r *Notifications) Create(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	actor, err := jsonText(n.Actor)
	if err != nil {
		return domain.Notification{}, err
	}
	target, err := jsonText(n.Target)
	if err != nil {
		return domain.Notification{}, err
	}
	var object, objectID any
	if n.Object != nil {
		o, err := jsonText(n.Object)
		if err != nil {
			return domain.Notification{}, err
		}
		object, objectID = o, n.Object.ID
	}
	_, err = r.db.Exec(ctx, `
INSERT INTO rel_notifications(id,owner_id,actor,target,object,object_id,type,status,read,created_at)
VALUES($1,$2,$3::jsonb,$4::jsonb,$5::jsonb,$6,$7,$8,$9,$10)
`, n.ID, n.Owner, actor, target, object, objectID, string(n.Type), string(n.Status), n.Read, n.Created)
	if err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

func (r *Notifications) Find(ctx context.Context, f domain.NotificationFilter) ([]domain.Notification, error) {
	var w where
	if f.Owner != "" {
		w.add("owner_id = ?", f.Owner)
	}
	if f.Type != "" {
		w.add("type = ?", string(f.Type))
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.ObjectID != "" {
		w.add("object_id = ?", f.ObjectID)
	}
	rows, err := r.db.Query(ctx, `
SELECT id,owner_id,actor,target,object,type,status,read,created_at
FROM rel_notifications`+w.String()+` ORDER BY created_at, id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *Notifications) MarkRead(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE rel_notifications SET read=true WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return affected(tag, "notification", id)
}

func (r *Notifications) SetStatus(ctx context.Context, id string, status domain.NotificationStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE rel_notifications SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	return affected(tag, "notification", id)
}

func scanNotification(row pgx.Row) (domain.Notification, error) {
	var (
		n                     domain.Notification
		actor, target, object []byte
		typ, status           string
	)
	if err := row.Scan(&n.ID, &n.Owner, &actor, &target, &object, &typ, &status, &n.Read, &n.Created); err != nil {
		return domain.Notification{}, err
	}
	n.Type, n.Status = domain.NotificationType(typ), domain.NotificationStatus(status)
	if err := json.Unmarshal(actor, &n.Actor); err != nil {
		return domain.Notification{}, err
	}
	if err := json.Unmarshal(target, &n.Target); err != nil {
		return domain.Notification{}, err
	}
	if len(object) > 0 {
		n.Object = &domain.EntityRef{}
		if err := json.Unmarshal(object, n.Object); err != nil {
			return domain.Notification{}, err
		}
	}
	return n, nil
}

type Audit struct{ db *pgxpool.Pool }

func (r *Audit) Record(ctx context.Context, e domain.AuditEvent) error {
	actor, err := jsonText(e.Actor)
	if err != nil {
		return err
	}
	target, err := jsonText(e.Target)
	if err != nil {
		return err
	}
	labels, err := jsonText(e.Labels)
	if err != nil {
		return err
	}
	var object any
	if e.Object != nil {
		if object, err = jsonText(e.Object); err != nil {
			return err
		}
	}
	_, err = r.db.Exec(ctx, `
INSERT INTO rel_audit_events(id,actor,target,object,type,labels,created_at)
VALUES($1,$2::jsonb,$3::jsonb,$4::jsonb,$5,$6::jsonb,$7)
`, e.ID, actor, target, object, string(e.Type), labels, e.Created)
	return err
}
