package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
	"github.com/AuroralH2020/auroral-nm-sub000/pkg/httpx"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/lifecycle"
)

type communityOrg struct {
	Cid   string   `json:"cid" validate:"required"`
	Name  string   `json:"name"`
	Nodes []string `json:"nodes" validate:"dive,required"`
}

type createCommunityRequest struct {
	Name          string         `json:"name" validate:"required,max=128"`
	Description   string         `json:"description" validate:"max=256"`
	Kind          string         `json:"kind" validate:"required,oneof=COMMUNITY PARTNERSHIP"`
	Organisations []communityOrg `json:"organisations" validate:"required,min=1,dive"`
}

func (h *Handler) createCommunity(w http.ResponseWriter, r *http.Request) {
	var req createCommunityRequest
	if !h.decode(w, r, &req) {
		return
	}
	a := actor(r)
	in := lifecycle.CreateCommunityInput{Name: req.Name, Description: req.Description, Kind: domain.CommunityKind(req.Kind)}
	listed := false
	for _, o := range req.Organisations {
		in.Organisations = append(in.Organisations, domain.CommunityOrg{Cid: o.Cid, Name: o.Name, Nodes: o.Nodes})
		listed = listed || o.Cid == a.OrgID
	}
	if !listed && !a.HasRole(AdminRole) {
		httpx.WriteError(w, http.StatusForbidden, "FORBIDDEN", "caller organisation must take part in the community", "")
		return
	}
	commID, err := h.Engine.Communities.CreateOne(r.Context(), in)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusCreated, map[string]any{"comm_id": commID})
}

func (h *Handler) listCommunities(w http.ResponseWriter, r *http.Request) {
	offset, size := page(r)
	q := r.URL.Query()
	out, err := h.Engine.Communities.GetMany(r.Context(), domain.CommunityFilter{
		Kind:     domain.CommunityKind(q.Get("kind")),
		OrgID:    q.Get("cid"),
		Offset:   offset,
		PageSize: size,
	})
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"communities": out})
}

func (h *Handler) getCommunity(w http.ResponseWriter, r *http.Request) {
	c, err := h.Engine.Communities.Get(r.Context(), chi.URLParam(r, "commID"))
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"community": c})
}

func (h *Handler) removeCommunity(w http.ResponseWriter, r *http.Request) {
	if !actor(r).HasRole(AdminRole) {
		httpx.WriteError(w, http.StatusForbidden, "FORBIDDEN", "only administrators can remove communities", "")
		return
	}
	if err := h.Engine.Communities.RemoveOne(r.Context(), chi.URLParam(r, "commID")); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

type addNodeRequest struct {
	Agid string `json:"agid" validate:"required"`
}

func (h *Handler) addNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Engine.Communities.AddNode(r.Context(), chi.URLParam(r, "commID"), actor(r).OrgID, req.Agid); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (h *Handler) removeNode(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Communities.RemoveNode(r.Context(), chi.URLParam(r, "commID"), actor(r).OrgID, chi.URLParam(r, "agid")); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (h *Handler) removePartnership(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Communities.RemovePartnership(r.Context(), actor(r).OrgID, chi.URLParam(r, "cid")); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.Notifications.Find(r.Context(), domain.NotificationFilter{
		Owner:  actor(r).OrgID,
		Type:   domain.NotificationType(q.Get("type")),
		Status: domain.NotificationStatus(q.Get("status")),
	})
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	offset, size := page(r)
	ok(w, http.StatusOK, map[string]any{"notifications": domain.Page(out, offset, domain.ClampPageSize(size))})
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	owned, err := h.Notifications.Find(r.Context(), domain.NotificationFilter{Owner: actor(r).OrgID})
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if !slices.ContainsFunc(owned, func(n domain.Notification) bool { return n.ID == id }) {
		httpx.WriteErr(w, domain.NotFound("Notifications.MarkRead", "notification not found"))
		return
	}
	if err := h.Notifications.MarkRead(r.Context(), id); err != nil {
		httpx.WriteErr(w, domain.AsUnexpected("Notifications.MarkRead", err))
		return
	}
	ok(w, http.StatusOK, nil)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	if !actor(r).HasRole(AdminRole) {
		httpx.WriteError(w, http.StatusForbidden, "FORBIDDEN", "only administrators can run reconciliation", "")
		return
	}
	if h.Sweeper == nil {
		httpx.WriteError(w, http.StatusNotFound, "NOT_FOUND", "reconciliation is not configured", "")
		return
	}
	rep, err := h.Sweeper.RunOnce(r.Context())
	if err != nil {
		httpx.WriteErr(w, domain.AsUnexpected("Reconcile.RunOnce", err))
		return
	}
	ok(w, http.StatusOK, map[string]any{"report": rep})
}
