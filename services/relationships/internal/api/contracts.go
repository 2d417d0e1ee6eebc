package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AuroralH2020/auroral-nm-sub000/pkg/domain"
	"github.com/AuroralH2020/auroral-nm-sub000/pkg/httpx"
	"github.com/AuroralH2020/auroral-nm-sub000/services/relationships/internal/lifecycle"
)

type createContractRequest struct {
	Terms       string   `json:"terms_and_conditions" validate:"required"`
	InvitedOrgs []string `json:"invited_organisations" validate:"required,min=1,dive,required"`
	Description string   `json:"description" validate:"max=256"`
}

func (h *Handler) createContract(w http.ResponseWriter, r *http.Request) {
	var req createContractRequest
	if !h.decode(w, r, &req) {
		return
	}
	a := actor(r)
	ctid, err := h.Engine.Contracts.CreateOne(r.Context(), lifecycle.CreateContractInput{
		InviterOrg:  a.OrgID,
		ActingUser:  a.UserID,
		Terms:       req.Terms,
		InvitedOrgs: req.InvitedOrgs,
		Description: req.Description,
		Audit:       auditContext(r),
	})
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusCreated, map[string]any{"ctid": ctid})
}

func (h *Handler) listContracts(w http.ResponseWriter, r *http.Request) {
	offset, size := page(r)
	q := r.URL.Query()
	f := domain.ContractFilter{
		Type:     domain.ContractType(q.Get("type")),
		Status:   domain.ContractStatus(q.Get("status")),
		Offset:   offset,
		PageSize: size,
	}
	if a := actor(r); !a.HasRole(AdminRole) {
		f.OrgID = a.OrgID
	}
	out, err := h.Engine.Contracts.GetMany(r.Context(), f)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, map[string]any{"contracts": out})
}

func (h *Handler) getContract(w http.ResponseWriter, r *http.Request) {
	c, found := h.contract(w, r)
	if !found {
		return
	}
	if a := actor(r); !c.IsMember(a.OrgID) && !c.IsPending(a.OrgID) && !a.HasRole(AdminRole) {
		httpx.WriteError(w, http.StatusForbidden, "FORBIDDEN", "caller organisation is not part of the contract", "")
		return
	}
	ok(w, http.StatusOK, map[string]any{"contract": c})
}

func (h *Handler) contract(w http.ResponseWriter, r *http.Request) (domain.Contract, bool) {
	c, err := h.Engine.Contracts.Get(r.Context(), chi.URLParam(r, "ctid"))
	if err != nil {
		httpx.WriteErr(w, err)
		return domain.Contract{}, false
	}
	return c, true
}

// itemOwner writes a 403 unless the caller is an active member of the
// contract and owns every attached item named in oids. Unattached oids are
// left to the registry to report.
func (h *Handler) itemOwner(w http.ResponseWriter, r *http.Request, oids ...string) bool {
	c, found := h.contract(w, r)
	if !found {
		return false
	}
	a := actor(r)
	if !c.IsMember(a.OrgID) {
		httpx.WriteError(w, http.StatusForbidden, "FORBIDDEN", "caller organisation is not a member of the contract", "")
		return false
	}
	for _, oid := range oids {
		if it, attached := c.Item(oid); attached && it.Cid != a.OrgID {
			httpx.WriteError(w, http.StatusForbidden, "FORBIDDEN", "item "+oid+" belongs to another organisation", "")
			return false
		}
	}
	return true
}

func (h *Handler) acceptContract(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if err := h.Engine.Contracts.AcceptContractRequest(r.Context(), chi.URLParam(r, "ctid"), a.OrgID, a.UserID, auditContext(r)); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (h *Handler) rejectContract(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if err := h.Engine.Contracts.RejectContractRequest(r.Context(), chi.URLParam(r, "ctid"), a.OrgID, a.UserID, auditContext(r)); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (h *Handler) leaveContract(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if err := h.Engine.Contracts.RemoveOrgFromContract(r.Context(), chi.URLParam(r, "ctid"), a.OrgID, a.UserID, auditContext(r)); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

type addItemRequest struct {
	Oid     string `json:"oid" validate:"required"`
	RW      bool   `json:"rw"`
	Enabled *bool  `json:"enabled"`
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.itemOwner(w, r) {
		return
	}
	it, err := h.Engine.Items.Item(r.Context(), req.Oid)
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	if it.Cid != actor(r).OrgID {
		httpx.WriteError(w, http.StatusForbidden, "FORBIDDEN", "item "+req.Oid+" belongs to another organisation", "")
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if err := h.Engine.Items.AddItem(r.Context(), chi.URLParam(r, "ctid"), req.Oid, req.RW, enabled); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusCreated, nil)
}

type editItemRequest struct {
	Enabled *bool `json:"enabled"`
	RW      *bool `json:"rw"`
}

func (h *Handler) editItem(w http.ResponseWriter, r *http.Request) {
	var req editItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.itemOwner(w, r, chi.URLParam(r, "oid")) {
		return
	}
	err := h.Engine.Items.EditItem(r.Context(), chi.URLParam(r, "ctid"), chi.URLParam(r, "oid"), lifecycle.EditItemInput{
		Enabled: req.Enabled,
		RW:      req.RW,
	})
	if err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

type removeItemsRequest struct {
	Oids []string `json:"oids" validate:"required,min=1,dive,required"`
}

func (h *Handler) removeItems(w http.ResponseWriter, r *http.Request) {
	var req removeItemsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.itemOwner(w, r, req.Oids...) {
		return
	}
	if err := h.Engine.Items.RemoveItems(r.Context(), chi.URLParam(r, "ctid"), req.Oids); err != nil {
		httpx.WriteErr(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}
