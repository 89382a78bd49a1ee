package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowmail/dashboard/internal/pkg/httputil"
	"github.com/flowmail/dashboard/internal/pkg/logger"
	"github.com/flowmail/dashboard/internal/service/campaign"
)

// ListCampaigns returns the caller's campaigns, newest first.
//
//	GET /api/campaigns?userId=&status=
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u, ok := h.currentUser(w, r, q.Get("userId"))
	if !ok {
		return
	}
	list, err := h.campaigns.List(r.Context(), u.ID, campaign.ListFilter{Status: q.Get("status")})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"campaigns": list})
}

type campaignRequest struct {
	UserID string `json:"userId"`
	campaign.CreateInput
}

// CreateCampaign stores a new draft.
//
//	POST /api/campaigns
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	c, err := h.campaigns.Create(r.Context(), u.ID, req.CreateInput)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, httputil.Payload{"campaign": c})
}

// GetCampaign returns one campaign.
//
//	GET /api/campaigns/{id}?userId=
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r, r.URL.Query().Get("userId"))
	if !ok {
		return
	}
	c, err := h.campaigns.Get(r.Context(), u.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"campaign": c})
}

// UpdateCampaign overwrites a draft.
//
//	PUT /api/campaigns/{id}
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	c, err := h.campaigns.Update(r.Context(), u.ID, chi.URLParam(r, "id"), req.CreateInput)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"campaign": c})
}

// DeleteCampaign removes a campaign that is not sending or sent.
//
//	DELETE /api/campaigns/{id}?userId=
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r, r.URL.Query().Get("userId"))
	if !ok {
		return
	}
	if err := h.campaigns.Delete(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"deleted": 1})
}

type deleteCampaignsRequest struct {
	UserID      string   `json:"userId"`
	CampaignIDs []string `json:"campaignIds"`
}

// DeleteCampaigns removes several campaigns, all or nothing.
//
//	POST /api/campaigns/delete
func (h *Handlers) DeleteCampaigns(w http.ResponseWriter, r *http.Request) {
	var req deleteCampaignsRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	n, err := h.campaigns.DeleteMany(r.Context(), u.ID, req.CampaignIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"deleted": n})
}

type sendRequest struct {
	UserID  string `json:"userId"`
	Segment string `json:"segment"`
}

// SendCampaign delivers a campaign. The send runs on a context detached
// from the request so a closed browser tab does not stop it halfway.
//
//	POST /api/campaigns/{id}/send
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.campaigns.Send(context.WithoutCancel(r.Context()), u, id, req.Segment)
	if err != nil {
		if !campaign.IsBusinessRule(err) {
			logger.Error("campaign send failed", "campaign_id", id, "user_id", u.ID, "error", err)
		}
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{
		"campaign_id": id,
		"sent":        res.Sent,
		"failed":      res.Failed,
		"skipped":     res.Skipped,
		"total":       res.Total,
	})
}

type testSendRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email" validate:"required"`
}

// SendTestEmail sends one rendered copy to the given address.
//
//	POST /api/campaigns/{id}/test
func (h *Handlers) SendTestEmail(w http.ResponseWriter, r *http.Request) {
	var req testSendRequest
	if !httputil.Decode(w, r, &req) || !httputil.Validate(w, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	res, err := h.campaigns.SendTest(r.Context(), u, chi.URLParam(r, "id"), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"message_id": res.MessageID, "provider": res.Provider})
}
