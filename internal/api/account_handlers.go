package api

import (
	"io"
	"net/http"

	"github.com/flowmail/dashboard/internal/pkg/httputil"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

type userRequest struct {
	UserID string `json:"userId"`
}

// ClearData deletes every subscriber and campaign of the caller.
//
//	POST /api/account/clear-data
func (h *Handlers) ClearData(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	res, err := h.account.ClearData(r.Context(), u)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"deleted": res})
}

// ListPlans returns the plan table.
//
//	GET /api/billing/plans
func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, httputil.Payload{"plans": h.billing.Plans()})
}

type checkoutRequest struct {
	UserID string `json:"userId"`
	Plan   string `json:"plan" validate:"required"`
}

// Checkout starts a Whop checkout for a plan.
//
//	POST /api/billing/checkout
func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !httputil.Decode(w, r, &req) || !httputil.Validate(w, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	session, err := h.billing.Checkout(r.Context(), u, req.Plan)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"checkout": session})
}

// WhopWebhook applies membership events to plans.
//
//	POST /webhooks/whop
func (h *Handlers) WhopWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httputil.BadRequest(w, "could not read body")
		return
	}
	sig := r.Header.Get("X-Whop-Signature")
	if sig == "" {
		sig = r.Header.Get("X-Signature")
	}
	res, err := h.billing.HandleWebhook(r.Context(), body, sig)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"received": true, "result": res})
}

// EmailWebhook stores provider delivery events.
//
//	POST /webhooks/email
func (h *Handlers) EmailWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httputil.BadRequest(w, "could not read body")
		return
	}
	token := r.Header.Get("X-Webhook-Token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	e, err := h.events.Record(r.Context(), body, token)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"received": true, "event_id": e.ID})
}
