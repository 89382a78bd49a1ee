package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flowmail/dashboard/internal/pkg/httputil"
	"github.com/flowmail/dashboard/internal/service/subscriber"
)

// ListSubscribers returns the caller's subscribers.
//
//	GET /api/subscribers?userId=&status=&tier=&search=
func (h *Handlers) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u, ok := h.currentUser(w, r, q.Get("userId"))
	if !ok {
		return
	}
	subs, err := h.subscribers.List(r.Context(), u.ID, subscriber.ListFilter{
		Status: q.Get("status"),
		Tier:   q.Get("tier"),
		Search: strings.TrimSpace(q.Get("search")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"subscribers": subs, "count": len(subs)})
}

type createSubscriberRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email" validate:"required"`
	Tier   string `json:"tier"`
}

// CreateSubscriber adds one subscriber by hand.
//
//	POST /api/subscribers
func (h *Handlers) CreateSubscriber(w http.ResponseWriter, r *http.Request) {
	var req createSubscriberRequest
	if !httputil.Decode(w, r, &req) || !httputil.Validate(w, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	s, err := h.subscribers.Create(r.Context(), u.ID, subscriber.CreateInput{
		Name: req.Name, Email: req.Email, Tier: req.Tier,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, httputil.Payload{"subscriber": s})
}

type syncRequest struct {
	UserID    string `json:"userId"`
	CompanyID string `json:"companyId"`
}

// SyncSubscribers pulls the company's Whop members.
//
//	POST /api/subscribers/sync
func (h *Handlers) SyncSubscribers(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	res, err := h.subscribers.Sync(r.Context(), u, strings.TrimSpace(req.CompanyID))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"synced": res.Synced, "skipped": res.Skipped, "total": res.Total})
}

type importRequest struct {
	UserID string `json:"userId"`
	CSV    string `json:"csv" validate:"required"`
}

// ImportSubscribers upserts subscribers from CSV text.
//
//	POST /api/subscribers/import
func (h *Handlers) ImportSubscribers(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !httputil.Decode(w, r, &req) || !httputil.Validate(w, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	rows, err := subscriber.ParseCSV(strings.NewReader(req.CSV))
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.subscribers.Import(r.Context(), u.ID, rows)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"imported": res.Imported, "skipped": res.Skipped})
}

type deleteSubscribersRequest struct {
	UserID        string   `json:"userId"`
	SubscriberIDs []string `json:"subscriberIds"`
}

// DeleteSubscribers removes several subscribers.
//
//	POST /api/subscribers/delete
func (h *Handlers) DeleteSubscribers(w http.ResponseWriter, r *http.Request) {
	var req deleteSubscribersRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	n, err := h.subscribers.DeleteMany(r.Context(), u.ID, req.SubscriberIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"deleted": n})
}

// DeleteSubscriber removes one subscriber.
//
//	DELETE /api/subscribers/{id}?userId=
func (h *Handlers) DeleteSubscriber(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r, r.URL.Query().Get("userId"))
	if !ok {
		return
	}
	if err := h.subscribers.Delete(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"deleted": 1})
}

// SampleCSV serves the example import file.
//
//	GET /sample-subscribers.csv
func (h *Handlers) SampleCSV(w http.ResponseWriter, r *http.Request) {
	httputil.Attachment(w, "sample-subscribers.csv", "text/csv; charset=utf-8", subscriber.SampleCSV())
}
