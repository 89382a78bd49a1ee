package api

import (
	"net/http"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/pkg/httputil"
)

type domainView struct {
	Domain  string              `json:"domain"`
	Status  domain.DomainStatus `json:"status"`
	Records []domain.DNSRecord  `json:"records"`
}

func viewDomain(u *domain.User) domainView {
	records := u.DomainRecords
	if records == nil {
		records = []domain.DNSRecord{}
	}
	return domainView{Domain: u.CustomDomain, Status: u.DomainStatus, Records: records}
}

type registerDomainRequest struct {
	UserID string `json:"userId"`
	Domain string `json:"domain" validate:"required"`
}

// RegisterDomain starts custom domain setup and returns the DNS records.
//
//	POST /api/domain
func (h *Handlers) RegisterDomain(w http.ResponseWriter, r *http.Request) {
	var req registerDomainRequest
	if !httputil.Decode(w, r, &req) || !httputil.Validate(w, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	updated, err := h.domains.Register(r.Context(), u, req.Domain)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, httputil.Payload{"domain": viewDomain(updated)})
}

// VerifyDomain re-checks DNS at the provider.
//
//	POST /api/domain/verify
func (h *Handlers) VerifyDomain(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	updated, err := h.domains.Verify(r.Context(), u)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"domain": viewDomain(updated)})
}

// RemoveDomain deletes the custom domain.
//
//	DELETE /api/domain?userId=
func (h *Handlers) RemoveDomain(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r, r.URL.Query().Get("userId"))
	if !ok {
		return
	}
	updated, err := h.domains.Remove(r.Context(), u)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"domain": viewDomain(updated)})
}
