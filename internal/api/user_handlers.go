package api

import (
	"net/http"

	"github.com/flowmail/dashboard/internal/pkg/httputil"
)

// GetUser returns the account and its monthly usage.
//
//	GET /api/user?userId=
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r, r.URL.Query().Get("userId"))
	if !ok {
		return
	}
	httputil.OK(w, httputil.Payload{"user": u, "usage": h.users.Usage(u)})
}

type senderNameRequest struct {
	UserID     string `json:"userId"`
	SenderName string `json:"senderName" validate:"required,max=64"`
}

// SetSenderName assigns the local part of the From address. The response
// carries the name actually assigned, which may have a numeric suffix.
//
//	POST /api/settings/sender-name
func (h *Handlers) SetSenderName(w http.ResponseWriter, r *http.Request) {
	var req senderNameRequest
	if !httputil.Decode(w, r, &req) || !httputil.Validate(w, &req) {
		return
	}
	u, ok := h.currentUser(w, r, req.UserID)
	if !ok {
		return
	}
	name, err := h.users.SetSenderName(r.Context(), u, req.SenderName)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, httputil.Payload{"sender_name": name})
}
