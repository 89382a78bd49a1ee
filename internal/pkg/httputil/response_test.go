package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestOKAddsSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, Payload{"count": 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(3), body["count"])
}

func TestErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorCode(rec, http.StatusInternalServerError, "plan not configured", "plan_not_configured", nil)

	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "plan not configured", body["error"])
	assert.Equal(t, "plan_not_configured", body["code"])
}

func TestServerErrorPassesMessageThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	ServerError(rec, errors.New("whop: 401 invalid api key"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "whop: 401 invalid api key", decodeBody(t, rec)["error"])
}

func TestDecodeRejectsBadJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))

	var dst struct{}
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type sampleRequest struct {
	UserID      string `json:"userId" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	HTMLContent string `json:"html_content" validate:"required"`
}

func TestValidateUsesJSONNames(t *testing.T) {
	rec := httptest.NewRecorder()
	ok := Validate(rec, sampleRequest{Email: "nope"})

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg := decodeBody(t, rec)["error"].(string)
	assert.Contains(t, msg, "userId is required")
	assert.Contains(t, msg, "email must be a valid email address")
	assert.Contains(t, msg, "html_content is required")
}

func TestValidatePasses(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.True(t, Validate(rec, sampleRequest{UserID: "u", Email: "a@b.co", HTMLContent: "<p/>"}))
}

func TestAttachment(t *testing.T) {
	rec := httptest.NewRecorder()
	Attachment(rec, "sample.csv", "text/csv", []byte("name,email\n"))

	assert.Equal(t, `attachment; filename="sample.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "name,email\n", rec.Body.String())
}
