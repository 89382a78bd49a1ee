// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Every handler uses these helpers instead of writing raw
// http.ResponseWriter calls, so that all endpoints share one JSON envelope:
//
//	{"success": true, ...payload}
//	{"success": false, "error": "...", "code": "..."}
package httputil
