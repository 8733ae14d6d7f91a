package httputil

import (
	"net/http"
	"strings"
)

// AADAccessTokenHeader is set by the hosting platform's built-in
// authentication with the signed-in user's access token.
const AADAccessTokenHeader = "X-Ms-Token-Aad-Access-Token"

// SetNDJSONHeaders sets the standard headers for a newline-delimited JSON
// streaming response.
func SetNDJSONHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json-lines")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
}

// UserAccessToken extracts the caller's directory access token, preferring
// the platform auth header and falling back to a Bearer Authorization
// header. Returns "" when neither is present.
func UserAccessToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(AADAccessTokenHeader)); token != "" {
		return token
	}
	if rest, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}
