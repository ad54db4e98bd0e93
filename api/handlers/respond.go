package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"skote-admin/core/auth"
	"skote-admin/core/store"
)

const maxFormMemory = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sessionFromCtx(r *http.Request) *store.SessionRecord {
	return auth.FromContext(r.Context())
}

func currentUser(r *http.Request) string {
	if sr := sessionFromCtx(r); sr != nil {
		return sr.Username
	}
	return ""
}

func csrfToken(r *http.Request) string {
	if sr := sessionFromCtx(r); sr != nil {
		return sr.CSRFToken
	}
	return ""
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseForm accepts both urlencoded and multipart bodies.
func parseForm(r *http.Request) error {
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return r.ParseMultipartForm(maxFormMemory)
	}
	return r.ParseForm()
}
