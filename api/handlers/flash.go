package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"skote-admin/config"
	"skote-admin/core/utils"
)

const FlashCookieName = "skote_flash"

const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// Flash is a one-time message shown on the next rendered page.
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func setFlash(w http.ResponseWriter, r *http.Request, cfg *config.AppConfig, f Flash) {
	raw, err := json.Marshal(f)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		Secure:   secureCookies(r, cfg),
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads the pending flash and expires the cookie. Malformed values
// are dropped.
func popFlash(w http.ResponseWriter, r *http.Request, cfg *config.AppConfig) *Flash {
	c, err := r.Cookie(FlashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     FlashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secureCookies(r, cfg),
		SameSite: http.SameSiteLaxMode,
	})
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var f Flash
	if err := json.Unmarshal(raw, &f); err != nil || f.Message == "" {
		return nil
	}
	return &f
}

func secureCookies(r *http.Request, cfg *config.AppConfig) bool {
	if cfg == nil {
		return r.TLS != nil
	}
	return utils.IsSecureRequest(r, cfg.TLSEnabled, cfg.Security.TrustedProxies)
}
