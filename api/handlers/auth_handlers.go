package handlers

import (
	"bytes"
	"net/http"
	"time"

	"skote-admin/config"
	"skote-admin/core/auth"
	"skote-admin/core/store"
	"skote-admin/core/utils"
	"skote-admin/gui"
)

const (
	SessionCookieName = "skote_session"
	CSRFCookieName    = "skote_csrf"
	LoginPath         = "/login"
)

type AuthHandler struct {
	cfg            *config.AppConfig
	users          store.UsersStore
	sessionManager *auth.SessionManager
	audits         store.AuditStore
	views          *gui.Views
	logger         *utils.Logger
}

func NewAuthHandler(cfg *config.AppConfig, users store.UsersStore, sm *auth.SessionManager, audits store.AuditStore, views *gui.Views, logger *utils.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, users: users, sessionManager: sm, audits: audits, views: views, logger: logger}
}

type loginPage struct {
	Title     string
	CSRFToken string
	Flash     *Flash
	Email     string
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderLogin(w, r, http.StatusOK, loginPage{Flash: popFlash(w, r, h.cfg)})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	email := utils.NormalizeEmail(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	if utils.ValidateEmail(email) != nil || password == "" {
		h.loginFailed(w, r, email, "malformed credentials")
		return
	}
	user, err := h.users.FindByEmail(r.Context(), email)
	if err != nil {
		h.logger.Errorf("login lookup %s: %v", email, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if user == nil || !user.Active {
		h.loginFailed(w, r, email, "user missing or inactive")
		return
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		h.loginFailed(w, r, email, "wrong password")
		return
	}
	sess, err := h.sessionManager.Create(r.Context(), user, []string{user.RoleName}, utils.ClientIP(r, h.cfg.Security.TrustedProxies), r.UserAgent())
	if err != nil {
		h.logger.Errorf("create session for %s: %v", email, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	secure := secureCookies(r, h.cfg)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    sess.CSRFToken,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.log(r, email, "auth.login", "")
	http.Redirect(w, r, UsersListPath, http.StatusSeeOther)
}

func (h *AuthHandler) loginFailed(w http.ResponseWriter, r *http.Request, email, reason string) {
	h.log(r, email, "auth.login_failed", reason)
	h.renderLogin(w, r, http.StatusUnauthorized, loginPage{
		Flash: &Flash{Level: FlashError, Message: auth.ErrInvalidCredentials.Error()},
		Email: email,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessionManager.Delete(r.Context(), cookie.Value); err != nil {
			h.logger.Errorf("logout: %v", err)
		}
	}
	secure := secureCookies(r, h.cfg)
	for _, name := range []string{SessionCookieName, CSRFCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: name == SessionCookieName,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	h.log(r, currentUser(r), "auth.logout", "")
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, page loginPage) {
	page.Title = "Login"
	var buf bytes.Buffer
	if err := h.views.Page(&buf, "login.html", page); err != nil {
		h.logger.Errorf("render login: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (h *AuthHandler) log(r *http.Request, username, action, details string) {
	if h.audits == nil {
		return
	}
	if err := h.audits.Log(r.Context(), username, action, details); err != nil {
		h.logger.Errorf("audit %s: %v", action, err)
	}
}
