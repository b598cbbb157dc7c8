package handler

import (
	"log/slog"
	"net/http"

	"github.com/citywatch/backend/pkg/jwt"
)

// SessionGate rejects requests without a valid session credential. The
// credential comes from the Authorization header or the session cookie set by
// the identity provider. Invalid sessions are cleared and redirected to the
// login page rather than answered with a bare 401.
func (h *Handler) SessionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := jwt.ParseTokenFromRequest(r)
		if err != nil {
			h.redirectToLogin(w, r, err)
			return
		}
		if _, err := jwt.ParseUserID(r.Context(), token, h.cfg.JWTSecret); err != nil {
			h.redirectToLogin(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Debug("session rejected",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))

	// Drop the stale cookie so the browser does not loop on it.
	http.SetCookie(w, &http.Cookie{
		Name:     jwt.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	http.Redirect(w, r, h.cfg.LoginURL, http.StatusSeeOther)
}
