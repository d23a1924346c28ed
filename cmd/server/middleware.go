package main

import (
	"net/http"

	"go.uber.org/zap"
)

func (app *application) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.Auth.Authorized(r) {
			next.ServeHTTP(w, r)
			return
		}

		app.Logger.Warn(
			"Authentication failed",
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		w.Header().Set("WWW-Authenticate", "Bearer")
		app.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	})
}

// checkOrigin lets through the configured frontend, any origin when it is
// "*", and clients that send no Origin header at all
func (app *application) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	allowed := app.Config.Server.AllowedOrigin
	return origin == "" || allowed == "*" || origin == allowed
}
