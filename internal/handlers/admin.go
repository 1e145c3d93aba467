// internal/handlers/admin.go
package handlers

import (
	"crypto/subtle"
	"net/http"
)

// AdminTokenHeader authenticates operator requests.
const AdminTokenHeader = "X-Admin-Token"

type cleanupResponse struct {
	Removed int `json:"removed"`
}

// CleanupHandler runs one sweep on demand.
func CleanupHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(AdminTokenHeader)
		if srv.AdminToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(srv.AdminToken)) != 1 {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		n, err := srv.Store.CleanupStale(r.Context())
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		srv.Logger.WithField("removed", n).Info("manual cleanup")
		writeJSON(w, http.StatusOK, cleanupResponse{Removed: n})
	}
}
