// internal/handlers/session.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jason-s-yu/cardclash/internal/auth"
)

type sessionRequest struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
}

type sessionResponse struct {
	Token       string `json:"token"`
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
}

const maxDisplayName = 32

// CreateSessionHandler issues a session for a wallet address. Proving wallet
// ownership happens upstream; this only binds requests to an address.
func CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := decode(r, &req); err != nil {
			http.Error(w, "bad session request payload", http.StatusBadRequest)
			return
		}
		addr, err := auth.NormalizeAddress(req.Address)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		name := strings.TrimSpace(req.DisplayName)
		if len(name) > maxDisplayName {
			http.Error(w, fmt.Sprintf("display name longer than %d", maxDisplayName), http.StatusBadRequest)
			return
		}
		if name == "" {
			name = addr[:8]
		}

		token, err := auth.CreateJWT(auth.Session{Address: addr, DisplayName: name})
		if err != nil {
			http.Error(w, "failed to create token", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     auth.CookieName,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, sessionResponse{Token: token, Address: addr, DisplayName: name})
	}
}
