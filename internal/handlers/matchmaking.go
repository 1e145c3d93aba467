// internal/handlers/matchmaking.go
package handlers

import (
	"net/http"
)

type findMatchResponse struct {
	RoomID  string `json:"roomId"`
	Matched bool   `json:"matched"`
}

// FindMatchHandler pairs the caller or queues them. FindMatch is idempotent
// for a waiting or matched player, so transient store failures are retried.
func FindMatchHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := srv.Queue.EnqueueWithRetry(r.Context(), participant(r), max(srv.EnqueueAttempts, 1), srv.EnqueueBackoff)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, findMatchResponse{RoomID: code, Matched: code != ""})
	}
}

// CancelMatchHandler withdraws a waiting entry.
func CancelMatchHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := srv.Queue.Cancel(r.Context(), session(r).Address); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// MatchStatusHandler returns the caller's queue entry.
func MatchStatusHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := srv.Queue.Status(r.Context(), session(r).Address)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	}
}
