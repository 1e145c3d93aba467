// internal/handlers/settlement.go
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jason-s-yu/cardclash/internal/battle"
	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/models"
)

type settlementRequest struct {
	RoomID string `json:"roomId"`
}

// resolvedRoom loads a room whose battle has both powers and the caller's seat.
func resolvedRoom(ctx context.Context, srv *APIServer, roomID, player string) (*models.Room, models.Side, error) {
	if roomID == "" {
		return nil, "", errBadRequest
	}
	room, err := srv.Store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, "", err
	}
	side, ok := room.SideOf(player)
	if !ok {
		return nil, "", game.ErrNotParticipant
	}
	if battle.Fingerprint(room) == "" || (room.Status != models.RoomPlaying && room.Status != models.RoomFinished) {
		return nil, "", game.ErrRoomNotPlaying
	}
	return room, side, nil
}

// ChargeFeeHandler debits the caller's entry fee for a resolved battle.
func ChargeFeeHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settlementRequest
		if err := decode(r, &req); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		player := session(r).Address
		room, _, err := resolvedRoom(r.Context(), srv, req.RoomID, player)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		if err := srv.Ledger.ChargeEntryFee(r.Context(), room.Key.String(), player, room.Mode); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ClaimRewardHandler credits a winner, or refunds both sides of a tie.
func ClaimRewardHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settlementRequest
		if err := decode(r, &req); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		player := session(r).Address
		room, side, err := resolvedRoom(r.Context(), srv, req.RoomID, player)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		winner := game.DecideWinner(*room.HostPower, *room.GuestPower)
		if winner != side && winner != models.SideTie {
			writeError(w, srv.Logger, game.ErrInvalidWinner)
			return
		}
		if err := srv.Ledger.ClaimWinReward(r.Context(), room.Key.String(), player, room.Mode, winner == models.SideTie); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RecordResultHandler records the caller's row for a resolved battle. The row
// is built from the stored room, never from client input.
func RecordResultHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settlementRequest
		if err := decode(r, &req); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		player := session(r).Address
		room, side, err := resolvedRoom(r.Context(), srv, req.RoomID, player)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		result := models.MatchResult{
			MatchKey:    room.Key.String(),
			RoomID:      room.ID,
			Mode:        room.Mode,
			Player:      player,
			Side:        side,
			Winner:      game.DecideWinner(*room.HostPower, *room.GuestPower),
			PlayerPower: *room.HostPower,
			OppPower:    *room.GuestPower,
			Fingerprint: battle.Fingerprint(room),
			ResolvedAt:  time.Now().UTC(),
		}
		opponent := room.Guest.Address
		if side == models.SideGuest {
			opponent = room.Host.Address
			result.PlayerPower, result.OppPower = result.OppPower, result.PlayerPower
		}
		result.Opponent = opponent

		if err := srv.Recorder.RecordMatchResult(r.Context(), result); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// AccountHandler returns the caller's balance and rating.
func AccountHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := srv.Ledger.GetAccount(r.Context(), session(r).Address)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, acct)
	}
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryHandler lists the caller's recorded results, newest first.
func HistoryHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, srv.Logger, errBadRequest)
				return
			}
			limit = min(n, maxHistoryLimit)
		}
		results, err := srv.Ledger.MatchHistory(r.Context(), session(r).Address, limit)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		if results == nil {
			results = []models.MatchResult{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}
