// internal/handlers/room.go
package handlers

import (
	"net/http"

	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/models"
)

type roomRequest struct {
	RoomID string           `json:"roomId"`
	Mode   models.Mode      `json:"mode,omitempty"`
	Cards  []models.CardRef `json:"cards,omitempty"`
	Winner models.Side      `json:"winner,omitempty"`
}

type roomIDResponse struct {
	RoomID string `json:"roomId"`
}

func participant(r *http.Request) models.Participant {
	s := session(r)
	return models.Participant{Address: s.Address, DisplayName: s.DisplayName}
}

// CreateRoomHandler opens a waiting room hosted by the caller.
func CreateRoomHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := roomRequest{Mode: models.ModeCasual}
		if err := decode(r, &req); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		code, err := srv.Store.CreateRoom(r.Context(), participant(r), req.Mode)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		srv.Logger.WithField("room", code).WithField("player", session(r).Address).Info("room created")
		writeJSON(w, http.StatusOK, roomIDResponse{RoomID: code})
	}
}

// JoinRoomHandler seats the caller as guest.
func JoinRoomHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roomRequest
		if err := decode(r, &req); err != nil || req.RoomID == "" {
			writeError(w, srv.Logger, errBadRequest)
			return
		}
		if err := srv.Store.JoinRoom(r.Context(), req.RoomID, participant(r)); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		writeRoom(w, r, srv, req.RoomID)
	}
}

// GetRoomHandler returns one room snapshot.
func GetRoomHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeRoom(w, r, srv, r.PathValue("id"))
	}
}

// MyRoomHandler returns the room the caller is seated in.
func MyRoomHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := srv.Store.GetRoomByPlayer(r.Context(), session(r).Address)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}

func writeRoom(w http.ResponseWriter, r *http.Request, srv *APIServer, roomID string) {
	room, err := srv.Store.GetRoom(r.Context(), roomID)
	if err != nil {
		writeError(w, srv.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// SubmitHandHandler submits the caller's hand for the seat they hold.
func SubmitHandHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roomRequest
		if err := decode(r, &req); err != nil || req.RoomID == "" {
			writeError(w, srv.Logger, errBadRequest)
			return
		}
		room, err := srv.Store.GetRoom(r.Context(), req.RoomID)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		side, ok := room.SideOf(session(r).Address)
		if !ok {
			writeError(w, srv.Logger, game.ErrNotParticipant)
			return
		}
		if err := srv.Store.SubmitHand(r.Context(), req.RoomID, side, req.Cards); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		writeRoom(w, r, srv, req.RoomID)
	}
}

// LeaveRoomHandler cancels a room that has not started.
func LeaveRoomHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roomRequest
		if err := decode(r, &req); err != nil || req.RoomID == "" {
			writeError(w, srv.Logger, errBadRequest)
			return
		}
		if err := srv.Store.LeaveRoom(r.Context(), req.RoomID, session(r).Address); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		writeRoom(w, r, srv, req.RoomID)
	}
}

// FinishRoomHandler closes a playing room. The winner is derived from the
// stored powers; a winner in the request must agree with it.
func FinishRoomHandler(srv *APIServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req roomRequest
		if err := decode(r, &req); err != nil || req.RoomID == "" {
			writeError(w, srv.Logger, errBadRequest)
			return
		}
		room, err := srv.Store.GetRoom(r.Context(), req.RoomID)
		if err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		if _, ok := room.SideOf(session(r).Address); !ok {
			writeError(w, srv.Logger, game.ErrNotParticipant)
			return
		}
		if room.Status != models.RoomPlaying || room.HostPower == nil || room.GuestPower == nil {
			writeError(w, srv.Logger, game.ErrRoomNotPlaying)
			return
		}
		winner := game.DecideWinner(*room.HostPower, *room.GuestPower)
		if req.Winner != "" && req.Winner != winner {
			writeError(w, srv.Logger, game.ErrInvalidWinner)
			return
		}
		if err := srv.Store.FinishRoom(r.Context(), req.RoomID, winner); err != nil {
			writeError(w, srv.Logger, err)
			return
		}
		writeRoom(w, r, srv, req.RoomID)
	}
}
