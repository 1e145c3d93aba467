package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jason-s-yu/cardclash/internal/auth"
	"github.com/jason-s-yu/cardclash/internal/database"
	"github.com/jason-s-yu/cardclash/internal/game"
	"github.com/jason-s-yu/cardclash/internal/middleware"
	"github.com/sirupsen/logrus"
)

// errBadRequest marks malformed input.
var errBadRequest = errors.New("bad request")

// ErrorBody is the JSON shape of every non-2xx response the API writes.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Wire codes for failures outside the room invariants.
const (
	CodeBadRequest        = "bad_request"
	CodeInsufficientFunds = "insufficient_funds"
	CodeUnavailable       = "unavailable"
	CodeAccountNotFound   = "account_not_found"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and a stable error code.
func writeError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	switch {
	case errors.Is(err, game.ErrRoomNotFound), errors.Is(err, game.ErrEntryNotFound):
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: game.Code(err), Message: err.Error()})
	case errors.Is(err, database.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: CodeAccountNotFound, Message: err.Error()})
	case game.IsInvariant(err):
		writeJSON(w, http.StatusConflict, ErrorBody{Error: game.Code(err), Message: err.Error()})
	case errors.Is(err, database.ErrInsufficientFunds):
		writeJSON(w, http.StatusConflict, ErrorBody{Error: CodeInsufficientFunds, Message: err.Error()})
	case errors.Is(err, errBadRequest), errors.Is(err, auth.ErrInvalidAddress):
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: CodeBadRequest, Message: err.Error()})
	default:
		logger.WithError(err).Error("request failed")
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{Error: CodeUnavailable, Message: "service unavailable"})
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest
	}
	return nil
}

// session returns the caller; RequireSession guarantees it exists.
func session(r *http.Request) auth.Session {
	s, _ := middleware.SessionFrom(r.Context())
	return s
}
