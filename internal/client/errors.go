// internal/client/errors.go
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jason-s-yu/cardclash/internal/game"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnavailable       = errors.New("service unavailable")
	ErrUnauthorized      = errors.New("not logged in")
	ErrAccountNotFound   = errors.New("account not found")
)

// APIError is a non-2xx response. Unwrap reconstructs the server's sentinel
// from its wire code so errors.Is(err, game.ErrRoomFull) works client-side.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if err := game.FromCode(e.Code); err != nil {
		return err
	}
	switch {
	case e.Code == "insufficient_funds":
		return ErrInsufficientFunds
	case e.Code == "account_not_found":
		return ErrAccountNotFound
	case e.Code == "unavailable", e.Status >= 500:
		return ErrUnavailable
	case e.Status == http.StatusUnauthorized, e.Status == http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}

const maxErrorBody = 4 << 10

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
