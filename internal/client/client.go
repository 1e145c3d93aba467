// internal/client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/rotisserie/eris"
)

// Client talks to the cardclash HTTP API as one player. The session cookie set
// by Login is kept in the client's jar and sent with every later request.
//
// Client satisfies poller.RoomSource, poller.MatchmakingSource,
// battle.Settlement and battle.Finisher, so a player session can be wired
// directly on top of it.
type Client struct {
	baseURL *url.URL
	http    *http.Client

	Address     string
	DisplayName string
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, eris.Wrapf(err, "invalid server url %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create cookie jar")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

type loginResponse struct {
	Token       string `json:"token"`
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
}

// Login opens a session for address. The server normalizes the address; the
// normalized form is stored on the client.
func (c *Client) Login(ctx context.Context, address, displayName string) error {
	var resp loginResponse
	body := map[string]string{"address": address, "displayName": displayName}
	if err := c.do(ctx, http.MethodPost, "/session", body, &resp); err != nil {
		return err
	}
	c.Address = resp.Address
	c.DisplayName = resp.DisplayName
	return nil
}

type roomIDResponse struct {
	RoomID string `json:"roomId"`
}

// CreateRoom opens a room and returns its code.
func (c *Client) CreateRoom(ctx context.Context, mode models.Mode) (string, error) {
	var resp roomIDResponse
	if err := c.do(ctx, http.MethodPost, "/room/create", map[string]interface{}{"mode": mode}, &resp); err != nil {
		return "", err
	}
	return resp.RoomID, nil
}

// JoinRoom takes the guest seat of a waiting room.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var r models.Room
	if err := c.do(ctx, http.MethodPost, "/room/join", map[string]string{"roomId": roomID}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var r models.Room
	if err := c.do(ctx, http.MethodGet, "/room/"+url.PathEscape(roomID), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoomByPlayer returns the caller's room. The session decides who the
// caller is, so player only has to match the logged in address.
func (c *Client) GetRoomByPlayer(ctx context.Context, player string) (*models.Room, error) {
	if err := c.self(player); err != nil {
		return nil, err
	}
	var r models.Room
	if err := c.do(ctx, http.MethodGet, "/room/mine", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) GetMatchmakingStatus(ctx context.Context, player string) (*models.MatchmakingEntry, error) {
	if err := c.self(player); err != nil {
		return nil, err
	}
	var e models.MatchmakingEntry
	if err := c.do(ctx, http.MethodGet, "/matchmaking/status", nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

type findMatchResponse struct {
	RoomID  string `json:"roomId"`
	Matched bool   `json:"matched"`
}

// FindMatch pairs the caller or queues them. It returns "" while waiting.
func (c *Client) FindMatch(ctx context.Context) (string, error) {
	var resp findMatchResponse
	if err := c.do(ctx, http.MethodPost, "/matchmaking/find", nil, &resp); err != nil {
		return "", err
	}
	return resp.RoomID, nil
}

func (c *Client) CancelMatchmaking(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/matchmaking/cancel", nil, nil)
}

// SubmitHand submits the caller's hand; the server picks the seat.
func (c *Client) SubmitHand(ctx context.Context, roomID string, hand []models.CardRef) (*models.Room, error) {
	var r models.Room
	body := map[string]interface{}{"roomId": roomID, "cards": hand}
	if err := c.do(ctx, http.MethodPost, "/room/hand", body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) LeaveRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var r models.Room
	if err := c.do(ctx, http.MethodPost, "/room/leave", map[string]string{"roomId": roomID}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// FinishRoom asks the server to close a playing room. The server derives the
// winner itself and rejects a disagreeing one.
func (c *Client) FinishRoom(ctx context.Context, roomID string, winner models.Side) error {
	body := map[string]interface{}{"roomId": roomID, "winner": winner}
	return c.do(ctx, http.MethodPost, "/room/finish", body, nil)
}

// ChargeEntryFee debits the caller. mode is decided by the stored room.
func (c *Client) ChargeEntryFee(ctx context.Context, roomID, player string, _ models.Mode) error {
	if err := c.self(player); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/settlement/fee", map[string]string{"roomId": roomID}, nil)
}

// ClaimWinReward credits the caller for a win, or refunds a tie.
func (c *Client) ClaimWinReward(ctx context.Context, roomID, player string, _ models.Mode, _ bool) error {
	if err := c.self(player); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/settlement/reward", map[string]string{"roomId": roomID}, nil)
}

// RecordMatchResult asks the server to record the caller's row. Only the room
// id is sent; the server rebuilds the result from the stored room.
func (c *Client) RecordMatchResult(ctx context.Context, result models.MatchResult) error {
	if err := c.self(result.Player); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/settlement/record", map[string]string{"roomId": result.RoomID}, nil)
}

func (c *Client) Account(ctx context.Context) (*models.Account, error) {
	var a models.Account
	if err := c.do(ctx, http.MethodGet, "/account", nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// History lists the caller's recorded results, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]models.MatchResult, error) {
	path := "/account/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []models.MatchResult
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) self(player string) error {
	if player != "" && player != c.Address {
		return fmt.Errorf("client is logged in as %s, not %s", c.Address, player)
	}
	return nil
}

// do sends one JSON request and decodes a JSON response into out. Non-2xx
// responses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "failed to encode request")
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, rd)
	if err != nil {
		return eris.Wrapf(err, "failed to build %s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "failed to decode %s %s", method, path)
	}
	return nil
}
