// internal/handlers/api_server.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jason-s-yu/cardclash/internal/matchmaking"
	"github.com/jason-s-yu/cardclash/internal/middleware"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/jason-s-yu/cardclash/internal/store"
	"github.com/sirupsen/logrus"
)

// Ledger is the server side of settlement. Movements are keyed by the room's
// storage key, which stays unique after the code is reissued.
type Ledger interface {
	ChargeEntryFee(ctx context.Context, matchKey, player string, mode models.Mode) error
	ClaimWinReward(ctx context.Context, matchKey, player string, mode models.Mode, tie bool) error
	GetAccount(ctx context.Context, address string) (*models.Account, error)
	MatchHistory(ctx context.Context, address string, limit int) ([]models.MatchResult, error)
}

// ResultRecorder persists a resolved match result.
type ResultRecorder interface {
	RecordMatchResult(ctx context.Context, result models.MatchResult) error
}

// RecorderFunc adapts a function to ResultRecorder.
type RecorderFunc func(ctx context.Context, result models.MatchResult) error

func (f RecorderFunc) RecordMatchResult(ctx context.Context, result models.MatchResult) error {
	return f(ctx, result)
}

// APIServer holds the collaborators every handler closes over.
type APIServer struct {
	Store      store.Store
	Queue      *matchmaking.Queue
	Ledger     Ledger
	Recorder   ResultRecorder
	AdminToken string
	Logger     logrus.FieldLogger

	// EnqueueAttempts and EnqueueBackoff bound how long a find request keeps
	// retrying a store that is briefly unreachable.
	EnqueueAttempts int
	EnqueueBackoff  time.Duration
}

func NewAPIServer(s store.Store, ledger Ledger, recorder ResultRecorder, logger logrus.FieldLogger) *APIServer {
	return &APIServer{
		Store:    s,
		Queue:    matchmaking.NewQueue(s, logger),
		Ledger:   ledger,
		Recorder: recorder,
		Logger:   logger,

		EnqueueAttempts: 3,
		EnqueueBackoff:  50 * time.Millisecond,
	}
}

// Routes registers every endpoint, each wrapped in request logging.
func (srv *APIServer) Routes() http.Handler {
	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(srv.Logger)
	public := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, logged(h))
	}
	private := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, logged(middleware.RequireSession(h)))
	}

	public("POST /session", CreateSessionHandler())

	private("POST /room/create", CreateRoomHandler(srv))
	private("POST /room/join", JoinRoomHandler(srv))
	private("GET /room/mine", MyRoomHandler(srv))
	private("GET /room/{id}", GetRoomHandler(srv))
	private("POST /room/hand", SubmitHandHandler(srv))
	private("POST /room/leave", LeaveRoomHandler(srv))
	private("POST /room/finish", FinishRoomHandler(srv))

	private("POST /matchmaking/find", FindMatchHandler(srv))
	private("POST /matchmaking/cancel", CancelMatchHandler(srv))
	private("GET /matchmaking/status", MatchStatusHandler(srv))

	private("POST /settlement/fee", ChargeFeeHandler(srv))
	private("POST /settlement/reward", ClaimRewardHandler(srv))
	private("POST /settlement/record", RecordResultHandler(srv))
	private("GET /account", AccountHandler(srv))
	private("GET /account/history", HistoryHandler(srv))

	public("POST /admin/cleanup", CleanupHandler(srv))
	return mux
}
