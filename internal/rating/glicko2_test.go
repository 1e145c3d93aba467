package rating

import (
	"math"
	"testing"

	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestUpdate1v1(t *testing.T) {
	winner, loser := Update1v1(NewAccount("0xW"), NewAccount("0xL"), ScoreWin)

	assert.Greater(t, winner.Elo, DefaultElo)
	assert.Less(t, loser.Elo, DefaultElo)
	assert.Equal(t, winner.Elo-DefaultElo, DefaultElo-loser.Elo, "equal ratings move symmetrically")
	assert.Less(t, winner.Phi, DefaultPhi, "a game reduces uncertainty")
	assert.Equal(t, "0xW", winner.Address)
}

func TestUpdate1v1Tie(t *testing.T) {
	a, b := Update1v1(NewAccount("0xA"), NewAccount("0xB"), ScoreTie)
	assert.Equal(t, DefaultElo, a.Elo)
	assert.Equal(t, DefaultElo, b.Elo)

	strong := models.Account{Address: "0xS", Elo: 1900, Phi: 80, Sigma: DefaultSigma}
	s, w := Update1v1(strong, NewAccount("0xW"), ScoreTie)
	assert.Less(t, s.Elo, 1900, "a tie against a weaker player costs rating")
	assert.Greater(t, w.Elo, DefaultElo)
}

func TestZeroAccountUsesDefaults(t *testing.T) {
	a, _ := Update1v1(models.Account{Address: "0xA"}, NewAccount("0xB"), ScoreWin)
	assert.Greater(t, a.Elo, DefaultElo)
	assert.False(t, math.IsNaN(a.Sigma))
}

// Glickman's worked example starts a 1500/200 player; a single win against
// 1400/30 should leave volatility close to where it began.
func TestVolatilityStaysNearStart(t *testing.T) {
	a := models.Account{Address: "0xA", Elo: 1500, Phi: 200, Sigma: DefaultSigma}
	b := models.Account{Address: "0xB", Elo: 1400, Phi: 30, Sigma: DefaultSigma}
	na, _ := Update1v1(a, b, ScoreWin)
	assert.InDelta(t, DefaultSigma, na.Sigma, 0.001)
	assert.Greater(t, na.Elo, 1500)
}

func TestScoreFor(t *testing.T) {
	assert.Equal(t, ScoreWin, ScoreFor(models.SideHost, models.SideHost))
	assert.Equal(t, ScoreLoss, ScoreFor(models.SideGuest, models.SideHost))
	assert.Equal(t, ScoreTie, ScoreFor(models.SideGuest, models.SideTie))
}
