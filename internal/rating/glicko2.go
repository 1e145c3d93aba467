// internal/rating/glicko2.go
package rating

import (
	"math"

	"github.com/jason-s-yu/cardclash/internal/models"
)

const (
	// GlickoScale converts between the 1500-based display scale and Glicko-2's internal scale.
	GlickoScale = 173.7178
	// DefaultElo is the rating every new account starts from.
	DefaultElo = 1500
	// DefaultPhi is the starting rating deviation on the display scale.
	DefaultPhi = 350.0
	// DefaultSigma is the starting volatility.
	DefaultSigma = 0.06
	// Tau constrains how fast volatility may move.
	Tau = 0.5
	// Epsilon is the convergence tolerance of the volatility solver.
	Epsilon = 0.000001
)

// Scores for one side of a 1v1 battle.
const (
	ScoreLoss = 0.0
	ScoreTie  = 0.5
	ScoreWin  = 1.0
)

// glicko is a rating on Glicko-2's internal scale.
type glicko struct {
	mu, phi, sigma float64
}

func fromAccount(a models.Account) glicko {
	elo, phi, sigma := float64(a.Elo), a.Phi, a.Sigma
	if a.Elo == 0 {
		elo = DefaultElo
	}
	if phi <= 0 {
		phi = DefaultPhi
	}
	if sigma <= 0 {
		sigma = DefaultSigma
	}
	return glicko{
		mu:    (elo - DefaultElo) / GlickoScale,
		phi:   phi / GlickoScale,
		sigma: sigma,
	}
}

func (r glicko) apply(a models.Account) models.Account {
	a.Elo = int(math.Round(r.mu*GlickoScale + DefaultElo))
	a.Phi = r.phi * GlickoScale
	a.Sigma = r.sigma
	return a
}

// NewAccount returns an account carrying the default rating.
func NewAccount(address string) models.Account {
	return models.Account{Address: address, Elo: DefaultElo, Phi: DefaultPhi, Sigma: DefaultSigma}
}

// Update1v1 rates one battle. score is a's result: ScoreWin, ScoreTie or
// ScoreLoss. Both accounts are updated against the other's pre-battle rating.
func Update1v1(a, b models.Account, score float64) (models.Account, models.Account) {
	ra, rb := fromAccount(a), fromAccount(b)
	return update(ra, rb, score).apply(a), update(rb, ra, 1-score).apply(b)
}

// ScoreFor maps a battle outcome to the Glicko score of side.
func ScoreFor(side, winner models.Side) float64 {
	switch winner {
	case models.SideTie:
		return ScoreTie
	case side:
		return ScoreWin
	}
	return ScoreLoss
}

// update performs one rating period containing a single game.
func update(r, opp glicko, score float64) glicko {
	gOpp := g(opp.phi)
	expected := expect(r.mu, opp.mu, opp.phi)

	v := 1.0 / (gOpp * gOpp * expected * (1 - expected))
	delta := v * gOpp * (score - expected)
	sigma := volatility(r, v, delta)

	phiStar := math.Sqrt(r.phi*r.phi + sigma*sigma)
	phi := 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	return glicko{
		mu:    r.mu + phi*phi*gOpp*(score-expected),
		phi:   phi,
		sigma: sigma,
	}
}

// volatility solves for the new sigma with the Illinois variant of regula falsi.
func volatility(r glicko, v, delta float64) float64 {
	a := math.Log(r.sigma * r.sigma)
	fn := func(x float64) float64 {
		ex := math.Exp(x)
		d := r.phi*r.phi + v + ex
		return ex*(delta*delta-r.phi*r.phi-v-ex)/(2*d*d) - (x-a)/(Tau*Tau)
	}

	lo := a
	var hi float64
	if delta*delta > r.phi*r.phi+v {
		hi = math.Log(delta*delta - r.phi*r.phi - v)
	} else {
		k := 1.0
		for fn(a-k*Tau) < 0 {
			k++
		}
		hi = a - k*Tau
	}

	fLo, fHi := fn(lo), fn(hi)
	for i := 0; i < 100 && math.Abs(hi-lo) > Epsilon; i++ {
		next := lo + (lo-hi)*fLo/(fHi-fLo)
		fNext := fn(next)
		if fNext*fHi <= 0 {
			lo, fLo = hi, fHi
		} else {
			fLo /= 2
		}
		hi, fHi = next, fNext
	}
	return math.Exp(lo / 2)
}

func g(phi float64) float64 {
	return 1.0 / math.Sqrt(1.0+3.0*phi*phi/(math.Pi*math.Pi))
}

func expect(mu, muOpp, phiOpp float64) float64 {
	return 1.0 / (1.0 + math.Exp(-g(phiOpp)*(mu-muOpp)))
}
