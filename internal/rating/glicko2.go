// internal/rating/glicko2.go
package rating

import (
	"math"
)

const (
	// GlickoScale is the multiplier used for converting between Elo and Glicko2's mu.
	GlickoScale = 173.7178
	// DefaultMu is the baseline rating (1500) in Glicko2 terms.
	DefaultMu = 1500.0
	// DefaultPhi is the baseline rating deviation (RD) in Glicko2 terms (350).
	DefaultPhi = 350.0
	// Tau is the constraint on volatility changes.
	Tau = 0.5
	// Epsilon is the tolerance used in iteration stopping conditions.
	Epsilon = 0.000001
)

// Glicko2Rating holds the transformed rating (Mu), rating deviation (Phi),
// and volatility (Sigma) for a single player in Glicko2 space.
type Glicko2Rating struct {
	Mu    float64
	Phi   float64
	Sigma float64
}

// NewGlicko2Rating creates a new Glicko2Rating from a standard Elo, rating deviation, and volatility.
//
// elo and rd are on the 1500-based scale; sigma is usually around 0.06.
func NewGlicko2Rating(elo, rd, sigma float64) Glicko2Rating {
	return Glicko2Rating{
		Mu:    (elo - DefaultMu) / GlickoScale,
		Phi:   rd / GlickoScale,
		Sigma: sigma,
	}
}

// ToElo converts a Glicko2Rating's Mu back to a standard 1500-based Elo scale.
func (r Glicko2Rating) ToElo() float64 {
	return r.Mu*GlickoScale + DefaultMu
}

// Rating is a player's persisted skill estimate on the 1500-based scale.
type Rating struct {
	Elo   float64 `json:"elo"`
	RD    float64 `json:"rd"`
	Sigma float64 `json:"sigma"`
}

// DefaultSigma is the starting volatility.
const DefaultSigma = 0.06

// Default is the rating a new profile starts with.
func Default() Rating {
	return Rating{Elo: DefaultMu, RD: DefaultPhi, Sigma: DefaultSigma}
}

func (r Rating) glicko() Glicko2Rating {
	if r.RD <= 0 {
		r.RD = DefaultPhi
	}
	if r.Sigma <= 0 {
		r.Sigma = DefaultSigma
	}
	return NewGlicko2Rating(r.Elo, r.RD, r.Sigma)
}

func fromGlicko(g Glicko2Rating) Rating {
	return Rating{Elo: math.Round(g.ToElo()), RD: g.Phi * GlickoScale, Sigma: g.Sigma}
}

// team collapses a partnership into one opponent: mean rating, root mean
// square deviation.
func team(rs []Rating) Glicko2Rating {
	var elo, rd2 float64
	for _, r := range rs {
		gr := r.glicko()
		elo += gr.ToElo()
		rd2 += (gr.Phi * GlickoScale) * (gr.Phi * GlickoScale)
	}
	n := float64(len(rs))
	return NewGlicko2Rating(elo/n, math.Sqrt(rd2/n), DefaultSigma)
}

// UpdatePartnerships rates one finished game between two partnerships. Each
// player is updated as if they had played the opposing partnership as a
// single opponent. Either side may be empty (all bots), in which case
// nobody is rated.
func UpdatePartnerships(a, b []Rating, aWon bool) ([]Rating, []Rating) {
	if len(a) == 0 || len(b) == 0 {
		return a, b
	}
	oppOfA, oppOfB := team(b), team(a)
	scoreA, scoreB := 0.0, 1.0
	if aWon {
		scoreA, scoreB = 1.0, 0.0
	}

	outA := make([]Rating, len(a))
	for i, r := range a {
		outA[i] = fromGlicko(updateGlicko(r.glicko(), oppOfA, scoreA))
	}
	outB := make([]Rating, len(b))
	for i, r := range b {
		outB[i] = fromGlicko(updateGlicko(r.glicko(), oppOfB, scoreB))
	}
	return outA, outB
}

// updateGlicko performs a single-match Glicko2 update with volatility for a player r
// against an opponent rOpp, given the final score in [0..1].
func updateGlicko(r, rOpp Glicko2Rating, score float64) Glicko2Rating {
	gVal := g(rOpp.Phi)
	EVal := E(r.Mu, rOpp.Mu, rOpp.Phi)

	v := 1.0 / (gVal * gVal * EVal * (1 - EVal))
	delta := v * gVal * (score - EVal)

	a := math.Log(r.Sigma * r.Sigma)
	A := a
	var B float64
	if delta*delta > r.Phi*r.Phi+v {
		B = math.Log(delta*delta - r.Phi*r.Phi - v)
	} else {
		k := 1.0
		for f(a-k*Tau, r.Phi, v, delta, A) < 0 {
			k++
		}
		B = a - k*Tau
	}

	fA := func(x float64) float64 {
		return f(x, r.Phi, v, delta, A)
	}

	fB := fA(B)
	for i := 0; i < 100; i++ {
		fAVal := fA(A)
		if math.Abs(fAVal) < Epsilon {
			break
		}
		A1 := A
		A = A1 - fAVal*(A1-B)/(fAVal-fB)
		fB = fA(B)
		if math.Abs(A-B) < Epsilon {
			break
		}
	}
	newSigma := math.Exp(A / 2)
	phiStar := math.Sqrt(r.Phi*r.Phi + newSigma*newSigma)
	phiPrime := 1.0 / math.Sqrt(1.0/(phiStar*phiStar)+1.0/v)
	muPrime := r.Mu + phiPrime*phiPrime*gVal*(score-EVal)

	return Glicko2Rating{
		Mu:    muPrime,
		Phi:   phiPrime,
		Sigma: newSigma,
	}
}

// g is the G(phi) factor from Glicko2, applying the standard formula 1/sqrt(1+3phi^2/pi^2).
func g(phi float64) float64 {
	return 1.0 / math.Sqrt(1.0+3.0*phi*phi/math.Pi/math.Pi)
}

// E is the expected score formula in Glicko2 space, E(mu,mu2,phi2)=1/(1+exp[-g(phi2)*(mu-mu2)])
func E(mu, mu2, phi2 float64) float64 {
	return 1.0 / (1.0 + math.Exp(-g(phi2)*(mu-mu2)))
}

// f is the Glicko2 volatility root-finding function used in the iterative volatility update.
func f(x, phi, v, delta, a float64) float64 {
	ex := math.Exp(x)
	num := ex * (delta*delta - phi*phi - v - ex)
	den := 2.0 * (phi*phi + v + ex) * (phi*phi + v + ex)
	return (num / den) - ((x - a) / (Tau * Tau))
}
