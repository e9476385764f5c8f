package stats

import "math"

// Proportion is a binomial sample: Successes out of Trials.
type Proportion struct {
	Successes int
	Trials    int
}

// normalized clamps successes into [0, trials]. Repeat conversions by one
// user can push raw counts above the number of users.
func (p Proportion) normalized() Proportion {
	if p.Trials < 0 {
		p.Trials = 0
	}
	if p.Successes < 0 {
		p.Successes = 0
	}
	if p.Successes > p.Trials {
		p.Successes = p.Trials
	}
	return p
}

// Rate returns successes/trials, or 0 with no trials.
func (p Proportion) Rate() float64 {
	p = p.normalized()
	if p.Trials == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Trials)
}

// Wilson calculates the Wilson score confidence interval. It's more
// accurate for small samples than the normal approximation.
func (p Proportion) Wilson(confidence float64) (lower, upper float64) {
	p = p.normalized()
	if p.Trials == 0 {
		return 0, 0
	}

	z := ZScore(confidence)
	rate := p.Rate()
	n := float64(p.Trials)

	denominator := 1 + z*z/n
	center := (rate + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(rate*(1-rate)/n+z*z/(4*n*n))

	lower = math.Max(0, center-spread)
	upper = math.Min(1, center+spread)
	return lower, upper
}

// Beats performs a two-proportion z-test and returns the confidence (0-1)
// that p has a higher rate than other. Without data on both sides it
// returns 0.5.
func (p Proportion) Beats(other Proportion) float64 {
	a, b := p.normalized(), other.normalized()
	if a.Trials == 0 || b.Trials == 0 {
		return 0.5
	}

	pA, pB := a.Rate(), b.Rate()

	// Pooled proportion under the null hypothesis
	pooled := float64(a.Successes+b.Successes) / float64(a.Trials+b.Trials)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(a.Trials) + 1/float64(b.Trials)))

	if se == 0 {
		switch {
		case pA > pB:
			return 1
		case pA < pB:
			return 0
		}
		return 0.5
	}

	return normalCDF((pA - pB) / se)
}

// normalCDF approximates the standard normal CDF (Abramowitz and Stegun
// 7.1.26).
func normalCDF(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
