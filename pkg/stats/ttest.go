package stats

import "math"

const (
	minPValue = 0.001
	maxPValue = 0.999
	maxPower  = 0.999

	// zAlpha is the two-tailed normal critical value at 95%.
	zAlpha = 1.96
)

// Comparison is the pairwise significance result for two sample groups.
type Comparison struct {
	PValue        float64 `json:"pValue" mapstructure:"pValue"`
	Power         float64 `json:"power" mapstructure:"power"`
	EffectSize    float64 `json:"effectSize" mapstructure:"effectSize"`
	IsSignificant bool    `json:"isSignificant" mapstructure:"isSignificant"`
}

// Compare runs Welch's t-test, the effect size and the power estimate for
// a pair of sample groups.
func Compare(a, b []float64) Comparison {
	p := WelchTTest(a, b)

	return Comparison{
		PValue:        p,
		Power:         Power(a, b),
		EffectSize:    EffectSize(a, b),
		IsSignificant: p < DefaultAlpha,
	}
}

// WelchTTest returns an approximate two-tailed p-value for the difference
// of means, clamped to [0.001, 0.999].
//
// Groups with fewer than two samples cannot be tested and report 0.999.
// Two groups without any variance report 0.999 when their means match and
// 0.001 otherwise.
func WelchTTest(a, b []float64) float64 {
	na, nb := float64(len(a)), float64(len(b))
	if na < 2 || nb < 2 {
		return maxPValue
	}

	va, vb := Variance(a)/na, Variance(b)/nb
	diff := Mean(a) - Mean(b)

	se := math.Sqrt(va + vb)
	if se == 0 {
		if diff == 0 {
			return maxPValue
		}

		return minPValue
	}

	t := diff / se
	df := (va + vb) * (va + vb) / (va*va/(na-1) + vb*vb/(nb-1))

	p := 2 * (1 - tCDF(math.Abs(t), df))

	return clamp(p, minPValue, maxPValue)
}

// EffectSize returns Cohen's d using the pooled standard deviation.
func EffectSize(a, b []float64) float64 {
	pooled := pooledStdDev(a, b)
	if pooled == 0 {
		return 0
	}

	return math.Abs(Mean(a)-Mean(b)) / pooled
}

// Power approximates the statistical power of detecting the observed
// effect at 95% confidence, clamped to [0, 0.999].
func Power(a, b []float64) float64 {
	na, nb := float64(len(a)), float64(len(b))
	if na < 2 || nb < 2 {
		return 0
	}

	pooled := pooledStdDev(a, b)
	if pooled == 0 {
		if Mean(a) != Mean(b) {
			return maxPower
		}

		return 0
	}

	d := math.Abs(Mean(a)-Mean(b)) / pooled
	ncp := d * math.Sqrt(na*nb/(na+nb))

	power := NormalCDF(ncp-zAlpha) + NormalCDF(-ncp-zAlpha)

	return clamp(power, 0, maxPower)
}

// NormalCDF is the standard normal cumulative distribution function.
func NormalCDF(x float64) float64 {
	return 0.5 * (1 + Erf(x/math.Sqrt2))
}

// Erf approximates the error function with Abramowitz-Stegun 7.1.26
// (maximum absolute error 1.5e-7).
func Erf(x float64) float64 {
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
		sign = -1
		x = -x
	}

	t := 1 / (1 + p*x)
	y := 1 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return sign * y
}

// tCDF approximates the Student t CDF by mapping t onto a standard normal
// deviate. Large df converge on the normal distribution directly.
func tCDF(t, df float64) float64 {
	if df > 30 {
		return NormalCDF(t)
	}

	z := t * (1 - 1/(4*df)) / math.Sqrt(1+t*t/(2*df))

	return NormalCDF(z)
}

func pooledStdDev(a, b []float64) float64 {
	na, nb := float64(len(a)), float64(len(b))
	if na+nb <= 2 {
		return 0
	}

	pooledVar := ((na-1)*Variance(a) + (nb-1)*Variance(b)) / (na + nb - 2)

	return math.Sqrt(pooledVar)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return hi
	}

	return math.Max(lo, math.Min(hi, v))
}
