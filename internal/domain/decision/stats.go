package decision

import (
	"math"

	"github.com/stoik/threat-engine/internal/domain"
)

const wilsonZ = 1.96

// WilsonInterval estimates a proportion with its 95% Wilson score interval
func WilsonInterval(successes, total int) domain.RateEstimate {
	if total <= 0 {
		return domain.RateEstimate{}
	}
	n := float64(total)
	p := float64(successes) / n
	z2 := wilsonZ * wilsonZ

	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	margin := wilsonZ * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denom

	return domain.RateEstimate{
		Rate:      p,
		Lower:     math.Max(0, center-margin),
		Upper:     math.Min(1, center+margin),
		Successes: successes,
		Total:     total,
	}
}

// ShannonEntropy is the entropy in bits of a count distribution
func ShannonEntropy(counts []int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

// Consistency maps an action distribution to [0,1], 1 meaning a single action.
// An empty distribution scores 0.
func Consistency(counts map[domain.AdminAction]int) float64 {
	values := make([]int, 0, len(domain.AdminActions))
	total := 0
	for _, a := range domain.AdminActions {
		values = append(values, counts[a])
		total += counts[a]
	}
	if total == 0 {
		return 0
	}
	maxEntropy := math.Log2(float64(len(domain.AdminActions)))
	return 1 - ShannonEntropy(values)/maxEntropy
}

// TwoProportionSignificance is erf(|z|/sqrt(2)) for the pooled two-proportion z statistic.
// It approaches 1 as the gap between the rates becomes unlikely to be noise.
func TwoProportionSignificance(successesA, totalA, successesB, totalB int) float64 {
	if totalA == 0 || totalB == 0 {
		return 0
	}
	nA, nB := float64(totalA), float64(totalB)
	pA, pB := float64(successesA)/nA, float64(successesB)/nB
	pooled := float64(successesA+successesB) / (nA + nB)
	se := math.Sqrt(pooled * (1 - pooled) * (1/nA + 1/nB))
	if se == 0 {
		return 0
	}
	z := math.Abs(pA-pB) / se
	return math.Erf(z / math.Sqrt2)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
