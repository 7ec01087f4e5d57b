// Package dice implements the three readings of a roll constant: its expected
// value (used whenever a roll is compared), its exact outcome distribution
// (used by Pr) and seeded sampling (used by the roll statement).
package dice

import (
	"math"
	"math/big"
	"math/rand/v2"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
)

// Expected returns the value a roll stands for in comparisons:
// the sum over its dice of floor(die/2) + 1 + modifier. For 2d6 that is 8.
func Expected(r ast.Roll) float64 {
	total := 0
	for i := 0; i < r.Count; i++ {
		total += r.Die/2 + 1 + r.Modifier
	}
	return float64(total)
}

// Distribution enumerates every one of the die^count outcomes and returns how
// many produce each total, plus the number of outcomes.
func Distribution(r ast.Roll) (map[int]*big.Int, *big.Int) {
	ways := map[int]*big.Int{0: big.NewInt(1)}
	for i := 0; i < r.Count; i++ {
		next := make(map[int]*big.Int, len(ways)*max(r.Die, 1))
		for sum, n := range ways {
			for face := 1; face <= r.Die; face++ {
				k := sum + face + r.Modifier
				if next[k] == nil {
					next[k] = new(big.Int)
				}
				next[k].Add(next[k], n)
			}
		}
		ways = next
	}
	total := new(big.Int)
	for _, n := range ways {
		total.Add(total, n)
	}
	return ways, total
}

// Probability returns the exact probability that the roll's total satisfies
// "total op target".
func Probability(r ast.Roll, op ast.Comparator, target float64) *big.Rat {
	ways, total := Distribution(r)
	if total.Sign() == 0 {
		return new(big.Rat)
	}
	hits := new(big.Int)
	for sum, n := range ways {
		if compare(float64(sum), op, target) {
			hits.Add(hits, n)
		}
	}
	return new(big.Rat).SetFrac(hits, total)
}

// totals lists the possible totals of a roll in ascending order.
func totals(r ast.Roll) []int {
	ways, _ := Distribution(r)
	out := make([]int, 0, len(ways))
	for sum := range ways {
		out = append(out, sum)
	}
	sort.Ints(out)
	return out
}

func compare(l float64, op ast.Comparator, r float64) bool {
	switch op {
	case ast.Eq:
		return l == r
	case ast.Ne:
		return l != r
	case ast.Gt:
		return l > r
	case ast.Ge:
		return l >= r
	case ast.Lt:
		return l < r
	case ast.Le:
		return l <= r
	default:
		return false
	}
}

// Sampler draws dice results from a pseudo-random sequence fixed by a seed
// string. Two samplers with the same seed produce the same samples.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler seeds a PCG generator from the xxhash of seed.
func NewSampler(seed string) *Sampler {
	hi := xxhash.Sum64String(seed)
	lo := xxhash.Sum64String("entmoot/" + seed)
	return &Sampler{rng: rand.New(rand.NewPCG(hi, lo))}
}

// Float64 returns the next value in [0, 1).
func (s *Sampler) Float64() float64 {
	return s.rng.Float64()
}

// Sample rolls every die: floor(prng()*die) + 1 + modifier, summed.
func (s *Sampler) Sample(r ast.Roll) ast.Number {
	total := 0.0
	for i := 0; i < r.Count; i++ {
		total += math.Floor(s.Float64()*float64(r.Die)) + 1 + float64(r.Modifier)
	}
	return ast.Number{Value: total}
}
