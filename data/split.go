// Package data builds the train/test partition of the p*p input grid and the
// boolean masks that index a full batch of every possible input.
package data

import (
	"fmt"
	"math/rand/v2"
)

// Sample is one input (x, y) of the target function. P is the "=" token,
// equal to the modulus, so a sample doubles as its own token sequence.
type Sample struct {
	X, Y, P int
}

// Tokens returns the model input [x, y, =].
func (s Sample) Tokens() []int { return []int{s.X, s.Y, s.P} }

// Split is a disjoint ordered partition of every pair under Modulus.
type Split struct {
	Modulus int
	Train   []Sample
	Test    []Sample
}

// GenTrainTest enumerates all (i, j) for i, j in [0, num) row-major,
// shuffles them with a PRNG seeded from seed and puts the first
// floor(fracTrain*num*num) pairs in train. The same arguments always give
// the same partition in the same order.
func GenTrainTest(fracTrain float64, num int, seed int64) (Split, error) {
	if fracTrain <= 0 || fracTrain >= 1 {
		return Split{}, fmt.Errorf("data: GenTrainTest: frac_train %v not in (0,1)", fracTrain)
	}
	if num < 2 {
		return Split{}, fmt.Errorf("data: GenTrainTest: num must be >= 2, got %d", num)
	}
	pairs := make([]Sample, 0, num*num)
	for i := 0; i < num; i++ {
		for j := 0; j < num; j++ {
			pairs = append(pairs, Sample{X: i, Y: j, P: num})
		}
	}
	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	rng.Shuffle(len(pairs), func(a, b int) { pairs[a], pairs[b] = pairs[b], pairs[a] })

	div := int(fracTrain * float64(len(pairs)))
	return Split{
		Modulus: num,
		Train:   pairs[:div:div],
		Test:    pairs[div:],
	}, nil
}

// Divided drops every sample with y == 0 from both halves, for functions
// undefined at y = 0 such as division.
func (s Split) Divided() Split {
	return Split{
		Modulus: s.Modulus,
		Train:   nonZeroY(s.Train),
		Test:    nonZeroY(s.Test),
	}
}

func nonZeroY(in []Sample) []Sample {
	out := make([]Sample, 0, len(in))
	for _, smp := range in {
		if smp.Y != 0 {
			out = append(out, smp)
		}
	}
	return out
}

// Predicates builds the grid masks for this split using its own modulus.
func (s Split) Predicates() (isTrain, isTest []bool, err error) {
	return MakePredicateArrays(s.Modulus, s.Train)
}

// Batch turns samples into token sequences for a forward pass.
func Batch(samples []Sample) [][]int {
	out := make([][]int, len(samples))
	for i, smp := range samples {
		out[i] = smp.Tokens()
	}
	return out
}

// AllInputs is the full p*p grid in row-major order, the batch the
// predicate arrays index into.
func AllInputs(p int) []Sample {
	out := make([]Sample, 0, p*p)
	for x := 0; x < p; x++ {
		for y := 0; y < p; y++ {
			out = append(out, Sample{X: x, Y: y, P: p})
		}
	}
	return out
}
