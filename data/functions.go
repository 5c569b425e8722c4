package data

import (
	"fmt"
	"math/rand/v2"
	"sort"
)

// TargetFunc maps an input pair to a label in [0, p).
type TargetFunc func(x, y int) int

// ModPow computes b^e mod p by square-and-multiply.
func ModPow(b, e, p int) int {
	result := 1 % p
	b %= p
	if b < 0 {
		b += p
	}
	for e > 0 {
		if e&1 == 1 {
			result = result * b % p
		}
		b = b * b % p
		e >>= 1
	}
	return result
}

// ModDiv is a * b^(p-2) mod p, the field inverse for prime p. For b == 0 it
// returns 0; the divided split never asks for it.
func ModDiv(a, b, p int) int {
	return mod(a*ModPow(b, p-2, p), p)
}

func mod(a, p int) int {
	a %= p
	if a < 0 {
		a += p
	}
	return a
}

// Functions returns the named target functions for modulus p. The "rand"
// function is a fixed random table drawn from seed.
func Functions(p int, seed uint64) map[string]TargetFunc {
	rng := rand.New(rand.NewPCG(seed, 1))
	randomAnswers := make([]int, p*p)
	for i := range randomAnswers {
		randomAnswers[i] = rng.IntN(p)
	}
	return map[string]TargetFunc{
		"add":      func(x, y int) int { return mod(x+y, p) },
		"subtract": func(x, y int) int { return mod(x-y, p) },
		"mult":     func(x, y int) int { return mod(x*y, p) },
		"div":      func(x, y int) int { return ModDiv(x, y, p) },
		"x2xyy2":   func(x, y int) int { return mod(x*x+x*y+y*y, p) },
		"rand":     func(x, y int) int { return randomAnswers[x*p+y] },
	}
}

// Lookup returns the target function called name.
func Lookup(p int, seed uint64, name string) (TargetFunc, error) {
	fns := Functions(p, seed)
	fn, ok := fns[name]
	if !ok {
		names := make([]string, 0, len(fns))
		for n := range fns {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("data: unknown function %q (have %v)", name, names)
	}
	return fn, nil
}

// Labels evaluates fn over every sample.
func Labels(fn TargetFunc, samples []Sample) []int {
	out := make([]int, len(samples))
	for i, smp := range samples {
		out[i] = fn(smp.X, smp.Y)
	}
	return out
}

// SplitFor returns the split a function trains on: the divided split for
// "div", the plain one otherwise.
func SplitFor(name string, s Split) Split {
	if name == "div" {
		return s.Divided()
	}
	return s
}
