package fourier

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// FourierRow is one ranked 2D coefficient.
type FourierRow struct {
	Index          int     // flattened grid index x*p+y
	Coefficient    float64 // raw coefficient
	FracExplained  float64 // coefficient^2 / total
	CumulativeFrac float64 // running sum of FracExplained
	X, Y           string  // basis names along each axis
}

// AnalyseFourier2D ranks the squared 2D Fourier coefficients of a single grid
// (p x p, p*p x 1 or 1 x p*p) in descending order and returns the first topK
// with how much of the total squared magnitude each explains. topK <= 0 or
// larger than p*p returns every coefficient. Exactly equal values keep grid
// order.
func AnalyseFourier2D(b *Basis, tensor mat.Matrix, topK int) ([]FourierRow, error) {
	g, err := asGrid(b.P, tensor, "AnalyseFourier2D")
	if err != nil {
		return nil, err
	}
	if _, c := g.Dims(); c != 1 {
		return nil, fmt.Errorf("fourier: AnalyseFourier2D: want a single grid, got %d columns", c)
	}
	p := b.P
	vals := flatten(g)

	order := make([]int, len(vals))
	total := 0.0
	for i, v := range vals {
		order[i] = i
		total += v * v
	}
	if total == 0 {
		return nil, errors.New("fourier: AnalyseFourier2D: tensor has zero magnitude")
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, c := vals[order[i]], vals[order[j]]
		return a*a > c*c
	})

	if topK <= 0 || topK > len(vals) {
		topK = len(vals)
	}
	rows := make([]FourierRow, 0, topK)
	cum := 0.0
	for _, idx := range order[:topK] {
		v := vals[idx]
		frac := v * v / total
		cum += frac
		if cum > 1 {
			cum = 1
		}
		rows = append(rows, FourierRow{
			Index:          idx,
			Coefficient:    v,
			FracExplained:  frac,
			CumulativeFrac: cum,
			X:              b.Names[idx/p],
			Y:              b.Names[idx%p],
		})
	}
	return rows, nil
}
