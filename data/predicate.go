package data

import "fmt"

// MakePredicateArrays marks, for each of the p*p grid cells in row-major
// (x, y) order, whether the cell is a training input. Membership is an exact
// (X, Y) match; the embedded P of the samples is not compared. Every cell
// that is not train is test, so the two arrays are always complementary.
func MakePredicateArrays(p int, train []Sample) (isTrain, isTest []bool, err error) {
	if p < 1 {
		return nil, nil, fmt.Errorf("data: MakePredicateArrays: p must be positive, got %d", p)
	}
	inTrain := make([]bool, p*p)
	for _, smp := range train {
		if smp.X < 0 || smp.X >= p || smp.Y < 0 || smp.Y >= p {
			return nil, nil, fmt.Errorf("data: MakePredicateArrays: sample (%d, %d) outside %dx%d grid",
				smp.X, smp.Y, p, p)
		}
		inTrain[smp.X*p+smp.Y] = true
	}

	isTrain = make([]bool, p*p)
	isTest = make([]bool, p*p)
	for x := 0; x < p; x++ {
		for y := 0; y < p; y++ {
			i := x*p + y
			isTrain[i] = inTrain[i]
			isTest[i] = !inTrain[i]
		}
	}
	return isTrain, isTest, nil
}

// Count returns how many entries of mask are set.
func Count(mask []bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}
