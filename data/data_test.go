package data

import (
	"reflect"
	"testing"
)

func TestGenTrainTestSizes(t *testing.T) {
	s, err := GenTrainTest(0.3, 113, 0)
	if err != nil {
		t.Fatal(err)
	}
	// floor(0.3 * 12769) = 3830
	if len(s.Train) != 3830 || len(s.Test) != 8939 {
		t.Fatalf("split sizes: train=%d test=%d, want 3830/8939", len(s.Train), len(s.Test))
	}
}

func TestGenTrainTestDeterministic(t *testing.T) {
	a, err := GenTrainTest(0.3, 23, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenTrainTest(0.3, 23, 42)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different splits")
	}
	c, _ := GenTrainTest(0.3, 23, 43)
	if reflect.DeepEqual(a.Train, c.Train) {
		t.Fatal("different seeds produced identical train order")
	}
}

func TestGenTrainTestPartition(t *testing.T) {
	for _, p := range []int{2, 5, 7, 31} {
		s, err := GenTrainTest(0.5, p, 1)
		if err != nil {
			t.Fatal(err)
		}
		seen := make(map[[2]int]int)
		for _, smp := range append(append([]Sample{}, s.Train...), s.Test...) {
			seen[[2]int{smp.X, smp.Y}]++
			if smp.P != p {
				t.Fatalf("p=%d: sample carries P=%d", p, smp.P)
			}
		}
		if len(seen) != p*p {
			t.Fatalf("p=%d: covered %d pairs, want %d", p, len(seen), p*p)
		}
		for k, n := range seen {
			if n != 1 {
				t.Fatalf("p=%d: pair %v appears %d times", p, k, n)
			}
		}
	}
}

func TestGenTrainTestRejectsBadFraction(t *testing.T) {
	for _, f := range []float64{0, 1, -0.1, 1.5} {
		if _, err := GenTrainTest(f, 5, 0); err == nil {
			t.Fatalf("frac_train=%v: expected error", f)
		}
	}
	if _, err := GenTrainTest(0.5, 1, 0); err == nil {
		t.Fatal("num=1: expected error")
	}
}

func TestDividedDropsZeroY(t *testing.T) {
	s, _ := GenTrainTest(0.3, 11, 0)
	d := s.Divided()
	for _, smp := range append(append([]Sample{}, d.Train...), d.Test...) {
		if smp.Y == 0 {
			t.Fatalf("divided split kept %v", smp)
		}
	}
	if got, want := len(d.Train)+len(d.Test), 11*10; got != want {
		t.Fatalf("divided split has %d samples, want %d", got, want)
	}
}

func TestPredicateArraysComplementary(t *testing.T) {
	s, _ := GenTrainTest(0.3, 13, 3)
	isTrain, isTest, err := s.Predicates()
	if err != nil {
		t.Fatal(err)
	}
	if len(isTrain) != 169 || len(isTest) != 169 {
		t.Fatalf("lengths %d/%d, want 169", len(isTrain), len(isTest))
	}
	for i := range isTrain {
		if isTrain[i] == isTest[i] {
			t.Fatalf("cell %d: is_train=%v is_test=%v", i, isTrain[i], isTest[i])
		}
	}
	if Count(isTrain) != len(s.Train) {
		t.Fatalf("train cells %d, want %d", Count(isTrain), len(s.Train))
	}
	for _, smp := range s.Train {
		if !isTrain[smp.X*13+smp.Y] {
			t.Fatalf("train sample %v not marked", smp)
		}
	}
}

func TestPredicateArraysIgnoreEmbeddedModulus(t *testing.T) {
	train := []Sample{{X: 1, Y: 2, P: 999}}
	isTrain, _, err := MakePredicateArrays(3, train)
	if err != nil {
		t.Fatal(err)
	}
	if !isTrain[1*3+2] {
		t.Fatal("pair (1,2) should be train regardless of P")
	}
	if _, _, err := MakePredicateArrays(3, []Sample{{X: 3, Y: 0}}); err == nil {
		t.Fatal("expected error for sample outside the grid")
	}
}

func TestTargetFunctions(t *testing.T) {
	fns := Functions(7, 0)
	cases := []struct {
		name string
		x, y int
		want int
	}{
		{"add", 5, 4, 2},
		{"subtract", 2, 5, 4},
		{"mult", 3, 5, 1},
		{"div", 6, 3, 2},
		{"x2xyy2", 1, 2, 0},
	}
	for _, c := range cases {
		if got := fns[c.name](c.x, c.y); got != c.want {
			t.Errorf("%s(%d,%d) = %d, want %d", c.name, c.x, c.y, got, c.want)
		}
	}
	for x := 0; x < 7; x++ {
		for y := 1; y < 7; y++ {
			if got := (fns["div"](x, y) * y) % 7; got != x {
				t.Fatalf("div(%d,%d)*%d = %d mod 7", x, y, y, got)
			}
		}
	}
	r := fns["rand"]
	again := Functions(7, 0)["rand"]
	for x := 0; x < 7; x++ {
		for y := 0; y < 7; y++ {
			if v := r(x, y); v < 0 || v >= 7 || v != again(x, y) {
				t.Fatalf("rand(%d,%d) = %d not a stable residue", x, y, v)
			}
		}
	}
	if _, err := Lookup(7, 0, "pow"); err == nil {
		t.Fatal("expected error for unknown function")
	}
}
