package IO

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

var lossHeader = []string{"epoch", "train_loss", "test_loss"}

// WriteLossCSV writes one row per epoch.
func WriteLossCSV(path string, train, test []float64) error {
	if len(train) != len(test) {
		return fmt.Errorf("IO: write losses %s: %d train vs %d test values", path, len(train), len(test))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("IO: write losses %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Write(lossHeader)
	for i := range train {
		w.Write([]string{
			strconv.Itoa(i),
			strconv.FormatFloat(train[i], 'g', -1, 64),
			strconv.FormatFloat(test[i], 'g', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("IO: write losses %s: %w", path, err)
	}
	return f.Close()
}

func ReadLossCSV(path string) (train, test []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("IO: read losses %s: %w", path, err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("IO: read losses %s: %w", path, err)
	}
	if len(recs) == 0 {
		return nil, nil, fmt.Errorf("IO: read losses %s: empty file", path)
	}
	for i, rec := range recs[1:] {
		if len(rec) != 3 {
			return nil, nil, fmt.Errorf("IO: read losses %s: line %d has %d fields", path, i+2, len(rec))
		}
		tr, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("IO: read losses %s: line %d: %w", path, i+2, err)
		}
		te, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("IO: read losses %s: line %d: %w", path, i+2, err)
		}
		train = append(train, tr)
		test = append(test, te)
	}
	return train, test, nil
}
