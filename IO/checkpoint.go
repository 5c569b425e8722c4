package IO

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/data"
	"github.com/manningwu07/grokking/params"
)

// Matrix is the gob form of a *mat.Dense.
type Matrix struct {
	R, C int
	Data []float64
}

func FromDense(m *mat.Dense) Matrix {
	r, c := m.Dims()
	raw := mat.DenseCopyOf(m).RawMatrix()
	return Matrix{R: r, C: c, Data: append([]float64(nil), raw.Data...)}
}

func (m Matrix) Dense() *mat.Dense {
	return mat.NewDense(m.R, m.C, append([]float64(nil), m.Data...))
}

// AdamState is the optimizer state saved with a checkpoint.
type AdamState struct {
	T    int
	M, V map[string]Matrix
}

// Checkpoint is one saved point of a run. The init checkpoint carries the
// data split; later ones carry optimizer state and losses.
type Checkpoint struct {
	FnName string
	Epoch  int
	Config params.TrainingConfig
	Params map[string]Matrix

	Optimizer *AdamState

	TrainLoss, TestLoss     float64
	TrainLosses, TestLosses []float64

	Train, Test []data.Sample
}

// FullRun is the end-of-run record: loss histories plus parameter snapshots
// taken at Epochs.
type FullRun struct {
	FnName                  string
	Config                  params.TrainingConfig
	TrainLosses, TestLosses []float64
	Epochs                  []int
	Snapshots               []map[string]Matrix
	Params                  map[string]Matrix
}

// SnapshotParams deep-copies a named parameter set.
func SnapshotParams(ps map[string]*mat.Dense) map[string]Matrix {
	out := make(map[string]Matrix, len(ps))
	for name, m := range ps {
		out[name] = FromDense(m)
	}
	return out
}

// RestoreParams copies src into the matching matrices of dst. Every dst
// parameter must be present in src with the same shape.
func RestoreParams(dst map[string]*mat.Dense, src map[string]Matrix) error {
	names := make([]string, 0, len(dst))
	for n := range dst {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		m, ok := src[name]
		if !ok {
			return fmt.Errorf("IO: restore params: %s missing from checkpoint", name)
		}
		r, c := dst[name].Dims()
		if m.R != r || m.C != c || len(m.Data) != r*c {
			return fmt.Errorf("IO: restore params: %s is %dx%d in checkpoint, model wants %dx%d", name, m.R, m.C, r, c)
		}
		dst[name].Copy(m.Dense())
	}
	return nil
}

// CheckpointPath names a run file: <dir>/<fn>-<tag>.gob.
func CheckpointPath(dir, fnName, tag string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.gob", fnName, tag))
}

func SaveCheckpoint(path string, ck *Checkpoint) error {
	if err := saveGob(path, ck); err != nil {
		return fmt.Errorf("IO: save checkpoint %s: %w", path, err)
	}
	return nil
}

func LoadCheckpoint(path string) (*Checkpoint, error) {
	ck := &Checkpoint{}
	if err := loadGob(path, ck); err != nil {
		return nil, fmt.Errorf("IO: load checkpoint %s: %w", path, err)
	}
	return ck, nil
}

func SaveFullRun(path string, run *FullRun) error {
	if err := saveGob(path, run); err != nil {
		return fmt.Errorf("IO: save full run %s: %w", path, err)
	}
	return nil
}

func LoadFullRun(path string) (*FullRun, error) {
	run := &FullRun{}
	if err := loadGob(path, run); err != nil {
		return nil, fmt.Errorf("IO: load full run %s: %w", path, err)
	}
	return run, nil
}

func saveGob(path string, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func loadGob(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewReader(raw)).Decode(v)
}
