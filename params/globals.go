package params

import "fmt"

type TrainingConfig struct {
	// Task
	P         int     // prime modulus; also the id of the "=" token
	FracTrain float64 // fraction of the p*p grid used for training
	Seed      int64   // data split seed
	InitSeed  uint64  // weight init seed

	// Core transformer parameters
	DModel    int // model width
	NumHeads  int // attention heads, dHead = DModel/NumHeads
	DMLP      int // MLP hidden
	NumLayers int // how many times attn --> mlp happens
	NCtx      int // tokens per sample (x, y, =)
	ActType   string
	UseLN     bool // final LayerNorm before the unembed

	// AdamW
	LR          float64
	WeightDecay float64
	Beta1       float64
	Beta2       float64
	AdamEps     float64
	WarmupSteps int // linear warmup, lr*min(step/WarmupSteps, 1)

	NumEpochs      int
	SaveModels     bool
	SaveEvery      int     // checkpoint every N epochs
	SnapshotEvery  int     // keep params in the full-run file every N epochs
	StoppingThresh float64 // stop training when test loss < StoppingThresh
	Workers        int     // gradient workers (1 = sequential)

	RunRoot string // directory that receives grok_<unix> run folders
	DBPath  string // sqlite run store ("" disables)
}

// DVocab is the vocabulary size: p residues plus the "=" token.
func (c TrainingConfig) DVocab() int { return c.P + 1 }

// DHead is the per-head width.
func (c TrainingConfig) DHead() int { return c.DModel / c.NumHeads }

func (c TrainingConfig) Validate() error {
	if c.P < 2 {
		return fmt.Errorf("params: P must be >= 2, got %d", c.P)
	}
	if c.FracTrain <= 0 || c.FracTrain >= 1 {
		return fmt.Errorf("params: FracTrain %v not in (0,1)", c.FracTrain)
	}
	if c.NumHeads <= 0 || c.DModel%c.NumHeads != 0 {
		return fmt.Errorf("params: DModel %d not divisible by NumHeads %d", c.DModel, c.NumHeads)
	}
	if c.DMLP <= 0 || c.NumLayers <= 0 || c.NCtx <= 0 {
		return fmt.Errorf("params: DMLP, NumLayers and NCtx must be positive (got %d, %d, %d)",
			c.DMLP, c.NumLayers, c.NCtx)
	}
	if c.ActType != "ReLU" && c.ActType != "GeLU" {
		return fmt.Errorf("params: unknown ActType %q (want ReLU or GeLU)", c.ActType)
	}
	if c.SaveEvery <= 0 || c.SnapshotEvery <= 0 {
		return fmt.Errorf("params: SaveEvery and SnapshotEvery must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("params: Workers must be >= 1, got %d", c.Workers)
	}
	return nil
}

var Config = TrainingConfig{
	P:         113,
	FracTrain: 0.3,
	Seed:      0,
	InitSeed:  0,

	DModel:    128,
	NumHeads:  4,
	DMLP:      4 * 128,
	NumLayers: 1,
	NCtx:      3,
	ActType:   "ReLU",
	UseLN:     false,

	LR:          1e-3,
	WeightDecay: 1.0,
	Beta1:       0.9,
	Beta2:       0.98,
	AdamEps:     1e-8,
	WarmupSteps: 10,

	NumEpochs:      50000,
	SaveModels:     true,
	SaveEvery:      100,
	SnapshotEvery:  100,
	StoppingThresh: -1,
	Workers:        1,

	RunRoot: ".",
	DBPath:  "runs.sqlite3",
}
