// Package training runs full-batch AdamW training of the grokking model and
// keeps its checkpoints and loss history.
package training

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/manningwu07/grokking/IO"
	"github.com/manningwu07/grokking/data"
	"github.com/manningwu07/grokking/loss"
	"github.com/manningwu07/grokking/optimizations"
	"github.com/manningwu07/grokking/params"
	"github.com/manningwu07/grokking/transformer"
)

// RunLogger receives the run and its losses. *IO.RunStore implements it.
type RunLogger interface {
	StartRun(ctx context.Context, name, fnName string, cfg params.TrainingConfig) (int64, error)
	LogLosses(ctx context.Context, runID int64, rows []IO.LossRow) error
	FinishRun(ctx context.Context, runID int64, finalEpoch int, trainLoss, testLoss float64) error
}

type Result struct {
	RunName     string
	RunDir      string
	FinalEpoch  int
	TrainLosses []float64
	TestLosses  []float64
	Epochs      []int // snapshot epochs
	Interrupted bool  // ctx was cancelled before NumEpochs
	Model       *transformer.Transformer
}

// RunTraining trains model (a fresh one from cfg.InitSeed when nil) on
// train with full-batch gradients, scoring test every epoch. Both losses
// are taken before the epoch's optimizer step. store may be nil.
func RunTraining(
	ctx context.Context,
	cfg params.TrainingConfig,
	fnName string,
	fn data.TargetFunc,
	train, test []data.Sample,
	model *transformer.Transformer,
	store RunLogger,
) (*Result, error) {
	if cfg.NumEpochs < 1 {
		return nil, fmt.Errorf("training: NumEpochs must be >= 1, got %d", cfg.NumEpochs)
	}
	if len(train) == 0 || len(test) == 0 {
		return nil, fmt.Errorf("training: empty split (%d train, %d test)", len(train), len(test))
	}
	if model == nil {
		var err error
		model, err = transformer.New(cfg, rand.NewPCG(cfg.InitSeed, 0))
		if err != nil {
			return nil, err
		}
	}

	opt := optimizations.NewAdamW(cfg)
	runName := fmt.Sprintf("grok_%d", time.Now().Unix())
	runDir := filepath.Join(cfg.RunRoot, runName)
	fmt.Printf("Run name %s\n", runName)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("training: create run dir: %w", err)
	}
	if cfg.SaveModels {
		initCk := &IO.Checkpoint{
			FnName: fnName,
			Config: cfg,
			Params: IO.SnapshotParams(model.Parameters()),
			Train:  train,
			Test:   test,
		}
		if err := IO.SaveCheckpoint(IO.CheckpointPath(runDir, fnName, "init"), initCk); err != nil {
			return nil, err
		}
	}

	var runID int64
	if store != nil {
		id, err := store.StartRun(ctx, runName, fnName, cfg)
		if err != nil {
			return nil, err
		}
		runID = id
	}

	trainBatch := data.Batch(train)
	trainLabels := data.Labels(fn, train)
	res := &Result{RunName: runName, RunDir: runDir, Model: model}
	var snapshots []map[string]IO.Matrix
	var pending []IO.LossRow
	flush := func() error {
		if store == nil {
			return nil
		}
		// a cancelled ctx must not lose the tail of the history
		err := store.LogLosses(context.WithoutCancel(ctx), runID, pending)
		pending = pending[:0]
		return err
	}

	var trainLoss, testLoss float64
	epoch := 0
	for ; epoch < cfg.NumEpochs; epoch++ {
		var grads transformer.Gradients
		var err error
		trainLoss, grads, err = model.BatchGrads(trainBatch, trainLabels, cfg.Workers)
		if err != nil {
			return nil, err
		}
		testLoss, err = loss.FullLoss(fn, model, test)
		if err != nil {
			return nil, err
		}
		res.TrainLosses = append(res.TrainLosses, trainLoss)
		res.TestLosses = append(res.TestLosses, testLoss)
		if store != nil {
			pending = append(pending, IO.LossRow{Epoch: epoch, TrainLoss: trainLoss, TestLoss: testLoss})
		}

		if epoch%cfg.SnapshotEvery == 0 {
			res.Epochs = append(res.Epochs, epoch)
			snapshots = append(snapshots, IO.SnapshotParams(model.Parameters()))
			fmt.Printf("\r%d_%.4f_%.4f", epoch, math.Log(trainLoss), math.Log(testLoss))
			if err := flush(); err != nil {
				return nil, err
			}
		}

		lr := optimizations.LinearWarmup(epoch, cfg.WarmupSteps, cfg.LR)
		if err := opt.Step(model.Parameters(), grads, lr); err != nil {
			return nil, err
		}
		if testLoss < cfg.StoppingThresh {
			break
		}
		if cfg.SaveModels && epoch%cfg.SaveEvery == 0 {
			ck := &IO.Checkpoint{
				FnName:    fnName,
				Epoch:     epoch,
				Config:    cfg,
				Params:    IO.SnapshotParams(model.Parameters()),
				Optimizer: adamState(opt),
				TrainLoss: trainLoss,
				TestLoss:  testLoss,
			}
			if err := IO.SaveCheckpoint(IO.CheckpointPath(runDir, fnName, fmt.Sprint(epoch)), ck); err != nil {
				return nil, err
			}
		}
		if ctx.Err() != nil {
			res.Interrupted = epoch+1 < cfg.NumEpochs
			break
		}
	}
	if epoch == cfg.NumEpochs {
		epoch--
	}
	fmt.Println()
	res.FinalEpoch = epoch

	final := &IO.Checkpoint{
		FnName:      fnName,
		Epoch:       epoch,
		Config:      cfg,
		Params:      IO.SnapshotParams(model.Parameters()),
		Optimizer:   adamState(opt),
		TrainLoss:   trainLoss,
		TestLoss:    testLoss,
		TrainLosses: res.TrainLosses,
		TestLosses:  res.TestLosses,
	}
	finalPath := IO.CheckpointPath(runDir, fnName, "final")
	if err := IO.SaveCheckpoint(finalPath, final); err != nil {
		return nil, err
	}
	fmt.Printf("Saved final model to %s\n", finalPath)

	full := &IO.FullRun{
		FnName:      fnName,
		Config:      cfg,
		TrainLosses: res.TrainLosses,
		TestLosses:  res.TestLosses,
		Epochs:      res.Epochs,
		Snapshots:   snapshots,
		Params:      final.Params,
	}
	if err := IO.SaveFullRun(IO.CheckpointPath(runDir, fnName, "full-run"), full); err != nil {
		return nil, err
	}
	if err := IO.WriteLossCSV(filepath.Join(runDir, fnName+"-losses.csv"), res.TrainLosses, res.TestLosses); err != nil {
		return nil, err
	}
	if store != nil {
		if err := flush(); err != nil {
			return nil, err
		}
		if err := store.FinishRun(context.WithoutCancel(ctx), runID, epoch, trainLoss, testLoss); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func adamState(opt *optimizations.AdamW) *IO.AdamState {
	return &IO.AdamState{T: opt.T, M: IO.SnapshotParams(opt.M), V: IO.SnapshotParams(opt.V)}
}

// ResumeModel rebuilds a model from a checkpoint's config and params.
func ResumeModel(ck *IO.Checkpoint) (*transformer.Transformer, error) {
	model, err := transformer.New(ck.Config, rand.NewPCG(ck.Config.InitSeed, 0))
	if err != nil {
		return nil, err
	}
	if err := IO.RestoreParams(model.Parameters(), ck.Params); err != nil {
		return nil, err
	}
	return model, nil
}
