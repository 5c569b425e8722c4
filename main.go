package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/manningwu07/grokking/IO"
	"github.com/manningwu07/grokking/data"
	"github.com/manningwu07/grokking/params"
	"github.com/manningwu07/grokking/training"
)

func main() {
	cfg := params.Config

	train := flag.Bool("train", false, "train a model on -fn")
	analysePath := flag.String("analyse", "", "checkpoint to analyse")
	cliPath := flag.String("cli", "", "checkpoint to query interactively")
	runsOnly := flag.Bool("runs", false, "list runs recorded in -db")
	fnName := flag.String("fn", "add", "target function: add, subtract, mult, div, x2xyy2, rand")
	topK := flag.Int("topk", 10, "rows of each Fourier table")
	flag.IntVar(&cfg.NumEpochs, "epochs", cfg.NumEpochs, "training epochs")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "gradient workers")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "data split seed")
	flag.Uint64Var(&cfg.InitSeed, "init-seed", cfg.InitSeed, "weight init seed")
	flag.Float64Var(&cfg.FracTrain, "frac", cfg.FracTrain, "fraction of inputs used for training")
	flag.Float64Var(&cfg.StoppingThresh, "stop", cfg.StoppingThresh, "stop when test loss drops below this")
	flag.BoolVar(&cfg.SaveModels, "save", cfg.SaveModels, "write periodic checkpoints")
	flag.BoolVar(&cfg.UseLN, "ln", cfg.UseLN, "final LayerNorm before the unembedding")
	flag.StringVar(&cfg.ActType, "act", cfg.ActType, "MLP activation: ReLU or GeLU")
	flag.StringVar(&cfg.RunRoot, "root", cfg.RunRoot, "directory for run folders")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite run store (empty disables)")
	flag.Parse()

	var err error
	switch {
	case *train:
		err = runTrain(cfg, *fnName)
	case *analysePath != "":
		err = analyse(os.Stdout, *analysePath, *topK)
	case *cliPath != "":
		err = ChatCLI(*cliPath)
	case *runsOnly:
		err = listRuns(cfg.DBPath)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runTrain(cfg params.TrainingConfig, fnName string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	fn, err := data.Lookup(cfg.P, uint64(cfg.Seed), fnName)
	if err != nil {
		return err
	}
	split, err := data.GenTrainTest(cfg.FracTrain, cfg.P, cfg.Seed)
	if err != nil {
		return err
	}
	split = data.SplitFor(fnName, split)
	fmt.Printf("Train samples: %d  Test samples: %d\n", len(split.Train), len(split.Test))

	var store training.RunLogger
	if cfg.DBPath != "" {
		s, err := IO.OpenRunStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	t1 := time.Now()
	res, err := training.RunTraining(ctx, cfg, fnName, fn, split.Train, split.Test, nil, store)
	if err != nil {
		return err
	}
	if res.Interrupted {
		fmt.Printf("Interrupted after epoch %d\n", res.FinalEpoch)
	}
	fmt.Printf("Time taken to train: %s\n", time.Since(t1))
	renderRun(os.Stdout, res)
	return nil
}

func listRuns(dbPath string) error {
	s, err := IO.OpenRunStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()
	runs, err := s.Runs(context.Background())
	if err != nil {
		return err
	}
	renderRuns(os.Stdout, runs)
	return nil
}
