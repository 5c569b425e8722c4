package main

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/manningwu07/grokking/IO"
	"github.com/manningwu07/grokking/data"
	"github.com/manningwu07/grokking/loss"
	"github.com/manningwu07/grokking/training"
)

// ChatCLI answers "x y" prompts with a checkpoint's prediction.
func ChatCLI(path string) error {
	ck, err := IO.LoadCheckpoint(path)
	if err != nil {
		return err
	}
	model, err := training.ResumeModel(ck)
	if err != nil {
		return err
	}
	p := ck.Config.P
	fn, err := data.Lookup(p, uint64(ck.Config.Seed), ck.FnName)
	if err != nil {
		return err
	}
	tok := IO.NewPromptTokenizer(p)

	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("%s mod %d. Type \"x y\" or 'exit' to quit.\n", ck.FnName, p)
	for {
		fmt.Print("You: ")
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "exit" || (err != nil && input == "") {
			return nil
		}
		ids, encErr := tok.Encode(input)
		if encErr != nil {
			fmt.Println(encErr)
			continue
		}
		logits := model.ForwardSeq(ids)
		vocab, T := logits.Dims()
		col := make([]float64, vocab)
		for i := range col {
			col[i] = logits.At(i, T-1)
		}
		lp := loss.LogSoftmax64(col)
		best := 0
		for i := range lp {
			if lp[i] > lp[best] {
				best = i
			}
		}
		want := fn(ids[0], ids[1])
		fmt.Printf("Bot: %s (p=%.3f)  true: %d  loss: %.4g\n",
			tok.Decode(best), math.Exp(lp[best]), want, -lp[want])
	}
}
