package transformer

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/loss"
)

// CloneForGradsOnly creates a shallow clone of the model where all weights
// are shared (read-only) but per-module caches are private, so clones can
// run ForwardSeq/BackwardGradsOnly concurrently. Clones carry no hooks.
func (g *Transformer) CloneForGradsOnly() *Transformer {
	out := &Transformer{
		Cfg:    g.Cfg,
		WE:     g.WE,
		WPos:   g.WPos,
		WU:     g.WU,
		Blocks: make([]TransformerBlock, len(g.Blocks)),
	}
	for i := range g.Blocks {
		out.Blocks[i] = TransformerBlock{
			Attn: cloneAttentionForGrads(g.Blocks[i].Attn),
			Mlp:  cloneMLPForGrads(g.Blocks[i].Mlp),
		}
	}
	if g.LnFinal != nil {
		out.LnFinal = g.LnFinal.CloneForGrads()
	}
	return out
}

// BatchGrads returns the mean cross entropy of the final-position logits
// over batch and the matching mean gradients. With workers > 1 the batch is
// split into contiguous chunks, one clone per chunk; partial results are
// reduced in chunk order so the sum does not depend on scheduling.
func (g *Transformer) BatchGrads(batch [][]int, labels []int, workers int) (float64, Gradients, error) {
	if len(batch) == 0 || len(batch) != len(labels) {
		return 0, nil, fmt.Errorf("transformer: BatchGrads: %d sequences, %d labels", len(batch), len(labels))
	}
	vocab := g.Cfg.DVocab()
	for i, l := range labels {
		if l < 0 || l >= vocab {
			return 0, nil, fmt.Errorf("transformer: BatchGrads: label %d at %d outside vocab of %d", l, i, vocab)
		}
	}
	if workers > len(batch) {
		workers = len(batch)
	}
	if workers <= 1 {
		l, grads := g.chunkGrads(batch, labels, len(batch))
		return l, grads, nil
	}

	losses := make([]float64, workers)
	parts := make([]Gradients, workers)
	chunk := (len(batch) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(batch))
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			losses[w], parts[w] = g.CloneForGradsOnly().chunkGrads(batch[lo:hi], labels[lo:hi], len(batch))
		}(w, lo, hi)
	}
	wg.Wait()

	total := 0.0
	grads := make(Gradients)
	for w := range parts {
		if parts[w] == nil {
			continue
		}
		total += losses[w]
		grads.Add(parts[w])
	}
	return total, grads, nil
}

// chunkGrads returns the chunk's share of the batch-mean loss and grads.
func (g *Transformer) chunkGrads(batch [][]int, labels []int, batchSize int) (float64, Gradients) {
	grads := make(Gradients)
	total := 0.0
	for i, seq := range batch {
		logits := g.ForwardSeq(seq)
		vocab, T := logits.Dims()
		l, dLast := loss.CrossEntropyGrad(mat.DenseCopyOf(logits.Slice(0, vocab, T-1, T)), labels[i], batchSize)
		dLogits := mat.NewDense(vocab, T, nil)
		dLogits.SetCol(T-1, dLast.RawMatrix().Data)
		g.backwardInto(dLogits, grads)
		total += l / float64(batchSize)
	}
	return total, grads
}
