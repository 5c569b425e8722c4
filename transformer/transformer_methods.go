package transformer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/optimizations"
	"github.com/manningwu07/grokking/params"
	"github.com/manningwu07/grokking/utils"
)

// Transformer is the grokking model: token and position embeddings, a stack
// of attention+MLP blocks on a plain residual stream, an optional final
// LayerNorm and an unembedding. Activations are (dModel x T) column-major
// in sequence position.
type Transformer struct {
	Cfg params.TrainingConfig

	WE      *mat.Dense // (dModel x vocab)
	WPos    *mat.Dense // (dModel x nCtx)
	Blocks  []TransformerBlock
	LnFinal *optimizations.LayerNorm // nil unless Cfg.UseLN
	WU      *mat.Dense               // (dModel x vocab)

	HookEmbed    *HookPoint
	HookPosEmbed *HookPoint

	// cache
	tokens []int
	final  *mat.Dense // input to the unembedding
}

type TransformerBlock struct {
	Attn *Attention
	Mlp  *MLP

	HookResidPre  *HookPoint
	HookAttnOut   *HookPoint
	HookResidMid  *HookPoint
	HookMlpOut    *HookPoint
	HookResidPost *HookPoint
}

// New builds a model with weights drawn from N(0, 1/dModel) (the
// unembedding uses 1/vocab).
func New(cfg params.TrainingConfig, src rand.Source) (*Transformer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, vocab, dHead := cfg.DModel, cfg.DVocab(), cfg.DHead()
	fd := float64(d)
	g := &Transformer{
		Cfg:          cfg,
		WE:           utils.RandomDense(d, vocab, fd, src),
		WPos:         utils.RandomDense(d, cfg.NCtx, fd, src),
		Blocks:       make([]TransformerBlock, cfg.NumLayers),
		HookEmbed:    newHookPoint("hook_embed"),
		HookPosEmbed: newHookPoint("hook_pos_embed"),
	}
	for i := range g.Blocks {
		pre := fmt.Sprintf("blocks.%d.", i)
		attn := &Attention{
			H:           cfg.NumHeads,
			DModel:      d,
			DHead:       dHead,
			Wquery:      make([]*mat.Dense, cfg.NumHeads),
			Wkey:        make([]*mat.Dense, cfg.NumHeads),
			Wvalue:      make([]*mat.Dense, cfg.NumHeads),
			HookPattern: newHookPoint(pre + "attn.hook_pattern"),
			HookZ:       newHookPoint(pre + "attn.hook_z"),
			Q:           make([]*mat.Dense, cfg.NumHeads),
			K:           make([]*mat.Dense, cfg.NumHeads),
			V:           make([]*mat.Dense, cfg.NumHeads),
			A:           make([]*mat.Dense, cfg.NumHeads),
			maskCache:   make(map[int]*mat.Dense),
		}
		for h := 0; h < cfg.NumHeads; h++ {
			attn.Wquery[h] = utils.RandomDense(dHead, d, fd, src)
			attn.Wkey[h] = utils.RandomDense(dHead, d, fd, src)
			attn.Wvalue[h] = utils.RandomDense(dHead, d, fd, src)
		}
		attn.Woutput = utils.RandomDense(d, cfg.NumHeads*dHead, fd, src)

		mlp := &MLP{
			Inputs:        d,
			Hiddens:       cfg.DMLP,
			HiddenWeights: utils.RandomDense(cfg.DMLP, d, fd, src),
			HiddenBias:    mat.NewDense(cfg.DMLP, 1, nil),
			OutputWeights: utils.RandomDense(d, cfg.DMLP, fd, src),
			OutputBias:    mat.NewDense(d, 1, nil),
			ActType:       cfg.ActType,
			HookPre:       newHookPoint(pre + "mlp.hook_pre"),
			HookPost:      newHookPoint(pre + "mlp.hook_post"),
		}
		g.Blocks[i] = TransformerBlock{
			Attn:          attn,
			Mlp:           mlp,
			HookResidPre:  newHookPoint(pre + "hook_resid_pre"),
			HookAttnOut:   newHookPoint(pre + "hook_attn_out"),
			HookResidMid:  newHookPoint(pre + "hook_resid_mid"),
			HookMlpOut:    newHookPoint(pre + "hook_mlp_out"),
			HookResidPost: newHookPoint(pre + "hook_resid_post"),
		}
	}
	if cfg.UseLN {
		g.LnFinal = optimizations.NewLayerNorm(d, 1e-5)
	}
	g.WU = utils.RandomDense(d, vocab, float64(vocab), src)
	return g, nil
}

// Block forward/backward with residuals.
func (b *TransformerBlock) Forward(X *mat.Dense) *mat.Dense {
	residPre := b.HookResidPre.Forward(X)
	attnOut := b.HookAttnOut.Forward(b.Attn.Forward(residPre))
	residMid := b.HookResidMid.Forward(utils.ToDense(utils.Add(residPre, attnOut)))
	mlpOut := b.HookMlpOut.Forward(b.Mlp.Forward(residMid))
	return b.HookResidPost.Forward(utils.ToDense(utils.Add(residMid, mlpOut)))
}

// BackwardGradsOnly adds this block's weight grads into grads under
// prefix and returns dX.
func (b *TransformerBlock) BackwardGradsOnly(grad *mat.Dense, grads Gradients, prefix string) *mat.Dense {
	grad = b.HookResidPost.Backward(grad)

	dMlpOut := b.HookMlpOut.Backward(grad)
	dMid, dWhid, dbHid, dWout, dbOut := b.Mlp.BackwardGradsOnly(dMlpOut)
	grads.accumulate(prefix+"mlp.W_in", dWhid)
	grads.accumulate(prefix+"mlp.b_in", dbHid)
	grads.accumulate(prefix+"mlp.W_out", dWout)
	grads.accumulate(prefix+"mlp.b_out", dbOut)
	dResidMid := b.HookResidMid.Backward(utils.ToDense(utils.Add(grad, dMid)))

	dAttnOut := b.HookAttnOut.Backward(dResidMid)
	dPre, dWq, dWk, dWv, dWo := b.Attn.BackwardGradsOnly(dAttnOut)
	for h := range dWq {
		grads.accumulate(fmt.Sprintf("%sattn.W_Q.%d", prefix, h), dWq[h])
		grads.accumulate(fmt.Sprintf("%sattn.W_K.%d", prefix, h), dWk[h])
		grads.accumulate(fmt.Sprintf("%sattn.W_V.%d", prefix, h), dWv[h])
	}
	grads.accumulate(prefix+"attn.W_O", dWo)
	return b.HookResidPre.Backward(utils.ToDense(utils.Add(dResidMid, dPre)))
}

// ForwardSeq runs one token sequence and returns its (vocab x T) logits.
// Tokens must be in [0, vocab) and the sequence no longer than nCtx.
func (g *Transformer) ForwardSeq(tokens []int) *mat.Dense {
	d, vocab := g.WE.Dims()
	_, nCtx := g.WPos.Dims()
	T := len(tokens)
	if T == 0 || T > nCtx {
		panic(fmt.Sprintf("transformer: sequence length %d not in [1,%d]", T, nCtx))
	}
	embed := mat.NewDense(d, T, nil)
	for t, tok := range tokens {
		if tok < 0 || tok >= vocab {
			panic(fmt.Sprintf("transformer: token %d outside vocab of %d", tok, vocab))
		}
		embed.SetCol(t, mat.Col(nil, tok, g.WE))
	}
	embed = g.HookEmbed.Forward(embed)
	pos := g.HookPosEmbed.Forward(mat.DenseCopyOf(g.WPos.Slice(0, d, 0, T)))

	x := utils.ToDense(utils.Add(embed, pos))
	for i := range g.Blocks {
		x = g.Blocks[i].Forward(x)
	}
	if g.LnFinal != nil {
		x = g.LnFinal.Forward(x)
	}
	g.tokens = tokens
	g.final = x
	return utils.ToDense(utils.Dot(g.WU.T(), x))
}

// Forward runs every sequence in the batch.
func (g *Transformer) Forward(batch [][]int) []*mat.Dense {
	out := make([]*mat.Dense, len(batch))
	for i, seq := range batch {
		out[i] = g.ForwardSeq(seq)
	}
	return out
}

// BackwardGradsOnly returns the grads of every parameter for the last
// ForwardSeq, given dLogits (vocab x T).
func (g *Transformer) BackwardGradsOnly(dLogits *mat.Dense) Gradients {
	grads := make(Gradients)
	g.backwardInto(dLogits, grads)
	return grads
}

func (g *Transformer) backwardInto(dLogits *mat.Dense, grads Gradients) {
	// logits = WU^T x
	grads.accumulate("unembed.W_U", utils.Dot(g.final, dLogits.T()))
	dx := utils.ToDense(utils.Dot(g.WU, dLogits))
	if g.LnFinal != nil {
		var dGamma, dBeta *mat.Dense
		dx, dGamma, dBeta = g.LnFinal.BackwardGradsOnly(dx)
		grads.accumulate("ln_final.w", dGamma)
		grads.accumulate("ln_final.b", dBeta)
	}
	for i := len(g.Blocks) - 1; i >= 0; i-- {
		dx = g.Blocks[i].BackwardGradsOnly(dx, grads, fmt.Sprintf("blocks.%d.", i))
	}

	dEmbed := g.HookEmbed.Backward(dx)
	dPos := g.HookPosEmbed.Backward(dx)
	dWE := grads.get("embed.W_E", g.WE)
	dWPos := grads.get("pos_embed.W_pos", g.WPos)
	d, _ := g.WE.Dims()
	for t, tok := range g.tokens {
		for i := 0; i < d; i++ {
			dWE.Set(i, tok, dWE.At(i, tok)+dEmbed.At(i, t))
			dWPos.Set(i, t, dWPos.At(i, t)+dPos.At(i, t))
		}
	}
}

// Parameters names every trainable matrix. The matrices are the model's
// own, so writes through the map update the model.
func (g *Transformer) Parameters() map[string]*mat.Dense {
	ps := map[string]*mat.Dense{
		"embed.W_E":       g.WE,
		"pos_embed.W_pos": g.WPos,
		"unembed.W_U":     g.WU,
	}
	for i := range g.Blocks {
		b := &g.Blocks[i]
		pre := fmt.Sprintf("blocks.%d.", i)
		for h := 0; h < b.Attn.H; h++ {
			ps[fmt.Sprintf("%sattn.W_Q.%d", pre, h)] = b.Attn.Wquery[h]
			ps[fmt.Sprintf("%sattn.W_K.%d", pre, h)] = b.Attn.Wkey[h]
			ps[fmt.Sprintf("%sattn.W_V.%d", pre, h)] = b.Attn.Wvalue[h]
		}
		ps[pre+"attn.W_O"] = b.Attn.Woutput
		ps[pre+"mlp.W_in"] = b.Mlp.HiddenWeights
		ps[pre+"mlp.b_in"] = b.Mlp.HiddenBias
		ps[pre+"mlp.W_out"] = b.Mlp.OutputWeights
		ps[pre+"mlp.b_out"] = b.Mlp.OutputBias
	}
	if g.LnFinal != nil {
		ps["ln_final.w"] = g.LnFinal.Gamma
		ps["ln_final.b"] = g.LnFinal.Beta
	}
	return ps
}

// Gradients maps parameter names to their gradients.
type Gradients map[string]*mat.Dense

// Add sums o into g.
func (g Gradients) Add(o Gradients) {
	for name, m := range o {
		g.accumulate(name, m)
	}
}

func (g Gradients) Scale(s float64) {
	for _, m := range g {
		m.Scale(s, m)
	}
}

func (g Gradients) accumulate(name string, m mat.Matrix) {
	if cur, ok := g[name]; ok {
		cur.Add(cur, m)
		return
	}
	g[name] = mat.DenseCopyOf(m)
}

// get returns the named grad, allocating zeros shaped like param.
func (g Gradients) get(name string, param *mat.Dense) *mat.Dense {
	if cur, ok := g[name]; ok {
		return cur
	}
	cur := utils.ZerosLike(param)
	g[name] = cur
	return cur
}
