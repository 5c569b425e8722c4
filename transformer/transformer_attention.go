package transformer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/utils"
)

// Attention is causal multi-head attention without biases. Heads are
// concatenated row-wise before the output projection.
type Attention struct {
	H       int
	DModel  int
	DHead   int
	Wquery  []*mat.Dense // (dHead x dModel) per head
	Wkey    []*mat.Dense
	Wvalue  []*mat.Dense
	Woutput *mat.Dense // (dModel x H*dHead)

	// hook_pattern sees the H attention patterns stacked as (H*T x T);
	// hook_z sees the concatenated head outputs (H*dHead x T).
	HookPattern *HookPoint
	HookZ       *HookPoint

	// cache for backprop
	X       *mat.Dense
	Q, K, V []*mat.Dense
	A       []*mat.Dense
	OCat    *mat.Dense

	maskCache map[int]*mat.Dense
}

func (attn *Attention) Forward(X *mat.Dense) *mat.Dense {
	attn.X = X
	_, T := X.Dims()
	rescale := 1.0 / math.Sqrt(float64(attn.DHead))
	mask, ok := attn.maskCache[T]
	if !ok {
		mask = utils.CausalMask(T)
		attn.maskCache[T] = mask
	}

	for h := 0; h < attn.H; h++ {
		attn.Q[h] = utils.ToDense(utils.Dot(attn.Wquery[h], X))
		attn.K[h] = utils.ToDense(utils.Dot(attn.Wkey[h], X))
		attn.V[h] = utils.ToDense(utils.Dot(attn.Wvalue[h], X))
		// S = (Q^T K)/sqrt(dHead), row = query position
		scores := utils.ToDense(utils.Scale(rescale, utils.Dot(attn.Q[h].T(), attn.K[h])))
		attn.A[h] = utils.RowSoftmaxMaskedInPlace(mat.NewDense(T, T, nil), scores, mask)
	}
	if attn.HookPattern != nil && len(attn.HookPattern.fwd) > 0 {
		attn.unstackPattern(attn.HookPattern.Forward(attn.stackPattern()))
	}

	headsCat := mat.NewDense(attn.H*attn.DHead, T, nil)
	for h := 0; h < attn.H; h++ {
		// O = V * A^T
		base := h * attn.DHead
		dst := headsCat.Slice(base, base+attn.DHead, 0, T).(*mat.Dense)
		dst.Mul(attn.V[h], attn.A[h].T())
	}
	attn.OCat = attn.HookZ.Forward(headsCat)
	return utils.ToDense(utils.Dot(attn.Woutput, attn.OCat))
}

// BackwardGradsOnly returns dX and the weight grads; it does not touch the
// weights.
func (attn *Attention) BackwardGradsOnly(dY *mat.Dense) (
	dX *mat.Dense,
	dWq, dWk, dWv []*mat.Dense,
	dWout *mat.Dense,
) {
	dWq = make([]*mat.Dense, attn.H)
	dWk = make([]*mat.Dense, attn.H)
	dWv = make([]*mat.Dense, attn.H)
	_, T := attn.X.Dims()

	// Y = Wout * Ocat
	dWout = utils.ToDense(utils.Dot(dY, attn.OCat.T()))
	dOcat := attn.HookZ.Backward(utils.ToDense(utils.Dot(attn.Woutput.T(), dY)))

	dV := make([]*mat.Dense, attn.H)
	dA := make([]*mat.Dense, attn.H)
	for h := 0; h < attn.H; h++ {
		base := h * attn.DHead
		dO := dOcat.Slice(base, base+attn.DHead, 0, T)
		dV[h] = utils.ToDense(utils.Dot(dO, attn.A[h]))           // (dHead x T)
		dA[h] = mat.DenseCopyOf(utils.Dot(attn.V[h].T(), dO).T()) // (T x T)
	}
	if attn.HookPattern != nil && len(attn.HookPattern.bwd) > 0 {
		stacked := mat.NewDense(attn.H*T, T, nil)
		for h := 0; h < attn.H; h++ {
			stacked.Slice(h*T, (h+1)*T, 0, T).(*mat.Dense).Copy(dA[h])
		}
		stacked = attn.HookPattern.Backward(stacked)
		for h := 0; h < attn.H; h++ {
			dA[h] = mat.DenseCopyOf(stacked.Slice(h*T, (h+1)*T, 0, T))
		}
	}

	dX = mat.NewDense(attn.DModel, T, nil)
	rescale := 1.0 / math.Sqrt(float64(attn.DHead))
	for h := 0; h < attn.H; h++ {
		// A = softmax_row(S)
		dS := utils.SoftmaxBackward(dA[h], attn.A[h])
		// S = Q^T K / sqrt(dHead)
		dQ := utils.ToDense(utils.Scale(rescale, utils.Dot(attn.K[h], dS.T())))
		dK := utils.ToDense(utils.Scale(rescale, utils.Dot(attn.Q[h], dS)))

		dWq[h] = utils.ToDense(utils.Dot(dQ, attn.X.T()))
		dWk[h] = utils.ToDense(utils.Dot(dK, attn.X.T()))
		dWv[h] = utils.ToDense(utils.Dot(dV[h], attn.X.T()))

		dX.Add(dX, utils.Dot(attn.Wquery[h].T(), dQ))
		dX.Add(dX, utils.Dot(attn.Wkey[h].T(), dK))
		dX.Add(dX, utils.Dot(attn.Wvalue[h].T(), dV[h]))
	}
	return dX, dWq, dWk, dWv, dWout
}

func (attn *Attention) stackPattern() *mat.Dense {
	T, _ := attn.A[0].Dims()
	out := mat.NewDense(attn.H*T, T, nil)
	for h := 0; h < attn.H; h++ {
		out.Slice(h*T, (h+1)*T, 0, T).(*mat.Dense).Copy(attn.A[h])
	}
	return out
}

func (attn *Attention) unstackPattern(stacked *mat.Dense) {
	T, _ := attn.A[0].Dims()
	for h := 0; h < attn.H; h++ {
		attn.A[h] = mat.DenseCopyOf(stacked.Slice(h*T, (h+1)*T, 0, T))
	}
}

func cloneAttentionForGrads(src *Attention) *Attention {
	return &Attention{
		H:         src.H,
		DModel:    src.DModel,
		DHead:     src.DHead,
		Wquery:    src.Wquery, // shared read-only
		Wkey:      src.Wkey,
		Wvalue:    src.Wvalue,
		Woutput:   src.Woutput,
		Q:         make([]*mat.Dense, src.H),
		K:         make([]*mat.Dense, src.H),
		V:         make([]*mat.Dense, src.H),
		A:         make([]*mat.Dense, src.H),
		maskCache: make(map[int]*mat.Dense),
	}
}
