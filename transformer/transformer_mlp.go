package transformer

import (
	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/utils"
)

type MLP struct {
	Inputs, Hiddens           int
	HiddenWeights, HiddenBias *mat.Dense // W_in (h x d), b_in (h x 1)
	OutputWeights, OutputBias *mat.Dense // W_out (d x h), b_out (d x 1)
	ActType                   string     // "ReLU" or "GeLU"

	HookPre  *HookPoint
	HookPost *HookPoint

	// cache for backprop
	lastInput, hiddenPreAct, hiddenOutputs *mat.Dense
}

func (mlp *MLP) Forward(X *mat.Dense) *mat.Dense {
	mlp.lastInput = X
	hiddenLin := utils.ToDense(utils.Dot(mlp.HiddenWeights, X)) // (h x T)
	mlp.hiddenPreAct = mlp.HookPre.Forward(utils.AddBias(hiddenLin, mlp.HiddenBias))
	mlp.hiddenOutputs = mlp.HookPost.Forward(utils.ToDense(utils.Apply(mlp.act(), mlp.hiddenPreAct)))
	finalLin := utils.ToDense(utils.Dot(mlp.OutputWeights, mlp.hiddenOutputs)) // (d x T)
	return utils.AddBias(finalLin, mlp.OutputBias)
}

func (mlp *MLP) BackwardGradsOnly(grad *mat.Dense) (dX, dWhid, dbHidden, dWout, dbOut *mat.Dense) {
	dWout = utils.ToDense(utils.Dot(grad, mlp.hiddenOutputs.T()))
	dbOut = utils.SumCols(grad)

	hiddenGradOut := mlp.HookPost.Backward(utils.ToDense(utils.Dot(mlp.OutputWeights.T(), grad)))
	hiddenErrors := mlp.HookPre.Backward(utils.ToDense(utils.Multiply(hiddenGradOut, mlp.actPrime(mlp.hiddenPreAct))))

	dWhid = utils.ToDense(utils.Dot(hiddenErrors, mlp.lastInput.T()))
	dbHidden = utils.SumCols(hiddenErrors)
	dX = utils.ToDense(utils.Dot(mlp.HiddenWeights.T(), hiddenErrors))
	return dX, dWhid, dbHidden, dWout, dbOut
}

func (mlp *MLP) act() func(i, j int, v float64) float64 {
	if mlp.ActType == "GeLU" {
		return utils.GeluApply
	}
	return utils.ReluApply
}

func (mlp *MLP) actPrime(m mat.Matrix) *mat.Dense {
	if mlp.ActType == "GeLU" {
		return utils.GeluPrime(m)
	}
	return utils.ReluPrime(m)
}

func cloneMLPForGrads(src *MLP) *MLP {
	return &MLP{
		Inputs:        src.Inputs,
		Hiddens:       src.Hiddens,
		HiddenWeights: src.HiddenWeights, // shared read-only
		HiddenBias:    src.HiddenBias,
		OutputWeights: src.OutputWeights,
		OutputBias:    src.OutputBias,
		ActType:       src.ActType,
	}
}
