package transformer

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// HookFn sees an activation (forward) or its gradient (backward) at a named
// point. A non-nil return value replaces what flows on.
type HookFn func(act *mat.Dense, name string) *mat.Dense

// HookPoint is an identity point in the graph that hooks can attach to.
// A nil *HookPoint is a plain identity, which is what grad-only clones use.
type HookPoint struct {
	Name string
	fwd  []HookFn
	bwd  []HookFn
}

func newHookPoint(name string) *HookPoint { return &HookPoint{Name: name} }

func (hp *HookPoint) AddHook(fn HookFn, dir string) error {
	switch dir {
	case "fwd":
		hp.fwd = append(hp.fwd, fn)
	case "bwd":
		hp.bwd = append(hp.bwd, fn)
	default:
		return fmt.Errorf("transformer: invalid hook direction %q", dir)
	}
	return nil
}

// RemoveHooks drops the hooks of one direction, or both.
func (hp *HookPoint) RemoveHooks(dir string) error {
	switch dir {
	case "fwd":
		hp.fwd = nil
	case "bwd":
		hp.bwd = nil
	case "both":
		hp.fwd, hp.bwd = nil, nil
	default:
		return fmt.Errorf("transformer: invalid hook direction %q", dir)
	}
	return nil
}

func (hp *HookPoint) Forward(x *mat.Dense) *mat.Dense {
	if hp == nil {
		return x
	}
	return run(hp.fwd, x, hp.Name)
}

func (hp *HookPoint) Backward(g *mat.Dense) *mat.Dense {
	if hp == nil {
		return g
	}
	return run(hp.bwd, g, hp.Name)
}

func run(hooks []HookFn, x *mat.Dense, name string) *mat.Dense {
	for _, h := range hooks {
		if out := h(x, name); out != nil {
			x = out
		}
	}
	return x
}

// HookPoints lists every hook point of the model by name.
func (g *Transformer) HookPoints() map[string]*HookPoint {
	out := map[string]*HookPoint{
		g.HookEmbed.Name:    g.HookEmbed,
		g.HookPosEmbed.Name: g.HookPosEmbed,
	}
	for i := range g.Blocks {
		b := &g.Blocks[i]
		for _, hp := range []*HookPoint{
			b.HookResidPre, b.Attn.HookPattern, b.Attn.HookZ, b.HookAttnOut,
			b.HookResidMid, b.Mlp.HookPre, b.Mlp.HookPost, b.HookMlpOut, b.HookResidPost,
		} {
			out[hp.Name] = hp
		}
	}
	return out
}

// HookNames is HookPoints' keys in sorted order.
func (g *Transformer) HookNames() []string {
	names := make([]string, 0)
	for n := range g.HookPoints() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (g *Transformer) Hook(name string) (*HookPoint, error) {
	hp, ok := g.HookPoints()[name]
	if !ok {
		return nil, fmt.Errorf("transformer: no hook point %q", name)
	}
	return hp, nil
}

func (g *Transformer) RemoveAllHooks(dir string) error {
	for _, hp := range g.HookPoints() {
		if err := hp.RemoveHooks(dir); err != nil {
			return err
		}
	}
	return nil
}

// CacheAll stores a copy of every activation into cache under its hook
// name on each forward pass, and of every gradient under name+"_grad" on
// each backward pass when inclBwd is set.
func (g *Transformer) CacheAll(cache map[string]*mat.Dense, inclBwd bool) error {
	for _, hp := range g.HookPoints() {
		if err := hp.AddHook(func(act *mat.Dense, name string) *mat.Dense {
			cache[name] = mat.DenseCopyOf(act)
			return nil
		}, "fwd"); err != nil {
			return err
		}
		if inclBwd {
			if err := hp.AddHook(func(grad *mat.Dense, name string) *mat.Dense {
				cache[name+"_grad"] = mat.DenseCopyOf(grad)
				return nil
			}, "bwd"); err != nil {
				return err
			}
		}
	}
	return nil
}
