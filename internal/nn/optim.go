package nn

import "math"

// AdamW is Adam with decoupled weight decay. Moment estimates are kept per
// parameter name in float64.
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	t int
	m map[string][]float64
	v map[string][]float64
}

func NewAdamW(lr, weightDecay float64) *AdamW {
	return &AdamW{
		LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8, WeightDecay: weightDecay,
		m: make(map[string][]float64),
		v: make(map[string][]float64),
	}
}

func (o *AdamW) LearningRate() float64      { return o.LR }
func (o *AdamW) SetLearningRate(lr float64) { o.LR = lr }

// Steps is the number of updates applied so far.
func (o *AdamW) Steps() int { return o.t }

// Step applies one update from the accumulated gradients.
func (o *AdamW) Step(params []*Param) {
	o.t++
	t := float64(o.t)
	bc1 := 1 - math.Pow(o.Beta1, t)
	bc2 := 1 - math.Pow(o.Beta2, t)
	for _, p := range params {
		m, ok := o.m[p.Name]
		if !ok || len(m) != len(p.Data) {
			m = make([]float64, len(p.Data))
			o.m[p.Name] = m
			o.v[p.Name] = make([]float64, len(p.Data))
		}
		v := o.v[p.Name]
		for i, g32 := range p.Grad {
			g := float64(g32)
			w := float64(p.Data[i]) * (1 - o.LR*o.WeightDecay)
			m[i] = o.Beta1*m[i] + (1-o.Beta1)*g
			v[i] = o.Beta2*v[i] + (1-o.Beta2)*g*g
			mhat := m[i] / bc1
			vhat := v[i] / bc2
			w -= o.LR * mhat / (math.Sqrt(vhat) + o.Eps)
			p.Data[i] = float32(w)
		}
	}
}

// ClipGradNorm rescales all gradients so their global L2 norm is at most
// maxNorm. It returns the norm before clipping.
func ClipGradNorm(params []*Param, maxNorm float64) float64 {
	sq := 0.0
	for _, p := range params {
		for _, g := range p.Grad {
			sq += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sq)
	coef := maxNorm / (norm + 1e-6)
	if coef < 1 {
		for _, p := range params {
			for i := range p.Grad {
				p.Grad[i] = float32(float64(p.Grad[i]) * coef)
			}
		}
	}
	return norm
}
