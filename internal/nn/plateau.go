package nn

import "math"

// RateControl is an optimizer whose learning rate can be adjusted.
type RateControl interface {
	LearningRate() float64
	SetLearningRate(float64)
}

// Plateau lowers the learning rate by Factor once a minimised metric has gone
// more than Patience epochs without a relative improvement of Threshold.
type Plateau struct {
	Factor    float64
	Patience  int
	Threshold float64
	MinLR     float64
	Eps       float64

	best float64
	bad  int
}

func NewPlateau(factor float64, patience int) *Plateau {
	return &Plateau{Factor: factor, Patience: patience, Threshold: 1e-4, Eps: 1e-8, best: math.Inf(1)}
}

// BadEpochs is the current count of epochs without improvement.
func (p *Plateau) BadEpochs() int { return p.bad }

// Step records metric and reports whether the learning rate was reduced.
func (p *Plateau) Step(metric float64, opt RateControl) bool {
	if metric < p.best*(1-p.Threshold) {
		p.best = metric
		p.bad = 0
	} else {
		p.bad++
	}
	if p.bad <= p.Patience {
		return false
	}
	p.bad = 0
	old := opt.LearningRate()
	lr := math.Max(old*p.Factor, p.MinLR)
	if old-lr <= p.Eps {
		return false
	}
	opt.SetLearningRate(lr)
	return true
}
