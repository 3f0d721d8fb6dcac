package nn

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

// Parameter names, one LSTM layer followed by a linear head.
const (
	WeightIH = "lstm.weight_ih_l0"
	WeightHH = "lstm.weight_hh_l0"
	BiasIH   = "lstm.bias_ih_l0"
	BiasHH   = "lstm.bias_hh_l0"
	FCWeight = "fc.weight"
	FCBias   = "fc.bias"
)

// LSTM classifies a sequence from the final hidden state of a single LSTM
// layer. Gates are stacked i, f, g, o along the first weight dimension.
type LSTM struct {
	input, hidden, classes int

	wih, whh, bih, bhh *Param
	fcw, fcb           *Param

	precision Precision
}

// NewLSTM builds a classifier with weights drawn uniformly from ±1/sqrt(hidden).
func NewLSTM(input, hidden, classes int, rng *rand.Rand) *LSTM {
	m := newLSTM(input, hidden, classes)
	k := 1 / math.Sqrt(float64(hidden))
	for _, p := range m.Params() {
		for i := range p.Data {
			p.Data[i] = float32((rng.Float64()*2 - 1) * k)
		}
	}
	return m
}

func newLSTM(input, hidden, classes int) *LSTM {
	if input <= 0 || hidden <= 0 || classes <= 0 {
		panic(fmt.Sprintf("nn: invalid LSTM shape input=%d hidden=%d classes=%d", input, hidden, classes))
	}
	g := 4 * hidden
	return &LSTM{
		input: input, hidden: hidden, classes: classes,
		wih: newParam(WeightIH, g, input),
		whh: newParam(WeightHH, g, hidden),
		bih: newParam(BiasIH, g),
		bhh: newParam(BiasHH, g),
		fcw: newParam(FCWeight, classes, hidden),
		fcb: newParam(FCBias, classes),
	}
}

// NewLSTMFromCheckpoint rebuilds a classifier from a snapshot, inferring the
// shape from its tensors. A float16 checkpoint yields a half-precision model.
func NewLSTMFromCheckpoint(c Checkpoint) (*LSTM, error) {
	wih, ok := c.Get(WeightIH)
	if !ok || len(wih.Shape) != 2 {
		return nil, fmt.Errorf("checkpoint has no 2-d %s", WeightIH)
	}
	fcw, ok := c.Get(FCWeight)
	if !ok || len(fcw.Shape) != 2 {
		return nil, fmt.Errorf("checkpoint has no 2-d %s", FCWeight)
	}
	if wih.Shape[0]%4 != 0 || wih.Shape[0]/4 != fcw.Shape[1] {
		return nil, fmt.Errorf("inconsistent shapes %v and %v", wih.Shape, fcw.Shape)
	}
	m := newLSTM(wih.Shape[1], wih.Shape[0]/4, fcw.Shape[0])
	if err := m.Load(c); err != nil {
		return nil, err
	}
	if c.DType() == F16 {
		m.SetPrecision(Half)
	}
	return m, nil
}

func (m *LSTM) Params() []*Param {
	return []*Param{m.wih, m.whh, m.bih, m.bhh, m.fcw, m.fcb}
}

// Input is the per-timestep feature width.
func (m *LSTM) Input() int { return m.input }

// Hidden is the LSTM state width.
func (m *LSTM) Hidden() int { return m.hidden }

// Classes is the number of output logits.
func (m *LSTM) Classes() int { return m.classes }

func (m *LSTM) Precision() Precision { return m.precision }

// SetPrecision switches inference arithmetic. Switching to Half rounds the
// weights to binary16.
func (m *LSTM) SetPrecision(p Precision) {
	m.precision = p
	if p == Half {
		for _, prm := range m.Params() {
			for i, v := range prm.Data {
				prm.Data[i] = RoundHalf(v)
			}
		}
	}
}

func (m *LSTM) Snapshot() Checkpoint {
	c := snapshot(m.Params(), m.precision.DType())
	c.Meta = map[string]string{
		"arch":    "lstm",
		"input":   strconv.Itoa(m.input),
		"hidden":  strconv.Itoa(m.hidden),
		"classes": strconv.Itoa(m.classes),
	}
	return c
}

func (m *LSTM) Load(c Checkpoint) error { return restore(m.Params(), c) }

func (m *LSTM) ZeroGrad() {
	for _, p := range m.Params() {
		clear(p.Grad)
	}
}

func (m *LSTM) Forward(batch [][]float32) [][]float32 {
	out := make([][]float32, len(batch))
	for i, x := range batch {
		out[i] = m.forward(x, nil)
	}
	return out
}

// trace keeps what backpropagation through time needs from a forward pass.
type trace struct {
	gates []float32 // steps × 4H, activated
	c     []float32 // (steps+1) × H, c[0] is the zero state
	h     []float32 // (steps+1) × H
	tc    []float32 // steps × H, tanh(c_t)
}

func (m *LSTM) steps(x []float32) int {
	if len(x)%m.input != 0 {
		panic(fmt.Sprintf("nn: sequence length %d is not a multiple of input width %d", len(x), m.input))
	}
	return len(x) / m.input
}

func sigmoid(v float32) float32 { return float32(1 / (1 + math.Exp(-float64(v)))) }
func tanh32(v float32) float32  { return float32(math.Tanh(float64(v))) }

// forward runs one sequence. When tr is non-nil it is filled for Accumulate.
func (m *LSTM) forward(x []float32, tr *trace) []float32 {
	I, H := m.input, m.hidden
	G := 4 * H
	T := m.steps(x)
	q := quantizer(m.precision)

	var hBuf, cBuf [2][]float32
	var hPrev, cPrev []float32
	if tr == nil {
		hBuf = [2][]float32{make([]float32, H), make([]float32, H)}
		cBuf = [2][]float32{make([]float32, H), make([]float32, H)}
		hPrev, cPrev = hBuf[0], cBuf[0]
	} else {
		tr.gates = make([]float32, T*G)
		tr.c = make([]float32, (T+1)*H)
		tr.h = make([]float32, (T+1)*H)
		tr.tc = make([]float32, T*H)
		hPrev, cPrev = tr.h[:H], tr.c[:H]
	}
	pre := make([]float32, G)
	wih, whh := m.wih.Data, m.whh.Data
	bih, bhh := m.bih.Data, m.bhh.Data

	for t := 0; t < T; t++ {
		xt := x[t*I : (t+1)*I]
		for j := 0; j < G; j++ {
			s := bih[j] + bhh[j]
			row := wih[j*I : (j+1)*I]
			for k, v := range xt {
				s += row[k] * v
			}
			row = whh[j*H : (j+1)*H]
			for k, v := range hPrev {
				s += row[k] * v
			}
			pre[j] = q(s)
		}
		var hNext, cNext, gates, tc []float32
		if tr == nil {
			hNext, cNext = hBuf[(t+1)%2], cBuf[(t+1)%2]
		} else {
			hNext, cNext = tr.h[(t+1)*H:(t+2)*H], tr.c[(t+1)*H:(t+2)*H]
			gates, tc = tr.gates[t*G:(t+1)*G], tr.tc[t*H:(t+1)*H]
		}
		for j := 0; j < H; j++ {
			i := q(sigmoid(pre[j]))
			f := q(sigmoid(pre[H+j]))
			g := q(tanh32(pre[2*H+j]))
			o := q(sigmoid(pre[3*H+j]))
			c := q(f*cPrev[j] + i*g)
			th := q(tanh32(c))
			cNext[j] = c
			hNext[j] = q(o * th)
			if tr != nil {
				gates[j], gates[H+j], gates[2*H+j], gates[3*H+j] = i, f, g, o
				tc[j] = th
			}
		}
		hPrev, cPrev = hNext, cNext
	}

	logits := make([]float32, m.classes)
	fcw, fcb := m.fcw.Data, m.fcb.Data
	for c := range logits {
		s := fcb[c]
		row := fcw[c*H : (c+1)*H]
		for k, v := range hPrev {
			s += row[k] * v
		}
		logits[c] = q(s)
	}
	return logits
}

// Accumulate backpropagates through time from the final hidden state.
func (m *LSTM) Accumulate(x []float32, grad func(logits []float32) []float32) []float32 {
	if m.precision != Full {
		panic("nn: training requires a full-precision model")
	}
	I, H := m.input, m.hidden
	G := 4 * H
	T := m.steps(x)
	var tr trace
	logits := m.forward(x, &tr)
	dlog := grad(logits)

	hT := tr.h[T*H : (T+1)*H]
	dh := make([]float32, H)
	fcw := m.fcw.Data
	for c, d := range dlog {
		if d == 0 {
			continue
		}
		m.fcb.Grad[c] += d
		row := fcw[c*H : (c+1)*H]
		grow := m.fcw.Grad[c*H : (c+1)*H]
		for k := 0; k < H; k++ {
			grow[k] += d * hT[k]
			dh[k] += d * row[k]
		}
	}

	whh := m.whh.Data
	gwih, gwhh := m.wih.Grad, m.whh.Grad
	gbih, gbhh := m.bih.Grad, m.bhh.Grad
	dc := make([]float32, H)
	da := make([]float32, G)
	dhPrev := make([]float32, H)
	for t := T - 1; t >= 0; t-- {
		gates := tr.gates[t*G : (t+1)*G]
		tc := tr.tc[t*H : (t+1)*H]
		cPrev := tr.c[t*H : (t+1)*H]
		hPrev := tr.h[t*H : (t+1)*H]
		xt := x[t*I : (t+1)*I]
		for j := 0; j < H; j++ {
			i, f, g, o := gates[j], gates[H+j], gates[2*H+j], gates[3*H+j]
			th := tc[j]
			do := dh[j] * th
			dcj := dc[j] + dh[j]*o*(1-th*th)
			da[j] = dcj * g * i * (1 - i)
			da[H+j] = dcj * cPrev[j] * f * (1 - f)
			da[2*H+j] = dcj * i * (1 - g*g)
			da[3*H+j] = do * o * (1 - o)
			dc[j] = dcj * f
		}
		clear(dhPrev)
		for r := 0; r < G; r++ {
			a := da[r]
			if a == 0 {
				continue
			}
			gbih[r] += a
			gbhh[r] += a
			grow := gwih[r*I : (r+1)*I]
			for k, v := range xt {
				grow[k] += a * v
			}
			grow = gwhh[r*H : (r+1)*H]
			row := whh[r*H : (r+1)*H]
			for k := 0; k < H; k++ {
				grow[k] += a * hPrev[k]
				dhPrev[k] += a * row[k]
			}
		}
		dh, dhPrev = dhPrev, dh
	}
	return logits
}
