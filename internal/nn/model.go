package nn

// Model is a sequence classifier: a batch of flattened sequences in, one row
// of class logits per sequence out.
type Model interface {
	Forward(batch [][]float32) [][]float32
	Params() []*Param
	Snapshot() Checkpoint
	Load(Checkpoint) error
}

// Trainable is a Model that can backpropagate a loss gradient.
type Trainable interface {
	Model
	// ZeroGrad clears every parameter gradient.
	ZeroGrad()
	// Accumulate runs x forward, asks grad for dLoss/dLogits and adds the
	// resulting parameter gradients to Param.Grad. It returns the logits.
	Accumulate(x []float32, grad func(logits []float32) []float32) []float32
}

// CountParams is the number of trainable scalars in m.
func CountParams(m Model) int {
	n := 0
	for _, p := range m.Params() {
		n += len(p.Data)
	}
	return n
}

// Predict returns the argmax class of every sequence.
func Predict(m Model, batch [][]float32) []int {
	logits := m.Forward(batch)
	out := make([]int, len(logits))
	for i, l := range logits {
		out[i] = Argmax(l)
	}
	return out
}
