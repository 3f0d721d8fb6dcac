package nn

import "math"

// Argmax returns the index of the largest value, the first on ties.
func Argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// Softmax computes a numerically stable softmax in float64.
func Softmax(logits []float32) []float64 {
	mx := math.Inf(-1)
	for _, v := range logits {
		mx = math.Max(mx, float64(v))
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		out[i] = math.Exp(float64(v) - mx)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// CrossEntropy is -log softmax(logits)[label].
func CrossEntropy(logits []float32, label int) float64 {
	mx := math.Inf(-1)
	for _, v := range logits {
		mx = math.Max(mx, float64(v))
	}
	sum := 0.0
	for _, v := range logits {
		sum += math.Exp(float64(v) - mx)
	}
	return math.Log(sum) + mx - float64(logits[label])
}

// CrossEntropyGrad is d(CrossEntropy)/d(logits), scaled by scale.
func CrossEntropyGrad(logits []float32, label int, scale float64) []float32 {
	p := Softmax(logits)
	g := make([]float32, len(p))
	for i, v := range p {
		if i == label {
			v -= 1
		}
		g[i] = float32(v * scale)
	}
	return g
}

// MeanCrossEntropy averages the loss over a batch.
func MeanCrossEntropy(logits [][]float32, labels []int) float64 {
	if len(logits) == 0 {
		return 0
	}
	sum := 0.0
	for i, l := range logits {
		sum += CrossEntropy(l, labels[i])
	}
	return sum / float64(len(logits))
}

// Accuracy is the fraction of rows whose argmax equals the label.
func Accuracy(logits [][]float32, labels []int) float64 {
	if len(logits) == 0 {
		return 0
	}
	hit := 0
	for i, l := range logits {
		if Argmax(l) == labels[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(logits))
}
