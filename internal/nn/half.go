package nn

import "github.com/x448/float16"

// Precision selects the arithmetic a model runs inference with.
type Precision int

const (
	Full Precision = iota // float32
	Half                  // IEEE-754 binary16, round-to-nearest-even
)

func (p Precision) String() string {
	if p == Half {
		return "fp16"
	}
	return "fp32"
}

// DType is the storage type matching p.
func (p Precision) DType() DType {
	if p == Half {
		return F16
	}
	return F32
}

// RoundHalf rounds v to the nearest binary16 value.
func RoundHalf(v float32) float32 { return float16.Fromfloat32(v).Float32() }

// HalfBits is the binary16 encoding of v.
func HalfBits(v float32) uint16 { return float16.Fromfloat32(v).Bits() }

// FromHalfBits decodes a binary16 value.
func FromHalfBits(b uint16) float32 { return float16.Frombits(b).Float32() }

// ToHalf casts every tensor to float16. The result is independent of c.
func (c Checkpoint) ToHalf() Checkpoint {
	out := c.Clone()
	for i := range out.Tensors {
		t := &out.Tensors[i]
		t.DType = F16
		for j, v := range t.Data {
			t.Data[j] = RoundHalf(v)
		}
	}
	return out
}

// HalfInputs rounds a batch of inputs to binary16, leaving the originals untouched.
func HalfInputs(batch [][]float32) [][]float32 {
	out := make([][]float32, len(batch))
	for i, x := range batch {
		h := make([]float32, len(x))
		for j, v := range x {
			h[j] = RoundHalf(v)
		}
		out[i] = h
	}
	return out
}

func quantizer(p Precision) func(float32) float32 {
	if p == Half {
		return RoundHalf
	}
	return func(v float32) float32 { return v }
}
