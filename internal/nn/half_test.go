package nn

import (
	"math/rand"
	"testing"
)

func TestToHalfCastsWithoutTouchingSource(t *testing.T) {
	m := NewLSTM(4, 8, 6, rand.New(rand.NewSource(2)))
	full := m.Snapshot()
	half := full.ToHalf()
	if full.DType() != F32 || half.DType() != F16 {
		t.Fatalf("dtypes %q %q", full.DType(), half.DType())
	}
	changed := false
	for i, tn := range half.Tensors {
		for j, v := range tn.Data {
			if RoundHalf(v) != v {
				t.Fatalf("%s[%d]=%v not binary16", tn.Name, j, v)
			}
			if full.Tensors[i].Data[j] != v {
				changed = true
			}
		}
	}
	if !changed {
		t.Fatal("expected rounding to alter at least one weight")
	}
	if !full.Equal(m.Snapshot()) {
		t.Fatal("ToHalf mutated the full checkpoint")
	}
}

func TestHalfBitsRoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1, -2.5, 100, 0.0001, 65504} {
		h := RoundHalf(v)
		if FromHalfBits(HalfBits(h)) != h {
			t.Fatalf("bits round trip failed for %v", v)
		}
	}
	if RoundHalf(1.0001) != 1 {
		t.Fatalf("1.0001 should round to 1 in binary16, got %v", RoundHalf(1.0001))
	}
}

func TestHalfInputsCopies(t *testing.T) {
	in := [][]float32{{1.0001, 2}}
	out := HalfInputs(in)
	if in[0][0] != 1.0001 || out[0][0] != 1 {
		t.Fatalf("in=%v out=%v", in, out)
	}
}
