package nn

import (
	"fmt"
)

// DType is the numeric precision of stored tensor values.
type DType string

const (
	F32 DType = "float32"
	F16 DType = "float16"
)

// Size is the number of bytes one element occupies when persisted.
func (d DType) Size() int {
	if d == F16 {
		return 2
	}
	return 4
}

// Param is a trainable tensor with its gradient accumulator.
type Param struct {
	Name  string
	Shape []int
	Data  []float32
	Grad  []float32
}

func newParam(name string, shape ...int) *Param {
	n := numel(shape)
	return &Param{Name: name, Shape: shape, Data: make([]float32, n), Grad: make([]float32, n)}
}

func numel(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// Tensor is a named, shaped block of values inside a checkpoint.
type Tensor struct {
	Name  string
	Shape []int
	DType DType
	Data  []float32
}

// Checkpoint is an ordered parameter snapshot. A checkpoint never shares
// storage with a live model.
type Checkpoint struct {
	Tensors []Tensor
	Meta    map[string]string
}

// Clone returns a deep copy.
func (c Checkpoint) Clone() Checkpoint {
	out := Checkpoint{Tensors: make([]Tensor, len(c.Tensors))}
	for i, t := range c.Tensors {
		out.Tensors[i] = Tensor{
			Name:  t.Name,
			Shape: append([]int(nil), t.Shape...),
			DType: t.DType,
			Data:  append([]float32(nil), t.Data...),
		}
	}
	if c.Meta != nil {
		out.Meta = make(map[string]string, len(c.Meta))
		for k, v := range c.Meta {
			out.Meta[k] = v
		}
	}
	return out
}

// Get returns the tensor called name.
func (c Checkpoint) Get(name string) (Tensor, bool) {
	for _, t := range c.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return Tensor{}, false
}

// NumParams counts scalar values across all tensors.
func (c Checkpoint) NumParams() int {
	n := 0
	for _, t := range c.Tensors {
		n += len(t.Data)
	}
	return n
}

// DType reports the common precision, or "" for an empty or mixed checkpoint.
func (c Checkpoint) DType() DType {
	var d DType
	for i, t := range c.Tensors {
		if i == 0 {
			d = t.DType
		} else if t.DType != d {
			return ""
		}
	}
	return d
}

// Equal reports whether both checkpoints hold identical names, shapes, types and values.
func (c Checkpoint) Equal(o Checkpoint) bool {
	if len(c.Tensors) != len(o.Tensors) {
		return false
	}
	for i, t := range c.Tensors {
		u := o.Tensors[i]
		if t.Name != u.Name || t.DType != u.DType || !sameShape(t.Shape, u.Shape) || len(t.Data) != len(u.Data) {
			return false
		}
		for j := range t.Data {
			if t.Data[j] != u.Data[j] {
				return false
			}
		}
	}
	return true
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// snapshot copies params into a checkpoint of the given precision.
func snapshot(params []*Param, dtype DType) Checkpoint {
	c := Checkpoint{Tensors: make([]Tensor, len(params))}
	for i, p := range params {
		c.Tensors[i] = Tensor{
			Name:  p.Name,
			Shape: append([]int(nil), p.Shape...),
			DType: dtype,
			Data:  append([]float32(nil), p.Data...),
		}
	}
	return c
}

// restore copies checkpoint values into params, matching by name.
func restore(params []*Param, c Checkpoint) error {
	if len(c.Tensors) != len(params) {
		return fmt.Errorf("checkpoint has %d tensors, model has %d", len(c.Tensors), len(params))
	}
	for _, p := range params {
		t, ok := c.Get(p.Name)
		if !ok {
			return fmt.Errorf("checkpoint missing %s", p.Name)
		}
		if !sameShape(t.Shape, p.Shape) || len(t.Data) != len(p.Data) {
			return fmt.Errorf("%s: shape %v does not match model %v", p.Name, t.Shape, p.Shape)
		}
		copy(p.Data, t.Data)
	}
	return nil
}
