// Package array provides the dense N-dimensional float64 container that
// iterates and residuals are stored in.
//
// Storage is a flat row-major slice with an immutable shape. Arithmetic is
// delegated to gonum's floats package and always allocates a fresh result,
// so an array handed out by one accelerator step is never aliased by the next.
package array

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrShape is returned when a shape is invalid or does not match the data.
var ErrShape = errors.New("array: invalid shape")

// MaxElements is the largest number of elements a single array may hold.
const MaxElements = 1 << 28

// Array is a dense N-dimensional array of float64 values.
type Array struct {
	shape []int
	data  []float64
}

// Zeros creates an array of the given shape filled with zeros.
func Zeros(shape ...int) *Array {
	n, err := elements(shape)
	if err != nil {
		panic(err)
	}
	return &Array{shape: cloneInts(shape), data: make([]float64, n)}
}

// Full creates an array of the given shape with every element set to v.
func Full(v float64, shape ...int) *Array {
	a := Zeros(shape...)
	for i := range a.data {
		a.data[i] = v
	}
	return a
}

// Scalar creates a one-element array of shape [1].
func Scalar(v float64) *Array {
	return &Array{shape: []int{1}, data: []float64{v}}
}

// FromSlice copies data into a new array with the given shape.
// If no shape is given the array is one-dimensional.
func FromSlice(data []float64, shape ...int) (*Array, error) {
	if len(shape) == 0 {
		shape = []int{len(data)}
	}
	n, err := elements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d elements for shape %v", ErrShape, len(data), shape)
	}
	return &Array{shape: cloneInts(shape), data: append([]float64(nil), data...)}, nil
}

func elements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrShape)
	}
	n := 1
	for _, d := range shape {
		if d < 1 {
			return 0, fmt.Errorf("%w: dimension %d in %v", ErrShape, d, shape)
		}
		if n > MaxElements/d {
			return 0, fmt.Errorf("%w: %v exceeds %d elements", ErrShape, shape, MaxElements)
		}
		n *= d
	}
	return n, nil
}

// Shape returns a copy of the array's dimensions.
func (a *Array) Shape() []int { return cloneInts(a.shape) }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.data) }

// Data returns the underlying row-major storage. Callers must not modify it.
func (a *Array) Data() []float64 { return a.data }

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{shape: cloneInts(a.shape), data: append([]float64(nil), a.data...)}
}

// SameShape reports whether a and b have identical dimensions.
func (a *Array) SameShape(b *Array) bool {
	if a == nil || b == nil || len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}

// At returns the element at the given multi-index.
func (a *Array) At(idx ...int) float64 {
	return a.data[a.offset(idx)]
}

// Set stores v at the given multi-index.
func (a *Array) Set(v float64, idx ...int) {
	a.data[a.offset(idx)] = v
}

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("array: %d indices for %d dimensions", len(idx), len(a.shape)))
	}
	off := 0
	for i, d := range a.shape {
		if idx[i] < 0 || idx[i] >= d {
			panic(fmt.Sprintf("array: index %d out of range [0,%d)", idx[i], d))
		}
		off = off*d + idx[i]
	}
	return off
}

func (a *Array) mustMatch(b *Array) {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("array: shape mismatch %v vs %v", a.shape, b.Shape()))
	}
}

// Scale returns alpha*a.
func (a *Array) Scale(alpha float64) *Array {
	out := &Array{shape: cloneInts(a.shape), data: make([]float64, len(a.data))}
	floats.ScaleTo(out.data, alpha, a.data)
	return out
}

// Add returns a+b.
func (a *Array) Add(b *Array) *Array {
	a.mustMatch(b)
	out := &Array{shape: cloneInts(a.shape), data: make([]float64, len(a.data))}
	floats.AddTo(out.data, a.data, b.data)
	return out
}

// Sub returns a-b.
func (a *Array) Sub(b *Array) *Array {
	a.mustMatch(b)
	out := &Array{shape: cloneInts(a.shape), data: make([]float64, len(a.data))}
	floats.SubTo(out.data, a.data, b.data)
	return out
}

// AddScaled returns a + alpha*b.
func (a *Array) AddScaled(alpha float64, b *Array) *Array {
	a.mustMatch(b)
	out := &Array{shape: cloneInts(a.shape), data: make([]float64, len(a.data))}
	floats.AddScaledTo(out.data, a.data, alpha, b.data)
	return out
}

// Mix returns eta*a + (1-eta)*b.
func (a *Array) Mix(eta float64, b *Array) *Array {
	a.mustMatch(b)
	out := b.Scale(1 - eta)
	floats.AddScaled(out.data, eta, a.data)
	return out
}

// Dot returns the inner product of the flattened arrays.
func (a *Array) Dot(b *Array) float64 {
	a.mustMatch(b)
	return floats.Dot(a.data, b.data)
}

// Sum returns the sum of all elements.
func (a *Array) Sum() float64 {
	return floats.Sum(a.data)
}

// MaxAbsDiff returns max_i |a_i - b_i|.
func (a *Array) MaxAbsDiff(b *Array) float64 {
	a.mustMatch(b)
	return floats.Distance(a.data, b.data, math.Inf(1))
}

// Equal reports whether a and b have the same shape and identical elements.
func (a *Array) Equal(b *Array) bool {
	return a.SameShape(b) && floats.Equal(a.data, b.data)
}

// IsFinite reports whether every element is neither NaN nor infinite.
func (a *Array) IsFinite() bool {
	for _, v := range a.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (a *Array) String() string {
	return fmt.Sprintf("array%v%v", a.shape, a.data)
}

type arrayJSON struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// MarshalJSON encodes the array as {"shape":[...],"data":[...]}.
func (a *Array) MarshalJSON() ([]byte, error) {
	return json.Marshal(arrayJSON{Shape: a.shape, Data: a.data})
}

// UnmarshalJSON decodes the format produced by MarshalJSON and validates it.
func (a *Array) UnmarshalJSON(b []byte) error {
	var raw arrayJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	decoded, err := FromSlice(raw.Data, raw.Shape...)
	if err != nil {
		return err
	}
	*a = *decoded
	return nil
}

func cloneInts(s []int) []int {
	return append([]int(nil), s...)
}
