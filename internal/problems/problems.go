// Package problems provides update operators for fixed-point iteration.
//
// Each operator implements accel.Problem. Spec is the serialisable
// description used by the CLI, the HTTP API and stored run records.
package problems

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/convaccel/internal/accel"
	"github.com/cwbudde/convaccel/internal/array"
)

// Affine is the elementwise map x -> Slope*x + Offset.
// It contracts to Offset/(1-Slope) when |Slope| < 1.
type Affine struct {
	Slope, Offset float64
}

// Update implements accel.Problem.
func (a Affine) Update(x *array.Array) (*array.Array, error) {
	return x.Scale(a.Slope).AddScaled(a.Offset, array.Full(1, x.Shape()...)), nil
}

// FixedPoint returns Offset/(1-Slope), or NaN when Slope is 1.
func (a Affine) FixedPoint() float64 {
	if a.Slope == 1 {
		return math.NaN()
	}
	return a.Offset / (1 - a.Slope)
}

// Cosine is the elementwise map x -> cos(x). Its fixed point is the
// Dottie number 0.739085...
type Cosine struct{}

// DottieNumber is the unique real solution of cos(x) = x.
const DottieNumber = 0.7390851332151607

// Update implements accel.Problem.
func (Cosine) Update(x *array.Array) (*array.Array, error) {
	out := x.Clone()
	for i, v := range x.Data() {
		out.Data()[i] = math.Cos(v)
	}
	return out, nil
}

// MeanField is one self-consistency sweep of the mean-field Ising model on
// a periodic lattice of any dimension:
//
//	m_i <- tanh(Beta*(Coupling*Σ_{j~i} m_j + Field))
//
// where j runs over the 2·d nearest neighbours of site i.
type MeanField struct {
	Beta, Coupling, Field float64
}

// Update implements accel.Problem.
func (m MeanField) Update(x *array.Array) (*array.Array, error) {
	shape := x.Shape()
	strides := make([]int, len(shape))
	stride := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = stride
		stride *= shape[d]
	}

	in := x.Data()
	out := x.Clone()
	dst := out.Data()
	for i := range in {
		var sum float64
		for d, n := range shape {
			if n == 1 {
				continue
			}
			coord := (i / strides[d]) % n
			up := i + strides[d]
			if coord == n-1 {
				up -= n * strides[d]
			}
			down := i - strides[d]
			if coord == 0 {
				down += n * strides[d]
			}
			sum += in[up] + in[down]
		}
		dst[i] = math.Tanh(m.Beta * (m.Coupling*sum + m.Field))
	}
	return out, nil
}

// Problem names accepted by Spec.
const (
	NameAffine    = "affine"
	NameCosine    = "cosine"
	NameMeanField = "meanfield"
)

// Spec describes a problem instance and its starting point.
type Spec struct {
	// Name selects the operator: affine, cosine or meanfield
	Name string `json:"name"`

	// Size is the length of each array dimension
	Size int `json:"size"`

	// Dims is the number of array dimensions (default 1)
	Dims int `json:"dims,omitempty"`

	// Affine parameters
	Slope  float64 `json:"slope,omitempty"`
	Offset float64 `json:"offset,omitempty"`

	// MeanField parameters
	Beta     float64 `json:"beta,omitempty"`
	Coupling float64 `json:"coupling,omitempty"`
	Field    float64 `json:"field,omitempty"`

	// Initial is the value every element of the first guess starts at
	Initial float64 `json:"initial"`
}

// DefaultSpec returns the affine contraction x -> 0.5x + 3 on one element.
func DefaultSpec() Spec {
	return Spec{Name: NameAffine, Size: 1, Dims: 1, Slope: 0.5, Offset: 3}
}

var builders = map[string]func(Spec) accel.Problem{
	NameAffine:    func(s Spec) accel.Problem { return Affine{Slope: s.Slope, Offset: s.Offset} },
	NameCosine:    func(Spec) accel.Problem { return Cosine{} },
	NameMeanField: func(s Spec) accel.Problem { return MeanField{Beta: s.Beta, Coupling: s.Coupling, Field: s.Field} },
}

// Names returns the registered problem names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MaxElements caps the total number of elements, Size^Dims, of a problem's
// iterates. Each iterate is held depth times by DIIS, so this is far below
// array.MaxElements.
const MaxElements = 1 << 22

// Validate checks that the spec names a known problem with a usable shape.
func (s Spec) Validate() error {
	if _, ok := builders[s.Name]; !ok {
		return fmt.Errorf("unknown problem %q (available: %v)", s.Name, Names())
	}
	if s.Size < 1 {
		return fmt.Errorf("problem size must be positive, got %d", s.Size)
	}
	if s.Dims < 0 || s.Dims > 4 {
		return fmt.Errorf("problem dims must be between 1 and 4, got %d", s.Dims)
	}
	n := 1
	for _, d := range s.Shape() {
		if n > MaxElements/d {
			return fmt.Errorf("problem shape %v exceeds %d elements", s.Shape(), MaxElements)
		}
		n *= d
	}
	for _, v := range []float64{s.Slope, s.Offset, s.Beta, s.Coupling, s.Field, s.Initial} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("problem parameters must be finite")
		}
	}
	return nil
}

// Shape returns the array shape of the problem's iterates.
func (s Spec) Shape() []int {
	dims := s.Dims
	if dims == 0 {
		dims = 1
	}
	shape := make([]int, dims)
	for i := range shape {
		shape[i] = s.Size
	}
	return shape
}

// Build validates the spec and returns its operator.
func (s Spec) Build() (accel.Problem, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return builders[s.Name](s), nil
}

// InitialGuess returns the first iterate.
func (s Spec) InitialGuess() *array.Array {
	return array.Full(s.Initial, s.Shape()...)
}

// Description returns a short human-readable summary.
func (s Spec) Description() string {
	switch s.Name {
	case NameAffine:
		return fmt.Sprintf("affine x -> %gx + %g on %v", s.Slope, s.Offset, s.Shape())
	case NameCosine:
		return fmt.Sprintf("cosine x -> cos(x) on %v", s.Shape())
	case NameMeanField:
		return fmt.Sprintf("mean-field Ising beta=%g J=%g h=%g on %v", s.Beta, s.Coupling, s.Field, s.Shape())
	}
	return s.Name
}
