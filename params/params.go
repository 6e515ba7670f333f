// Package params holds the parameter sets exchanged between the coordinator
// and clients every round, and the weighted averaging primitive FedAvg is
// built on. Arrays are opaque to everything above this package: shapes are
// used only to check compatibility, never interpreted.
package params

import (
	"fmt"
	"math"

	"github.com/absmach/fedsim/pkg/errors"
)

// Array is one named tensor in a parameter set. Name is optional; position
// within Parameters is what identifies an array during aggregation.
type Array struct {
	Name  string    `json:"name,omitempty" cbor:"1,keyasint,omitempty"`
	Shape []int     `json:"shape"          cbor:"2,keyasint"`
	Data  []float64 `json:"data"           cbor:"3,keyasint"`
}

// Parameters is an ordered sequence of arrays, the unit of exchange for a
// whole model.
type Parameters []Array

// Weighted pairs a parameter set with its aggregation weight, normally a
// client's local sample count for the round.
type Weighted struct {
	Params Parameters
	Weight float64
}

func (a Array) numel() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}

	return n
}

// Clone returns a deep copy. Callers that hand parameters to concurrently
// running clients clone first so no client can alias the global model.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for i, a := range p {
		out[i] = Array{
			Name:  a.Name,
			Shape: append([]int(nil), a.Shape...),
			Data:  append([]float64(nil), a.Data...),
		}
	}

	return out
}

// Compatible reports whether two parameter sets have the same number of
// arrays with pairwise equal shapes.
func Compatible(a, b Parameters) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i].Shape) != len(b[i].Shape) {
			return false
		}
		for j := range a[i].Shape {
			if a[i].Shape[j] != b[i].Shape[j] {
				return false
			}
		}
		if len(a[i].Data) != len(b[i].Data) {
			return false
		}
	}

	return true
}

// Validate checks that every array's data length matches its shape.
func (p Parameters) Validate() error {
	for i, a := range p {
		if len(a.Data) != a.numel() {
			return fmt.Errorf("array %d (%q): %d elements for shape %v: %w",
				i, a.Name, len(a.Data), a.Shape, errors.ErrInvalidData)
		}
	}

	return nil
}

// WeightedAverage computes the element-wise weighted mean of the given
// parameter sets: out[i] = Σ(w_j · p_j[i]) / Σ(w_j). The result is
// order-independent up to floating-point rounding and compatible with every
// input. It fails with ErrNoResults on empty input, ErrInvalidWeight on a
// non-positive or non-finite weight, and ErrIncompatibleParameters when any
// input disagrees with the first on array count or shapes.
func WeightedAverage(results []Weighted) (Parameters, error) {
	if len(results) == 0 {
		return nil, errors.ErrNoResults
	}

	ref := results[0].Params
	var totalWeight float64
	for i, r := range results {
		if r.Weight <= 0 || math.IsInf(r.Weight, 0) || math.IsNaN(r.Weight) {
			return nil, fmt.Errorf("result %d has weight %v: %w", i, r.Weight, errors.ErrInvalidWeight)
		}
		if !Compatible(ref, r.Params) {
			return nil, fmt.Errorf("result %d does not match result 0: %w", i, errors.ErrIncompatibleParameters)
		}
		totalWeight += r.Weight
	}

	out := make(Parameters, len(ref))
	for i, a := range ref {
		out[i] = Array{
			Name:  a.Name,
			Shape: append([]int(nil), a.Shape...),
			Data:  make([]float64, len(a.Data)),
		}
	}

	for _, r := range results {
		for i, a := range r.Params {
			dst := out[i].Data
			for j, v := range a.Data {
				dst[j] += v * r.Weight
			}
		}
	}
	for i := range out {
		for j := range out[i].Data {
			out[i].Data[j] /= totalWeight
		}
	}

	return out, nil
}
