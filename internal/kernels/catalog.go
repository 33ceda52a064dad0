package kernels

import (
	"strings"

	"github.com/fxnlabs/fuzzyhsa/fixtures"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Param is one kernel parameter.
type Param struct {
	Name string
	Type string
}

// Kernel is a HIP kernel the manager can compile.
type Kernel struct {
	Name   string
	Source string
	Params []Param
	// Reference computes the kernel's output on the host for two input
	// vectors. Nil for kernels registered from configuration.
	Reference func(a, b []float64) []float64
}

var vectorParams = []Param{
	{Name: "a", Type: "const float*"},
	{Name: "b", Type: "const float*"},
	{Name: "c", Type: "float*"},
	{Name: "N", Type: "int"},
}

// Builtin returns the kernels every manager starts with.
func Builtin() []Kernel {
	return []Kernel{
		{
			Name:   "vector_add",
			Source: fixtures.VectorAddSource,
			Params: vectorParams,
			Reference: func(a, b []float64) []float64 {
				return floats.AddTo(make([]float64, len(a)), a, b)
			},
		},
		{
			Name:   "vector_mul",
			Source: fixtures.VectorMulSource,
			Params: vectorParams,
			Reference: func(a, b []float64) []float64 {
				return floats.MulTo(make([]float64, len(a)), a, b)
			},
		},
	}
}

type scalar struct {
	size, align uint32
}

var scalars = map[string]scalar{
	"bool":     {1, 1},
	"char":     {1, 1},
	"int8_t":   {1, 1},
	"uint8_t":  {1, 1},
	"short":    {2, 2},
	"half":     {2, 2},
	"int16_t":  {2, 2},
	"uint16_t": {2, 2},
	"int":      {4, 4},
	"unsigned": {4, 4},
	"float":    {4, 4},
	"int32_t":  {4, 4},
	"uint32_t": {4, 4},
	"long":     {8, 8},
	"double":   {8, 8},
	"size_t":   {8, 8},
	"int64_t":  {8, 8},
	"uint64_t": {8, 8},
}

// KernargLayout returns the size and alignment of the explicit kernel
// argument block for params, laid out in order with natural alignment.
func KernargLayout(params []Param) (size, align uint32, err error) {
	align = 1
	for _, p := range params {
		t := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p.Type), "const "))
		s, ok := scalars[t]
		if strings.HasSuffix(t, "*") {
			s, ok = scalar{8, 8}, true
		}
		if !ok {
			return 0, 0, errors.Errorf("kernels: parameter %s: unsupported type %q", p.Name, p.Type)
		}
		size = (size+s.align-1)/s.align*s.align + s.size
		if s.align > align {
			align = s.align
		}
	}
	return size, align, nil
}
