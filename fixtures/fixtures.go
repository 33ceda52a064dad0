package fixtures

import (
	_ "embed"
)

//go:embed config/config.yaml.template
var ConfigTemplate []byte

//go:embed kernels/vector_add.hip
var VectorAddSource string

//go:embed kernels/vector_mul.hip
var VectorMulSource string
