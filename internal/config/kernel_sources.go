package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// KernelSourcesConfig registers HIP kernels beyond the built-in catalog.
type KernelSourcesConfig struct {
	Kernels map[string]KernelSource `yaml:"kernels"`
}

type KernelSource struct {
	// Source is the path of the HIP file, relative to the config file.
	Source string `yaml:"source"`
	// Params lists the kernel parameter types in order, e.g. "float*", "int".
	Params []string `yaml:"params"`
}

func LoadKernelSourcesConfig(path string) (*KernelSourcesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config KernelSourcesConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	for name, k := range config.Kernels {
		if k.Source == "" {
			return nil, fmt.Errorf("kernel %q: missing source", name)
		}
		if !filepath.IsAbs(k.Source) {
			k.Source = filepath.Join(dir, k.Source)
			config.Kernels[name] = k
		}
	}
	return &config, nil
}

// ReadSource returns the HIP source of kernel name.
func (c *KernelSourcesConfig) ReadSource(name string) (string, error) {
	k, ok := c.Kernels[name]
	if !ok {
		return "", fmt.Errorf("kernel not found in kernel sources config: %s", name)
	}
	data, err := os.ReadFile(k.Source)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
