package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DebugEnv is the environment variable enabling diagnostic output. Only the
// exact value "1" turns it on.
const DebugEnv = "DEBUG"

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		Encoding  string `yaml:"encoding"`
	} `yaml:"logger"`
	Runtime struct {
		// Backend is one of auto, native or sim.
		Backend   string `yaml:"backend"`
		QueueSize uint32 `yaml:"queueSize"`
	} `yaml:"runtime"`
	Loader struct {
		// SearchDir is the fallback root; code objects are looked up under
		// <searchDir>/<agent name>/ when the direct path cannot be opened.
		SearchDir string `yaml:"searchDir"`
	} `yaml:"loader"`
	Kernels struct {
		CacheDir    string `yaml:"cacheDir"`
		Compiler    string `yaml:"compiler"`
		OffloadArch string `yaml:"offloadArch"`
		Sources     string `yaml:"sources"`
	} `yaml:"kernels"`
	Simulator struct {
		TopologyRoot string      `yaml:"topologyRoot"`
		Devices      []SimDevice `yaml:"devices"`
	} `yaml:"simulator"`

	Debug bool `yaml:"-"`
}

// SimDevice describes an agent of the simulated runtime.
type SimDevice struct {
	Name  string    `yaml:"name"`
	Type  string    `yaml:"type"`
	Pools []SimPool `yaml:"pools"`
}

type SimPool struct {
	Segment string `yaml:"segment"`
	Size    uint64 `yaml:"size"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Logger.Verbosity == "" {
		c.Logger.Verbosity = "info"
	}
	if c.Runtime.Backend == "" {
		c.Runtime.Backend = "auto"
	}
	if c.Runtime.QueueSize == 0 {
		c.Runtime.QueueSize = 256
	}
	if c.Loader.SearchDir == "" {
		c.Loader.SearchDir = "."
	}
	if c.Kernels.Compiler == "" {
		c.Kernels.Compiler = "auto"
	}
	c.Debug = os.Getenv(DebugEnv) == "1"
}

func (c *Config) Validate() error {
	switch c.Logger.Encoding {
	case "", "json", "console":
	default:
		return fmt.Errorf("logger.encoding: unknown encoding %q", c.Logger.Encoding)
	}
	switch c.Runtime.Backend {
	case "auto", "native", "sim":
	default:
		return fmt.Errorf("runtime.backend: unknown backend %q", c.Runtime.Backend)
	}
	if q := c.Runtime.QueueSize; q&(q-1) != 0 {
		return fmt.Errorf("runtime.queueSize: %d is not a power of two", q)
	}
	switch c.Kernels.Compiler {
	case "auto", "hipcc", "manifest":
	default:
		return fmt.Errorf("kernels.compiler: unknown compiler %q", c.Kernels.Compiler)
	}
	for i, d := range c.Simulator.Devices {
		if d.Type != "cpu" && d.Type != "gpu" {
			return fmt.Errorf("simulator.devices[%d]: unknown type %q", i, d.Type)
		}
		for j, p := range d.Pools {
			switch p.Segment {
			case "global", "readonly", "private", "group":
			default:
				return fmt.Errorf("simulator.devices[%d].pools[%d]: unknown segment %q", i, j, p.Segment)
			}
		}
	}
	return nil
}
