// Package kernels compiles HIP kernels to code objects the loader can open.
package kernels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fxnlabs/fuzzyhsa/internal/config"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/metrics"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrUnknownKernel is returned for names missing from the catalog.
var ErrUnknownKernel = errors.New("kernels: kernel not found")

// CodeObjectExt is the extension of compiled code objects.
const CodeObjectExt = ".hsaco"

// DefaultCacheDir is $HOME/.cache/fuzzyHSA.
func DefaultCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "kernels: resolve home directory")
	}
	return filepath.Join(home, ".cache", "fuzzyHSA"), nil
}

// Manager compiles catalog kernels into a cache directory.
type Manager struct {
	compiler Compiler
	cacheDir string
	log      *zap.Logger

	mu      sync.RWMutex
	catalog map[string]Kernel
}

// NewManager returns a manager holding the built-in kernels. An empty
// cacheDir selects DefaultCacheDir.
func NewManager(compiler Compiler, cacheDir string, log *zap.Logger) (*Manager, error) {
	if cacheDir == "" {
		var err error
		if cacheDir, err = DefaultCacheDir(); err != nil {
			return nil, err
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		compiler: compiler,
		cacheDir: cacheDir,
		log:      log.Named("kernels"),
		catalog:  map[string]Kernel{},
	}
	for _, k := range Builtin() {
		m.catalog[k.Name] = k
	}
	return m, nil
}

func (m *Manager) CacheDir() string {
	return m.cacheDir
}

func (m *Manager) Compiler() Compiler {
	return m.compiler
}

// Register adds or replaces a kernel.
func (m *Manager) Register(k Kernel) error {
	if k.Name == "" || k.Source == "" {
		return errors.New("kernels: kernel needs a name and a source")
	}
	if _, _, err := KernargLayout(k.Params); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog[k.Name] = k
	return nil
}

// RegisterSources adds the kernels listed in a kernel sources file.
func (m *Manager) RegisterSources(cfg *config.KernelSourcesConfig) error {
	names := make([]string, 0, len(cfg.Kernels))
	for name := range cfg.Kernels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		src, err := cfg.ReadSource(name)
		if err != nil {
			return err
		}
		k := Kernel{Name: name, Source: src}
		for i, typ := range cfg.Kernels[name].Params {
			k.Params = append(k.Params, Param{Name: fmt.Sprintf("arg%d", i), Type: typ})
		}
		if err := m.Register(k); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the kernel called name.
func (m *Manager) Lookup(name string) (Kernel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.catalog[name]
	return k, ok
}

// Kernels lists the catalog sorted by name.
func (m *Manager) Kernels() []Kernel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]Kernel, 0, len(m.catalog))
	for _, k := range m.catalog {
		list = append(list, k)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// CodeObjectPath is where the code object of name is written.
func (m *Manager) CodeObjectPath(name string) string {
	return filepath.Join(m.cacheDir, name+CodeObjectExt)
}

// CompileToCodeObject compiles kernel name and returns the code object path.
// An unknown name is an input error wrapping ErrUnknownKernel.
func (m *Manager) CompileToCodeObject(ctx context.Context, name string) (string, error) {
	k, ok := m.Lookup(name)
	if !ok {
		return "", hsa.Fail(hsa.KindInput, "compile_kernel", errors.Wrapf(ErrUnknownKernel, "%q", name))
	}

	if err := os.MkdirAll(m.cacheDir, 0755); err != nil {
		return "", hsa.Fail(hsa.KindEnvironment, "compile_kernel", errors.Wrap(err, "kernels: create cache directory"))
	}
	src, err := os.CreateTemp("", name+"-*.hip")
	if err != nil {
		return "", hsa.Fail(hsa.KindEnvironment, "compile_kernel", errors.Wrap(err, "kernels: create source file"))
	}
	defer os.Remove(src.Name())
	_, err = src.WriteString(k.Source)
	if cerr := src.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", hsa.Fail(hsa.KindEnvironment, "compile_kernel", errors.Wrap(err, "kernels: write source file"))
	}

	out := m.CodeObjectPath(name)
	if err := m.compiler.Compile(ctx, k, src.Name(), out); err != nil {
		metrics.Compilations.WithLabelValues(name, m.compiler.Name(), "error").Inc()
		return "", hsa.Fail(hsa.KindResource, "compile_kernel", err)
	}
	metrics.Compilations.WithLabelValues(name, m.compiler.Name(), "ok").Inc()
	m.log.Info("kernel compiled",
		zap.String("kernel", name),
		zap.String("compiler", m.compiler.Name()),
		zap.String("path", out))
	return out, nil
}
