// Package loader brings a code object from disk into a frozen executable and
// resolves the kernel symbol to dispatch.
//
// The pipeline is strictly ordered:
//
//	Open -> CreateExecutable -> LoadCodeObject -> Freeze -> CloseReader -> Resolve
//
// Each step is a method that refuses to run out of order with
// ErrInvalidState. Load runs the whole pipeline and releases everything it
// acquired when a step fails.
package loader

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fxnlabs/fuzzyhsa/internal/diag"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/metrics"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrInvalidState is returned when a step is called out of order.
var ErrInvalidState = errors.New("loader: step called out of order")

// State is the position of a Loader in the pipeline.
type State int

const (
	Start State = iota
	ReaderOpen
	ExecutableCreated
	SymbolsLoaded
	Frozen
	ReaderClosed
	SymbolResolved
	Done
)

var stateNames = [...]string{"start", "reader-open", "executable-created", "symbols-loaded", "frozen", "reader-closed", "symbol-resolved", "done"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

// Loader runs the pipeline for one code object on one agent. It is not safe
// for concurrent use.
type Loader struct {
	rt        hsa.Runtime
	agent     hsa.Agent
	searchDir string
	report    *diag.Reporter
	log       *zap.Logger

	state   State
	started time.Time
	path    string
	file    *os.File
	reader  hsa.CodeObjectReader
	exe     hsa.Executable
	symbol  hsa.ExecutableSymbol
	kernel  KernelSymbol
}

// Option configures a Loader.
type Option func(*Loader)

// WithSearchDir sets the root of the per-agent fallback directories.
func WithSearchDir(dir string) Option {
	return func(l *Loader) {
		l.searchDir = dir
	}
}

// WithReporter enables the diagnostic report of the resolved kernel.
func WithReporter(r *diag.Reporter) Option {
	return func(l *Loader) {
		l.report = r
	}
}

// WithLogger sets the loader logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		l.log = log
	}
}

// New returns a loader for agent. The runtime must be initialized.
func New(rt hsa.Runtime, agent hsa.Agent, opts ...Option) *Loader {
	l := &Loader{rt: rt, agent: agent, searchDir: ".", log: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.Named("loader")
	return l
}

// State returns the current pipeline position.
func (l *Loader) State() State {
	return l.state
}

// Path returns the file the code object was read from, once opened.
func (l *Loader) Path() string {
	return l.path
}

func (l *Loader) expect(s State, step string) error {
	if l.state != s {
		return errors.Wrapf(ErrInvalidState, "%s needs state %s, loader is in %s", step, s, l.state)
	}
	return nil
}

// Open opens path, or <searchDir>/<agent name>/<path> when path cannot be
// opened, and creates a code-object reader over it. The file stays open until
// CloseReader.
func (l *Loader) Open(path string) error {
	if err := l.expect(Start, "open"); err != nil {
		return err
	}
	l.started = time.Now()

	f, err := os.Open(path)
	if err != nil {
		name, nameErr := l.rt.AgentName(l.agent)
		if nameErr != nil {
			return hsa.Fail(hsa.KindEnvironment, "hsa_agent_get_info", nameErr)
		}
		fallback := filepath.Join(l.searchDir, name, path)
		l.log.Debug("code object not found, trying agent directory",
			zap.String("path", path), zap.String("fallback", fallback))
		var fallbackErr error
		if f, fallbackErr = os.Open(fallback); fallbackErr != nil {
			return hsa.Failf(hsa.KindResource, "open", "failed to open %s: %v (fallback %s: %v)", path, err, fallback, fallbackErr)
		}
		path = fallback
	}

	reader, err := l.rt.CodeObjectReaderCreateFromFile(f)
	if err != nil {
		f.Close()
		return hsa.Fail(hsa.KindResource, "hsa_code_object_reader_create_from_file", err)
	}
	l.path, l.file, l.reader = path, f, reader
	l.state = ReaderOpen
	return nil
}

// CreateExecutable creates an empty full-profile executable with the default
// rounding mode.
func (l *Loader) CreateExecutable() error {
	if err := l.expect(ReaderOpen, "create executable"); err != nil {
		return err
	}
	exe, err := l.rt.ExecutableCreate(hsa.ProfileFull, hsa.FloatRoundingModeDefault)
	if err != nil {
		return hsa.Fail(hsa.KindEnvironment, "hsa_executable_create_alt", err)
	}
	l.exe = exe
	l.state = ExecutableCreated
	return nil
}

// LoadCodeObject loads the reader's code object into the executable for the agent.
func (l *Loader) LoadCodeObject() error {
	if err := l.expect(ExecutableCreated, "load code object"); err != nil {
		return err
	}
	if err := l.rt.ExecutableLoadAgentCodeObject(l.exe, l.agent, l.reader); err != nil {
		return hsa.Fail(hsa.KindResource, "hsa_executable_load_agent_code_object", err)
	}
	l.state = SymbolsLoaded
	return nil
}

// Freeze makes the executable immutable.
func (l *Loader) Freeze() error {
	if err := l.expect(SymbolsLoaded, "freeze"); err != nil {
		return err
	}
	if err := l.rt.ExecutableFreeze(l.exe); err != nil {
		return hsa.Fail(hsa.KindResource, "hsa_executable_freeze", err)
	}
	l.state = Frozen
	return nil
}

// CloseReader destroys the reader and closes the file. The frozen executable
// does not depend on either.
func (l *Loader) CloseReader() error {
	if err := l.expect(Frozen, "close reader"); err != nil {
		return err
	}
	if err := l.rt.CodeObjectReaderDestroy(l.reader); err != nil {
		return hsa.Fail(hsa.KindEnvironment, "hsa_code_object_reader_destroy", err)
	}
	l.reader = hsa.CodeObjectReader{}
	err := l.file.Close()
	l.file = nil
	l.state = ReaderClosed
	if err != nil {
		l.log.Warn("failed to close code object file", zap.String("path", l.path), zap.Error(err))
	}
	return nil
}

// Resolve looks up the kernel symbol. Code objects name the kernel descriptor
// <name>.kd; both spellings are accepted.
func (l *Loader) Resolve(name string) error {
	if err := l.expect(ReaderClosed, "resolve"); err != nil {
		return err
	}
	sym, err := l.rt.ExecutableGetSymbol(l.exe, name, l.agent)
	if err != nil && filepath.Ext(name) != descriptorSuffix {
		var kdErr error
		if sym, kdErr = l.rt.ExecutableGetSymbol(l.exe, name+descriptorSuffix, l.agent); kdErr == nil {
			err = nil
		}
	}
	if err != nil {
		return hsa.Fail(hsa.KindResource, "hsa_executable_get_symbol_by_name", err)
	}
	l.symbol = sym
	l.kernel = KernelSymbol{Name: name, Symbol: sym}
	l.state = SymbolResolved
	return nil
}

// Introspect reads the kernel object handle and segment sizes of the resolved
// symbol, printing them when the reporter is enabled. Attributes the runtime
// fails to report are left zero.
func (l *Loader) Introspect() (KernelSymbol, error) {
	if err := l.expect(SymbolResolved, "introspect"); err != nil {
		return KernelSymbol{}, err
	}
	k := &l.kernel
	query := func(attr hsa.SymbolAttribute, print func(uint64)) uint64 {
		v, err := l.rt.SymbolInfo(l.symbol, attr)
		if err != nil {
			l.log.Debug("symbol query failed", zap.Stringer("attribute", attr), zap.Error(err))
			return 0
		}
		print(v)
		return v
	}
	k.KernelObject = query(hsa.SymbolKernelObject, l.report.KernelObject)
	k.GroupSegmentSize = uint32(query(hsa.SymbolGroupSegmentSize, l.report.GroupSegmentSize))
	k.PrivateSegmentSize = uint32(query(hsa.SymbolPrivateSegmentSize, l.report.PrivateSegmentSize))
	k.KernargSegmentSize = uint32(query(hsa.SymbolKernargSegmentSize, l.report.KernargSegmentSize))
	k.KernargSegmentAlignment = uint32(query(hsa.SymbolKernargSegmentAlignment, l.report.KernargSegmentAlignment))
	return *k, nil
}

// Program hands the executable over to the caller, who must Close it. The
// loader is done afterwards.
func (l *Loader) Program() (*Program, error) {
	if err := l.expect(SymbolResolved, "program"); err != nil {
		return nil, err
	}
	p := &Program{rt: l.rt, exe: l.exe, Path: l.path, Kernel: l.kernel}
	l.exe = hsa.Executable{}
	l.state = Done
	metrics.LoaderDuration.Observe(float64(time.Since(l.started).Microseconds()) / 1000)
	return p, nil
}

// Abort releases whatever the pipeline holds and resets the loader to Start.
func (l *Loader) Abort() error {
	var err error
	if l.state >= ExecutableCreated && l.state < Done {
		err = multierr.Append(err, l.rt.ExecutableDestroy(l.exe))
	}
	if l.state >= ReaderOpen && l.state < ReaderClosed {
		err = multierr.Append(err, l.rt.CodeObjectReaderDestroy(l.reader))
		err = multierr.Append(err, l.file.Close())
	}
	*l = Loader{rt: l.rt, agent: l.agent, searchDir: l.searchDir, report: l.report, log: l.log}
	return err
}

// Load runs the pipeline for path and resolves kernel.
func (l *Loader) Load(path, kernel string) (*Program, error) {
	steps := []struct {
		name string
		run  func() error
	}{
		{"open", func() error { return l.Open(path) }},
		{"create_executable", l.CreateExecutable},
		{"load_code_object", l.LoadCodeObject},
		{"freeze", l.Freeze},
		{"close_reader", l.CloseReader},
		{"resolve", func() error { return l.Resolve(kernel) }},
		{"introspect", func() error { _, err := l.Introspect(); return err }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			metrics.LoaderFailures.WithLabelValues(step.name).Inc()
			if abortErr := l.Abort(); abortErr != nil {
				l.log.Warn("failed to release partially loaded code object", zap.Error(abortErr))
			}
			return nil, err
		}
	}
	p, err := l.Program()
	if err != nil {
		return nil, err
	}
	l.log.Debug("code object loaded",
		zap.String("path", p.Path),
		zap.String("kernel", kernel),
		zap.Uint64("kernel_object", p.Kernel.KernelObject))
	return p, nil
}
