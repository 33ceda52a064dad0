// Package session owns one accelerator bring-up: the runtime reference, the
// GPU agent, a submission queue, the loaded program and every buffer
// allocated through it. Teardown releases them in reverse order of
// acquisition, whether Close is called or setup fails half way.
package session

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/fxnlabs/fuzzyhsa/internal/diag"
	"github.com/fxnlabs/fuzzyhsa/internal/hsa"
	"github.com/fxnlabs/fuzzyhsa/internal/loader"
	"github.com/fxnlabs/fuzzyhsa/internal/locator"
	"github.com/fxnlabs/fuzzyhsa/internal/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session: closed")

// Buffer is a device allocation owned by a session.
type Buffer struct {
	Ptr  uintptr
	Size uint64
	Pool hsa.MemoryPool
}

type options struct {
	kernel    string
	queueSize uint32
	searchDir string
	report    *diag.Reporter
	log       *zap.Logger
}

// Option configures New.
type Option func(*options)

// WithKernelName overrides the kernel resolved from the code object. It
// defaults to the code object's file name without extension.
func WithKernelName(name string) Option {
	return func(o *options) {
		o.kernel = name
	}
}

// WithQueueSize sets the queue size in packets. It must be a power of two.
func WithQueueSize(size uint32) Option {
	return func(o *options) {
		o.queueSize = size
	}
}

// WithSearchDir sets the root of the per-agent code object directories.
func WithSearchDir(dir string) Option {
	return func(o *options) {
		o.searchDir = dir
	}
}

// WithReporter enables the diagnostic report of the agent, pool and kernel.
func WithReporter(r *diag.Reporter) Option {
	return func(o *options) {
		o.report = r
	}
}

// WithLogger sets the session logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Session is safe for concurrent use.
type Session struct {
	id      string
	env     *hsa.Env
	rt      hsa.Runtime
	log     *zap.Logger
	report  *diag.Reporter
	agent   hsa.Agent
	queue   hsa.Queue
	program *loader.Program

	mu      sync.Mutex
	buffers []Buffer
	closed  bool
	err     error
}

// New brings up a session for the code object at path.
func New(ctx context.Context, env *hsa.Env, path string, opts ...Option) (*Session, error) {
	o := options{
		kernel:    strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		queueSize: hsa.DefaultQueueSize,
		searchDir: ".",
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		id:     uuid.NewString(),
		env:    env,
		rt:     env.Runtime(),
		report: o.report,
	}
	s.log = o.log.Named("session").With(zap.String("session", s.id))

	var undo []func() error
	rollback := func(err error) (*Session, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			if uerr := undo[i](); uerr != nil {
				s.log.Warn("failed to release after setup failure", zap.Error(uerr))
			}
		}
		op := "context"
		var herr *hsa.Error
		if errors.As(err, &herr) {
			op = herr.Op
		}
		metrics.SessionSetupFailures.WithLabelValues(op).Inc()
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return rollback(err)
	}
	if err := env.Acquire(); err != nil {
		return rollback(err)
	}
	undo = append(undo, env.Release)

	agent, err := locator.FindAccelerator(s.rt, s.report)
	if err != nil {
		return rollback(err)
	}
	s.agent = agent

	queue, err := s.rt.QueueCreate(agent, o.queueSize, hsa.QueueTypeMulti)
	if err != nil {
		return rollback(hsa.Fail(hsa.KindEnvironment, "hsa_queue_create", err))
	}
	s.queue = queue
	undo = append(undo, func() error { return s.rt.QueueDestroy(queue) })

	if err := ctx.Err(); err != nil {
		return rollback(err)
	}
	l := loader.New(s.rt, agent,
		loader.WithSearchDir(o.searchDir),
		loader.WithReporter(s.report),
		loader.WithLogger(o.log))
	program, err := l.Load(path, o.kernel)
	if err != nil {
		return rollback(err)
	}
	s.program = program

	metrics.SessionsCreated.WithLabelValues(s.rt.Name()).Inc()
	metrics.SessionsActive.Inc()
	s.log.Info("session created",
		zap.String("code_object", program.Path),
		zap.String("kernel", program.Kernel.Name),
		zap.Uint32("queue_size", queue.Size))
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Agent() hsa.Agent {
	return s.agent
}

func (s *Session) Queue() hsa.Queue {
	return s.queue
}

func (s *Session) Program() *loader.Program {
	return s.program
}

// Buffers returns the live allocations.
func (s *Session) Buffers() []Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Buffer(nil), s.buffers...)
}

// Allocate reserves size bytes from the agent's global memory pool. The
// buffer lives until Close.
func (s *Session) Allocate(size uint64) (Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Buffer{}, ErrClosed
	}
	if size == 0 {
		return Buffer{}, hsa.Failf(hsa.KindInput, "hsa_amd_memory_pool_allocate", "allocation size must be positive")
	}

	pool, err := locator.FindGlobalPool(s.rt, s.agent, s.report)
	if err != nil {
		return Buffer{}, err
	}
	ptr, err := s.rt.PoolAllocate(pool, size, 0)
	if err != nil {
		return Buffer{}, hsa.Fail(hsa.KindEnvironment, "hsa_amd_memory_pool_allocate", err)
	}
	b := Buffer{Ptr: ptr, Size: size, Pool: pool}
	s.buffers = append(s.buffers, b)

	metrics.Allocations.Inc()
	metrics.AllocatedBytes.Add(float64(size))
	s.log.Debug("buffer allocated", zap.Uintptr("ptr", ptr), zap.String("size", humanize.IBytes(size)))
	return b, nil
}

// Dispatch announces the execution of kernel. Packet submission is not
// implemented; when kernel is the loaded one the launch reservation is logged.
func (s *Session) Dispatch(kernel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	fields := []zap.Field{zap.String("kernel", kernel)}
	if k := s.program.Kernel; k.Name == kernel {
		res := k.LaunchResources()
		fields = append(fields,
			zap.Uint64("kernel_object", res.KernelObject),
			zap.Uint64("kernarg_bytes", res.KernargBytes),
			zap.Uint64("kernarg_alignment", res.KernargAlignment),
			zap.Uint32("group_segment_size", res.GroupSegmentSize),
			zap.Uint32("private_segment_size", res.PrivateSegmentSize))
	}
	s.log.Info("Executing kernel", fields...)
	return nil
}

// Close frees every buffer, destroys the executable and the queue, then
// releases the runtime. Teardown continues past failures; their errors are
// combined. Later calls return the same result.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.err
	}
	s.closed = true

	var err error
	for _, b := range s.buffers {
		if ferr := s.rt.PoolFree(b.Ptr); ferr != nil {
			err = multierr.Append(err, hsa.Fail(hsa.KindEnvironment, "hsa_amd_memory_pool_free", ferr))
			continue
		}
		metrics.AllocatedBytes.Sub(float64(b.Size))
	}
	s.buffers = nil

	err = multierr.Append(err, s.program.Close())
	if qerr := s.rt.QueueDestroy(s.queue); qerr != nil {
		err = multierr.Append(err, hsa.Fail(hsa.KindEnvironment, "hsa_queue_destroy", qerr))
	}
	err = multierr.Append(err, s.env.Release())

	metrics.SessionsActive.Dec()
	s.err = err
	if err != nil {
		s.log.Warn("session closed with errors", zap.Error(err))
	} else {
		s.log.Info("session closed")
	}
	return err
}
