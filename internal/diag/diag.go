// Package diag prints the human-readable bring-up report enabled by DEBUG=1.
// It is separate from logging: the report goes to stdout as plain lines and is
// meant for someone watching a fuzzing run, not for log collection.
package diag

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
)

// Env is the variable that enables the report. Only "1" enables it.
const Env = "DEBUG"

// Reporter writes diagnostic lines when enabled. A nil *Reporter is valid and
// reports nothing.
type Reporter struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
}

// New returns a reporter writing to w.
func New(w io.Writer, enabled bool) *Reporter {
	return &Reporter{w: w, enabled: enabled}
}

// FromEnv returns a stdout reporter enabled by DEBUG=1.
func FromEnv() *Reporter {
	return New(os.Stdout, os.Getenv(Env) == "1")
}

// Enabled reports whether lines are written.
func (r *Reporter) Enabled() bool {
	return r != nil && r.enabled
}

// Printf writes one line.
func (r *Reporter) Printf(format string, args ...any) {
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format+"\n", args...)
}

func (r *Reporter) GPUDevice(name string) {
	r.Printf("Found GPU device: %s", name)
}

func (r *Reporter) GlobalPoolSize(size uint64) {
	r.Printf("Found Global Memory Pool Size: %s", humanize.IBytes(size))
}

func (r *Reporter) KernelObject(handle uint64) {
	r.Printf("Kernel object handle: %d", handle)
}

func (r *Reporter) GroupSegmentSize(n uint64) {
	r.Printf("Group segment size: %d bytes", n)
}

func (r *Reporter) PrivateSegmentSize(n uint64) {
	r.Printf("Private segment size: %d bytes", n)
}

func (r *Reporter) KernargSegmentSize(n uint64) {
	r.Printf("Kernel argument segment size: %d bytes", n)
}

func (r *Reporter) KernargSegmentAlignment(n uint64) {
	r.Printf("Kernel argument segment alignment: %d bytes", n)
}
