package kernels

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/fxnlabs/fuzzyhsa/internal/codeobject"
	"github.com/pkg/errors"
)

// Compiler turns a HIP source file into a code object.
type Compiler interface {
	Name() string
	Compile(ctx context.Context, k Kernel, src, out string) error
}

// HIPCC compiles with the ROCm hipcc driver.
type HIPCC struct {
	// Path defaults to "hipcc" looked up in PATH.
	Path        string
	OffloadArch string
}

func (h HIPCC) Name() string {
	return "hipcc"
}

func (h HIPCC) Args(src, out string) []string {
	args := []string{"--genco"}
	if h.OffloadArch != "" {
		args = append(args, "--offload-arch="+h.OffloadArch)
	}
	return append(args, src, "-o", out)
}

func (h HIPCC) Compile(ctx context.Context, k Kernel, src, out string) error {
	path := h.Path
	if path == "" {
		path = "hipcc"
	}
	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, path, h.Args(src, out)...)
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "kernels: hipcc failed for %s: %s", k.Name, strings.TrimSpace(output.String()))
	}
	return nil
}

// ManifestCompiler writes a simulated code-object manifest instead of
// compiling, so kernels can be loaded by the simulated runtime on machines
// without ROCm.
type ManifestCompiler struct {
	// Target is recorded as the code object's ISA; empty loads on any agent.
	Target string
}

func (m ManifestCompiler) Name() string {
	return "manifest"
}

func (m ManifestCompiler) Compile(ctx context.Context, k Kernel, src, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	size, align, err := KernargLayout(k.Params)
	if err != nil {
		return err
	}
	data, err := codeobject.EncodeManifest(&codeobject.Object{
		Target: m.Target,
		Kernels: []codeobject.Kernel{{
			Name:                    k.Name,
			KernargSegmentSize:      size,
			KernargSegmentAlignment: align,
		}},
	})
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(out, data, 0644), "kernels: write %s", out)
}

// SelectCompiler picks a compiler by name: hipcc, manifest, or auto which
// prefers hipcc when it is installed.
func SelectCompiler(name, offloadArch string) (Compiler, error) {
	switch name {
	case "hipcc":
		return HIPCC{OffloadArch: offloadArch}, nil
	case "manifest":
		return ManifestCompiler{Target: offloadArch}, nil
	case "auto", "":
		if path, err := exec.LookPath("hipcc"); err == nil {
			return HIPCC{Path: path, OffloadArch: offloadArch}, nil
		}
		return ManifestCompiler{Target: offloadArch}, nil
	default:
		return nil, errors.Errorf("kernels: unknown compiler %q", name)
	}
}
