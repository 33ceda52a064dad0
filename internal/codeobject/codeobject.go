// Package codeobject decodes the kernel tables of binary code objects.
//
// Two encodings are understood: AMDGPU ELF files as produced by
// `hipcc --genco`, whose kernel descriptors carry the segment sizes, and
// YAML manifests describing the same information for the simulated runtime
// on machines without ROCm.
package codeobject

import (
	"bytes"
	"io"
	"math/bits"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ManifestFormat tags simulated code-object manifests.
const ManifestFormat = "fuzzyhsa-sim/v1"

// DefaultKernargAlignment is used when the encoding does not record one.
const DefaultKernargAlignment = 16

// descriptorSuffix is appended to a kernel's name to form its descriptor symbol.
const descriptorSuffix = ".kd"

var (
	// ErrNoKernels is returned for code objects without any kernel entry.
	ErrNoKernels = errors.New("codeobject: no kernels found")
	// ErrUnknownFormat is returned for data that is neither ELF nor a manifest.
	ErrUnknownFormat = errors.New("codeobject: unrecognized code object format")
)

// Kernel is one kernel entry with the values needed to size a launch.
type Kernel struct {
	Name                    string `yaml:"name"`
	GroupSegmentSize        uint32 `yaml:"groupSegmentSize"`
	PrivateSegmentSize      uint32 `yaml:"privateSegmentSize"`
	KernargSegmentSize      uint32 `yaml:"kernargSegmentSize"`
	KernargSegmentAlignment uint32 `yaml:"kernargSegmentAlignment"`
}

// Object is a decoded code object.
type Object struct {
	Format  string   `yaml:"format"`
	Target  string   `yaml:"target,omitempty"`
	Kernels []Kernel `yaml:"kernels"`
}

// Lookup finds a kernel by its symbol name. Both the kernel name and its
// descriptor symbol (name + ".kd") are embedded in a code object.
func (o *Object) Lookup(symbol string) (Kernel, bool) {
	name := strings.TrimSuffix(symbol, descriptorSuffix)
	for _, k := range o.Kernels {
		if k.Name == name {
			return k, true
		}
	}
	return Kernel{}, false
}

// Symbols lists every kernel symbol name embedded in the object.
func (o *Object) Symbols() []string {
	names := make([]string, 0, 2*len(o.Kernels))
	for _, k := range o.Kernels {
		names = append(names, k.Name, k.Name+descriptorSuffix)
	}
	return names
}

// Decode detects the encoding of data and decodes it.
func Decode(data []byte) (*Object, error) {
	if bytes.HasPrefix(data, []byte(elfMagic)) {
		return decodeELF(data)
	}
	return decodeManifest(data)
}

// ReadFile decodes the code object behind an open file, reading it from the start.
func ReadFile(f *os.File) (*Object, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "codeobject: stat %s", f.Name())
	}
	data, err := io.ReadAll(io.NewSectionReader(f, 0, info.Size()))
	if err != nil {
		return nil, errors.Wrapf(err, "codeobject: read %s", f.Name())
	}
	obj, err := Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "codeobject: decode %s", f.Name())
	}
	return obj, nil
}

// EncodeManifest renders o as a simulated code-object manifest.
func EncodeManifest(o *Object) ([]byte, error) {
	out := *o
	out.Format = ManifestFormat
	if err := validate(&out); err != nil {
		return nil, err
	}
	return yaml.Marshal(&out)
}

func decodeManifest(data []byte) (*Object, error) {
	var obj Object
	if err := yaml.Unmarshal(data, &obj); err != nil {
		return nil, ErrUnknownFormat
	}
	if obj.Format != ManifestFormat {
		return nil, ErrUnknownFormat
	}
	for i := range obj.Kernels {
		if obj.Kernels[i].KernargSegmentAlignment == 0 {
			obj.Kernels[i].KernargSegmentAlignment = DefaultKernargAlignment
		}
	}
	if err := validate(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

func validate(o *Object) error {
	if len(o.Kernels) == 0 {
		return ErrNoKernels
	}
	seen := make(map[string]struct{}, len(o.Kernels))
	for _, k := range o.Kernels {
		if k.Name == "" {
			return errors.New("codeobject: kernel without a name")
		}
		if _, dup := seen[k.Name]; dup {
			return errors.Errorf("codeobject: duplicate kernel %q", k.Name)
		}
		seen[k.Name] = struct{}{}
		if bits.OnesCount32(k.KernargSegmentAlignment) != 1 {
			return errors.Errorf("codeobject: kernel %q: kernarg alignment %d is not a power of two", k.Name, k.KernargSegmentAlignment)
		}
	}
	return nil
}
