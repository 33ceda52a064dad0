package codeobject

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

const elfMagic = "\x7fELF"

// emAMDGPU is the ELF machine number of AMD GPU code objects.
const emAMDGPU elf.Machine = 224

// kernelDescriptorSize is the size of an AMDHSA kernel descriptor.
const kernelDescriptorSize = 64

// Offsets of the fields read from a kernel descriptor.
const (
	kdGroupSegmentFixedSize   = 0
	kdPrivateSegmentFixedSize = 4
	kdKernargSize             = 8
)

func decodeELF(data []byte) (*Object, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "codeobject: parse ELF")
	}
	defer f.Close()

	if f.Machine != emAMDGPU {
		return nil, errors.Errorf("codeobject: ELF machine %v is not AMDGPU", f.Machine)
	}
	symbols, err := f.Symbols()
	if err != nil {
		return nil, errors.Wrap(err, "codeobject: read symbol table")
	}

	obj := &Object{Format: "elf"}
	for _, sym := range symbols {
		if elf.ST_TYPE(sym.Info) != elf.STT_OBJECT || !strings.HasSuffix(sym.Name, descriptorSuffix) {
			continue
		}
		if sym.Section == elf.SHN_UNDEF || sym.Section >= elf.SHN_LORESERVE || int(sym.Section) >= len(f.Sections) {
			continue
		}
		section := f.Sections[sym.Section]
		contents, err := section.Data()
		if err != nil {
			return nil, errors.Wrapf(err, "codeobject: read section %s", section.Name)
		}
		if sym.Value < section.Addr || sym.Value-section.Addr+kernelDescriptorSize > uint64(len(contents)) {
			return nil, errors.Errorf("codeobject: kernel descriptor %s lies outside section %s", sym.Name, section.Name)
		}
		kd := contents[sym.Value-section.Addr:][:kernelDescriptorSize]
		obj.Kernels = append(obj.Kernels, Kernel{
			Name:                    strings.TrimSuffix(sym.Name, descriptorSuffix),
			GroupSegmentSize:        binary.LittleEndian.Uint32(kd[kdGroupSegmentFixedSize:]),
			PrivateSegmentSize:      binary.LittleEndian.Uint32(kd[kdPrivateSegmentFixedSize:]),
			KernargSegmentSize:      binary.LittleEndian.Uint32(kd[kdKernargSize:]),
			KernargSegmentAlignment: DefaultKernargAlignment,
		})
	}
	if len(obj.Kernels) == 0 {
		return nil, ErrNoKernels
	}
	return obj, nil
}
