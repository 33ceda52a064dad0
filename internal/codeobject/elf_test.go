package codeobject

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testKernel struct {
	name                    string
	group, private, kernarg uint32
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// buildELF writes a minimal AMDGPU code object: one .rodata section holding
// the kernel descriptors and a symbol table naming them.
func buildELF(t *testing.T, machine elf.Machine, kernels ...testKernel) []byte {
	t.Helper()
	const rodataAddr = 0x1000

	rodata := make([]byte, kernelDescriptorSize*len(kernels))
	strtab := []byte{0}
	syms := []elf.Sym64{{}}
	addString := func(s string) uint32 {
		off := len(strtab)
		strtab = append(append(strtab, s...), 0)
		return uint32(off)
	}
	for i, k := range kernels {
		kd := rodata[i*kernelDescriptorSize:]
		binary.LittleEndian.PutUint32(kd[kdGroupSegmentFixedSize:], k.group)
		binary.LittleEndian.PutUint32(kd[kdPrivateSegmentFixedSize:], k.private)
		binary.LittleEndian.PutUint32(kd[kdKernargSize:], k.kernarg)
		syms = append(syms,
			elf.Sym64{
				Name:  addString(k.name + descriptorSuffix),
				Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT),
				Shndx: 1,
				Value: rodataAddr + uint64(i*kernelDescriptorSize),
				Size:  kernelDescriptorSize,
			},
			elf.Sym64{
				Name:  addString(k.name),
				Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC),
				Shndx: 1,
				Value: rodataAddr,
			},
		)
	}
	var symtab bytes.Buffer
	require.NoError(t, binary.Write(&symtab, binary.LittleEndian, syms))
	shstrtab := []byte("\x00.rodata\x00.strtab\x00.symtab\x00.shstrtab\x00")

	rodataOff := 64
	strtabOff := rodataOff + len(rodata)
	symtabOff := align8(strtabOff + len(strtab))
	shstrtabOff := symtabOff + symtab.Len()
	shOff := align8(shstrtabOff + len(shstrtab))

	header := elf.Header64{
		Type:      uint16(elf.ET_DYN),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     uint64(shOff),
		Ehsize:    64,
		Phentsize: 56,
		Shentsize: 64,
		Shnum:     5,
		Shstrndx:  4,
	}
	copy(header.Ident[:], elfMagic)
	header.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	header.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	header.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	sections := []elf.Section64{
		{},
		{Name: 1, Type: uint32(elf.SHT_PROGBITS), Flags: uint64(elf.SHF_ALLOC), Addr: rodataAddr,
			Off: uint64(rodataOff), Size: uint64(len(rodata)), Addralign: 64},
		{Name: 9, Type: uint32(elf.SHT_STRTAB), Off: uint64(strtabOff), Size: uint64(len(strtab)), Addralign: 1},
		{Name: 17, Type: uint32(elf.SHT_SYMTAB), Off: uint64(symtabOff), Size: uint64(symtab.Len()),
			Link: 2, Info: 1, Addralign: 8, Entsize: 24},
		{Name: 25, Type: uint32(elf.SHT_STRTAB), Off: uint64(shstrtabOff), Size: uint64(len(shstrtab)), Addralign: 1},
	}

	var out bytes.Buffer
	require.NoError(t, binary.Write(&out, binary.LittleEndian, header))
	out.Write(rodata)
	out.Write(strtab)
	out.Write(make([]byte, symtabOff-out.Len()))
	out.Write(symtab.Bytes())
	out.Write(shstrtab)
	out.Write(make([]byte, shOff-out.Len()))
	require.NoError(t, binary.Write(&out, binary.LittleEndian, sections))
	return out.Bytes()
}

func TestDecode_ELF(t *testing.T) {
	data := buildELF(t, emAMDGPU,
		testKernel{name: "vector_add", group: 0, private: 16, kernarg: 28},
		testKernel{name: "vector_mul", group: 1024, private: 0, kernarg: 24},
	)

	obj, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, obj.Kernels, 2)

	add, ok := obj.Lookup("vector_add.kd")
	require.True(t, ok)
	assert.Equal(t, Kernel{
		Name:                    "vector_add",
		PrivateSegmentSize:      16,
		KernargSegmentSize:      28,
		KernargSegmentAlignment: DefaultKernargAlignment,
	}, add)

	mul, ok := obj.Lookup("vector_mul")
	require.True(t, ok)
	assert.Equal(t, uint32(1024), mul.GroupSegmentSize)
	assert.Empty(t, obj.Target)
}

func TestDecode_ELFErrors(t *testing.T) {
	t.Run("wrong machine", func(t *testing.T) {
		_, err := Decode(buildELF(t, elf.EM_X86_64, testKernel{name: "k", kernarg: 8}))
		assert.ErrorContains(t, err, "not AMDGPU")
	})

	t.Run("no kernels", func(t *testing.T) {
		_, err := Decode(buildELF(t, emAMDGPU))
		assert.ErrorIs(t, err, ErrNoKernels)
	})

	t.Run("truncated", func(t *testing.T) {
		data := buildELF(t, emAMDGPU, testKernel{name: "k"})
		_, err := Decode(data[:32])
		assert.Error(t, err)
	})
}
