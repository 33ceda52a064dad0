// Package topology reads the KFD node topology the amdgpu driver exposes in
// sysfs. Node 0 is usually the host CPU; GPU nodes carry a non-zero gpu_id.
package topology

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultRoot is where the driver publishes the topology.
const DefaultRoot = "/sys/devices/virtual/kfd/kfd/topology"

// ErrNoGPU is returned when no node reports a gpu_id.
var ErrNoGPU = errors.New("topology: no GPUs found")

// MemBank is one memory bank of a node.
type MemBank struct {
	Properties map[string]uint64
}

// SizeInBytes returns the bank size.
func (b MemBank) SizeInBytes() uint64 {
	return b.Properties["size_in_bytes"]
}

// Node is one KFD topology node.
type Node struct {
	ID         int
	GPUID      uint64
	Name       string
	Properties map[string]uint64
	MemBanks   []MemBank
}

// IsGPU reports whether the node is a GPU.
func (n Node) IsGPU() bool {
	return n.GPUID != 0
}

// ISAName derives the gfx target name (gfx90a, gfx1100, ...) from
// gfx_target_version. It returns "" for nodes without one.
func (n Node) ISAName() string {
	v := n.Properties["gfx_target_version"]
	if v == 0 {
		return ""
	}
	major := v / 10000
	minor := (v / 100) % 100
	stepping := v % 100
	return fmt.Sprintf("gfx%d%d%x", major, minor, stepping)
}

// LocalMemSize is the device memory of the node: the sum of its memory banks,
// or the local_mem_size property when no bank is listed.
func (n Node) LocalMemSize() uint64 {
	var total uint64
	for _, b := range n.MemBanks {
		total += b.SizeInBytes()
	}
	if total == 0 {
		total = n.Properties["local_mem_size"]
	}
	return total
}

// LDSSize is the per-workgroup local data share in bytes.
func (n Node) LDSSize() uint64 {
	return n.Properties["lds_size_in_kb"] * 1024
}

// Reader reads nodes below a topology root.
type Reader struct {
	root string
}

// NewReader returns a Reader for root, DefaultRoot when empty.
func NewReader(root string) *Reader {
	if root == "" {
		root = DefaultRoot
	}
	return &Reader{root: root}
}

// Root returns the directory read by r.
func (r *Reader) Root() string {
	return r.root
}

// NodePath is the sysfs path of file within node id.
func (r *Reader) NodePath(id int, file string) string {
	return filepath.Join(r.root, "nodes", strconv.Itoa(id), file)
}

// Nodes reads nodes 0, 1, ... until one is missing its gpu_id file.
func (r *Reader) Nodes() ([]Node, error) {
	var nodes []Node
	for id := 0; ; id++ {
		if _, err := os.Stat(r.NodePath(id, "gpu_id")); err != nil {
			if os.IsNotExist(err) {
				break
			}
			return nil, errors.Wrapf(err, "topology: stat node %d", id)
		}
		node, err := r.Node(id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Node reads a single node.
func (r *Reader) Node(id int) (Node, error) {
	gpuID, err := ReadUint(r.NodePath(id, "gpu_id"))
	if err != nil {
		return Node{}, err
	}
	node := Node{ID: id, GPUID: gpuID, Properties: map[string]uint64{}}

	if name, err := os.ReadFile(r.NodePath(id, "name")); err == nil {
		node.Name = strings.TrimSpace(string(name))
	}
	if props, err := ReadProperties(r.NodePath(id, "properties")); err == nil {
		node.Properties = props
	} else if !os.IsNotExist(errors.Cause(err)) {
		return Node{}, err
	}

	banks, err := filepath.Glob(filepath.Join(r.NodePath(id, "mem_banks"), "*", "properties"))
	if err != nil {
		return Node{}, errors.Wrapf(err, "topology: list memory banks of node %d", id)
	}
	sort.Strings(banks)
	for _, path := range banks {
		props, err := ReadProperties(path)
		if err != nil {
			return Node{}, err
		}
		node.MemBanks = append(node.MemBanks, MemBank{Properties: props})
	}
	return node, nil
}

// FirstGPU returns the first GPU node.
func (r *Reader) FirstGPU() (Node, error) {
	nodes, err := r.Nodes()
	if err != nil {
		return Node{}, err
	}
	for _, n := range nodes {
		if n.IsGPU() {
			return n, nil
		}
	}
	return Node{}, ErrNoGPU
}

// ReadUint reads a file holding a single unsigned integer.
func ReadUint(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "topology: read %s", path)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "topology: parse %s", path)
	}
	return v, nil
}

// ReadProperties reads a "key value" per line properties file.
func ReadProperties(path string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "topology: open %s", path)
	}
	defer f.Close()

	props := make(map[string]uint64)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, errors.Errorf("topology: %s:%d: expected \"key value\", got %q", path, line, scanner.Text())
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "topology: %s:%d", path, line)
		}
		props[fields[0]] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "topology: read %s", path)
	}
	return props, nil
}
