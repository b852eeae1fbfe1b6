/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package topology discovers the host NUMA layout used for CPU binding.
package topology

import (
	"github.com/samber/lo"
)

// Node holds the CPU ids of one NUMA node, sorted ascending.
// When multithread awareness is enabled the list contains physical
// cores only, hyperthread siblings are addressed by a fixed offset.
type Node struct {
	ID   int
	CPUs []int
}

// Size returns the number of CPUs left on the node.
func (n Node) Size() int {
	return len(n.CPUs)
}

// Topology is the ordered set of NUMA nodes of the host. It is read once
// at launch and consumed by the allocator before any process is spawned.
type Topology struct {
	Nodes []Node
}

// IsEmpty reports whether no NUMA information is available.
func (t *Topology) IsEmpty() bool {
	return t == nil || len(t.Nodes) == 0
}

// TotalCPUs returns the number of CPUs across all nodes.
func (t *Topology) TotalCPUs() int {
	if t == nil {
		return 0
	}

	return lo.SumBy(t.Nodes, Node.Size)
}

// FirstNodeSize returns the CPU count of the first node. The root quota
// is clamped against it so that the root rank stays on a single socket.
func (t *Topology) FirstNodeSize() int {
	if t.IsEmpty() {
		return 0
	}

	return t.Nodes[0].Size()
}
