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

package cpumanager

import (
	"slices"

	"github.com/go-logr/logr"

	"github.com/sergelogvinov/numa-launcher/pkg/cpumanager/topology"

	"k8s.io/utils/cpuset"
)

// Allocator carves contiguous CPU segments out of a topology, one rank at
// a time. It is the single owner of the topology: consumed ids are removed
// from the node free lists, and all allocation runs before any process is
// spawned, so there is never concurrent access to the depleting pools.
type Allocator struct {
	topo *topology.Topology

	// physicalCPUs is the core count at construction time, before any
	// consumption. A core's hyperthread sibling id is core id plus this.
	physicalCPUs int

	blacklist   cpuset.CPUSet
	multithread bool

	log logr.Logger
}

// NewAllocator takes ownership of topo. Blacklisted ids are never granted.
func NewAllocator(log logr.Logger, topo *topology.Topology, blacklist cpuset.CPUSet, multithread bool) *Allocator {
	return &Allocator{
		topo:         topo,
		physicalCPUs: topo.TotalCPUs(),
		blacklist:    blacklist,
		multithread:  multithread,
		log:          log,
	}
}

// Allocate grants one rank a quota of CPUs from the first node that still
// has enough free ids. The first quota ids of that node are split on
// discontinuities into maximal contiguous segments and removed from the
// node. The blacklist shrinks segments after splitting, it never re-splits
// them. Under multithread pairing the consumed ids' siblings are appended
// as one extra segment without being removed from the free lists.
//
// The second return value is false when no node can satisfy the quota;
// the caller shrinks the quota and retries.
func (a *Allocator) Allocate(quota int) (Allocation, bool) {
	if quota < 1 {
		return nil, false
	}

	for i := range a.topo.Nodes {
		node := &a.topo.Nodes[i]
		if node.Size() < quota {
			continue
		}

		segments := splitContiguous(node.CPUs[:quota])

		consumed := slices.Clone(node.CPUs[:quota])
		node.CPUs = node.CPUs[quota:]

		alloc := make(Allocation, 0, len(segments)+1)

		for _, seg := range segments {
			if seg = a.dropBlacklisted(seg); len(seg) > 0 {
				alloc = append(alloc, seg)
			}
		}

		if a.multithread {
			siblings := make(Segment, 0, len(consumed))

			for _, id := range consumed {
				sibling := id + a.physicalCPUs
				if !a.blacklist.Contains(sibling) {
					siblings = append(siblings, sibling)
				}
			}

			if len(siblings) > 0 {
				alloc = append(alloc, siblings)
			}
		}

		return alloc, true
	}

	return nil, false
}

// AllocateAll runs the full allocation sequence for one launch. Each rank's
// quota shrinks by one on every failed attempt; at zero the rank receives
// an empty allocation and launches unbound. That is a policy outcome, not
// a failure.
func (a *Allocator) AllocateAll(quotas []int) []Allocation {
	allocations := make([]Allocation, len(quotas))

	for rank, quota := range quotas {
		for quota > 0 {
			alloc, ok := a.Allocate(quota)
			if ok {
				allocations[rank] = alloc

				break
			}

			a.log.V(1).Info("no node satisfies quota, shrinking", "rank", rank, "quota", quota)
			quota--
		}

		if allocations[rank].IsEmpty() {
			a.log.Info("rank receives no CPU binding", "rank", rank)
		}
	}

	return allocations
}

// splitContiguous splits sorted ids into maximal contiguous runs.
func splitContiguous(ids []int) []Segment {
	segments := []Segment{}
	start := 0

	for i := 1; i < len(ids); i++ {
		if ids[i] != ids[i-1]+1 {
			segments = append(segments, slices.Clone(ids[start:i]))
			start = i
		}
	}

	return append(segments, slices.Clone(ids[start:]))
}

func (a *Allocator) dropBlacklisted(seg Segment) Segment {
	kept := make(Segment, 0, len(seg))

	for _, id := range seg {
		if !a.blacklist.Contains(id) {
			kept = append(kept, id)
		}
	}

	return kept
}
