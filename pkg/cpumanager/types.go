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

// Package cpumanager plans and carves per-rank CPU allocations from the
// host NUMA topology.
package cpumanager

import (
	"fmt"
	"strings"
)

// Segment is an ordered run of CPU ids granted to one rank. Segments start
// out contiguous; blacklist filtering may shrink one without re-splitting it.
type Segment []int

// Allocation is the ordered list of segments granted to one rank. The last
// segment may hold hyperthread siblings of the primary segments.
type Allocation []Segment

// IsEmpty reports whether the allocation grants no CPUs at all.
func (a Allocation) IsEmpty() bool {
	for _, seg := range a {
		if len(seg) > 0 {
			return false
		}
	}

	return true
}

// CPUList renders the allocation in the list format consumed by
// numactl --physcpubind: a bare id for single-CPU segments, an inclusive
// first-last range otherwise, comma separated.
func (a Allocation) CPUList() string {
	parts := make([]string, 0, len(a))

	for _, seg := range a {
		switch {
		case len(seg) == 0:
			continue
		case len(seg) == 1:
			parts = append(parts, fmt.Sprintf("%d", seg[0]))
		default:
			parts = append(parts, fmt.Sprintf("%d-%d", seg[0], seg[len(seg)-1]))
		}
	}

	return strings.Join(parts, ",")
}
