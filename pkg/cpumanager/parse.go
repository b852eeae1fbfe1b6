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
	"strings"

	"github.com/pkg/errors"

	"k8s.io/utils/cpuset"
)

// ParseRankCPUs parses a manual per-rank CPU assignment. Ranks are colon
// separated, segments within a rank comma separated, ranges inclusive:
//
//	"1,4-5,7-11,12:20-25"
//
// yields rank 0 = [[1] [4 5] [7 8 9 10 11] [12]], rank 1 = [[20..25]].
func ParseRankCPUs(spec string) ([]Allocation, error) {
	ranks := strings.Split(spec, ":")
	allocations := make([]Allocation, 0, len(ranks))

	for i, rankSpec := range ranks {
		alloc := Allocation{}

		for elem := range strings.SplitSeq(rankSpec, ",") {
			set, err := cpuset.Parse(strings.TrimSpace(elem))
			if err != nil {
				return nil, errors.Wrapf(err, "parsing CPU range %q for rank %d", elem, i)
			}

			if set.Size() == 0 {
				return nil, errors.Errorf("empty CPU range for rank %d in %q", i, spec)
			}

			alloc = append(alloc, Segment(set.List()))
		}

		allocations = append(allocations, alloc)
	}

	return allocations, nil
}

// ParseBlacklist parses a comma-separated list of CPU ids that must never
// be granted to any rank. An empty value means no blacklist.
func ParseBlacklist(spec string) (cpuset.CPUSet, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return cpuset.New(), nil
	}

	set, err := cpuset.Parse(spec)
	if err != nil {
		return cpuset.New(), errors.Wrapf(err, "parsing CPU blacklist %q", spec)
	}

	return set, nil
}
