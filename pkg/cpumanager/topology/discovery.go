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

package topology

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// DefaultNUMAPath is the sysfs hierarchy exposing per-node CPU directories.
const DefaultNUMAPath = "/sys/devices/system/node"

var (
	nodeDirRegexp  = regexp.MustCompile(`^node(\d+)$`)
	cpuEntryRegexp = regexp.MustCompile(`^cpu(\d+)$`)
)

// Discover reads the NUMA topology from the given sysfs path.
//
// Each node directory contributes the sorted ids of its "cpuN" entries.
// With multithread awareness enabled, each node list is truncated to its
// first half: physical core ids precede their hyperthread siblings by a
// fixed offset of half the node's logical CPU count.
//
// A missing path means the host does not expose NUMA information. That is
// not an error, the returned topology is empty and the caller launches
// processes unbound.
func Discover(log logr.Logger, numaPath string, multithread bool) (*Topology, error) {
	entries, err := os.ReadDir(numaPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("NUMA topology path not found, CPU binding unsupported", "path", numaPath)

			return &Topology{}, nil
		}

		return nil, errors.Wrapf(err, "reading NUMA path %s", numaPath)
	}

	topo := &Topology{}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		matches := nodeDirRegexp.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		nodeID, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		cpus, err := readNodeCPUs(filepath.Join(numaPath, entry.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "reading NUMA node %s", entry.Name())
		}

		if multithread {
			cpus = cpus[:len(cpus)/2]
		}

		topo.Nodes = append(topo.Nodes, Node{ID: nodeID, CPUs: cpus})
	}

	slices.SortFunc(topo.Nodes, func(a, b Node) int { return a.ID - b.ID })

	return topo, nil
}

func readNodeCPUs(nodePath string) ([]int, error) {
	entries, err := os.ReadDir(nodePath)
	if err != nil {
		return nil, err
	}

	cpus := []int{}

	for _, entry := range entries {
		matches := cpuEntryRegexp.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		id, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		cpus = append(cpus, id)
	}

	slices.Sort(cpus)

	return cpus, nil
}
