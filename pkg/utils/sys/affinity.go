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

package sys

import (
	"fmt"
	"os/exec"
)

// affinityTool binds a process to a physical CPU list at exec time.
const affinityTool = "numactl"

// LookupAffinity resolves the host affinity utility. Swapped out in tests.
var LookupAffinity = func() (string, error) {
	return exec.LookPath(affinityTool)
}

// AffinityPrefix returns the command prefix that binds a child process to
// the given physical CPU list. The second return value is false when the
// host has no affinity utility installed; the caller runs the command
// unbound and warns.
func AffinityPrefix(cpuList string) (string, bool) {
	if cpuList == "" {
		return "", false
	}

	path, err := LookupAffinity()
	if err != nil {
		return "", false
	}

	return fmt.Sprintf("%s --physcpubind %s", path, cpuList), true
}
