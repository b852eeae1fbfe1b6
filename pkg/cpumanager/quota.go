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

// QuotaPlan holds the converged per-rank CPU quotas of one launch.
// Local rank 0 receives the root quota, it runs the reduction root and
// does more work than its siblings.
type QuotaPlan struct {
	// Default is the CPU count owed to each non-root rank.
	Default int
	// Root is the CPU count owed to local rank 0.
	Root int
	// LocalSize is the number of local ranks.
	LocalSize int
}

// Quotas returns the plan in rank order: the root quota first, then
// LocalSize-1 copies of the default quota.
func (p QuotaPlan) Quotas() []int {
	quotas := make([]int, p.LocalSize)
	quotas[0] = p.Root

	for i := 1; i < p.LocalSize; i++ {
		quotas[i] = p.Default
	}

	return quotas
}

// PlanQuotas computes per-rank CPU quotas for localSize ranks out of
// totalCPUs physical cores.
//
// The default quota starts at totalCPUs/localSize, an explicit override
// replaces it, then it is decremented until default*localSize fits within
// totalCPUs. The root quota takes whatever the non-root ranks left over,
// an explicit override replaces it, then it is clamped downward to one
// node's size (halved again under multithread awareness) so the root rank
// stays on a single socket. With a single rank only the root quota exists.
//
// The second return value is false when either quota converged below 1.
// That is not an error: the caller launches every rank unbound.
func PlanQuotas(totalCPUs, firstNodeSize, localSize, defaultOverride, rootOverride int, multithread bool) (QuotaPlan, bool) {
	if localSize < 1 || totalCPUs < 1 {
		return QuotaPlan{}, false
	}

	defaultQuota := totalCPUs / localSize
	if defaultOverride > 0 {
		defaultQuota = defaultOverride
	}

	for defaultQuota >= 1 && defaultQuota*localSize > totalCPUs {
		defaultQuota--
	}

	rootQuota := totalCPUs - defaultQuota*(localSize-1)
	if rootOverride > 0 {
		rootQuota = rootOverride
	}

	nodeSize := firstNodeSize
	if multithread {
		nodeSize /= 2
	}

	for rootQuota >= 1 && rootQuota > nodeSize {
		rootQuota--
	}

	// An explicit root override may still oversubscribe the host.
	for rootQuota >= 1 && defaultQuota*(localSize-1)+rootQuota > totalCPUs {
		rootQuota--
	}

	if rootQuota < 1 || (localSize > 1 && defaultQuota < 1) {
		return QuotaPlan{}, false
	}

	return QuotaPlan{Default: defaultQuota, Root: rootQuota, LocalSize: localSize}, true
}
