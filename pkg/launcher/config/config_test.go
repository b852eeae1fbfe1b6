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

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setenvRemoved unsets a variable for one test, restoring it afterwards.
func setenvRemoved(t *testing.T, name string) {
	t.Helper()

	t.Setenv(name, "")
	require.NoError(t, os.Unsetenv(name))
}

func setCommonEnv(t *testing.T) {
	t.Helper()

	t.Setenv(EnvRole, "worker")
	t.Setenv(EnvNumNodes, "2")
	t.Setenv(EnvLocalSize, "4")
	t.Setenv(EnvNumWorkers, "2")
	t.Setenv(EnvNodeID, "1")
	t.Setenv(EnvRootURI, "10.0.0.1")
	t.Setenv(EnvRootPort, "9000")
}

func TestParseRole(t *testing.T) {
	testCases := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{input: "worker", want: RoleWorker},
		{input: "Server", want: RoleServer},
		{input: "SCHEDULER", want: RoleScheduler},
		{input: "joint", want: RoleJoint},
		{input: "", wantErr: true},
		{input: "observer", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run("role "+tc.input, func(t *testing.T) {
			role, err := ParseRole(tc.input)

			if tc.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, role)
		})
	}
}

func TestFromEnv(t *testing.T) {
	setCommonEnv(t)
	t.Setenv(EnvNUMAEnable, "1")
	t.Setenv(EnvMultithreadCPU, "false")
	t.Setenv(EnvCPUBlacklist, "1,3")
	t.Setenv(EnvGPUVisibleDevices, "0,1,2,3")
	t.Setenv(EnvRDMASourceAddrs, "10.0.0.1, 10.0.0.2")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, RoleWorker, cfg.Role)
	assert.Equal(t, 1, cfg.NodeID)
	assert.Equal(t, 4, cfg.LocalSize)
	assert.Equal(t, 2, cfg.NumWorkers)
	assert.True(t, cfg.NUMAEnable)
	assert.False(t, cfg.MultithreadCPU)
	assert.Equal(t, "1,3", cfg.CPUBlacklist)
	assert.Equal(t, []string{"0", "1", "2", "3"}, cfg.GPUVisibleDevices)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.RDMASourceAddrs)
	assert.Equal(t, 4, cfg.WorkerLocalSize())
}

func TestFromEnvDefaults(t *testing.T) {
	setCommonEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	// NUMA binding and multithread pairing default to on.
	assert.True(t, cfg.NUMAEnable)
	assert.True(t, cfg.MultithreadCPU)
	assert.False(t, cfg.EnableGDB)
	assert.Equal(t, 1, cfg.WorkerLocalSize())
}

func TestFromEnvBadRole(t *testing.T) {
	setCommonEnv(t)
	t.Setenv(EnvRole, "bystander")

	_, err := FromEnv()
	assert.ErrorContains(t, err, "unrecognized role")
}

func TestFromEnvBadNumber(t *testing.T) {
	setCommonEnv(t)
	t.Setenv(EnvNodeID, "first")

	_, err := FromEnv()
	assert.ErrorContains(t, err, EnvNodeID)
}

func TestFromEnvForcedJoint(t *testing.T) {
	setCommonEnv(t)
	t.Setenv(EnvForceJoint, "1")

	cfg, err := FromEnv()
	require.NoError(t, err)

	// Forced joint mode renumbers every local process as a worker.
	assert.Equal(t, RoleJoint, cfg.Role)
	assert.Equal(t, 8, cfg.NumWorkers)
}

func TestFromEnvForcedJointScheduler(t *testing.T) {
	setCommonEnv(t)
	t.Setenv(EnvRole, "scheduler")
	t.Setenv(EnvForceJoint, "1")
	setenvRemoved(t, EnvNumWorkers)

	cfg, err := FromEnv()
	require.NoError(t, err)

	// The scheduler keeps its role but sees the derived worker count, so
	// a multi-worker job still gets its rendezvous point.
	assert.Equal(t, RoleScheduler, cfg.Role)
	assert.Equal(t, 8, cfg.NumWorkers)
}

func TestValidate(t *testing.T) {
	setCommonEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestValidateMissingRendezvous(t *testing.T) {
	setCommonEnv(t)
	setenvRemoved(t, EnvRootURI)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.ErrorContains(t, cfg.Validate(), EnvRootURI)
}

func TestValidateSingleWorkerRelaxed(t *testing.T) {
	setCommonEnv(t)
	t.Setenv(EnvNumWorkers, "1")
	setenvRemoved(t, EnvRootURI)
	setenvRemoved(t, EnvRootPort)
	setenvRemoved(t, EnvNumNodes)

	cfg, err := FromEnv()
	require.NoError(t, err)

	// A single-worker job needs no rendezvous configuration, only the
	// node id.
	assert.NoError(t, cfg.Validate())
}

func TestValidateWorkerNeedsNodeID(t *testing.T) {
	setCommonEnv(t)
	setenvRemoved(t, EnvNodeID)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.ErrorContains(t, cfg.Validate(), EnvNodeID)
}

func TestValidateWorkerCountRequired(t *testing.T) {
	setCommonEnv(t)
	setenvRemoved(t, EnvNumWorkers)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.ErrorContains(t, cfg.Validate(), EnvNumWorkers)
}

func TestRDMASourceAddr(t *testing.T) {
	cfg := &Config{RDMASourceAddrs: []string{"10.0.0.1"}}

	// A single address is shared by every rank.
	assert.Equal(t, "10.0.0.1", cfg.RDMASourceAddr(0))
	assert.Equal(t, "10.0.0.1", cfg.RDMASourceAddr(3))

	cfg = &Config{RDMASourceAddrs: []string{"10.0.0.1", "10.0.0.2"}}
	assert.Equal(t, "10.0.0.2", cfg.RDMASourceAddr(1))

	cfg = &Config{}
	assert.Equal(t, "", cfg.RDMASourceAddr(0))
}
