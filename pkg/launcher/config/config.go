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

// Package config holds the environment-driven launcher configuration.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Role is the duty of this host in the training job.
type Role string

const (
	// RoleWorker runs training processes.
	RoleWorker Role = "worker"
	// RoleServer aggregates gradients for the workers.
	RoleServer Role = "server"
	// RoleScheduler coordinates worker/server rendezvous.
	RoleScheduler Role = "scheduler"
	// RoleJoint runs worker and server duties in one process.
	RoleJoint Role = "joint"
)

// ParseRole maps a string onto the closed role set. An unrecognized role
// is a configuration error, never a silent default.
func ParseRole(s string) (Role, error) {
	switch role := Role(strings.ToLower(s)); role {
	case RoleWorker, RoleServer, RoleScheduler, RoleJoint:
		return role, nil
	}

	return "", errors.Errorf("unrecognized role %q, want one of worker, server, scheduler, joint", s)
}

// Environment variables consumed by the launcher.
const (
	EnvRole       = "LAUNCHER_ROLE"
	EnvNodeID     = "LAUNCHER_NODE_ID"
	EnvLocalSize  = "LAUNCHER_LOCAL_SIZE"
	EnvNumNodes   = "LAUNCHER_NUM_NODES"
	EnvNumWorkers = "LAUNCHER_NUM_WORKERS"
	EnvRootURI    = "LAUNCHER_ROOT_URI"
	EnvRootPort   = "LAUNCHER_ROOT_PORT"

	EnvNUMAEnable      = "LAUNCHER_NUMA_ENABLE"
	EnvMultithreadCPU  = "LAUNCHER_MULTITHREAD_CPU"
	EnvDefaultQuota    = "LAUNCHER_NUMA_DEFAULT_QUOTA"
	EnvRootQuota       = "LAUNCHER_NUMA_ROOT_QUOTA"
	EnvVisibleCPUCores = "LAUNCHER_VISIBLE_CPU_CORES"
	EnvCPUBlacklist    = "LAUNCHER_CPU_BLACKLIST"

	EnvLogFile          = "LAUNCHER_LOG_FILE"
	EnvEnableGDB        = "LAUNCHER_ENABLE_GDB"
	EnvForceJoint       = "LAUNCHER_FORCE_JOINT_MODE"
	EnvForceDistributed = "LAUNCHER_FORCE_DISTRIBUTED"
	EnvServerCommand    = "LAUNCHER_SERVER_COMMAND"
	EnvRDMASourceAddrs  = "LAUNCHER_RDMA_SOURCE_ADDRESS"

	EnvTraceOn        = "LAUNCHER_TRACE_ON"
	EnvTraceDir       = "LAUNCHER_TRACE_DIR"
	EnvTraceStartStep = "LAUNCHER_TRACE_START_STEP"
	EnvTraceEndStep   = "LAUNCHER_TRACE_END_STEP"

	// EnvGPUVisibleDevices follows the container runtime convention; the
	// length of the list fixes the local worker count.
	EnvGPUVisibleDevices = "NVIDIA_VISIBLE_DEVICES"
)

// Environment variables set on spawned ranks.
const (
	EnvLocalRank  = "LAUNCHER_LOCAL_RANK"
	EnvWorkerID   = "LAUNCHER_WORKER_ID"
	EnvRank       = "LAUNCHER_RANK"
	EnvGlobalRank = "LAUNCHER_GLOBAL_RANK"
)

// Config is the launcher configuration, read once from the environment.
type Config struct {
	Role       Role
	NodeID     int
	LocalSize  int
	NumNodes   int
	NumWorkers int

	NUMAEnable      bool
	MultithreadCPU  bool
	DefaultQuota    int
	RootQuota       int
	VisibleCPUCores string
	CPUBlacklist    string

	LogFilePrefix    string
	EnableGDB        bool
	ForceJoint       bool
	ForceDistributed bool
	ServerCommand    string

	GPUVisibleDevices []string
	RDMASourceAddrs   []string

	TraceOn        bool
	TraceDir       string
	TraceStartStep string
	TraceEndStep   string
}

// FromEnv reads the launcher configuration. Malformed values (a bad role,
// a non-numeric count) are reported all together; missing required values
// are the business of Validate.
func FromEnv() (*Config, error) {
	var errs error

	cfg := &Config{
		NUMAEnable:      envBool(EnvNUMAEnable, true),
		MultithreadCPU:  envBool(EnvMultithreadCPU, true),
		VisibleCPUCores: strings.TrimSpace(os.Getenv(EnvVisibleCPUCores)),
		CPUBlacklist:    os.Getenv(EnvCPUBlacklist),

		LogFilePrefix:    os.Getenv(EnvLogFile),
		EnableGDB:        envBool(EnvEnableGDB, false),
		ForceJoint:       envBool(EnvForceJoint, false),
		ForceDistributed: envBool(EnvForceDistributed, false),
		ServerCommand:    os.Getenv(EnvServerCommand),

		GPUVisibleDevices: envList(EnvGPUVisibleDevices),
		RDMASourceAddrs:   envList(EnvRDMASourceAddrs),

		TraceOn:        envBool(EnvTraceOn, false),
		TraceDir:       os.Getenv(EnvTraceDir),
		TraceStartStep: os.Getenv(EnvTraceStartStep),
		TraceEndStep:   os.Getenv(EnvTraceEndStep),
	}

	role, err := ParseRole(os.Getenv(EnvRole))
	if err == nil {
		cfg.Role = role
	} else {
		errs = multierr.Append(errs, err)
	}

	for _, v := range []struct {
		name string
		dst  *int
	}{
		{EnvNodeID, &cfg.NodeID},
		{EnvLocalSize, &cfg.LocalSize},
		{EnvNumNodes, &cfg.NumNodes},
		{EnvNumWorkers, &cfg.NumWorkers},
		{EnvDefaultQuota, &cfg.DefaultQuota},
		{EnvRootQuota, &cfg.RootQuota},
	} {
		if raw := os.Getenv(v.name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "parsing %s", v.name))

				continue
			}

			*v.dst = n
		}
	}

	// Joint deployments number every local process as a worker. The
	// derived worker count applies to every role, so the scheduler and
	// servers see the same job size without an explicit setting.
	if cfg.ForceJoint {
		if cfg.Role == RoleWorker {
			cfg.Role = RoleJoint
		}

		cfg.NumWorkers = cfg.NumNodes * cfg.LocalSize
	}

	return cfg, errs
}

// Validate checks that every role-specific required value is present.
// All missing values are reported together; any of them is fatal and the
// launcher exits nonzero before any spawn.
func (c *Config) Validate() error {
	var errs error

	missing := func(name string) {
		errs = multierr.Append(errs, errors.Errorf("required environment variable %s is missing", name))
	}

	required := []string{EnvNumNodes, EnvLocalSize, EnvRole, EnvRootURI, EnvRootPort}

	if c.Role == RoleWorker || c.Role == RoleJoint {
		if c.NumWorkers < 1 {
			errs = multierr.Append(errs, errors.Errorf("%s must be set to at least 1", EnvNumWorkers))
		}

		// A single-worker job needs no rendezvous configuration.
		if c.NumWorkers == 1 {
			required = nil
		}

		required = append(required, EnvNodeID)
	}

	for _, name := range required {
		if _, ok := os.LookupEnv(name); !ok {
			missing(name)
		}
	}

	return errs
}

// WorkerLocalSize returns the number of local worker ranks, fixed by the
// GPU visibility list, defaulting to one.
func (c *Config) WorkerLocalSize() int {
	if len(c.GPUVisibleDevices) > 0 {
		return len(c.GPUVisibleDevices)
	}

	return 1
}

// RDMASourceAddr returns the RDMA source address for a local rank. A single
// configured address is shared by every rank.
func (c *Config) RDMASourceAddr(localRank int) string {
	switch {
	case len(c.RDMASourceAddrs) == 0:
		return ""
	case len(c.RDMASourceAddrs) == 1:
		return c.RDMASourceAddrs[0]
	case localRank < len(c.RDMASourceAddrs):
		return c.RDMASourceAddrs[localRank]
	}

	return ""
}

func envBool(name string, def bool) bool {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return def
	}

	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true":
		return true
	}

	return false
}

func envList(name string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}

	items := []string{}

	for item := range strings.SplitSeq(raw, ",") {
		items = append(items, strings.TrimSpace(item))
	}

	return items
}
