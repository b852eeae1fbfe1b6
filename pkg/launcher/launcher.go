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

// Package launcher spawns and supervises the local processes of one
// distributed training job, optionally binding each rank to a disjoint
// NUMA-aware CPU set.
package launcher

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/sergelogvinov/numa-launcher/pkg/cpumanager"
	"github.com/sergelogvinov/numa-launcher/pkg/cpumanager/topology"
	"github.com/sergelogvinov/numa-launcher/pkg/launcher/config"
)

// RunFunc executes one child command to completion. Swapped out in tests.
type RunFunc func(ctx context.Context, command string, env []string, stdout, stderr io.Writer) error

// Launcher derives per-rank environments and commands from the
// configuration and delegates lifecycle tracking to the supervisor.
type Launcher struct {
	cfg      *config.Config
	command  string
	numaPath string

	run RunFunc

	log logr.Logger
}

// New builds a launcher for the user command given as argv remainder.
func New(log logr.Logger, cfg *config.Config, numaPath string, args []string) *Launcher {
	return &Launcher{
		cfg:      cfg,
		command:  strings.Join(args, " "),
		numaPath: numaPath,
		run:      runShell,
		log:      log,
	}
}

// runShell executes one command through the shell. The child is not tied
// to the launcher's context: surviving ranks run to completion even after
// a sibling failure has already surfaced.
func runShell(_ context.Context, command string, env []string, stdout, stderr io.Writer) error {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	return cmd.Run()
}

// Run launches every process this host's role asks for and blocks until
// all of them finished or the first drained failure surfaces.
func (l *Launcher) Run(ctx context.Context) error {
	l.log.Info("launching", "role", l.cfg.Role)

	if l.cfg.Role == config.RoleWorker || l.cfg.Role == config.RoleJoint {
		return l.runWorkers(ctx)
	}

	// A single-worker job needs neither scheduler nor server unless
	// distributed execution is explicitly forced.
	if !l.cfg.ForceDistributed && l.cfg.NumWorkers <= 1 {
		l.log.Info("single worker job, nothing to launch for this role")

		return nil
	}

	if l.cfg.Role == config.RoleScheduler {
		return l.runScheduler(ctx)
	}

	// Joint workers already carry the server duty.
	if l.cfg.ForceJoint {
		l.log.Info("joint mode, server ranks are colocated with workers")

		return nil
	}

	return l.runServer(ctx)
}

func (l *Launcher) runWorkers(ctx context.Context) error {
	localSize := l.cfg.WorkerLocalSize()

	allocations, err := l.planAllocations(localSize)
	if err != nil {
		return err
	}

	specs := make([]rankSpec, localSize)

	for rank := range localSize {
		var alloc cpumanager.Allocation
		if rank < len(allocations) {
			alloc = allocations[rank]
		}

		spec, err := l.workerSpec(rank, localSize, alloc)
		if err != nil {
			return err
		}

		specs[rank] = spec
	}

	return NewSupervisor(l.log).Run(ctx, specs, l.spawn)
}

func (l *Launcher) runScheduler(ctx context.Context) error {
	overlay := []string{envServerVerbose + "=" + serverVerbosity()}

	if addr := l.cfg.RDMASourceAddr(0); addr != "" {
		overlay = append(overlay, envRDMASource+"="+addr)
	}

	spec := rankSpec{
		command: l.serverCommand(),
		overlay: overlay,
	}

	return NewSupervisor(l.log).Run(ctx, []rankSpec{spec}, l.spawn)
}

func (l *Launcher) runServer(ctx context.Context) error {
	spec := l.serverSpec(0)

	return NewSupervisor(l.log).Run(ctx, []rankSpec{spec}, l.spawn)
}

// planAllocations produces one allocation per local rank, all of them
// computed before any spawn. A nil result means every rank runs unbound:
// binding disabled, topology unsupported, or quota planning infeasible.
func (l *Launcher) planAllocations(localSize int) ([]cpumanager.Allocation, error) {
	if !l.cfg.NUMAEnable {
		return nil, nil
	}

	if l.cfg.VisibleCPUCores != "" {
		allocations, err := cpumanager.ParseRankCPUs(l.cfg.VisibleCPUCores)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", config.EnvVisibleCPUCores)
		}

		return allocations, nil
	}

	topo, err := topology.Discover(l.log, l.numaPath, l.cfg.MultithreadCPU)
	if err != nil {
		return nil, err
	}

	if topo.IsEmpty() {
		return nil, nil
	}

	plan, ok := cpumanager.PlanQuotas(
		topo.TotalCPUs(), topo.FirstNodeSize(), localSize,
		l.cfg.DefaultQuota, l.cfg.RootQuota, l.cfg.MultithreadCPU)
	if !ok {
		l.log.Info("CPU quota planning infeasible, launching unbound",
			"totalCPUs", topo.TotalCPUs(), "localSize", localSize)

		return nil, nil
	}

	l.log.V(1).Info("planned CPU quotas", "default", plan.Default, "root", plan.Root)

	blacklist, err := cpumanager.ParseBlacklist(l.cfg.CPUBlacklist)
	if err != nil {
		return nil, err
	}

	allocator := cpumanager.NewAllocator(l.log, topo, blacklist, l.cfg.MultithreadCPU)

	return allocator.AllocateAll(plan.Quotas()), nil
}

// spawn runs one rank's command with its environment overlay applied,
// redirecting stdio to the rank's log file pair when configured.
func (l *Launcher) spawn(ctx context.Context, spec rankSpec) error {
	if err := l.prepareTraceDir(spec.rank); err != nil {
		return err
	}

	stdout := io.Writer(os.Stdout)
	stderr := io.Writer(os.Stderr)

	if spec.stdoutPath != "" {
		stdoutFile, err := os.Create(spec.stdoutPath)
		if err != nil {
			return errors.Wrapf(err, "creating stdout log for rank %d", spec.rank)
		}
		defer stdoutFile.Close() //nolint:errcheck

		stderrFile, err := os.Create(spec.stderrPath)
		if err != nil {
			return errors.Wrapf(err, "creating stderr log for rank %d", spec.rank)
		}
		defer stderrFile.Close() //nolint:errcheck

		stdout = stdoutFile
		stderr = stderrFile
	}

	env := append(os.Environ(), spec.overlay...)

	l.log.V(1).Info("spawning", "rank", spec.rank, "command", spec.command)

	return l.run(ctx, spec.command, env, stdout, stderr)
}
