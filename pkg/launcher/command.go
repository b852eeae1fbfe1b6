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

package launcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/sergelogvinov/numa-launcher/pkg/cpumanager"
	"github.com/sergelogvinov/numa-launcher/pkg/launcher/config"
	"github.com/sergelogvinov/numa-launcher/pkg/utils/sys"
)

const (
	envServerVerbose = "LAUNCHER_SERVER_VERBOSE"
	envRDMASource    = config.EnvRDMASourceAddrs
)

// rankSpec is everything needed to spawn one local rank: the final command
// line, the environment overlay, and the optional log file pair. All of it
// is derived before any spawn, so log association and rank numbering are
// deterministic regardless of completion order.
type rankSpec struct {
	rank    int
	command string
	overlay []string

	stdoutPath string
	stderrPath string
}

// workerSpec derives the spawn spec for one worker rank.
func (l *Launcher) workerSpec(rank, localSize int, alloc cpumanager.Allocation) (rankSpec, error) {
	if l.command == "" {
		return rankSpec{}, errors.New("no command to launch, pass it after --")
	}

	globalRank := l.cfg.NodeID*localSize + rank

	// Joint deployments number every local process; legacy worker
	// numbering identifies the node only.
	workerID := l.cfg.NodeID
	if l.cfg.Role == config.RoleJoint {
		workerID = globalRank
	}

	overlay := []string{
		config.EnvLocalRank + "=" + strconv.Itoa(rank),
		config.EnvLocalSize + "=" + strconv.Itoa(localSize),
		config.EnvWorkerID + "=" + strconv.Itoa(workerID),
		config.EnvRank + "=" + strconv.Itoa(workerID),
		config.EnvGlobalRank + "=" + strconv.Itoa(globalRank),
	}

	if addr := l.cfg.RDMASourceAddr(rank); addr != "" {
		overlay = append(overlay, envRDMASource+"="+addr)
	}

	spec := rankSpec{
		rank:    rank,
		command: l.bindCommand(rank, l.debugCommand(l.command), alloc),
		overlay: overlay,
	}

	if l.cfg.LogFilePrefix != "" {
		spec.stdoutPath = fmt.Sprintf("%s-g%d-l%d-stdout.log", l.cfg.LogFilePrefix, globalRank, rank)
		spec.stderrPath = fmt.Sprintf("%s-g%d-l%d-stderr.log", l.cfg.LogFilePrefix, globalRank, rank)
	}

	return spec, nil
}

// serverSpec derives the spawn spec for a non-colocated server rank.
// Servers carry no rank of their own on the worker numbering axis.
func (l *Launcher) serverSpec(rank int) rankSpec {
	overlay := []string{
		config.EnvLocalRank + "=" + strconv.Itoa(rank),
		config.EnvRank + "=-1",
	}

	if addr := l.cfg.RDMASourceAddr(rank); addr != "" {
		overlay = append(overlay, envRDMASource+"="+addr)
	}

	return rankSpec{
		rank:    rank,
		command: l.debugCommand(l.serverCommand()),
		overlay: overlay,
	}
}

// serverCommand resolves what servers and the scheduler execute: the
// configured server command, falling back to the user command.
func (l *Launcher) serverCommand() string {
	if l.cfg.ServerCommand != "" {
		return l.cfg.ServerCommand
	}

	return l.command
}

func serverVerbosity() string {
	if v := os.Getenv(envServerVerbose); v != "" {
		return v
	}

	return "1"
}

// debugCommand wraps the command in a batch debugger session so a crash
// leaves a backtrace in the rank's log.
func (l *Launcher) debugCommand(command string) string {
	if !l.cfg.EnableGDB {
		return command
	}

	return "gdb -ex 'run' -ex 'bt' -batch --args " + command
}

// bindCommand prefixes the command with the host affinity utility for a
// non-empty allocation. A missing utility downgrades to an unbound launch
// with a warning.
func (l *Launcher) bindCommand(rank int, command string, alloc cpumanager.Allocation) string {
	if alloc.IsEmpty() {
		return command
	}

	prefix, ok := sys.AffinityPrefix(alloc.CPUList())
	if !ok {
		l.log.Info("affinity utility not found, running unbound", "rank", rank)

		return command
	}

	l.log.Info("binding rank to CPUs", "rank", rank, "cpus", alloc.CPUList())

	return prefix + " " + command
}

// prepareTraceDir creates the rank's profiling directory when tracing is
// enabled.
func (l *Launcher) prepareTraceDir(rank int) error {
	if !l.cfg.TraceOn {
		return nil
	}

	dir := l.cfg.TraceDir
	if dir == "" {
		dir = "."
	}

	path := filepath.Join(dir, strconv.Itoa(rank))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "creating trace directory for rank %d", rank)
	}

	l.log.V(1).Info("profiling enabled", "rank", rank, "traceDir", path,
		"startStep", l.cfg.TraceStartStep, "endStep", l.cfg.TraceEndStep)

	return nil
}
