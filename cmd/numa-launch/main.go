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

// Package main implements numa-launch, the NUMA-aware launcher for the
// local processes of a distributed training job.
package main

import (
	"context"
	"fmt"
	"os"

	cobra "github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sergelogvinov/numa-launcher/pkg/cpumanager/topology"
	"github.com/sergelogvinov/numa-launcher/pkg/launcher"
	"github.com/sergelogvinov/numa-launcher/pkg/launcher/config"

	"sigs.k8s.io/karpenter/pkg/utils/env"
)

const (
	verbosityEnvVarName = "VERBOSITY"
	verbosityFlagName   = "verbosity"

	numaPathEnvVarName = "NUMA_PATH"
	numaPathFlagName   = "numa-path"
)

var (
	command = "numa-launch"
	version = "v0.0.0"
	commit  = "none"
)

func main() {
	if exitCode := run(); exitCode != 0 {
		os.Exit(exitCode)
	}
}

type launchCmd struct {
	verbosity int
	numaPath  string
}

func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &launchCmd{}

	cmd := cobra.Command{
		Use:     command + " [flags] -- command [args...]",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Short:   "Launch and supervise the local processes of a distributed training job",
		Long: "numa-launch reads its configuration from LAUNCHER_* environment variables,\n" +
			"binds each local rank to a disjoint NUMA-aware CPU set and supervises the\n" +
			"spawned processes until completion or first failure.",
		Args:          cobra.ArbitraryArgs,
		RunE:          c.runLaunch,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c.registerFlags(cmd.Flags())

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)

		return 1
	}

	return 0
}

func (c *launchCmd) registerFlags(flags *pflag.FlagSet) {
	flags.IntVarP(&c.verbosity, verbosityFlagName, "v",
		env.WithDefaultInt(verbosityEnvVarName, 0), "Verbosity level (0=info, 1=debug, -1=errors only)")
	flags.StringVar(&c.numaPath, numaPathFlagName,
		env.WithDefaultString(numaPathEnvVarName, topology.DefaultNUMAPath), "Path of the sysfs NUMA hierarchy")
}

func (c *launchCmd) runLaunch(cmd *cobra.Command, args []string) error {
	logger := setupLogger(c.verbosity)
	logger.Info("NUMA launcher", "version", version, "verbosity", c.verbosity)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error(err, "Invalid configuration")

		return err
	}

	if err := cfg.Validate(); err != nil {
		logger.Error(err, "Missing required configuration")

		return err
	}

	return launcher.New(logger, cfg, c.numaPath, args).Run(cmd.Context())
}
