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
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// SpawnFunc runs one rank's spawn-and-wait sequence.
type SpawnFunc func(ctx context.Context, spec rankSpec) error

// result is one rank's completion, delivered over the supervisor channel
// in finishing order.
type result struct {
	rank int
	err  error
}

// Supervisor runs one monitoring goroutine per rank and drains completions
// in arrival order. The first drained failure aborts the join loop; ranks
// not yet drained keep running in the background, they are never cancelled.
type Supervisor struct {
	log logr.Logger
}

// NewSupervisor returns a supervisor logging through log.
func NewSupervisor(log logr.Logger) *Supervisor {
	return &Supervisor{log: log}
}

// Run spawns every spec concurrently and blocks until all ranks are
// drained or a drained rank reports a failure. The channel is buffered for
// the full rank count, so late finishers can always deliver their result
// and the join loop can never deadlock.
func (s *Supervisor) Run(ctx context.Context, specs []rankSpec, spawn SpawnFunc) error {
	results := make(chan result, len(specs))

	for _, spec := range specs {
		go func() {
			results <- result{rank: spec.rank, err: spawn(ctx, spec)}
		}()
	}

	for range specs {
		res := <-results
		if res.err != nil {
			return errors.Wrapf(res.err, "local rank %d failed", res.rank)
		}

		s.log.Info("joined local rank", "rank", res.rank)
	}

	return nil
}
