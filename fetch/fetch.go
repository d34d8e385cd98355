/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package fetch runs independent read operations concurrently, each on its
// own dedicated connection, and aggregates their results in request order.
package fetch

import (
	"context"

	"github.com/tomoncle/axle/database"
	"github.com/tomoncle/axle/types"
	"golang.org/x/sync/errgroup"
)

// Runner executes one read operation in its own connection scope.
// *database.Scope satisfies it.
type Runner interface {
	QueryOne(ctx context.Context, op types.Operation) (*types.ResultSet, error)
}

var _ Runner = (*database.Scope)(nil)

// Result pairs one request's outcome with its position in the request
// sequence.
type Result struct {
	Index int
	Set   *types.ResultSet
	Err   error
}

// Fetcher fans out read operations. By default a failing request does not
// cancel its in-flight siblings; their side effects still occur. Set
// CancelOnError in the config to propagate cancellation instead.
type Fetcher struct {
	runner Runner
	cfg    database.FetcherConfig
}

// New returns a fetcher that runs each operation through runner.
func New(runner Runner, cfg database.FetcherConfig) *Fetcher {
	return &Fetcher{runner: runner, cfg: cfg}
}

// FetchAll runs every request concurrently and blocks until each one has
// produced a result or failed. The returned slice is aligned by request
// index, not by completion order. If any request fails, the first error is
// returned and the result slice is nil.
func (f *Fetcher) FetchAll(ctx context.Context, requests []types.Operation) ([]*types.ResultSet, error) {
	results := make([]*types.ResultSet, len(requests))

	g, runCtx := f.group(ctx)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			rs, err := f.runner.QueryOne(runCtx, req)
			if err != nil {
				return err
			}
			results[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// FetchAllResults runs every request concurrently and reports each outcome
// individually, index-aligned, without failing the batch.
func (f *Fetcher) FetchAllResults(ctx context.Context, requests []types.Operation) []Result {
	results := make([]Result, len(requests))

	g, runCtx := f.group(ctx)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			rs, err := f.runner.QueryOne(runCtx, req)
			results[i] = Result{Index: i, Set: rs, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (f *Fetcher) group(ctx context.Context) (*errgroup.Group, context.Context) {
	var g *errgroup.Group
	if f.cfg.CancelOnError {
		g, ctx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}
	if f.cfg.MaxConcurrency > 0 {
		g.SetLimit(f.cfg.MaxConcurrency)
	}
	return g, ctx
}
