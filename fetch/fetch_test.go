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

package fetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/axle/database"
	"github.com/tomoncle/axle/types"
)

// stubRunner resolves each query after a configured delay, so completion
// order can be forced to differ from request order.
type stubRunner struct {
	delays    map[string]time.Duration
	failures  map[string]error
	started   atomic.Int64
	completed atomic.Int64
	inFlight  atomic.Int64
	maxSeen   atomic.Int64
}

func (s *stubRunner) QueryOne(ctx context.Context, op types.Operation) (*types.ResultSet, error) {
	s.started.Add(1)
	cur := s.inFlight.Add(1)
	for {
		seen := s.maxSeen.Load()
		if cur <= seen || s.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	defer s.inFlight.Add(-1)
	defer s.completed.Add(1)

	if d, ok := s.delays[op.Query]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := s.failures[op.Query]; ok {
		return nil, err
	}
	return &types.ResultSet{Columns: []string{"q"}, Rows: []types.Row{{op.Query}}}, nil
}

func ops(queries ...string) []types.Operation {
	out := make([]types.Operation, len(queries))
	for i, q := range queries {
		out[i] = types.NewOperation(q)
	}
	return out
}

func TestFetchAllPreservesRequestOrder(t *testing.T) {
	runner := &stubRunner{delays: map[string]time.Duration{
		"Q1": 60 * time.Millisecond,
		"Q2": 30 * time.Millisecond,
		"Q3": 0, // finishes first, returned last
	}}
	f := New(runner, database.FetcherConfig{})

	results, err := f.FetchAll(context.Background(), ops("Q1", "Q2", "Q3"))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Q1", results[0].Rows[0][0])
	assert.Equal(t, "Q2", results[1].Rows[0][0])
	assert.Equal(t, "Q3", results[2].Rows[0][0])
}

func TestFetchAllSurfacesError(t *testing.T) {
	boom := errors.New("Q2 failed")
	runner := &stubRunner{failures: map[string]error{"Q2": boom}}
	f := New(runner, database.FetcherConfig{})

	results, err := f.FetchAll(context.Background(), ops("Q1", "Q2", "Q3"))
	require.ErrorIs(t, err, boom)
	assert.Nil(t, results)
}

func TestFetchAllSiblingsRunToCompletionByDefault(t *testing.T) {
	boom := errors.New("Q1 failed fast")
	runner := &stubRunner{
		failures: map[string]error{"Q1": boom},
		delays:   map[string]time.Duration{"Q2": 40 * time.Millisecond, "Q3": 40 * time.Millisecond},
	}
	f := New(runner, database.FetcherConfig{})

	_, err := f.FetchAll(context.Background(), ops("Q1", "Q2", "Q3"))
	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 3, runner.completed.Load(), "siblings are not cancelled")
}

func TestFetchAllCancelOnError(t *testing.T) {
	boom := errors.New("Q1 failed fast")
	runner := &stubRunner{
		failures: map[string]error{"Q1": boom},
		delays:   map[string]time.Duration{"Q2": 5 * time.Second},
	}
	f := New(runner, database.FetcherConfig{CancelOnError: true})

	start := time.Now()
	_, err := f.FetchAll(context.Background(), ops("Q1", "Q2"))
	require.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), time.Second, "sibling is cancelled instead of running out its delay")
}

func TestFetchAllMaxConcurrency(t *testing.T) {
	runner := &stubRunner{delays: map[string]time.Duration{
		"Q1": 10 * time.Millisecond,
		"Q2": 10 * time.Millisecond,
		"Q3": 10 * time.Millisecond,
		"Q4": 10 * time.Millisecond,
	}}
	f := New(runner, database.FetcherConfig{MaxConcurrency: 2})

	_, err := f.FetchAll(context.Background(), ops("Q1", "Q2", "Q3", "Q4"))
	require.NoError(t, err)
	assert.LessOrEqual(t, runner.maxSeen.Load(), int64(2))
}

func TestFetchAllResultsReportsEachOutcome(t *testing.T) {
	boom := errors.New("Q2 failed")
	runner := &stubRunner{failures: map[string]error{"Q2": boom}}
	f := New(runner, database.FetcherConfig{})

	results := f.FetchAllResults(context.Background(), ops("Q1", "Q2", "Q3"))
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, "Q3", results[2].Set.Rows[0][0])
}

func TestFetchAllEmpty(t *testing.T) {
	f := New(&stubRunner{}, database.FetcherConfig{})
	results, err := f.FetchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
