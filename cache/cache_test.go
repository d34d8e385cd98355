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

package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/axle/types"
)

func userRows() *types.ResultSet {
	return &types.ResultSet{
		Columns: []string{"id", "email"},
		Rows:    []types.Row{{int64(1), "alice@x.com"}, {int64(2), "old@x.com"}},
	}
}

func TestKeyCoversParameters(t *testing.T) {
	base := NewKey("SELECT * FROM users WHERE id = ?", 1)

	assert.NotEqual(t, base, NewKey("SELECT * FROM users WHERE id = ?", 2), "different values must differ")
	assert.NotEqual(t, base, NewKey("SELECT * FROM users WHERE id = ?", "1"), "different types must differ")
	assert.NotEqual(t, base, NewKey("SELECT * FROM users WHERE id = ?"), "missing parameter must differ")
	assert.NotEqual(t,
		NewKey("SELECT * FROM users WHERE a = ? AND b = ?", 1, 2),
		NewKey("SELECT * FROM users WHERE a = ? AND b = ?", 2, 1),
		"parameter order must matter")

	assert.Equal(t, base, NewKey("SELECT  *  FROM users\n\tWHERE id = ?", 1), "whitespace reformatting shares identity")
	assert.Equal(t, base, KeyFor(types.NewOperation("SELECT * FROM users WHERE id = ?", 1)))
}

func TestGetOrComputeMemoizes(t *testing.T) {
	c := New()
	key := NewKey("SELECT * FROM users")

	calls := 0
	compute := func() (*types.ResultSet, error) {
		calls++
		return userRows(), nil
	}

	first, err := c.GetOrCompute(key, compute)
	require.NoError(t, err)
	second, err := c.GetOrCompute(key, compute)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "compute runs exactly once")
	assert.Same(t, first, second, "hit replays the stored snapshot")
	assert.Equal(t, 2, second.Len())

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestDistinctParametersComputeIndependently(t *testing.T) {
	c := New()

	calls := 0
	computeFor := func(rs *types.ResultSet) Compute {
		return func() (*types.ResultSet, error) {
			calls++
			return rs, nil
		}
	}

	all := userRows()
	one := &types.ResultSet{Columns: []string{"id", "email"}, Rows: []types.Row{{int64(2), "old@x.com"}}}

	got, err := c.GetOrCompute(NewKey("SELECT * FROM users WHERE id = ?", 1), computeFor(all))
	require.NoError(t, err)
	assert.Same(t, all, got)

	got, err = c.GetOrCompute(NewKey("SELECT * FROM users WHERE id = ?", 2), computeFor(one))
	require.NoError(t, err)
	assert.Same(t, one, got)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, c.Len())
}

func TestComputeErrorIsNotMemoized(t *testing.T) {
	c := New()
	key := NewKey("SELECT * FROM users")
	boom := errors.New("query failed")

	calls := 0
	_, err := c.GetOrCompute(key, func() (*types.ResultSet, error) {
		calls++
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Contains(key), "failed compute must not poison the key")
	assert.Equal(t, 0, c.Len())

	got, err := c.GetOrCompute(key, func() (*types.ResultSet, error) {
		calls++
		return userRows(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "the key is recomputed after a failure")
	assert.Equal(t, 2, got.Len())
}

func TestClear(t *testing.T) {
	c := New()
	key := NewKey("SELECT 1")

	_, err := c.GetOrCompute(key, func() (*types.ResultSet, error) { return userRows(), nil })
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Contains(key))

	_, ok := c.Get(key)
	assert.False(t, ok)
}
