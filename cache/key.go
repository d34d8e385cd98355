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
	"fmt"
	"strings"

	"github.com/tomoncle/axle/types"
)

// Key identifies a memoized result. It covers the normalized query text and
// the full ordered, type-tagged parameter tuple: the same query text bound
// to different parameters (or the same values with different types) yields
// distinct keys. The full identity is kept rather than a digest so distinct
// operations can never collide.
type Key string

// NewKey derives the cache key for query text and its bind parameters.
func NewKey(query string, args ...interface{}) Key {
	var b strings.Builder
	b.WriteString(normalizeQuery(query))
	for _, a := range args {
		fmt.Fprintf(&b, "\x1f%T=%v", a, a)
	}
	return Key(b.String())
}

// KeyFor derives the cache key for an operation descriptor.
func KeyFor(op types.Operation) Key {
	return NewKey(op.Query, op.Args...)
}

// normalizeQuery collapses runs of whitespace so trivially reformatted
// queries share an identity.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
