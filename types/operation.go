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

package types

import (
	"fmt"
	"strings"
)

// Operation describes one unit of work against the backing store: opaque
// query text plus its ordered bind parameters. The middleware never parses
// or validates the query language itself.
type Operation struct {
	Query string
	Args  []interface{}
}

// NewOperation builds an operation descriptor from query text and bind args.
func NewOperation(query string, args ...interface{}) Operation {
	return Operation{Query: query, Args: args}
}

// String renders the operation for logging. Bind values are included as-is;
// callers logging sensitive parameters should log op.Query instead.
func (op Operation) String() string {
	if len(op.Args) == 0 {
		return op.Query
	}
	parts := make([]string, len(op.Args))
	for i, a := range op.Args {
		parts[i] = fmt.Sprintf("%v", a)
	}
	return fmt.Sprintf("%s [%s]", op.Query, strings.Join(parts, ", "))
}
