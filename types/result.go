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

// Row is one row of a result set: column values in select order, typed
// however the backing store returned them.
type Row []interface{}

// ResultSet is an ordered snapshot of the rows produced by one query.
// Instances stored in the query cache are treated as immutable; callers
// that need to mutate rows should work on a Clone.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Empty reports whether the result set holds no rows.
func (rs *ResultSet) Empty() bool { return rs.Len() == 0 }

// Clone returns a copy whose row and column slices are independent of the
// receiver. Column values themselves are shared.
func (rs *ResultSet) Clone() *ResultSet {
	if rs == nil {
		return nil
	}
	out := &ResultSet{
		Columns: append([]string(nil), rs.Columns...),
		Rows:    make([]Row, len(rs.Rows)),
	}
	for i, row := range rs.Rows {
		out.Rows[i] = append(Row(nil), row...)
	}
	return out
}
