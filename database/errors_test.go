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

package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	inner := errors.New("dial refused")

	cerr := &ConnectionError{Op: "acquire", Err: inner}
	assert.True(t, IsConnectionError(cerr))
	assert.True(t, IsConnectionError(fmt.Errorf("wrapped: %w", cerr)))
	assert.ErrorIs(t, cerr, inner)

	qerr := &QueryError{Query: "SELECT 1", Err: inner}
	assert.True(t, IsQueryError(qerr))
	assert.False(t, IsConnectionError(qerr))

	terr := &TransactionError{Op: "commit", Err: inner}
	assert.True(t, IsTransactionError(terr))
	assert.Nil(t, terr.OperationError())
}

func TestTransactionErrorRetainsOperationError(t *testing.T) {
	opErr := errors.New("update failed")
	rbErr := errors.New("rollback failed")

	terr := &TransactionError{Op: "rollback", Err: rbErr, Cause: opErr}
	require.ErrorIs(t, terr, rbErr)
	assert.Equal(t, opErr, terr.OperationError())
	assert.Contains(t, terr.Error(), "rollback failed")
	assert.Contains(t, terr.Error(), "update failed")
}

func TestIsSqlErrorSQLiteMessages(t *testing.T) {
	cases := []struct {
		msg  string
		kind SQLError
	}{
		{"SQL logic error: no such table: users (1)", NoTableErr},
		{"SQL logic error: no such column: emal (1)", NoColumnErr},
		{"constraint failed: UNIQUE constraint failed: users.id (1555)", DuplicateKeyErr},
		{"constraint failed: NOT NULL constraint failed: users.email (1299)", NotNullViolationErr},
		{"constraint failed: FOREIGN KEY constraint failed (787)", ForeignKeyViolationErr},
		{`SQL logic error: near "SELEC": syntax error (1)`, SyntaxErr},
	}
	for _, tc := range cases {
		is, kind := IsSqlError(errors.New(tc.msg))
		assert.True(t, is, tc.msg)
		assert.Equal(t, tc.kind, kind, tc.msg)
	}

	is, _ := IsSqlError(errors.New("something unrelated"))
	assert.False(t, is)
}
