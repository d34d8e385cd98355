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
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/axle/types"
)

func emailOfUser2(t *testing.T, scope *Scope) string {
	t.Helper()
	set, err := scope.QueryOne(context.Background(), types.NewOperation(`SELECT email FROM users WHERE id = ?`, 2))
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	return asString(set.Rows[0][0])
}

func TestRunInTxCommit(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db)
	scope := NewScope(db)
	coord := NewCoordinator()

	err := scope.Run(context.Background(), func(ctx context.Context, h *Handle) error {
		txc, err := coord.RunInTx(ctx, h, nil, func(ctx context.Context, txc *TxContext) error {
			_, err := txc.Tx().ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, "new@x.com", 2)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, TxCommitted, txc.State())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", emailOfUser2(t, scope))
}

func TestRunInTxRollbackOnError(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db)
	scope := NewScope(db)
	coord := NewCoordinator()

	injected := errors.New("injected failure before commit")
	err := scope.Run(context.Background(), func(ctx context.Context, h *Handle) error {
		txc, err := coord.RunInTx(ctx, h, nil, func(ctx context.Context, txc *TxContext) error {
			if _, err := txc.Tx().ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, "new@x.com", 2); err != nil {
				return err
			}
			return injected
		})
		assert.Equal(t, TxRolledBack, txc.State())
		return err
	})

	// The injected error comes back unchanged, and the write is gone.
	require.ErrorIs(t, err, injected)
	assert.False(t, IsTransactionError(err))
	assert.Equal(t, "old@x.com", emailOfUser2(t, scope))
}

func TestRunInTxRestoresAutocommit(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db)
	scope := NewScope(db)
	coord := NewCoordinator()

	_ = scope.Run(context.Background(), func(ctx context.Context, h *Handle) error {
		require.True(t, h.Autocommit())

		_, err := coord.RunInTx(ctx, h, nil, func(ctx context.Context, txc *TxContext) error {
			assert.False(t, h.Autocommit())
			return nil
		})
		require.NoError(t, err)
		assert.True(t, h.Autocommit())

		// Error path restores the mode as well.
		_, err = coord.RunInTx(ctx, h, nil, func(ctx context.Context, txc *TxContext) error {
			return errors.New("fail")
		})
		require.Error(t, err)
		assert.True(t, h.Autocommit())
		return nil
	})
}

func TestRunInTxBeginFailure(t *testing.T) {
	db := newTestDB(t)
	scope := NewScope(db)
	coord := NewCoordinator()

	h, err := scope.Acquire(context.Background())
	require.NoError(t, err)
	h.Release()

	_, err = coord.RunInTx(context.Background(), h, nil, func(ctx context.Context, txc *TxContext) error {
		t.Fatal("operation must not run when begin fails")
		return nil
	})
	require.Error(t, err)
	assert.True(t, IsTransactionError(err))

	var terr *TransactionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "begin", terr.Op)
}

// When rollback itself fails the TransactionError wins, the operation error
// survives as Cause, and the context stays ACTIVE: nothing can vouch for the
// data anymore.
func TestRunInTxRollbackFailurePrecedence(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db)
	scope := NewScope(db)
	coord := NewCoordinator()

	opErr := errors.New("operation failed mid-transaction")
	_ = scope.Run(context.Background(), func(ctx context.Context, h *Handle) error {
		txc, err := coord.RunInTx(ctx, h, nil, func(ctx context.Context, txc *TxContext) error {
			// The body tears the transaction down itself, so the
			// coordinator's own rollback hits sql.ErrTxDone.
			require.NoError(t, txc.Tx().Rollback())
			return opErr
		})
		require.True(t, IsTransactionError(err))

		var terr *TransactionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "rollback", terr.Op)
		assert.ErrorIs(t, terr.Err, sql.ErrTxDone)
		assert.ErrorIs(t, terr.OperationError(), opErr)
		assert.Equal(t, TxActive, txc.State())
		return nil
	})
}

func TestRunInTxCommitFailure(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db)
	scope := NewScope(db)
	coord := NewCoordinator()

	_ = scope.Run(context.Background(), func(ctx context.Context, h *Handle) error {
		txc, err := coord.RunInTx(ctx, h, nil, func(ctx context.Context, txc *TxContext) error {
			return txc.Tx().Commit()
		})
		require.True(t, IsTransactionError(err))

		var terr *TransactionError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "commit", terr.Op)
		assert.ErrorIs(t, terr.Err, sql.ErrTxDone)
		assert.NoError(t, terr.OperationError())
		assert.Equal(t, TxActive, txc.State())
		return nil
	})
}

func TestRunInTxSequentialTxOnOneHandle(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db)
	scope := NewScope(db)
	coord := NewCoordinator()

	err := scope.Run(context.Background(), func(ctx context.Context, h *Handle) error {
		for _, email := range []string{"first@x.com", "second@x.com"} {
			email := email
			_, err := coord.RunInTx(ctx, h, nil, func(ctx context.Context, txc *TxContext) error {
				_, err := txc.Tx().ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, email, 2)
				return err
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "second@x.com", emailOfUser2(t, scope))
}

// Transactions issued through the generic bun surface must see the
// coordinator's commits.
func TestRunInTxVisibleToBun(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db)
	scope := NewScope(db)
	coord := NewCoordinator()

	err := scope.Run(context.Background(), func(ctx context.Context, h *Handle) error {
		_, err := coord.RunInTx(ctx, h, nil, func(ctx context.Context, txc *TxContext) error {
			_, err := txc.Tx().ExecContext(ctx, `DELETE FROM users WHERE id = ?`, 1)
			return err
		})
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.NewSelect().Table("users").ColumnExpr("count(*)").Scan(context.Background(), &count))
	assert.Equal(t, 1, count)
}
