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

	"github.com/uptrace/bun"
)

// TxState tags the lifecycle of a demarcated transaction.
type TxState int

const (
	TxActive TxState = iota
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "ACTIVE"
	case TxCommitted:
		return "COMMITTED"
	case TxRolledBack:
		return "ROLLED_BACK"
	default:
		return "UNKNOWN"
	}
}

// TxContext records one transactional unit of work. It is associated 1:1
// with the handle it was begun on and never outlives it.
type TxContext struct {
	handle *Handle
	tx     bun.Tx
	state  TxState
}

// Tx returns the live transaction for issuing statements.
func (t *TxContext) Tx() bun.Tx { return t.tx }

// Handle returns the connection handle the transaction runs on.
func (t *TxContext) Handle() *Handle { return t.handle }

// State returns the transaction's outcome tag. A TxContext whose commit
// failed stays ACTIVE: the data's final state is unknown.
func (t *TxContext) State() TxState { return t.state }

// TxFunc is the body of a transactional unit of work. Statements must go
// through txc.Tx() so they join the transaction.
type TxFunc func(ctx context.Context, txc *TxContext) error

// Coordinator demarcates transactions on an already-acquired handle. It
// never opens or closes the connection itself; compose it inside a Scope.
type Coordinator struct {
	logger Logger
}

// NewCoordinator returns a transaction coordinator using the global logger.
func NewCoordinator() *Coordinator {
	return &Coordinator{logger: GetLogger()}
}

// NewCoordinatorWithLogger returns a coordinator writing to a custom logger.
func NewCoordinatorWithLogger(logger Logger) *Coordinator {
	if logger == nil {
		logger = GetLogger()
	}
	return &Coordinator{logger: logger}
}

// RunInTx wraps fn in BEGIN/COMMIT/ROLLBACK on the given handle:
//
//   - the handle's autocommit mode is captured, disabled, and restored on
//     every exit path;
//   - fn's error is re-returned unchanged after a successful rollback;
//   - begin, commit, or rollback failures are reported as *TransactionError
//     and take precedence over fn's own error, which is retained as context
//     and logged.
//
// The returned TxContext records the final state for the caller.
func (c *Coordinator) RunInTx(ctx context.Context, h *Handle, opts *sql.TxOptions, fn TxFunc) (*TxContext, error) {
	restore := h.pushManualCommit()
	defer restore()

	tx, err := h.conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, &TransactionError{Op: "begin", Err: err}
	}

	txc := &TxContext{handle: h, tx: tx, state: TxActive}

	if err := fn(ctx, txc); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("Rollback failed, data state unknown",
				"handle", h.id, "rollback_error", rbErr, "operation_error", err)
			return txc, &TransactionError{Op: "rollback", Err: rbErr, Cause: err}
		}
		txc.state = TxRolledBack
		c.logger.Debug("Transaction rolled back", "handle", h.id, "error", err)
		return txc, err
	}

	if err := tx.Commit(); err != nil {
		c.logger.Error("Commit failed, data state unknown", "handle", h.id, "error", err)
		return txc, &TransactionError{Op: "commit", Err: err}
	}
	txc.state = TxCommitted
	c.logger.Debug("Transaction committed", "handle", h.id)
	return txc, nil
}
