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
	"sync"

	"github.com/google/uuid"
	"github.com/tomoncle/axle/types"
	"github.com/uptrace/bun"
)

// Handle is one live connection to the backing store, exclusively owned by
// the unit of work it was acquired for. It transitions open→closed exactly
// once; Release is idempotent and never returns an error.
type Handle struct {
	id   string
	conn bun.Conn

	logger Logger

	mu         sync.Mutex
	closed     bool
	autocommit bool
}

// ID returns the handle's correlation identifier used in log output.
func (h *Handle) ID() string { return h.id }

// Conn exposes the underlying dedicated connection for callers that need
// the Bun query builders. The handle keeps ownership; do not close it.
func (h *Handle) Conn() bun.Conn { return h.conn }

// Closed reports whether the handle has been released.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Autocommit reports the handle's session mode. It is true unless a
// transaction coordinator holds a manual-commit override on the handle.
func (h *Handle) Autocommit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.autocommit
}

// pushManualCommit disables autocommit and returns a restore function that
// reinstates the prior mode. The coordinator defers the restore so the
// override cannot leak past the transaction on any exit path.
func (h *Handle) pushManualCommit() (restore func()) {
	h.mu.Lock()
	prev := h.autocommit
	h.autocommit = false
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		h.autocommit = prev
		h.mu.Unlock()
	}
}

// Query executes query text with bind args on this handle and snapshots the
// produced rows. Driver failures are reported as *QueryError.
func (h *Handle) Query(ctx context.Context, query string, args ...interface{}) (*types.ResultSet, error) {
	rows, err := h.conn.QueryContext(ctx, query, args...)
	if err != nil {
		_, kind := IsSqlError(err)
		return nil, &QueryError{Query: query, Kind: kind, Err: err}
	}
	rs, err := ScanRows(rows)
	if err != nil {
		_, kind := IsSqlError(err)
		return nil, &QueryError{Query: query, Kind: kind, Err: err}
	}
	return rs, nil
}

// Exec executes a statement on this handle and returns the affected row
// count. Driver failures are reported as *QueryError.
func (h *Handle) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := h.conn.ExecContext(ctx, query, args...)
	if err != nil {
		_, kind := IsSqlError(err)
		return 0, &QueryError{Query: query, Kind: kind, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report the count; the statement itself succeeded.
		return 0, nil
	}
	return affected, nil
}

// Release closes the underlying connection. It is safe to call more than
// once; close errors are logged, never propagated, so they cannot mask the
// operation's own error.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	if err := h.conn.Close(); err != nil && h.logger != nil {
		h.logger.Error("Failed to release connection", "handle", h.id, "error", err)
	} else if h.logger != nil {
		h.logger.Debug("Connection released", "handle", h.id)
	}
}

// Scope acquires one dedicated connection per unit of work and guarantees
// its release on every exit path.
type Scope struct {
	db     *bun.DB
	logger Logger
}

// NewScope returns a connection scope over the given database.
func NewScope(db *bun.DB) *Scope {
	return &Scope{db: db, logger: GetLogger()}
}

// NewScopeWithLogger returns a connection scope writing to a custom logger.
func NewScopeWithLogger(db *bun.DB, logger Logger) *Scope {
	if logger == nil {
		logger = GetLogger()
	}
	return &Scope{db: db, logger: logger}
}

// Acquire opens a dedicated connection and wraps it in a Handle. Callers
// that use Acquire directly own the release; prefer Run.
func (s *Scope) Acquire(ctx context.Context) (*Handle, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "acquire", Err: err}
	}
	h := &Handle{
		id:         uuid.NewString(),
		conn:       conn,
		logger:     s.logger,
		autocommit: true,
	}
	s.logger.Debug("Connection acquired", "handle", h.id)
	return h, nil
}

// Run acquires a handle, invokes fn with it, and releases the handle before
// returning, whether fn succeeds or fails.
func (s *Scope) Run(ctx context.Context, fn func(ctx context.Context, h *Handle) error) error {
	h, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(ctx, h)
}

// QueryOne runs a single read operation in its own scope: acquire, query,
// release.
func (s *Scope) QueryOne(ctx context.Context, op types.Operation) (*types.ResultSet, error) {
	return RunWith(ctx, s, func(ctx context.Context, h *Handle) (*types.ResultSet, error) {
		return h.Query(ctx, op.Query, op.Args...)
	})
}

// RunWith is the typed variant of Scope.Run for operations that produce a
// result.
func RunWith[T any](ctx context.Context, s *Scope, fn func(ctx context.Context, h *Handle) (T, error)) (T, error) {
	var zero T
	h, err := s.Acquire(ctx)
	if err != nil {
		return zero, err
	}
	defer h.Release()
	return fn(ctx, h)
}
