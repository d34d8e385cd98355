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
	"reflect"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

const (
	ansiReset   = "\x1b[0m"
	ansiRed     = "\x1b[31m"
	ansiYellow  = "\x1b[33m"
	ansiGreen   = "\x1b[32m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
)

// Hooks run on query goroutines, so the flag must be safe to flip at runtime.
var querySilentMode atomic.Bool

// EnableQuerySilent suppresses all query hook output, e.g. in tests.
func EnableQuerySilent(b bool) {
	querySilentMode.Store(b)
}

func colorWrap(s, code string) string { return code + s + ansiReset }

// QueryHook logs every statement sent to the backing store, with its
// duration and any driver error.
type QueryHook struct {
	logger Logger
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook returns a Bun query hook writing to the given logger.
func NewQueryHook(logger Logger) *QueryHook {
	if logger == nil {
		logger = GetLogger()
	}
	return &QueryHook{logger: logger}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if querySilentMode.Load() || h.logger == nil {
		return
	}

	dur := time.Since(event.StartTime).Round(time.Microsecond)

	if event.Err != nil {
		switch {
		case errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
		default:
			typ := reflect.TypeOf(event.Err).String()
			h.logger.Error("Query failed:",
				"duration", dur,
				"query", formatOperationColor(event),
				"error", color.New(color.BgRed).Sprintf(" %s: %s ", typ, event.Err.Error()),
			)
			return
		}
	}

	h.logger.Debug("Executing query:", "duration", dur, "query", formatOperationColor(event))
}

func formatOperationColor(event *bun.QueryEvent) string {
	switch event.Operation() {
	case "SELECT":
		return colorWrap(event.Query, ansiGreen)
	case "INSERT":
		return colorWrap(event.Query, ansiBlue)
	case "UPDATE":
		return colorWrap(event.Query, ansiYellow)
	case "DELETE":
		return colorWrap(event.Query, ansiMagenta)
	default:
		return colorWrap(event.Query, ansiRed)
	}
}

type slowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

var _ bun.QueryHook = (*slowQueryHook)(nil)

func (h *slowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if querySilentMode.Load() || event.Err != nil {
		return
	}

	duration := time.Since(event.StartTime)
	if duration > h.slowTime && h.logger != nil {
		h.logger.Warn("Database slow query detected:",
			"duration", duration,
			"slow_threshold", h.slowTime,
			"query", event.Query,
		)
	}
}
