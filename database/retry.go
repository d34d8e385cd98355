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
	"time"
)

// Retry invokes fn up to cfg.MaxAttempts times, sleeping cfg.Delay between
// attempts, and returns the last error when all attempts fail. It is an
// explicit wrapper a caller composes around a unit of work; no layer applies
// it implicitly.
func Retry(ctx context.Context, cfg RetryConfig, logger Logger, fn func(ctx context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	if logger == nil {
		logger = GetLogger()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		logger.Warn("Operation attempt failed", "attempt", attempt, "max_attempts", attempts, "error", lastErr)
		if attempt == attempts {
			break
		}
		if cfg.Delay > 0 {
			select {
			case <-time.After(cfg.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
