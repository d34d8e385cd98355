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
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ConnectionError reports a failure to acquire or terminate a connection to
// the backing store. It is surfaced to the caller and never retried
// implicitly.
type ConnectionError struct {
	Op  string // "acquire" or "release"
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError reports that the backing store rejected or failed to execute a
// query. Inside a transaction it triggers a rollback; the error itself is
// surfaced unchanged.
type QueryError struct {
	Query string
	Kind  SQLError
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v: %s", e.Err, e.Query)
}

func (e *QueryError) Unwrap() error { return e.Err }

// TransactionError reports that begin, commit, or rollback itself failed.
// It takes precedence over the operation's own error because it leaves the
// data's final state ambiguous: Cause retains the suppressed operation error
// when both occurred.
type TransactionError struct {
	Op    string // "begin", "commit" or "rollback"
	Err   error
	Cause error
}

func (e *TransactionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transaction %s failed: %v (operation error: %v)", e.Op, e.Err, e.Cause)
	}
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// OperationError returns the operation error suppressed by this transaction
// failure, if any.
func (e *TransactionError) OperationError() error { return e.Cause }

// IsConnectionError reports whether err is (or wraps) a ConnectionError.
func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsQueryError reports whether err is (or wraps) a QueryError.
func IsQueryError(err error) bool {
	var target *QueryError
	return errors.As(err, &target)
}

// IsTransactionError reports whether err is (or wraps) a TransactionError.
func IsTransactionError(err error) bool {
	var target *TransactionError
	return errors.As(err, &target)
}

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoTableErr
	NoColumnErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	SyntaxErr
)

// IsSqlError classifies a driver-level error across the supported dialects.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1054:
			return true, NoColumnErr
		case 1062:
			return true, DuplicateKeyErr
		case 1048:
			return true, NotNullViolationErr
		case 1146:
			return true, NoTableErr
		case 1216, 1217, 1451, 1452:
			return true, ForeignKeyViolationErr
		case 3819:
			return true, CheckConstraintViolationErr
		case 1064:
			return true, SyntaxErr
		default:
			return true, UnknownErr
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42703":
			return true, NoColumnErr
		case "42P01":
			return true, NoTableErr
		case "23505":
			return true, DuplicateKeyErr
		case "23502":
			return true, NotNullViolationErr
		case "23503":
			return true, ForeignKeyViolationErr
		case "23514":
			return true, CheckConstraintViolationErr
		case "42601":
			return true, SyntaxErr
		default:
			return true, UnknownErr
		}
	}

	// SQLite (and other drivers) only expose message text.
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "unique constraint failed"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not null constraint failed"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key constraint failed"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint failed"):
		return true, CheckConstraintViolationErr
	case strings.Contains(s, "syntax error"):
		return true, SyntaxErr
	}
	return false, UnknownErr
}
