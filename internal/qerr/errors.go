/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package qerr defines the error taxonomy shared by the query pipeline.
// Every failure the pipeline surfaces carries a Kind so callers can map it
// to an actionable message instead of a generic failure.
package qerr

import (
	"errors"
	"fmt"
)

// Kind identifies one failure class of the pipeline.
type Kind string

const (
	KindConnection     Kind = "connection_error"
	KindPermission     Kind = "permission_error"
	KindTranslation    Kind = "translation_error"
	KindUnsafeQuery    Kind = "unsafe_query"
	KindQueryExecution Kind = "query_execution_error"
	KindTimeout        Kind = "timeout_error"
	KindAnalysis       Kind = "analysis_error"
)

// Error is a tagged pipeline error. Msg is safe to show to callers; the
// wrapped Err may contain driver detail (DSNs, hosts) and is exposed only
// through Unwrap for logging and errors.Is/As checks.
type Error struct {
	Kind Kind
	Msg  string
	SQL  string // generated SQL, when known at failure time
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a tagged error with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags an underlying error with a kind and a caller-safe message.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or the empty string for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// WithSQL attaches the generated SQL text to a tagged error so it stays
// discoverable even when no response is produced. Untagged errors are
// returned unchanged.
func WithSQL(err error, sqlText string) error {
	var e *Error
	if errors.As(err, &e) {
		e.SQL = sqlText
	}
	return err
}

// SQLOf returns the SQL text attached to err, if any.
func SQLOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.SQL
	}
	return ""
}
