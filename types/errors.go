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
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrValidation           = errors.New("tabula: validation failed")
	ErrConflict             = errors.New("tabula: conflict")
	ErrNotFound             = errors.New("tabula: not found")
	ErrUnsupportedOperation = errors.New("tabula: unsupported operation")
	ErrTypeMismatch         = errors.New("tabula: type mismatch")
	ErrUnknownAttribute     = errors.New("tabula: unknown attribute")
	ErrConnectionTimeout    = errors.New("tabula: connection timeout")
	ErrStatementTimeout     = errors.New("tabula: statement timeout")
	ErrConnectionClosed     = errors.New("tabula: connection closed")
)

// Violation is one failed constraint on one attribute.
type Violation struct {
	Attribute  string `json:"attribute"`
	Constraint string `json:"constraint"`
	Param      string `json:"param,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (v Violation) String() string {
	if v.Param != "" {
		return fmt.Sprintf("%s: %s=%s", v.Attribute, v.Constraint, v.Param)
	}
	return fmt.Sprintf("%s: %s", v.Attribute, v.Constraint)
}

// ValidationError reports constraint violations found before a statement
// was sent, or while hydrating a row in strict mode. Index is the position
// of the offending element in a batch, -1 for single-instance operations.
type ValidationError struct {
	Model      string
	Index      int
	Violations []Violation
}

func NewValidationError(model string, index int, violations []Violation) *ValidationError {
	return &ValidationError{Model: model, Index: index, Violations: violations}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	if e.Index >= 0 {
		return fmt.Sprintf("tabula: %s[%d] failed validation: %s", e.Model, e.Index, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("tabula: %s failed validation: %s", e.Model, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Has reports whether attribute failed the given constraint.
func (e *ValidationError) Has(attribute, constraint string) bool {
	for _, v := range e.Violations {
		if v.Attribute == attribute && v.Constraint == constraint {
			return true
		}
	}
	return false
}

// ConflictError covers uniqueness, primary-key and already-exists violations.
type ConflictError struct {
	Object string
	Cause  error
}

func NewConflictError(object string, cause error) *ConflictError {
	return &ConflictError{Object: object, Cause: cause}
}

func (e *ConflictError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tabula: conflict on %s: %v", e.Object, e.Cause)
	}
	return fmt.Sprintf("tabula: conflict on %s", e.Object)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
func (e *ConflictError) Unwrap() error        { return e.Cause }

// NotFoundError is returned when a targeted entity, table, database or role
// does not exist.
type NotFoundError struct {
	Object string
	Key    any
	Cause  error
}

func NewNotFoundError(object string, key any, cause error) *NotFoundError {
	return &NotFoundError{Object: object, Key: key, Cause: cause}
}

func (e *NotFoundError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("tabula: %s %v not found", e.Object, e.Key)
	}
	return fmt.Sprintf("tabula: %s not found", e.Object)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
func (e *NotFoundError) Unwrap() error        { return e.Cause }

// UnsupportedOperationError is returned when a dialect cannot express an
// operator or feature.
type UnsupportedOperationError struct {
	Flavour   Flavour
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("tabula: %s is not supported by %s", e.Operation, e.Flavour)
}

func (e *UnsupportedOperationError) Is(target error) bool { return target == ErrUnsupportedOperation }

// TypeMismatchError is returned when a literal does not match the declared
// kind of the attribute it is compared against or assigned to.
type TypeMismatchError struct {
	Attribute string
	Expected  string
	Actual    string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("tabula: attribute %q expects %s, got %s", e.Attribute, e.Expected, e.Actual)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// UnknownAttributeError is returned when a query names an attribute the
// model does not declare.
type UnknownAttributeError struct {
	Model     string
	Attribute string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("tabula: model %s has no attribute %q", e.Model, e.Attribute)
}

func (e *UnknownAttributeError) Is(target error) bool { return target == ErrUnknownAttribute }

// ConnectionTimeoutError is returned when no pooled connection became
// available within the configured wait.
type ConnectionTimeoutError struct {
	Wait  time.Duration
	Cause error
}

func (e *ConnectionTimeoutError) Error() string {
	return fmt.Sprintf("tabula: no connection available after %s", e.Wait)
}

func (e *ConnectionTimeoutError) Is(target error) bool { return target == ErrConnectionTimeout }
func (e *ConnectionTimeoutError) Unwrap() error        { return e.Cause }

// StatementTimeoutError is returned when a statement exceeded its deadline.
type StatementTimeoutError struct {
	Timeout   time.Duration
	Statement string
	Cause     error
}

func (e *StatementTimeoutError) Error() string {
	return fmt.Sprintf("tabula: statement exceeded %s: %s", e.Timeout, e.Statement)
}

func (e *StatementTimeoutError) Is(target error) bool { return target == ErrStatementTimeout }
func (e *StatementTimeoutError) Unwrap() error        { return e.Cause }

// ConnectionClosedError is returned by any operation on a closed adapter.
type ConnectionClosedError struct {
	Operation string
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("tabula: %s on closed connection", e.Operation)
}

func (e *ConnectionClosedError) Is(target error) bool { return target == ErrConnectionClosed }

func IsValidation(err error) bool           { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool             { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool             { return errors.Is(err, ErrNotFound) }
func IsUnsupportedOperation(err error) bool { return errors.Is(err, ErrUnsupportedOperation) }
func IsTypeMismatch(err error) bool         { return errors.Is(err, ErrTypeMismatch) }
func IsUnknownAttribute(err error) bool     { return errors.Is(err, ErrUnknownAttribute) }
func IsConnectionTimeout(err error) bool    { return errors.Is(err, ErrConnectionTimeout) }
func IsStatementTimeout(err error) bool     { return errors.Is(err, ErrStatementTimeout) }
func IsConnectionClosed(err error) bool     { return errors.Is(err, ErrConnectionClosed) }

// AsValidation extracts the ValidationError from an error chain.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
