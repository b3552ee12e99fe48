package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors of the catalog taxonomy. Typed errors below carry context and
// match these through errors.Is.
var (
	ErrUnknownQueryParam = errors.New("unknown query param")
	ErrInvalidQueryValue = errors.New("invalid query value")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyDeleted    = errors.New("already deleted")
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrAclUpdateFailed   = errors.New("acl update failed")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrTimeout           = errors.New("store timeout")
	ErrUnsupported       = errors.New("unsupported operation")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// QueryError reports a query key or value that could not be compiled.
type QueryError struct {
	Err    error
	Key    string
	Value  string
	Reason string
}

func (e QueryError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %s=%q", e.Err, e.Key, e.Value)
	}
	return fmt.Sprintf("%v: %s=%q: %s", e.Err, e.Key, e.Value, e.Reason)
}

func (e QueryError) Unwrap() error { return e.Err }

// UnknownParam builds the error for a key missing from the param table.
func UnknownParam(key string) error {
	return QueryError{Err: ErrUnknownQueryParam, Key: key}
}

// InvalidValue builds the error for a malformed query value.
func InvalidValue(key, value, reason string) error {
	return QueryError{Err: ErrInvalidQueryValue, Key: key, Value: value, Reason: reason}
}

// NotFoundError reports an id without a matching document.
type NotFoundError struct {
	Entity EntityKind
	ID     int64
	What   string
}

func (e NotFoundError) Error() string {
	if e.What != "" {
		return fmt.Sprintf("%s %s not found", e.Entity, e.What)
	}
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyExistsError reports a name or identifier collision.
type AlreadyExistsError struct {
	Entity  EntityKind
	StudyID int64
	Field   string
	Value   any
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with %s %v already exists in study %d", e.Entity, e.Field, e.Value, e.StudyID)
}

func (e AlreadyExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// AlreadyDeletedError reports a delete of an entity that is no longer active.
type AlreadyDeletedError struct {
	Entity EntityKind
	ID     int64
	Status StatusName
}

func (e AlreadyDeletedError) Error() string {
	return fmt.Sprintf("%s %d is already %s", e.Entity, e.ID, strings.ToLower(string(e.Status)))
}

func (e AlreadyDeletedError) Is(target error) bool { return target == ErrAlreadyDeleted }

// PrincipalNotFoundError lists members that do not resolve within a study.
type PrincipalNotFoundError struct {
	StudyID int64
	Members []string
}

func (e PrincipalNotFoundError) Error() string {
	return fmt.Sprintf("members %s not found in study %d", strings.Join(e.Members, ","), e.StudyID)
}

func (e PrincipalNotFoundError) Is(target error) bool { return target == ErrPrincipalNotFound }

// AclUpdateFailedError reports an ACL mutation that modified fewer documents
// than required.
type AclUpdateFailedError struct {
	Entity  EntityKind
	ID      int64
	Op      string
	Members []string
}

func (e AclUpdateFailedError) Error() string {
	return fmt.Sprintf("%s acl %s on %d for members [%s] modified no document", e.Entity, e.Op, e.ID, strings.Join(e.Members, ","))
}

func (e AclUpdateFailedError) Is(target error) bool { return target == ErrAclUpdateFailed }

// StoreError wraps a failing store call. Deadline and cancellation errors
// classify as ErrTimeout, anything else as ErrStoreUnavailable.
type StoreError struct {
	Op  string
	Err error
}

func (e StoreError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e StoreError) Unwrap() []error { return []error{e.kind(), e.Err} }

func (e StoreError) kind() error {
	if errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, context.Canceled) {
		return ErrTimeout
	}
	return ErrStoreUnavailable
}

// UnsupportedError rejects operations the catalog does not implement.
type UnsupportedError struct {
	Entity EntityKind
	Op     string
}

func (e UnsupportedError) Error() string {
	return fmt.Sprintf("%s %s is not supported", e.Entity, e.Op)
}

func (e UnsupportedError) Is(target error) bool { return target == ErrUnsupported }

// InvalidArgumentError reports a bad input outside query compilation.
type InvalidArgumentError struct {
	Field  string
	Value  any
	Reason string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// BatchError stops a batch at its failing item. Items before ID were applied
// and are not rolled back.
type BatchError struct {
	Query     string
	ID        int64
	Completed int
	Err       error
}

func (e BatchError) Error() string {
	return fmt.Sprintf("batch over query %s failed at id %d after %d items: %v", e.Query, e.ID, e.Completed, e.Err)
}

func (e BatchError) Unwrap() error { return e.Err }
