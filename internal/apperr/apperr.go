// Package apperr classifies failures so handlers can pick a status code
// without inspecting upstream-specific error shapes.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InvalidArgument Kind = "invalid_argument"
	NotFound        Kind = "not_found"
	Upstream        Kind = "upstream"
	Timeout         Kind = "timeout"
	Config          Kind = "config"
	RateLimited     Kind = "rate_limited"
)

type Error struct {
	Kind           Kind
	Detail         string
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.UpstreamStatus > 0 {
		return fmt.Sprintf("%s: %s (upstream status %d)", e.Kind, e.Detail, e.UpstreamStatus)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the kind from any error in the chain; unclassified
// errors count as Upstream.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Upstream
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
