package market

import (
	"errors"

	"golang.org/x/xerrors"

	"datanest-backend/internal/payment"
	"datanest-backend/internal/store"
)

// Kind classifies lifecycle failures for callers that map them to a
// transport status.
type Kind string

const (
	KindInternal    Kind = "internal"
	KindNotFound    Kind = "not_found"
	KindForbidden   Kind = "forbidden"
	KindConflict    Kind = "conflict"
	KindValidation  Kind = "validation"
	KindUnavailable Kind = "unavailable"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func notFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }
func forbidden(msg string) error { return &Error{Kind: KindForbidden, Msg: msg} }
func conflict(msg string) error { return &Error{Kind: KindConflict, Msg: msg} }
func validation(msg string, err error) error {
	return &Error{Kind: KindValidation, Msg: msg, Err: err}
}

func unavailable(msg string, err error) error {
	return &Error{Kind: KindUnavailable, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Bare store
// and gateway sentinels are classified too; anything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, store.ErrConflict):
		return KindConflict
	case errors.Is(err, payment.ErrUnavailable):
		return KindUnavailable
	}
	return KindInternal
}

func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message is the client-facing text for err. Internal errors are not
// described.
func Message(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.Msg
	}
	switch KindOf(err) {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "service unavailable"
	}
	return "internal error"
}

// lookup turns a store miss into a NotFound error naming what was missing.
func lookup(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(what + " not found")
	}
	return xerrors.Errorf("loading %s: %w", what, err)
}
