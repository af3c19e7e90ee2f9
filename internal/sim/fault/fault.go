// Package fault is the error taxonomy shared by the simulation packages.
// Every rejected operation returns an *Error so callers can map it to a
// protocol code without string matching.
package fault

import (
	"errors"
	"fmt"

	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/registry"
)

type Kind string

const (
	Validation Kind = "validation"
	Resource   Kind = "resource"
	Action     Kind = "action"
	System     Kind = "system"
)

type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(code, format string, args ...any) *Error {
	return New(Validation, code, format, args...)
}

func Resourcef(format string, args ...any) *Error {
	return New(Resource, protocol.ErrNoResource, format, args...)
}

func Actionf(code, format string, args ...any) *Error {
	return New(Action, code, format, args...)
}

func Systemf(format string, args ...any) *Error {
	return New(System, protocol.ErrInternal, format, args...)
}

// From classifies err. Registry sentinels map to their natural kind; anything
// unrecognised is a system error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, registry.ErrInsufficientGold), errors.Is(err, registry.ErrInsufficientAmount):
		return &Error{Kind: Resource, Code: protocol.ErrNoResource, Msg: "insufficient funds", Err: err}
	case errors.Is(err, registry.ErrUnknownTerritory), errors.Is(err, registry.ErrUnknownConstruct):
		return &Error{Kind: Validation, Code: protocol.ErrInvalidTarget, Msg: "unknown target", Err: err}
	case errors.Is(err, registry.ErrUnknownPlayer), errors.Is(err, registry.ErrNegativeAmount):
		return &Error{Kind: Validation, Code: protocol.ErrBadRequest, Msg: "bad request", Err: err}
	}
	return &Error{Kind: System, Code: protocol.ErrInternal, Msg: "internal error", Err: err}
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return From(err).Code
}
