package mxf

import (
	"errors"
	"fmt"
)

var (
	ErrRegistration   = errors.New("mxf: registration failed")
	ErrTypeIDInUse    = errors.New("mxf: type id in use")
	ErrTypeTableFull  = errors.New("mxf: type table full")
	ErrTooManyMembers = errors.New("mxf: too many compound type members")
	ErrLink           = errors.New("mxf: data model link failed")
	ErrSchemaCycle    = errors.New("mxf: set def parent cycle")
	ErrNotFinalized   = errors.New("mxf: data model not finalized")

	ErrUnknownSetDef     = errors.New("mxf: unknown set def")
	ErrUnknownItemDef    = errors.New("mxf: unknown item def")
	ErrItemNotAllowed    = errors.New("mxf: item not allowed in set")
	ErrItemNotPresent    = errors.New("mxf: item not present")
	ErrTypeMismatch      = errors.New("mxf: item type mismatch")
	ErrDuplicateInstance = errors.New("mxf: duplicate instance UID")
	ErrDanglingReference = errors.New("mxf: dangling strong reference")
	ErrInvalidState      = errors.New("mxf: invalid document state")

	ErrPrimerFrozen = errors.New("mxf: primer pack frozen")
	ErrPrimerFull   = errors.New("mxf: primer pack tag pool exhausted")

	ErrInvalidBER    = errors.New("mxf: invalid BER length")
	ErrInvalidKLV    = errors.New("mxf: invalid KLV")
	ErrLimitExceeded = errors.New("mxf: limit exceeded")
)

// LinkKind names the relationship Finalize failed to resolve.
type LinkKind string

const (
	LinkParent LinkKind = "parent"
	LinkOwner  LinkKind = "owner"
	LinkCycle  LinkKind = "cycle"
)

// LinkError reports a SetDef parent or ItemDef owner that could not be
// resolved, or a cycle in the SetDef parent graph.
type LinkError struct {
	Kind    LinkKind
	Name    string
	Key     Key
	Missing Key
}

func (e *LinkError) Error() string {
	switch e.Kind {
	case LinkCycle:
		return fmt.Sprintf("mxf: set def %q (%s) is part of a parent cycle", e.Name, e.Key)
	case LinkOwner:
		return fmt.Sprintf("mxf: item def %q (%s) has unknown owner set def %s", e.Name, e.Key, e.Missing)
	default:
		return fmt.Sprintf("mxf: set def %q (%s) has unknown parent set def %s", e.Name, e.Key, e.Missing)
	}
}

func (e *LinkError) Unwrap() []error {
	if e.Kind == LinkCycle {
		return []error{ErrLink, ErrSchemaCycle}
	}
	return []error{ErrLink}
}
