// Package domain holds typed identifiers shared across bounded contexts.
//
// Transfer and custodian identifiers arrive from external systems (the on-chain
// contract keys escrows by transfer id), so they are opaque strings rather than
// UUIDs. Typed wrappers keep them from being swapped at call sites.
package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "trustrails/pkg/domain-errors"
)

const maxIDLength = 128

type (
	TransferID  string
	CustodianID string
	EventID     string
	ActorID     string
)

// eventNamespace scopes name-based event ids so they never collide with ids
// generated by other systems using the SHA-1 namespace scheme.
var eventNamespace = uuid.MustParse("6f1d3c52-8d0e-4b8a-9a57-3f3f0c4c2e11")

func (id TransferID) String() string  { return string(id) }
func (id CustodianID) String() string { return string(id) }
func (id EventID) String() string     { return string(id) }
func (id ActorID) String() string     { return string(id) }

func (id TransferID) IsNil() bool  { return id == "" }
func (id CustodianID) IsNil() bool { return id == "" }
func (id EventID) IsNil() bool     { return id == "" }

// ParseTransferID validates an externally supplied transfer id.
func ParseTransferID(s string) (TransferID, error) {
	v, err := parseOpaqueID(s, "transfer ID")
	return TransferID(v), err
}

// ParseCustodianID validates an externally supplied custodian id.
func ParseCustodianID(s string) (CustodianID, error) {
	v, err := parseOpaqueID(s, "custodian ID")
	return CustodianID(v), err
}

// ParseEventID validates an event id supplied by a writer.
func ParseEventID(s string) (EventID, error) {
	v, err := parseOpaqueID(s, "event ID")
	return EventID(v), err
}

// NewEventID returns a random event id.
func NewEventID() EventID {
	return EventID(uuid.NewString())
}

// DeterministicEventID derives a stable event id from its parts. Writers that may
// re-run (reconciliation passes, listeners replaying chain logs) use it so a retried
// append collapses into the original event.
func DeterministicEventID(parts ...string) EventID {
	return EventID(uuid.NewSHA1(eventNamespace, []byte(strings.Join(parts, "|"))).String())
}

func parseOpaqueID(s, kind string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" must be valid UTF-8")
	}
	for _, r := range s {
		if !isIDRune(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" format")
		}
	}
	return s, nil
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.', r == ':':
		return true
	}
	return false
}
