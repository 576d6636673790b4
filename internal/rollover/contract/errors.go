package contract

import (
	"errors"
	"fmt"
)

// ErrorKind normalizes failures reported by contract adapters.
type ErrorKind string

const (
	// KindInvalid indicates malformed parameters rejected before broadcast
	KindInvalid ErrorKind = "invalid"

	// KindPrecondition indicates the contract reverted because its state does not permit the action
	KindPrecondition ErrorKind = "precondition"

	// KindInsufficientFunds indicates the signer cannot pay transaction fees
	KindInsufficientFunds ErrorKind = "insufficient_funds"

	// KindTimeout indicates the node did not confirm within the deadline; the tx may still land
	KindTimeout ErrorKind = "timeout"

	// KindUnavailable indicates the node or gateway could not be reached
	KindUnavailable ErrorKind = "unavailable"

	// KindReverted indicates a revert for a reason the adapter does not model
	KindReverted ErrorKind = "reverted"
)

// ChainError wraps adapter failures with a normalized kind.
type ChainError struct {
	Kind       ErrorKind
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ChainError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("contract [%s]: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("contract [%s]: %s", e.Kind, e.Message)
}

func (e *ChainError) Unwrap() error {
	return e.Underlying
}

// NewChainError creates a normalized adapter error.
func NewChainError(kind ErrorKind, message string, underlying error) *ChainError {
	return &ChainError{
		Kind:       kind,
		Message:    message,
		Underlying: underlying,
		Retryable:  kind == KindTimeout || kind == KindUnavailable,
	}
}

// KindOf extracts the kind from err. Unclassified errors are treated as reverts.
func KindOf(err error) ErrorKind {
	var ce *ChainError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindReverted
}

var (
	ErrUnknownVersion = errors.New("unknown contract version")
	ErrNoEscrow       = errors.New("no escrow for transfer")
)
