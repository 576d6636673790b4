package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"trustrails/internal/rollover/contract"
	"trustrails/internal/rollover/models"
	dErrors "trustrails/pkg/domain-errors"
	"trustrails/pkg/platform/sentinel"
)

// ErrorClass is the failure taxonomy of an action request.
type ErrorClass string

const (
	// ClassValidation rejects a request before any mutation. Never retried.
	ClassValidation ErrorClass = "validation"

	// ClassPreconditionMismatch means the contract state does not permit the
	// action. No failure event is recorded.
	ClassPreconditionMismatch ErrorClass = "precondition_mismatch"

	// ClassResourceInsufficient means the signer cannot pay for the
	// transaction. The caller remediates and retries the same action.
	ClassResourceInsufficient ErrorClass = "resource_insufficient"

	// ClassTransient covers network and timeout failures talking to the chain
	// or the oracle.
	ClassTransient ErrorClass = "transient"

	// ClassTerminal covers reverts for reasons the adapter does not model.
	ClassTerminal ErrorClass = "terminal"
)

var (
	ErrRecoveryCoolingDown = errors.New("recovery attempted too recently")
	ErrOracleOpen          = errors.New("contract state oracle circuit open")
	ErrAttemptsExhausted   = errors.New("submission attempts exhausted")
)

var classCodes = map[ErrorClass]dErrors.Code{
	ClassValidation:           dErrors.CodeInvalidInput,
	ClassPreconditionMismatch: dErrors.CodePrecondition,
	ClassResourceInsufficient: dErrors.CodeInsufficientFunds,
	ClassTransient:            dErrors.CodeUnavailable,
	ClassTerminal:             dErrors.CodeInternal,
}

// ClassifiedError is the error half of an action result. Its chain always
// carries a domain error code so the transport layer can map it without
// knowing the taxonomy.
type ClassifiedError struct {
	Class  ErrorClass
	Action models.ActionType
	Err    error

	attempts int
}

func (e *ClassifiedError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Action, e.Class, e.Err)
	}
	return fmt.Sprintf("[%s]: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same request may succeed without
// outside intervention.
func (e *ClassifiedError) Retryable() bool {
	return e.Class == ClassTransient
}

// Code returns the domain code carried by the error chain.
func (e *ClassifiedError) Code() dErrors.Code {
	return dErrors.CodeOf(e.Err)
}

func newClassified(class ErrorClass, action models.ActionType, msg string, cause error) *ClassifiedError {
	var coded *dErrors.Error
	var err error
	switch {
	case cause != nil && errors.As(cause, &coded):
		err = fmt.Errorf("%s: %w", msg, cause)
	case cause != nil:
		err = dErrors.Wrap(cause, classCodes[class], msg)
	default:
		err = dErrors.New(classCodes[class], msg)
	}
	return &ClassifiedError{Class: class, Action: action, Err: err}
}

func validationError(action models.ActionType, code dErrors.Code, msg string) *ClassifiedError {
	return &ClassifiedError{Class: ClassValidation, Action: action, Err: dErrors.New(code, msg)}
}

// Classify places err in the taxonomy. Adapter errors are classified by
// kind; anything unrecognized is terminal.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	var chainErr *contract.ChainError
	if errors.As(err, &chainErr) {
		switch chainErr.Kind {
		case contract.KindInvalid:
			return ClassValidation
		case contract.KindPrecondition:
			return ClassPreconditionMismatch
		case contract.KindInsufficientFunds:
			return ClassResourceInsufficient
		case contract.KindTimeout, contract.KindUnavailable:
			return ClassTransient
		}
		return ClassTerminal
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, sentinel.ErrLockHeld),
		errors.Is(err, ErrOracleOpen):
		return ClassTransient
	case dErrors.HasCode(err, dErrors.CodeInvalidInput):
		return ClassValidation
	}
	return ClassTerminal
}

// AsClassified returns the classified error in err's chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
