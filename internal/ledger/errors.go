package ledger

import (
	"errors"
	"fmt"

	"github.com/roach88/semledger/internal/policy"
)

var (
	ErrUnknownValidator = errors.New("unknown validator")
	ErrBadSignature     = errors.New("bad signature")
	ErrSignatureLength  = errors.New("signature length mismatch")
	ErrStaleTail        = errors.New("block does not extend the current tail")
	ErrHashDrift        = errors.New("stored graph does not reproduce the signed hash")
	ErrPersistFailed    = errors.New("persist failed")

	// ErrPolicyViolation is policy.ErrPolicyViolation, re-exported for callers
	// that only import ledger.
	ErrPolicyViolation = policy.ErrPolicyViolation
)

// SubmitError reports why a block was rejected. Chain state is unchanged
// whenever a SubmitError is returned.
type SubmitError struct {
	// Code identifies the rejection category.
	Code SubmitErrorCode

	// Message is a human-readable description.
	Message string

	// Index is the index the block claimed.
	Index uint64

	// ValidatorID is the id the block claimed.
	ValidatorID string

	// Err is the underlying cause, if any.
	Err error
}

// SubmitErrorCode categorizes submit failures.
type SubmitErrorCode string

const (
	// ErrCodeUnknownValidator indicates the validator is not authorized.
	ErrCodeUnknownValidator SubmitErrorCode = "UNKNOWN_VALIDATOR"

	// ErrCodeBadSignature indicates the signature does not verify.
	ErrCodeBadSignature SubmitErrorCode = "BAD_SIGNATURE"

	// ErrCodeSignatureLength indicates a signature of the wrong size.
	ErrCodeSignatureLength SubmitErrorCode = "SIGNATURE_LENGTH"

	// ErrCodeStaleTail indicates the block was proposed against an older tail.
	ErrCodeStaleTail SubmitErrorCode = "STALE_TAIL"

	// ErrCodePolicyViolation indicates the payload failed the schema policy.
	ErrCodePolicyViolation SubmitErrorCode = "POLICY_VIOLATION"

	// ErrCodePersistFailed indicates a store write failed and was rolled back.
	ErrCodePersistFailed SubmitErrorCode = "PERSIST_FAILED"

	// ErrCodeHashDrift indicates the materialized graph hashes differently
	// from what was signed.
	ErrCodeHashDrift SubmitErrorCode = "HASH_DRIFT"
)

var codeSentinels = map[SubmitErrorCode]error{
	ErrCodeUnknownValidator: ErrUnknownValidator,
	ErrCodeBadSignature:     ErrBadSignature,
	ErrCodeSignatureLength:  ErrSignatureLength,
	ErrCodeStaleTail:        ErrStaleTail,
	ErrCodePolicyViolation:  ErrPolicyViolation,
	ErrCodePersistFailed:    ErrPersistFailed,
	ErrCodeHashDrift:        ErrHashDrift,
}

// Error implements the error interface.
func (e *SubmitError) Error() string {
	msg := fmt.Sprintf("%s: %s (index=%d)", e.Code, e.Message, e.Index)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the code's sentinel and the underlying cause, so
// errors.Is(err, ErrBadSignature) works on a SubmitError.
func (e *SubmitError) Unwrap() []error {
	var errs []error
	if s, ok := codeSentinels[e.Code]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// CodeOf returns the SubmitError code in err's chain, or "".
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) SubmitErrorCode {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsAuthorizationError reports whether err rejected a block for who signed
// it or how, rather than for what it contains.
func IsAuthorizationError(err error) bool {
	switch CodeOf(err) {
	case ErrCodeUnknownValidator, ErrCodeBadSignature, ErrCodeSignatureLength:
		return true
	}
	return false
}

func newSubmitError(code SubmitErrorCode, b *Block, msg string, cause error) *SubmitError {
	return &SubmitError{
		Code:        code,
		Message:     msg,
		Index:       b.Index,
		ValidatorID: b.ValidatorID,
		Err:         cause,
	}
}
