package tx

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every pre-signing validation failure.
var ErrValidation = errors.New("psbt validation failed")

// Validation failures, reported in check order.
var (
	ErrSignerCountMismatch    = fmt.Errorf("%w: signer count mismatch", ErrValidation)
	ErrOutputsNetworkNotMatch = fmt.Errorf("%w: outputs network not match", ErrValidation)
	ErrFeeTooHigh             = fmt.Errorf("%w: fee too high", ErrValidation)
	ErrNegativeFee            = fmt.Errorf("%w: outputs exceed inputs", ErrValidation)
	ErrAmountNotMatch         = fmt.Errorf("%w: amount not match", ErrValidation)
)

var (
	// ErrInvalidPsbt is returned when the packet cannot be decoded or
	// lacks the data needed to sign it.
	ErrInvalidPsbt = errors.New("invalid psbt")

	// ErrUnsupportedScript is returned for inputs spending an output
	// template this signer does not handle.
	ErrUnsupportedScript = errors.New("unsupported input script")

	// ErrInputNotOwned is returned when the signer account of an input does
	// not control the output it spends.
	ErrInputNotOwned = errors.New("input not owned by signer account")

	// ErrSignatureVerificationFailed is returned when any produced
	// signature fails verification. No input is finalized in that case.
	ErrSignatureVerificationFailed = errors.New("signature verification failed")
)
