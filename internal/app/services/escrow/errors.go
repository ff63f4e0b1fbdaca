package escrow

import (
	"errors"
	"fmt"
)

// Error families. Every failure returned by the service wraps exactly one of
// these, so callers can classify with errors.Is without matching messages.
var (
	ErrValidation   = errors.New("validation failed")
	ErrPayment      = errors.New("invalid payment")
	ErrNotFound     = errors.New("not found")
	ErrArithmetic   = errors.New("arithmetic error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrProtocol     = errors.New("protocol error")
)

// Specific conditions, each wrapping its family.
var (
	ErrAlreadyInitialized  = fmt.Errorf("%w: controller already initialized", ErrValidation)
	ErrInvalidRoyaltyRate  = fmt.Errorf("%w: royalty rate must be within [0, 1]", ErrValidation)
	ErrNotReady            = fmt.Errorf("%w: asset class not ready", ErrValidation)
	ErrPaymentRequired     = fmt.Errorf("%w: exactly one coin must be attached", ErrPayment)
	ErrWrongDenom          = fmt.Errorf("%w: attached coin denomination mismatch", ErrPayment)
	ErrWrongAmount         = fmt.Errorf("%w: attached coin amount mismatch", ErrPayment)
	ErrNoActiveListing     = fmt.Errorf("%w: no active listing", ErrNotFound)
	ErrRoyaltyExceedsPrice = fmt.Errorf("%w: royalty exceeds sale price", ErrArithmetic)
	ErrTransferBlocked     = fmt.Errorf("%w: transfer not mediated by the escrow controller", ErrUnauthorized)
	ErrUnknownCorrelation  = fmt.Errorf("%w: no handler for correlation id", ErrProtocol)
	ErrUnknownAsset        = fmt.Errorf("%w: transfer hook invoked for unrecognized asset", ErrProtocol)
)
