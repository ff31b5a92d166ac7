package serrors

import (
	"context"
	"errors"
)

var (
	ErrProcessing   = Processing("PROCESSING_ERROR", "failed to process request")
	ErrAccessDenied = Authorization("ACCESS_DENIED", "access denied")
)

// AsProcessing keeps typed errors untouched and wraps everything else into
// ErrProcessing. Context cancellation is passed through as is.
func AsProcessing(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var be *BaseError
	if errors.As(err, &be) {
		return err
	}
	return ErrProcessing.Wrap(err)
}
