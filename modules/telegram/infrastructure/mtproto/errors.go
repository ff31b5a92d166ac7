package mtproto

import (
	"context"
	"errors"
	"net"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"github.com/iota-uz/bothub/modules/telegram/domain/messenger"
	"github.com/iota-uz/bothub/pkg/serrors"
)

var authErrorTypes = []string{
	"PHONE_CODE_INVALID",
	"PHONE_CODE_EXPIRED",
	"PHONE_CODE_EMPTY",
	"PHONE_NUMBER_INVALID",
	"PHONE_NUMBER_BANNED",
	"PHONE_NUMBER_UNOCCUPIED",
	"AUTH_KEY_UNREGISTERED",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED",
}

// mapError translates client failures into the messenger error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if serrors.CodeOf(err) != "" {
		return err
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return messenger.ErrRateLimit.WithMessage("retry after %s", d).Wrap(err)
	}
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return messenger.ErrAuthFailure.WithMessage("account is protected by a cloud password").Wrap(err)
	}
	if tgerr.Is(err, authErrorTypes...) {
		return messenger.ErrAuthFailure.Wrap(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return messenger.ErrConnectionFailure.Wrap(err)
	}
	return messenger.ErrGeneric.Wrap(err)
}
