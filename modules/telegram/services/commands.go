package services

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/telegram/domain/aggregates/accountlink"
	"github.com/iota-uz/bothub/pkg/constants"
)

type RequestCode struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
	Phone   string    `validate:"required"`
}

type CodeRequested struct {
	LinkUID       uuid.UUID
	PhoneCodeHash string
}

type SubmitCode struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
	Phone   string    `validate:"required"`
	Code    string    `validate:"required"`
}

type ReassignLink struct {
	UserUID   uuid.UUID `validate:"required"`
	LinkUID   uuid.UUID `validate:"required"`
	NewBotUID uuid.UUID `validate:"required"`
}

type DeactivateLink struct {
	UserUID uuid.UUID `validate:"required"`
	LinkUID uuid.UUID `validate:"required"`
}

type ListLinks struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
}

func validate(msg any) error {
	err := constants.Validate.Struct(msg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return accountlink.ErrInvalidRequest.WithMessage("field %s failed on %q", verrs[0].Field(), verrs[0].Tag()).Wrap(err)
	}
	return accountlink.ErrInvalidRequest.Wrap(err)
}
