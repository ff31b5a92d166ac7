package services

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/pkg/constants"
)

// Commands and queries carry the acting user; handlers gate on it.

type CreateBot struct {
	UserUID       uuid.UUID      `validate:"required"`
	BotType       bot.Type       `validate:"required,oneof=manager seller consultant"`
	Name          string         `validate:"max=128"`
	Tariff        string
	AutoDeduction bool
	CRMLeadID     string
	TokenLimit    int            `validate:"gte=0"`
	Platforms     []bot.Platform `validate:"dive,oneof=telegram whatsapp instagram playground"`
}

type UpdateBot struct {
	UserUID       uuid.UUID `validate:"required"`
	BotUID        uuid.UUID `validate:"required"`
	Name          *string   `validate:"omitempty,max=128"`
	Tariff        *string
	AutoDeduction *bool
	CRMLeadID     *string
}

type UpdateAISettings struct {
	UserUID           uuid.UUID `validate:"required"`
	BotUID            uuid.UUID `validate:"required"`
	Instructions      string
	Temperature       float64
	TopP              float64
	TopK              int
	MaxResponse       int
	RepetitionPenalty float64
	GenerationModel   string `validate:"required"`
}

type UpdateTokenLimit struct {
	UserUID    uuid.UUID `validate:"required"`
	BotUID     uuid.UUID `validate:"required"`
	TokenLimit int
}

type ActivateBot struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
}

type SuspendBot struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
}

type TransferOwnership struct {
	UserUID     uuid.UUID `validate:"required"`
	BotUID      uuid.UUID `validate:"required"`
	NewOwnerUID uuid.UUID `validate:"required"`
	// KeepPreviousOwner leaves the previous owner on the bot as admin.
	KeepPreviousOwner bool
}

type DuplicateBot struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
}

type DeleteBot struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
}

type ReserveService struct {
	UserUID  uuid.UUID    `validate:"required"`
	BotUID   uuid.UUID    `validate:"required"`
	Platform bot.Platform `validate:"required,oneof=telegram whatsapp instagram playground"`
}

type UnlinkService struct {
	UserUID    uuid.UUID `validate:"required"`
	BotUID     uuid.UUID `validate:"required"`
	ServiceUID uuid.UUID `validate:"required"`
}

type LinkParticipant struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
	Email   string    `validate:"required,email"`
	Role    bot.Role  `validate:"required"`
}

type UnlinkParticipant struct {
	UserUID            uuid.UUID `validate:"required"`
	BotUID             uuid.UUID `validate:"required"`
	ParticipantUserUID uuid.UUID `validate:"required"`
}

type UpdateParticipantRole struct {
	UserUID            uuid.UUID `validate:"required"`
	BotUID             uuid.UUID `validate:"required"`
	ParticipantUserUID uuid.UUID `validate:"required"`
	Role               bot.Role  `validate:"required"`
}

type UploadDocument struct {
	UserUID     uuid.UUID `validate:"required"`
	BotUID      uuid.UUID `validate:"required"`
	Filename    string    `validate:"required"`
	ContentType string
	Content     []byte
}

type DeleteDocument struct {
	UserUID     uuid.UUID `validate:"required"`
	BotUID      uuid.UUID `validate:"required"`
	DocumentUID uuid.UUID `validate:"required"`
}

type ListBots struct {
	UserUID uuid.UUID `validate:"required"`
	Roles   []bot.Role
}

type GetBot struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
}

type ListParticipants struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
}

type ListServices struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
}

type ListDocuments struct {
	UserUID uuid.UUID `validate:"required"`
	BotUID  uuid.UUID `validate:"required"`
}

// validate runs the struct tags and reports failures as INVALID_BOT_DETAILS.
func validate(msg any) error {
	err := constants.Validate.Struct(msg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return bot.ErrInvalidBotDetails.WithMessage("field %s failed on %q", verrs[0].Field(), verrs[0].Tag()).Wrap(err)
	}
	return bot.ErrInvalidBotDetails.Wrap(err)
}
