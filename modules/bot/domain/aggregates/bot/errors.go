package bot

import "github.com/iota-uz/bothub/pkg/serrors"

var (
	ErrBotNotFound             = serrors.NotFound("BOT_NOT_FOUND", "bot not found")
	ErrParticipantNotFound     = serrors.NotFound("PARTICIPANT_NOT_FOUND", "participant not found")
	ErrServiceNotFound         = serrors.NotFound("SERVICE_NOT_FOUND", "service not found")
	ErrReservedServiceNotFound = serrors.NotFound("RESERVED_SERVICE_NOT_FOUND", "no reserved service for platform")
	ErrDocumentNotFound        = serrors.NotFound("DOCUMENT_NOT_FOUND", "document not found")

	ErrBotAlreadyExists         = serrors.Conflict("BOT_ALREADY_EXISTS", "bot already exists")
	ErrParticipantAlreadyExists = serrors.Conflict("PARTICIPANT_ALREADY_EXISTS", "participant already exists")
	ErrServiceAlreadyLinked     = serrors.Conflict("SERVICE_ALREADY_LINKED", "service already linked")

	ErrOwnerImmutable       = serrors.Authorization("OWNER_IMMUTABLE_OPERATION", "owner participant cannot be changed")
	ErrCannotTransferToSelf = serrors.Authorization("CANNOT_TRANSFER_TO_SELF", "bot already belongs to this user")

	ErrInvalidAISettings = serrors.Validation("INVALID_AI_SETTINGS", "invalid ai settings")
	ErrInvalidQuota      = serrors.Validation("INVALID_QUOTA", "invalid quota")
	ErrInvalidBotDetails = serrors.Validation("INVALID_BOT_DETAILS", "invalid bot details")
	ErrInvalidFileType   = serrors.Validation("INVALID_FILE_TYPE", "unsupported file type")
	ErrFileTooLarge      = serrors.Validation("FILE_TOO_LARGE", "file too large")

	ErrInsufficientTokens = serrors.Processing("INSUFFICIENT_TOKENS", "insufficient tokens")
)
