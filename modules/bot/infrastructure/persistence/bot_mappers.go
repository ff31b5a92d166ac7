package persistence

import (
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/bothub/modules/bot/domain/aggregates/bot"
	"github.com/iota-uz/bothub/modules/bot/infrastructure/persistence/models"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func parseUUID(s, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, fmt.Sprintf("failed to parse %s UUID from string: %s", what, s))
	}
	return id, nil
}

func ToDBBot(b bot.Bot) models.Bot {
	s := b.AISettings()
	q := b.Quota()
	return models.Bot{
		ID:                b.UID().String(),
		OwnerID:           b.OwnerUID().String(),
		BotType:           string(b.Type()),
		Name:              nullString(b.Name()),
		Status:            string(b.Status()),
		Tariff:            nullString(b.Tariff()),
		AutoDeduction:     b.AutoDeduction(),
		CRMLeadID:         nullString(b.CRMLeadID()),
		Instructions:      nullString(s.Instructions()),
		Temperature:       s.Temperature(),
		TopP:              s.TopP(),
		TopK:              s.TopK(),
		MaxResponse:       s.MaxResponse(),
		RepetitionPenalty: s.RepetitionPenalty(),
		GenerationModel:   s.GenerationModel(),
		TokenLimit:        q.TokenLimit(),
		TokensLeft:        q.TokensLeft(),
		CreatedAt:         b.CreatedAt(),
		UpdatedAt:         b.UpdatedAt(),
	}
}

func ToDomainBot(m models.Bot) (bot.Bot, error) {
	id, err := parseUUID(m.ID, "bot")
	if err != nil {
		return nil, err
	}
	ownerID, err := parseUUID(m.OwnerID, "owner")
	if err != nil {
		return nil, err
	}
	settings, err := bot.NewAISettings(
		m.Instructions.String,
		m.Temperature,
		m.TopP,
		m.TopK,
		m.MaxResponse,
		m.RepetitionPenalty,
		m.GenerationModel,
	)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("bot %s has invalid stored ai settings", m.ID))
	}
	quota, err := bot.NewQuota(m.TokenLimit, m.TokensLeft)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("bot %s has invalid stored quota", m.ID))
	}
	return bot.New(
		ownerID,
		bot.Type(m.BotType),
		bot.WithUID(id),
		bot.WithName(m.Name.String),
		bot.WithStatus(bot.Status(m.Status)),
		bot.WithTariff(m.Tariff.String),
		bot.WithAutoDeduction(m.AutoDeduction),
		bot.WithCRMLeadID(m.CRMLeadID.String),
		bot.WithAISettings(settings),
		bot.WithQuota(quota),
		bot.WithCreatedAt(m.CreatedAt),
		bot.WithUpdatedAt(m.UpdatedAt),
	), nil
}

func ToDBParticipant(p bot.Participant) models.BotParticipant {
	return models.BotParticipant{
		ID:        p.UID().String(),
		BotID:     p.BotUID().String(),
		UserID:    p.UserUID().String(),
		Role:      string(p.Role()),
		CreatedAt: p.CreatedAt(),
		UpdatedAt: p.UpdatedAt(),
	}
}

func ToDomainParticipant(m models.BotParticipant) (bot.Participant, error) {
	id, err := parseUUID(m.ID, "participant")
	if err != nil {
		return nil, err
	}
	botID, err := parseUUID(m.BotID, "bot")
	if err != nil {
		return nil, err
	}
	userID, err := parseUUID(m.UserID, "user")
	if err != nil {
		return nil, err
	}
	return bot.NewParticipant(
		botID,
		userID,
		bot.Role(m.Role),
		bot.WithParticipantUID(id),
		bot.WithParticipantTimestamps(m.CreatedAt, m.UpdatedAt),
	), nil
}

func ToDBService(s bot.Service) models.BotService {
	linked := sql.NullString{}
	if s.LinkedAccountUID() != uuid.Nil {
		linked = nullString(s.LinkedAccountUID().String())
	}
	return models.BotService{
		ID:              s.UID().String(),
		BotID:           s.BotUID().String(),
		Platform:        string(s.Platform()),
		Status:          string(s.Status()),
		LinkedAccountID: linked,
		ServiceDetails:  s.Details(),
		CreatedAt:       s.CreatedAt(),
		UpdatedAt:       s.UpdatedAt(),
	}
}

func ToDomainService(m models.BotService) (bot.Service, error) {
	id, err := parseUUID(m.ID, "service")
	if err != nil {
		return nil, err
	}
	botID, err := parseUUID(m.BotID, "bot")
	if err != nil {
		return nil, err
	}
	linked := uuid.Nil
	if m.LinkedAccountID.Valid {
		if linked, err = parseUUID(m.LinkedAccountID.String, "linked account"); err != nil {
			return nil, err
		}
	}
	return bot.NewService(
		botID,
		bot.Platform(m.Platform),
		bot.WithServiceUID(id),
		bot.WithServiceState(bot.ServiceStatus(m.Status), linked, m.ServiceDetails),
		bot.WithServiceTimestamps(m.CreatedAt, m.UpdatedAt),
	), nil
}

func ToDBDocument(d bot.Document) models.BotDocument {
	return models.BotDocument{
		ID:          d.UID().String(),
		BotID:       d.BotUID().String(),
		Filename:    d.Filename(),
		ContentType: nullString(d.ContentType()),
		FileBlob:    d.Blob(),
		CreatedAt:   d.CreatedAt(),
		UpdatedAt:   d.UpdatedAt(),
	}
}

func ToDomainDocument(m models.BotDocument) (bot.Document, error) {
	id, err := parseUUID(m.ID, "document")
	if err != nil {
		return nil, err
	}
	botID, err := parseUUID(m.BotID, "bot")
	if err != nil {
		return nil, err
	}
	return bot.NewDocument(
		botID,
		m.Filename,
		m.ContentType.String,
		m.FileBlob,
		bot.WithDocumentUID(id),
		bot.WithDocumentTimestamps(m.CreatedAt, m.UpdatedAt),
	), nil
}
