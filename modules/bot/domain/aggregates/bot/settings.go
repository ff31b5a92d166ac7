package bot

import "strings"

const DefaultGenerationModel = "stub"

// AISettings is an immutable value object; use NewAISettings to build one.
type AISettings struct {
	instructions      string
	temperature       float64
	topP              float64
	topK              int
	maxResponse       int
	repetitionPenalty float64
	generationModel   string
}

func NewAISettings(
	instructions string,
	temperature, topP float64,
	topK, maxResponse int,
	repetitionPenalty float64,
	generationModel string,
) (AISettings, error) {
	switch {
	case temperature < 0 || temperature > 1:
		return AISettings{}, ErrInvalidAISettings.WithMessage("temperature must be within [0, 1], got %v", temperature)
	case topP < 0 || topP > 1:
		return AISettings{}, ErrInvalidAISettings.WithMessage("top_p must be within [0, 1], got %v", topP)
	case topK < 1 || topK > 10000:
		return AISettings{}, ErrInvalidAISettings.WithMessage("top_k must be within [1, 10000], got %d", topK)
	case maxResponse <= 0:
		return AISettings{}, ErrInvalidAISettings.WithMessage("max_response must be positive, got %d", maxResponse)
	case repetitionPenalty < 0:
		return AISettings{}, ErrInvalidAISettings.WithMessage("repetition_penalty must be non-negative, got %v", repetitionPenalty)
	}
	model := strings.TrimSpace(generationModel)
	if model == "" {
		return AISettings{}, ErrInvalidAISettings.WithMessage("generation_model is required")
	}
	return AISettings{
		instructions:      instructions,
		temperature:       temperature,
		topP:              topP,
		topK:              topK,
		maxResponse:       maxResponse,
		repetitionPenalty: repetitionPenalty,
		generationModel:   model,
	}, nil
}

func DefaultAISettings() AISettings {
	return AISettings{
		temperature:       0.7,
		topP:              0.9,
		topK:              40,
		maxResponse:       512,
		repetitionPenalty: 1.1,
		generationModel:   DefaultGenerationModel,
	}
}

func (s AISettings) Instructions() string       { return s.instructions }
func (s AISettings) Temperature() float64       { return s.temperature }
func (s AISettings) TopP() float64              { return s.topP }
func (s AISettings) TopK() int                  { return s.topK }
func (s AISettings) MaxResponse() int           { return s.maxResponse }
func (s AISettings) RepetitionPenalty() float64 { return s.repetitionPenalty }
func (s AISettings) GenerationModel() string    { return s.generationModel }

// Quota tracks the token budget of a bot.
type Quota struct {
	tokenLimit int
	tokensLeft int
}

func NewQuota(tokenLimit, tokensLeft int) (Quota, error) {
	if tokenLimit < 0 {
		return Quota{}, ErrInvalidQuota.WithMessage("token_limit must be non-negative, got %d", tokenLimit)
	}
	if tokensLeft < 0 {
		return Quota{}, ErrInvalidQuota.WithMessage("tokens_left must be non-negative, got %d", tokensLeft)
	}
	return Quota{tokenLimit: tokenLimit, tokensLeft: tokensLeft}, nil
}

// FullQuota returns a quota with tokens_left equal to the limit.
func FullQuota(tokenLimit int) (Quota, error) {
	return NewQuota(tokenLimit, tokenLimit)
}

func (q Quota) TokenLimit() int { return q.tokenLimit }
func (q Quota) TokensLeft() int { return q.tokensLeft }

func (q Quota) Deduct(n int) (Quota, error) {
	if n < 0 {
		return q, ErrInvalidQuota.WithMessage("cannot deduct a negative amount %d", n)
	}
	if n > q.tokensLeft {
		return q, ErrInsufficientTokens.WithMessage("requested %d tokens, %d left", n, q.tokensLeft)
	}
	return Quota{tokenLimit: q.tokenLimit, tokensLeft: q.tokensLeft - n}, nil
}
