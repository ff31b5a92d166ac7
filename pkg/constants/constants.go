package constants

import (
	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	TxKey     ContextKey = "tx"
	PoolKey   ContextKey = "pool"
	LoggerKey ContextKey = "logger"
	UserIDKey ContextKey = "user_id"
	AppKey    ContextKey = "app"

	RequestStart ContextKey = "request_start"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
