package constants

import "github.com/go-playground/validator/v10"

// Validate is the process-wide validator instance used by DTO Ok() methods.
var Validate = validator.New(validator.WithRequiredStructEnabled())

type ContextKey string

const (
	PoolKey     ContextKey = "pool"
	TxKey       ContextKey = "tx"
	LoggerKey   ContextKey = "logger"
	TenantIDKey ContextKey = "tenantID"
	ParamsKey   ContextKey = "params"
)
