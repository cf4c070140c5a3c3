package estimates

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrDatabaseUnavailable = errors.New("database unavailable")
)

// Error codes surfaced in the HTTP error envelope.
const (
	CodeCooldownActive       = "cooldown_active"
	CodeDownstreamOverloaded = "downstream_overloaded"
	CodeStageFailed          = "stage_failed"
	CodePipelineMisconfig    = "pipeline_not_configured"
	CodeDatabaseUnavailable  = "database_unavailable"
)
