package drafting

import "errors"

var (
	ErrGeneratorRequired    = errors.New("generator is required")
	ErrInvalidMaxToolRounds = errors.New("maxToolRounds must be greater than 0")
	ErrInstructionRequired  = errors.New("regeneration instruction is required")
	ErrUnknownTool          = errors.New("unknown tool")
	ErrToolUnavailable      = errors.New("tool backend not configured")
)
