// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldCommand   = "command"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Config fields
	FieldPath     = "path"
	FieldDigest   = "digest"
	FieldModel    = "model"
	FieldStage    = "stage"
	FieldCallback = "callback"
	FieldErrors   = "errors"
	FieldWarnings = "warnings"

	// Network fields
	FieldListenAddr = "listen_addr"
	FieldRedisAddr  = "redis_addr"
)
