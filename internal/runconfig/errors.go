// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package runconfig

import "errors"

var (
	// ErrEmptyDocument is returned for input without any YAML content.
	ErrEmptyDocument = errors.New("empty run config")
	// ErrMultipleDocuments is returned when the input holds more than one YAML document.
	ErrMultipleDocuments = errors.New("run config contains multiple documents or trailing content")
	// ErrSyntax classifies YAML syntax errors.
	ErrSyntax = errors.New("yaml syntax error")
	// ErrNotMapping is returned when the document root is not a mapping.
	ErrNotMapping = errors.New("run config root must be a mapping")
	// ErrUndefinedAlias is returned when an alias has no earlier anchor.
	ErrUndefinedAlias = errors.New("alias references undefined anchor")
	// ErrRecursiveAlias is returned when an alias is nested inside its own anchor.
	ErrRecursiveAlias = errors.New("recursive alias")
	// ErrExpansionLimit is returned when alias expansion grows beyond maxExpandedNodes.
	ErrExpansionLimit = errors.New("alias expansion limit exceeded")
	// ErrInvalidMerge is returned for << merge keys whose value is not a mapping.
	ErrInvalidMerge = errors.New("invalid merge key")
	// ErrDuplicateKey is returned when a mapping defines the same key twice.
	ErrDuplicateKey = errors.New("duplicate mapping key")
	// ErrUnsupportedFormat is returned for files that are not .yaml/.yml.
	ErrUnsupportedFormat = errors.New("unsupported config format")
	// ErrUnknownStage is returned when a named stage does not exist.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrInvalidConfig wraps accumulated validation errors.
	// Use errors.Is(err, ErrInvalidConfig) instead of string matching.
	ErrInvalidConfig = errors.New("invalid run config")
)
