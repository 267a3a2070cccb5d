// SPDX-License-Identifier: MIT

// Package validate provides accumulating validation utilities for run configs
// and tool settings.
package validate

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Severity classifies an accumulated issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Error represents a validation error. Field is the dotted path of the
// offending value; Line and Column are zero when the position is unknown.
type Error struct {
	Field    string      `json:"field"`
	Value    interface{} `json:"value,omitempty"`
	Message  string      `json:"message"`
	Severity Severity    `json:"severity"`
	Line     int         `json:"line,omitempty"`
	Column   int         `json:"column,omitempty"`
}

// Error implements the error interface
func (e Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("validation failed for %s (line %d): %s", e.Field, e.Line, e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates validation errors and warnings and can produce a
// ValidationError when invalid.
type Validator struct {
	errors   []Error
	warnings []Error
}

// ValidationError bundles multiple validation errors into a single error value.
type ValidationError struct {
	errors []Error
}

// New creates a new validator
func New() *Validator {
	return &Validator{
		errors: make([]Error, 0),
	}
}

// AddError adds a validation error
func (v *Validator) AddError(field, message string, value interface{}) {
	v.AddErrorAt(field, message, value, 0, 0)
}

// AddErrorAt adds a validation error carrying a source position.
func (v *Validator) AddErrorAt(field, message string, value interface{}, line, column int) {
	v.errors = append(v.errors, Error{
		Field:    field,
		Value:    value,
		Message:  message,
		Severity: SeverityError,
		Line:     line,
		Column:   column,
	})
}

// AddWarning records a non-fatal finding.
func (v *Validator) AddWarning(field, message string, value interface{}) {
	v.AddWarningAt(field, message, value, 0, 0)
}

// AddWarningAt records a non-fatal finding carrying a source position.
func (v *Validator) AddWarningAt(field, message string, value interface{}, line, column int) {
	v.warnings = append(v.warnings, Error{
		Field:    field,
		Value:    value,
		Message:  message,
		Severity: SeverityWarning,
		Line:     line,
		Column:   column,
	})
}

// Report records a finding as an error when strict is set and as a warning otherwise.
func (v *Validator) Report(strict bool, field, message string, value interface{}, line, column int) {
	if strict {
		v.AddErrorAt(field, message, value, line, column)
		return
	}
	v.AddWarningAt(field, message, value, line, column)
}

// IsValid returns true if no errors have been accumulated
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all accumulated validation errors
func (v *Validator) Errors() []Error {
	return v.errors
}

// Warnings returns all accumulated warnings
func (v *Validator) Warnings() []Error {
	return v.warnings
}

// Clear drops everything accumulated so far.
func (v *Validator) Clear() {
	v.errors = v.errors[:0]
	v.warnings = v.warnings[:0]
}

// Err converts the accumulated validation errors into an error value.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}

	copied := make([]Error, len(v.errors))
	copy(copied, v.errors)

	return ValidationError{errors: copied}
}

// Errors returns the individual validation errors making up the validation failure.
func (e ValidationError) Errors() []Error {
	return e.errors
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	if len(e.errors) == 0 {
		return ""
	}

	if len(e.errors) == 1 {
		return e.errors[0].Error()
	}

	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Port validates a port number (1-65535)
func (v *Validator) Port(field string, port int) {
	if port <= 0 || port > 65535 {
		v.AddError(field,
			fmt.Sprintf("port must be between 1 and 65535, got %d", port),
			port)
	}
}

// ListenAddr validates a host:port listen address. The host may be empty.
func (v *Validator) ListenAddr(field, addr string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), addr)
		return
	}
	if host != "" && net.ParseIP(host) == nil && strings.ContainsAny(host, " /") {
		v.AddError(field, "invalid host in listen address", addr)
		return
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		v.AddError(field, "port must be numeric", addr)
		return
	}
	// :0 lets the kernel pick a port
	if p != 0 {
		v.Port(field, p)
	}
}

// Range validates that an integer is within a specified range (inclusive)
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.AddError(field,
			fmt.Sprintf("value must be between %d and %d, got %d", minVal, maxVal, value),
			value)
	}
}

// NotEmpty validates that a string is not empty or whitespace-only
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// NonNegative validates that a number is non-negative (>= 0)
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %d", value), value)
	}
}

// WritableDirectory validates that path is a directory the process can write to.
// When mustExist is false a missing directory is created.
func (v *Validator) WritableDirectory(field, path string, mustExist bool) {
	if path == "" {
		v.AddError(field, "directory path cannot be empty", path)
		return
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid path: %v", err), path)
		return
	}

	info, err := os.Stat(absPath)
	switch {
	case os.IsNotExist(err):
		if mustExist {
			v.AddError(field, "directory does not exist", path)
			return
		}
		if err := os.MkdirAll(absPath, 0750); err != nil {
			v.AddError(field, fmt.Sprintf("cannot create directory: %v", err), path)
			return
		}
	case err != nil:
		v.AddError(field, fmt.Sprintf("cannot access directory: %v", err), path)
		return
	case !info.IsDir():
		v.AddError(field, "path is not a directory", path)
		return
	}

	probe, err := os.CreateTemp(absPath, ".runcfg-write-probe-*")
	if err != nil {
		v.AddError(field, fmt.Sprintf("directory is not writable: %v", err), path)
		return
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
}
