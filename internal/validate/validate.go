// SPDX-License-Identifier: MIT

// Package validate collects field-level configuration problems so they can
// be reported together.
package validate

import (
	"cmp"
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Error is a single rejected field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError is returned by Validator.Err when at least one field failed.
type ValidationError struct {
	errs []Error
}

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errs))
	for i, fe := range e.errs {
		msgs[i] = fe.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Errors returns a copy of the field errors.
func (e ValidationError) Errors() []Error { return slices.Clone(e.errs) }

// Validator accumulates field errors. The zero value is ready to use.
type Validator struct {
	errs []Error
}

func New() *Validator { return &Validator{} }

// AddError records a failure for field.
func (v *Validator) AddError(field, message string, value any) {
	v.errs = append(v.errs, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) IsValid() bool { return len(v.errs) == 0 }

func (v *Validator) Errors() []Error { return slices.Clone(v.errs) }

// Err returns nil or a ValidationError.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return ValidationError{errs: v.Errors()}
}

// Between records an error unless lo <= value <= hi.
func Between[T cmp.Ordered](v *Validator, field string, value, lo, hi T) {
	if value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("must be between %v and %v", lo, hi), value)
	}
}

func (v *Validator) Range(field string, value, lo, hi int) { Between(v, field, value, lo, hi) }

func (v *Validator) DurationRange(field string, value, lo, hi time.Duration) {
	Between(v, field, value, lo, hi)
}

func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, "must be positive", value)
	}
}

func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "must not be empty", value)
	}
}

func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field, "must be one of "+strings.Join(allowed, ", "), value)
	}
}

// URL requires an absolute URL with a host and one of schemes.
func (v *Validator) URL(field, value string, schemes []string) {
	u, err := url.Parse(value)
	switch {
	case value == "":
		v.AddError(field, "must not be empty", value)
	case err != nil:
		v.AddError(field, "not a URL: "+err.Error(), value)
	case !slices.Contains(schemes, u.Scheme):
		v.AddError(field, "scheme must be one of "+strings.Join(schemes, ", "), value)
	case u.Host == "":
		v.AddError(field, "missing host", value)
	}
}

// HostPort requires "host:port" with a numeric port in 1..65535. The host may
// be empty, as in ":8089".
func (v *Validator) HostPort(field, value string) {
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		v.AddError(field, "must be host:port", value)
		return
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		v.AddError(field, "port must be 1-65535", value)
	}
}

// Path rejects relative paths that climb out of the working directory.
func (v *Validator) Path(field, value string) {
	if value == "" {
		return
	}
	clean := filepath.Clean(value)
	if !filepath.IsAbs(clean) && (clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))) {
		v.AddError(field, "must not escape the working directory", value)
	}
}

// LogLevel accepts any zerolog level name, case-insensitively. Empty means
// the default.
func (v *Validator) LogLevel(field, value string) {
	if value == "" {
		return
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(value)); err != nil {
		v.AddError(field, "unknown log level", value)
	}
}
