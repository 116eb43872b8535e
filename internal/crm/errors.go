// CaseSync - UAT Case Tracker and CRM Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/casesync

package crm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ConfigurationError reports missing or unusable endpoint configuration.
// It is never retryable.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return "crm configuration: " + e.Msg + ": " + e.Err.Error()
	}
	return "crm configuration: " + e.Msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AuthenticationError reports a rejected or malformed token exchange.
type AuthenticationError struct {
	StatusCode int
	Msg        string
	Err        error
}

func (e *AuthenticationError) Error() string {
	var b strings.Builder
	b.WriteString("crm authentication failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RemoteRequestError reports a network failure, a non-success status or an
// unusable response body from a data operation.
type RemoteRequestError struct {
	Operation  string
	Method     string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s request failed with status %d: %s", e.Method, e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s request failed: %v", e.Method, e.Operation, e.Err)
}

func (e *RemoteRequestError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether err is an authentication-class failure:
// an AuthenticationError or a 401/403 from a data call.
func IsAuthFailure(err error) bool {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return true
	}
	var reqErr *RemoteRequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode == http.StatusUnauthorized || reqErr.StatusCode == http.StatusForbidden
	}
	return false
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// isClientError reports 4xx responses, which say nothing about remote health.
func isClientError(err error) bool {
	var reqErr *RemoteRequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode >= 400 && reqErr.StatusCode < 500
	}
	return false
}
