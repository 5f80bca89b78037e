// Copyright 2026 Swarm Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package openrouter

import (
	"errors"
	"fmt"
)

// Machine-readable codes carried by UpstreamError.
const (
	CodeNoChoices    = "no_choices"
	CodeEmptyContent = "empty_content"
	CodeHTTPStatus   = "http_status"
	CodeNetwork      = "network"
	CodeDecode       = "decode"
	CodeAPIError     = "api_error"
)

// UpstreamError indicates the upstream model API returned an invalid or empty
// response, a non-success status, or the network call failed.
type UpstreamError struct {
	// Code is a machine-readable failure class (see Code* constants).
	Code string

	// Message describes the failure.
	Message string

	// StatusCode is the HTTP status, when one was received.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("openrouter: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("openrouter: %s: %s", e.Code, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstreamError reports whether err is (or wraps) an UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
