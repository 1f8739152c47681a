/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errors defines the error kinds surfaced by the upstream client, the assignment
// engine and the schedule optimizer, together with classification helpers so that callers
// never need to match on error strings.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnavailable marks transport-level failures that persisted through retries.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrTimeout marks a request that exceeded its wall-clock deadline.
	ErrTimeout = errors.New("upstream timeout")
	// ErrCancelled marks a request aborted by context cancellation.
	ErrCancelled = errors.New("cancelled")
)

// ConfigMissingError reports a required configuration field that was absent at startup.
type ConfigMissingError struct {
	Field string
}

func (e *ConfigMissingError) Error() string {
	return fmt.Sprintf("required configuration field %q is missing", e.Field)
}

func IsConfigMissing(err error) bool {
	cme := &ConfigMissingError{}
	return errors.As(err, &cme)
}

// ClientError reports a non-retryable 4xx response from the upstream.
type ClientError struct {
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("upstream client error: status %d, body %q", e.StatusCode, e.Body)
}

// IsNotFound returns true if the err is a ClientError (even if it's wrapped) with a 404
// status (as opposed to a more serious or unexpected error).
func IsNotFound(err error) bool {
	ce := &ClientError{}
	return errors.As(err, &ce) && ce.StatusCode == http.StatusNotFound
}

// IsUnauthorized returns true for 401 and 403 responses, which some endpoints
// (reviews, answers) return without privileged credentials.
func IsUnauthorized(err error) bool {
	ce := &ClientError{}
	return errors.As(err, &ce) && (ce.StatusCode == http.StatusUnauthorized || ce.StatusCode == http.StatusForbidden)
}

func IsClientError(err error) bool {
	ce := &ClientError{}
	return errors.As(err, &ce)
}

// WireError reports a response element that did not match the schema expected under the
// pinned API version.
type WireError struct {
	Path  string
	Cause error
}

func (e *WireError) Error() string {
	return fmt.Sprintf("malformed wire data at %s: %v", e.Path, e.Cause)
}

func (e *WireError) Unwrap() error { return e.Cause }

func IsWireError(err error) bool {
	we := &WireError{}
	return errors.As(err, &we)
}

// TrackMismatchError reports a failed assignment precondition: the submission track
// taxonomy and the reviewer preference taxonomy do not cover each other.
type TrackMismatchError struct {
	OnlyInSubmissions []string
	OnlyInReviewers   []string
}

func (e *TrackMismatchError) Error() string {
	return fmt.Sprintf("track mismatch: tracks without reviewers [%s], preferences without submissions [%s]",
		strings.Join(e.OnlyInSubmissions, ", "), strings.Join(e.OnlyInReviewers, ", "))
}

func IsTrackMismatch(err error) bool {
	tme := &TrackMismatchError{}
	return errors.As(err, &tme)
}

// NoScheduleError reports that the optimizer could not produce a timetable, either because
// the model is infeasible or because the solver timed out without an incumbent.
type NoScheduleError struct {
	Reason string
}

func (e *NoScheduleError) Error() string {
	return fmt.Sprintf("no schedule: %s", e.Reason)
}

func IsNoSchedule(err error) bool {
	nse := &NoScheduleError{}
	return errors.As(err, &nse)
}

func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// IsRetryable reports whether an HTTP status should be retried with backoff.
func IsRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}
