// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates invalid caller input. Wrap it with the field detail:
// fmt.Errorf("%w: language is required", domain.ErrValidation).
var ErrValidation = errors.New("validation failed")

// ErrProviderUnavailable is returned when no initialized backend can serve a task profile.
var ErrProviderUnavailable = errors.New("no provider available")

// ErrTransport marks a network, timeout or non-2xx failure talking to a
// backend model service or the sandbox service.
var ErrTransport = errors.New("transport failure")

// ErrMalformedOutput marks a model response that could not be parsed into
// the expected structure. Agents absorb it; it never reaches a caller.
var ErrMalformedOutput = errors.New("malformed agent output")

// ErrVerification marks a verification command that exited non-zero.
var ErrVerification = errors.New("verification failed")

// ErrSessionFault marks an unexpected fault while driving an implementation session.
var ErrSessionFault = errors.New("session fault")
