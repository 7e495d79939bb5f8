// Package services defines the relay logic: reply resolution, the
// conversation directory, and the router that moves messages between private
// chats and forum topics.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Mapping misses and storage conflicts are not errors at this layer; only
// failures that abort a relay are represented here.
package services

import "errors"

// Relay errors.
var (
	// ErrThreadCreateFailed is returned when the forum topic for a first-time
	// user could not be created. Nothing is persisted in that case.
	ErrThreadCreateFailed = errors.New("forum thread creation failed")

	// ErrRelayFailed is returned when copying a message to its destination
	// failed. No link is recorded for the source message.
	ErrRelayFailed = errors.New("message relay failed")
)
