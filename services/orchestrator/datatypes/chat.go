// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the orchestrator service.
//
// This file contains the request types for the ask/interrupt endpoints and
// the typed events emitted over the SSE stream while a turn is processed.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// MaxQuestionBytes is the maximum size of a single question.
// Checked in bytes (not runes) to bound request memory.
const MaxQuestionBytes = 32 * 1024 // 32KB

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces the MaxQuestionBytes limit on string fields.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQuestionBytes
}

// =============================================================================
// Request Types
// =============================================================================

// CreateSessionRequest starts a new chat session for a user.
type CreateSessionRequest struct {
	UserId string `json:"user_id" validate:"required"`
}

// AskRequest submits one question into an existing session.
type AskRequest struct {
	UserId   string `json:"user_id" validate:"required"`
	Question string `json:"question" validate:"required,maxbytes"`
}

// InterruptRequest carries the human confirmation decision for a turn that
// is suspended at the query-execution gate.
type InterruptRequest struct {
	UserId   string `json:"user_id" validate:"required"`
	Approved bool   `json:"approved"`
}

// Validate runs struct validation on any chat request type.
func Validate(req any) error {
	return chatValidate.Struct(req)
}

// =============================================================================
// Stream Events
// =============================================================================

// EventType identifies the kind of a StreamEvent.
type EventType string

const (
	// EventStart opens every turn stream.
	EventStart EventType = "start"

	// EventInterrupt signals that the workflow is suspended awaiting
	// human confirmation before executing the synthesized query.
	EventInterrupt EventType = "interrupt"

	// EventMessage carries final answer text.
	EventMessage EventType = "message"

	// EventResult carries the formatted query output.
	EventResult EventType = "result"

	// EventDebug carries a raw intermediate workflow step.
	EventDebug EventType = "debug"

	// EventError carries a failure; it terminates the turn.
	EventError EventType = "error"

	// EventEnd closes the stream after successful processing.
	EventEnd EventType = "end"
)

// StreamEvent is a single typed event on the turn's SSE stream.
//
// Id and CreatedAt are populated by the SSE writer at emission time; the
// controller only sets Type, Data and (for end events) SessionId.
type StreamEvent struct {
	Id        string    `json:"id,omitempty"`
	Type      EventType `json:"type"`
	Data      string    `json:"data"`
	SessionId string    `json:"session_id,omitempty"`
	CreatedAt int64     `json:"created_at,omitempty"`
}
