// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package services implements the orchestrator business logic.
//
// # Description
//
// TurnService is the streaming session controller. It sits between the HTTP
// handlers and the turn workflow: it authorizes the session, runs the
// workflow, translates stage completions into typed stream events, owns the
// confirmation wait at the query-execution gate, and remembers the finished
// turn.
//
// # Event Contract
//
// Every stream opens with a start event. A successfully processed turn ends
// with exactly one end event carrying the session id; any stage failure ends
// the stream with exactly one error event and no end event. The interrupt
// event appears only on the DATABASE branch, after the synthesized query is
// known and before it runs.
//
// # Thread Safety
//
// Safe for concurrent use across sessions. Turns within one session are the
// caller's responsibility to serialize; the confirmation decision box is
// cleared at the start of each turn so a stale decision can never approve a
// later query.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
	"github.com/askdb-ai/askdb/services/orchestrator/observability"
	"github.com/askdb-ai/askdb/services/orchestrator/sessions"
	"github.com/askdb-ai/askdb/services/orchestrator/workflow"
)

// User-facing stream text.
const (
	startInfo = "Processing question..."
	endInfo   = "Finished processing question"

	confirmationPrompt = "Do you want to execute this query?"

	// cancellationAnswer closes a turn whose query the user rejected. The
	// turn completes normally but is not remembered.
	cancellationAnswer = "Operation cancelled by the user."

	timeoutMessage = "Timed out waiting for query confirmation. Please ask again."
)

// errConfirmationTimeout distinguishes a poll timeout from client
// disconnect inside the confirmation wait.
var errConfirmationTimeout = errors.New("confirmation wait timed out")

// TurnMemory persists a finished turn.
type TurnMemory interface {
	Remember(ctx context.Context, userId, sessionId, question, answer string) error
}

// TurnService drives question turns end to end.
type TurnService struct {
	registry  *sessions.Registry
	workflow  *workflow.Workflow
	memory    TurnMemory
	decisions *decisionBox

	confirmMaxTicks     int
	confirmTickInterval time.Duration
}

func NewTurnService(
	registry *sessions.Registry,
	wf *workflow.Workflow,
	memory TurnMemory,
	confirmMaxTicks int,
	confirmTickInterval time.Duration,
) *TurnService {
	return &TurnService{
		registry:            registry,
		workflow:            wf,
		memory:              memory,
		decisions:           newDecisionBox(),
		confirmMaxTicks:     confirmMaxTicks,
		confirmTickInterval: confirmTickInterval,
	}
}

// CreateSession registers a new session for userId.
func (s *TurnService) CreateSession(userId string) datatypes.Session {
	observability.SessionsCreated.Inc()
	session := s.registry.Create(userId)
	slog.Info("Session created", "session_id", session.Id, "user_id", userId)
	return session
}

// ActiveSessions returns the live session count for health reporting.
func (s *TurnService) ActiveSessions() int {
	return s.registry.Count()
}

// ListSessions returns all live sessions, oldest first.
func (s *TurnService) ListSessions() []datatypes.Session {
	return s.registry.List()
}

// SubmitInterrupt records the human decision for the turn suspended on
// sessionId. Authorization failures surface as sessions.ErrNotFound or
// sessions.ErrOwnerMismatch.
func (s *TurnService) SubmitInterrupt(sessionId, userId string, approved bool) error {
	if _, err := s.registry.Authorize(sessionId, userId); err != nil {
		return err
	}
	s.decisions.Put(sessionId, approved)
	slog.Info("Confirmation decision received", "session_id", sessionId, "approved", approved)
	return nil
}

// Ask starts one turn and returns its event stream. Authorization happens
// before the stream exists, so unknown-session and wrong-owner failures are
// plain errors, never stream events. The channel is closed when the turn is
// over or ctx is cancelled.
func (s *TurnService) Ask(ctx context.Context, sessionId, userId, question string) (<-chan datatypes.StreamEvent, error) {
	if _, err := s.registry.Authorize(sessionId, userId); err != nil {
		return nil, err
	}

	// A decision left over from a previous turn must not approve this one.
	s.decisions.Clear(sessionId)

	events := make(chan datatypes.StreamEvent)
	go s.process(ctx, sessionId, userId, question, events)
	return events, nil
}

func (s *TurnService) process(ctx context.Context, sessionId, userId, question string,
	events chan<- datatypes.StreamEvent) {

	defer close(events)
	observability.ActiveTurns.Inc()
	defer observability.ActiveTurns.Dec()
	started := time.Now()

	// emit reports false once the client is gone; the workflow keeps its
	// own state consistent, the stream just stops.
	emit := func(ev datatypes.StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	state := &datatypes.TurnState{
		Question: question,
		UserId:   userId,
		ThreadId: sessionId,
	}

	if !emit(datatypes.StreamEvent{Type: datatypes.EventStart, Data: startInfo}) {
		return
	}

	step := func(stage workflow.Stage, st *datatypes.TurnState) {
		emit(stageEvent(stage, st))
	}

	outcome, err := s.workflow.Run(ctx, state, step)
	if err != nil {
		s.failTurn(ctx, state, emit, err)
		return
	}

	if outcome.AwaitingConfirmation {
		prompt := fmt.Sprintf("%s\n\n%s", confirmationPrompt, state.SQLQuery)
		if !emit(datatypes.StreamEvent{Type: datatypes.EventInterrupt, Data: prompt}) {
			s.discardCheckpoint(sessionId)
			return
		}

		approved, err := s.awaitDecision(ctx, sessionId)
		switch {
		case errors.Is(err, errConfirmationTimeout):
			s.discardCheckpoint(sessionId)
			observability.TurnConfirmations.WithLabelValues(observability.ConfirmationTimeout).Inc()
			observability.TurnsTotal.WithLabelValues(branchLabel(state), observability.TurnStatusFailed).Inc()
			slog.Warn("Confirmation wait timed out", "session_id", sessionId)
			emit(datatypes.StreamEvent{Type: datatypes.EventError, Data: timeoutMessage})
			return
		case err != nil: // client disconnected
			s.discardCheckpoint(sessionId)
			return
		case !approved:
			s.discardCheckpoint(sessionId)
			observability.TurnConfirmations.WithLabelValues(observability.ConfirmationRejected).Inc()
			observability.TurnsTotal.WithLabelValues(branchLabel(state), observability.TurnStatusCancelled).Inc()
			slog.Info("Query rejected by user", "session_id", sessionId)
			// A rejected turn completes, with the cancellation answer, but
			// is never remembered.
			if emit(datatypes.StreamEvent{Type: datatypes.EventMessage, Data: cancellationAnswer}) {
				emit(datatypes.StreamEvent{Type: datatypes.EventEnd, Data: endInfo, SessionId: sessionId})
			}
			return
		}

		observability.TurnConfirmations.WithLabelValues(observability.ConfirmationApproved).Inc()
		resumed, err := s.workflow.Resume(ctx, sessionId, step)
		if err != nil {
			s.failTurn(ctx, state, emit, err)
			return
		}
		state = resumed
	}

	if err := s.memory.Remember(ctx, userId, sessionId, question, state.Answer); err != nil {
		slog.Error("Failed to remember turn", "session_id", sessionId, "error", err)
	}

	emit(datatypes.StreamEvent{Type: datatypes.EventEnd, Data: endInfo, SessionId: sessionId})
	observability.TurnsTotal.WithLabelValues(branchLabel(state), observability.TurnStatusCompleted).Inc()
	observability.TurnDuration.WithLabelValues(branchLabel(state)).Observe(time.Since(started).Seconds())
}

// stageEvent maps a completed workflow stage to its stream event.
func stageEvent(stage workflow.Stage, st *datatypes.TurnState) datatypes.StreamEvent {
	switch stage {
	case workflow.StageCheckRelevance:
		return datatypes.StreamEvent{
			Type: datatypes.EventDebug,
			Data: fmt.Sprintf("%s: %s", stage, st.Branch),
		}
	case workflow.StageWriteQuery:
		return datatypes.StreamEvent{
			Type: datatypes.EventDebug,
			Data: fmt.Sprintf("%s: %s", stage, st.SQLQuery),
		}
	case workflow.StageExecuteQuery:
		return datatypes.StreamEvent{Type: datatypes.EventResult, Data: st.ResultQuery}
	case workflow.StageGenerateAnswer, workflow.StageHandleInteractive:
		return datatypes.StreamEvent{Type: datatypes.EventMessage, Data: st.Answer}
	default:
		return datatypes.StreamEvent{Type: datatypes.EventDebug, Data: string(stage)}
	}
}

// failTurn ends the stream with the turn's single error event.
func (s *TurnService) failTurn(ctx context.Context, state *datatypes.TurnState,
	emit func(datatypes.StreamEvent) bool, err error) {

	slog.Error("Turn failed", "session_id", state.ThreadId, "error", err)
	observability.TurnsTotal.WithLabelValues(branchLabel(state), observability.TurnStatusFailed).Inc()
	emit(datatypes.StreamEvent{Type: datatypes.EventError, Data: err.Error()})
}

// awaitDecision polls the decision box once per tick until a decision
// arrives, the tick budget runs out, or the client disconnects.
func (s *TurnService) awaitDecision(ctx context.Context, sessionId string) (bool, error) {
	ticker := time.NewTicker(s.confirmTickInterval)
	defer ticker.Stop()

	for tick := 0; tick < s.confirmMaxTicks; tick++ {
		if approved, ok := s.decisions.Take(sessionId); ok {
			return approved, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
	return false, errConfirmationTimeout
}

// discardCheckpoint drops the suspended turn's checkpoint so the suspended
// state cannot leak into a later turn on the same session.
func (s *TurnService) discardCheckpoint(sessionId string) {
	if err := s.workflow.Discard(context.Background(), sessionId); err != nil {
		slog.Error("Failed to discard checkpoint", "session_id", sessionId, "error", err)
	}
}

func branchLabel(state *datatypes.TurnState) string {
	if state.Branch == "" {
		return "unknown"
	}
	return string(state.Branch)
}
