// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package workflow implements the turn state machine.
//
// # Description
//
// A turn moves through a fixed, enumerable set of stages:
//
//	check_relevance ─┬─> write_query ─> execute_query ─> generate_answer ─> end
//	                 └─> handle_interactive ─────────────────────────────> end
//
// execute_query carries a suspend-before marker: the workflow persists a
// Checkpoint and returns control to the caller with an awaiting-confirmation
// outcome instead of running it. Resume is a first-class operation that
// loads the checkpoint, deletes it, and continues past the gate. Resumption
// never re-runs earlier stages.
//
// Each stage delegates to an external collaborator (classifier, synthesizer,
// executor, composer, responder). The collaborators are injected so the
// machine itself stays deterministic and testable.
//
// # Thread Safety
//
// A Workflow value is safe for concurrent use; all per-turn state lives in
// the TurnState passed to Run/Resume.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
)

// Stage names one state of the turn machine.
type Stage string

const (
	StageCheckRelevance    Stage = "check_relevance"
	StageWriteQuery        Stage = "write_query"
	StageExecuteQuery      Stage = "execute_query"
	StageGenerateAnswer    Stage = "generate_answer"
	StageHandleInteractive Stage = "handle_interactive"
	StageEnd               Stage = "end"
)

// Fallback answers. Answer generation never propagates failures: the turn
// still completes, and is still remembered, with one of these.
const (
	// NoDataFallback is returned without any model call when the executed
	// query produced no rows. The short-circuit is part of the contract:
	// an empty-result prompt would cost a model call for a deterministic
	// outcome.
	NoDataFallback = "Oops! It looks like there's no data matching that request right now. Please check the filters or try a different question."

	// GenerationFallback replaces the answer whenever composing it failed.
	GenerationFallback = "Oops! Something went wrong while putting the answer together. Please try again."
)

// =============================================================================
// Collaborator contracts
// =============================================================================

// RelevanceClassifier labels a question DATABASE or INTERACTIVE.
type RelevanceClassifier interface {
	Classify(ctx context.Context, question string) (datatypes.Branch, error)
}

// QuerySynthesizer produces a candidate SQL query from a question and a
// schema description.
type QuerySynthesizer interface {
	Synthesize(ctx context.Context, question, schema string) (string, error)
}

// QueryExecutor runs an approved query and returns its canonical display
// string.
type QueryExecutor interface {
	Execute(ctx context.Context, sqlQuery string) (string, error)
}

// SchemaProvider describes the relational schema for query synthesis.
type SchemaProvider interface {
	DescribeSchema(ctx context.Context) (string, error)
}

// AnswerComposer turns execution results plus memory context into a final
// natural-language answer.
type AnswerComposer interface {
	Compose(ctx context.Context, question, resultQuery, memories, history string) (string, error)
}

// InteractiveResponder produces a conversational answer without query
// execution.
type InteractiveResponder interface {
	Respond(ctx context.Context, question, memories, history string) (string, error)
}

// MemoryRecaller supplies the memory context for answer generation.
// Both methods degrade to an empty string on failure; memory lookup never
// blocks a turn.
type MemoryRecaller interface {
	RecallSemantic(ctx context.Context, userId, query string) string
	RecallSession(ctx context.Context, userId, sessionId string) string
}

// StepFn observes each completed stage. The state argument reflects the
// mutations that stage made.
type StepFn func(stage Stage, state *datatypes.TurnState)

// Outcome reports how a Run ended.
type Outcome struct {
	// AwaitingConfirmation is true when the workflow suspended before
	// execute_query and persisted a checkpoint. The caller owns the
	// confirmation wait and the later Resume call.
	AwaitingConfirmation bool
}

// =============================================================================
// Workflow
// =============================================================================

// Workflow is the turn state machine. Construct once and share.
type Workflow struct {
	classifier  RelevanceClassifier
	synthesizer QuerySynthesizer
	executor    QueryExecutor
	schema      SchemaProvider
	composer    AnswerComposer
	responder   InteractiveResponder
	recaller    MemoryRecaller
	checkpoints CheckpointStore

	transitions map[Stage]transition
}

// transition is one row of the machine's transition table.
type transition struct {
	run func(ctx context.Context, state *datatypes.TurnState) error

	// next picks the following stage from the mutated state.
	next func(state *datatypes.TurnState) Stage

	// suspendBefore marks the confirmation gate: the workflow checkpoints
	// and yields instead of entering this stage.
	suspendBefore bool
}

func New(
	classifier RelevanceClassifier,
	synthesizer QuerySynthesizer,
	executor QueryExecutor,
	schema SchemaProvider,
	composer AnswerComposer,
	responder InteractiveResponder,
	recaller MemoryRecaller,
	checkpoints CheckpointStore,
) *Workflow {
	w := &Workflow{
		classifier:  classifier,
		synthesizer: synthesizer,
		executor:    executor,
		schema:      schema,
		composer:    composer,
		responder:   responder,
		recaller:    recaller,
		checkpoints: checkpoints,
	}
	w.transitions = map[Stage]transition{
		StageCheckRelevance: {
			run: w.checkRelevance,
			next: func(s *datatypes.TurnState) Stage {
				if s.Branch == datatypes.BranchDatabase {
					return StageWriteQuery
				}
				return StageHandleInteractive
			},
		},
		StageWriteQuery: {
			run:  w.writeQuery,
			next: func(*datatypes.TurnState) Stage { return StageExecuteQuery },
		},
		StageExecuteQuery: {
			run:           w.executeQuery,
			next:          func(*datatypes.TurnState) Stage { return StageGenerateAnswer },
			suspendBefore: true,
		},
		StageGenerateAnswer: {
			run:  w.generateAnswer,
			next: func(*datatypes.TurnState) Stage { return StageEnd },
		},
		StageHandleInteractive: {
			run:  w.handleInteractive,
			next: func(*datatypes.TurnState) Stage { return StageEnd },
		},
	}
	return w
}

// Run processes a fresh turn from the start. When the DATABASE branch
// reaches the confirmation gate, the returned Outcome has
// AwaitingConfirmation set and a checkpoint exists for state.ThreadId.
func (w *Workflow) Run(ctx context.Context, state *datatypes.TurnState, emit StepFn) (Outcome, error) {
	return w.runFrom(ctx, StageCheckRelevance, state, emit, true)
}

// Resume continues a suspended turn past the confirmation gate. It loads
// the checkpoint for threadId, deletes it, and runs from the persisted
// next stage. A missing checkpoint is fatal for the turn (ErrNoCheckpoint).
func (w *Workflow) Resume(ctx context.Context, threadId string, emit StepFn) (*datatypes.TurnState, error) {
	cp, err := w.checkpoints.Load(ctx, threadId)
	if err != nil {
		return nil, err
	}
	if err := w.checkpoints.Delete(ctx, threadId); err != nil {
		return nil, err
	}
	slog.Info("Resuming turn from checkpoint", "thread_id", threadId, "next_stage", cp.NextStage)

	state := cp.State
	if _, err := w.runFrom(ctx, cp.NextStage, &state, emit, false); err != nil {
		return nil, err
	}
	return &state, nil
}

// Discard drops the checkpoint for a turn that will never be resumed
// (rejection or confirmation timeout).
func (w *Workflow) Discard(ctx context.Context, threadId string) error {
	return w.checkpoints.Delete(ctx, threadId)
}

func (w *Workflow) runFrom(ctx context.Context, start Stage, state *datatypes.TurnState,
	emit StepFn, allowSuspend bool) (Outcome, error) {

	stage := start
	for stage != StageEnd {
		tr, ok := w.transitions[stage]
		if !ok {
			return Outcome{}, fmt.Errorf("unknown workflow stage %q", stage)
		}

		if tr.suspendBefore && allowSuspend {
			cp := Checkpoint{State: *state, NextStage: stage}
			if err := w.checkpoints.Save(ctx, state.ThreadId, cp); err != nil {
				return Outcome{}, fmt.Errorf("failed to checkpoint turn: %w", err)
			}
			slog.Info("Turn suspended awaiting confirmation",
				"thread_id", state.ThreadId, "stage", stage)
			return Outcome{AwaitingConfirmation: true}, nil
		}
		// The gate applies once per turn: a resumed run enters the gated
		// stage directly, and later stages are never gated.
		allowSuspend = true

		if err := tr.run(ctx, state); err != nil {
			return Outcome{}, err
		}
		if emit != nil {
			emit(stage, state)
		}
		stage = tr.next(state)
	}
	return Outcome{}, nil
}

// =============================================================================
// Stage bodies
// =============================================================================

func (w *Workflow) checkRelevance(ctx context.Context, state *datatypes.TurnState) error {
	branch, err := w.classifier.Classify(ctx, state.Question)
	if err != nil {
		return &ClassificationError{Err: err}
	}
	state.Branch = branch
	if branch == datatypes.BranchInteractive {
		state.InteractiveResponse = datatypes.InteractiveMarker
	}
	slog.Info("Classified question", "thread_id", state.ThreadId, "branch", branch)
	return nil
}

func (w *Workflow) writeQuery(ctx context.Context, state *datatypes.TurnState) error {
	schema, err := w.schema.DescribeSchema(ctx)
	if err != nil {
		return &SynthesisError{Reason: "schema description unavailable", Err: err}
	}
	sqlQuery, err := w.synthesizer.Synthesize(ctx, state.Question, schema)
	if err != nil {
		return err
	}
	if strings.TrimSpace(sqlQuery) == "" {
		return &SynthesisError{Reason: "backend returned an empty query"}
	}
	state.SQLQuery = sqlQuery
	return nil
}

func (w *Workflow) executeQuery(ctx context.Context, state *datatypes.TurnState) error {
	result, err := w.executor.Execute(ctx, state.SQLQuery)
	if err != nil {
		return &ExecutionError{Err: err}
	}
	state.ResultQuery = result
	return nil
}

func (w *Workflow) generateAnswer(ctx context.Context, state *datatypes.TurnState) error {
	// Required short-circuit: no rows means no model call.
	if strings.TrimSpace(state.ResultQuery) == "" {
		state.Answer = NoDataFallback
		return nil
	}

	memories := w.recaller.RecallSemantic(ctx, state.UserId, state.Question)
	history := w.recaller.RecallSession(ctx, state.UserId, state.ThreadId)

	answer, err := w.composer.Compose(ctx, state.Question, state.ResultQuery, memories, history)
	if err != nil {
		slog.Error("Answer composition failed, using fallback",
			"thread_id", state.ThreadId, "error", err)
		state.Answer = GenerationFallback
		return nil
	}
	state.Answer = answer
	return nil
}

func (w *Workflow) handleInteractive(ctx context.Context, state *datatypes.TurnState) error {
	memories := w.recaller.RecallSemantic(ctx, state.UserId, state.Question)
	history := w.recaller.RecallSession(ctx, state.UserId, state.ThreadId)

	answer, err := w.responder.Respond(ctx, state.Question, memories, history)
	if err != nil {
		slog.Error("Interactive response failed, using fallback",
			"thread_id", state.ThreadId, "error", err)
		state.Answer = GenerationFallback
		return nil
	}
	state.Answer = answer
	return nil
}
