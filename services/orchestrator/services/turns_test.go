// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
	"github.com/askdb-ai/askdb/services/orchestrator/sessions"
	"github.com/askdb-ai/askdb/services/orchestrator/workflow"
)

// fakeBackend implements every workflow collaborator with canned results.
type fakeBackend struct {
	branch      datatypes.Branch
	classifyErr error
	sqlQuery    string
	synthErr    error
	result      string
	execErr     error
	answer      string
	composeErr  error

	composeCalls int
}

func (f *fakeBackend) Classify(ctx context.Context, question string) (datatypes.Branch, error) {
	return f.branch, f.classifyErr
}

func (f *fakeBackend) Synthesize(ctx context.Context, question, schema string) (string, error) {
	return f.sqlQuery, f.synthErr
}

func (f *fakeBackend) Execute(ctx context.Context, sqlQuery string) (string, error) {
	return f.result, f.execErr
}

func (f *fakeBackend) DescribeSchema(ctx context.Context) (string, error) {
	return "CREATE TABLE orders (id INTEGER)", nil
}

func (f *fakeBackend) Compose(ctx context.Context, question, resultQuery, memories, history string) (string, error) {
	f.composeCalls++
	return f.answer, f.composeErr
}

func (f *fakeBackend) Respond(ctx context.Context, question, memories, history string) (string, error) {
	return f.answer, f.composeErr
}

func (f *fakeBackend) RecallSemantic(ctx context.Context, userId, query string) string {
	return ""
}

func (f *fakeBackend) RecallSession(ctx context.Context, userId, sessionId string) string {
	return ""
}

// fakeMemory records Remember calls.
type fakeMemory struct {
	mu    sync.Mutex
	saved [][2]string
}

func (m *fakeMemory) Remember(ctx context.Context, userId, sessionId, question, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, [2]string{question, answer})
	return nil
}

func (m *fakeMemory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func newTestService(t *testing.T, backend *fakeBackend, maxTicks int) (*TurnService, *fakeMemory, string) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	wf := workflow.New(
		backend, backend, backend, backend, backend, backend, backend,
		workflow.NewBadgerCheckpointStore(db),
	)
	memory := &fakeMemory{}
	registry := sessions.NewRegistry()
	svc := NewTurnService(registry, wf, memory, maxTicks, 5*time.Millisecond)
	session := svc.CreateSession("alice")
	return svc, memory, session.Id
}

// collect drains the stream, optionally answering the interrupt event with
// the given decision.
func collect(t *testing.T, svc *TurnService, sessionId string,
	events <-chan datatypes.StreamEvent, decision *bool) []datatypes.StreamEvent {
	t.Helper()

	var got []datatypes.StreamEvent
	for ev := range events {
		got = append(got, ev)
		if ev.Type == datatypes.EventInterrupt && decision != nil {
			require.NoError(t, svc.SubmitInterrupt(sessionId, "alice", *decision))
		}
	}
	return got
}

func eventTypes(events []datatypes.StreamEvent) []datatypes.EventType {
	out := make([]datatypes.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestTurnService_InteractiveTurn(t *testing.T) {
	backend := &fakeBackend{branch: datatypes.BranchInteractive, answer: "Hello! I'm AskDB."}
	svc, memory, sessionId := newTestService(t, backend, 10)

	events, err := svc.Ask(context.Background(), sessionId, "alice", "who are you?")
	require.NoError(t, err)
	got := collect(t, svc, sessionId, events, nil)

	assert.Equal(t, []datatypes.EventType{
		datatypes.EventStart, datatypes.EventDebug,
		datatypes.EventMessage, datatypes.EventEnd,
	}, eventTypes(got))
	assert.Equal(t, "Hello! I'm AskDB.", got[2].Data)
	assert.Equal(t, sessionId, got[3].SessionId)
	assert.Equal(t, 1, memory.count())
}

func TestTurnService_DatabaseTurnApproved(t *testing.T) {
	backend := &fakeBackend{
		branch:   datatypes.BranchDatabase,
		sqlQuery: "SELECT count(id) FROM orders",
		result:   "| Column 1 |\n| 42 |",
		answer:   "There are 42 orders.",
	}
	svc, memory, sessionId := newTestService(t, backend, 100)

	approve := true
	events, err := svc.Ask(context.Background(), sessionId, "alice", "how many orders?")
	require.NoError(t, err)
	got := collect(t, svc, sessionId, events, &approve)

	assert.Equal(t, []datatypes.EventType{
		datatypes.EventStart, datatypes.EventDebug, datatypes.EventDebug,
		datatypes.EventInterrupt, datatypes.EventResult,
		datatypes.EventMessage, datatypes.EventEnd,
	}, eventTypes(got))
	assert.Contains(t, got[3].Data, "SELECT count(id) FROM orders")
	assert.Equal(t, "There are 42 orders.", got[5].Data)
	assert.Equal(t, 1, memory.count())
}

func TestTurnService_DatabaseTurnRejected(t *testing.T) {
	backend := &fakeBackend{
		branch:   datatypes.BranchDatabase,
		sqlQuery: "DELETE FROM orders",
		answer:   "should never be composed",
	}
	svc, memory, sessionId := newTestService(t, backend, 100)

	reject := false
	events, err := svc.Ask(context.Background(), sessionId, "alice", "drop everything")
	require.NoError(t, err)
	got := collect(t, svc, sessionId, events, &reject)

	types := eventTypes(got)
	assert.Equal(t, datatypes.EventMessage, types[len(types)-2])
	assert.Equal(t, datatypes.EventEnd, types[len(types)-1])
	assert.Equal(t, cancellationAnswer, got[len(got)-2].Data)

	// Rejected turns are not remembered and leave no checkpoint behind.
	assert.Equal(t, 0, memory.count())
	assert.Equal(t, 0, backend.composeCalls)
}

func TestTurnService_ConfirmationTimeout(t *testing.T) {
	backend := &fakeBackend{branch: datatypes.BranchDatabase, sqlQuery: "SELECT 1"}
	svc, memory, sessionId := newTestService(t, backend, 2)

	events, err := svc.Ask(context.Background(), sessionId, "alice", "how many orders?")
	require.NoError(t, err)
	got := collect(t, svc, sessionId, events, nil)

	types := eventTypes(got)
	assert.Equal(t, datatypes.EventError, types[len(types)-1])
	assert.Equal(t, timeoutMessage, got[len(got)-1].Data)
	assert.NotContains(t, types, datatypes.EventEnd)
	assert.Equal(t, 0, memory.count())
}

func TestTurnService_StageFailureEmitsSingleError(t *testing.T) {
	backend := &fakeBackend{classifyErr: errors.New("backend offline")}
	svc, memory, sessionId := newTestService(t, backend, 10)

	events, err := svc.Ask(context.Background(), sessionId, "alice", "anything")
	require.NoError(t, err)
	got := collect(t, svc, sessionId, events, nil)

	assert.Equal(t, []datatypes.EventType{
		datatypes.EventStart, datatypes.EventError,
	}, eventTypes(got))
	assert.Equal(t, 0, memory.count())
}

func TestTurnService_NoDataShortCircuit(t *testing.T) {
	backend := &fakeBackend{
		branch:   datatypes.BranchDatabase,
		sqlQuery: "SELECT id FROM orders WHERE 1=0",
		result:   "",
		answer:   "should never be composed",
	}
	svc, memory, sessionId := newTestService(t, backend, 100)

	approve := true
	events, err := svc.Ask(context.Background(), sessionId, "alice", "orders from 1850?")
	require.NoError(t, err)
	got := collect(t, svc, sessionId, events, &approve)

	assert.Equal(t, workflow.NoDataFallback, got[len(got)-2].Data)
	assert.Equal(t, 0, backend.composeCalls)
	assert.Equal(t, 1, memory.count())
}

func TestTurnService_AskAuthorization(t *testing.T) {
	backend := &fakeBackend{branch: datatypes.BranchInteractive, answer: "hi"}
	svc, _, sessionId := newTestService(t, backend, 10)
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		_, err := svc.Ask(ctx, "missing", "alice", "q")
		assert.ErrorIs(t, err, sessions.ErrNotFound)
	})

	t.Run("wrong owner", func(t *testing.T) {
		_, err := svc.Ask(ctx, sessionId, "mallory", "q")
		assert.ErrorIs(t, err, sessions.ErrOwnerMismatch)
	})

	t.Run("interrupt for unknown session", func(t *testing.T) {
		err := svc.SubmitInterrupt("missing", "alice", true)
		assert.ErrorIs(t, err, sessions.ErrNotFound)
	})
}

func TestTurnService_StaleDecisionIsCleared(t *testing.T) {
	backend := &fakeBackend{branch: datatypes.BranchDatabase, sqlQuery: "SELECT 1"}
	svc, _, sessionId := newTestService(t, backend, 2)

	// Decision posted before the turn starts must not auto-approve it.
	require.NoError(t, svc.SubmitInterrupt(sessionId, "alice", true))

	events, err := svc.Ask(context.Background(), sessionId, "alice", "how many?")
	require.NoError(t, err)
	got := collect(t, svc, sessionId, events, nil)

	types := eventTypes(got)
	assert.Equal(t, datatypes.EventError, types[len(types)-1])
	assert.Equal(t, timeoutMessage, got[len(got)-1].Data)
}
