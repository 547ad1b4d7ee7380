// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
	"github.com/askdb-ai/askdb/services/orchestrator/services"
	"github.com/askdb-ai/askdb/services/orchestrator/sessions"
	"github.com/askdb-ai/askdb/services/orchestrator/workflow"
)

// chatBackend answers every question on the interactive branch.
type chatBackend struct{}

func (chatBackend) Classify(ctx context.Context, question string) (datatypes.Branch, error) {
	return datatypes.BranchInteractive, nil
}
func (chatBackend) Synthesize(ctx context.Context, question, schema string) (string, error) {
	return "", nil
}
func (chatBackend) Execute(ctx context.Context, sqlQuery string) (string, error) { return "", nil }
func (chatBackend) DescribeSchema(ctx context.Context) (string, error)           { return "", nil }
func (chatBackend) Compose(ctx context.Context, question, resultQuery, memories, history string) (string, error) {
	return "composed", nil
}
func (chatBackend) Respond(ctx context.Context, question, memories, history string) (string, error) {
	return "Hi there!", nil
}
func (chatBackend) RecallSemantic(ctx context.Context, userId, query string) string { return "" }
func (chatBackend) RecallSession(ctx context.Context, userId, sessionId string) string {
	return ""
}

type noopMemory struct{}

func (noopMemory) Remember(ctx context.Context, userId, sessionId, question, answer string) error {
	return nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *services.TurnService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	backend := chatBackend{}
	wf := workflow.New(
		backend, backend, backend, backend, backend, backend, backend,
		workflow.NewBadgerCheckpointStore(db),
	)
	svc := services.NewTurnService(sessions.NewRegistry(), wf, noopMemory{}, 5, 5*time.Millisecond)

	router := gin.New()
	router.POST("/ask", CreateSession(svc))
	router.POST("/ask/:sessionId", Ask(svc))
	router.POST("/ask/:sessionId/interrupt", Interrupt(svc))
	router.GET("/health", Health(svc))
	router.GET("/v1/sessions", ListSessions(svc))
	return router, svc
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSession(t *testing.T) {
	router, _ := newTestRouter(t)

	t.Run("creates a session", func(t *testing.T) {
		rec := postJSON(t, router, "/ask", datatypes.CreateSessionRequest{UserId: "alice"})
		require.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["session_id"])
		assert.Equal(t, "alice", resp["user_id"])
	})

	t.Run("rejects missing user id", func(t *testing.T) {
		rec := postJSON(t, router, "/ask", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAsk(t *testing.T) {
	router, svc := newTestRouter(t)
	session := svc.CreateSession("alice")

	t.Run("streams a full interactive turn", func(t *testing.T) {
		rec := postJSON(t, router, "/ask/"+session.Id,
			datatypes.AskRequest{UserId: "alice", Question: "hello"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		assert.Contains(t, body, "event: start")
		assert.Contains(t, body, "event: message")
		assert.Contains(t, body, "Hi there!")
		assert.Contains(t, body, "event: end")
		assert.Contains(t, body, session.Id)
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := postJSON(t, router, "/ask/missing",
			datatypes.AskRequest{UserId: "alice", Question: "hello"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong owner", func(t *testing.T) {
		rec := postJSON(t, router, "/ask/"+session.Id,
			datatypes.AskRequest{UserId: "mallory", Question: "hello"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing question", func(t *testing.T) {
		rec := postJSON(t, router, "/ask/"+session.Id,
			datatypes.AskRequest{UserId: "alice"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestInterrupt(t *testing.T) {
	router, svc := newTestRouter(t)
	session := svc.CreateSession("alice")

	t.Run("accepts a decision", func(t *testing.T) {
		rec := postJSON(t, router, fmt.Sprintf("/ask/%s/interrupt", session.Id),
			datatypes.InterruptRequest{UserId: "alice", Approved: true})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "success", resp["status"])
		assert.Equal(t, true, resp["approved"])
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := postJSON(t, router, "/ask/missing/interrupt",
			datatypes.InterruptRequest{UserId: "alice", Approved: true})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong owner", func(t *testing.T) {
		rec := postJSON(t, router, fmt.Sprintf("/ask/%s/interrupt", session.Id),
			datatypes.InterruptRequest{UserId: "mallory", Approved: false})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	router, svc := newTestRouter(t)
	svc.CreateSession("alice")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(1), resp["active_sessions"])
}

func TestListSessions(t *testing.T) {
	router, svc := newTestRouter(t)
	svc.CreateSession("alice")
	svc.CreateSession("bob")

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count    int                 `json:"count"`
		Sessions []datatypes.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Sessions, 2)
}
