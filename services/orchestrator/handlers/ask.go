// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
	"github.com/askdb-ai/askdb/services/orchestrator/services"
	"github.com/askdb-ai/askdb/services/orchestrator/sessions"
)

// Ask handles POST /ask/:sessionId: it runs one question turn and streams
// the typed events back over SSE.
//
// # Description
//
// Session authorization happens before the stream is opened, so unknown
// sessions and ownership violations come back as plain JSON errors with
// 404/403. Once streaming starts, all failures travel inside the stream as
// error events.
//
// The request context is the turn's lifetime: when the client disconnects,
// the controller observes the cancellation and stops emitting.
func Ask(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId := c.Param("sessionId")

		var req datatypes.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := datatypes.Validate(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		events, err := svc.Ask(c.Request.Context(), sessionId, req.UserId, req.Question)
		if err != nil {
			writeSessionError(c, sessionId, err)
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}

		// The confirmation wait can hold the stream open for a minute with
		// no events; comment pings keep proxies from dropping it.
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := writer.WriteKeepAlive(); err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		slog.Info("Turn stream opened", "session_id", sessionId, "user_id", req.UserId)
		for event := range events {
			if err := writer.WriteEvent(event); err != nil {
				// The request context cancellation unblocks the controller;
				// nothing more can be delivered on this connection.
				slog.Warn("Turn stream write failed", "session_id", sessionId, "error", err)
				return
			}
		}
	}
}

// Interrupt handles POST /ask/:sessionId/interrupt: it records the human
// decision for the turn suspended at the query-execution gate.
func Interrupt(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionId := c.Param("sessionId")

		var req datatypes.InterruptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := datatypes.Validate(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := svc.SubmitInterrupt(sessionId, req.UserId, req.Approved); err != nil {
			writeSessionError(c, sessionId, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "approved": req.Approved})
	}
}

func writeSessionError(c *gin.Context, sessionId string, err error) {
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, sessions.ErrOwnerMismatch):
		c.JSON(http.StatusForbidden, gin.H{"error": "session does not belong to this user"})
	default:
		slog.Error("Session request failed", "session_id", sessionId, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
