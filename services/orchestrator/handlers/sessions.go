// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides the HTTP handlers for the orchestrator API.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
	"github.com/askdb-ai/askdb/services/orchestrator/services"
)

// CreateSession handles POST /ask: it opens a new chat session for a user
// and returns the session id used by all later turn requests.
func CreateSession(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := datatypes.Validate(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		session := svc.CreateSession(req.UserId)
		c.JSON(http.StatusCreated, gin.H{
			"session_id": session.Id,
			"user_id":    session.UserId,
			"created_at": session.CreatedAt,
		})
	}
}

// ListSessions handles GET /v1/sessions.
func ListSessions(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.Info("Received request to list sessions")
		sessions := svc.ListSessions()
		c.JSON(http.StatusOK, gin.H{
			"sessions": sessions,
			"count":    len(sessions),
		})
	}
}

// Health handles GET /health.
func Health(svc *services.TurnService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
			"active_sessions": svc.ActiveSessions(),
		})
	}
}
