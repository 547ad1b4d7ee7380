// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdb-ai/askdb/services/orchestrator/handlers"
	"github.com/askdb-ai/askdb/services/orchestrator/services"
)

func SetupRoutes(router *gin.Engine, svc *services.TurnService) {
	router.GET("/health", handlers.Health(svc))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Turn endpoints. POST /ask opens a session; POST /ask/:sessionId runs
	// one question turn over SSE; the interrupt endpoint resolves the
	// query confirmation gate.
	router.POST("/ask", handlers.CreateSession(svc))
	router.POST("/ask/:sessionId", handlers.Ask(svc))
	router.POST("/ask/:sessionId/interrupt", handlers.Interrupt(svc))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/sessions", handlers.ListSessions(svc))
	}
}
