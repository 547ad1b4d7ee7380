// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability exposes the orchestrator's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Confirmation outcomes for the TurnConfirmations metric.
const (
	ConfirmationApproved = "approved"
	ConfirmationRejected = "rejected"
	ConfirmationTimeout  = "timeout"
)

// Turn statuses for the TurnsTotal metric.
const (
	TurnStatusCompleted = "completed"
	TurnStatusCancelled = "cancelled"
	TurnStatusFailed    = "failed"
)

var (
	// SessionsCreated counts chat sessions created since process start.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "askdb_sessions_created_total",
		Help: "Number of chat sessions created.",
	})

	// TurnsTotal counts finished turns by branch and outcome.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askdb_turns_total",
		Help: "Number of processed turns by branch and status.",
	}, []string{"branch", "status"})

	// ActiveTurns tracks turns currently streaming.
	ActiveTurns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "askdb_active_turns",
		Help: "Number of turns currently being processed.",
	})

	// TurnConfirmations counts how confirmation gates were resolved.
	TurnConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "askdb_turn_confirmations_total",
		Help: "Number of query confirmation gates by outcome.",
	}, []string{"outcome"})

	// TurnDuration observes wall time per turn by branch.
	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "askdb_turn_duration_seconds",
		Help:    "Wall time spent processing a turn.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"branch"})
)
