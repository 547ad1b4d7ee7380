// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sessions tracks active chat sessions and their owners.
package sessions

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
)

var (
	// ErrNotFound reports an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrOwnerMismatch reports a session that exists but belongs to a
	// different user.
	ErrOwnerMismatch = errors.New("session does not belong to this user")
)

// Registry is the in-memory session table. Sessions are process-local;
// restart drops them, and any checkpoint a dropped session left behind is
// unreachable by construction.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]datatypes.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]datatypes.Session)}
}

// Create registers a new session owned by userId and returns it. Ids are
// UUIDs, so collisions are not handled.
func (r *Registry) Create(userId string) datatypes.Session {
	session := datatypes.Session{
		Id:        uuid.NewString(),
		UserId:    userId,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	r.sessions[session.Id] = session
	r.mu.Unlock()
	return session
}

// Authorize checks that sessionId exists and is owned by userId. The two
// failure modes are distinct so callers can answer 404 versus 403.
func (r *Registry) Authorize(sessionId, userId string) (datatypes.Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[sessionId]
	r.mu.RUnlock()
	if !ok {
		return datatypes.Session{}, ErrNotFound
	}
	if session.UserId != userId {
		return datatypes.Session{}, ErrOwnerMismatch
	}
	return session, nil
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns all live sessions, oldest first.
func (r *Registry) List() []datatypes.Session {
	r.mu.RLock()
	out := make([]datatypes.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
