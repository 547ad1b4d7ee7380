// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package services

import "sync"

// decisionBox hands one human confirmation decision from the interrupt
// endpoint to the turn waiting on it.
//
// Decisions are keyed by session id and consumed exactly once. A decision
// posted while no turn is waiting sits in the box until the next turn for
// that session clears it, which is why Ask clears stale entries up front.
type decisionBox struct {
	mu        sync.Mutex
	decisions map[string]bool
}

func newDecisionBox() *decisionBox {
	return &decisionBox{decisions: make(map[string]bool)}
}

// Put stores the decision for a session, replacing any unconsumed one.
func (b *decisionBox) Put(sessionId string, approved bool) {
	b.mu.Lock()
	b.decisions[sessionId] = approved
	b.mu.Unlock()
}

// Take removes and returns the decision for a session, if present.
func (b *decisionBox) Take(sessionId string) (approved, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	approved, ok = b.decisions[sessionId]
	if ok {
		delete(b.decisions, sessionId)
	}
	return approved, ok
}

// Clear drops any unconsumed decision for a session.
func (b *decisionBox) Clear(sessionId string) {
	b.mu.Lock()
	delete(b.decisions, sessionId)
	b.mu.Unlock()
}
