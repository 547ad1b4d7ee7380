// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
)

// Checkpoint is the durable snapshot written when a turn suspends at the
// confirmation gate: the full turn state plus the next stage to run.
//
// Invariant: a checkpoint exists for a thread if and only if a turn is
// currently suspended awaiting confirmation on that thread.
type Checkpoint struct {
	State     datatypes.TurnState `json:"state"`
	NextStage Stage               `json:"next_stage"`
}

// CheckpointStore persists suspended turn state across request cycles.
type CheckpointStore interface {
	Save(ctx context.Context, threadId string, cp Checkpoint) error

	// Load returns the checkpoint for threadId, or ErrNoCheckpoint.
	Load(ctx context.Context, threadId string) (Checkpoint, error)

	Delete(ctx context.Context, threadId string) error
}

// =============================================================================
// Badger implementation
// =============================================================================

const checkpointPrefix = "ckpt/"

// BadgerCheckpointStore keeps checkpoints in an embedded BadgerDB so a
// suspended turn survives between the ask request and the later interrupt
// request. Writes are synchronous at the badger level.
type BadgerCheckpointStore struct {
	db *badger.DB
}

func NewBadgerCheckpointStore(db *badger.DB) *BadgerCheckpointStore {
	return &BadgerCheckpointStore{db: db}
}

func checkpointKey(threadId string) []byte {
	return []byte(checkpointPrefix + threadId)
}

func (s *BadgerCheckpointStore) Save(ctx context.Context, threadId string, cp Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(checkpointKey(threadId), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for thread %s: %w", threadId, err)
	}
	return nil
}

func (s *BadgerCheckpointStore) Load(ctx context.Context, threadId string) (Checkpoint, error) {
	var cp Checkpoint
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(checkpointKey(threadId))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &cp)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("failed to load checkpoint for thread %s: %w", threadId, err)
	}
	return cp, nil
}

func (s *BadgerCheckpointStore) Delete(ctx context.Context, threadId string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(checkpointKey(threadId))
	})
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint for thread %s: %w", threadId, err)
	}
	return nil
}

var _ CheckpointStore = (*BadgerCheckpointStore)(nil)
