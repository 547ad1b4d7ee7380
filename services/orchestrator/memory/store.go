// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory implements the dual-scope conversation memory store.
//
// # Description
//
// Every completed turn is remembered twice, on purpose:
//
//   - Session scope: the exact transcript of one session, kept in the
//     embedded BadgerDB under ordered keys and recalled verbatim.
//   - User scope: long-term entries in Weaviate with embedding vectors,
//     recalled by semantic similarity across all of a user's sessions.
//
// The duplication lets the session transcript and cross-session
// personalization be queried independently.
//
// Recall never blocks a turn: every failure on the read path degrades to
// an empty string. Weaviate is optional; without it the store runs in
// lightweight mode (transcripts only, no semantic recall).
package memory

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"golang.org/x/sync/errgroup"

	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
)

// semanticRecallLimit caps how many long-term entries a semantic lookup
// returns.
const semanticRecallLimit = 5

// Embedder vectorizes text for long-term memory storage and search.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the dual-scope memory store.
//
// # Thread Safety
//
// Safe for concurrent use. Ordering of transcript entries is provided by a
// badger sequence shared across goroutines.
type Store struct {
	db       *badger.DB
	weaviate *weaviate.Client // nil in lightweight mode
	embedder Embedder
	seq      *badger.Sequence
}

// NewStore creates a memory store on the given badger database. client and
// embedder may be nil; semantic memory is then disabled.
func NewStore(db *badger.DB, client *weaviate.Client, embedder Embedder) (*Store, error) {
	seq, err := db.GetSequence([]byte("seq/memory"), 128)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory sequence: %w", err)
	}
	return &Store{
		db:       db,
		weaviate: client,
		embedder: embedder,
		seq:      seq,
	}, nil
}

// Close releases the badger sequence.
func (s *Store) Close() error {
	return s.seq.Release()
}

func transcriptPrefix(userId, sessionId string) []byte {
	return []byte(fmt.Sprintf("mem/%s/%s/", userId, sessionId))
}

func transcriptKey(userId, sessionId string, seq uint64) []byte {
	key := transcriptPrefix(userId, sessionId)
	var suffix [8]byte
	binary.BigEndian.PutUint64(suffix[:], seq)
	return append(key, suffix[:]...)
}

// Remember appends the finished (question, answer) pair as two role-tagged
// entries to both scopes. It is a no-op when the answer is absent.
func (s *Store) Remember(ctx context.Context, userId, sessionId, question, answer string) error {
	if answer == "" {
		slog.Warn("Skipping memory write: turn has no answer",
			"user_id", userId, "session_id", sessionId)
		return nil
	}

	now := time.Now().UnixMilli()
	pair := []datatypes.MemoryEntry{
		{Role: datatypes.MemoryRoleUser, Content: question, UserId: userId, CreatedAt: now},
		{Role: datatypes.MemoryRoleAssistant, Content: answer, UserId: userId, CreatedAt: now},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.writeTranscript(userId, sessionId, pair)
	})
	g.Go(func() error {
		return s.writeLongTerm(gctx, userId, pair)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to save memory for user %s: %w", userId, err)
	}
	slog.Info("Memory saved", "user_id", userId, "session_id", sessionId)
	return nil
}

func (s *Store) writeTranscript(userId, sessionId string, pair []datatypes.MemoryEntry) error {
	for _, entry := range pair {
		entry.RunId = sessionId
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal transcript entry: %w", err)
		}
		n, err := s.seq.Next()
		if err != nil {
			return fmt.Errorf("failed to advance transcript sequence: %w", err)
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(transcriptKey(userId, sessionId, n), raw)
		})
		if err != nil {
			return fmt.Errorf("failed to write transcript entry: %w", err)
		}
	}
	return nil
}

func (s *Store) writeLongTerm(ctx context.Context, userId string, pair []datatypes.MemoryEntry) error {
	if s.weaviate == nil || s.embedder == nil {
		return nil
	}
	for _, entry := range pair {
		vector, err := s.embedder.EmbedQuery(ctx, entry.Content)
		if err != nil {
			// Long-term memory is best effort; the transcript write is
			// what the session depends on.
			slog.Error("Failed to embed long-term memory", "user_id", userId, "error", err)
			return nil
		}
		_, err = s.weaviate.Data().Creator().
			WithClassName(datatypes.UserMemoryClass).
			WithProperties(map[string]interface{}{
				"user_id":    entry.UserId,
				"role":       entry.Role,
				"content":    entry.Content,
				"created_at": entry.CreatedAt,
			}).
			WithVector(vector).
			Do(ctx)
		if err != nil {
			slog.Error("Failed to save long-term memory", "user_id", userId, "error", err)
			return nil
		}
	}
	return nil
}

// RecallSession returns the ordered transcript for one session, oldest
// first, formatted as alternating Human:/Assistant: lines. Failures and
// unknown sessions yield "".
func (s *Store) RecallSession(ctx context.Context, userId, sessionId string) string {
	var lines []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := transcriptPrefix(userId, sessionId)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var entry datatypes.MemoryEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
			lines = append(lines, formatMemoryLine(entry.Role, entry.Content))
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to read session transcript",
			"user_id", userId, "session_id", sessionId, "error", err)
		return ""
	}
	return strings.Join(lines, "\n")
}

// RecallSemantic returns the user's long-term entries most similar to
// queryText, one per line. Any backend failure degrades to "".
func (s *Store) RecallSemantic(ctx context.Context, userId, queryText string) string {
	if s.weaviate == nil || s.embedder == nil {
		return ""
	}
	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		slog.Error("Failed to embed semantic query", "user_id", userId, "error", err)
		return ""
	}

	where := filters.Where().
		WithPath([]string{"user_id"}).
		WithOperator(filters.Equal).
		WithValueString(userId)
	nearVector := s.weaviate.GraphQL().NearVectorArgBuilder().WithVector(vector)

	result, err := s.weaviate.GraphQL().Get().
		WithClassName(datatypes.UserMemoryClass).
		WithFields(graphql.Field{Name: "role"}, graphql.Field{Name: "content"}).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(semanticRecallLimit).
		Do(ctx)
	if err != nil {
		slog.Error("Semantic memory lookup failed", "user_id", userId, "error", err)
		return ""
	}

	var lines []string
	if get, ok := result.Data["Get"].(map[string]interface{}); ok {
		if objs, ok := get[datatypes.UserMemoryClass].([]interface{}); ok {
			for _, obj := range objs {
				props, ok := obj.(map[string]interface{})
				if !ok {
					continue
				}
				role, _ := props["role"].(string)
				content, _ := props["content"].(string)
				if content == "" {
					continue
				}
				lines = append(lines, formatMemoryLine(role, content))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func formatMemoryLine(role, content string) string {
	switch role {
	case datatypes.MemoryRoleUser:
		return "Human: " + content
	case datatypes.MemoryRoleAssistant:
		return "Assistant: " + content
	default:
		return "- " + content
	}
}
