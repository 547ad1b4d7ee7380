// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/askdb-ai/askdb/services/llm"
	"github.com/askdb-ai/askdb/services/orchestrator/datatypes"
)

var stageTracer = otel.Tracer("askdb.orchestrator.workflow")

// sqlTopK is the default row limit suggested to the synthesizer.
const sqlTopK = 5

func floatPtr(v float32) *float32 { return &v }
func intPtr(v int) *int           { return &v }

// classifyParams keeps routing deterministic: near-zero temperature and a
// tiny completion budget.
func classifyParams() llm.GenerationParams {
	return llm.GenerationParams{
		Temperature: floatPtr(0.0),
		MaxTokens:   intPtr(8),
	}
}

func synthesisParams() llm.GenerationParams {
	return llm.GenerationParams{
		Temperature: floatPtr(0.1),
		MaxTokens:   intPtr(512),
	}
}

func composeParams() llm.GenerationParams {
	return llm.GenerationParams{
		Temperature: floatPtr(0.4),
		MaxTokens:   intPtr(1024),
	}
}

// =============================================================================
// Relevance classifier
// =============================================================================

// LLMClassifier labels questions by asking the model for a one-word verdict.
type LLMClassifier struct {
	client llm.LLMClient
}

func NewLLMClassifier(client llm.LLMClient) *LLMClassifier {
	return &LLMClassifier{client: client}
}

func (c *LLMClassifier) Classify(ctx context.Context, question string) (datatypes.Branch, error) {
	ctx, span := stageTracer.Start(ctx, "LLMClassifier.Classify")
	defer span.End()

	out, err := c.client.Generate(ctx, fmt.Sprintf(relevancePromptTemplate, question), classifyParams())
	if err != nil {
		return "", fmt.Errorf("classifier backend call failed: %w", err)
	}

	// The model is asked for a single word but given no structured-output
	// guarantee, so match tokens rather than the exact string.
	verdict := strings.ToUpper(out)
	switch {
	case strings.Contains(verdict, string(datatypes.BranchDatabase)):
		return datatypes.BranchDatabase, nil
	case strings.Contains(verdict, string(datatypes.BranchInteractive)):
		return datatypes.BranchInteractive, nil
	default:
		return "", fmt.Errorf("classifier returned unrecognized verdict %q", strings.TrimSpace(out))
	}
}

var _ RelevanceClassifier = (*LLMClassifier)(nil)

// =============================================================================
// Query synthesizer
// =============================================================================

// LLMSynthesizer generates a candidate SQL query from the question and the
// live schema description.
type LLMSynthesizer struct {
	client  llm.LLMClient
	dialect string
}

func NewLLMSynthesizer(client llm.LLMClient, dialect string) *LLMSynthesizer {
	if dialect == "" {
		dialect = "SQLite"
	}
	return &LLMSynthesizer{client: client, dialect: dialect}
}

func (s *LLMSynthesizer) Synthesize(ctx context.Context, question, schema string) (string, error) {
	ctx, span := stageTracer.Start(ctx, "LLMSynthesizer.Synthesize")
	defer span.End()

	prompt := fmt.Sprintf(queryPromptTemplate, s.dialect, s.dialect, sqlTopK, schema, question)
	out, err := s.client.Generate(ctx, prompt, synthesisParams())
	if err != nil {
		return "", &SynthesisError{Reason: "backend call failed", Err: err}
	}

	query := extractSQL(out)
	if query == "" {
		return "", &SynthesisError{Reason: "backend returned no usable query"}
	}
	return query, nil
}

// extractSQL pulls the query out of a completion that may wrap it in a
// markdown code fence or prefix it with commentary.
func extractSQL(out string) string {
	out = strings.TrimSpace(out)
	if start := strings.Index(out, "```"); start >= 0 {
		rest := out[start+3:]
		// Drop an optional language tag on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && len(strings.Fields(rest[:nl])) <= 1 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		out = rest
	}
	return strings.TrimSpace(out)
}

var _ QuerySynthesizer = (*LLMSynthesizer)(nil)

// =============================================================================
// Answer composer
// =============================================================================

// LLMComposer writes the final answer from the query result plus memory
// context.
type LLMComposer struct {
	client llm.LLMClient
}

func NewLLMComposer(client llm.LLMClient) *LLMComposer {
	return &LLMComposer{client: client}
}

func (c *LLMComposer) Compose(ctx context.Context, question, resultQuery, memories, history string) (string, error) {
	ctx, span := stageTracer.Start(ctx, "LLMComposer.Compose")
	defer span.End()

	prompt := fmt.Sprintf(answerPromptTemplate, question, memories, history, resultQuery)
	answer, err := c.client.Generate(ctx, prompt, composeParams())
	if err != nil {
		return "", fmt.Errorf("composer backend call failed: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

var _ AnswerComposer = (*LLMComposer)(nil)

// =============================================================================
// Interactive responder
// =============================================================================

// LLMResponder answers conversational questions; no query synthesis or
// execution happens on this path.
type LLMResponder struct {
	client llm.LLMClient
}

func NewLLMResponder(client llm.LLMClient) *LLMResponder {
	return &LLMResponder{client: client}
}

func (r *LLMResponder) Respond(ctx context.Context, question, memories, history string) (string, error) {
	ctx, span := stageTracer.Start(ctx, "LLMResponder.Respond")
	defer span.End()

	prompt := fmt.Sprintf(interactivePromptTemplate, question, memories, history)
	answer, err := r.client.Generate(ctx, prompt, composeParams())
	if err != nil {
		return "", fmt.Errorf("responder backend call failed: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

var _ InteractiveResponder = (*LLMResponder)(nil)
