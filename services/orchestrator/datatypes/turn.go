// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Branch is the path chosen by the relevance classifier for a turn.
type Branch string

const (
	// BranchDatabase routes the turn through SQL synthesis and execution.
	BranchDatabase Branch = "DATABASE"

	// BranchInteractive routes the turn to a purely conversational answer.
	BranchInteractive Branch = "INTERACTIVE"
)

// InteractiveMarker is the fixed value recorded on the interactive branch
// in place of a synthesized query.
const InteractiveMarker = "This is a chat-type question."

// TurnState carries one question through the turn workflow. It is created
// fresh per incoming question and mutated in place by each stage; after the
// turn completes only the (Question, Answer) pair survives as memory.
//
// ThreadId ties the state to a session for checkpointing: when the workflow
// suspends before query execution, the whole TurnState is persisted under
// ThreadId and reloaded on resume.
type TurnState struct {
	Question            string `json:"question"`
	UserId              string `json:"user_id"`
	ThreadId            string `json:"thread_id"`
	Branch              Branch `json:"branch,omitempty"`
	InteractiveResponse string `json:"interactive_response,omitempty"`
	SQLQuery            string `json:"sql_query,omitempty"`
	ResultQuery         string `json:"result_query,omitempty"`
	Answer              string `json:"answer,omitempty"`
}
