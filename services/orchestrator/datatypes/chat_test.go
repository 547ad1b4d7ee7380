// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_AskRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     AskRequest
		wantErr bool
	}{
		{
			name: "valid request",
			req:  AskRequest{UserId: "alice", Question: "how many orders?"},
		},
		{
			name:    "missing user id",
			req:     AskRequest{Question: "how many orders?"},
			wantErr: true,
		},
		{
			name:    "missing question",
			req:     AskRequest{UserId: "alice"},
			wantErr: true,
		},
		{
			name:    "question over the byte limit",
			req:     AskRequest{UserId: "alice", Question: strings.Repeat("a", MaxQuestionBytes+1)},
			wantErr: true,
		},
		{
			name: "question exactly at the byte limit",
			req:  AskRequest{UserId: "alice", Question: strings.Repeat("a", MaxQuestionBytes)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_InterruptRequest(t *testing.T) {
	assert.NoError(t, Validate(InterruptRequest{UserId: "alice", Approved: false}))
	assert.Error(t, Validate(InterruptRequest{Approved: true}))
}
