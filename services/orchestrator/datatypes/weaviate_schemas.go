// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"log"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// UserMemoryClass is the Weaviate class holding user-scoped long-term memory.
const UserMemoryClass = "UserMemory"

func GetUserMemorySchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       UserMemoryClass,
		Description: "A role-tagged line of long-term conversation memory for a user.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				Description:     "The owning user. All recall is filtered by this.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "role",
				DataType:     []string{"text"},
				Description:  "Either 'user' or 'assistant'.",
				Tokenization: "field",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The remembered text.",
				Tokenization: "word",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the memory was written.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureWeaviateSchema creates any missing memory classes on startup.
func EnsureWeaviateSchema(client *weaviate.Client) {
	schemaGetters := []func() *models.Class{
		GetUserMemorySchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		// Check if the class already exists.
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(context.Background())
		if err != nil {
			// If it doesn't exist, the client returns an error. We can now create it.
			slog.Info("Schema not found, creating it...", "class", class.Class)
			err := client.Schema().ClassCreator().WithClass(class).Do(context.Background())
			if err != nil {
				log.Fatalf("Failed to create schema for class %s: %v", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
}
