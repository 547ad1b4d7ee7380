// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	_, err = store.db.ExecContext(ctx, `
		CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			customer TEXT NOT NULL,
			total REAL
		)`)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `
		INSERT INTO orders (id, customer, total) VALUES
			(1, 'alice', 12.5),
			(2, 'bob', NULL)`)
	require.NoError(t, err)
	return store
}

func TestStore_DescribeSchema(t *testing.T) {
	store := newTestStore(t)

	schema, err := store.DescribeSchema(context.Background())
	require.NoError(t, err)

	assert.Contains(t, schema, "CREATE TABLE orders")
	assert.Contains(t, schema, "2 rows from orders table:")
	assert.Contains(t, schema, "alice")
}

func TestStore_Execute(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("renders rows with positional headers", func(t *testing.T) {
		out, err := store.Execute(ctx, "SELECT customer, total FROM orders ORDER BY id")
		require.NoError(t, err)

		assert.Contains(t, out, "Column 1")
		assert.Contains(t, out, "Column 2")
		assert.Contains(t, out, "alice")
		assert.Contains(t, out, "NULL")
		assert.NotContains(t, out, "customer")
	})

	t.Run("empty result renders empty string", func(t *testing.T) {
		out, err := store.Execute(ctx, "SELECT id FROM orders WHERE customer = 'nobody'")
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("invalid sql fails", func(t *testing.T) {
		_, err := store.Execute(ctx, "SELECT FROM nowhere")
		assert.Error(t, err)
	})
}
