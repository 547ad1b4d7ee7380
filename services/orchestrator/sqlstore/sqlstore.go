// Copyright (C) 2025 AskDB Labs (oss@askdb.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sqlstore wraps the relational database that synthesized queries
// run against.
//
// # Description
//
// The store serves the two database-facing stages of a turn: it describes
// the live schema for query synthesis and executes the approved query,
// rendering rows into the canonical display string. Rendering is not
// cosmetic: the answer stage treats an empty result string as the no-data
// signal, so execution of a query with no rows must return "".
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	_ "modernc.org/sqlite"
)

// queryTimeout bounds a single synthesized query. Confirmed queries come
// from a model, not a human, so a runaway scan must not hold the turn open.
const queryTimeout = 30 * time.Second

// sampleRowLimit is how many example rows the schema description includes
// per table.
const sampleRowLimit = 3

// Store wraps the SQLite database holding the queryable business data.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sql database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DescribeSchema returns the CREATE statements of every user table together
// with a few sample rows per table. The synthesizer sees exactly this text.
func (s *Store) DescribeSchema(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return "", fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	type table struct{ name, ddl string }
	var tables []table
	for rows.Next() {
		var t table
		if err := rows.Scan(&t.name, &t.ddl); err != nil {
			return "", fmt.Errorf("failed to scan table row: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to iterate tables: %w", err)
	}

	var sections []string
	for _, t := range tables {
		section := t.ddl
		if sample := s.sampleRows(ctx, t.name); sample != "" {
			section += "\n" + sample
		}
		sections = append(sections, section)
	}
	return strings.Join(sections, "\n\n"), nil
}

// sampleRows renders up to sampleRowLimit rows of a table as a comment
// block. Failures are swallowed; the DDL alone is still a usable schema.
func (s *Store) sampleRows(ctx context.Context, tableName string) string {
	query := fmt.Sprintf("SELECT * FROM %q LIMIT %d", tableName, sampleRowLimit)
	headers, records, err := s.query(ctx, query)
	if err != nil || len(records) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "/*\n%d rows from %s table:\n", len(records), tableName)
	b.WriteString(strings.Join(headers, "\t") + "\n")
	for _, record := range records {
		b.WriteString(strings.Join(record, "\t") + "\n")
	}
	b.WriteString("*/")
	return b.String()
}

// Execute runs the approved query and returns its canonical display string:
// a markdown table with positional Column N headers. A query with no rows
// returns "".
func (s *Store) Execute(ctx context.Context, sqlQuery string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	headers, records, err := s.query(ctx, sqlQuery)
	if err != nil {
		return "", fmt.Errorf("query execution failed: %w", err)
	}
	if len(records) == 0 {
		return "", nil
	}

	// Headers are positional on purpose: the composer should describe the
	// data from the question, not parrot raw column names.
	positional := make([]string, len(headers))
	for i := range headers {
		positional[i] = fmt.Sprintf("Column %d", i+1)
	}
	return renderMarkdownTable(positional, records), nil
}

func (s *Store) query(ctx context.Context, sqlQuery string) ([]string, [][]string, error) {
	rows, err := s.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	headers, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var records [][]string
	for rows.Next() {
		values := make([]any, len(headers))
		for i := range values {
			values[i] = new(sql.NullString)
		}
		if err := rows.Scan(values...); err != nil {
			return nil, nil, err
		}
		record := make([]string, len(headers))
		for i, v := range values {
			ns := v.(*sql.NullString)
			if ns.Valid {
				record[i] = ns.String
			} else {
				record[i] = "NULL"
			}
		}
		records = append(records, record)
	}
	return headers, records, rows.Err()
}

func renderMarkdownTable(headers []string, records [][]string) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.AppendBulk(records)
	table.Render()
	return strings.TrimRight(buf.String(), "\n")
}
