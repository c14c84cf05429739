/*-------------------------------------------------------------------------
 *
 * pgEdge NL2SQL Explorer
 *
 * Copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package catalog

import "testing"

func TestRenderSchemaText(t *testing.T) {
	tests := []struct {
		name    string
		columns []ColumnDescriptor
		want    SchemaText
	}{
		{
			name:    "empty",
			columns: nil,
			want:    "",
		},
		{
			name:    "single column",
			columns: []ColumnDescriptor{{"film", "film_id", "integer"}},
			want:    "film: film_id (integer)",
		},
		{
			name: "order is preserved",
			columns: []ColumnDescriptor{
				{"film", "film_id", "integer"},
				{"film", "title", "text"},
				{"actor", "last_name", "character varying"},
			},
			want: "film: film_id (integer)\nfilm: title (text)\nactor: last_name (character varying)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderSchemaText(tt.columns); got != tt.want {
				t.Errorf("RenderSchemaText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderSchemaTextDeterministic(t *testing.T) {
	columns := []ColumnDescriptor{
		{"rental", "rental_date", "timestamp without time zone"},
		{"rental", "inventory_id", "integer"},
	}
	first := RenderSchemaText(columns)
	for i := 0; i < 5; i++ {
		if got := RenderSchemaText(columns); got != first {
			t.Fatalf("render %d = %q, want %q", i, got, first)
		}
	}
}
