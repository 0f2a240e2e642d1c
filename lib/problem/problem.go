// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package problem

// Descriptor is a problem shape stored in its own cache table.
//
// FieldNames and FieldValues are parallel: FieldValues()[i] is the text
// form of column FieldNames()[i]. Neither includes the table's integer
// primary key "id", which CreateQuery must declare.
type Descriptor interface {
	// TableName is the name of the table holding problems of this
	// kind.
	TableName() string

	// CreateQuery returns the DDL batch for the table and its unique
	// index. Every statement is guarded by IF NOT EXISTS.
	CreateQuery() string

	// FieldNames returns the table's data columns in declaration
	// order.
	FieldNames() []string

	// FieldValues returns this problem's value for each column.
	FieldValues() []string
}

// Columns returns the full column set of a descriptor's table,
// including the "id" primary key.
func Columns(d Descriptor) []string {
	return append([]string{"id"}, d.FieldNames()...)
}
