// Package decoder reads the margin figures out of the recorded RSK335
// response page.
//
// The target column is located by, in order: a header cell attribute
// matching the column key, a header cell whose text contains the column
// label, and the hidden wcStrut input listing the column keys in table
// order. When none of these resolve, the first numeric cell of the first
// data row is returned. A missing table, row or numeric cell is reported as
// not found rather than as an error.
package decoder
