// Package flatdb provides a generic, append-only, flat-file record store.
//
// # Overview
//
// Each table is one UTF-8 text file holding one record per line, with no
// header. Fields are joined with '|' in a fixed order chosen by the table. New
// records are appended; a delete rewrites the whole file without the deleted
// lines. There are no indexes: every lookup is a linear scan.
//
// Concrete tables embed [*File] and implement the remaining methods of
// [Table]: the line codec, how a primary key appears on a line, and the
// admission check run before every insert. The package-level functions
// [Search], [SearchFunc], [SearchFuncN], [Get], [Create] and [Delete] operate
// on any such table.
//
// # Concurrency
//
// Every table carries its own read-write lock. [Create] and [Delete] hold the
// write lock for the whole check-then-write sequence, so two conflicting
// inserts cannot both pass the uniqueness check and an append cannot land
// between a delete's read and its rewrite. Reads hold the read lock. Locks are
// per process: open a given root directory from a single process only.
//
// # File Format
//
// Blank lines are ignored on read. The characters '\', '|', LF and CR are
// escaped inside field values, so values free of them are stored verbatim.
package flatdb
