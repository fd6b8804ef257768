// Package ir provides the value model shared by storage records, predicates
// and tag values.
//
// This package imports nothing internal. Every other package that stores or
// compares values goes through these types so that all storage adapters see
// the same closed set of shapes.
//
// Key constraints:
//   - NO float types anywhere - integers are int64
//   - NO null - an absent value is an absent key
//   - Canonical encoding is RFC 8785 (sorted keys, NFC strings)
package ir
