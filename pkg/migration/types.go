// SPDX-License-Identifier: Apache-2.0

// Package migration discovers, parses and identifies migration scripts on
// disk. It is pure: nothing in this package touches a database connection.
package migration

// Kind distinguishes a SQL migration (a .sql file executed as raw text)
// from a CODE migration (a .go-built executor registered by the host under
// the script's filename).
type Kind int

const (
	KindSQL Kind = iota
	KindCode
)

func (k Kind) String() string {
	switch k {
	case KindSQL:
		return "SQL"
	case KindCode:
		return "CODE"
	default:
		return "UNKNOWN"
	}
}

// HistoryType is the literal written to the history table's "type" column.
// schemalane-go writes "CODE" for code migrations, not the Rust reference
// implementation's "RUST" literal; see DESIGN.md's Open Question decision.
func (k Kind) HistoryType() string {
	switch k {
	case KindSQL:
		return "SQL"
	case KindCode:
		return "CODE"
	default:
		return "UNKNOWN"
	}
}

// Discovered is one migration file found on disk.
type Discovered struct {
	// Version is the parsed, numerically-comparable version.
	Version Version
	// VersionText is the original version string, preserved verbatim for
	// display and history storage.
	VersionText string
	// DescriptionDisplay is the raw description with underscores replaced
	// by spaces.
	DescriptionDisplay string
	// Script is the filename, used as the identity key for history rows
	// and executor registration.
	Script string
	// Checksum is the CRC-32 of the file's bytes, reinterpreted as a
	// signed 32-bit big-endian integer (matches Flyway).
	Checksum int32
	// Kind is SQL or CODE.
	Kind Kind
	// Source is the full filesystem path to the migration file.
	Source string
}
