package dialect

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// digestLength is the number of hex characters kept from the name digest.
const digestLength = 8

// Mangle returns the physical name of a logical name for a backend limited
// to maxLength characters (the dialect maximum when maxLength <= 0).
//
// Names that fit are only case folded, with ':' replaced by '_'. Longer names
// keep their first maxLength-9 characters followed by '_' and 8 hex
// characters of the MD5 of the original name, so a given logical name always
// maps to the same physical name.
func (d *Dialect) Mangle(name string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = d.caps.MaxIdentifierLength
	}
	if len(name) > maxLength {
		keep := maxLength - digestLength - 1
		if keep < 0 {
			return d.fold(digest(name)[:min(digestLength, maxLength)])
		}
		name = truncate(name, keep) + "_" + digest(name)
	}
	return d.fold(name)
}

// TableName returns the physical name of a logical table.
func (d *Dialect) TableName(name string) string {
	return d.Mangle(name, d.caps.MaxIdentifierLength)
}

// ColumnName returns the physical name of a logical column.
func (d *Dialect) ColumnName(name string) string {
	return d.Mangle(name, d.caps.MaxIdentifierLength)
}

// PrimaryKeyName returns the primary key constraint name of a table.
func (d *Dialect) PrimaryKeyName(table string) string {
	return d.structuralName(table, "", "_pk")
}

// ForeignKeyName returns the name of the foreign key from table.column to refTable.
func (d *Dialect) ForeignKeyName(table, column, refTable string) string {
	return d.structuralName(table+"_", column+"_"+refTable, "_fk")
}

// IndexName returns the name of an index over columns of table.
func (d *Dialect) IndexName(table string, columns ...string) string {
	return d.structuralName(table+"_", strings.Join(columns, "_"), "_idx")
}

// structuralName builds prefix+body+suffix, replacing body by a digest of
// prefix+body (and shortening prefix) when the result does not fit.
func (d *Dialect) structuralName(prefix, body, suffix string) string {
	maxLength := d.caps.MaxIdentifierLength
	name := prefix + body + suffix
	if len(name) > maxLength {
		h := digest(prefix + body)
		room := max(maxLength-len(h)-len(suffix), 0)
		prefix = truncate(prefix, room)
		name = prefix + h + suffix
	}
	return d.fold(name)
}

func (d *Dialect) fold(name string) string {
	name = strings.ReplaceAll(name, ":", "_")
	if d.caps.StoresUpperCase {
		return strings.ToUpper(name)
	}
	return strings.ToLower(name)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func digest(name string) string {
	sum := md5.Sum([]byte(name))
	return hex.EncodeToString(sum[:])[:digestLength]
}

// QuoteIdentifier quotes name with the backend's identifier quotes.
func (d *Dialect) QuoteIdentifier(name string) string {
	return d.backend.quote(name)
}

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func backQuote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func bracketQuote(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
