package dialect

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestMangle(t *testing.T) {
	d := newTest(t, Metadata{ProductName: "PostgreSQL"}, Config{})
	assert.Equal(t, "dc_title", d.Mangle("dc:title", 0))
	assert.Equal(t, "dc_title", d.Mangle("DC:Title", 30))
	assert.Equal(t, "abcdefghijklmnopqrstu_6d228630", d.Mangle("abcdefghijklmnopqrstuvwxyz0123456789", 30))
	assert.Equal(t, "ecm_someverylongprope_f0df08ec", d.Mangle("ecm:someverylongpropertyname_with_suffix", 30))

	// Same prefix, different physical names.
	a := d.Mangle("abcdefghijklmnopqrstuvwxyz_first", 30)
	b := d.Mangle("abcdefghijklmnopqrstuvwxyz_second", 30)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 30)
	assert.Len(t, b, 30)
	assert.Equal(t, a, d.Mangle("abcdefghijklmnopqrstuvwxyz_first", 30))

	long := strings.Repeat("x", 100)
	assert.Len(t, d.TableName(long), 63)
	assert.Len(t, d.Mangle(long, 5), 5)

	upper := newTest(t, Metadata{ProductName: "PostgreSQL", StoresUpperCaseIdentifiers: true}, Config{})
	assert.Equal(t, "DC_TITLE", upper.ColumnName("dc:title"))

	t.Run("MultiByte", func(t *testing.T) {
		// "é" is two bytes: a cut at 22 bytes would fall inside the 11th one.
		name := "a" + strings.Repeat("é", 20)
		got := d.Mangle(name, 31)
		assert.True(t, utf8.ValidString(got), got)
		assert.Equal(t, "a"+strings.Repeat("é", 10)+"_"+digest(name), got)
		assert.LessOrEqual(t, len(got), 31)
		for _, n := range []int{10, 11, 12, 13} {
			assert.True(t, utf8.ValidString(d.Mangle(name, n)), n)
		}
		idx := d.IndexName(strings.Repeat("é", 40), "col")
		assert.True(t, utf8.ValidString(idx), idx)
		assert.LessOrEqual(t, len(idx), 63)
	})
}

func TestStructuralNames(t *testing.T) {
	d := newTest(t, Metadata{ProductName: "PostgreSQL"}, Config{})
	assert.Equal(t, "hierarchy_pk", d.PrimaryKeyName("hierarchy"))
	assert.Equal(t, "hierarchy_parentid_hierarchy_fk", d.ForeignKeyName("hierarchy", "parentid", "hierarchy"))
	assert.Equal(t, "fulltext_fulltext_idx", d.IndexName("fulltext", "fulltext"))
	assert.Equal(t, "acls_id_pos_idx", d.IndexName("acls", "id", "pos"))

	table := strings.Repeat("t", 70)
	idx := d.IndexName(table, "col")
	assert.Len(t, idx, 63)
	assert.True(t, strings.HasSuffix(idx, "_idx"))
	assert.NotEqual(t, idx, d.IndexName(table, "other"))
	fk := d.ForeignKeyName(table, "col", "ref")
	assert.Len(t, fk, 63)
	assert.True(t, strings.HasSuffix(fk, "_fk"))
}

func TestQuoteIdentifier(t *testing.T) {
	tests := map[string]string{
		"PostgreSQL":           `"a""b"`,
		"SQLite":               `"a""b"`,
		"MySQL":                "`a\"b`",
		"Microsoft SQL Server": `[a"b]`,
	}
	for product, want := range tests {
		d := newTest(t, Metadata{ProductName: product}, Config{})
		assert.Equal(t, want, d.QuoteIdentifier(`a"b`), product)
	}
	ms := newTest(t, Metadata{ProductName: "Microsoft SQL Server"}, Config{})
	assert.Equal(t, "[a]]b]", ms.QuoteIdentifier("a]b"))
}
