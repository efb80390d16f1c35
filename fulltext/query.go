// Package fulltext parses boolean fulltext query strings into an engine-neutral
// AST and renders that AST into the native search syntax of a database backend.
//
// The user-facing syntax is a list of space separated words:
//
//	foo bar           both words (AND)
//	+foo              mandatory word, same as a bare word
//	-foo              excluded word
//	"foo bar"         exact phrase
//	foo OR bar        either group
//
// Analysis and translation are pure functions and may be called concurrently.
package fulltext

import "strings"

// Op is the kind of a Query node.
type Op int

// Query node kinds.
const (
	// OpOr is a disjunction of its terms.
	OpOr Op = iota
	// OpAnd is a conjunction of its terms.
	OpAnd
	// OpWord is a positive word or phrase.
	OpWord
	// OpNotWord is an excluded word or phrase.
	OpNotWord
)

// String returns the name of the operator.
func (o Op) String() string {
	switch o {
	case OpOr:
		return "OR"
	case OpAnd:
		return "AND"
	case OpWord:
		return "WORD"
	case OpNotWord:
		return "NOTWORD"
	default:
		return "UNKNOWN"
	}
}

// Query is a node of the fulltext AST. OR and AND nodes carry a non-empty
// ordered list of terms, WORD and NOTWORD nodes carry a word or phrase.
//
// A Query returned by Analyze is never modified afterwards.
type Query struct {
	Op    Op
	Terms []*Query
	Word  string
}

// IsNot reports whether q is an excluded word.
func (q *Query) IsNot() bool {
	return q.Op == OpNotWord
}

// IsLeaf reports whether q is a WORD or NOTWORD node.
func (q *Query) IsLeaf() bool {
	return q.Op == OpWord || q.Op == OpNotWord
}

// IsPhrase reports whether q is a leaf holding several words.
func (q *Query) IsPhrase() bool {
	return q.IsLeaf() && strings.ContainsAny(q.Word, " \t")
}

// String returns a compact debug form of the tree, e.g. OR(AND(a, -b), "c d").
func (q *Query) String() string {
	if q == nil {
		return "<nil>"
	}
	var b strings.Builder
	q.writeTo(&b)
	return b.String()
}

func (q *Query) writeTo(b *strings.Builder) {
	switch q.Op {
	case OpOr, OpAnd:
		b.WriteString(q.Op.String())
		b.WriteByte('(')
		for i, t := range q.Terms {
			if i > 0 {
				b.WriteString(", ")
			}
			t.writeTo(b)
		}
		b.WriteByte(')')
	default:
		if q.Op == OpNotWord {
			b.WriteByte('-')
		}
		if q.IsPhrase() {
			b.WriteByte('"')
			b.WriteString(q.Word)
			b.WriteByte('"')
			return
		}
		b.WriteString(q.Word)
	}
}

// HasPhrase reports whether any leaf of q is a multi-word phrase.
func HasPhrase(q *Query) bool {
	if q == nil {
		return false
	}
	if q.IsLeaf() {
		return q.IsPhrase()
	}
	for _, t := range q.Terms {
		if HasPhrase(t) {
			return true
		}
	}
	return false
}

// Words returns the leaves of q in depth-first order.
func Words(q *Query) []*Query {
	if q == nil {
		return nil
	}
	if q.IsLeaf() {
		return []*Query{q}
	}
	var leaves []*Query
	for _, t := range q.Terms {
		leaves = append(leaves, Words(t)...)
	}
	return leaves
}
