package fulltext

import "strings"

// Translate renders q using the given operator tokens. OR and AND nodes become
// parenthesized lists; andNot replaces and in front of an excluded word. Words
// containing whitespace are wrapped in phraseQuote.
//
//	Translate(q, "OR", "AND", "AND NOT", `"`)   // (a AND b AND NOT c)
//	Translate(q, "|", "&", "& !", "")           // (a & b & ! c)
//
// A nil Query renders as the empty string.
func Translate(q *Query, or, and, andNot, phraseQuote string) string {
	return TranslateFunc(q, Rendering{
		Or:          or,
		And:         and,
		AndNot:      andNot,
		PhraseQuote: phraseQuote,
	})
}

// Rendering configures TranslateFunc.
type Rendering struct {
	// Operator tokens placed between sibling terms. An empty token
	// separates siblings with a single space.
	Or, And, AndNot string
	// PhraseQuote wraps multi-word leaves when Leaf is nil.
	PhraseQuote string
	// Leaf, when set, renders a WORD or NOTWORD node. parent is the
	// operator of the enclosing node, OpOr for a top-level leaf.
	Leaf func(term *Query, parent Op) string
	// Compact omits the space between AndNot and the excluded term, e.g. "& !c".
	Compact bool
}

// TranslateFunc renders q with the given Rendering.
func TranslateFunc(q *Query, r Rendering) string {
	if q == nil {
		return ""
	}
	var b strings.Builder
	r.render(&b, q, OpOr)
	return b.String()
}

func (r Rendering) render(b *strings.Builder, q *Query, parent Op) {
	if q.IsLeaf() {
		b.WriteString(r.leaf(q, parent))
		return
	}
	b.WriteByte('(')
	for i, t := range q.Terms {
		if i > 0 {
			op := r.Or
			if q.Op == OpAnd {
				op = r.And
				if t.IsNot() {
					op = r.AndNot
				}
			}
			b.WriteByte(' ')
			if op != "" {
				b.WriteString(op)
				if !r.Compact || !t.IsNot() {
					b.WriteByte(' ')
				}
			}
		}
		r.render(b, t, q.Op)
	}
	b.WriteByte(')')
}

func (r Rendering) leaf(q *Query, parent Op) string {
	if r.Leaf != nil {
		return r.Leaf(q, parent)
	}
	if q.IsPhrase() {
		return r.PhraseQuote + q.Word + r.PhraseQuote
	}
	return q.Word
}
