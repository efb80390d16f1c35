package fulltext

import "strings"

const (
	plus  = "+"
	minus = "-"
	quote = `"`
)

// Analyze parses a fulltext query string.
//
// Runs of terms not separated by OR become AND groups, with excluded words
// moved to the end of their group. A group holding only excluded words can
// never be expressed on its own and is dropped. When every group is dropped,
// or the query is blank, Analyze returns a nil Query and a nil error: the
// query matches nothing.
//
// Malformed input (unterminated phrase, embedded quote, standalone +, - or
// OR, doubled OR) returns a *ParseError.
func Analyze(query string) (*Query, error) {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	var (
		groups []*Query
		run    []*Query
		wasOr  bool
	)
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		if strings.EqualFold(token, "OR") {
			switch {
			case wasOr:
				return nil, newParseError(query, token, ReasonDoubleOr)
			case len(run) == 0:
				return nil, newParseError(query, token, ReasonStandaloneOr)
			}
			groups = appendGroup(groups, run)
			run, wasOr = nil, true
			continue
		}
		wasOr = false

		word, op := token, OpWord
		switch {
		case strings.HasPrefix(word, plus):
			word = word[len(plus):]
		case strings.HasPrefix(word, minus):
			word, op = word[len(minus):], OpNotWord
		}
		if word == "" {
			return nil, newParseError(query, token, ReasonStandaloneOperator)
		}
		if strings.HasPrefix(word, quote) {
			phrase, next, err := readPhrase(query, tokens, i, word[len(quote):])
			if err != nil {
				return nil, err
			}
			i = next
			if phrase == "" {
				continue
			}
			word = phrase
		} else if strings.Contains(word, quote) {
			return nil, newParseError(query, token, ReasonEmbeddedQuote)
		}
		run = append(run, &Query{Op: op, Word: word})
	}
	if wasOr {
		return nil, newParseError(query, tokens[len(tokens)-1], ReasonStandaloneOr)
	}
	groups = appendGroup(groups, run)
	switch len(groups) {
	case 0:
		return nil, nil
	case 1:
		return groups[0], nil
	default:
		return &Query{Op: OpOr, Terms: groups}, nil
	}
}

// readPhrase consumes tokens starting at index i until one ends with a quote.
// word is the first token stripped of its opening quote. It returns the phrase
// words joined by a single space and the index of the last consumed token.
func readPhrase(query string, tokens []string, i int, word string) (string, int, error) {
	var parts []string
	for {
		end := strings.HasSuffix(word, quote)
		if end {
			word = word[:len(word)-len(quote)]
		}
		if strings.Contains(word, quote) {
			return "", i, newParseError(query, tokens[i], ReasonEmbeddedQuote)
		}
		if word != "" {
			parts = append(parts, word)
		}
		if end {
			return strings.Join(parts, " "), i, nil
		}
		i++
		if i >= len(tokens) {
			return "", i, newParseError(query, tokens[len(tokens)-1], ReasonUnterminatedPhrase)
		}
		word = tokens[i]
	}
}

// appendGroup closes a run of ANDed terms and appends it to groups.
func appendGroup(groups, run []*Query) []*Query {
	if len(run) == 0 {
		return groups
	}
	terms := make([]*Query, 0, len(run))
	var neg []*Query
	for _, t := range run {
		if t.IsNot() {
			neg = append(neg, t)
		} else {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		// Only excluded words: nothing to match against.
		return groups
	}
	terms = append(terms, neg...)
	if len(terms) == 1 {
		return append(groups, terms[0])
	}
	return append(groups, &Query{Op: OpAnd, Terms: terms})
}

// NormalizeWildcard replaces the SQL wildcard % with the backend wildcard.
func NormalizeWildcard(query, wildcard string) string {
	if wildcard == "%" || !strings.Contains(query, "%") {
		return query
	}
	return strings.ReplaceAll(query, "%", wildcard)
}
