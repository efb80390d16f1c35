package fulltext

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// ErrParse is matched by every *ParseError through errors.Is.
var ErrParse = errors.New("fulltext: invalid query")

// Reason identifies why a fulltext query was rejected.
type Reason int

// Parse failure reasons.
const (
	ReasonUnterminatedPhrase Reason = iota + 1
	ReasonEmbeddedQuote
	ReasonStandaloneOperator
	ReasonStandaloneOr
	ReasonDoubleOr
	ReasonPhraseUnsupported
)

var reasonKeys = map[Reason]string{
	ReasonUnterminatedPhrase: "unterminated phrase",
	ReasonEmbeddedQuote:      "embedded quote",
	ReasonStandaloneOperator: "standalone + or -",
	ReasonStandaloneOr:       "standalone OR",
	ReasonDoubleOr:           "double OR",
	ReasonPhraseUnsupported:  "phrase search not supported",
}

// String returns the English description of the reason.
func (r Reason) String() string {
	if s, ok := reasonKeys[r]; ok {
		return s
	}
	return "invalid syntax"
}

// ParseError is returned for a malformed fulltext query. It is a user input
// error: callers surface it as is and never retry with a "fixed" query.
type ParseError struct {
	Query    string
	Fragment string
	Reason   Reason
}

func newParseError(query, fragment string, reason Reason) *ParseError {
	return &ParseError{Query: query, Fragment: fragment, Reason: reason}
}

// NewParseError returns a ParseError for query rejected by a backend.
func NewParseError(query, fragment string, reason Reason) *ParseError {
	return newParseError(query, fragment, reason)
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("fulltext: invalid query (%s) near %q: %s", e.Reason, e.Fragment, e.Query)
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// IsParseError reports whether err is, or wraps, a fulltext parse error.
func IsParseError(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}

// Localize returns the message of e translated for tag. Unsupported
// languages fall back to English.
func (e *ParseError) Localize(tag language.Tag) string {
	p := message.NewPrinter(tag, message.Catalog(messages))
	return p.Sprintf(e.Reason.messageKey(), e.Fragment, e.Query)
}

func (r Reason) messageKey() string {
	return "Invalid fulltext query (" + r.String() + ") near %q: %s"
}

var translations = map[language.Tag]map[Reason]string{
	language.French: {
		ReasonUnterminatedPhrase: "Requête plein texte invalide (phrase non terminée) près de %q : %s",
		ReasonEmbeddedQuote:      "Requête plein texte invalide (guillemet inattendu) près de %q : %s",
		ReasonStandaloneOperator: "Requête plein texte invalide (+ ou - isolé) près de %q : %s",
		ReasonStandaloneOr:       "Requête plein texte invalide (OR isolé) près de %q : %s",
		ReasonDoubleOr:           "Requête plein texte invalide (OR répété) près de %q : %s",
		ReasonPhraseUnsupported:  "Requête plein texte invalide (recherche de phrase non supportée) près de %q : %s",
	},
	language.German: {
		ReasonUnterminatedPhrase: "Ungültige Volltextabfrage (nicht abgeschlossene Phrase) bei %q: %s",
		ReasonEmbeddedQuote:      "Ungültige Volltextabfrage (unerwartetes Anführungszeichen) bei %q: %s",
		ReasonStandaloneOperator: "Ungültige Volltextabfrage (alleinstehendes + oder -) bei %q: %s",
		ReasonStandaloneOr:       "Ungültige Volltextabfrage (alleinstehendes OR) bei %q: %s",
		ReasonDoubleOr:           "Ungültige Volltextabfrage (doppeltes OR) bei %q: %s",
		ReasonPhraseUnsupported:  "Ungültige Volltextabfrage (Phrasensuche nicht unterstützt) bei %q: %s",
	},
}

var messages = func() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for r := range reasonKeys {
		if err := b.SetString(language.English, r.messageKey(), r.messageKey()); err != nil {
			panic(err)
		}
	}
	for tag, msgs := range translations {
		for r, msg := range msgs {
			if err := b.SetString(tag, r.messageKey(), msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}()
