package sqlstore

import (
	"context"
	"fmt"
	"regexp"
)

// Properties is the bag of values statements are evaluated against. Running
// a category mutates it (emptyResult and #SET_IF_* properties); a bag must
// not be shared by concurrent executions.
type Properties map[string]any

var varRe = regexp.MustCompile(`\$\{([A-Za-z0-9_.\-]+)\}`)

// Substitute replaces every ${name} token of text with the string form of
// the property. Unknown tokens are left verbatim.
func (p Properties) Substitute(text string) string {
	return varRe.ReplaceAllStringFunc(text, func(token string) string {
		name := token[2 : len(token)-1]
		v, ok := p[name]
		if !ok {
			return token
		}
		return fmt.Sprint(v)
	})
}

// boolean returns the value of a property. ok is false if the property
// is missing or not a bool.
func (p Properties) boolean(name string) (value, known, ok bool) {
	v, known := p[name]
	if !known {
		return false, false, false
	}
	b, ok := v.(bool)
	return b, true, ok
}

// Report describes one execution of a category.
type Report struct {
	Category string
	Executed []*Statement
	Skipped  []*Statement
	// Diagnostics lists statements skipped because of an unusable #IF property.
	Diagnostics []string
}

// Execute runs the statements of category against q in declaration order.
// A statement guarded by #IF runs only when every condition holds; an #IF on
// a missing or non-boolean property skips the statement with a diagnostic.
// The first database error stops the execution. An unknown category is a
// no-op.
func (s *Store) Execute(ctx context.Context, q ExecQuerier, category string, props Properties) (*Report, error) {
	if props == nil {
		props = Properties{}
	}
	report := &Report{Category: category}
	statements, ok := s.statements[category]
	if !ok {
		s.logger.Debug("no statements for category", "category", category)
		return report, nil
	}
	for _, st := range statements {
		run, diag := st.enabled(props)
		if diag != "" {
			s.logger.Warn("statement skipped", "category", category, "source", st.Source, "line", st.Line, "reason", diag)
			report.Diagnostics = append(report.Diagnostics, fmt.Sprintf("%s:%d: %s", st.Source, st.Line, diag))
			report.Skipped = append(report.Skipped, st)
			continue
		}
		if !run {
			s.logger.Debug("statement skipped", "category", category, "source", st.Source, "line", st.Line)
			report.Skipped = append(report.Skipped, st)
			continue
		}
		query := props.Substitute(st.SQL)
		if st.IsQuery() {
			empty, err := isEmpty(ctx, q, query)
			if err != nil {
				return report, fmt.Errorf("sqlstore: %s:%d: %w", st.Source, st.Line, err)
			}
			props[EmptyResult] = empty
			for _, name := range st.SetIfEmpty {
				props[name] = empty
			}
			for _, name := range st.SetIfNotEmpty {
				props[name] = !empty
			}
		} else if _, err := q.ExecContext(ctx, query); err != nil {
			return report, fmt.Errorf("sqlstore: %s:%d: %w", st.Source, st.Line, err)
		}
		report.Executed = append(report.Executed, st)
	}
	return report, nil
}

// enabled evaluates the conditions of s. diag is set when a condition
// references an unusable property.
func (s *Statement) enabled(props Properties) (run bool, diag string) {
	for _, c := range s.Conditions {
		v, known, ok := props.boolean(c.Property)
		switch {
		case !known:
			return false, fmt.Sprintf("#IF: unknown property %q", c.Property)
		case !ok:
			return false, fmt.Sprintf("#IF: property %q is not a boolean (%T)", c.Property, props[c.Property])
		case v == c.Negate:
			return false, ""
		}
	}
	return true, ""
}

func isEmpty(ctx context.Context, q ExecQuerier, query string) (bool, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	empty := !rows.Next()
	if err := rows.Err(); err != nil {
		return false, err
	}
	return empty, nil
}
