package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/syssam/velox-storage/dialect"
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking indicates if this is a breaking change.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// HasBreakingChanges returns true if there are any breaking changes.
func (r *ValidationResult) HasBreakingChanges() bool {
	for _, e := range r.Errors {
		if e.Breaking {
			return true
		}
	}
	for _, w := range r.Warnings {
		if w.Breaking {
			return true
		}
	}
	return false
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			if w.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// Err returns the validation errors joined, or nil when there are none.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

func (r *ValidationResult) merge(o *ValidationResult) {
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

// ValidateOption configures schema validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	logger       *slog.Logger
	strictTypes  bool
	extraColumns bool
}

// WithLogger sets the logger receiving warnings and compatible type
// substitutions. Default is slog.Default().
func WithLogger(l *slog.Logger) ValidateOption {
	return func(c *validateConfig) {
		c.logger = l
	}
}

// StrictTypes reports compatible type substitutions as errors.
func StrictTypes() ValidateOption {
	return func(c *validateConfig) {
		c.strictTypes = true
	}
}

// ReportExtraColumns warns about live columns the expected tables do not
// declare.
func ReportExtraColumns() ValidateOption {
	return func(c *validateConfig) {
		c.extraColumns = true
	}
}

func newValidateConfig(opts []ValidateOption) *validateConfig {
	cfg := &validateConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Check inspects the expected tables through insp and reconciles them with
// their live definition. The returned result holds fatal mismatches in
// Errors; Err turns them into an error.
//
// Example:
//
//	insp, _ := schema.NewInspector(db, d)
//	res, err := schema.Check(ctx, insp, d, tables)
//	if err != nil {
//	    return err
//	}
//	if err := res.Err(); err != nil {
//	    log.Fatal("schema drift: ", err)
//	}
func Check(ctx context.Context, insp Inspector, d *dialect.Dialect, expected []*Table, opts ...ValidateOption) (*ValidationResult, error) {
	cfg := newValidateConfig(opts)
	result := ValidateSchema(expected)
	if result.HasErrors() {
		return result, nil
	}
	names := make([]string, len(expected))
	for i, t := range expected {
		names[i] = t.Name
	}
	live, err := insp.InspectTables(ctx, names...)
	if err != nil {
		return nil, err
	}
	result.merge(reconcile(d, live, expected, cfg))
	for _, w := range result.Warnings {
		cfg.logger.WarnContext(ctx, "schema mismatch", "table", w.Table, "column", w.Column, "message", w.Message)
	}
	return result, nil
}

// Reconcile compares live tables with the expected ones. A column whose
// live type is neither identical to nor compatible with the expected type
// is a breaking error. Missing tables and columns are warnings: schema
// creation adds them.
func Reconcile(d *dialect.Dialect, live, expected []*Table, opts ...ValidateOption) *ValidationResult {
	return reconcile(d, live, expected, newValidateConfig(opts))
}

func reconcile(d *dialect.Dialect, live, expected []*Table, cfg *validateConfig) *ValidationResult {
	result := &ValidationResult{}
	liveMap := make(map[string]*Table, len(live))
	for _, t := range live {
		liveMap[strings.ToLower(t.Name)] = t
	}
	for _, want := range expected {
		got, ok := liveMap[strings.ToLower(want.Name)]
		if !ok {
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   want.Name,
				Message: "table does not exist",
			})
			continue
		}
		reconcileTable(d, got, want, cfg, result)
	}
	return result
}

func reconcileTable(d *dialect.Dialect, current, desired *Table, cfg *validateConfig, result *ValidationResult) {
	currentCols := make(map[string]*Column, len(current.Columns))
	for _, c := range current.Columns {
		currentCols[strings.ToLower(c.Name)] = c
	}

	for _, desiredCol := range desired.Columns {
		currentCol, exists := currentCols[strings.ToLower(desiredCol.Name)]
		if !exists {
			msg := "column does not exist"
			if !desiredCol.Nullable && desiredCol.Default == nil {
				msg = "new NOT NULL column without default value may fail if table has data"
			}
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   desired.Name,
				Column:  desiredCol.Name,
				Message: msg,
			})
			continue
		}

		// Type change
		switch {
		case currentCol.Type == desiredCol.Type:
		case d.IsCompatible(desiredCol.Type, currentCol.Type, currentCol.TypeName, currentCol.Size):
			cfg.logger.Info("compatible column type",
				"table", desired.Name, "column", desiredCol.Name,
				"expected", desiredCol.TypeName, "actual", currentCol.TypeName)
			err := &ValidationError{
				Table:   desired.Name,
				Column:  desiredCol.Name,
				Message: fmt.Sprintf("column type %s is compatible with %s", currentCol.TypeName, desiredCol.TypeName),
			}
			if cfg.strictTypes {
				result.Errors = append(result.Errors, err)
			} else {
				result.Warnings = append(result.Warnings, err)
			}
		default:
			result.Errors = append(result.Errors, &ValidationError{
				Table:  desired.Name,
				Column: desiredCol.Name,
				Message: fmt.Sprintf("column type %s (%s) is not compatible with %s (%s)",
					currentCol.TypeName, currentCol.Type, desiredCol.TypeName, desiredCol.Type),
				Breaking: true,
			})
			continue
		}

		// NOT NULL declared, NULL allowed in the database
		if currentCol.Nullable && !desiredCol.Nullable {
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   desired.Name,
				Column:  desiredCol.Name,
				Message: "column allows NULL values",
			})
		}

		// Size reduction
		if currentCol.Size > 0 && desiredCol.Size > 0 && currentCol.Size < desiredCol.Size {
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   desired.Name,
				Column:  desiredCol.Name,
				Message: fmt.Sprintf("column size %d is smaller than %d and may truncate data", currentCol.Size, desiredCol.Size),
			})
		}
	}

	if len(desired.PrimaryKey) > 0 && len(current.PrimaryKey) == 0 {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   desired.Name,
			Message: "table has no primary key",
		})
	}

	if cfg.extraColumns {
		for _, c := range current.Columns {
			if !hasColumnFold(desired, c.Name) {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table:   desired.Name,
					Column:  c.Name,
					Message: "column is not declared",
				})
			}
		}
	}
}

func hasColumnFold(t *Table, name string) bool {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// ValidateTable validates a single table definition.
func ValidateTable(t *Table) *ValidationResult {
	result := &ValidationResult{}

	// Check for primary key
	if len(t.PrimaryKey) == 0 {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   t.Name,
			Message: "table has no primary key",
		})
	}

	// Check for duplicate column names
	colNames := make(map[string]bool)
	for _, c := range t.Columns {
		if colNames[c.Name] {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Column:  c.Name,
				Message: "duplicate column name",
			})
		}
		colNames[c.Name] = true
	}

	// Check for duplicate index names
	idxNames := make(map[string]bool)
	for _, idx := range t.Indexes {
		if idxNames[idx.Name] {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Message: fmt.Sprintf("duplicate index name: %s", idx.Name),
			})
		}
		idxNames[idx.Name] = true

		// Check that index columns exist
		for _, col := range idx.Columns {
			if col != nil && !colNames[col.Name] {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("index %q references non-existent column %q", idx.Name, col.Name),
				})
			}
		}
	}

	// Check foreign keys
	for _, fk := range t.ForeignKeys {
		// Check that FK columns exist
		for _, col := range fk.Columns {
			if !colNames[col.Name] {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("foreign key references non-existent column %q", col.Name),
				})
			}
		}
	}

	return result
}

// ValidateSchema validates all tables in a schema.
func ValidateSchema(tables []*Table) *ValidationResult {
	result := &ValidationResult{}

	tableNames := make(map[string]bool)
	for _, t := range tables {
		// Check for duplicate table names
		if tableNames[t.Name] {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Message: "duplicate table name",
			})
		}
		tableNames[t.Name] = true

		// Validate individual table
		tableResult := ValidateTable(t)
		result.Errors = append(result.Errors, tableResult.Errors...)
		result.Warnings = append(result.Warnings, tableResult.Warnings...)
	}

	// Validate foreign key references
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			if !tableNames[fk.RefTable.Name] {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("foreign key references non-existent table %q", fk.RefTable.Name),
				})
			}
		}
	}

	return result
}
