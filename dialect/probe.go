package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

type scanFunc func(dest ...any) error

// Probe reads the product metadata of a live connection of the given family.
func Probe(ctx context.Context, q Querier, family string) (Metadata, error) {
	b, err := backendByFamily(family)
	if err != nil {
		return Metadata{}, err
	}
	rows, err := q.QueryContext(ctx, b.probeQuery)
	if err != nil {
		return Metadata{}, fmt.Errorf("dialect: probe %s: %w", family, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Metadata{}, fmt.Errorf("dialect: probe %s: %w", family, err)
		}
		return Metadata{}, fmt.Errorf("dialect: probe %s: %w", family, sql.ErrNoRows)
	}
	meta, err := b.probe(rows.Scan)
	if err != nil {
		return Metadata{}, fmt.Errorf("dialect: probe %s: %w", family, err)
	}
	return meta, nil
}

// parseVersion extracts the leading major.minor numbers of a version string
// such as "8.0.36" or "10.11.2-MariaDB".
func parseVersion(v string) (major, minor int) {
	parts := strings.SplitN(v, ".", 3)
	major = leadingInt(parts[0])
	if len(parts) > 1 {
		minor = leadingInt(parts[1])
	}
	return major, minor
}

func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}
