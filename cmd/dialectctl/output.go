package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
)

// Exit codes.
const (
	exitFailure      = 1 // schema drift, script failure
	exitCommandError = 2 // bad flags, unreachable database
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *exitError) Unwrap() error { return e.err }

func commandError(msg string, err error) error {
	return &exitError{code: exitCommandError, msg: msg, err: err}
}

func exitCode(err error) int {
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return exitFailure
}

// printer writes command results as aligned text or JSON.
type printer struct {
	format string
	w      io.Writer
}

func (p printer) json() bool { return p.format == formatJSON }

// value writes v as indented JSON.
func (p printer) value(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table writes rows as tab-aligned columns under header.
func (p printer) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	write := func(cells []string) {
		for i, c := range cells {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, c)
		}
		fmt.Fprintln(tw)
	}
	if len(header) > 0 {
		write(header)
	}
	for _, r := range rows {
		write(r)
	}
	return tw.Flush()
}

// field writes a "name: value" line.
func (p printer) field(name string, value any) {
	fmt.Fprintf(p.w, "%s: %v\n", name, value)
}
