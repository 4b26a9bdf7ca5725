package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// emit writes v as indented JSON, through the --query filter when one is set.
// Each filter output is written as its own JSON document.
func (a *app) emit(ctx context.Context, v any) error {
	if a.query == "" {
		return writeJSON(a.stdout, v)
	}
	out, err := a.jq.Run(ctx, a.query, v)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	for _, item := range out {
		if err := writeJSON(a.stdout, item); err != nil {
			return err
		}
	}
	return nil
}

// verdict emits v and maps validity to the exit code.
func (a *app) verdict(ctx context.Context, v any, valid bool) error {
	if err := a.emit(ctx, v); err != nil {
		return err
	}
	if !valid {
		return &exitError{code: exitInvalid}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

// readInput reads a document from path, or from stdin when path is "-" or
// empty.
func (a *app) readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(a.stdin)
	}
	return os.ReadFile(path)
}

// readValue reads an inline JSON argument. A leading '@' names a file.
func readValue(arg string) ([]byte, error) {
	if name, ok := strings.CutPrefix(arg, "@"); ok {
		return os.ReadFile(name)
	}
	return []byte(arg), nil
}
