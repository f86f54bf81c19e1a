package controllers

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/robindai518/libiec61850/internal/datamodel"
	"github.com/robindai518/libiec61850/internal/eventlog"
)

// celFilter wraps a compiled CEL program evaluated against each entry. When
// disabled, Match always returns true.
//
// Variables: seq, entry_id, ts_ms, quality, size, and change, the decoded
// data-change payload ({"ref","type","value"}, empty for other payloads).
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("seq", cel.IntType),
		cel.Variable("entry_id", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("quality", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("change", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	prog, err := env.Program(ast)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter. Evaluation errors and non-bool results count
// as no match.
func (f celFilter) Match(e eventlog.Entry) bool {
	if !f.enabled {
		return true
	}
	change := map[string]any{}
	if c, err := datamodel.DecodePayload(e.Payload); err == nil {
		change = map[string]any{"ref": c.Ref, "type": string(c.Type), "value": c.Value}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"seq":      int64(e.SequenceID),
		"entry_id": e.EntryID,
		"ts_ms":    e.Timestamp.UnixMilli(),
		"quality":  int64(e.Timestamp.Quality),
		"size":     int64(len(e.Payload)),
		"change":   change,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
