package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
)

// Store is the fact database: table name to an ordered, duplicate-free set of
// grounded tuples.
type Store interface {
	Close() error

	// Insert appends tuple to table. It reports false, and changes nothing,
	// when a structurally equal tuple is already stored.
	Insert(ctx context.Context, table string, tuple ast.Tuple) (bool, error)

	// Retract removes every tuple structurally equal to tuple and returns how
	// many were removed. Retracting an absent tuple is a no-op.
	Retract(ctx context.Context, table string, tuple ast.Tuple) (int, error)

	// Scan returns the table's tuples in insertion order. Unknown tables are
	// empty.
	Scan(ctx context.Context, table string) ([]ast.Tuple, error)

	// Tables lists every table touched so far, in first-touch order.
	Tables(ctx context.Context) ([]string, error)
}

// wireConstant is the JSON shape of a constant for backends that serialize
// tuples. Numbers travel as strings so NaN and the infinities survive.
type wireConstant struct {
	Kind     string `json:"k"`
	Str      string `json:"s,omitempty"`
	Num      string `json:"n,omitempty"`
	Bool     bool   `json:"b,omitempty"`
	Count    int    `json:"c,omitempty"`
	Die      int    `json:"d,omitempty"`
	Modifier int    `json:"m,omitempty"`
}

// EncodeTuple serializes a tuple to JSON.
func EncodeTuple(t ast.Tuple) ([]byte, error) {
	wire := make([]wireConstant, len(t))
	for i, c := range t {
		switch v := c.(type) {
		case ast.String:
			wire[i] = wireConstant{Kind: "string", Str: v.Value}
		case ast.Number:
			wire[i] = wireConstant{Kind: "number", Num: strconv.FormatFloat(v.Value, 'g', -1, 64)}
		case ast.Boolean:
			wire[i] = wireConstant{Kind: "boolean", Bool: v.Value}
		case ast.Roll:
			wire[i] = wireConstant{Kind: "roll", Count: v.Count, Die: v.Die, Modifier: v.Modifier}
		default:
			return nil, fmt.Errorf("encode tuple: unsupported constant %T", c)
		}
	}
	return json.Marshal(wire)
}

// DecodeTuple is the inverse of EncodeTuple.
func DecodeTuple(data []byte) (ast.Tuple, error) {
	var wire []wireConstant
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode tuple: %w", err)
	}
	t := make(ast.Tuple, len(wire))
	for i, w := range wire {
		switch w.Kind {
		case "string":
			t[i] = ast.String{Value: w.Str}
		case "number":
			n, err := strconv.ParseFloat(w.Num, 64)
			if err != nil {
				return nil, fmt.Errorf("decode tuple: number field %d: %w", i, err)
			}
			t[i] = ast.Number{Value: n}
		case "boolean":
			t[i] = ast.Boolean{Value: w.Bool}
		case "roll":
			t[i] = ast.Roll{Count: w.Count, Die: w.Die, Modifier: w.Modifier}
		default:
			return nil, fmt.Errorf("decode tuple: unknown kind %q", w.Kind)
		}
	}
	return t, nil
}
