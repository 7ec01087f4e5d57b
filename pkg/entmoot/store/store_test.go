package store

import (
	"math"
	"testing"

	"github.com/cognicore/entmoot/pkg/entmoot/ast"
)

func TestTupleCodec(t *testing.T) {
	in := ast.Tuple{
		ast.String{Value: "Auric"},
		ast.Number{Value: 0},
		ast.Number{Value: -2.5},
		ast.Boolean{Value: false},
		ast.Roll{Count: 1, Die: 20, Modifier: -1},
	}
	data, err := EncodeTuple(in)
	if err != nil {
		t.Fatalf("EncodeTuple: %v", err)
	}
	out, err := DecodeTuple(data)
	if err != nil {
		t.Fatalf("DecodeTuple: %v", err)
	}
	if !in.Equal(out) {
		t.Errorf("codec changed the tuple: %v -> %v", in, out)
	}
}

func TestDecodeTupleRejectsUnknownKind(t *testing.T) {
	if _, err := DecodeTuple([]byte(`[{"k":"list"}]`)); err == nil {
		t.Error("expected error for unknown kind")
	}
	if _, err := DecodeTuple([]byte(`[{"k":"number","n":"lots"}]`)); err == nil {
		t.Error("expected error for a malformed number")
	}
	if _, err := DecodeTuple([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestTupleCodecNonFinite(t *testing.T) {
	in := ast.Tuple{
		ast.Number{Value: math.Inf(1)},
		ast.Number{Value: math.Inf(-1)},
		ast.Number{Value: math.NaN()},
		ast.Number{Value: 1e300},
	}
	data, err := EncodeTuple(in)
	if err != nil {
		t.Fatalf("EncodeTuple: %v", err)
	}
	out, err := DecodeTuple(data)
	if err != nil {
		t.Fatalf("DecodeTuple: %v", err)
	}
	if in.Key() != out.Key() {
		t.Errorf("codec changed the tuple: %s -> %s", in.Key(), out.Key())
	}
}
