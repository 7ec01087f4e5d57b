// Package ast defines the Entish statement, clause and expression trees.
//
// Every tree node is a closed sum type: the interfaces carry an unexported
// marker method so variants can only be declared here, and every node renders
// to canonical Entish text through String.
package ast

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Constant is a grounded value: String, Number, Boolean or Roll.
type Constant interface {
	Expression
	constant()
}

// String is a text constant. Capitalised identifiers such as Auric are strings.
type String struct {
	Value string
}

// Number is a double-precision numeric constant.
type Number struct {
	Value float64
}

// Boolean is a true/false constant.
type Boolean struct {
	Value bool
}

// Roll is dice notation: Count dice with Die faces, each adjusted by Modifier.
type Roll struct {
	Count    int
	Die      int
	Modifier int
}

func (String) expression()  {}
func (Number) expression()  {}
func (Boolean) expression() {}
func (Roll) expression()    {}

func (String) constant()  {}
func (Number) constant()  {}
func (Boolean) constant() {}
func (Roll) constant()    {}

var bareString = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*$`)

func (s String) String() string {
	if bareString.MatchString(s.Value) {
		return s.Value
	}
	return strconv.Quote(s.Value)
}

func (n Number) String() string {
	return FormatNumber(n.Value)
}

func (b Boolean) String() string {
	return strconv.FormatBool(b.Value)
}

func (r Roll) String() string {
	switch {
	case r.Modifier > 0:
		return fmt.Sprintf("%dd%d+%d", r.Count, r.Die, r.Modifier)
	case r.Modifier < 0:
		return fmt.Sprintf("%dd%d-%d", r.Count, r.Die, -r.Modifier)
	default:
		return fmt.Sprintf("%dd%d", r.Count, r.Die)
	}
}

// FormatNumber renders a float in its shortest exact decimal form.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Kind names the variant of a constant for diagnostics.
func Kind(c Constant) string {
	switch c.(type) {
	case String:
		return "string"
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case Roll:
		return "roll"
	default:
		return "unknown"
	}
}

// Equal reports structural equality. Rolls are equal iff their canonical text
// matches; constants of different kinds are never equal.
func Equal(a, b Constant) bool {
	switch x := a.(type) {
	case String:
		y, ok := b.(String)
		return ok && x.Value == y.Value
	case Number:
		y, ok := b.(Number)
		return ok && x.Value == y.Value
	case Boolean:
		y, ok := b.(Boolean)
		return ok && x.Value == y.Value
	case Roll:
		y, ok := b.(Roll)
		return ok && x.String() == y.String()
	default:
		return false
	}
}

// Tuple is the grounded row of a stored fact.
type Tuple []Constant

// Equal reports whether both tuples have the same arity and equal fields.
func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if !Equal(t[i], o[i]) {
			return false
		}
	}
	return true
}

// Key returns a string that is identical for structurally equal tuples and
// distinct otherwise. Stores use it as the deduplication key. Strings are
// length prefixed, so no string content can mimic a field boundary.
func (t Tuple) Key() string {
	var b strings.Builder
	for i, c := range t {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		switch v := c.(type) {
		case String:
			fmt.Fprintf(&b, "s%d:%s", len(v.Value), v.Value)
		case Number:
			b.WriteString("n:")
			b.WriteString(FormatNumber(v.Value))
		case Boolean:
			b.WriteString("b:")
			b.WriteString(strconv.FormatBool(v.Value))
		case Roll:
			b.WriteString("r:")
			b.WriteString(v.String())
		}
	}
	return b.String()
}

// Fact wraps the tuple as a stored fact of the given table.
func (t Tuple) Fact(table string) Fact {
	fields := make([]Expression, len(t))
	for i, c := range t {
		fields[i] = c
	}
	return Fact{Table: table, Fields: fields}
}
