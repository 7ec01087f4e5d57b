package parser

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// Entish is the token definition. Rules are tried in order, so rolls are
// recognised before plain numbers.
var Entish = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*|/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Roll", Pattern: `\d+d\d+(?:[+-]\d+)?`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?`},
	{Name: "Infer", Pattern: `:-`},
	{Name: "Therefore", Pattern: `∴`},
	{Name: "Comparator", Pattern: `!=|>=|<=|[=<>]`},
	{Name: "Punct", Pattern: `[()~&|^,.?+\-*/]`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
})

var (
	tokComment    = Entish.Symbols()["Comment"]
	tokWhitespace = Entish.Symbols()["Whitespace"]
	tokString     = Entish.Symbols()["String"]
	tokRoll       = Entish.Symbols()["Roll"]
	tokNumber     = Entish.Symbols()["Number"]
	tokTherefore  = Entish.Symbols()["Therefore"]
	tokComparator = Entish.Symbols()["Comparator"]
	tokPunct      = Entish.Symbols()["Punct"]
	tokIdent      = Entish.Symbols()["Ident"]
)

// tokenize lexes src, dropping whitespace.
func tokenize(filename, src string) ([]lexer.Token, error) {
	lex, err := Entish.LexString(filename, src)
	if err != nil {
		return nil, err
	}
	all, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, tok := range all {
		if tok.Type == tokWhitespace {
			continue
		}
		out = append(out, tok)
	}
	return out, nil
}

// Complete reports whether src ends at a statement boundary: the last token
// that is not a comment is a period, or there is no such token.
func Complete(src string) bool {
	toks, err := tokenize("", src)
	if err != nil {
		return strings.HasSuffix(strings.TrimSpace(src), ".")
	}
	for i := len(toks) - 1; i >= 0; i-- {
		tok := toks[i]
		if tok.EOF() || tok.Type == tokComment {
			continue
		}
		return tok.Type == tokPunct && tok.Value == "."
	}
	return true
}
