// Package scan classifies raw scanned barcodes into typed tokens.
//
// A warehouse terminal receives every scan as a bare string: it may be an
// order barcode from a pick list, a rack location label, or a product unit
// code. Classify resolves the ambiguity once, at the boundary, so the rest
// of the engine only ever sees a typed Token and never re-parses strings.
package scan

import "strings"

// Kind identifies what a scanned token refers to.
type Kind string

const (
	KindOrder   Kind = "ORDER"
	KindRack    Kind = "RACK"
	KindProduct Kind = "PRODUCT"
)

// Token is a classified scan: the kind plus the normalized payload.
//
// For KindOrder the Value is the bare order id (prefix stripped).
// For KindRack the Value keeps the canonical "RACK-<code>" form.
// For KindProduct the Value is the raw token unchanged — it may be a
// structured product code or a legacy bare item id.
type Token struct {
	Kind  Kind
	Value string
}

// Classify maps a raw scanned string to a Token.
//
// Precedence is fixed, not scored: the ORDER prefixes are checked first,
// then the RACK prefix, and anything left falls through to PRODUCT. A short
// ambiguous token therefore always resolves the same way.
func Classify(raw string) Token {
	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)

	if rest, ok := strings.CutPrefix(upper, "ORD-"); ok {
		return Token{Kind: KindOrder, Value: rest}
	}
	if rest, ok := strings.CutPrefix(trimmed, "#"); ok {
		return Token{Kind: KindOrder, Value: rest}
	}
	if rest, ok := strings.CutPrefix(upper, "RACK-"); ok {
		return Token{Kind: KindRack, Value: "RACK-" + rest}
	}

	return Token{Kind: KindProduct, Value: trimmed}
}
