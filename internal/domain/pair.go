// Package domain defines core data structures shared by the analysis, risk,
// execution and bookkeeping stages of the trading pipeline.
package domain

import (
	"fmt"
	"strings"
)

// Pair trading pair on an execution venue.
type Pair struct {
	// From base asset symbol (the asset being bought or sold).
	From string
	// To quote currency symbol (the currency sizes are expressed in).
	To string
}

// NewPair builds a pair with upper-cased symbols.
func NewPair(base, quote string) Pair {
	return Pair{From: strings.ToUpper(base), To: strings.ToUpper(quote)}
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated venue symbol, e.g. BTCUSDT.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}
