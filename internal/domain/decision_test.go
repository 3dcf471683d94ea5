package domain

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTradingDecision_Validate(t *testing.T) {
	tests := []struct {
		name     string
		decision TradingDecision
		wantErr  bool
	}{
		{
			name:     "hold without size",
			decision: TradingDecision{Address: "SOL", Action: ActionHold},
		},
		{
			name:     "buy with size",
			decision: TradingDecision{Address: "SOL", Action: ActionBuy, Size: decimal.NewFromInt(10), Confidence: 0.9},
		},
		{
			name:     "missing address",
			decision: TradingDecision{Action: ActionHold},
			wantErr:  true,
		},
		{
			name:     "buy without size",
			decision: TradingDecision{Address: "SOL", Action: ActionBuy},
			wantErr:  true,
		},
		{
			name:     "sell with quantity only",
			decision: TradingDecision{Address: "SOL", Action: ActionSell, Quantity: decimal.NewFromInt(1)},
		},
		{
			name:     "sell without size or quantity",
			decision: TradingDecision{Address: "SOL", Action: ActionSell},
			wantErr:  true,
		},
		{
			name:     "confidence out of range",
			decision: TradingDecision{Address: "SOL", Action: ActionHold, Confidence: 2},
			wantErr:  true,
		},
		{
			name: "staged without config",
			decision: TradingDecision{Address: "SOL", Action: ActionBuy, Size: decimal.NewFromInt(1),
				Params: ExecutionParams{EntryType: EntryStaged}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decision.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStagedEntry_Clamp(t *testing.T) {
	tests := []struct {
		name     string
		in       StagedEntry
		entries  int
		hours    int
		expected StagedEntry
	}{
		{name: "within bounds", in: StagedEntry{NumEntries: 3, HoursBetween: 24}, entries: 5, hours: 48, expected: StagedEntry{NumEntries: 3, HoursBetween: 24}},
		{name: "above configured bounds", in: StagedEntry{NumEntries: 8, HoursBetween: 100}, entries: 5, hours: 48, expected: StagedEntry{NumEntries: 5, HoursBetween: 48}},
		{name: "unset bounds use ceilings", in: StagedEntry{NumEntries: 1_000_000, HoursBetween: 87_600}, expected: StagedEntry{NumEntries: MaxStagedEntries, HoursBetween: MaxStagedHours}},
		{name: "bounds above ceilings", in: StagedEntry{NumEntries: 50, HoursBetween: 500}, entries: 50, hours: 500, expected: StagedEntry{NumEntries: MaxStagedEntries, HoursBetween: MaxStagedHours}},
		{name: "negative values", in: StagedEntry{NumEntries: -2, HoursBetween: -1}, entries: 5, hours: 48, expected: StagedEntry{NumEntries: 1, HoursBetween: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.in.Clamp(tt.entries, tt.hours))
		})
	}
}

func TestParseEntryType(t *testing.T) {
	assert.Equal(t, EntryMarket, ParseEntryType("market"))
	assert.Equal(t, EntryLimit, ParseEntryType("LIMIT"))
	assert.Equal(t, EntryStaged, ParseEntryType("dca"))
	assert.Equal(t, EntryStaged, ParseEntryType("staged"))
	assert.Equal(t, EntryMarket, ParseEntryType("twap"))
}

func TestActionText(t *testing.T) {
	b, err := json.Marshal(struct{ A Action }{ActionSell})
	assert.NoError(t, err)
	assert.JSONEq(t, `{"A":"sell"}`, string(b))

	var out struct{ A Action }
	assert.NoError(t, json.Unmarshal([]byte(`{"A":"buy"}`), &out))
	assert.Equal(t, ActionBuy, out.A)

	assert.Error(t, json.Unmarshal([]byte(`{"A":"short"}`), &out))
}

func TestExecutionError(t *testing.T) {
	err := &ExecutionError{Kind: ErrRetriesExhausted, Attempts: 3, Err: ErrSlippageExceeded}

	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.True(t, errors.Is(err, ErrSlippageExceeded))
	assert.False(t, errors.Is(err, ErrVenueUnavailable))
	assert.Contains(t, err.Error(), "3 attempt(s)")

	var ee *ExecutionError
	assert.True(t, errors.As(errors.Wrap(err, "execute"), &ee))
	assert.Equal(t, 3, ee.Attempts)
}

func TestWeightedRiskScore(t *testing.T) {
	assert.InDelta(t, 1.0, WeightedRiskScore(1, 1, 1, 1), 1e-12)
	assert.InDelta(t, 0.3*0.5+0.3*0.2+0.2*0.4+0.2*1, WeightedRiskScore(0.5, 0.2, 0.4, 1), 1e-12)
}
