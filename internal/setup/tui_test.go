package setup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/tradeflow/config"
)

func TestWrite_ProducesLoadableConfig(t *testing.T) {
	a := DefaultAnswers()
	a.Quote = "usdc"
	a.Interval = "90s"
	a.MaxPosCount = "3"
	a.RedisAddr = "localhost:6379"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Write(path, a))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "USDC", cfg.Quote)
	assert.Equal(t, 90*time.Second, cfg.Interval)
	assert.Equal(t, config.VenuePaper, cfg.Venue)
	assert.Equal(t, 3, cfg.Pipeline.MaxPositions)
	assert.Equal(t, "200", cfg.Risk.MaxPosition.String())
	assert.True(t, cfg.Cache.Enabled())
}

func TestAnswers_ConfigTmpErrors(t *testing.T) {
	a := DefaultAnswers()
	a.Interval = "soon"
	_, err := a.ConfigTmp()
	require.Error(t, err)

	a = DefaultAnswers()
	a.MaxPosCount = "many"
	_, err = a.ConfigTmp()
	require.Error(t, err)
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(string) error
		input string
		ok    bool
	}{
		{name: "decimal", fn: positiveDecimal, input: "12.5", ok: true},
		{name: "zero decimal", fn: positiveDecimal, input: "0"},
		{name: "not a decimal", fn: positiveDecimal, input: "ten"},
		{name: "int", fn: positiveInt, input: "4", ok: true},
		{name: "zero int", fn: positiveInt, input: "0"},
		{name: "duration", fn: validateDuration, input: "5m", ok: true},
		{name: "negative duration", fn: validateDuration, input: "-5m"},
		{name: "empty", fn: notEmpty("quote"), input: " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.input)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
