package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresets(t *testing.T) {
	cases := map[Strategy]Config{
		StrategyConservative: {MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Minute, JitterFactor: 0.2, Strategy: StrategyConservative, RespectRetryAfter: true},
		StrategyBalanced:     {MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, JitterFactor: 0.1, Strategy: StrategyBalanced, RespectRetryAfter: true},
		StrategyAggressive:   {MaxRetries: 2, BaseDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second, JitterFactor: 0.05, Strategy: StrategyAggressive, RespectRetryAfter: true},
	}
	for strategy, want := range cases {
		require.Equal(t, want, PresetConfig(strategy))
		require.NoError(t, want.Validate())
	}
	require.Equal(t, StrategyCustom, PresetConfig(StrategyCustom).Strategy)
}

func TestNewConfigOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithStrategy(StrategyAggressive),
		WithMaxRetries(4),
		WithBaseDelay(50*time.Millisecond),
		WithMaxDelay(time.Second),
		WithJitterFactor(0),
		WithRespectRetryAfter(false),
		WithRetryServerErrors(true),
	)
	require.NoError(t, err)
	require.Equal(t, StrategyAggressive, cfg.Strategy)
	require.Equal(t, 4, cfg.MaxRetries)
	require.Equal(t, 50*time.Millisecond, cfg.BaseDelay)
	require.Equal(t, time.Second, cfg.MaxDelay)
	require.Zero(t, cfg.JitterFactor)
	require.False(t, cfg.RespectRetryAfter)
	require.True(t, cfg.RetryServerErrors)
	require.Equal(t, 4*time.Second, cfg.RetryBudget())
}

func TestNewConfigRejectsOutOfRange(t *testing.T) {
	cases := map[string][]Option{
		"negative retries": {WithMaxRetries(-1)},
		"zero base":        {WithBaseDelay(0)},
		"max below base":   {WithBaseDelay(time.Second), WithMaxDelay(time.Millisecond)},
		"jitter above one": {WithJitterFactor(1.5)},
		"negative jitter":  {WithJitterFactor(-0.1)},
		"unknown strategy": {func(c *Config) { c.Strategy = "reckless" }},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewConfig(opts...)
			require.Error(t, err)
			require.Contains(t, err.Error(), "invalid rate limit config")
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for input, want := range map[string]Strategy{
		"":             StrategyBalanced,
		"Conservative": StrategyConservative,
		" aggressive ": StrategyAggressive,
		"BALANCED":     StrategyBalanced,
		"custom":       StrategyCustom,
	} {
		got, err := ParseStrategy(input)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseStrategy("fast")
	require.Error(t, err)
}

func TestAttemptNext(t *testing.T) {
	first := InitialAttempt()
	require.Zero(t, first.Number)

	err := throttled()
	second := first.Next(err, 250*time.Millisecond)
	third := second.Next(err, -time.Second)

	require.Zero(t, first.Number, "attempts are values")
	require.Equal(t, 1, second.Number)
	require.Same(t, err, second.LastErr)
	require.Equal(t, 250*time.Millisecond, second.CumulativeDelay)
	require.Equal(t, 2, third.Number)
	require.Equal(t, 250*time.Millisecond, third.CumulativeDelay)
}

func TestDecisionString(t *testing.T) {
	require.Equal(t, "proceed", Proceed().String())
	require.Equal(t, "wait 1s: throttled", Wait(time.Second, "throttled").String())
	require.Equal(t, "reject: maximum retries exceeded", Reject("maximum retries exceeded").String())
}
