package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"gpaddons-go/services/config"
	"gpaddons-go/services/hal/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSim(t *testing.T, mutate func(*config.AddonOptions)) (*sim, *bytes.Buffer) {
	t.Helper()
	opts, ok := config.BoardLookup("MK2cabA")
	require.True(t, ok)
	if mutate != nil {
		mutate(&opts)
	}
	var out bytes.Buffer
	s := newSim(context.Background(), simOptions{
		Options: opts,
		Store:   config.NewMemStore(opts),
		HAL:     simRegistry(opts),
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, &out)
	return s, &out
}

func TestScript_CoinAndStart(t *testing.T) {
	s, out := newTestSim(t, nil)
	script := `
# two coins, one game
tap coin
tick 100
tap s1
credits
tap start
credits
`
	require.NoError(t, s.run(strings.NewReader(script)))
	assert.Contains(t, out.String(), "credits 2\n")
	assert.Contains(t, out.String(), "credits 1\n")
	assert.Contains(t, out.String(), "addons/coin_leds/credits")
}

func TestScript_Levels(t *testing.T) {
	s, out := newTestSim(t, nil)
	require.NoError(t, s.exec("tick 2"))
	require.NoError(t, s.exec("levels"))
	assert.Contains(t, out.String(), "marquee")
	assert.Contains(t, out.String(), "start")
}

func TestScript_Errors(t *testing.T) {
	s, _ := newTestSim(t, nil)
	assert.Error(t, s.exec("jump"))
	assert.Error(t, s.exec("press nosuch"))
	assert.Error(t, s.exec("tick -1"))
	assert.Error(t, s.exec(`press "unterminated`))
	assert.NoError(t, s.exec("   # only a comment"))

	err := s.run(strings.NewReader("tick\nbogus\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestScript_NoCoinLeds(t *testing.T) {
	s, _ := newTestSim(t, func(o *config.AddonOptions) { o.CoinLeds.Enabled = false })
	assert.Error(t, s.exec("credits"))
	assert.NoError(t, s.exec("press up"))
}

func TestSimRegistry_AnswersMappedAddresses(t *testing.T) {
	opts := config.Disabled()
	opts.I2CMapper.Maps = []config.I2CMap{{Command: 0x20000001}, {Command: 0x3C000002}}
	reg := simRegistry(opts)
	b, err := reg.ClaimI2C("test", "i2c0")
	require.NoError(t, err)
	assert.NoError(t, b.Tx(0x20, nil, make([]byte, 1)))
	assert.NoError(t, b.Tx(0x3C, nil, make([]byte, 1)))
	assert.Error(t, b.Tx(0x21, nil, make([]byte, 1)))
	var _ *fake.Registry = reg
}
