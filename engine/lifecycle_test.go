package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
)

func TestTakeProfitDirection(t *testing.T) {
	t.Parallel()

	ref := 254.84

	// BUY recommendation, +10%: target above the reference.
	tp := TakeProfitPrice(market.Buy, ref, 10)
	assert.InDelta(t, 280.324, tp, 1e-9)
	assert.Greater(t, tp, ref)

	// SELL recommendation, +10%: target below the reference. Using BUY
	// math here would yield 280.32; using SELL math on a BUY would yield
	// 229.36.
	tp = TakeProfitPrice(market.Sell, ref, 10)
	assert.InDelta(t, 229.356, tp, 1e-9)
	assert.Less(t, tp, ref)

	// The configured percent's sign is cosmetic.
	assert.InDelta(t, TakeProfitPrice(market.Buy, ref, 10), TakeProfitPrice(market.Buy, ref, -10), 1e-12)
	assert.InDelta(t, TakeProfitPrice(market.Sell, ref, 10), TakeProfitPrice(market.Sell, ref, -10), 1e-12)
}

func TestStopLossDirection(t *testing.T) {
	t.Parallel()

	ref := 254.84

	// Long stop sits below entry, short stop above.
	sl := StopLossPrice(market.Buy, ref, 5)
	assert.Less(t, sl, ref)
	assert.InDelta(t, 242.098, sl, 1e-9)

	sl = StopLossPrice(market.Sell, ref, 5)
	assert.Greater(t, sl, ref)
	assert.InDelta(t, 267.582, sl, 1e-9)

	assert.InDelta(t, StopLossPrice(market.Buy, ref, 5), StopLossPrice(market.Buy, ref, -5), 1e-12)
}

func TestExitDirectionPriority(t *testing.T) {
	t.Parallel()

	// The recommendation's direction always wins.
	dir, err := exitDirection(journal.RecommendBuy, market.Sell)
	require.NoError(t, err)
	assert.Equal(t, market.Buy, dir)

	dir, err = exitDirection(journal.RecommendSell, market.Buy)
	require.NoError(t, err)
	assert.Equal(t, market.Sell, dir)

	// Without a recommendation direction, fall back to the recorded side.
	dir, err = exitDirection(journal.RecommendHold, market.Sell)
	require.NoError(t, err)
	assert.Equal(t, market.Sell, dir)

	// No direction available at all is an error, not a guess.
	_, err = exitDirection(journal.RecommendHold, "")
	assert.Error(t, err)
}

func TestLegComment(t *testing.T) {
	t.Parallel()

	c := legComment(market.LegTakeProfit, "ORD1", "BRK9")
	assert.Equal(t, "TP parent=ORD1 broker=BRK9", c)

	c = legComment(market.LegStopLoss, "ORD1", "BRK9")
	assert.Equal(t, "SL parent=ORD1 broker=BRK9", c)
}
