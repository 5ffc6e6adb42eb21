package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/market"
)

func fp(v float64) *float64 { return &v }

func TestParseSideCaseInsensitive(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]market.Side{
		"buy":   market.Buy,
		"BUY":   market.Buy,
		"Buy ":  market.Buy,
		"sell":  market.Sell,
		"SHORT": market.Sell,
		"long":  market.Buy,
	} {
		got, err := ParseSide(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseSide("hold")
	assert.Error(t, err)
}

func TestClassifyLeg(t *testing.T) {
	t.Parallel()

	kind, err := ClassifyLeg(Leg{LimitPrice: fp(280.32)})
	require.NoError(t, err)
	assert.Equal(t, market.KindLimit, kind)

	kind, err = ClassifyLeg(Leg{LimitPrice: fp(241.9), StopPrice: fp(242.1)})
	require.NoError(t, err)
	assert.Equal(t, market.KindStopLimit, kind)

	kind, err = ClassifyLeg(Leg{StopPrice: fp(242.1)})
	require.NoError(t, err)
	assert.Equal(t, market.KindStop, kind)

	_, err = ClassifyLeg(Leg{BrokerOrderID: "L1"})
	assert.Error(t, err)
}

func TestLegRoleFor(t *testing.T) {
	t.Parallel()

	role, err := LegRoleFor(Leg{LimitPrice: fp(280.32)})
	require.NoError(t, err)
	assert.Equal(t, market.LegTakeProfit, role)

	role, err = LegRoleFor(Leg{StopPrice: fp(242.1)})
	require.NoError(t, err)
	assert.Equal(t, market.LegStopLoss, role)

	role, err = LegRoleFor(Leg{LimitPrice: fp(241.9), StopPrice: fp(242.1)})
	require.NoError(t, err)
	assert.Equal(t, market.LegStopLoss, role)
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, market.OrderFilled, ParseStatus("filled"))
	assert.Equal(t, market.OrderHeld, ParseStatus("NEW"))
	assert.Equal(t, market.OrderCanceled, ParseStatus("cancelled"))
	assert.Equal(t, market.OrderRejected, ParseStatus("REJECTED"))
	assert.Equal(t, market.OrderPending, ParseStatus("pending_new"))
}
