package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/journal"
	"github.com/rustyeddy/autotrader/market"
)

// seedOpenPosition writes an OPENED long transaction with a filled bracket
// parent, two held legs and one standalone stop order, returning everything
// by id so fill tests can drive closure paths directly.
type openPosition struct {
	tx         journal.Transaction
	parent     journal.TradingOrder
	tpLeg      journal.TradingOrder
	slLeg      journal.TradingOrder
	standalone journal.TradingOrder
}

func seedOpenPosition(t *testing.T, rig *testRig) openPosition {
	t.Helper()

	tx := journal.Transaction{SourceID: "9", Symbol: "AAPL", Quantity: 10, Status: journal.TxWaiting}
	require.NoError(t, rig.store.InsertTransaction(&tx))

	parent := journal.TradingOrder{
		TransactionID: tx.ID,
		Kind:          market.KindBracket,
		Side:          market.Buy,
		Status:        market.OrderFilled,
		Quantity:      10,
		BrokerOrderID: "brk-parent",
		FilledPrice:   254.84,
	}
	require.NoError(t, rig.store.InsertOrder(&parent))

	opened, err := rig.store.MarkOpened(tx.ID, 254.84)
	require.NoError(t, err)
	require.True(t, opened)

	tpLeg := journal.TradingOrder{
		TransactionID: tx.ID,
		Kind:          market.KindLimit,
		Side:          market.Sell,
		Status:        market.OrderHeld,
		Quantity:      10,
		LimitPrice:    280.324,
		BrokerOrderID: "brk-tp",
		DependsOn:     parent.ID,
		LegRole:       market.LegTakeProfit,
		Comment:       legComment(market.LegTakeProfit, parent.ID, parent.BrokerOrderID),
	}
	require.NoError(t, rig.store.InsertOrder(&tpLeg))

	slLeg := journal.TradingOrder{
		TransactionID: tx.ID,
		Kind:          market.KindStop,
		Side:          market.Sell,
		Status:        market.OrderHeld,
		Quantity:      10,
		StopPrice:     242.098,
		BrokerOrderID: "brk-sl",
		DependsOn:     parent.ID,
		LegRole:       market.LegStopLoss,
		Comment:       legComment(market.LegStopLoss, parent.ID, parent.BrokerOrderID),
	}
	require.NoError(t, rig.store.InsertOrder(&slLeg))

	standalone := journal.TradingOrder{
		TransactionID: tx.ID,
		Kind:          market.KindStop,
		Side:          market.Sell,
		Status:        market.OrderHeld,
		Quantity:      10,
		StopPrice:     245.00,
		BrokerOrderID: "brk-standalone",
		LegRole:       market.LegStopLoss,
	}
	require.NoError(t, rig.store.InsertOrder(&standalone))

	cur, err := rig.store.GetTransaction(tx.ID)
	require.NoError(t, err)
	return openPosition{tx: cur, parent: parent, tpLeg: tpLeg, slLeg: slLeg, standalone: standalone}
}

func TestProcessFillsBracketLegClosesAndCancelsSibling(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	pos := seedOpenPosition(t, rig)

	err := rig.engine.ProcessFills(context.Background(), []Fill{
		{OrderID: pos.tpLeg.ID, Price: 280.324, At: time.Now().UTC()},
	})
	require.NoError(t, err)

	tx, err := rig.store.GetTransaction(pos.tx.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.TxClosed, tx.Status)
	assert.InDelta(t, 280.324, tx.ClosePrice, 1e-9)
	assert.Contains(t, tx.CloseReason, "bracket")
	assert.Contains(t, tx.CloseReason, pos.tpLeg.ID)

	// One-cancels-other: the surviving stop leg is canceled at the broker
	// and in the journal.
	sl, err := rig.store.GetOrder(pos.slLeg.ID)
	require.NoError(t, err)
	assert.Equal(t, market.OrderCanceled, sl.Status)
	assert.Contains(t, rig.conn.Canceled(), "brk-sl")
}

func TestProcessFillsBracketLegWinsOverStandaloneExit(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	pos := seedOpenPosition(t, rig)

	// The standalone stop reports its fill first in wall-clock terms, but
	// the bracket leg takes closure priority within the batch.
	now := time.Now().UTC()
	err := rig.engine.ProcessFills(context.Background(), []Fill{
		{OrderID: pos.standalone.ID, Price: 245.00, At: now.Add(-time.Second)},
		{OrderID: pos.slLeg.ID, Price: 242.098, At: now},
	})
	require.NoError(t, err)

	tx, err := rig.store.GetTransaction(pos.tx.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.TxClosed, tx.Status)
	assert.Contains(t, tx.CloseReason, "bracket")
	assert.Contains(t, tx.CloseReason, pos.slLeg.ID)

	// The standalone fill is still recorded; it just cannot restate the
	// close reason.
	standalone, err := rig.store.GetOrder(pos.standalone.ID)
	require.NoError(t, err)
	assert.Equal(t, market.OrderFilled, standalone.Status)
}

func TestProcessFillsOpensWaitingTransaction(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)

	tx := journal.Transaction{SourceID: "9", Symbol: "AAPL", Quantity: 10, Status: journal.TxWaiting}
	require.NoError(t, rig.store.InsertTransaction(&tx))

	entry := journal.TradingOrder{
		TransactionID: tx.ID,
		Kind:          market.KindMarket,
		Side:          market.Buy,
		Status:        market.OrderPending,
		Quantity:      10,
	}
	require.NoError(t, rig.store.InsertOrder(&entry))

	err := rig.engine.ProcessFills(context.Background(), []Fill{
		{OrderID: entry.ID, Price: 254.84},
	})
	require.NoError(t, err)

	cur, err := rig.store.GetTransaction(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.TxOpened, cur.Status)
	assert.InDelta(t, 254.84, cur.OpenPrice, 1e-9)

	got, err := rig.store.GetOrder(entry.ID)
	require.NoError(t, err)
	assert.Equal(t, market.OrderFilled, got.Status)
	assert.False(t, got.FilledAt.IsZero())
}

func TestResetStuckClosing(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	pos := seedOpenPosition(t, rig)

	moved, err := rig.store.MarkClosing(pos.tx.ID, "manual close attempt")
	require.NoError(t, err)
	require.True(t, moved)

	// The close never completed; the reset lands on OPENED because the
	// entry order filled.
	status, err := rig.engine.ResetStuckClosing(pos.tx.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.TxOpened, status)

	tx, err := rig.store.GetTransaction(pos.tx.ID)
	require.NoError(t, err)
	assert.Equal(t, journal.TxOpened, tx.Status)
	assert.Empty(t, tx.CloseReason)

	// Resetting a transaction that is not CLOSING is refused.
	_, err = rig.engine.ResetStuckClosing(pos.tx.ID)
	assert.ErrorIs(t, err, journal.ErrNotClosing)
}
