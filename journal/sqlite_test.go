package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/autotrader/market"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j
}

func seedRecommendation(t *testing.T, j *SQLite, sourceID, symbol string, action RecommendedAction) Recommendation {
	t.Helper()

	r := Recommendation{
		SourceID:          sourceID,
		Symbol:            symbol,
		Action:            action,
		Confidence:        80,
		ExpectedProfitPct: 10,
		RiskLevel:         "medium",
		TimeHorizon:       "1w",
		Price:             254.84,
	}
	require.NoError(t, j.InsertRecommendation(&r))
	return r
}

func TestListRecommendationsSince(t *testing.T) {
	t.Parallel()

	j := newTestSQLite(t)

	old := Recommendation{
		SourceID: "9", Symbol: "AAPL", Action: RecommendBuy,
		Confidence: 70, Price: 200,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, j.InsertRecommendation(&old))
	fresh := seedRecommendation(t, j, "9", "AAPL", RecommendBuy)
	seedRecommendation(t, j, "10", "TSLA", RecommendSell)

	recs, err := j.ListRecommendationsSince("9", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, fresh.ID, recs[0].ID)
}

func TestFindOpenTransaction(t *testing.T) {
	t.Parallel()

	j := newTestSQLite(t)

	closed := Transaction{SourceID: "9", Symbol: "AAPL", Quantity: 10, Status: TxClosed}
	require.NoError(t, j.InsertTransaction(&closed))

	got, err := j.FindOpenTransaction("9", "AAPL")
	require.NoError(t, err)
	assert.Nil(t, got)

	open := Transaction{SourceID: "9", Symbol: "AAPL", Quantity: 10, Status: TxOpened}
	require.NoError(t, j.InsertTransaction(&open))

	got, err = j.FindOpenTransaction("9", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, open.ID, got.ID)

	// Different source, same symbol: no match.
	got, err = j.FindOpenTransaction("10", "AAPL")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransactionStateMachine(t *testing.T) {
	t.Parallel()

	j := newTestSQLite(t)

	tx := Transaction{SourceID: "9", Symbol: "AAPL", Quantity: 10}
	require.NoError(t, j.InsertTransaction(&tx))

	opened, err := j.MarkOpened(tx.ID, 101.5)
	require.NoError(t, err)
	assert.True(t, opened)

	// Second fill does not re-open.
	opened, err = j.MarkOpened(tx.ID, 999)
	require.NoError(t, err)
	assert.False(t, opened)

	closing, err := j.MarkClosing(tx.ID, "bracket TAKE_PROFIT leg filled")
	require.NoError(t, err)
	assert.True(t, closing)

	// First close reason wins.
	closing, err = j.MarkClosing(tx.ID, "rule CLOSE action")
	require.NoError(t, err)
	assert.False(t, closing)

	closed, err := j.MarkClosed(tx.ID, 110.0)
	require.NoError(t, err)
	assert.True(t, closed)

	got, err := j.GetTransaction(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxClosed, got.Status)
	assert.Equal(t, "bracket TAKE_PROFIT leg filled", got.CloseReason)
	assert.InDelta(t, 101.5, got.OpenPrice, 1e-9)
	assert.InDelta(t, 110.0, got.ClosePrice, 1e-9)
}

func TestMarkFailedOnlyFromWaiting(t *testing.T) {
	t.Parallel()

	j := newTestSQLite(t)

	tx := Transaction{SourceID: "9", Symbol: "AAPL", Quantity: 10}
	require.NoError(t, j.InsertTransaction(&tx))

	moved, err := j.MarkFailed(tx.ID, "submit rejected")
	require.NoError(t, err)
	assert.True(t, moved)

	got, err := j.GetTransaction(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxFailed, got.Status)
	assert.Equal(t, "submit rejected", got.CloseReason)

	// A failed transaction no longer holds the symbol.
	open, err := j.FindOpenTransaction("9", "AAPL")
	require.NoError(t, err)
	assert.Nil(t, open)

	// Anything past WAITING keeps its lifecycle.
	tx2 := Transaction{SourceID: "9", Symbol: "TSLA", Quantity: 5, Status: TxOpened}
	require.NoError(t, j.InsertTransaction(&tx2))

	moved, err = j.MarkFailed(tx2.ID, "late failure")
	require.NoError(t, err)
	assert.False(t, moved)

	got, err = j.GetTransaction(tx2.ID)
	require.NoError(t, err)
	assert.Equal(t, TxOpened, got.Status)
}

func TestResetClosingRequiresClosingState(t *testing.T) {
	t.Parallel()

	j := newTestSQLite(t)

	tx := Transaction{SourceID: "9", Symbol: "AAPL", Quantity: 10, Status: TxOpened}
	require.NoError(t, j.InsertTransaction(&tx))

	_, err := j.ResetClosing(tx.ID)
	assert.ErrorIs(t, err, ErrNotClosing)

	_, err = j.ResetClosing("no-such-tx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResetClosingTargetsDependOnFills(t *testing.T) {
	t.Parallel()

	j := newTestSQLite(t)

	// No fills recorded: reset lands in WAITING.
	tx := Transaction{SourceID: "9", Symbol: "AAPL", Quantity: 10, Status: TxClosing}
	require.NoError(t, j.InsertTransaction(&tx))

	status, err := j.ResetClosing(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, TxWaiting, status)

	// With a filled order: reset lands in OPENED.
	tx2 := Transaction{SourceID: "9", Symbol: "TSLA", Quantity: 5, Status: TxClosing}
	require.NoError(t, j.InsertTransaction(&tx2))

	o := TradingOrder{
		TransactionID: tx2.ID,
		Kind:          market.KindMarket,
		Side:          market.Buy,
		Quantity:      5,
	}
	require.NoError(t, j.InsertOrder(&o))
	require.NoError(t, j.MarkOrderFilled(o.ID, 250.0, time.Now()))

	status, err = j.ResetClosing(tx2.ID)
	require.NoError(t, err)
	assert.Equal(t, TxOpened, status)

	got, err := j.GetTransaction(tx2.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CloseReason)
}

func TestSetBrokerOrderIDWriteOnce(t *testing.T) {
	t.Parallel()

	j := newTestSQLite(t)

	tx := Transaction{SourceID: "9", Symbol: "AAPL", Quantity: 10}
	require.NoError(t, j.InsertTransaction(&tx))

	o := TradingOrder{
		TransactionID: tx.ID,
		Kind:          market.KindMarket,
		Side:          market.Buy,
		Quantity:      10,
	}
	require.NoError(t, j.InsertOrder(&o))

	// First write succeeds.
	require.NoError(t, j.SetBrokerOrderID(o.ID, "BRK-1"))
	got, err := j.GetOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, "BRK-1", got.BrokerOrderID)

	// Same value again is fine.
	require.NoError(t, j.SetBrokerOrderID(o.ID, "BRK-1"))

	// A different value is refused; the original stays authoritative.
	require.NoError(t, j.SetBrokerOrderID(o.ID, "BRK-2"))
	got, err = j.GetOrder(o.ID)
	require.NoError(t, err)
	assert.Equal(t, "BRK-1", got.BrokerOrderID)

	require.ErrorIs(t, j.SetBrokerOrderID("missing", "BRK-3"), ErrNotFound)
}

func TestActionResultRequiresRecommendation(t *testing.T) {
	t.Parallel()

	j := newTestSQLite(t)

	err := j.InsertActionResult(&ActionResult{ActionType: "BUY", Success: true})
	assert.ErrorIs(t, err, ErrMissingRecommendation)
}

func TestActionResultAuditTrail(t *testing.T) {
	t.Parallel()

	j := newTestSQLite(t)

	rec := seedRecommendation(t, j, "9", "AAPL", RecommendBuy)

	first := ActionResult{
		RecommendationID: rec.ID,
		ActionType:       "BUY",
		Success:          true,
		Message:          "order submitted",
		Payload:          `{"trace":[]}`,
	}
	require.NoError(t, j.InsertActionResult(&first))

	second := ActionResult{
		RecommendationID: rec.ID,
		ActionType:       "ADJUST_TAKE_PROFIT",
		Success:          false,
		Message:          "broker rejected",
	}
	require.NoError(t, j.InsertActionResult(&second))

	results, err := j.ListActionResultsByRecommendation(rec.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "BUY", results[0].ActionType)
	assert.True(t, results[0].Success)
	assert.Equal(t, `{"trace":[]}`, results[0].Payload)
	assert.Equal(t, "ADJUST_TAKE_PROFIT", results[1].ActionType)
	assert.False(t, results[1].Success)
	assert.Equal(t, "{}", results[1].Payload)
}

func TestLegsByParent(t *testing.T) {
	t.Parallel()

	j := newTestSQLite(t)

	tx := Transaction{SourceID: "9", Symbol: "AAPL", Quantity: 10}
	require.NoError(t, j.InsertTransaction(&tx))

	parent := TradingOrder{TransactionID: tx.ID, Kind: market.KindBracket, Side: market.Buy, Quantity: 10}
	require.NoError(t, j.InsertOrder(&parent))

	tp := TradingOrder{
		TransactionID: tx.ID, Kind: market.KindLimit, Side: market.Sell,
		Quantity: 10, DependsOn: parent.ID, LegRole: market.LegTakeProfit,
	}
	sl := TradingOrder{
		TransactionID: tx.ID, Kind: market.KindStop, Side: market.Sell,
		Quantity: 10, DependsOn: parent.ID, LegRole: market.LegStopLoss,
	}
	require.NoError(t, j.InsertOrder(&tp))
	require.NoError(t, j.InsertOrder(&sl))

	legs, err := j.LegsByParent(parent.ID)
	require.NoError(t, err)
	require.Len(t, legs, 2)

	roles := map[market.LegRole]bool{}
	for _, leg := range legs {
		assert.Equal(t, parent.ID, leg.DependsOn)
		roles[leg.LegRole] = true
	}
	assert.True(t, roles[market.LegTakeProfit])
	assert.True(t, roles[market.LegStopLoss])
}
