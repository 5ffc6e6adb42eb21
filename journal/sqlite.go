package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/autotrader/internal/id"
	"github.com/rustyeddy/autotrader/market"
)

// SQLite persists the journal in a single SQLite database.
type SQLite struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Serialized writes; the engine may be invoked from several workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLite{db: db, log: slog.Default()}, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// --- recommendations ---

// InsertRecommendation stores a recommendation snapshot. ID and CreatedAt are
// assigned when empty.
func (j *SQLite) InsertRecommendation(r *Recommendation) error {
	if r.ID == "" {
		r.ID = id.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.Exec(`
		INSERT INTO recommendations
		(id, source_id, symbol, action, confidence, expected_profit_pct, risk_level, time_horizon, price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SourceID, r.Symbol, string(r.Action), r.Confidence,
		r.ExpectedProfitPct, r.RiskLevel, r.TimeHorizon, r.Price, r.CreatedAt,
	)
	return err
}

// ListRecommendationsSince returns recommendations for a source created at or
// after the given time, oldest first.
func (j *SQLite) ListRecommendationsSince(sourceID string, since time.Time) ([]Recommendation, error) {
	rows, err := j.db.Query(`
		SELECT id, source_id, symbol, action, confidence, expected_profit_pct, risk_level, time_horizon, price, created_at
		FROM recommendations
		WHERE source_id = ? AND created_at >= ?
		ORDER BY created_at ASC`, sourceID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recommendation
	for rows.Next() {
		var r Recommendation
		var action string
		if err := rows.Scan(&r.ID, &r.SourceID, &r.Symbol, &action, &r.Confidence,
			&r.ExpectedProfitPct, &r.RiskLevel, &r.TimeHorizon, &r.Price, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Action = RecommendedAction(action)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- transactions ---

func (j *SQLite) InsertTransaction(t *Transaction) error {
	if t.ID == "" {
		t.ID = id.New()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = TxWaiting
	}

	_, err := j.db.Exec(`
		INSERT INTO transactions
		(id, source_id, symbol, quantity, open_price, close_price, status, close_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SourceID, t.Symbol, t.Quantity, t.OpenPrice, t.ClosePrice,
		string(t.Status), t.CloseReason, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (j *SQLite) GetTransaction(txID string) (Transaction, error) {
	row := j.db.QueryRow(`
		SELECT id, source_id, symbol, quantity, open_price, close_price, status, close_reason, created_at, updated_at
		FROM transactions WHERE id = ?`, txID)
	return scanTransaction(row)
}

// FindOpenTransaction returns the transaction for (sourceID, symbol) that is
// still waiting, opened or closing, or nil when none exists. This is the
// duplicate-position guard's source of truth.
func (j *SQLite) FindOpenTransaction(sourceID, symbol string) (*Transaction, error) {
	row := j.db.QueryRow(`
		SELECT id, source_id, symbol, quantity, open_price, close_price, status, close_reason, created_at, updated_at
		FROM transactions
		WHERE source_id = ? AND symbol = ? AND status IN (?, ?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		sourceID, symbol, string(TxWaiting), string(TxOpened), string(TxClosing))

	t, err := scanTransaction(row)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (j *SQLite) ListTransactionsByStatus(status TransactionStatus) ([]Transaction, error) {
	rows, err := j.db.Query(`
		SELECT id, source_id, symbol, quantity, open_price, close_price, status, close_reason, created_at, updated_at
		FROM transactions WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransactionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *SQLite) UpdateTransactionQuantity(txID string, quantity float64) error {
	_, err := j.db.Exec(`
		UPDATE transactions SET quantity = ?, updated_at = ? WHERE id = ?`,
		quantity, time.Now().UTC(), txID)
	return err
}

// MarkOpened moves a WAITING transaction to OPENED on its first fill. It
// reports whether the transition happened; an already-opened transaction is
// left untouched.
func (j *SQLite) MarkOpened(txID string, openPrice float64) (bool, error) {
	res, err := j.db.Exec(`
		UPDATE transactions
		SET status = ?, open_price = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(TxOpened), openPrice, time.Now().UTC(), txID, string(TxWaiting))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkClosing moves an OPENED transaction to CLOSING, recording why. Only the
// first transition wins; a transaction already closing or closed keeps its
// original close reason.
func (j *SQLite) MarkClosing(txID, reason string) (bool, error) {
	res, err := j.db.Exec(`
		UPDATE transactions
		SET status = ?, close_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(TxClosing), reason, time.Now().UTC(), txID, string(TxOpened))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkFailed abandons a WAITING transaction whose entry order never reached
// the broker, recording why. Only WAITING transactions can fail this way;
// anything with a fill history keeps its normal lifecycle.
func (j *SQLite) MarkFailed(txID, reason string) (bool, error) {
	res, err := j.db.Exec(`
		UPDATE transactions
		SET status = ?, close_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(TxFailed), reason, time.Now().UTC(), txID, string(TxWaiting))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkClosed completes a CLOSING transaction once the closing order fills.
func (j *SQLite) MarkClosed(txID string, closePrice float64) (bool, error) {
	res, err := j.db.Exec(`
		UPDATE transactions
		SET status = ?, close_price = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(TxClosed), closePrice, time.Now().UTC(), txID, string(TxClosing))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ResetClosing recovers a transaction stuck in CLOSING. If any of its orders
// ever filled the transaction goes back to OPENED (a position exists to retry
// closing), otherwise back to WAITING. The reset is rejected with
// ErrNotClosing when the transaction is not currently CLOSING.
func (j *SQLite) ResetClosing(txID string) (TransactionStatus, error) {
	tx, err := j.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow(`SELECT status FROM transactions WHERE id = ?`, txID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if TransactionStatus(status) != TxClosing {
		return "", fmt.Errorf("%w: transaction %s is %s", ErrNotClosing, txID, status)
	}

	var filled int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM trading_orders
		WHERE transaction_id = ? AND status = ?`, txID, string(market.OrderFilled)).Scan(&filled)
	if err != nil {
		return "", err
	}

	target := TxWaiting
	if filled > 0 {
		target = TxOpened
	}

	if _, err := tx.Exec(`
		UPDATE transactions SET status = ?, close_reason = '', updated_at = ? WHERE id = ?`,
		string(target), time.Now().UTC(), txID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}

	j.log.Info("transaction reset out of CLOSING", "transaction", txID, "status", string(target))
	return target, nil
}

// --- orders ---

func (j *SQLite) InsertOrder(o *TradingOrder) error {
	if o.ID == "" {
		o.ID = id.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if o.Status == "" {
		o.Status = market.OrderPending
	}

	var filledAt any
	if !o.FilledAt.IsZero() {
		filledAt = o.FilledAt
	}

	_, err := j.db.Exec(`
		INSERT INTO trading_orders
		(id, transaction_id, kind, side, status, quantity, limit_price, stop_price, filled_price,
		 broker_order_id, depends_on, leg_role, comment, created_at, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.TransactionID, string(o.Kind), string(o.Side), string(o.Status),
		o.Quantity, o.LimitPrice, o.StopPrice, o.FilledPrice,
		o.BrokerOrderID, o.DependsOn, string(o.LegRole), o.Comment, o.CreatedAt, filledAt,
	)
	return err
}

func (j *SQLite) GetOrder(orderID string) (TradingOrder, error) {
	row := j.db.QueryRow(selectOrder+` WHERE id = ?`, orderID)
	return scanOrder(row)
}

func (j *SQLite) OrdersByTransaction(txID string) ([]TradingOrder, error) {
	return j.queryOrders(selectOrder+` WHERE transaction_id = ? ORDER BY created_at ASC`, txID)
}

// LegsByParent returns the bracket children of a parent order.
func (j *SQLite) LegsByParent(parentID string) ([]TradingOrder, error) {
	return j.queryOrders(selectOrder+` WHERE depends_on = ? ORDER BY created_at ASC`, parentID)
}

// FindExitOrder returns the live standalone take-profit or stop-loss order
// for a transaction, or nil when none exists. Bracket legs are excluded.
func (j *SQLite) FindExitOrder(txID string, role market.LegRole) (*TradingOrder, error) {
	orders, err := j.queryOrders(selectOrder+`
		WHERE transaction_id = ? AND leg_role = ? AND depends_on = '' AND status IN (?, ?)
		ORDER BY created_at DESC LIMIT 1`,
		txID, string(role), string(market.OrderPending), string(market.OrderHeld))
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// SetBrokerOrderID records the broker-assigned identifier for an order.
// The field is write-once: setting it for the first time or re-setting the
// same value succeeds, but an attempt to overwrite a different existing value
// is refused with a warning and the stored value stays authoritative.
func (j *SQLite) SetBrokerOrderID(orderID, brokerOrderID string) error {
	var current string
	err := j.db.QueryRow(`SELECT broker_order_id FROM trading_orders WHERE id = ?`, orderID).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if current != "" && current != brokerOrderID {
		j.log.Warn("refusing to overwrite broker order id",
			"order", orderID, "existing", current, "attempted", brokerOrderID)
		return nil
	}
	if current == brokerOrderID {
		return nil
	}

	_, err = j.db.Exec(`UPDATE trading_orders SET broker_order_id = ? WHERE id = ?`,
		brokerOrderID, orderID)
	return err
}

func (j *SQLite) UpdateOrderStatus(orderID string, status market.OrderStatus) error {
	_, err := j.db.Exec(`UPDATE trading_orders SET status = ? WHERE id = ?`,
		string(status), orderID)
	return err
}

// MarkOrderFilled records a fill against an order.
func (j *SQLite) MarkOrderFilled(orderID string, price float64, at time.Time) error {
	_, err := j.db.Exec(`
		UPDATE trading_orders
		SET status = ?, filled_price = ?, filled_at = ?
		WHERE id = ?`,
		string(market.OrderFilled), price, at.UTC(), orderID)
	return err
}

// --- action results ---

// InsertActionResult appends an audit record. Every result must reference the
// recommendation that triggered it, regardless of action type.
func (j *SQLite) InsertActionResult(r *ActionResult) error {
	if r.RecommendationID == "" {
		return ErrMissingRecommendation
	}
	if r.ID == "" {
		r.ID = id.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Payload == "" {
		r.Payload = "{}"
	}

	_, err := j.db.Exec(`
		INSERT INTO action_results
		(id, recommendation_id, action_type, success, message, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RecommendationID, r.ActionType, r.Success, r.Message, r.Payload, r.CreatedAt,
	)
	return err
}

// --- scanning helpers ---

const selectOrder = `
	SELECT id, transaction_id, kind, side, status, quantity, limit_price, stop_price, filled_price,
	       broker_order_id, depends_on, leg_role, comment, created_at, filled_at
	FROM trading_orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (TradingOrder, error) {
	var o TradingOrder
	var kind, side, status, role string
	var filledAt sql.NullTime

	err := row.Scan(&o.ID, &o.TransactionID, &kind, &side, &status, &o.Quantity,
		&o.LimitPrice, &o.StopPrice, &o.FilledPrice,
		&o.BrokerOrderID, &o.DependsOn, &role, &o.Comment, &o.CreatedAt, &filledAt)
	if err == sql.ErrNoRows {
		return TradingOrder{}, ErrNotFound
	}
	if err != nil {
		return TradingOrder{}, err
	}

	o.Kind = market.OrderKind(kind)
	o.Side = market.Side(side)
	o.Status = market.OrderStatus(status)
	o.LegRole = market.LegRole(role)
	if filledAt.Valid {
		o.FilledAt = filledAt.Time
	}
	return o, nil
}

func (j *SQLite) queryOrders(query string, args ...any) ([]TradingOrder, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradingOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanTransaction(row *sql.Row) (Transaction, error) {
	var t Transaction
	var status string
	err := row.Scan(&t.ID, &t.SourceID, &t.Symbol, &t.Quantity, &t.OpenPrice,
		&t.ClosePrice, &status, &t.CloseReason, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	t.Status = TransactionStatus(status)
	return t, nil
}

func scanTransactionRows(rows *sql.Rows) (Transaction, error) {
	var t Transaction
	var status string
	err := rows.Scan(&t.ID, &t.SourceID, &t.Symbol, &t.Quantity, &t.OpenPrice,
		&t.ClosePrice, &status, &t.CloseReason, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Transaction{}, err
	}
	t.Status = TransactionStatus(status)
	return t, nil
}
