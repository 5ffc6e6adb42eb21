package journal

const Schema = `
CREATE TABLE IF NOT EXISTS recommendations (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	confidence INTEGER NOT NULL,
	expected_profit_pct REAL NOT NULL,
	risk_level TEXT NOT NULL,
	time_horizon TEXT NOT NULL,
	price REAL NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendations_source_time
	ON recommendations(source_id, created_at);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	quantity REAL NOT NULL,
	open_price REAL NOT NULL DEFAULT 0,
	close_price REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	close_reason TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_source_symbol
	ON transactions(source_id, symbol, status);

CREATE TABLE IF NOT EXISTS trading_orders (
	id TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL REFERENCES transactions(id),
	kind TEXT NOT NULL,
	side TEXT NOT NULL,
	status TEXT NOT NULL,
	quantity REAL NOT NULL,
	limit_price REAL NOT NULL DEFAULT 0,
	stop_price REAL NOT NULL DEFAULT 0,
	filled_price REAL NOT NULL DEFAULT 0,
	broker_order_id TEXT NOT NULL DEFAULT '',
	depends_on TEXT NOT NULL DEFAULT '',
	leg_role TEXT NOT NULL DEFAULT '',
	comment TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	filled_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_trading_orders_tx ON trading_orders(transaction_id);
CREATE INDEX IF NOT EXISTS idx_trading_orders_parent ON trading_orders(depends_on);

CREATE TABLE IF NOT EXISTS action_results (
	id TEXT PRIMARY KEY,
	recommendation_id TEXT NOT NULL REFERENCES recommendations(id),
	action_type TEXT NOT NULL,
	success INTEGER NOT NULL,
	message TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_action_results_rec ON action_results(recommendation_id);
`
