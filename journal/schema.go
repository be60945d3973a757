package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	setup_type TEXT NOT NULL,
	shares INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	fees REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	decision_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	time DATETIME NOT NULL,
	action TEXT NOT NULL,
	side TEXT NOT NULL,
	reason TEXT NOT NULL,
	price REAL NOT NULL,
	pivot REAL NOT NULL,
	volume_ratio REAL NOT NULL,
	body_pct REAL NOT NULL,
	imbalance_pct REAL NOT NULL,
	consecutive_imbalance INTEGER NOT NULL,
	bars_held INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_decisions_symbol_time ON decisions(symbol, time);
`
