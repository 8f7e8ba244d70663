package store

// Decimal amounts are stored as TEXT so no precision is lost.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	account_type TEXT NOT NULL,
	owner_kind TEXT NOT NULL,
	owner_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS companies (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	means_account TEXT NOT NULL REFERENCES accounts(id),
	resource_account TEXT NOT NULL REFERENCES accounts(id),
	labour_account TEXT NOT NULL REFERENCES accounts(id),
	product_account TEXT NOT NULL REFERENCES accounts(id),
	registration_date DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS members (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	account TEXT NOT NULL REFERENCES accounts(id),
	registration_date DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS social_accounting (
	id TEXT PRIMARY KEY,
	account TEXT NOT NULL REFERENCES accounts(id)
);
CREATE TABLE IF NOT EXISTS drafts (
	id TEXT PRIMARY KEY,
	creation_date DATETIME NOT NULL,
	planner TEXT NOT NULL,
	means_cost TEXT NOT NULL,
	resource_cost TEXT NOT NULL,
	labour_cost TEXT NOT NULL,
	product_name TEXT NOT NULL,
	description TEXT NOT NULL,
	unit TEXT NOT NULL,
	amount_produced INTEGER NOT NULL,
	timeframe_days INTEGER NOT NULL,
	is_public_service BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	creation_date DATETIME NOT NULL,
	planner TEXT NOT NULL,
	means_cost TEXT NOT NULL,
	resource_cost TEXT NOT NULL,
	labour_cost TEXT NOT NULL,
	product_name TEXT NOT NULL,
	description TEXT NOT NULL,
	unit TEXT NOT NULL,
	amount_produced INTEGER NOT NULL,
	timeframe_days INTEGER NOT NULL,
	is_public_service BOOLEAN NOT NULL,
	approved BOOLEAN NOT NULL,
	approval_date DATETIME,
	approval_reason TEXT NOT NULL DEFAULT '',
	rejection_date DATETIME,
	is_active BOOLEAN NOT NULL DEFAULT 0,
	activation_date DATETIME,
	expired BOOLEAN NOT NULL DEFAULT 0,
	renewed BOOLEAN NOT NULL DEFAULT 0,
	expiration_date DATETIME,
	expiration_relative INTEGER,
	last_certificate_payout DATETIME,
	cooperation TEXT,
	requested_cooperation TEXT
);
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	date DATETIME NOT NULL,
	sending_account TEXT NOT NULL REFERENCES accounts(id),
	receiving_account TEXT NOT NULL REFERENCES accounts(id),
	amount_sent TEXT NOT NULL,
	amount_received TEXT NOT NULL,
	purpose TEXT NOT NULL,
	idempotency_key TEXT UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_transactions_sending ON transactions(sending_account);
CREATE INDEX IF NOT EXISTS idx_transactions_receiving ON transactions(receiving_account);
CREATE TABLE IF NOT EXISTS offers (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_offers_plan ON offers(plan_id);
CREATE TABLE IF NOT EXISTS cooperations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	definition TEXT NOT NULL,
	coordinator TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS payout_factors (
	id TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	computed_at DATETIME NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	account_type TEXT NOT NULL,
	owner_kind TEXT NOT NULL,
	owner_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS companies (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	means_account TEXT NOT NULL REFERENCES accounts(id),
	resource_account TEXT NOT NULL REFERENCES accounts(id),
	labour_account TEXT NOT NULL REFERENCES accounts(id),
	product_account TEXT NOT NULL REFERENCES accounts(id),
	registration_date TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS members (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	account TEXT NOT NULL REFERENCES accounts(id),
	registration_date TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS social_accounting (
	id TEXT PRIMARY KEY,
	account TEXT NOT NULL REFERENCES accounts(id)
);
CREATE TABLE IF NOT EXISTS drafts (
	id TEXT PRIMARY KEY,
	creation_date TIMESTAMPTZ NOT NULL,
	planner TEXT NOT NULL,
	means_cost TEXT NOT NULL,
	resource_cost TEXT NOT NULL,
	labour_cost TEXT NOT NULL,
	product_name TEXT NOT NULL,
	description TEXT NOT NULL,
	unit TEXT NOT NULL,
	amount_produced INTEGER NOT NULL,
	timeframe_days INTEGER NOT NULL,
	is_public_service BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS plans (
	id TEXT PRIMARY KEY,
	creation_date TIMESTAMPTZ NOT NULL,
	planner TEXT NOT NULL,
	means_cost TEXT NOT NULL,
	resource_cost TEXT NOT NULL,
	labour_cost TEXT NOT NULL,
	product_name TEXT NOT NULL,
	description TEXT NOT NULL,
	unit TEXT NOT NULL,
	amount_produced INTEGER NOT NULL,
	timeframe_days INTEGER NOT NULL,
	is_public_service BOOLEAN NOT NULL,
	approved BOOLEAN NOT NULL,
	approval_date TIMESTAMPTZ,
	approval_reason TEXT NOT NULL DEFAULT '',
	rejection_date TIMESTAMPTZ,
	is_active BOOLEAN NOT NULL DEFAULT FALSE,
	activation_date TIMESTAMPTZ,
	expired BOOLEAN NOT NULL DEFAULT FALSE,
	renewed BOOLEAN NOT NULL DEFAULT FALSE,
	expiration_date TIMESTAMPTZ,
	expiration_relative INTEGER,
	last_certificate_payout TIMESTAMPTZ,
	cooperation TEXT,
	requested_cooperation TEXT
);
CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	date TIMESTAMPTZ NOT NULL,
	sending_account TEXT NOT NULL REFERENCES accounts(id),
	receiving_account TEXT NOT NULL REFERENCES accounts(id),
	amount_sent TEXT NOT NULL,
	amount_received TEXT NOT NULL,
	purpose TEXT NOT NULL,
	idempotency_key TEXT UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_transactions_sending ON transactions(sending_account);
CREATE INDEX IF NOT EXISTS idx_transactions_receiving ON transactions(receiving_account);
CREATE TABLE IF NOT EXISTS offers (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_offers_plan ON offers(plan_id);
CREATE TABLE IF NOT EXISTS cooperations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	definition TEXT NOT NULL,
	coordinator TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS payout_factors (
	id TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL
);
`
