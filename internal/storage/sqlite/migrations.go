package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Contributions have no cascading delete and refuse UPDATE/DELETE so the
// ledger survives reaping of participants and selections.
const schema = `
CREATE TABLE IF NOT EXISTS group_orders (
    id TEXT PRIMARY KEY,
    host_id TEXT NOT NULL,
    creator_id TEXT NOT NULL,
    restaurant_name TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    status TEXT NOT NULL,
    budget_target INTEGER,
    delivery_address TEXT,
    delivery_time TEXT NOT NULL DEFAULT '',
    share_link_expires_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    selection_started_at INTEGER,
    closed_at INTEGER,
    closing_since INTEGER,
    order_id TEXT NOT NULL DEFAULT '',
    shortfall INTEGER NOT NULL DEFAULT 0,
    refund_required INTEGER NOT NULL DEFAULT 0,
    reaped_at INTEGER,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS share_links (
    token_hash TEXT PRIMARY KEY,
    group_order_id TEXT NOT NULL,
    expires_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (group_order_id) REFERENCES group_orders(id)
);

CREATE TABLE IF NOT EXISTS participants (
    group_order_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    joined_at INTEGER NOT NULL,
    selection_ready INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (group_order_id, user_id),
    FOREIGN KEY (group_order_id) REFERENCES group_orders(id)
);

CREATE TABLE IF NOT EXISTS selections (
    group_order_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (group_order_id, participant_id),
    FOREIGN KEY (group_order_id) REFERENCES group_orders(id)
);

CREATE TABLE IF NOT EXISTS selection_items (
    group_order_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    dish_id TEXT NOT NULL,
    name TEXT NOT NULL,
    quantity INTEGER NOT NULL CHECK (quantity >= 1),
    unit_price INTEGER NOT NULL CHECK (unit_price >= 0),
    special_instructions TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (group_order_id, participant_id, position),
    FOREIGN KEY (group_order_id, participant_id)
        REFERENCES selections(group_order_id, participant_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS contributions (
    id TEXT PRIMARY KEY,
    group_order_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    amount INTEGER NOT NULL CHECK (amount > 0),
    idempotency_key TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (group_order_id, idempotency_key),
    FOREIGN KEY (group_order_id) REFERENCES group_orders(id)
);

CREATE TRIGGER IF NOT EXISTS contributions_no_update
BEFORE UPDATE ON contributions
BEGIN
    SELECT RAISE(ABORT, 'contributions are append-only');
END;

CREATE TRIGGER IF NOT EXISTS contributions_no_delete
BEFORE DELETE ON contributions
BEGIN
    SELECT RAISE(ABORT, 'contributions are append-only');
END;

CREATE INDEX IF NOT EXISTS idx_group_orders_status ON group_orders(status);
CREATE INDEX IF NOT EXISTS idx_share_links_group_order_id ON share_links(group_order_id);
CREATE INDEX IF NOT EXISTS idx_contributions_group_order_id ON contributions(group_order_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
