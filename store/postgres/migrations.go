package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the tablebill store.
var Migrations = migrate.NewGroup("tablebill")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_tablebill_dish_orders",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tablebill_dish_orders (
    id             TEXT PRIMARY KEY,
    table_id       TEXT NOT NULL,
    restaurant_id  TEXT NOT NULL DEFAULT '',
    branch_id      TEXT NOT NULL DEFAULT '',
    table_order_id TEXT NOT NULL DEFAULT '',
    guest_name     TEXT NOT NULL DEFAULT '',
    item           TEXT NOT NULL DEFAULT '',
    quantity       INT NOT NULL DEFAULT 1,
    price_cents    BIGINT NOT NULL DEFAULT 0,
    price_currency TEXT NOT NULL DEFAULT 'mxn',
    payment_status TEXT NOT NULL DEFAULT 'not_paid',
    paid_at        TIMESTAMPTZ,
    metadata       JSONB NOT NULL DEFAULT '{}',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT tablebill_dish_orders_price_positive CHECK (price_cents > 0)
);

CREATE INDEX IF NOT EXISTS idx_tablebill_dish_orders_table ON tablebill_dish_orders (table_id, created_at);
CREATE INDEX IF NOT EXISTS idx_tablebill_dish_orders_status ON tablebill_dish_orders (table_id, payment_status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tablebill_dish_orders`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tablebill_split_payments",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tablebill_split_payments (
    id              TEXT PRIMARY KEY,
    table_id        TEXT NOT NULL,
    participant_key TEXT NOT NULL,
    mode            TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    share_cents     BIGINT NOT NULL DEFAULT 0,
    paid_cents      BIGINT NOT NULL DEFAULT 0,
    currency        TEXT NOT NULL DEFAULT 'mxn',
    settled         BOOLEAN NOT NULL DEFAULT FALSE,
    paid_at         TIMESTAMPTZ,
    settled_at      TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tablebill_split_payments_table ON tablebill_split_payments (table_id, settled, created_at);
CREATE INDEX IF NOT EXISTS idx_tablebill_split_payments_participant ON tablebill_split_payments (table_id, participant_key, mode);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tablebill_split_payments`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tablebill_transactions",
			Version: "20250601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tablebill_transactions (
    id                  TEXT PRIMARY KEY,
    payment_method_ref  TEXT NOT NULL DEFAULT '',
    gateway_ref         TEXT NOT NULL DEFAULT '',
    intent_id           TEXT NOT NULL DEFAULT '',
    restaurant_id       TEXT NOT NULL DEFAULT '',
    branch_id           TEXT NOT NULL DEFAULT '',
    table_id            TEXT NOT NULL,
    table_order_id      TEXT NOT NULL DEFAULT '',
    participant_key     TEXT NOT NULL DEFAULT '',
    strategy            TEXT NOT NULL,
    dishes_paid         JSONB NOT NULL DEFAULT '[]',
    base_cents          BIGINT NOT NULL DEFAULT 0,
    tip_cents           BIGINT NOT NULL DEFAULT 0,
    total_charged_cents BIGINT NOT NULL DEFAULT 0,
    breakdown           JSONB NOT NULL DEFAULT '{}',
    months              INT NOT NULL DEFAULT 0,
    surcharge_cents     BIGINT NOT NULL DEFAULT 0,
    currency            TEXT NOT NULL DEFAULT 'mxn',
    remaining_cents     BIGINT NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tablebill_transactions_table ON tablebill_transactions (table_id, created_at);
CREATE INDEX IF NOT EXISTS idx_tablebill_transactions_restaurant ON tablebill_transactions (restaurant_id, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tablebill_transactions_intent ON tablebill_transactions (intent_id) WHERE intent_id != '';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tablebill_transactions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_tablebill_intents",
			Version: "20250601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tablebill_intents (
    id                 TEXT PRIMARY KEY,
    table_id           TEXT NOT NULL,
    restaurant_id      TEXT NOT NULL DEFAULT '',
    branch_id          TEXT NOT NULL DEFAULT '',
    participant_key    TEXT NOT NULL DEFAULT '',
    currency           TEXT NOT NULL DEFAULT 'mxn',
    table_order_id     TEXT NOT NULL DEFAULT '',
    strategy           TEXT NOT NULL,
    params             JSONB NOT NULL DEFAULT '{}',
    base_cents         BIGINT NOT NULL DEFAULT 0,
    tip_cents          BIGINT NOT NULL DEFAULT 0,
    charge_cents       BIGINT NOT NULL DEFAULT 0,
    months             INT NOT NULL DEFAULT 0,
    card_brand         TEXT NOT NULL DEFAULT '',
    payment_method_ref TEXT NOT NULL DEFAULT '',
    attempts           INT NOT NULL DEFAULT 0,
    redirect_url       TEXT NOT NULL DEFAULT '',
    gateway_ref        TEXT NOT NULL DEFAULT '',
    expires_at         TIMESTAMPTZ NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tablebill_intents_expires ON tablebill_intents (expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS tablebill_intents`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "guard_tablebill_split_sessions",
			Version: "20250601000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				// One pending share per participant and table: two sessions
				// opened at once collide on their first shared participant.
				_, err := exec.Exec(ctx, `
CREATE UNIQUE INDEX IF NOT EXISTS idx_tablebill_split_payments_pending
    ON tablebill_split_payments (table_id, participant_key)
    WHERE status = 'pending' AND settled = FALSE;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP INDEX IF EXISTS idx_tablebill_split_payments_pending`)
				return err
			},
		},
	)
}
