package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel es el canal LISTEN/NOTIFY que alimenta el change feed.
const NotifyChannel = "message_changes"

// El trigger solo publica op + ids: NOTIFY tiene un límite de ~8000 bytes
// y el contenido de un mensaje puede superarlo.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	uuid         UUID PRIMARY KEY,
	name         VARCHAR(25) NOT NULL UNIQUE,
	created_date TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_groups (
	uuid         UUID PRIMARY KEY,
	created_date TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS group_participants (
	id         BIGSERIAL PRIMARY KEY,
	group_uuid UUID NOT NULL REFERENCES chat_groups(uuid) ON DELETE CASCADE,
	user_uuid  UUID NOT NULL,
	joined_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (group_uuid, user_uuid)
);
CREATE INDEX IF NOT EXISTS idx_group_participants_user ON group_participants (user_uuid);

CREATE TABLE IF NOT EXISTS messages (
	id           BIGSERIAL PRIMARY KEY,
	group_uuid   UUID NOT NULL REFERENCES chat_groups(uuid) ON DELETE CASCADE,
	sender_uuid  UUID NOT NULL,
	content      TEXT NOT NULL CHECK (char_length(content) BETWEEN 1 AND 10000),
	file         VARCHAR(500),
	created_date TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_deleted   BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS idx_messages_group_created ON messages (group_uuid, created_date, id);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender_uuid);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages (created_date, id);

CREATE OR REPLACE FUNCTION touch_updated_at() RETURNS TRIGGER AS $$
BEGIN
	NEW.updated_at = now();
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS messages_touch_updated_at ON messages;
CREATE TRIGGER messages_touch_updated_at
BEFORE UPDATE ON messages
FOR EACH ROW EXECUTE FUNCTION touch_updated_at();

CREATE OR REPLACE FUNCTION notify_message_change() RETURNS TRIGGER AS $$
DECLARE
	op TEXT := TG_OP;
BEGIN
	IF TG_OP = 'UPDATE' AND NEW.is_deleted AND NOT OLD.is_deleted THEN
		op := 'SOFT_DELETE';
	END IF;
	PERFORM pg_notify('message_changes', json_build_object(
		'operation', op,
		'id', NEW.id,
		'group_uuid', NEW.group_uuid
	)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS messages_notify_trigger ON messages;
CREATE TRIGGER messages_notify_trigger
AFTER INSERT OR UPDATE ON messages
FOR EACH ROW EXECUTE FUNCTION notify_message_change();
`

// EnsureSchema crea tablas, índices y triggers de forma idempotente.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
