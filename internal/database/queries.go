package database

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// messageSelect aggregates the monotone read set for each message. Ordering
// is always created_at ascending with id as the stable tie-break.
const messageSelect = `
SELECT m.id, m.sender_id, m.receiver_id, m.content, m.media_ref, m.media_kind, m.created_at,
	COALESCE(array_agg(r.identity_id) FILTER (WHERE r.identity_id IS NOT NULL), '{}') AS read_by
FROM messages m
LEFT JOIN message_reads r ON r.message_id = m.id
`

func (db *PgCommHubRepository) EnsureIdentity(params EnsureIdentityParams) (Identity, error) {
	res := db.conn.QueryRow(
		"INSERT INTO identities (id, username, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $3) "+
			"ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, updated_at = EXCLUDED.updated_at "+
			"RETURNING id, username, created_at, updated_at",
		params.Id,
		params.Username,
		time.Now().UTC(),
	)

	var ident Identity
	err := res.Scan(
		&ident.Id,
		&ident.Username,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)

	return ident, err
}

func (db *PgCommHubRepository) GetIdentity(id string) (Identity, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, created_at, updated_at FROM identities "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var ident Identity
	err := row.Scan(
		&ident.Id,
		&ident.Username,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)

	return ident, err
}

func (db *PgCommHubRepository) IdentityExists(id string) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT 1 FROM identities WHERE id = $1 LIMIT 1",
		id,
	)

	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (db *PgCommHubRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (id, sender_id, receiver_id, content, media_ref, media_kind, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) "+
			"RETURNING id, sender_id, receiver_id, content, media_ref, media_kind, created_at",
		params.Id,
		params.SenderId,
		params.ReceiverId,
		params.Content,
		params.MediaRef,
		params.MediaKind,
		params.CreatedAt,
	)

	var msg Message
	err := res.Scan(
		&msg.Id,
		&msg.SenderId,
		&msg.ReceiverId,
		&msg.Content,
		&msg.MediaRef,
		&msg.MediaKind,
		&msg.CreatedAt,
	)
	msg.ReadBy = []string{}

	return msg, err
}

func (db *PgCommHubRepository) GetMessage(id string) (Message, error) {
	row := db.conn.QueryRow(
		messageSelect+"WHERE m.id = $1 GROUP BY m.id",
		id,
	)

	return scanMessage(row)
}

func (db *PgCommHubRepository) ListMessagesFor(identity string) ([]Message, error) {
	rows, err := db.conn.Query(
		messageSelect+
			"WHERE m.sender_id = $1 OR m.receiver_id = $1 "+
			"GROUP BY m.id ORDER BY m.created_at, m.id",
		identity,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (db *PgCommHubRepository) ListAllMessages() ([]Message, error) {
	rows, err := db.conn.Query(
		messageSelect + "GROUP BY m.id ORDER BY m.created_at, m.id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (db *PgCommHubRepository) ConversationBetween(a, b string) ([]Message, error) {
	rows, err := db.conn.Query(
		messageSelect+
			"WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1) "+
			"GROUP BY m.id ORDER BY m.created_at, m.id",
		a,
		b,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (db *PgCommHubRepository) UnreadCountFrom(sender, receiver string) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages m "+
			"WHERE m.sender_id = $1 AND m.receiver_id = $2 "+
			"AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.identity_id = $2)",
		sender,
		receiver,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

// MarkMessagesRead adds identity to the read set of every message it received
// from fromId. Repeat calls are no-ops via the conflict clause.
func (db *PgCommHubRepository) MarkMessagesRead(identity, fromId string) error {
	_, err := db.conn.Exec(
		"INSERT INTO message_reads (message_id, identity_id, read_at) "+
			"SELECT id, $1, $3 FROM messages WHERE sender_id = $2 AND receiver_id = $1 "+
			"ON CONFLICT (message_id, identity_id) DO NOTHING",
		identity,
		fromId,
		time.Now().UTC(),
	)

	return err
}

func (db *PgCommHubRepository) DeleteMessage(id string) error {
	res, err := db.conn.Exec("DELETE FROM messages WHERE id = $1", id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (db *PgCommHubRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	res := db.conn.QueryRow(
		"INSERT INTO notifications (id, recipient_id, kind, text, from_id, subject_ref, read, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7) "+
			"RETURNING id, recipient_id, kind, text, from_id, subject_ref, read, created_at",
		params.Id,
		params.RecipientId,
		params.Kind,
		params.Text,
		params.FromId,
		params.SubjectRef,
		params.CreatedAt,
	)

	var n Notification
	err := res.Scan(
		&n.Id,
		&n.RecipientId,
		&n.Kind,
		&n.Text,
		&n.FromId,
		&n.SubjectRef,
		&n.Read,
		&n.CreatedAt,
	)

	return n, err
}

func (db *PgCommHubRepository) ListNotificationsFor(identity string, limit int) ([]Notification, error) {
	rows, err := db.conn.Query(
		"SELECT id, recipient_id, kind, text, from_id, subject_ref, read, created_at FROM notifications "+
			"WHERE recipient_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		identity,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications = make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if err = rows.Scan(&n.Id, &n.RecipientId, &n.Kind, &n.Text, &n.FromId, &n.SubjectRef, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}

		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// MarkNotificationRead flips read to true for a notification owned by
// identity. Returns sql.ErrNoRows when the notification does not exist or
// belongs to someone else; marking an already-read notification succeeds.
func (db *PgCommHubRepository) MarkNotificationRead(identity, notificationId string) error {
	res, err := db.conn.Exec(
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2",
		notificationId,
		identity,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.SenderId,
		&msg.ReceiverId,
		&msg.Content,
		&msg.MediaRef,
		&msg.MediaKind,
		&msg.CreatedAt,
		pq.Array(&msg.ReadBy),
	)

	return msg, err
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var messages = make([]Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}

	return messages, rows.Err()
}
