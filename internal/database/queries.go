package database

import (
	"database/sql"
	"errors"
	"time"
)

func (db *PgSparkRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, email, email_verified",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.EmailVerified,
	)

	return u, err
}

func (db *PgSparkRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, email_verified, fame_rating, is_online, last_connection, created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	return scanAccount(row)
}

func (db *PgSparkRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, email_verified, fame_rating, is_online, last_connection, created_at, updated_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	return scanAccount(row)
}

func scanAccount(row *sql.Row) (User, error) {
	var u User
	var lastConn sql.NullTime
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.EmailVerified,
		&u.FameRating,
		&u.IsOnline,
		&lastConn,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if lastConn.Valid {
		u.LastConnection = lastConn.Time
	}

	return u, err
}

func (db *PgSparkRepository) VerifyEmail(accountId int) error {
	res, err := db.conn.Exec(
		"UPDATE accounts SET email_verified = TRUE, updated_at = $2 WHERE id = $1",
		accountId,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("account not found")
	}

	return nil
}

func (db *PgSparkRepository) TouchOnline(accountId int) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET is_online = TRUE, last_connection = $2 WHERE id = $1",
		accountId,
		time.Now().UTC(),
	)
	return err
}

func (db *PgSparkRepository) SetOffline(accountId int) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET is_online = FALSE, last_connection = $2 WHERE id = $1",
		accountId,
		time.Now().UTC(),
	)
	return err
}

func (db *PgSparkRepository) ResetAllOffline() error {
	_, err := db.conn.Exec("UPDATE accounts SET is_online = FALSE WHERE is_online = TRUE")
	return err
}

// RecomputeFame refreshes the denormalized fame rating for an account. The
// formula lives in the database so the ranking subsystem owns it.
func (db *PgSparkRepository) RecomputeFame(accountId int) error {
	_, err := db.conn.Exec("SELECT recompute_fame($1)", accountId)
	return err
}

func (db *PgSparkRepository) CreateLike(likerId, likedId int) (bool, error) {
	_, err := db.conn.Exec(
		"INSERT INTO likes (liker_id, liked_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (liker_id, liked_id) DO NOTHING",
		likerId,
		likedId,
		time.Now().UTC(),
	)
	if err != nil {
		return false, err
	}

	var mutual bool
	err = db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM likes WHERE liker_id = $1 AND liked_id = $2)",
		likedId,
		likerId,
	).Scan(&mutual)

	return mutual, err
}

func (db *PgSparkRepository) DeleteLike(likerId, likedId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM likes WHERE liker_id = $1 AND liked_id = $2",
		likerId,
		likedId,
	)
	return err
}

func (db *PgSparkRepository) CanChat(accountA, accountB int) (bool, error) {
	var matched bool
	err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM likes a JOIN likes b "+
			"ON a.liker_id = b.liked_id AND a.liked_id = b.liker_id "+
			"WHERE a.liker_id = $1 AND a.liked_id = $2)",
		accountA,
		accountB,
	).Scan(&matched)

	return matched, err
}

func (db *PgSparkRepository) CreateMessage(senderId, receiverId int, content string) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (sender_id, receiver_id, content, sent_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, sender_id, receiver_id, content, read, sent_at",
		senderId,
		receiverId,
		content,
		time.Now().UTC(),
	)

	var m Message
	err := res.Scan(
		&m.Id,
		&m.SenderId,
		&m.ReceiverId,
		&m.Content,
		&m.Read,
		&m.SentAt,
	)

	return m, err
}

// MarkMessageRead flips the read flag and returns the message so the caller
// can notify the original sender. Only the receiver may mark a message read.
func (db *PgSparkRepository) MarkMessageRead(messageId, readerId int) (Message, error) {
	res := db.conn.QueryRow(
		"UPDATE messages SET read = TRUE WHERE id = $1 AND receiver_id = $2 "+
			"RETURNING id, sender_id, receiver_id, content, read, sent_at",
		messageId,
		readerId,
	)

	var m Message
	err := res.Scan(
		&m.Id,
		&m.SenderId,
		&m.ReceiverId,
		&m.Content,
		&m.Read,
		&m.SentAt,
	)

	return m, err
}

func (db *PgSparkRepository) GetMessages(accountA, accountB, before, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, sender_id, receiver_id, content, read, sent_at FROM messages " +
		"WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))"
	args := []any{accountA, accountB}

	if before > 0 {
		query += " AND id < $3 ORDER BY id DESC LIMIT $4"
		args = append(args, before, limit)
	} else {
		query += " ORDER BY id DESC LIMIT $3"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.SenderId, &m.ReceiverId, &m.Content, &m.Read, &m.SentAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgSparkRepository) CountUnreadMessages(accountId int) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND read = FALSE",
		accountId,
	).Scan(&count)

	return count, err
}

func (db *PgSparkRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	res := db.conn.QueryRow(
		"INSERT INTO notifications (account_id, kind, actor_id, actor_username, created_at) "+
			"SELECT $1, $2, a.id, a.username, $4 FROM accounts a WHERE a.id = $3 "+
			"RETURNING id, account_id, kind, actor_id, actor_username, read, created_at",
		params.UserId,
		params.Kind,
		params.ActorId,
		time.Now().UTC(),
	)

	var n Notification
	err := res.Scan(
		&n.Id,
		&n.UserId,
		&n.Kind,
		&n.ActorId,
		&n.ActorUsername,
		&n.Read,
		&n.CreatedAt,
	)

	return n, err
}

func (db *PgSparkRepository) MarkNotificationRead(notificationId, accountId int) error {
	res, err := db.conn.Exec(
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND account_id = $2",
		notificationId,
		accountId,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("notification not found")
	}

	return nil
}

func (db *PgSparkRepository) MarkAllNotificationsRead(accountId int) error {
	_, err := db.conn.Exec(
		"UPDATE notifications SET read = TRUE WHERE account_id = $1 AND read = FALSE",
		accountId,
	)
	return err
}

func (db *PgSparkRepository) ListNotifications(accountId, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, account_id, kind, actor_id, actor_username, read, created_at "+
			"FROM notifications WHERE account_id = $1 ORDER BY id DESC LIMIT $2",
		accountId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.Id, &n.UserId, &n.Kind, &n.ActorId, &n.ActorUsername, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (db *PgSparkRepository) CountUnreadNotifications(accountId int) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM notifications WHERE account_id = $1 AND read = FALSE",
		accountId,
	).Scan(&count)

	return count, err
}
