package storage

import (
	"context"
	"time"

	"finsight/internal/core"
)

func (r *Repository) CreateNotification(ctx context.Context, n core.Notification) (core.Notification, error) {
	n.CreatedAt = r.stamp()
	err := r.db.QueryRowContext(ctx, r.rebind(`
		INSERT INTO notifications (user_id, type, title, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		n.UserID, string(n.Type), n.Title, n.Message, n.IsRead, r.timeArg(n.CreatedAt),
	).Scan(&n.ID)
	if err != nil {
		return core.Notification{}, core.NewPersistenceError("create notification", err)
	}
	return n, nil
}

func (r *Repository) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]core.Notification, error) {
	query := `SELECT id, user_id, type, title, message, is_read, created_at FROM notifications WHERE user_id = ?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND is_read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, core.NewPersistenceError("list notifications", err)
	}
	defer rows.Close()

	var out []core.Notification
	for rows.Next() {
		var (
			n   core.Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, core.NewPersistenceError("scan notification", err)
		}
		n.Type = core.NotificationType(typ)
		out = append(out, n)
	}
	return out, core.NewPersistenceError("list notifications", rows.Err())
}

func (r *Repository) CountUnread(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = ?`),
		userID, false).Scan(&n)
	if err != nil {
		return 0, core.NewPersistenceError("count unread notifications", err)
	}
	return n, nil
}

func (r *Repository) HasNotificationSince(ctx context.Context, userID int64, t core.NotificationType, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT EXISTS (SELECT 1 FROM notifications WHERE user_id = ? AND type = ? AND created_at >= ?)`),
		userID, string(t), r.timeArg(since)).Scan(&exists)
	if err != nil {
		return false, core.NewPersistenceError("check notification", err)
	}
	return exists, nil
}

func (r *Repository) MarkRead(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE notifications SET is_read = ? WHERE id = ? AND user_id = ?`),
		true, id, userID)
	if err != nil {
		return core.NewPersistenceError("mark notification read", err)
	}
	return core.NewPersistenceError("mark notification read", expectAffected(res))
}

func (r *Repository) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?`),
		true, userID, false)
	return core.NewPersistenceError("mark all notifications read", err)
}

func (r *Repository) DeleteNotification(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM notifications WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return core.NewPersistenceError("delete notification", err)
	}
	return core.NewPersistenceError("delete notification", expectAffected(res))
}
