package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
)

type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

func (r *NotificationRepository) Insert(ctx context.Context, n *model.Notification) (int64, error) {
	r.logger.Debug("Inserting notification",
		zap.String("milestone_id", n.MilestoneID.String()),
		zap.String("recipient_role", n.RecipientRole),
		zap.String("channel", n.Channel),
	)

	query := `
        INSERT INTO notifications (milestone_id, project_id, recipient_id, recipient_role, channel, message)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query,
		n.MilestoneID,
		n.ProjectID,
		n.RecipientID,
		n.RecipientRole,
		n.Channel,
		n.Message,
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to insert notification", zap.Error(err))
		return 0, err
	}

	return id, nil
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]model.Notification, error) {
	query := `
        SELECT id, milestone_id, project_id, recipient_id, recipient_role, channel, message, is_read, created_at
        FROM notifications
        WHERE recipient_id = $1
        ORDER BY created_at DESC
    `

	rows, err := r.db.Query(ctx, query, recipientID)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(
			&n.ID,
			&n.MilestoneID,
			&n.ProjectID,
			&n.RecipientID,
			&n.RecipientRole,
			&n.Channel,
			&n.Message,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			r.logger.Error("Failed to scan notification", zap.Error(err))
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (r *NotificationRepository) MarkAsRead(ctx context.Context, id int64) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}
