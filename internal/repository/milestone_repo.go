package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"milestone-service/internal/model"
	"milestone-service/internal/workflow"
	"milestone-service/pkg/outbox"
)

// MilestoneTx is the view of an open transition transaction handed to the
// engine. Every write goes through it so the status change, any outbox
// events, and the version bump commit as one unit.
type MilestoneTx interface {
	SetStatus(ctx context.Context, status workflow.Status, gate bool) error
	SetDetails(ctx context.Context, m *model.Milestone) error
	AppendEvent(ctx context.Context, routingKey string, payload any) error
	Delete(ctx context.Context) error
}

// TransitionFunc runs against the milestone row locked FOR UPDATE.
// Returning an error rolls everything back.
type TransitionFunc func(m *model.Milestone, tx MilestoneTx) error

type MilestoneRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewMilestoneRepository(db *pgxpool.Pool, logger *zap.Logger) *MilestoneRepository {
	return &MilestoneRepository{
		db:     db,
		outbox: outbox.NewRepository(db),
		logger: logger,
	}
}

const milestoneColumns = `id, project_id, title, scope, acceptance_criteria, due_date,
	       amount, currency, status, supervisor_gate, version, created_at, updated_at`

func (r *MilestoneRepository) Insert(ctx context.Context, m *model.Milestone) error {
	r.logger.Debug("Inserting milestone",
		zap.String("project_id", m.ProjectID.String()),
		zap.String("title", m.Title),
	)

	query := `
        INSERT INTO milestones (id, project_id, title, scope, acceptance_criteria, due_date,
                                amount, currency, status, supervisor_gate)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING version, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		m.ID,
		m.ProjectID,
		m.Title,
		m.Scope,
		m.AcceptanceCriteria,
		m.DueDate,
		m.Amount,
		m.Currency,
		m.Status,
		m.SupervisorGate,
	).Scan(&m.Version, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		r.logger.Error("Failed to insert milestone", zap.Error(err))
		return err
	}

	r.logger.Info("Milestone inserted successfully",
		zap.String("id", m.ID.String()),
		zap.String("project_id", m.ProjectID.String()),
	)
	return nil
}

func (r *MilestoneRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE id = $1
    `
	m, err := scanMilestone(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMilestoneNotFound
		}
		r.logger.Error("Failed to get milestone", zap.Error(err))
		return nil, err
	}
	return m, nil
}

func (r *MilestoneRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]model.Milestone, error) {
	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE project_id = $1
        ORDER BY due_date ASC, created_at ASC
    `

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list milestones", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var milestones []model.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			r.logger.Error("Failed to scan milestone", zap.Error(err))
			return nil, err
		}
		milestones = append(milestones, *m)
	}

	return milestones, rows.Err()
}

// InTransition locks the milestone row FOR UPDATE, runs fn against the
// current state, and commits everything fn wrote through the MilestoneTx.
// The row lock serializes concurrent transitions per milestone id: one
// writer at a time, losers re-evaluate against the committed status.
func (r *MilestoneRepository) InTransition(ctx context.Context, id uuid.UUID, fn TransitionFunc) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return err
	}
	defer tx.Rollback(ctx)

	query := `
        SELECT ` + milestoneColumns + `
        FROM milestones
        WHERE id = $1
        FOR UPDATE
    `
	m, err := scanMilestone(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMilestoneNotFound
		}
		r.logger.Error("Failed to lock milestone", zap.Error(err))
		return err
	}

	mtx := &milestoneTx{tx: tx, repo: r, m: m}
	if err := fn(m, mtx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type milestoneTx struct {
	tx   pgx.Tx
	repo *MilestoneRepository
	m    *model.Milestone
}

func (t *milestoneTx) SetStatus(ctx context.Context, status workflow.Status, gate bool) error {
	query := `
        UPDATE milestones
        SET status = $1, supervisor_gate = $2, version = version + 1, updated_at = NOW()
        WHERE id = $3 AND version = $4
        RETURNING version, updated_at
    `
	err := t.tx.QueryRow(ctx, query, status, gate, t.m.ID, t.m.Version).
		Scan(&t.m.Version, &t.m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		t.repo.logger.Error("Failed to update milestone status", zap.Error(err))
		return err
	}

	t.m.Status = status
	t.m.SupervisorGate = gate
	return nil
}

func (t *milestoneTx) SetDetails(ctx context.Context, m *model.Milestone) error {
	query := `
        UPDATE milestones
        SET title = $1, scope = $2, acceptance_criteria = $3, due_date = $4,
            amount = $5, currency = $6, version = version + 1, updated_at = NOW()
        WHERE id = $7 AND version = $8
        RETURNING version, updated_at
    `
	err := t.tx.QueryRow(ctx, query,
		m.Title,
		m.Scope,
		m.AcceptanceCriteria,
		m.DueDate,
		m.Amount,
		m.Currency,
		t.m.ID,
		t.m.Version,
	).Scan(&t.m.Version, &t.m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		t.repo.logger.Error("Failed to update milestone details", zap.Error(err))
		return err
	}

	t.m.Title = m.Title
	t.m.Scope = m.Scope
	t.m.AcceptanceCriteria = m.AcceptanceCriteria
	t.m.DueDate = m.DueDate
	t.m.Amount = m.Amount
	t.m.Currency = m.Currency
	return nil
}

func (t *milestoneTx) AppendEvent(ctx context.Context, routingKey string, payload any) error {
	id := t.m.ID
	return outbox.InsertEventInTx(ctx, t.tx, t.repo.outbox, "milestone", &id, routingKey, payload)
}

func (t *milestoneTx) Delete(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM milestones WHERE id = $1`, t.m.ID)
	if err != nil {
		t.repo.logger.Error("Failed to delete milestone", zap.Error(err))
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMilestone(row rowScanner) (*model.Milestone, error) {
	var m model.Milestone
	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.Title,
		&m.Scope,
		&m.AcceptanceCriteria,
		&m.DueDate,
		&m.Amount,
		&m.Currency,
		&m.Status,
		&m.SupervisorGate,
		&m.Version,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
