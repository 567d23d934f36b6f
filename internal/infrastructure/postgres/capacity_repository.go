package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/capacity"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/transaction"
)

type capacityPoolRow struct {
	ID                 string    `db:"id"`
	TourID             string    `db:"tour_id"`
	MaxSeats           int       `db:"max_seats"`
	RemainingSeats     int       `db:"remaining_seats"`
	RegistrationStart  time.Time `db:"registration_start"`
	RegistrationEnd    time.Time `db:"registration_end"`
	MinReservationSize int       `db:"min_reservation_size"`
	MaxReservationSize int       `db:"max_reservation_size"`
	IsActive           bool      `db:"is_active"`
	IsSpecial          bool      `db:"is_special"`
	SpareThreshold     float64   `db:"spare_threshold"`
	TightThreshold     float64   `db:"tight_threshold"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
	Version            int       `db:"version"`
}

func (r *capacityPoolRow) toEntity() *capacity.Pool {
	return &capacity.Pool{
		ID: r.ID, TourID: r.TourID,
		MaxSeats: r.MaxSeats, RemainingSeats: r.RemainingSeats,
		RegistrationStart: r.RegistrationStart, RegistrationEnd: r.RegistrationEnd,
		MinReservationSize: r.MinReservationSize, MaxReservationSize: r.MaxReservationSize,
		IsActive: r.IsActive, IsSpecial: r.IsSpecial,
		Thresholds: capacity.Thresholds{Spare: r.SpareThreshold, Tight: r.TightThreshold},
		CreatedAt:  r.CreatedAt, UpdatedAt: r.UpdatedAt, Version: r.Version,
	}
}

const capacityPoolColumns = `id, tour_id, max_seats, remaining_seats, registration_start, registration_end, min_reservation_size, max_reservation_size, is_active, is_special, spare_threshold, tight_threshold, created_at, updated_at, version`

type CapacityRepository struct{ db *sqlx.DB }

func NewCapacityRepository(db *sqlx.DB) *CapacityRepository { return &CapacityRepository{db: db} }

func (r *CapacityRepository) Create(ctx context.Context, pool *capacity.Pool) error {
	query := `INSERT INTO capacity_pools (tour_id, max_seats, remaining_seats, registration_start, registration_end, min_reservation_size, max_reservation_size, is_active, is_special, spare_threshold, tight_threshold, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		pool.TourID, pool.MaxSeats, pool.RemainingSeats,
		pool.RegistrationStart, pool.RegistrationEnd,
		pool.MinReservationSize, pool.MaxReservationSize,
		pool.IsActive, pool.IsSpecial,
		pool.Thresholds.Spare, pool.Thresholds.Tight,
		pool.CreatedAt, pool.UpdatedAt, pool.Version,
	).Scan(&pool.ID)
}

func (r *CapacityRepository) GetByID(ctx context.Context, id string) (*capacity.Pool, error) {
	query := `SELECT ` + capacityPoolColumns + ` FROM capacity_pools WHERE id = $1`
	var row capacityPoolRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, capacity.ErrPoolNotFound
		}
		return nil, fmt.Errorf("座席枠取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

func (r *CapacityRepository) GetByTourID(ctx context.Context, tourID string) ([]*capacity.Pool, error) {
	query := `SELECT ` + capacityPoolColumns + ` FROM capacity_pools WHERE tour_id = $1 ORDER BY registration_start`
	var rows []capacityPoolRow
	if err := r.db.SelectContext(ctx, &rows, query, tourID); err != nil {
		return nil, err
	}
	pools := make([]*capacity.Pool, len(rows))
	for i, row := range rows {
		pools[i] = row.toEntity()
	}
	return pools, nil
}

// Update は残席数をバージョン条件付きで更新する
// 同じ枠に対する並行確保は、いずれか一方がここで ErrVersionConflict を
// 受けて再試行することで直列化される
func (r *CapacityRepository) Update(ctx context.Context, tx transaction.Tx, pool *capacity.Pool) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("トランザクションが必要です")
	}
	query := `UPDATE capacity_pools
		SET remaining_seats = $1, registration_start = $2, registration_end = $3,
			min_reservation_size = $4, max_reservation_size = $5,
			is_active = $6, is_special = $7,
			spare_threshold = $8, tight_threshold = $9,
			updated_at = NOW(), version = version + 1
		WHERE id = $10 AND version = $11`
	result, err := sqlxTx.ExecContext(ctx, query,
		pool.RemainingSeats, pool.RegistrationStart, pool.RegistrationEnd,
		pool.MinReservationSize, pool.MaxReservationSize,
		pool.IsActive, pool.IsSpecial,
		pool.Thresholds.Spare, pool.Thresholds.Tight,
		pool.ID, pool.Version,
	)
	if err != nil {
		return fmt.Errorf("座席枠更新に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("座席枠更新の結果確認に失敗: %w", err)
	}
	if rows == 0 {
		return capacity.ErrVersionConflict
	}
	pool.Version++
	return nil
}

var _ capacity.Repository = (*CapacityRepository)(nil)
