package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/tour"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/transaction"
)

type tourRow struct {
	ID                      string         `db:"id"`
	Title                   string         `db:"title"`
	Description             string         `db:"description"`
	TourStart               time.Time      `db:"tour_start"`
	TourEnd                 time.Time      `db:"tour_end"`
	MinAge                  int            `db:"min_age"`
	MaxAge                  int            `db:"max_age"`
	MaxGuestsPerReservation int            `db:"max_guests_per_reservation"`
	Status                  string         `db:"status"`
	RestrictedTourIDs       pq.StringArray `db:"restricted_tour_ids"`
	RequiredCapabilities    pq.StringArray `db:"required_capabilities"`
	RequiredFeatures        pq.StringArray `db:"required_features"`
	CreatedAt               time.Time      `db:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at"`
	Version                 int            `db:"version"`
}

type pricingRow struct {
	ID                   string         `db:"id"`
	TourID               string         `db:"tour_id"`
	ParticipantType      string         `db:"participant_type"`
	BasePrice            int            `db:"base_price"`
	DiscountAmount       *int           `db:"discount_amount"`
	DiscountCode         *string        `db:"discount_code"`
	ValidFrom            time.Time      `db:"valid_from"`
	ValidUntil           time.Time      `db:"valid_until"`
	IsActive             bool           `db:"is_active"`
	IsDefault            bool           `db:"is_default"`
	IsEarlyBird          bool           `db:"is_early_bird"`
	IsLastMinute         bool           `db:"is_last_minute"`
	RequiredCapabilities pq.StringArray `db:"required_capabilities"`
	RequiredFeatures     pq.StringArray `db:"required_features"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

const tourColumns = `id, title, description, tour_start, tour_end, min_age, max_age, max_guests_per_reservation, status, restricted_tour_ids, required_capabilities, required_features, created_at, updated_at, version`

type TourRepository struct {
	db         *sqlx.DB
	capacities *CapacityRepository
}

func NewTourRepository(db *sqlx.DB, capacities *CapacityRepository) *TourRepository {
	return &TourRepository{db: db, capacities: capacities}
}

func (r *TourRepository) toEntity(row *tourRow) *tour.Tour {
	return &tour.Tour{
		ID: row.ID, Title: row.Title, Description: row.Description,
		TourStart: row.TourStart, TourEnd: row.TourEnd,
		MinAge: row.MinAge, MaxAge: row.MaxAge,
		MaxGuestsPerReservation: row.MaxGuestsPerReservation,
		Status:                  tour.Status(row.Status),
		RestrictedTourIDs:       []string(row.RestrictedTourIDs),
		RequiredCapabilities:    []string(row.RequiredCapabilities),
		RequiredFeatures:        []string(row.RequiredFeatures),
		CreatedAt:               row.CreatedAt,
		UpdatedAt:               row.UpdatedAt,
		Version:                 row.Version,
	}
}

func (r *TourRepository) Create(ctx context.Context, t *tour.Tour) error {
	query := `INSERT INTO tours (title, description, tour_start, tour_end, min_age, max_age, max_guests_per_reservation, status, restricted_tour_ids, required_capabilities, required_features, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query,
		t.Title, t.Description, t.TourStart, t.TourEnd,
		t.MinAge, t.MaxAge, t.MaxGuestsPerReservation, string(t.Status),
		pq.StringArray(t.RestrictedTourIDs),
		pq.StringArray(t.RequiredCapabilities), pq.StringArray(t.RequiredFeatures),
		t.CreatedAt, t.UpdatedAt, t.Version,
	).Scan(&t.ID); err != nil {
		return fmt.Errorf("ツアー作成に失敗: %w", err)
	}
	return nil
}

// GetByID は座席枠と料金ルールを含むツアー集約全体を読み込む
func (r *TourRepository) GetByID(ctx context.Context, id string) (*tour.Tour, error) {
	var row tourRow
	query := `SELECT ` + tourColumns + ` FROM tours WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tour.ErrTourNotFound
		}
		return nil, fmt.Errorf("ツアー取得に失敗: %w", err)
	}
	t := r.toEntity(&row)
	pools, err := r.capacities.GetByTourID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("座席枠取得に失敗: %w", err)
	}
	t.Pools = pools
	rules, err := r.getPricingRules(ctx, id)
	if err != nil {
		return nil, err
	}
	t.PricingRules = rules
	return t, nil
}

func (r *TourRepository) List(ctx context.Context, limit, offset int) ([]*tour.Tour, error) {
	var rows []tourRow
	query := `SELECT ` + tourColumns + ` FROM tours ORDER BY tour_start LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("ツアー一覧取得に失敗: %w", err)
	}
	tours := make([]*tour.Tour, len(rows))
	for i := range rows {
		tours[i] = r.toEntity(&rows[i])
	}
	return tours, nil
}

// Update はツアー本体をバージョン条件付きで更新する
// 座席枠の座席数は capacity リポジトリ経由でのみ更新される
func (r *TourRepository) Update(ctx context.Context, tx transaction.Tx, t *tour.Tour) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("トランザクションが必要です")
	}
	query := `UPDATE tours
		SET title = $1, description = $2, tour_start = $3, tour_end = $4,
			min_age = $5, max_age = $6, max_guests_per_reservation = $7,
			status = $8, restricted_tour_ids = $9,
			required_capabilities = $10, required_features = $11,
			updated_at = NOW(), version = version + 1
		WHERE id = $12 AND version = $13`
	result, err := sqlxTx.ExecContext(ctx, query,
		t.Title, t.Description, t.TourStart, t.TourEnd,
		t.MinAge, t.MaxAge, t.MaxGuestsPerReservation, string(t.Status),
		pq.StringArray(t.RestrictedTourIDs),
		pq.StringArray(t.RequiredCapabilities), pq.StringArray(t.RequiredFeatures),
		t.ID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("ツアー更新に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ツアー更新の結果確認に失敗: %w", err)
	}
	if rows == 0 {
		return tour.ErrVersionConflict
	}
	t.Version++
	return nil
}

// CreatePricing は料金ルールを保存する
func (r *TourRepository) CreatePricing(ctx context.Context, p *tour.Pricing) error {
	query := `INSERT INTO pricing_rules (tour_id, participant_type, base_price, discount_amount, discount_code, valid_from, valid_until, is_active, is_default, is_early_bird, is_last_minute, required_capabilities, required_features, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`
	if err := r.db.QueryRowContext(ctx, query,
		p.TourID, string(p.ParticipantType), p.BasePrice, p.DiscountAmount, p.DiscountCode,
		p.ValidFrom, p.ValidUntil, p.IsActive, p.IsDefault, p.IsEarlyBird, p.IsLastMinute,
		pq.StringArray(p.RequiredCapabilities), pq.StringArray(p.RequiredFeatures),
		p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID); err != nil {
		return fmt.Errorf("料金ルール作成に失敗: %w", err)
	}
	return nil
}

func (r *TourRepository) getPricingRules(ctx context.Context, tourID string) ([]*tour.Pricing, error) {
	var rows []pricingRow
	query := `SELECT id, tour_id, participant_type, base_price, discount_amount, discount_code, valid_from, valid_until, is_active, is_default, is_early_bird, is_last_minute, required_capabilities, required_features, created_at, updated_at
		FROM pricing_rules WHERE tour_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &rows, query, tourID); err != nil {
		return nil, fmt.Errorf("料金ルール取得に失敗: %w", err)
	}
	rules := make([]*tour.Pricing, len(rows))
	for i, row := range rows {
		rules[i] = &tour.Pricing{
			ID: row.ID, TourID: row.TourID,
			ParticipantType: reservation.ParticipantType(row.ParticipantType),
			BasePrice:       row.BasePrice,
			DiscountAmount:  row.DiscountAmount,
			DiscountCode:    row.DiscountCode,
			ValidFrom:       row.ValidFrom,
			ValidUntil:      row.ValidUntil,
			IsActive:        row.IsActive,
			IsDefault:       row.IsDefault,
			IsEarlyBird:     row.IsEarlyBird,
			IsLastMinute:    row.IsLastMinute,
			RequiredCapabilities: []string(row.RequiredCapabilities),
			RequiredFeatures:     []string(row.RequiredFeatures),
			CreatedAt:            row.CreatedAt,
			UpdatedAt:            row.UpdatedAt,
		}
	}
	return rules, nil
}

var _ tour.Repository = (*TourRepository)(nil)
