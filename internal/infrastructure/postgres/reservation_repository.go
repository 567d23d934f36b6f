package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-tour-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-tour-reservation/internal/domain/transaction"
)

type reservationRow struct {
	ID              string     `db:"id"`
	TourID          string     `db:"tour_id"`
	MemberID        string     `db:"member_id"`
	CapacityID      *string    `db:"capacity_id"`
	TrackingCode    string     `db:"tracking_code"`
	Status          string     `db:"status"`
	ReservationDate time.Time  `db:"reservation_date"`
	ExpiresAt       *time.Time `db:"expires_at"`
	ConfirmedAt     *time.Time `db:"confirmed_at"`
	CancelledAt     *time.Time `db:"cancelled_at"`
	CancelReason    string     `db:"cancel_reason"`
	TotalAmount     *int       `db:"total_amount"`
	PaidAmount      *int       `db:"paid_amount"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	Version         int        `db:"version"`
}

type participantRow struct {
	ID             string    `db:"id"`
	ReservationID  string    `db:"reservation_id"`
	FullName       string    `db:"full_name"`
	NationalNumber string    `db:"national_number"`
	Phone          string    `db:"phone"`
	BirthDate      time.Time `db:"birth_date"`
	Type           string    `db:"participant_type"`
	RequiredAmount int       `db:"required_amount"`
	PaidAmount     *int      `db:"paid_amount"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

type priceSnapshotRow struct {
	ID                   string         `db:"id"`
	ReservationID        string         `db:"reservation_id"`
	ParticipantType      string         `db:"participant_type"`
	BasePrice            int            `db:"base_price"`
	DiscountAmount       *int           `db:"discount_amount"`
	DiscountCode         *string        `db:"discount_code"`
	FinalPrice           int            `db:"final_price"`
	PricingRuleID        *string        `db:"pricing_rule_id"`
	RequiredCapabilities pq.StringArray `db:"required_capabilities"`
	RequiredFeatures     pq.StringArray `db:"required_features"`
	IsDefault            bool           `db:"is_default"`
	IsEarlyBird          bool           `db:"is_early_bird"`
	IsLastMinute         bool           `db:"is_last_minute"`
	CapturedAt           time.Time      `db:"captured_at"`
}

const reservationColumns = `id, tour_id, member_id, capacity_id, tracking_code, status, reservation_date, expires_at, confirmed_at, cancelled_at, cancel_reason, total_amount, paid_amount, created_at, updated_at, version`

type ReservationRepository struct{ db *sqlx.DB }

func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func (r *ReservationRepository) toEntity(row *reservationRow, participants []*reservation.Participant, snapshots []*reservation.PriceSnapshot) *reservation.Reservation {
	return &reservation.Reservation{
		ID: row.ID, TourID: row.TourID, MemberID: row.MemberID,
		CapacityID:   row.CapacityID,
		TrackingCode: row.TrackingCode,
		Status:       reservation.Status(row.Status),
		ReservationDate: row.ReservationDate,
		ExpiresAt:    row.ExpiresAt,
		ConfirmedAt:  row.ConfirmedAt,
		CancelledAt:  row.CancelledAt,
		CancelReason: row.CancelReason,
		TotalAmount:  row.TotalAmount,
		PaidAmount:   row.PaidAmount,
		Participants:   participants,
		PriceSnapshots: snapshots,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		Version:      row.Version,
	}
}

func (r *ReservationRepository) Create(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("トランザクションが必要です")
	}
	query := `INSERT INTO reservations (tour_id, member_id, capacity_id, tracking_code, status, reservation_date, expires_at, confirmed_at, cancelled_at, cancel_reason, total_amount, paid_amount, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) RETURNING id`
	if err := sqlxTx.QueryRowContext(ctx, query,
		res.TourID, res.MemberID, res.CapacityID, res.TrackingCode, string(res.Status),
		res.ReservationDate, res.ExpiresAt, res.ConfirmedAt, res.CancelledAt, res.CancelReason,
		res.TotalAmount, res.PaidAmount, res.CreatedAt, res.UpdatedAt, res.Version,
	).Scan(&res.ID); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return reservation.ErrTrackingCodeTaken
		}
		return fmt.Errorf("予約作成に失敗: %w", err)
	}
	if err := r.insertChildren(ctx, sqlxTx, res); err != nil {
		return err
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*reservation.Reservation, error) {
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return r.loadAggregate(ctx, &row)
}

func (r *ReservationRepository) GetByTrackingCode(ctx context.Context, code string) (*reservation.Reservation, error) {
	var row reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE tracking_code = $1`
	if err := r.db.GetContext(ctx, &row, query, strings.ToUpper(code)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrReservationNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return r.loadAggregate(ctx, &row)
}

func (r *ReservationRepository) GetByTourID(ctx context.Context, tourID string) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE tour_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &rows, query, tourID); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return r.loadAggregates(ctx, rows)
}

func (r *ReservationRepository) GetByMemberAndTour(ctx context.Context, memberID, tourID string) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE member_id = $1 AND tour_id = $2 ORDER BY reservation_date DESC`
	if err := r.db.SelectContext(ctx, &rows, query, memberID, tourID); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return r.loadAggregates(ctx, rows)
}

func (r *ReservationRepository) GetByMemberID(ctx context.Context, memberID string, limit, offset int) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE member_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &rows, query, memberID, limit, offset); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return r.loadAggregates(ctx, rows)
}

// Update は予約本体をバージョン条件付きで更新し、参加者と
// 価格スナップショットを全件入れ替える
func (r *ReservationRepository) Update(ctx context.Context, tx transaction.Tx, res *reservation.Reservation) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return fmt.Errorf("トランザクションが必要です")
	}
	query := `UPDATE reservations
		SET capacity_id = $1, status = $2, expires_at = $3, confirmed_at = $4,
			cancelled_at = $5, cancel_reason = $6, total_amount = $7, paid_amount = $8,
			updated_at = NOW(), version = version + 1
		WHERE id = $9 AND version = $10`
	result, err := sqlxTx.ExecContext(ctx, query,
		res.CapacityID, string(res.Status), res.ExpiresAt, res.ConfirmedAt,
		res.CancelledAt, res.CancelReason, res.TotalAmount, res.PaidAmount,
		res.ID, res.Version,
	)
	if err != nil {
		return fmt.Errorf("予約更新に失敗: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("予約更新の結果確認に失敗: %w", err)
	}
	if rows == 0 {
		return reservation.ErrVersionConflict
	}
	res.Version++
	if _, err := sqlxTx.ExecContext(ctx, `DELETE FROM participants WHERE reservation_id = $1`, res.ID); err != nil {
		return fmt.Errorf("参加者削除に失敗: %w", err)
	}
	if _, err := sqlxTx.ExecContext(ctx, `DELETE FROM price_snapshots WHERE reservation_id = $1`, res.ID); err != nil {
		return fmt.Errorf("価格スナップショット削除に失敗: %w", err)
	}
	return r.insertChildren(ctx, sqlxTx, res)
}

func (r *ReservationRepository) GetExpiredActive(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	var rows []reservationRow
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status IN ('draft', 'held', 'paying') AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, now, limit); err != nil {
		return nil, fmt.Errorf("期限切れ予約取得に失敗: %w", err)
	}
	return r.loadAggregates(ctx, rows)
}

func (r *ReservationRepository) insertChildren(ctx context.Context, tx *sqlx.Tx, res *reservation.Reservation) error {
	for _, p := range res.Participants {
		query := `INSERT INTO participants (reservation_id, full_name, national_number, phone, birth_date, participant_type, required_amount, paid_amount, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
		if err := tx.QueryRowContext(ctx, query,
			res.ID, p.FullName, p.NationalNumber, p.Phone, p.BirthDate,
			string(p.Type), p.RequiredAmount, p.PaidAmount, p.CreatedAt, p.UpdatedAt,
		).Scan(&p.ID); err != nil {
			return fmt.Errorf("参加者保存に失敗: %w", err)
		}
		p.ReservationID = res.ID
	}
	for _, s := range res.PriceSnapshots {
		query := `INSERT INTO price_snapshots (reservation_id, participant_type, base_price, discount_amount, discount_code, final_price, pricing_rule_id, required_capabilities, required_features, is_default, is_early_bird, is_last_minute, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`
		if err := tx.QueryRowContext(ctx, query,
			res.ID, string(s.ParticipantType), s.BasePrice, s.DiscountAmount, s.DiscountCode,
			s.FinalPrice, s.PricingRuleID,
			pq.StringArray(s.RequiredCapabilities), pq.StringArray(s.RequiredFeatures),
			s.IsDefault, s.IsEarlyBird, s.IsLastMinute, s.CapturedAt,
		).Scan(&s.ID); err != nil {
			return fmt.Errorf("価格スナップショット保存に失敗: %w", err)
		}
		s.ReservationID = res.ID
	}
	return nil
}

func (r *ReservationRepository) loadAggregate(ctx context.Context, row *reservationRow) (*reservation.Reservation, error) {
	participants, err := r.getParticipants(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	snapshots, err := r.getSnapshots(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	return r.toEntity(row, participants, snapshots), nil
}

func (r *ReservationRepository) loadAggregates(ctx context.Context, rows []reservationRow) ([]*reservation.Reservation, error) {
	result := make([]*reservation.Reservation, len(rows))
	for i := range rows {
		res, err := r.loadAggregate(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		result[i] = res
	}
	return result, nil
}

func (r *ReservationRepository) getParticipants(ctx context.Context, reservationID string) ([]*reservation.Participant, error) {
	var rows []participantRow
	query := `SELECT id, reservation_id, full_name, national_number, phone, birth_date, participant_type, required_amount, paid_amount, created_at, updated_at
		FROM participants WHERE reservation_id = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &rows, query, reservationID); err != nil {
		return nil, fmt.Errorf("参加者取得に失敗: %w", err)
	}
	participants := make([]*reservation.Participant, len(rows))
	for i, row := range rows {
		participants[i] = &reservation.Participant{
			ID: row.ID, ReservationID: row.ReservationID,
			FullName: row.FullName, NationalNumber: row.NationalNumber, Phone: row.Phone,
			BirthDate: row.BirthDate,
			Type:      reservation.ParticipantType(row.Type),
			RequiredAmount: row.RequiredAmount,
			PaidAmount:     row.PaidAmount,
			CreatedAt:      row.CreatedAt,
			UpdatedAt:      row.UpdatedAt,
		}
	}
	return participants, nil
}

func (r *ReservationRepository) getSnapshots(ctx context.Context, reservationID string) ([]*reservation.PriceSnapshot, error) {
	var rows []priceSnapshotRow
	query := `SELECT id, reservation_id, participant_type, base_price, discount_amount, discount_code, final_price, pricing_rule_id, required_capabilities, required_features, is_default, is_early_bird, is_last_minute, captured_at
		FROM price_snapshots WHERE reservation_id = $1 ORDER BY captured_at`
	if err := r.db.SelectContext(ctx, &rows, query, reservationID); err != nil {
		return nil, fmt.Errorf("価格スナップショット取得に失敗: %w", err)
	}
	snapshots := make([]*reservation.PriceSnapshot, len(rows))
	for i, row := range rows {
		snapshots[i] = &reservation.PriceSnapshot{
			ID: row.ID, ReservationID: row.ReservationID,
			ParticipantType: reservation.ParticipantType(row.ParticipantType),
			BasePrice:       row.BasePrice,
			DiscountAmount:  row.DiscountAmount,
			DiscountCode:    row.DiscountCode,
			FinalPrice:      row.FinalPrice,
			PricingRuleID:   row.PricingRuleID,
			RequiredCapabilities: []string(row.RequiredCapabilities),
			RequiredFeatures:     []string(row.RequiredFeatures),
			IsDefault:    row.IsDefault,
			IsEarlyBird:  row.IsEarlyBird,
			IsLastMinute: row.IsLastMinute,
			CapturedAt:   row.CapturedAt,
		}
	}
	return snapshots, nil
}

var _ reservation.Repository = (*ReservationRepository)(nil)
