package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"crypto-signal-service/internal/market"
)

// ==================== ANALYSIS REPOSITORY ====================

var (
	ErrDuplicateID     = errors.New("analysis id already exists")
	ErrNotFound        = errors.New("analysis not found")
	ErrAlreadyResolved = errors.New("analysis already resolved")
)

// Repository persists analysis records. Snapshot, recommendation and
// resolution travel as JSON blobs; filter columns are extracted.
type Repository struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewRepository(pool *pgxpool.Pool, logger zerolog.Logger) *Repository {
	return &Repository{
		pool: pool,
		log:  logger.With().Str("component", "store").Logger(),
	}
}

func (r *Repository) Save(ctx context.Context, rec *AnalysisRecord) error {
	snapshot, err := json.Marshal(rec.MarketSnapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	recommendation, err := json.Marshal(rec.Recommendation)
	if err != nil {
		return fmt.Errorf("marshal recommendation: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO analysis_history
			(id, user_id, symbol, timeframe, trading_style, created_at, expires_at, status, market_snapshot, recommendation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.UserID, rec.Symbol, string(rec.Timeframe), string(rec.TradingStyle),
		rec.CreatedAt, rec.ExpiresAt, string(rec.Status), snapshot, recommendation)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// UpdateResolution writes the resolution exactly once. The guard on
// resolution IS NULL makes concurrent resolvers lose cleanly.
func (r *Repository) UpdateResolution(ctx context.Context, id string, res *Resolution) error {
	blob, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal resolution: %w", err)
	}
	status := StatusResolved
	if res.Outcome == OutcomeExpired {
		status = StatusExpired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `
		UPDATE analysis_history
		SET resolution = $2, status = $3
		WHERE id = $1 AND resolution IS NULL`,
		id, blob, string(status))
	if err != nil {
		return fmt.Errorf("update resolution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM analysis_history WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check analysis: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAlreadyResolved
	}
	return nil
}

// GetOpen returns every record still pending tracking, oldest first.
func (r *Repository) GetOpen(ctx context.Context) ([]*AnalysisRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	rows, err := r.pool.Query(ctx, selectColumns+`
		FROM analysis_history
		WHERE status = $1
		ORDER BY created_at ASC`,
		string(StatusPendingTracking))
	if err != nil {
		return nil, fmt.Errorf("query open analyses: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *Repository) GetByID(ctx context.Context, id string) (*AnalysisRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	rows, err := r.pool.Query(ctx, selectColumns+`
		FROM analysis_history
		WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query analysis: %w", err)
	}
	defer rows.Close()
	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// SymbolHistory returns a user's records for one symbol inside the
// window, newest first.
func (r *Repository) SymbolHistory(ctx context.Context, userID int64, symbol string, window time.Duration) ([]*AnalysisRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	rows, err := r.pool.Query(ctx, selectColumns+`
		FROM analysis_history
		WHERE user_id = $1 AND symbol = $2 AND created_at >= $3
		ORDER BY created_at DESC`,
		userID, symbol, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("query symbol history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// History returns a user's records inside the window, optionally
// filtered by symbol, newest first.
func (r *Repository) History(ctx context.Context, userID int64, symbol string, window time.Duration) ([]*AnalysisRecord, error) {
	if symbol != "" {
		return r.SymbolHistory(ctx, userID, symbol, window)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	rows, err := r.pool.Query(ctx, selectColumns+`
		FROM analysis_history
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`,
		userID, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// LearningSummary derives the win/loss pattern summary for a user and
// symbol over the window.
func (r *Repository) LearningSummary(ctx context.Context, userID int64, symbol string, window time.Duration) (*LearningSummary, error) {
	records, err := r.SymbolHistory(ctx, userID, symbol, window)
	if err != nil {
		return nil, err
	}
	return DeriveLearningSummary(records), nil
}

// PurgeExpired deletes records past their expiry regardless of state.
func (r *Repository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	tag, err := r.pool.Exec(ctx, `DELETE FROM analysis_history WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StartPurgeLoop runs PurgeExpired every hour until ctx is cancelled.
func (r *Repository) StartPurgeLoop(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := r.PurgeExpired(ctx, now)
				if err != nil {
					r.log.Error().Err(err).Msg("purge expired failed")
					continue
				}
				if n > 0 {
					r.log.Info().Int64("purged", n).Msg("purged expired analyses")
				}
			}
		}
	}()
}

const selectColumns = `
		SELECT id, user_id, symbol, timeframe, trading_style, created_at, expires_at, status,
		       market_snapshot, recommendation, resolution`

func scanRecords(rows pgx.Rows) ([]*AnalysisRecord, error) {
	var out []*AnalysisRecord
	for rows.Next() {
		var (
			rec        AnalysisRecord
			tf, style  string
			status     string
			snapshot   []byte
			reco       []byte
			resolution []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Symbol, &tf, &style,
			&rec.CreatedAt, &rec.ExpiresAt, &status, &snapshot, &reco, &resolution); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		rec.Timeframe = market.Timeframe(tf)
		rec.TradingStyle = TradingStyle(style)
		rec.Status = Status(status)
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &rec.MarketSnapshot); err != nil {
				return nil, fmt.Errorf("unmarshal snapshot: %w", err)
			}
		}
		if err := json.Unmarshal(reco, &rec.Recommendation); err != nil {
			return nil, fmt.Errorf("unmarshal recommendation: %w", err)
		}
		if len(resolution) > 0 {
			if err := json.Unmarshal(resolution, &rec.Resolution); err != nil {
				return nil, fmt.Errorf("unmarshal resolution: %w", err)
			}
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
