package marketpersist

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"eod-collector/pkg/market"
)

// Schema creates the mirror table. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS public.eod_bars (
    symbol             TEXT             NOT NULL,
    bar_date           DATE             NOT NULL,
    open               DOUBLE PRECISION NOT NULL,
    high               DOUBLE PRECISION NOT NULL,
    low                DOUBLE PRECISION NOT NULL,
    close              DOUBLE PRECISION NOT NULL,
    volume             DOUBLE PRECISION NOT NULL,
    quote_volume       DOUBLE PRECISION NOT NULL,
    trades             BIGINT           NOT NULL,
    market_cap         DOUBLE PRECISION,
    circulating_supply DOUBLE PRECISION,
    total_supply       DOUBLE PRECISION,
    max_supply         DOUBLE PRECISION,
    created_at         TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
    PRIMARY KEY (symbol, bar_date)
);`

const upsertBar = `
INSERT INTO public.eod_bars (
    symbol, bar_date, open, high, low, close, volume, quote_volume, trades,
    market_cap, circulating_supply, total_supply, max_supply, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW()
)
ON CONFLICT (symbol, bar_date) DO UPDATE SET
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    volume = EXCLUDED.volume,
    quote_volume = EXCLUDED.quote_volume,
    trades = EXCLUDED.trades,
    market_cap = EXCLUDED.market_cap,
    circulating_supply = EXCLUDED.circulating_supply,
    total_supply = EXCLUDED.total_supply,
    max_supply = EXCLUDED.max_supply,
    updated_at = NOW();`

// Service mirrors persisted bars into Postgres. Newer rows win on
// (symbol, bar_date), matching the CSV merge rule.
type Service struct {
	sqlConn sqlx.SqlConn
}

// Config enumerates dependencies required to mirror bars.
type Config struct {
	SQLConn sqlx.SqlConn
}

// NewService wires the mirror. Returns nil when no connection is configured.
func NewService(cfg Config) *Service {
	if cfg.SQLConn == nil {
		return nil
	}
	return &Service{sqlConn: cfg.SQLConn}
}

// EnsureSchema creates the mirror table when missing.
func (s *Service) EnsureSchema(ctx context.Context) error {
	if s == nil || s.sqlConn == nil {
		return nil
	}
	if _, err := s.sqlConn.ExecCtx(ctx, Schema); err != nil {
		return fmt.Errorf("marketpersist: ensure schema: %w", err)
	}
	return nil
}

// MirrorBars upserts rows in one transaction.
func (s *Service) MirrorBars(ctx context.Context, rows []market.EnrichedBar) error {
	if s == nil || s.sqlConn == nil || len(rows) == 0 {
		return nil
	}
	written := 0
	err := s.sqlConn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for _, row := range rows {
			if strings.TrimSpace(row.Symbol) == "" {
				continue
			}
			if _, err := session.ExecCtx(ctx, upsertBar, barArgs(row)...); err != nil {
				return fmt.Errorf("upsert %s %s: %w", row.Symbol, row.Key().Date, err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("marketpersist: mirror bars: %w", err)
	}
	logx.WithContext(ctx).Infof("marketpersist: mirrored %d bars", written)
	return nil
}

func barArgs(row market.EnrichedBar) []any {
	return []any{
		row.Symbol,
		row.Key().Date,
		row.Open,
		row.High,
		row.Low,
		row.Close,
		row.Volume,
		row.QuoteVolume,
		row.Trades,
		nullFloat(row.MarketCap),
		nullFloat(row.CirculatingSupply),
		nullFloat(row.TotalSupply),
		nullFloat(row.MaxSupply),
	}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
