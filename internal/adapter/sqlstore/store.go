// Package sqlstore persists the station catalog, historical and forecast
// series, and computed alert codes in SQLite or PostgreSQL.
//
// Timestamps are stored as unix seconds so both dialects compare them the
// same way. Queries use $N placeholders, which both drivers accept.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/streamflow-alert-service/internal/domain"

	_ "github.com/lib/pq"  // registers "postgres"
	_ "modernc.org/sqlite" // registers "sqlite"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is a database/sql backed catalog and series store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to the database, verifies the connection and applies
// pending migrations.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// A single connection serializes writers and keeps in-memory databases alive.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	version, err := migrateUp(db, driver, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("store opened", "driver", driver, "schema_version", version)

	return &Store{db: db, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Stations returns the catalog ordered by reach and code.
func (s *Store) Stations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reach_id, code, name, alert FROM stations ORDER BY reach_id, code`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var out []domain.Station
	for rows.Next() {
		var st domain.Station
		var alert string
		if err := rows.Scan(&st.ReachID, &st.Code, &st.Name, &alert); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		code, err := domain.ParseAlertCode(alert)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", st.Key(), err)
		}
		st.Alert = code
		out = append(out, st)
	}
	return out, rows.Err()
}

// Observed returns the observed series of a gauge. A gauge with no rows
// is reported as unavailable.
func (s *Store) Observed(ctx context.Context, code string) (domain.TimeSeries, error) {
	ts, err := s.series(ctx, code,
		`SELECT ts, value FROM observed_series WHERE code = $1 ORDER BY ts`, code)
	if err != nil {
		return ts, fmt.Errorf("observed series %s: %w", code, err)
	}
	return ts, nil
}

// Simulated returns the historical simulation of a reach.
func (s *Store) Simulated(ctx context.Context, reachID int64) (domain.TimeSeries, error) {
	ts, err := s.series(ctx, fmt.Sprint(reachID),
		`SELECT ts, value FROM simulated_series WHERE reach_id = $1 ORDER BY ts`, reachID)
	if err != nil {
		return ts, fmt.Errorf("simulated series %d: %w", reachID, err)
	}
	return ts, nil
}

func (s *Store) series(ctx context.Context, id, query string, arg any) (domain.TimeSeries, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return domain.TimeSeries{}, err
	}
	defer rows.Close()

	out := domain.TimeSeries{ID: id}
	for rows.Next() {
		var unix int64
		var v float64
		if err := rows.Scan(&unix, &v); err != nil {
			return domain.TimeSeries{}, err
		}
		out.Points = append(out.Points, domain.Point{Time: time.Unix(unix, 0).UTC(), Value: v})
	}
	if err := rows.Err(); err != nil {
		return domain.TimeSeries{}, err
	}
	if out.Len() == 0 {
		return out, domain.ErrDataUnavailable
	}
	return out, nil
}

// Forecast returns the stored forecast ensemble of a reach. Cells with no
// row or a NULL value are NaN.
func (s *Store) Forecast(ctx context.Context, reachID int64) (domain.Ensemble, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, member, value FROM forecast_ensemble WHERE reach_id = $1 ORDER BY ts, member`, reachID)
	if err != nil {
		return domain.Ensemble{}, fmt.Errorf("forecast %d: %w", reachID, err)
	}
	defer rows.Close()

	type cell struct {
		row    int
		member int
		value  float64
	}
	var (
		times   []time.Time
		cells   []cell
		members = map[int]bool{}
		last    int64
	)
	for rows.Next() {
		var unix int64
		var member int
		var v sql.NullFloat64
		if err := rows.Scan(&unix, &member, &v); err != nil {
			return domain.Ensemble{}, fmt.Errorf("forecast %d: scan: %w", reachID, err)
		}
		if len(times) == 0 || unix != last {
			times = append(times, time.Unix(unix, 0).UTC())
			last = unix
		}
		value := math.NaN()
		if v.Valid {
			value = v.Float64
		}
		cells = append(cells, cell{row: len(times) - 1, member: member, value: value})
		if member != domain.HighResMember {
			members[member] = true
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Ensemble{}, fmt.Errorf("forecast %d: %w", reachID, err)
	}
	if len(times) == 0 {
		return domain.Ensemble{}, fmt.Errorf("forecast %d: %w", reachID, domain.ErrDataUnavailable)
	}

	order := make([]int, 0, len(members))
	for m := range members {
		order = append(order, m)
	}
	sort.Ints(order)
	column := make(map[int]int, len(order))
	for i, m := range order {
		column[m] = i
	}

	ens := domain.Ensemble{
		ID:      fmt.Sprint(reachID),
		Times:   times,
		Members: make([][]float64, len(order)),
		HighRes: nanColumn(len(times)),
	}
	for i := range ens.Members {
		ens.Members[i] = nanColumn(len(times))
	}
	for _, c := range cells {
		if c.member == domain.HighResMember {
			ens.HighRes[c.row] = c.value
			continue
		}
		ens.Members[column[c.member]][c.row] = c.value
	}
	return ens, nil
}

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}

// SaveAlerts writes every record's code onto its catalog row and appends it
// to the alert history, all in one transaction. A record for a station
// missing from the catalog aborts the whole write.
func (s *Store) SaveAlerts(ctx context.Context, records []domain.AlertRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		update, err := tx.PrepareContext(ctx,
			`UPDATE stations SET alert = $1, updated_at = $2 WHERE reach_id = $3 AND code = $4`)
		if err != nil {
			return fmt.Errorf("prepare alert update: %w", err)
		}
		defer update.Close()

		history, err := tx.PrepareContext(ctx, `
			INSERT INTO alert_history (reach_id, code, alert, previous, low_flow_fallback, evaluated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (reach_id, code, evaluated_at) DO UPDATE SET
				alert = excluded.alert,
				previous = excluded.previous,
				low_flow_fallback = excluded.low_flow_fallback`)
		if err != nil {
			return fmt.Errorf("prepare alert history: %w", err)
		}
		defer history.Close()

		for _, r := range records {
			at := r.EvaluatedAt.Unix()
			res, err := update.ExecContext(ctx, string(r.Code), at, r.ReachID, r.StationCode)
			if err != nil {
				return fmt.Errorf("update alert %s: %w", r.Key(), err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return fmt.Errorf("update alert %s: station not in catalog", r.Key())
			}
			if _, err := history.ExecContext(ctx,
				r.ReachID, r.StationCode, string(r.Code), string(r.Previous), r.LowFlowFallback, at); err != nil {
				return fmt.Errorf("record alert history %s: %w", r.Key(), err)
			}
		}
		return nil
	})
}

// AlertHistory returns the recorded alerts of a station, oldest first.
func (s *Store) AlertHistory(ctx context.Context, st domain.Station) ([]domain.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert, previous, low_flow_fallback, evaluated_at FROM alert_history
		WHERE reach_id = $1 AND code = $2 ORDER BY evaluated_at`, st.ReachID, st.Code)
	if err != nil {
		return nil, fmt.Errorf("query alert history %s: %w", st.Key(), err)
	}
	defer rows.Close()

	var out []domain.AlertRecord
	for rows.Next() {
		var alert, previous string
		var at int64
		r := domain.AlertRecord{StationCode: st.Code, ReachID: st.ReachID}
		if err := rows.Scan(&alert, &previous, &r.LowFlowFallback, &at); err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		r.Code = domain.AlertCode(alert)
		r.Previous = domain.AlertCode(previous)
		r.EvaluatedAt = time.Unix(at, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertStation inserts a catalog row or updates its name. The stored alert
// is left untouched on update.
func (s *Store) UpsertStation(ctx context.Context, st domain.Station) error {
	alert := st.Alert
	if alert == "" {
		alert = domain.AlertNone
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stations (reach_id, code, name, alert, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reach_id, code) DO UPDATE SET name = excluded.name`,
		st.ReachID, st.Code, st.Name, string(alert), domain.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert station %s: %w", st.Key(), err)
	}
	return nil
}

// SaveObserved upserts the finite points of an observed series.
func (s *Store) SaveObserved(ctx context.Context, code string, ts domain.TimeSeries) error {
	return s.savePoints(ctx, `
		INSERT INTO observed_series (code, ts, value) VALUES ($1, $2, $3)
		ON CONFLICT (code, ts) DO UPDATE SET value = excluded.value`, code, ts)
}

// SaveSimulated upserts the finite points of a simulated series.
func (s *Store) SaveSimulated(ctx context.Context, reachID int64, ts domain.TimeSeries) error {
	return s.savePoints(ctx, `
		INSERT INTO simulated_series (reach_id, ts, value) VALUES ($1, $2, $3)
		ON CONFLICT (reach_id, ts) DO UPDATE SET value = excluded.value`, reachID, ts)
}

func (s *Store) savePoints(ctx context.Context, query string, key any, ts domain.TimeSeries) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare series upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range ts.Points {
			if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
				continue
			}
			if _, err := stmt.ExecContext(ctx, key, p.Time.Unix(), p.Value); err != nil {
				return fmt.Errorf("save series %v: %w", key, err)
			}
		}
		return nil
	})
}

// SaveForecast replaces the stored forecast of a reach with ens.
func (s *Store) SaveForecast(ctx context.Context, reachID int64, ens domain.Ensemble) error {
	if err := ens.Validate(); err != nil {
		return fmt.Errorf("save forecast %d: %w", reachID, err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM forecast_ensemble WHERE reach_id = $1`, reachID); err != nil {
			return fmt.Errorf("clear forecast %d: %w", reachID, err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO forecast_ensemble (reach_id, ts, member, value) VALUES ($1, $2, $3, $4)`)
		if err != nil {
			return fmt.Errorf("prepare forecast insert: %w", err)
		}
		defer stmt.Close()

		insert := func(unix int64, member int, v float64) error {
			val := sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
			_, err := stmt.ExecContext(ctx, reachID, unix, member, val)
			return err
		}
		for i, t := range ens.Times {
			for m, col := range ens.Members {
				if err := insert(t.Unix(), m+1, col[i]); err != nil {
					return fmt.Errorf("save forecast %d: %w", reachID, err)
				}
			}
			if ens.HighRes != nil {
				if err := insert(t.Unix(), domain.HighResMember, ens.HighRes[i]); err != nil {
					return fmt.Errorf("save forecast %d: %w", reachID, err)
				}
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
