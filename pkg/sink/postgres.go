/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/printradar/pkg/logger"
	"github.com/carverauto/printradar/pkg/models"
)

// PostgreSQL SQLSTATE codes that are retried.
const (
	sqlstateDeadlockDetected    = "40P01"
	sqlstateSerializationFailed = "40001"
	sqlstateStatementTimeout    = "57014"
)

const (
	defaultPostgresPort      = 5432
	defaultMaxRetryAttempts  = 3
	defaultBaseBackoff       = 150 * time.Millisecond
	defaultDeadlockBackoff   = 500 * time.Millisecond
	defaultApplicationName   = "printradar-poller"
	defaultPostgresSSLMode   = "disable"
	statementTimeoutParamKey = "statement_timeout"
)

const (
	updatePrinterStatusSQL = `
UPDATE printers
SET last_status = $2,
	last_checked_at = $3
WHERE id = $1`

	insertPrinterMetricsSQL = `
INSERT INTO printer_metrics (
	collected_at,
	printer_id,
	online,
	status,
	status_code,
	device_state,
	page_count,
	page_count_source,
	model,
	serial,
	uptime_ticks,
	consumables
) VALUES (
	$1,$2,$3,$4,$5,
	$6,$7,$8,$9,$10,
	$11,$12
)`

	insertAlertSQL = `
INSERT INTO printer_alerts (
	id,
	tenant_id,
	printer_id,
	kind,
	severity,
	subject,
	message,
	state,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (id) DO NOTHING`

	selectOpenAlertsSQL = `
SELECT a.id,
	a.tenant_id,
	a.printer_id,
	COALESCE(p.name, ''),
	COALESCE(p.address, ''),
	a.kind,
	a.severity,
	a.subject,
	a.message,
	a.state,
	a.created_at
FROM printer_alerts a
LEFT JOIN printers p ON p.id = a.printer_id
WHERE a.state <> 'resolved'
ORDER BY a.created_at`
)

// PostgresConfig describes the connection to the fleet database.
type PostgresConfig struct {
	Host               string            `json:"host"`
	Port               int               `json:"port,omitempty"`
	Database           string            `json:"database"`
	Username           string            `json:"username,omitempty"`
	Password           string            `json:"password,omitempty"`
	SSLMode            string            `json:"ssl_mode,omitempty"`
	ApplicationName    string            `json:"application_name,omitempty"`
	MaxConnections     int32             `json:"max_connections,omitempty"`
	MinConnections     int32             `json:"min_connections,omitempty"`
	MaxConnLifetime    models.Duration   `json:"max_conn_lifetime,omitempty"`
	HealthCheckPeriod  models.Duration   `json:"health_check_period,omitempty"`
	StatementTimeout   models.Duration   `json:"statement_timeout,omitempty"`
	ExtraRuntimeParams map[string]string `json:"extra_runtime_params,omitempty"`
	TLS                *TLSConfig        `json:"tls,omitempty"`
}

// ConnString renders cfg as a postgres:// URL.
func (cfg *PostgresConfig) ConnString() string {
	port := cfg.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	connURL := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   "/" + cfg.Database,
	}

	if cfg.Username != "" {
		if cfg.Password != "" {
			connURL.User = url.UserPassword(cfg.Username, cfg.Password)
		} else {
			connURL.User = url.User(cfg.Username)
		}
	}

	query := connURL.Query()

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	query.Set("sslmode", sslMode)

	appName := cfg.ApplicationName
	if appName == "" {
		appName = defaultApplicationName
	}

	query.Set("application_name", appName)

	connURL.RawQuery = query.Encode()

	return connURL.String()
}

// NewPool dials the database described by cfg.
func NewPool(ctx context.Context, cfg *PostgresConfig, log logger.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse connection string: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = cfg.MaxConnections
	}

	if cfg.MinConnections > 0 {
		poolConfig.MinConns = cfg.MinConnections
	}

	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime.Std()
	}

	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod.Std()
	}

	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = make(map[string]string)
	}

	for k, v := range cfg.ExtraRuntimeParams {
		if k == "" {
			continue
		}

		poolConfig.ConnConfig.RuntimeParams[k] = v
	}

	if cfg.StatementTimeout > 0 {
		poolConfig.ConnConfig.RuntimeParams[statementTimeoutParamKey] =
			fmt.Sprintf("%d", cfg.StatementTimeout.Std().Milliseconds())
	}

	tlsConfig, err := cfg.TLS.Build(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("postgres tls: %w", err)
	}

	if tlsConfig != nil {
		poolConfig.ConnConfig.TLSConfig = tlsConfig
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to initialize pool: %w", err)
	}

	if log != nil {
		log.Info().
			Str("host", cfg.Host).
			Str("database", cfg.Database).
			Int32("max_conns", poolConfig.MaxConns).
			Msg("Connected to fleet database")
	}

	return pool, nil
}

// querier is the subset of *pgxpool.Pool used by Postgres.
type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Postgres is a Sink backed by the fleet database.
type Postgres struct {
	db          querier
	closeFn     func()
	logger      logger.Logger
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewPostgres wraps pool. Close closes the pool.
func NewPostgres(pool *pgxpool.Pool, log logger.Logger) *Postgres {
	p := newPostgres(pool, log)
	p.closeFn = pool.Close

	return p
}

func newPostgres(db querier, log logger.Logger) *Postgres {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Postgres{
		db:          db,
		logger:      log,
		maxAttempts: defaultMaxRetryAttempts,
		sleep:       sleepContext,
	}
}

// SaveStatus updates the printer row and appends the metrics row in one
// transaction.
func (p *Postgres) SaveStatus(ctx context.Context, deviceID string, status models.Status, snapshot *models.MetricSnapshot) error {
	if err := validateStatus(deviceID, snapshot); err != nil {
		return err
	}

	metricArgs, err := buildMetricArgs(deviceID, status, snapshot)
	if err != nil {
		return err
	}

	return p.withRetry(ctx, "save status", func(ctx context.Context) error {
		return p.saveStatusTx(ctx, deviceID, status, snapshot.CollectedAt, metricArgs)
	})
}

func (p *Postgres) saveStatusTx(
	ctx context.Context,
	deviceID string,
	status models.Status,
	checkedAt time.Time,
	metricArgs []interface{},
) (err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save status: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	batch := &pgx.Batch{}
	batch.Queue(updatePrinterStatusSQL, deviceID, status.String(), checkedAt)
	batch.Queue(insertPrinterMetricsSQL, metricArgs...)

	if err = sendBatchExecAll(ctx, batch, tx.SendBatch, "save status"); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save status: %w", err)
	}

	return nil
}

// RaiseAlert inserts alert. Replays of the same ID are no-ops.
func (p *Postgres) RaiseAlert(ctx context.Context, alert *models.Alert) error {
	if err := validateAlert(alert); err != nil {
		return err
	}

	args := buildAlertArgs(alert)

	return p.withRetry(ctx, "raise alert", func(ctx context.Context) error {
		if _, err := p.db.Exec(ctx, insertAlertSQL, args...); err != nil {
			return fmt.Errorf("insert alert %s: %w", alert.ID, err)
		}

		return nil
	})
}

// OpenAlerts returns all alerts not yet resolved.
func (p *Postgres) OpenAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := p.db.Query(ctx, selectOpenAlertsSQL)
	if err != nil {
		return nil, fmt.Errorf("query open alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert

	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open alerts: %w", err)
	}

	return out, nil
}

// Ping implements Pinger.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() error {
	if p.closeFn != nil {
		p.closeFn()
	}

	return nil
}

func (p *Postgres) withRetry(ctx context.Context, name string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		code, transient := classifyError(err)
		if !transient || attempt == p.maxAttempts {
			break
		}

		delay := backoffDelay(attempt, code)

		p.logger.Warn().
			Err(err).
			Str("sqlstate", code).
			Str("operation", name).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Transient database error, retrying")

		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return lastErr
}

// classifyError reports the SQLSTATE of err and whether it is worth retrying.
func classifyError(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateDeadlockDetected, sqlstateSerializationFailed, sqlstateStatementTimeout:
			return pgErr.Code, true
		}

		return pgErr.Code, false
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "40p01"), strings.Contains(msg, "deadlock detected"):
		return sqlstateDeadlockDetected, true
	case strings.Contains(msg, "40001"), strings.Contains(msg, "could not serialize access"):
		return sqlstateSerializationFailed, true
	default:
		return "", false
	}
}

// backoffDelay is exponential in attempt with up to 100% jitter.
func backoffDelay(attempt int, sqlstate string) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := defaultBaseBackoff
	if sqlstate == sqlstateDeadlockDetected || sqlstate == sqlstateSerializationFailed {
		base = defaultDeadlockBackoff
	}

	backoff := base * time.Duration(1<<(attempt-1))
	jitter := time.Duration(time.Now().UnixNano() % int64(base))

	return backoff + jitter
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func sendBatchExecAll(
	ctx context.Context,
	batch *pgx.Batch,
	send func(context.Context, *pgx.Batch) pgx.BatchResults,
	operation string,
) (err error) {
	if batch == nil || batch.Len() == 0 {
		return nil
	}

	br := send(ctx, batch)
	defer func() {
		if closeErr := br.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%s batch close: %w", operation, closeErr)
		}
	}()

	for i := 0; i < batch.Len(); i++ {
		if _, err = br.Exec(); err != nil {
			return fmt.Errorf("%s batch exec (command %d): %w", operation, i, err)
		}
	}

	return nil
}

func buildMetricArgs(deviceID string, status models.Status, s *models.MetricSnapshot) ([]interface{}, error) {
	var consumables interface{}

	if len(s.Consumables) > 0 {
		raw, err := json.Marshal(s.Consumables)
		if err != nil {
			return nil, fmt.Errorf("marshal consumables for %s: %w", deviceID, err)
		}

		consumables = json.RawMessage(raw)
	}

	return []interface{}{
		s.CollectedAt.UTC(),
		deviceID,
		s.Online,
		status.String(),
		toNullableInt(s.StatusCode),
		toNullableInt(s.DeviceState),
		toNullableInt64(s.PageCount),
		toNullableString(s.PageCountSource),
		toNullableString(s.Model),
		toNullableString(s.Serial),
		toNullableInt64(s.UptimeTicks),
		consumables,
	}, nil
}

func buildAlertArgs(a *models.Alert) []interface{} {
	state := a.State
	if state == "" {
		state = models.AlertStateOpen
	}

	return []interface{}{
		a.ID,
		a.TenantID,
		a.DeviceID,
		string(a.Kind),
		string(a.Severity),
		a.Subject,
		a.Message,
		string(state),
		a.CreatedAt.UTC(),
	}
}

func scanAlert(row rowScanner) (models.Alert, error) {
	var (
		a                     models.Alert
		kind, severity, state string
	)

	if err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.DeviceID,
		&a.DeviceName,
		&a.Address,
		&kind,
		&severity,
		&a.Subject,
		&a.Message,
		&state,
		&a.CreatedAt,
	); err != nil {
		return models.Alert{}, fmt.Errorf("scan alert: %w", err)
	}

	a.Kind = models.AlertKind(kind)
	a.Severity = models.Severity(severity)
	a.State = models.AlertState(state)

	return a, nil
}

func toNullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}

	return int32(*v) //nolint:gosec // MIB enumerations are small
}

func toNullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}

	return *v
}

func toNullableString(v string) interface{} {
	if v == "" {
		return nil
	}

	return v
}
