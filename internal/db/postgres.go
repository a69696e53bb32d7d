package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"picme-bot/config"
	"picme-bot/internal/models"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ErrDuplicate reports a uniqueness violation on one of the dedup marker
// tables. A duplicate insert is the sole duplicate-detection mechanism.
var ErrDuplicate = errors.New("duplicate record")

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(cfg *config.Config) (*PostgresDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.DBName, cfg.DB.SSLMode, cfg.DB.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	// Set connection pool parameters
	poolConfig.MaxConns = int32(cfg.DB.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.DB.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.DB.ConnLifetime
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	// Connect with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection works
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

func wrapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// InsertMessageMarker records a channel message id. ErrDuplicate means the
// provider redelivered an already-handled message.
func (db *PostgresDB) InsertMessageMarker(ctx context.Context, messageID string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO msgs (id, date) VALUES ($1, $2)`,
		messageID, time.Now().UTC())
	if err != nil {
		return wrapDuplicate(err)
	}
	return nil
}

// InsertPaymentMarker records a payment id, same contract as message markers.
func (db *PostgresDB) InsertPaymentMarker(ctx context.Context, paymentID string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO payments (id, date) VALUES ($1, $2)`,
		paymentID, time.Now().UTC())
	if err != nil {
		return wrapDuplicate(err)
	}
	return nil
}

// GetUser returns nil without an error when no record exists for the phone.
func (db *PostgresDB) GetUser(ctx context.Context, phone string) (*models.User, error) {
	query := `
        SELECT phone, state, credits, tune_id, chosen_pack, entity_type, language
        FROM users
        WHERE phone = $1
    `

	var user models.User
	err := db.pool.QueryRow(ctx, query, phone).Scan(
		&user.Phone, &user.State, &user.Credits,
		&user.TuneID, &user.ChosenPack, &user.EntityType, &user.Language,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, user *models.User) error {
	query := `
        INSERT INTO users (phone, state, credits, tune_id, chosen_pack, entity_type, language)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

	_, err := db.pool.Exec(ctx, query,
		user.Phone, user.State, user.Credits,
		user.TuneID, user.ChosenPack, user.EntityType, user.Language,
	)
	if err != nil {
		return wrapDuplicate(err)
	}
	return nil
}

// UpdateUserState is the guarded conditional update: the new state is
// applied only if the row still holds the expected one. The returned count
// is zero when a concurrent attempt won the race.
func (db *PostgresDB) UpdateUserState(ctx context.Context, phone string, expected, next models.State) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET state = $1 WHERE phone = $2 AND state = $3`,
		next, phone, expected)
	if err != nil {
		return 0, fmt.Errorf("failed to update user state: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (db *PostgresDB) SetUserLanguage(ctx context.Context, phone string, lang models.Language) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE users SET language = $1 WHERE phone = $2`,
		lang, phone)
	return err
}

func (db *PostgresDB) SetChosenPack(ctx context.Context, phone string, packID *string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE users SET chosen_pack = $1 WHERE phone = $2`,
		packID, phone)
	return err
}

// AssignTune points the conversation at an existing tune and clears the
// catalog selection (reuse path).
func (db *PostgresDB) AssignTune(ctx context.Context, phone, tuneID, entityType string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE users SET tune_id = $1, entity_type = $2, chosen_pack = NULL WHERE phone = $3`,
		tuneID, entityType, phone)
	return err
}

// CompleteTune stores a freshly created tune id and promotes the
// conversation to TUNE_READY, guarded by the expected current state.
func (db *PostgresDB) CompleteTune(ctx context.Context, phone, tuneID string, expected models.State) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET tune_id = $1, state = $2 WHERE phone = $3 AND state = $4`,
		tuneID, models.StateTuneReady, phone, expected)
	if err != nil {
		return 0, fmt.Errorf("failed to complete tune: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResetUser clears the tune reference, catalog selection and entity type
// and forces the conversation back to NEW.
func (db *PostgresDB) ResetUser(ctx context.Context, phone string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE users SET state = $1, tune_id = NULL, entity_type = NULL, chosen_pack = NULL WHERE phone = $2`,
		models.StateNew, phone)
	return err
}

func (db *PostgresDB) SetEntityTypeIfEmpty(ctx context.Context, phone, entityType string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE users SET entity_type = $1 WHERE phone = $2 AND entity_type IS NULL`,
		entityType, phone)
	return err
}

func (db *PostgresDB) AddPendingImage(ctx context.Context, phone, mediaID string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO pictures (phone_number, path) VALUES ($1, $2)`,
		phone, mediaID)
	return err
}

func (db *PostgresDB) CountPendingImages(ctx context.Context, phone string) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pictures WHERE phone_number = $1`,
		phone).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending images: %w", err)
	}
	return count, nil
}

func (db *PostgresDB) ListPendingImages(ctx context.Context, phone string) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT path FROM pictures WHERE phone_number = $1`,
		phone)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending images: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

func (db *PostgresDB) PurgePendingImages(ctx context.Context, phone string) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM pictures WHERE phone_number = $1`,
		phone)
	return err
}

// InsertRating stores today's rating for the phone.
func (db *PostgresDB) InsertRating(ctx context.Context, phone string, rating int) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO ratings (phone_number, rating, date) VALUES ($1, $2, $3)`,
		phone, rating, time.Now().UTC())
	return err
}

// AttachFeedback adds free-text feedback to today's rating record.
func (db *PostgresDB) AttachFeedback(ctx context.Context, phone, feedback string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE ratings SET feedback = $1 WHERE phone_number = $2 AND date = $3`,
		feedback, phone, time.Now().UTC())
	return err
}

// PurgeExpiredMarkers drops dedup markers older than the retention window.
// Triggered by the maintenance route, not by the dispatch loop.
func (db *PostgresDB) PurgeExpiredMarkers(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)
	if _, err := db.pool.Exec(ctx, `DELETE FROM msgs WHERE date < $1`, cutoff); err != nil {
		return fmt.Errorf("failed to purge message markers: %w", err)
	}
	if _, err := db.pool.Exec(ctx, `DELETE FROM payments WHERE date < $1`, cutoff); err != nil {
		return fmt.Errorf("failed to purge payment markers: %w", err)
	}
	return nil
}
