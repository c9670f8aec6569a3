package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("profile not found")
	ErrUsernameTaken  = errors.New("username already taken")
	ErrCannotVouch    = errors.New("voucher is not allowed to vouch")
	ErrSelfVouch      = errors.New("cannot vouch for yourself")
	ErrAlreadyVouched = errors.New("already vouched for this profile")
	ErrVouchLimit     = errors.New("profile reached the vouch limit")

	ErrDescriptionRequired = errors.New("vouch description is required")
)

// Rules are the vouching limits taken from config.
type Rules struct {
	CountLimit        int
	CanVouchThreshold int
}

type Repo struct {
	pg *pgxpool.Pool
}

func NewRepo(pg *pgxpool.Pool) *Repo {
	return &Repo{pg: pg}
}

const selectProfile = `
SELECT
  p.id, p.username, p.email, p.full_name,
  p.is_vouched, p.is_nda, p.is_staff, p.can_vouch,
  (SELECT count(*) FROM vouches v WHERE v.vouchee_id = p.id),
  p.created_at, p.updated_at
FROM profiles p`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(
		&p.ID, &p.Username, &p.Email, &p.FullName,
		&p.IsVouched, &p.IsNDA, &p.IsStaff, &p.CanVouch,
		&p.VouchesReceived,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repo) FindByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scanProfile(r.pg.QueryRow(ctx, selectProfile+` WHERE p.id = $1`, id))
}

func (r *Repo) FindByEmail(ctx context.Context, email string) (*Profile, error) {
	return scanProfile(r.pg.QueryRow(ctx, selectProfile+` WHERE lower(p.email) = lower($1)`, email))
}

func (r *Repo) UsernameExists(ctx context.Context, username string) (bool, error) {
	var ok bool
	err := r.pg.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE username = $1)`, username).Scan(&ok)
	return ok, err
}

func (r *Repo) Create(ctx context.Context, np NewProfile) (*Profile, error) {
	const q = `
INSERT INTO profiles (username, email, full_name, is_staff, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())
RETURNING id`
	var id uuid.UUID
	if err := r.pg.QueryRow(ctx, q, np.Username, np.Email, np.FullName, np.IsStaff).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "profiles_username_key" {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return r.FindByID(ctx, id)
}

// AutoVouch records a voucher-less vouch and marks the profile vouched.
func (r *Repo) AutoVouch(ctx context.Context, id uuid.UUID, reason string, rules Rules) error {
	return pgx.BeginFunc(ctx, r.pg, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO vouches (voucher_id, vouchee_id, description, autovouch, date)
VALUES (NULL, $1, $2, true, now())`, id, reason); err != nil {
			return fmt.Errorf("insert autovouch: %w", err)
		}
		return refreshVouchState(ctx, tx, id, rules)
	})
}

// Vouch lets voucher vouch for the profile with voucheeUsername, enforcing
// CheckVouch inside one transaction. The vouchee row is locked so concurrent
// vouches cannot exceed the limit.
func (r *Repo) Vouch(ctx context.Context, voucher *Profile, voucheeUsername, description string, rules Rules) (*Profile, error) {
	var voucheeID uuid.UUID
	err := pgx.BeginFunc(ctx, r.pg, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT id FROM profiles WHERE username = $1 FOR UPDATE`, voucheeUsername).Scan(&voucheeID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		vouchee, err := scanProfile(tx.QueryRow(ctx, selectProfile+` WHERE p.id = $1`, voucheeID))
		if err != nil {
			return err
		}

		var already bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM vouches WHERE voucher_id = $1 AND vouchee_id = $2)`,
			voucher.ID, vouchee.ID).Scan(&already); err != nil {
			return err
		}
		if err := CheckVouch(voucher, vouchee, already, rules); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
INSERT INTO vouches (voucher_id, vouchee_id, description, autovouch, date)
VALUES ($1, $2, $3, false, now())`, voucher.ID, vouchee.ID, description); err != nil {
			return fmt.Errorf("insert vouch: %w", err)
		}
		return refreshVouchState(ctx, tx, vouchee.ID, rules)
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, voucheeID)
}

func refreshVouchState(ctx context.Context, tx pgx.Tx, id uuid.UUID, rules Rules) error {
	const q = `
UPDATE profiles p
SET is_vouched = c.n > 0,
    can_vouch  = c.n >= $2,
    updated_at = now()
FROM (SELECT count(*) AS n FROM vouches WHERE vouchee_id = $1) c
WHERE p.id = $1`
	_, err := tx.Exec(ctx, q, id, rules.CanVouchThreshold)
	return err
}

// Ping reports whether the database answers.
func (r *Repo) Ping(ctx context.Context) error {
	return r.pg.Ping(ctx)
}
