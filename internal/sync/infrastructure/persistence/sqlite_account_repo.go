package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/skalley/caldrift/internal/sync/domain"
	"github.com/google/uuid"
)

// SQLiteAccountRepository implements AccountRepository using SQLite.
type SQLiteAccountRepository struct {
	db *sql.DB
}

// NewSQLiteAccountRepository creates a new SQLite account repository.
func NewSQLiteAccountRepository(db *sql.DB) *SQLiteAccountRepository {
	return &SQLiteAccountRepository{db: db}
}

// Save persists an account (create or update).
func (r *SQLiteAccountRepository) Save(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (
			id, email, provider, credential, credential_expires_at,
			color, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			provider = excluded.provider,
			credential = excluded.credential,
			credential_expires_at = excluded.credential_expires_at,
			color = excluded.color,
			updated_at = excluded.updated_at
	`

	var expiresAt *string
	if !account.CredentialExpiresAt().IsZero() {
		t := account.CredentialExpiresAt().Format(time.RFC3339)
		expiresAt = &t
	}

	_, err := r.db.ExecContext(ctx, query,
		account.ID().String(),
		account.Email(),
		account.Provider(),
		account.Credential(),
		expiresAt,
		account.Color(),
		account.CreatedAt().Format(time.RFC3339),
		account.UpdatedAt().Format(time.RFC3339),
	)
	return err
}

// FindByID finds an account by ID.
func (r *SQLiteAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `
		SELECT id, email, provider, credential, credential_expires_at,
			   color, created_at, updated_at
		FROM accounts
		WHERE id = ?
	`
	row := r.db.QueryRowContext(ctx, query, id.String())
	return r.scanAccount(row)
}

// FindByEmail finds an account by email.
func (r *SQLiteAccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT id, email, provider, credential, credential_expires_at,
			   color, created_at, updated_at
		FROM accounts
		WHERE email = ?
	`
	row := r.db.QueryRowContext(ctx, query, email)
	return r.scanAccount(row)
}

// FindAll returns every known account.
func (r *SQLiteAccountRepository) FindAll(ctx context.Context) ([]*domain.Account, error) {
	query := `
		SELECT id, email, provider, credential, credential_expires_at,
			   color, created_at, updated_at
		FROM accounts
		ORDER BY email
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := r.scanAccountRows(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// Delete removes an account; owned rows cascade.
func (r *SQLiteAccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM accounts WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id.String())
	return err
}

func (r *SQLiteAccountRepository) scanAccount(row *sql.Row) (*domain.Account, error) {
	var (
		idStr        string
		email        string
		provider     string
		credential   []byte
		expiresAtStr sql.NullString
		color        string
		createdAtStr string
		updatedAtStr string
	)

	err := row.Scan(&idStr, &email, &provider, &credential, &expiresAtStr, &color, &createdAtStr, &updatedAtStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return r.buildAccount(idStr, email, provider, credential, expiresAtStr, color, createdAtStr, updatedAtStr)
}

func (r *SQLiteAccountRepository) scanAccountRows(rows *sql.Rows) (*domain.Account, error) {
	var (
		idStr        string
		email        string
		provider     string
		credential   []byte
		expiresAtStr sql.NullString
		color        string
		createdAtStr string
		updatedAtStr string
	)

	err := rows.Scan(&idStr, &email, &provider, &credential, &expiresAtStr, &color, &createdAtStr, &updatedAtStr)
	if err != nil {
		return nil, err
	}

	return r.buildAccount(idStr, email, provider, credential, expiresAtStr, color, createdAtStr, updatedAtStr)
}

func (r *SQLiteAccountRepository) buildAccount(
	idStr, email, provider string,
	credential []byte,
	expiresAtStr sql.NullString,
	color, createdAtStr, updatedAtStr string,
) (*domain.Account, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, err
	}
	updatedAt, err := time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, err
	}

	var expiresAt time.Time
	if expiresAtStr.Valid {
		expiresAt, err = time.Parse(time.RFC3339, expiresAtStr.String)
		if err != nil {
			return nil, err
		}
	}

	return domain.RehydrateAccount(id, email, provider, credential, expiresAt, color, createdAt, updatedAt), nil
}
