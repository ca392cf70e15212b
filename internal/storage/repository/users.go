package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/beauty-clinic/internal/lib/apperr"
	"github.com/magabrotheeeer/beauty-clinic/internal/models"
)

const userColumns = `uid, email, username, password_hash, role, full_name, phone, stripe_customer_id, created_at`

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	var role string
	var customerID sql.NullString
	if err := row.Scan(&u.UID, &u.Email, &u.Username, &u.PasswordHash, &role,
		&u.FullName, &u.Phone, &customerID, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.StripeCustomerID = stringPtr(customerID)
	return u, nil
}

// CreateUser сохраняет нового пользователя и возвращает его UID.
func (s *Storage) CreateUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.CreateUser"
	if err := checkCtx(ctx, op); err != nil {
		return "", err
	}

	var uid string
	query := `INSERT INTO users (uid, email, username, password_hash, role, full_name, phone)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING uid`
	err := s.conn(ctx).QueryRowContext(ctx, query,
		user.UID, user.Email, user.Username, user.PasswordHash, string(user.Role),
		user.FullName, user.Phone).Scan(&uid)
	if isUniqueViolation(err) {
		return "", apperr.Validation("username or email is already taken")
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return uid, nil
}

// GetUser возвращает пользователя по UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	row := s.conn(ctx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE uid = $1`, userUID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %s not found", userUID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUserByUsername возвращает пользователя по username или email. Если пользователя нет, возвращает nil, nil.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpdateUser обновляет контактные данные пользователя.
func (s *Storage) UpdateUser(ctx context.Context, user models.User) error {
	const op = "storage.UpdateUser"
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE users SET email = $2, full_name = $3, phone = $4 WHERE uid = $1`,
		user.UID, user.Email, user.FullName, user.Phone)
	if isUniqueViolation(err) {
		return apperr.Validation("email is already taken")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op, apperr.NotFound("user %s not found", user.UID))
}

// SetStripeCustomerID сохраняет идентификатор клиента платёжного шлюза.
func (s *Storage) SetStripeCustomerID(ctx context.Context, userUID, customerID string) error {
	const op = "storage.SetStripeCustomerID"
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE users SET stripe_customer_id = $2 WHERE uid = $1`, userUID, customerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return expectAffected(res, op, apperr.NotFound("user %s not found", userUID))
}

// ListUsers возвращает пользователей постранично.
func (s *Storage) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	const op = "storage.ListUsers"
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanUser)
}

// ListAdmins возвращает всех администраторов.
func (s *Storage) ListAdmins(ctx context.Context) ([]*models.User, error) {
	const op = "storage.ListAdmins"
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = 'admin' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return collect(rows, op, scanUser)
}

// GetAnamnesis возвращает анкету пользователя или nil, если её нет.
func (s *Storage) GetAnamnesis(ctx context.Context, userUID string) (*models.AnamnesisForm, error) {
	const op = "storage.GetAnamnesis"
	f := &models.AnamnesisForm{}
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT user_uid, allergies, medications, skin_type, conditions, notes, consent, created_at, updated_at
		FROM anamnesis_forms WHERE user_uid = $1`, userUID).
		Scan(&f.UserUID, &f.Allergies, &f.Medications, &f.SkinType, &f.Conditions, &f.Notes,
			&f.Consent, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}

// UpsertAnamnesis создаёт или перезаписывает анкету пользователя.
func (s *Storage) UpsertAnamnesis(ctx context.Context, f models.AnamnesisForm) (*models.AnamnesisForm, error) {
	const op = "storage.UpsertAnamnesis"
	out := &models.AnamnesisForm{}
	err := s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO anamnesis_forms (user_uid, allergies, medications, skin_type, conditions, notes, consent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_uid) DO UPDATE SET
			allergies = EXCLUDED.allergies,
			medications = EXCLUDED.medications,
			skin_type = EXCLUDED.skin_type,
			conditions = EXCLUDED.conditions,
			notes = EXCLUDED.notes,
			consent = EXCLUDED.consent,
			updated_at = now()
		RETURNING user_uid, allergies, medications, skin_type, conditions, notes, consent, created_at, updated_at`,
		f.UserUID, f.Allergies, f.Medications, f.SkinType, f.Conditions, f.Notes, f.Consent).
		Scan(&out.UserUID, &out.Allergies, &out.Medications, &out.SkinType, &out.Conditions, &out.Notes,
			&out.Consent, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func expectAffected(res sql.Result, op string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func collect[T any](rows *sql.Rows, op string, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}
