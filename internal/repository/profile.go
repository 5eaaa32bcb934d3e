package repository

import (
	"context"
	"fmt"

	"soul-card-backend/internal/models"
)

const profileColumns = `
	id, user_id, nickname, title, tags, about_me, looking_for, questions,
	contact_wechat, contact_email, theme_color, gender, target_gender,
	share_code, is_public, avatar_key, created_at, updated_at`

// ProfileRepository handles database operations for profiles
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create inserts a profile
func (r *ProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	query := `INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.UserID, p.Nickname, p.Title, p.Tags, p.AboutMe, p.LookingFor, p.Questions,
		p.ContactWechat, p.ContactEmail, string(p.ThemeColor), string(p.Gender), string(p.TargetGender),
		p.ShareCode, p.IsPublic, p.AvatarKey, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("profile or share code already exists: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by ID
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return r.scanOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

// GetByUserID retrieves the profile owned by a user
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	return r.scanOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
}

// GetByShareCode retrieves a profile by its public share code
func (r *ProfileRepository) GetByShareCode(ctx context.Context, code string) (*models.Profile, error) {
	return r.scanOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE share_code = $1`, code)
}

func (r *ProfileRepository) scanOne(ctx context.Context, query string, arg any) (*models.Profile, error) {
	var p models.Profile
	var theme, gender, targetGender string
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.UserID, &p.Nickname, &p.Title, &p.Tags, &p.AboutMe, &p.LookingFor, &p.Questions,
		&p.ContactWechat, &p.ContactEmail, &theme, &gender, &targetGender,
		&p.ShareCode, &p.IsPublic, &p.AvatarKey, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, func(err error) error {
			return fmt.Errorf("failed to get profile: %w", err)
		})
	}
	p.ThemeColor = models.ThemeColor(theme)
	p.Gender = models.Gender(gender)
	p.TargetGender = models.Gender(targetGender)
	return &p, nil
}

// ShareCodeExists checks if a share code is already taken
func (r *ProfileRepository) ShareCodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM profiles WHERE share_code = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check share code existence: %w", err)
	}
	return exists, nil
}

// Update saves the owner-editable fields. share_code and user_id are never written.
func (r *ProfileRepository) Update(ctx context.Context, p *models.Profile) error {
	query := `
		UPDATE profiles SET
			nickname = $2, title = $3, tags = $4, about_me = $5, looking_for = $6, questions = $7,
			contact_wechat = $8, contact_email = $9, theme_color = $10, gender = $11,
			target_gender = $12, is_public = $13, updated_at = $14
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query,
		p.ID, p.Nickname, p.Title, p.Tags, p.AboutMe, p.LookingFor, p.Questions,
		p.ContactWechat, p.ContactEmail, string(p.ThemeColor), string(p.Gender),
		string(p.TargetGender), p.IsPublic, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAvatarKey points the profile at a new avatar object
func (r *ProfileRepository) UpdateAvatarKey(ctx context.Context, profileID, key string) error {
	query := `UPDATE profiles SET avatar_key = $1, updated_at = now() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, key, profileID)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOwnerName returns the display name of the profile's owner
func (r *ProfileRepository) GetOwnerName(ctx context.Context, profileID string) (string, error) {
	query := `SELECT u.name FROM profiles p JOIN users u ON u.id = p.user_id WHERE p.id = $1`
	var name string
	if err := r.db.QueryRow(ctx, query, profileID).Scan(&name); err != nil {
		return "", notFoundOr(err, func(err error) error {
			return fmt.Errorf("failed to get owner name: %w", err)
		})
	}
	return name, nil
}
