package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"soul-card-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

const applicationColumns = `
	a.id, a.profile_id, a.target_user_id, a.applicant_user_id, a.applicant_name,
	a.applicant_wechat, a.applicant_email, a.applicant_phone, a.questions, a.answers,
	a.follow_ups, a.status, a.reply_message, a.access_token_hash, a.created_at, a.updated_at`

// ApplicationRepository handles database operations for applications
type ApplicationRepository struct {
	db DBTX
}

// NewApplicationRepository creates a new application repository
func NewApplicationRepository(db DBTX) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts a pending application. The partial unique indexes on
// (profile_id, applicant identity) turn concurrent duplicates into ErrDuplicate.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	followUps, err := json.Marshal(nonNilFollowUps(app.FollowUps))
	if err != nil {
		return fmt.Errorf("failed to encode follow-ups: %w", err)
	}

	query := `
		INSERT INTO applications (
			id, profile_id, target_user_id, applicant_user_id, applicant_name,
			applicant_wechat, applicant_email, applicant_phone, questions, answers,
			follow_ups, status, reply_message, access_token_hash, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.db.Exec(ctx, query,
		app.ID, app.ProfileID, app.TargetUserID, app.ApplicantUserID, app.ApplicantName,
		app.ApplicantWechat, app.ApplicantEmail, app.ApplicantPhone, app.Questions, app.Answers,
		followUps, string(app.Status), app.ReplyMessage, app.AccessTokenHash, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("application already exists: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// GetByID retrieves an application by ID
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications a WHERE a.id = $1`
	app, err := scanApplication(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, func(err error) error {
			return fmt.Errorf("failed to get application: %w", err)
		})
	}
	return app, nil
}

// ExistsForIdentities reports whether any application to the profile matches
// one of the applicant's identity keys
func (r *ApplicationRepository) ExistsForIdentities(ctx context.Context, profileID string, ids []models.ApplicantIdentity) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}

	var userID, wechat, email *string
	for _, id := range ids {
		v := id.Value
		switch id.Kind {
		case models.IdentityUser:
			userID = &v
		case models.IdentityWechat:
			wechat = &v
		case models.IdentityEmail:
			email = &v
		}
	}

	query := `
		SELECT EXISTS(
			SELECT 1 FROM applications
			WHERE profile_id = $1
			  AND (applicant_user_id = $2 OR lower(applicant_wechat) = $3 OR lower(applicant_email) = $4)
		)
	`
	var exists bool
	if err := r.db.QueryRow(ctx, query, profileID, userID, wechat, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existing application: %w", err)
	}
	return exists, nil
}

// SaveTransition writes the mutable state of app, but only if the stored
// status is still one of expected. Otherwise ErrStaleState is returned.
func (r *ApplicationRepository) SaveTransition(ctx context.Context, app *models.Application, expected ...models.ApplicationStatus) error {
	followUps, err := json.Marshal(nonNilFollowUps(app.FollowUps))
	if err != nil {
		return fmt.Errorf("failed to encode follow-ups: %w", err)
	}

	statuses := make([]string, len(expected))
	for i, s := range expected {
		statuses[i] = string(s)
	}

	query := `
		UPDATE applications
		SET status = $2, follow_ups = $3, reply_message = $4, updated_at = $5
		WHERE id = $1 AND status = ANY($6)
	`
	result, err := r.db.Exec(ctx, query,
		app.ID, string(app.Status), followUps, app.ReplyMessage, app.UpdatedAt, statuses,
	)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

// ListReceived returns applications to the owner's card, newest first, with
// the applicant's own card summary when the applicant is registered
func (r *ApplicationRepository) ListReceived(ctx context.Context, ownerID string) ([]*models.ApplicationEntry, error) {
	query := `
		SELECT ` + applicationColumns + `,
			p.nickname, p.title, p.theme_color,
			ap.nickname, ap.title, ap.tags, ap.about_me, ap.looking_for
		FROM applications a
		JOIN profiles p ON p.id = a.profile_id
		LEFT JOIN profiles ap ON ap.user_id = a.applicant_user_id
		WHERE a.target_user_id = $1
		ORDER BY a.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list received applications: %w", err)
	}
	defer rows.Close()

	var entries []*models.ApplicationEntry
	for rows.Next() {
		var (
			entry        models.ApplicationEntry
			raw          rawApplication
			theme        string
			apNickname   *string
			apTitle      *string
			apTags       []string
			apAboutMe    []string
			apLookingFor []string
		)
		dest := append(applicationDest(&entry.Application, &raw),
			&entry.Profile.Nickname, &entry.Profile.Title, &theme,
			&apNickname, &apTitle, &apTags, &apAboutMe, &apLookingFor,
		)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		if err := decodeApplication(&entry.Application, &raw); err != nil {
			return nil, err
		}
		entry.Profile.ThemeColor = models.ThemeColor(theme)
		if apNickname != nil {
			entry.ApplicantProfile = &models.ApplicantProfile{
				Nickname:   *apNickname,
				Title:      deref(apTitle),
				Tags:       apTags,
				AboutMe:    apAboutMe,
				LookingFor: apLookingFor,
			}
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}
	return entries, nil
}

// ListSent returns the applications a user authored, newest first
func (r *ApplicationRepository) ListSent(ctx context.Context, applicantID string) ([]*models.ApplicationEntry, error) {
	query := `
		SELECT ` + applicationColumns + `, p.nickname, p.title, p.theme_color
		FROM applications a
		JOIN profiles p ON p.id = a.profile_id
		WHERE a.applicant_user_id = $1
		ORDER BY a.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, applicantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent applications: %w", err)
	}
	defer rows.Close()

	var entries []*models.ApplicationEntry
	for rows.Next() {
		var entry models.ApplicationEntry
		var raw rawApplication
		var theme string
		dest := append(applicationDest(&entry.Application, &raw),
			&entry.Profile.Nickname, &entry.Profile.Title, &theme,
		)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		if err := decodeApplication(&entry.Application, &raw); err != nil {
			return nil, err
		}
		entry.Profile.ThemeColor = models.ThemeColor(theme)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}
	return entries, nil
}

// CountReceivedByStatus counts the owner's applications per status
func (r *ApplicationRepository) CountReceivedByStatus(ctx context.Context, ownerID string) (map[models.ApplicationStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM applications WHERE target_user_id = $1 GROUP BY status`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ApplicationStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.ApplicationStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}
	return counts, nil
}

// CountSent returns how many applications a user authored and how many of
// them wait for the user's follow-up answers
func (r *ApplicationRepository) CountSent(ctx context.Context, applicantID string) (sent, needAnswer int, err error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'follow_up')
		FROM applications
		WHERE applicant_user_id = $1
	`
	if err := r.db.QueryRow(ctx, query, applicantID).Scan(&sent, &needAnswer); err != nil {
		return 0, 0, fmt.Errorf("failed to count sent applications: %w", err)
	}
	return sent, needAnswer, nil
}

// rawApplication holds the columns that need decoding after Scan
type rawApplication struct {
	followUps []byte
	status    string
}

// applicationDest returns scan targets for applicationColumns
func applicationDest(app *models.Application, raw *rawApplication) []any {
	return []any{
		&app.ID, &app.ProfileID, &app.TargetUserID, &app.ApplicantUserID, &app.ApplicantName,
		&app.ApplicantWechat, &app.ApplicantEmail, &app.ApplicantPhone, &app.Questions, &app.Answers,
		&raw.followUps, &raw.status, &app.ReplyMessage, &app.AccessTokenHash, &app.CreatedAt, &app.UpdatedAt,
	}
}

func scanApplication(row pgx.Row) (*models.Application, error) {
	var app models.Application
	var raw rawApplication
	if err := row.Scan(applicationDest(&app, &raw)...); err != nil {
		return nil, err
	}
	if err := decodeApplication(&app, &raw); err != nil {
		return nil, err
	}
	return &app, nil
}

func decodeApplication(app *models.Application, raw *rawApplication) error {
	app.Status = models.ApplicationStatus(raw.status)
	app.FollowUps = models.FollowUpLog{}
	if len(raw.followUps) > 0 {
		if err := json.Unmarshal(raw.followUps, &app.FollowUps); err != nil {
			return fmt.Errorf("failed to decode follow-ups of %s: %w", app.ID, err)
		}
	}
	return nil
}

func nonNilFollowUps(l models.FollowUpLog) models.FollowUpLog {
	if l == nil {
		return models.FollowUpLog{}
	}
	return l
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
