package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"soul-card-backend/internal/apperr"
	"soul-card-backend/internal/models"
	"soul-card-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrProfileNotFound = apperr.NotFound("you have not created a card yet")
	ErrCardNotFound    = apperr.NotFound("this card does not exist or is not public")
)

// avatarExtensions maps accepted upload types to object key extensions
var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ProfileUpdate is a partial card edit. Nil fields are left unchanged.
type ProfileUpdate struct {
	Nickname      *string            `json:"nickname" validate:"omitnil,min=1,max=50"`
	Title         *string            `json:"title" validate:"omitnil,max=100"`
	Tags          []string           `json:"tags" validate:"omitnil,max=10,dive,max=30"`
	AboutMe       []string           `json:"about_me" validate:"omitnil,max=10,dive,max=200"`
	LookingFor    []string           `json:"looking_for" validate:"omitnil,max=10,dive,max=200"`
	Questions     []string           `json:"questions" validate:"omitnil,min=1,max=5,dive,max=200"`
	ContactWechat *string            `json:"contact_wechat" validate:"omitnil,max=50"`
	ContactEmail  *string            `json:"contact_email" validate:"omitempty,email,max=254"`
	ThemeColor    *models.ThemeColor `json:"theme_color" validate:"omitnil,oneof=zinc blue rose amber emerald violet"`
	Gender        *models.Gender     `json:"gender" validate:"omitnil,oneof=Male Female Non-binary Any"`
	TargetGender  *models.Gender     `json:"target_gender" validate:"omitnil,oneof=Male Female Non-binary Any"`
	IsPublic      *bool              `json:"is_public"`
}

// normalize trims strings and drops blank list entries
func (u *ProfileUpdate) normalize() {
	for _, s := range []*string{u.Nickname, u.Title, u.ContactWechat, u.ContactEmail} {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
	if u.Tags != nil {
		u.Tags = models.CleanList(u.Tags)
	}
	if u.AboutMe != nil {
		u.AboutMe = models.CleanList(u.AboutMe)
	}
	if u.LookingFor != nil {
		u.LookingFor = models.CleanList(u.LookingFor)
	}
	if u.Questions != nil {
		u.Questions = models.CleanList(u.Questions)
	}
}

func (u *ProfileUpdate) apply(p *models.Profile) {
	if u.Nickname != nil {
		p.Nickname = *u.Nickname
	}
	if u.Title != nil {
		p.Title = *u.Title
	}
	if u.Tags != nil {
		p.Tags = u.Tags
	}
	if u.AboutMe != nil {
		p.AboutMe = u.AboutMe
	}
	if u.LookingFor != nil {
		p.LookingFor = u.LookingFor
	}
	if u.Questions != nil {
		p.Questions = u.Questions
	}
	if u.ContactWechat != nil {
		p.ContactWechat = *u.ContactWechat
	}
	if u.ContactEmail != nil {
		p.ContactEmail = *u.ContactEmail
	}
	if u.ThemeColor != nil {
		p.ThemeColor = *u.ThemeColor
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.TargetGender != nil {
		p.TargetGender = *u.TargetGender
	}
	if u.IsPublic != nil {
		p.IsPublic = *u.IsPublic
	}
}

// AvatarUpload is a presigned PUT for a new avatar
type AvatarUpload struct {
	UploadURL string `json:"upload_url"`
	AvatarKey string `json:"avatar_key"`
	ExpiresIn int    `json:"expires_in"`
}

// ProfileService handles card reads and edits
type ProfileService struct {
	profiles ProfileRepository
	avatars  AvatarStorage
	now      Clock
}

// NewProfileService creates a new profile service. avatars may be nil when
// object storage is not configured.
func NewProfileService(profiles ProfileRepository, avatars AvatarStorage) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		avatars:  avatars,
		now:      utcNow,
	}
}

// GetMine returns the card owned by userID
func (s *ProfileService) GetMine(ctx context.Context, userID string) (*models.Profile, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return profile, nil
}

// Update applies a partial edit to the caller's card. The share code never changes.
func (s *ProfileService) Update(ctx context.Context, userID string, upd ProfileUpdate) (*models.Profile, error) {
	upd.normalize()
	if err := validateInput(upd); err != nil {
		return nil, err
	}

	profile, err := s.GetMine(ctx, userID)
	if err != nil {
		return nil, err
	}

	upd.apply(profile)
	profile.UpdatedAt = s.now()

	if err := s.profiles.Update(ctx, profile); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	log.Info().Str("user_id", userID).Str("profile_id", profile.ID).Msg("Profile updated")
	return profile, nil
}

// GetPublicCard returns the public view of a card. Private and missing
// cards look the same to visitors.
func (s *ProfileService) GetPublicCard(ctx context.Context, shareCode string) (*models.PublicCard, error) {
	profile, err := s.profiles.GetByShareCode(ctx, strings.ToUpper(strings.TrimSpace(shareCode)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to load card: %w", err)
	}
	if !profile.IsPublic {
		return nil, ErrCardNotFound
	}

	ownerName, err := s.profiles.GetOwnerName(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load card owner: %w", err)
	}

	card := profile.PublicCard(ownerName)
	return &card, nil
}

// CreateAvatarUpload presigns an upload for a new avatar and points the
// caller's card at it
func (s *ProfileService) CreateAvatarUpload(ctx context.Context, userID, contentType string) (*AvatarUpload, error) {
	if s.avatars == nil {
		return nil, apperr.New(apperr.KindConflict, "avatar uploads are not available")
	}

	ext, ok := avatarExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return nil, apperr.Validation("avatar must be a JPEG, PNG or WebP image")
	}

	profile, err := s.GetMine(ctx, userID)
	if err != nil {
		return nil, err
	}

	// avatars/{profile_id}/{uuid}.{ext}
	key := fmt.Sprintf("avatars/%s/%s.%s", profile.ID, uuid.New().String(), ext)
	url, err := s.avatars.PresignPut(ctx, key, contentType)
	if err != nil {
		return nil, err
	}

	if err := s.profiles.UpdateAvatarKey(ctx, profile.ID, key); err != nil {
		return nil, fmt.Errorf("failed to save avatar key: %w", err)
	}

	return &AvatarUpload{
		UploadURL: url,
		AvatarKey: key,
		ExpiresIn: int(avatarUploadTTL.Seconds()),
	}, nil
}
