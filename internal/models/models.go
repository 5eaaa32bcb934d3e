package models

import "time"

// User represents a registered account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	PushToken    *string   `json:"push_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Gender is used both for the owner and for whom they are looking for
type Gender string

const (
	GenderMale      Gender = "Male"
	GenderFemale    Gender = "Female"
	GenderNonBinary Gender = "Non-binary"
	GenderAny       Gender = "Any"
)

// Valid reports whether g is a known gender
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderNonBinary, GenderAny:
		return true
	}
	return false
}

// ThemeColor selects the card background
type ThemeColor string

const (
	ThemeZinc    ThemeColor = "zinc"
	ThemeBlue    ThemeColor = "blue"
	ThemeRose    ThemeColor = "rose"
	ThemeAmber   ThemeColor = "amber"
	ThemeEmerald ThemeColor = "emerald"
	ThemeViolet  ThemeColor = "violet"
)

// Valid reports whether c is a known theme
func (c ThemeColor) Valid() bool {
	switch c {
	case ThemeZinc, ThemeBlue, ThemeRose, ThemeAmber, ThemeEmerald, ThemeViolet:
		return true
	}
	return false
}

// Profile is the shareable card owned by exactly one user
type Profile struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Nickname      string     `json:"nickname"`
	Title         string     `json:"title"`
	Tags          []string   `json:"tags"`
	AboutMe       []string   `json:"about_me"`
	LookingFor    []string   `json:"looking_for"`
	Questions     []string   `json:"questions"`
	ContactWechat string     `json:"contact_wechat"`
	ContactEmail  string     `json:"contact_email"`
	ThemeColor    ThemeColor `json:"theme_color"`
	Gender        Gender     `json:"gender"`
	TargetGender  Gender     `json:"target_gender"`
	ShareCode     string     `json:"share_code"`
	IsPublic      bool       `json:"is_public"`
	AvatarKey     *string    `json:"avatar_key,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewDefaultProfile builds the profile created alongside a new user
func NewDefaultProfile(id, userID, nickname, shareCode string, now time.Time) *Profile {
	return &Profile{
		ID:           id,
		UserID:       userID,
		Nickname:     nickname,
		Tags:         []string{},
		AboutMe:      []string{},
		LookingFor:   []string{},
		Questions:    []string{},
		ThemeColor:   ThemeZinc,
		Gender:       GenderAny,
		TargetGender: GenderAny,
		ShareCode:    shareCode,
		IsPublic:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// PublicCard is what visitors of a share link see. Contact fields are never included.
type PublicCard struct {
	ID           string     `json:"id"`
	OwnerName    string     `json:"owner_name"`
	Nickname     string     `json:"nickname"`
	Title        string     `json:"title"`
	Tags         []string   `json:"tags"`
	AboutMe      []string   `json:"about_me"`
	LookingFor   []string   `json:"looking_for"`
	Questions    []string   `json:"questions"`
	ThemeColor   ThemeColor `json:"theme_color"`
	Gender       Gender     `json:"gender"`
	TargetGender Gender     `json:"target_gender"`
	ShareCode    string     `json:"share_code"`
	AvatarKey    *string    `json:"avatar_key,omitempty"`
}

// PublicCard strips the profile down to its public fields
func (p *Profile) PublicCard(ownerName string) PublicCard {
	return PublicCard{
		ID:           p.ID,
		OwnerName:    ownerName,
		Nickname:     p.Nickname,
		Title:        p.Title,
		Tags:         p.Tags,
		AboutMe:      p.AboutMe,
		LookingFor:   p.LookingFor,
		Questions:    p.Questions,
		ThemeColor:   p.ThemeColor,
		Gender:       p.Gender,
		TargetGender: p.TargetGender,
		ShareCode:    p.ShareCode,
		AvatarKey:    p.AvatarKey,
	}
}

// ProfileSummary is the short card header shown next to an application
type ProfileSummary struct {
	Nickname   string     `json:"nickname"`
	Title      string     `json:"title"`
	ThemeColor ThemeColor `json:"theme_color"`
}

// ApplicantProfile lets an owner screen a registered applicant by their own card
type ApplicantProfile struct {
	Nickname   string   `json:"nickname"`
	Title      string   `json:"title"`
	Tags       []string `json:"tags"`
	AboutMe    []string `json:"about_me"`
	LookingFor []string `json:"looking_for"`
}
