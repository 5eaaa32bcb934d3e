package models

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"soul-card-backend/internal/apperr"
)

// ApplicationStatus is the lifecycle state of an application
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "pending"
	StatusFollowUp ApplicationStatus = "follow_up"
	StatusAnswered ApplicationStatus = "answered"
	StatusApproved ApplicationStatus = "approved"
	StatusRejected ApplicationStatus = "rejected"
)

// MaxFollowUpQuestions caps a single round of follow-up questions
const MaxFollowUpQuestions = 5

// Valid reports whether s is one of the five known states
func (s ApplicationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusFollowUp, StatusAnswered, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// AwaitsOwner reports whether the owner is expected to act
func (s ApplicationStatus) AwaitsOwner() bool {
	return s == StatusPending || s == StatusAnswered
}

var (
	ErrNotOwner          = apperr.Forbidden("you are not allowed to handle this application")
	ErrNotApplicant      = apperr.Forbidden("only the applicant can answer these questions")
	ErrNotAwaitingOwner  = apperr.Conflict("this application is not waiting for your decision")
	ErrNotAwaitingAnswer = apperr.Conflict("this application has no open follow-up questions")
	ErrNoQuestions       = apperr.Validation("please ask at least one question")
	ErrTooManyQuestions  = apperr.Validationf("you can ask at most %d questions at a time", MaxFollowUpQuestions)
	ErrEmptyAnswer       = apperr.Validation("please answer every question")
)

// FollowUp is one round of extra questions from the owner
type FollowUp struct {
	Questions []string  `json:"questions"`
	Answers   []string  `json:"answers"`
	CreatedAt time.Time `json:"created_at"`
}

// FollowUpLog is append-only; only the last entry can receive answers.
type FollowUpLog []FollowUp

// Len returns the number of rounds
func (l FollowUpLog) Len() int {
	return len(l)
}

// Last returns the most recent round
func (l FollowUpLog) Last() (FollowUp, bool) {
	if len(l) == 0 {
		return FollowUp{}, false
	}
	return l[len(l)-1], true
}

// Append adds a round with no answers and returns its index
func (l *FollowUpLog) Append(questions []string, at time.Time) int {
	*l = append(*l, FollowUp{
		Questions: questions,
		Answers:   []string{},
		CreatedAt: at,
	})
	return len(*l) - 1
}

// SetAnswers stores answers on round i
func (l FollowUpLog) SetAnswers(i int, answers []string) error {
	if i < 0 || i >= len(l) {
		return fmt.Errorf("follow-up index %d out of range [0,%d)", i, len(l))
	}
	if len(answers) != len(l[i].Questions) {
		return apperr.Validationf("expected %d answers, got %d", len(l[i].Questions), len(answers))
	}
	l[i].Answers = answers
	return nil
}

// Application is one applicant's request to connect with a card owner
type Application struct {
	ID              string            `json:"id"`
	ProfileID       string            `json:"profile_id"`
	TargetUserID    string            `json:"target_user_id"`
	ApplicantUserID *string           `json:"applicant_user_id,omitempty"`
	ApplicantName   string            `json:"applicant_name"`
	ApplicantWechat string            `json:"applicant_wechat"`
	ApplicantEmail  string            `json:"applicant_email"`
	ApplicantPhone  string            `json:"applicant_phone"`
	Questions       []string          `json:"questions"`
	Answers         []string          `json:"answers"`
	FollowUps       FollowUpLog       `json:"follow_ups"`
	Status          ApplicationStatus `json:"status"`
	ReplyMessage    *string           `json:"reply_message,omitempty"`
	AccessTokenHash string            `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// ApplicationEntry is an application listed together with the card it targets
type ApplicationEntry struct {
	Application
	Profile          ProfileSummary    `json:"profile"`
	ApplicantProfile *ApplicantProfile `json:"applicant_profile,omitempty"`
}

// IsOwner reports whether userID owns the target card
func (a *Application) IsOwner(userID string) bool {
	return userID != "" && a.TargetUserID == userID
}

// IsApplicant reports whether userID authored the application
func (a *Application) IsApplicant(userID string) bool {
	return userID != "" && a.ApplicantUserID != nil && *a.ApplicantUserID == userID
}

// Approve moves the application to approved
func (a *Application) Approve(actorID string, reply *string, now time.Time) error {
	return a.decide(actorID, StatusApproved, reply, now)
}

// Reject moves the application to rejected
func (a *Application) Reject(actorID string, reply *string, now time.Time) error {
	return a.decide(actorID, StatusRejected, reply, now)
}

func (a *Application) decide(actorID string, to ApplicationStatus, reply *string, now time.Time) error {
	if !a.IsOwner(actorID) {
		return ErrNotOwner
	}
	if !a.Status.AwaitsOwner() {
		return ErrNotAwaitingOwner
	}
	a.Status = to
	a.ReplyMessage = reply
	a.UpdatedAt = now
	return nil
}

// AskFollowUp appends a round of questions. Blank questions are dropped.
func (a *Application) AskFollowUp(actorID string, questions []string, now time.Time) error {
	if !a.IsOwner(actorID) {
		return ErrNotOwner
	}
	if !a.Status.AwaitsOwner() {
		return ErrNotAwaitingOwner
	}

	cleaned := CleanList(questions)
	if len(cleaned) == 0 {
		return ErrNoQuestions
	}
	if len(cleaned) > MaxFollowUpQuestions {
		return ErrTooManyQuestions
	}

	a.FollowUps.Append(cleaned, now)
	a.Status = StatusFollowUp
	a.UpdatedAt = now
	return nil
}

// AnswerFollowUp answers the most recent round of questions
func (a *Application) AnswerFollowUp(actorID string, answers []string, now time.Time) error {
	if !a.IsApplicant(actorID) {
		return ErrNotApplicant
	}
	return a.answerFollowUp(answers, now)
}

// AnswerFollowUpWithToken is AnswerFollowUp for applicants identified by the
// access token handed out at submit, e.g. those without an account
func (a *Application) AnswerFollowUpWithToken(accessToken string, answers []string, now time.Time) error {
	if !a.HoldsAccessToken(accessToken) {
		return ErrNotApplicant
	}
	return a.answerFollowUp(answers, now)
}

func (a *Application) answerFollowUp(answers []string, now time.Time) error {
	if a.Status != StatusFollowUp || a.FollowUps.Len() == 0 {
		return ErrNotAwaitingAnswer
	}

	trimmed := make([]string, len(answers))
	for i, ans := range answers {
		trimmed[i] = strings.TrimSpace(ans)
		if trimmed[i] == "" {
			return ErrEmptyAnswer
		}
	}
	if err := a.FollowUps.SetAnswers(a.FollowUps.Len()-1, trimmed); err != nil {
		return err
	}

	a.Status = StatusAnswered
	a.UpdatedAt = now
	return nil
}

// HoldsAccessToken reports whether token is the application's access token
func (a *Application) HoldsAccessToken(token string) bool {
	if token == "" || a.AccessTokenHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashAccessToken(token)), []byte(a.AccessTokenHash)) == 1
}

// HashAccessToken is the stored form of an application access token
func HashAccessToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ContactsRevealed reports whether the owner may see the applicant's contact details
func (a *Application) ContactsRevealed() bool {
	return a.Status == StatusApproved
}

// Redacted returns a copy safe to show the card owner
func (a *Application) Redacted() Application {
	out := *a
	if !a.ContactsRevealed() {
		out.ApplicantWechat = MaskContact(a.ApplicantWechat)
		out.ApplicantEmail = MaskContact(a.ApplicantEmail)
		out.ApplicantPhone = MaskContact(a.ApplicantPhone)
	}
	return out
}

// Identities returns every dedupe key of the applicant
func (a *Application) Identities() []ApplicantIdentity {
	return ResolveIdentities(a.ApplicantUserID, a.ApplicantWechat, a.ApplicantEmail)
}

// MaskContact replaces every rune with '*', never returning fewer than two.
// Empty values stay empty; the result never equals a non-empty input.
func MaskContact(s string) string {
	if s == "" {
		return ""
	}
	n := utf8.RuneCountInString(s)
	if n < 2 {
		n = 2
	}
	masked := strings.Repeat("*", n)
	if masked == s {
		masked += "*"
	}
	return masked
}

// CleanList trims entries and drops blank ones
func CleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := strings.TrimSpace(item); v != "" {
			out = append(out, v)
		}
	}
	return out
}
