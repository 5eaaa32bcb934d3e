package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"soul-card-backend/internal/apperr"
	"soul-card-backend/internal/metrics"
	"soul-card-backend/internal/models"
	"soul-card-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrApplicationNotFound = apperr.NotFound("application not found")
	ErrSelfApplication     = apperr.Conflict("you cannot apply to your own card")
	ErrAlreadyApplied      = apperr.Conflict("you have already applied, please wait for a reply")
	ErrContactRequired     = apperr.Validation("please leave at least one way to contact you")
	ErrGuestNeedsContact   = apperr.Validation("without an account, please leave a WeChat ID or email")
	ErrConcurrentUpdate    = apperr.Conflict("this application was just updated, please refresh and try again")
	ErrCardNotReady        = apperr.Validation("this card is not accepting applications yet")
)

// SubmitInput is an application to a card
type SubmitInput struct {
	ApplicantName   string   `json:"applicant_name" validate:"max=50"`
	ApplicantWechat string   `json:"applicant_wechat" validate:"max=50"`
	ApplicantEmail  string   `json:"applicant_email" validate:"omitempty,email,max=254"`
	ApplicantPhone  string   `json:"applicant_phone" validate:"max=20"`
	Answers         []string `json:"answers"`
}

func (in *SubmitInput) normalize() {
	in.ApplicantName = strings.TrimSpace(in.ApplicantName)
	in.ApplicantWechat = strings.TrimSpace(in.ApplicantWechat)
	in.ApplicantEmail = strings.TrimSpace(in.ApplicantEmail)
	in.ApplicantPhone = strings.TrimSpace(in.ApplicantPhone)
	answers := make([]string, len(in.Answers))
	for i, a := range in.Answers {
		answers[i] = strings.TrimSpace(a)
	}
	in.Answers = answers
}

// SubmitResult is returned to the applicant. AccessToken lets them read the
// application and answer follow-ups without an account; it is shown only once.
type SubmitResult struct {
	Success       bool   `json:"success"`
	ApplicationID string `json:"application_id"`
	AccessToken   string `json:"access_token"`
}

// DecisionInput carries the owner's optional reply on approve or reject
type DecisionInput struct {
	ReplyMessage string `json:"reply_message" validate:"max=500"`
}

// DecisionResult is returned to the owner after approve or reject.
// ClipboardMessage is a ready-to-send text and is not stored.
type DecisionResult struct {
	Success          bool                     `json:"success"`
	Status           models.ApplicationStatus `json:"status"`
	ClipboardMessage string                   `json:"clipboard_message,omitempty"`
}

// Stats summarises a user's inbox and outbox
type Stats struct {
	Pending    int `json:"pending"`
	Approved   int `json:"approved"`
	Rejected   int `json:"rejected"`
	Total      int `json:"total"`
	Sent       int `json:"sent"`
	NeedAnswer int `json:"need_answer"`
}

// ApplicationService runs the application workflow
type ApplicationService struct {
	profiles     ProfileRepository
	applications ApplicationRepository
	notifier     Notifier
	now          Clock
}

// NewApplicationService creates a new application service
func NewApplicationService(profiles ProfileRepository, applications ApplicationRepository, notifier Notifier) *ApplicationService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ApplicationService{
		profiles:     profiles,
		applications: applications,
		notifier:     notifier,
		now:          utcNow,
	}
}

// Submit creates a pending application to the card behind shareCode.
// currentUserID is nil for visitors without an account.
func (s *ApplicationService) Submit(ctx context.Context, currentUserID *string, shareCode string, in SubmitInput) (result *SubmitResult, err error) {
	defer func() { metrics.RecordAction("submit", err) }()

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
	if currentUserID != nil && *currentUserID == profile.UserID {
		return nil, ErrSelfApplication
	}
	// a card without screening questions has nothing to apply to
	if len(profile.Questions) == 0 {
		return nil, ErrCardNotReady
	}

	in.normalize()
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.ApplicantWechat == "" && in.ApplicantEmail == "" && in.ApplicantPhone == "" {
		return nil, ErrContactRequired
	}
	if currentUserID == nil && in.ApplicantWechat == "" && in.ApplicantEmail == "" {
		return nil, ErrGuestNeedsContact
	}

	questions := append([]string{}, profile.Questions...)
	if len(in.Answers) != len(questions) {
		return nil, apperr.Validationf("please answer all %d questions", len(questions))
	}
	for _, a := range in.Answers {
		if a == "" {
			return nil, models.ErrEmptyAnswer
		}
	}

	identities := models.ResolveIdentities(currentUserID, in.ApplicantWechat, in.ApplicantEmail)
	exists, err := s.applications.ExistsForIdentities(ctx, profile.ID, identities)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyApplied
	}

	accessToken, err := newAccessToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	app := &models.Application{
		ID:              uuid.New().String(),
		ProfileID:       profile.ID,
		TargetUserID:    profile.UserID,
		ApplicantUserID: currentUserID,
		ApplicantName:   in.ApplicantName,
		ApplicantWechat: in.ApplicantWechat,
		ApplicantEmail:  in.ApplicantEmail,
		ApplicantPhone:  in.ApplicantPhone,
		Questions:       questions,
		Answers:         in.Answers,
		FollowUps:       models.FollowUpLog{},
		Status:          models.StatusPending,
		AccessTokenHash: models.HashAccessToken(accessToken),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// the unique indexes catch a concurrent submit that passed the check above
	if err := s.applications.Create(ctx, app); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyApplied
		}
		return nil, err
	}

	log.Info().
		Str("application_id", app.ID).
		Str("profile_id", profile.ID).
		Bool("guest", currentUserID == nil).
		Msg("Application submitted")

	s.notify(ctx, app.TargetUserID, models.StatusPending, EventApplicationReceived, app)

	return &SubmitResult{Success: true, ApplicationID: app.ID, AccessToken: accessToken}, nil
}

// ListReceived returns the owner's inbox, newest first. Contacts are masked
// until approval.
func (s *ApplicationService) ListReceived(ctx context.Context, ownerID string) ([]*models.ApplicationEntry, error) {
	entries, err := s.applications.ListReceived(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		e.Application = e.Redacted()
	}
	return nonNilEntries(entries), nil
}

// ListSent returns the applications the user authored, newest first
func (s *ApplicationService) ListSent(ctx context.Context, applicantID string) ([]*models.ApplicationEntry, error) {
	entries, err := s.applications.ListSent(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	return nonNilEntries(entries), nil
}

// Get returns one application as seen by userID: masked for the owner until
// approval, in full for the applicant. Anyone else gets not found.
func (s *ApplicationService) Get(ctx context.Context, userID, id string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case app.IsOwner(userID):
		redacted := app.Redacted()
		return &redacted, nil
	case app.IsApplicant(userID):
		return app, nil
	default:
		return nil, ErrApplicationNotFound
	}
}

// GetWithToken returns an application to the holder of its access token
func (s *ApplicationService) GetWithToken(ctx context.Context, id, accessToken string) (*models.Application, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.HoldsAccessToken(accessToken) {
		return nil, ErrApplicationNotFound
	}
	return app, nil
}

// Approve accepts the application and returns a message the owner can send
// to the applicant
func (s *ApplicationService) Approve(ctx context.Context, actorID, id string, in DecisionInput) (*DecisionResult, error) {
	return s.decide(ctx, "approve", actorID, id, in, (*models.Application).Approve)
}

// Reject declines the application
func (s *ApplicationService) Reject(ctx context.Context, actorID, id string, in DecisionInput) (*DecisionResult, error) {
	return s.decide(ctx, "reject", actorID, id, in, (*models.Application).Reject)
}

type decideFunc func(app *models.Application, actorID string, reply *string, now time.Time) error

func (s *ApplicationService) decide(ctx context.Context, action, actorID, id string, in DecisionInput, fn decideFunc) (*DecisionResult, error) {
	in.ReplyMessage = strings.TrimSpace(in.ReplyMessage)
	var reply *string
	if in.ReplyMessage != "" {
		reply = &in.ReplyMessage
	}

	app, err := s.transition(ctx, action, id, func(app *models.Application) error {
		if err := fn(app, actorID, reply, s.now()); err != nil {
			return err
		}
		return validateInput(in)
	})
	if err != nil {
		return nil, err
	}

	result := &DecisionResult{Success: true, Status: app.Status}
	owner, err := s.profiles.GetByID(ctx, app.ProfileID)
	if err != nil {
		// the decision is stored; only the convenience text is lost
		log.Error().Err(err).Str("application_id", app.ID).Msg("Failed to load card for reply message")
	} else {
		result.ClipboardMessage = ClipboardMessage(app, owner)
	}

	if app.ApplicantUserID != nil {
		s.notify(ctx, *app.ApplicantUserID, app.Status, EventApplicationDecided, app)
	}
	return result, nil
}

// AskFollowUp sends another round of questions to the applicant
func (s *ApplicationService) AskFollowUp(ctx context.Context, actorID, id string, questions []string) (*models.Application, error) {
	app, err := s.transition(ctx, "follow_up", id, func(app *models.Application) error {
		return app.AskFollowUp(actorID, questions, s.now())
	})
	if err != nil {
		return nil, err
	}

	if app.ApplicantUserID != nil {
		s.notify(ctx, *app.ApplicantUserID, app.Status, EventFollowUpRequested, app)
	}
	redacted := app.Redacted()
	return &redacted, nil
}

// AnswerFollowUp answers the latest follow-up round as the signed-in applicant
func (s *ApplicationService) AnswerFollowUp(ctx context.Context, actorID, id string, answers []string) (*models.Application, error) {
	app, err := s.transition(ctx, "answer", id, func(app *models.Application) error {
		return app.AnswerFollowUp(actorID, answers, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, app.TargetUserID, app.Status, EventFollowUpAnswered, app)
	return app, nil
}

// AnswerFollowUpWithToken answers the latest follow-up round as the holder
// of the application's access token
func (s *ApplicationService) AnswerFollowUpWithToken(ctx context.Context, id, accessToken string, answers []string) (*models.Application, error) {
	app, err := s.transition(ctx, "answer", id, func(app *models.Application) error {
		return app.AnswerFollowUpWithToken(accessToken, answers, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, app.TargetUserID, app.Status, EventFollowUpAnswered, app)
	return app, nil
}

// Stats counts the user's received and sent applications
func (s *ApplicationService) Stats(ctx context.Context, userID string) (*Stats, error) {
	counts, err := s.applications.CountReceivedByStatus(ctx, userID)
	if err != nil {
		return nil, err
	}
	sent, needAnswer, err := s.applications.CountSent(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Pending:    counts[models.StatusPending] + counts[models.StatusAnswered],
		Approved:   counts[models.StatusApproved],
		Rejected:   counts[models.StatusRejected],
		Sent:       sent,
		NeedAnswer: needAnswer,
	}
	for _, n := range counts {
		stats.Total += n
	}
	return stats, nil
}

// transition loads the application, applies fn and stores the result only
// if nobody changed the status in between
func (s *ApplicationService) transition(ctx context.Context, action, id string, fn func(app *models.Application) error) (app *models.Application, err error) {
	defer func() { metrics.RecordAction(action, err) }()

	app, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	from := app.Status
	if err := fn(app); err != nil {
		return nil, err
	}

	if err := s.applications.SaveTransition(ctx, app, from); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, s.staleError(ctx, id, fn)
		}
		return nil, err
	}

	log.Info().
		Str("application_id", app.ID).
		Str("from", string(from)).
		Str("status", string(app.Status)).
		Msg("Application " + action)
	return app, nil
}

// staleError re-reads a row that changed under us and reports why fn no
// longer applies
func (s *ApplicationService) staleError(ctx context.Context, id string, fn func(app *models.Application) error) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(current); err != nil {
		return err
	}
	return ErrConcurrentUpdate
}

func (s *ApplicationService) load(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.applications.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return app, nil
}

func (s *ApplicationService) notify(ctx context.Context, userID string, status models.ApplicationStatus, t EventType, app *models.Application) {
	s.notifier.Notify(ctx, userID, Event{
		Type:          t,
		ApplicationID: app.ID,
		Status:        status,
		Timestamp:     app.UpdatedAt.UnixMilli(),
	})
}

// ClipboardMessage composes the reply the owner copies to the applicant.
// Approvals share the owner's WeChat ID, or email when there is no WeChat;
// without either there is nothing to send.
func ClipboardMessage(app *models.Application, owner *models.Profile) string {
	switch app.Status {
	case models.StatusApproved:
		name := nameOr(app.ApplicantName, "kindred spirit")
		switch {
		case owner.ContactWechat != "":
			return fmt.Sprintf("Hi %s, your answers felt really sincere and I'd love to get to know you! My WeChat is: %s", name, owner.ContactWechat)
		case owner.ContactEmail != "":
			return fmt.Sprintf("Hi %s, your answers felt really sincere and I'd love to get to know you! My email is: %s", name, owner.ContactEmail)
		}
		return ""
	case models.StatusRejected:
		return fmt.Sprintf("Hi %s, thank you for your application. I feel we might not be the right fit, and I hope you find your kindred spirit soon!", nameOr(app.ApplicantName, "friend"))
	}
	return ""
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func newAccessToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func nonNilEntries(entries []*models.ApplicationEntry) []*models.ApplicationEntry {
	if entries == nil {
		return []*models.ApplicationEntry{}
	}
	return entries
}
