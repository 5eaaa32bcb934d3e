package services

import (
	"context"
	"fmt"
	"time"

	"soul-card-backend/internal/config"
	"soul-card-backend/internal/metrics"
	"soul-card-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

const pushTimeout = 10 * time.Second

// pushClient is the part of *apns2.Client used for delivery
type pushClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// PushTokenStore looks up and clears device tokens
type PushTokenStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
}

// APNSNotifier sends application events as iOS push notifications
type APNSNotifier struct {
	client pushClient
	topic  string
	users  PushTokenStore
}

// NewAPNSNotifier creates a token-authenticated APNs client from a .p8 key
func NewAPNSNotifier(cfg config.APNSConfig, users PushTokenStore) (*APNSNotifier, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSNotifier{client: client, topic: cfg.Topic, users: users}, nil
}

// Notify sends the push in the background so the request is not held up
func (n *APNSNotifier) Notify(ctx context.Context, userID string, ev Event) {
	go func() {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		n.send(pushCtx, userID, ev)
	}()
}

func (n *APNSNotifier) send(ctx context.Context, userID string, ev Event) {
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to load user for push")
		metrics.RecordPush("error")
		return
	}
	if user.PushToken == nil || *user.PushToken == "" {
		metrics.RecordPush("no_token")
		return
	}

	title, body := pushText(ev)
	notification := &apns2.Notification{
		DeviceToken: *user.PushToken,
		Topic:       n.topic,
		Payload: payload.NewPayload().
			AlertTitle(title).
			AlertBody(body).
			Sound("default").
			Custom("type", string(ev.Type)).
			Custom("application_id", ev.ApplicationID),
	}

	res, err := n.client.PushWithContext(ctx, notification)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send push notification")
		metrics.RecordPush("error")
		return
	}
	if res.Sent() {
		metrics.RecordPush("sent")
		return
	}

	log.Warn().
		Str("user_id", userID).
		Int("status", res.StatusCode).
		Str("reason", res.Reason).
		Msg("Push notification rejected")
	metrics.RecordPush("rejected")

	if res.Reason == apns2.ReasonBadDeviceToken || res.Reason == apns2.ReasonUnregistered {
		if err := n.users.UpdatePushToken(ctx, userID, nil); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to clear stale push token")
		}
	}
}

func pushText(ev Event) (title, body string) {
	switch ev.Type {
	case EventApplicationReceived:
		return "New application", "Someone wants to get to know you. Take a look at their answers."
	case EventFollowUpRequested:
		return "A few more questions", "The card owner would like to know a bit more about you."
	case EventFollowUpAnswered:
		return "Questions answered", "An applicant answered your follow-up questions."
	case EventApplicationDecided:
		if ev.Status == models.StatusApproved {
			return "Application approved", "Good news! Your application was approved."
		}
		return "Application update", "Your application was declined. Keep looking, the right person is out there."
	default:
		return "Soul card", "You have an update."
	}
}
