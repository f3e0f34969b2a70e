package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"livesale-backend/internal/events"
	"livesale-backend/internal/model"
	"livesale-backend/internal/store"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON payload delivered to operator browsers.
type Message struct {
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	SessionID int64       `json:"sessionId"`
	Type      events.Type `json:"type"`
}

// PushSink alerts operator browsers subscribed to a session about awards, releases and
// backfills. It implements events.Sink.
type PushSink struct {
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
}

// NewPushSink creates a sink that sends with the given VAPID options.
func NewPushSink(s store.Store, webpushOptions *webpush.Options) *PushSink {
	return &PushSink{
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
	}
}

func (p *PushSink) Name() string { return "webpush" }

// Handle sends one message per subscription. Events operators do not need to see are
// ignored without touching the database.
func (p *PushSink) Handle(ctx context.Context, e events.Event) error {
	msg, ok := messageFor(e)
	if !ok {
		return nil
	}

	subscriptions, err := p.store.ListSubscriptionsForSession(ctx, e.SessionID)
	if err != nil {
		return err
	}
	if len(subscriptions) == 0 {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	log.Printf("Sending %d notifications for session %d (%s)", len(subscriptions), e.SessionID, e.Type)
	for _, sub := range subscriptions {
		p.sendNotification(ctx, sub, payload)
	}
	return nil
}

// sendNotification sends a single web push notification.
func (p *PushSink) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := p.sender.Send(payload, wpSub, p.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := p.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}

func messageFor(e events.Event) (Message, bool) {
	msg := Message{SessionID: e.SessionID, Type: e.Type}
	switch d := e.Data.(type) {
	case events.ClaimCreated:
		if d.Status != string(model.ClaimStatusWinner) {
			return Message{}, false
		}
		msg.Title = fmt.Sprintf("Slot %s claimed", d.SlotNumber)
		msg.Body = fmt.Sprintf("%s won slot %s", actorLabel(d.ActorHandle, d.ActorID), d.SlotNumber)
	case events.ClaimReleased:
		msg.Title = fmt.Sprintf("Slot %s %s", d.SlotNumber, d.Status)
		if d.Promoted != nil {
			msg.Body = fmt.Sprintf("%s moved up from the waitlist", actorLabel(d.Promoted.ActorHandle, d.Promoted.ActorID))
		} else {
			msg.Body = fmt.Sprintf("%s gave up slot %s", d.ActorID, d.SlotNumber)
		}
	case events.BackfillResolved:
		if len(d.Winners) == 0 && len(d.Waitlisted) == 0 {
			return Message{}, false
		}
		msg.Title = fmt.Sprintf("Slot %s resolved", d.SlotNumber)
		msg.Body = fmt.Sprintf("%d winners, %d waitlisted", len(d.Winners), len(d.Waitlisted))
	default:
		return Message{}, false
	}
	return msg, true
}

func actorLabel(handle, id string) string {
	if handle != "" {
		return handle
	}
	return id
}
