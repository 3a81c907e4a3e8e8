package push

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"unicode/utf8"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/devroad/mentorchat/internal/logger"
	"github.com/devroad/mentorchat/internal/models"
)

const previewLen = 80

// Notifier sends Web Push notifications to the recipient of a chat message.
type Notifier struct {
	db              *sql.DB
	vapidPublicKey  string
	vapidPrivateKey string
	subscriber      string
	httpClient      webpush.HTTPClient
	log             *logger.Logger
	wg              sync.WaitGroup
}

// NewNotifier creates a push Notifier. Returns nil if VAPID keys are empty.
func NewNotifier(db *sql.DB, vapidPublicKey, vapidPrivateKey, subscriber string, log *logger.Logger) *Notifier {
	if vapidPublicKey == "" || vapidPrivateKey == "" {
		return nil
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{
		db:              db,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		subscriber:      subscriber,
		log:             log.Component("push"),
	}
}

// WithHTTPClient replaces the client used to reach push services.
func (n *Notifier) WithHTTPClient(c webpush.HTTPClient) *Notifier {
	n.httpClient = c
	return n
}

// VAPIDPublicKey returns the public VAPID key for the frontend.
func (n *Notifier) VAPIDPublicKey() string {
	return n.vapidPublicKey
}

func (n *Notifier) Subscribe(userID int, sub models.PushSubscription) error {
	_, err := n.db.Exec(`
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET user_id = excluded.user_id, p256dh = excluded.p256dh, auth = excluded.auth
	`, userID, sub.Endpoint, sub.KeyP256dh, sub.KeyAuth)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (n *Notifier) Unsubscribe(userID int, endpoint string) error {
	_, err := n.db.Exec("DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?", userID, endpoint)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// payload is the JSON structure sent inside the push notification.
type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// MessageCreated notifies the participant who did not send msg. Delivery
// runs in the background.
func (n *Notifier) MessageCreated(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	if n == nil {
		return nil
	}

	p := payload{
		Title: "پیام جدید از " + msg.Sender.DisplayName,
		Body:  preview(msg.Body),
		URL:   "/chat?c=" + conv.ID,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", err)
	}

	recipient := conv.OtherParticipant(msg.SenderID)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.notify(recipient, data)
	}()
	return nil
}

// Wait blocks until background deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) notify(userID int, data []byte) {
	rows, err := n.db.Query(
		"SELECT endpoint, p256dh, auth FROM push_subscriptions WHERE user_id = ?",
		userID,
	)
	if err != nil {
		n.log.Error().Err(err).Int("user_id", userID).Msg("failed to query subscriptions")
		return
	}

	var subs []models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.KeyP256dh, &sub.KeyAuth); err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	rows.Close()

	if len(subs) == 0 {
		return
	}

	n.log.Debug().Int("user_id", userID).Int("subscriptions", len(subs)).Msg("sending notification")
	for _, sub := range subs {
		n.sendToSubscription(sub, data)
	}
}

func (n *Notifier) sendToSubscription(sub models.PushSubscription, data []byte) {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.KeyP256dh,
			Auth:   sub.KeyAuth,
		},
	}

	resp, err := webpush.SendNotification(data, s, &webpush.Options{
		HTTPClient:      n.httpClient,
		VAPIDPublicKey:  n.vapidPublicKey,
		VAPIDPrivateKey: n.vapidPrivateKey,
		Subscriber:      n.subscriber,
		TTL:             86400,
	})
	if err != nil {
		n.log.Warn().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	// 410 Gone or 404 means the subscription is expired
	if resp.StatusCode == 410 || resp.StatusCode == 404 {
		n.db.Exec("DELETE FROM push_subscriptions WHERE endpoint = ?", sub.Endpoint)
		n.log.Info().Str("endpoint", sub.Endpoint).Int("status", resp.StatusCode).Msg("removed expired subscription")
	}
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewLen {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLen]) + "…"
}
