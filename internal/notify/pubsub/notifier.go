// Package pubsub implements a Google Cloud Pub/Sub notifier.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/scrinshot/scrinshotd/internal/screenshot"
)

// Notifier publishes notifications to a Pub/Sub topic. Downstream
// consumers own actual delivery to users (mail, chat, paging).
type Notifier struct {
	Client *pubsub.Client
	Topic  *pubsub.Topic
	logger *zap.Logger
}

// envelope is the wire shape of one published notification.
type envelope struct {
	Kind    string                  `json:"kind"`
	Payload screenshot.Notification `json:"payload"`
}

// New creates a Pub/Sub client and verifies the topic exists. It
// authenticates using Google Cloud's Application Default Credentials.
func New(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to check for topic existence: %w", err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic '%s' does not exist in project '%s'", topicID, projectID)
	}

	return &Notifier{Client: client, Topic: topic, logger: logger}, nil
}

// Send marshals the notification to JSON and publishes it, blocking
// until the server acknowledges. The caller treats failures as
// best-effort, so an honest error here beats a silent drop.
func (n *Notifier) Send(ctx context.Context, notification screenshot.Notification) error {
	data, err := json.Marshal(envelope{
		Kind:    string(notification.Kind()),
		Payload: notification,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": string(notification.Kind())},
	}
	result := n.Topic.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close stops the topic's publisher and closes the underlying client.
func (n *Notifier) Close() error {
	n.Topic.Stop()
	if err := n.Client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
