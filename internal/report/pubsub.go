package report

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubNotifier publishes reports to a Google Cloud Pub/Sub topic as JSON
// payloads. Delivery is asynchronous; the Pub/Sub client handles batching
// and retries in the background.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubNotifier creates a Pub/Sub client and a handle to the topic,
// authenticating via Application Default Credentials.
func NewPubSubNotifier(ctx context.Context, projectID, topicID string) (*PubSubNotifier, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubNotifier{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

// SendSummary publishes the run summary. Fire-and-forget: the publish
// result is not awaited.
func (n *PubSubNotifier) SendSummary(ctx context.Context, summary Summary) error {
	return n.publish(ctx, "summary", summary)
}

// SendAlert publishes the abandonment alert.
func (n *PubSubNotifier) SendAlert(ctx context.Context, alert Alert) error {
	return n.publish(ctx, "alert", alert)
}

func (n *PubSubNotifier) publish(ctx context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": kind},
	})
	_ = result // fire-and-forget
	return nil
}

// Close stops the topic's publisher and closes the client connection.
func (n *PubSubNotifier) Close() error {
	n.topic.Stop()
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
