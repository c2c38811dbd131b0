// Package events broadcasts content changes on EventBridge so every cache
// holder (proxies, kiosks, the invalidation Lambda) can drop stale copies.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

const (
	// Source is the EventBridge source of every event published here.
	Source = "sarassure"
	// ContentChangedType is the detail-type of ContentChanged events.
	ContentChangedType = "ContentChanged"
)

// ContentChanged is emitted after a trainer mutates exercise content.
type ContentChanged struct {
	// Entity is the mutated table, e.g. "steps" or "exercises".
	Entity    string    `json:"entity"`
	ID        string    `json:"id,omitempty"`
	Action    string    `json:"action"`
	ChangedAt time.Time `json:"changedAt"`
}

// PutEventsAPI is the subset of the EventBridge client Publisher needs.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher sends events to one bus. A nil *Publisher is valid and drops
// every event, so callers need not check whether publishing is configured.
type Publisher struct {
	client PutEventsAPI
	bus    string
}

// NewPublisher returns a Publisher for bus. An empty bus name returns nil.
func NewPublisher(client PutEventsAPI, bus string) *Publisher {
	if bus == "" {
		return nil
	}
	return &Publisher{client: client, bus: bus}
}

// ContentChanged publishes a ContentChanged event. ChangedAt defaults to now.
func (p *Publisher) ContentChanged(ctx context.Context, ev ContentChanged) error {
	if p == nil {
		return nil
	}
	if ev.ChangedAt.IsZero() {
		ev.ChangedAt = time.Now().UTC()
	}
	detail, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal ContentChanged: %w", err)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.bus),
				Source:       aws.String(Source),
				DetailType:   aws.String(ContentChangedType),
				Detail:       aws.String(string(detail)),
			},
		},
	})
	if err != nil {
		log.Error().Err(err).Str("entity", ev.Entity).Str("id", ev.ID).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil || entry.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(entry.ErrorCode)).
					Str("errorMessage", aws.ToString(entry.ErrorMessage)).
					Str("entity", ev.Entity).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
	}

	log.Debug().Str("entity", ev.Entity).Str("id", ev.ID).Str("action", ev.Action).Msg("ContentChanged emitted to EventBridge")
	return nil
}

// ParseContentChanged decodes the detail of a received event.
func ParseContentChanged(detail json.RawMessage) (ContentChanged, error) {
	var ev ContentChanged
	if err := json.Unmarshal(detail, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal ContentChanged: %w", err)
	}
	return ev, nil
}
