package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tasktrack/apiserver/types"
)

const (
	attrEventType = "type"
	attrOwnerID   = "owner_id"
)

// TaskEventPublisher encodes task events as JSON and publishes them on a
// single channel.
type TaskEventPublisher struct {
	mq      *MQ
	channel string
}

func NewTaskEventPublisher(mq *MQ, channel string) *TaskEventPublisher {
	return &TaskEventPublisher{mq: mq, channel: channel}
}

// PublishTaskEvent publishes event with its type and owner as attributes.
func (p *TaskEventPublisher) PublishTaskEvent(ctx context.Context, event types.TaskEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	attrs := map[string]string{
		attrEventType: string(event.Type),
		attrOwnerID:   strconv.Itoa(event.OwnerID),
	}
	if _, err := p.mq.Publish(ctx, p.channel, data, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// SubscribeTaskEvents decodes every message on the channel and hands it to fn.
// Messages that are not task events are acknowledged and skipped.
func (p *TaskEventPublisher) SubscribeTaskEvents(ctx context.Context, fn func(ctx context.Context, event types.TaskEvent) error) error {
	return p.mq.Subscribe(ctx, p.channel, func(ctx context.Context, msg Message) error {
		event, err := DecodeTaskEvent(msg)
		if err != nil {
			return nil
		}
		return fn(ctx, event)
	})
}

// DecodeTaskEvent parses a task event from a delivered message.
func DecodeTaskEvent(msg Message) (types.TaskEvent, error) {
	var event types.TaskEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.TaskEvent{}, err
	}
	if event.Type == "" {
		if t := msg.Attributes[attrEventType]; t != "" {
			event.Type = types.TaskEventType(t)
		} else {
			return types.TaskEvent{}, errors.New("missing event type")
		}
	}
	return event, nil
}
