package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// Stream entry field names shared by producers and consumers
const (
	FieldData      = "data"
	FieldTimestamp = "timestamp"
)

// StreamMessage one entry delivered to a consumer group
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// Payload returns the JSON document carried in the data field
func (m StreamMessage) Payload() ([]byte, bool) {
	switch v := m.Values[FieldData].(type) {
	case string:
		return []byte(v), v != ""
	case []byte:
		return v, len(v) > 0
	default:
		return nil, false
	}
}

// PublishJSONToStream XADDs data as JSON under the data field, stamped with
// the publish time in unix seconds.
func PublishJSONToStream(ctx context.Context, client *redis.Client, stream string, data interface{}) (string, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			FieldData:      string(body),
			FieldTimestamp: strconv.FormatInt(time.Now().Unix(), 10),
		},
	}).Result()
}

// ReadFromStream reads up to count undelivered entries for consumer,
// blocking for at most block. A timeout yields an empty batch.
func ReadFromStream(ctx context.Context, client *redis.Client, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	res, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return flatten(res), nil
}

// CreateConsumerGroup creates group at the start of stream, creating the
// stream too. An existing group is not an error.
func CreateConsumerGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

// AckMessage removes id from the group's pending list
func AckMessage(ctx context.Context, client *redis.Client, stream, group, id string) error {
	return client.XAck(ctx, stream, group, id).Err()
}

// ReadPending returns up to count entries already delivered to consumer but
// not yet acknowledged, oldest first. It never blocks.
func ReadPending(ctx context.Context, client *redis.Client, stream, group, consumer string, count int64) ([]StreamMessage, error) {
	res, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, "0"},
		Count:    count,
		Block:    -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return flatten(res), nil
}

func flatten(res []redis.XStream) []StreamMessage {
	var out []StreamMessage
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, StreamMessage{Stream: s.Stream, ID: m.ID, Values: m.Values})
		}
	}
	return out
}
