// ABOUTME: Redis-backed persistence service: card hashes, per-lane id lists, and a change feed.
// ABOUTME: Every write publishes a ChangeNotice so other processes sharing the board can reload.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/2389-research/kanbansync/board/core"
	"github.com/2389-research/kanbansync/board/persist"
)

// ChangeKind names the write a ChangeNotice reports.
type ChangeKind string

const (
	ChangeCardSaved   ChangeKind = "card_saved"
	ChangeCardDeleted ChangeKind = "card_deleted"
	ChangeLaneOrder   ChangeKind = "lane_order"
	ChangeColumns     ChangeKind = "columns"
)

// ChangeNotice is published on the changes channel after a write.
type ChangeNotice struct {
	Origin string     `json:"origin"`
	Kind   ChangeKind `json:"kind"`
	CardID string     `json:"cardId,omitempty"`
	Lanes  []string   `json:"lanes,omitempty"`
	At     time.Time  `json:"at"`
}

// RedisService implements persist.Service on Redis. It is safe for
// concurrent use.
type RedisService struct {
	rdb       *redis.Client
	namespace string
	origin    string
}

var _ persist.Service = (*RedisService)(nil)

// NewRedisService creates a service for the board stored under namespace.
// Each service gets a fresh origin id so it can ignore its own notices.
func NewRedisService(opts *redis.Options, namespace string) (*RedisService, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &RedisService{
		rdb:       redis.NewClient(opts),
		namespace: namespace,
		origin:    uuid.NewString(),
	}, nil
}

// Origin identifies this service in published notices.
func (s *RedisService) Origin() string {
	return s.origin
}

// Close closes the Redis connection.
func (s *RedisService) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *RedisService) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func cardFields(card core.Card, lane string) (map[string]interface{}, error) {
	body, err := json.Marshal(card)
	if err != nil {
		return nil, &persist.PermanentError{Err: fmt.Errorf("marshal card: %w", err)}
	}
	return map[string]interface{}{
		"id":         card.ID,
		"project_id": card.ProjectID,
		"name":       card.Name,
		"lane":       lane,
		"body":       string(body),
	}, nil
}

// currentLane returns the lane a stored card sits in, or "" when the card
// is not stored.
func (s *RedisService) currentLane(ctx context.Context, cardID string) (string, error) {
	lane, err := s.rdb.HGet(ctx, CardKey(s.namespace, cardID), "lane").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read card lane: %w", err)
	}
	return lane, nil
}

// SaveCard upserts the card. A card new to its lane is appended to the lane
// list; an existing card keeps its position.
func (s *RedisService) SaveCard(ctx context.Context, card core.Card) error {
	if card.Status == "" {
		return &persist.PermanentError{Err: fmt.Errorf("card has no lane")}
	}
	fields, err := cardFields(card, card.Status)
	if err != nil {
		return err
	}
	prev, err := s.currentLane(ctx, card.ID)
	if err != nil {
		return err
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, CardKey(s.namespace, card.ID), fields)
		pipe.SAdd(ctx, LanesKey(s.namespace), card.Status)
		if prev != card.Status {
			if prev != "" {
				pipe.LRem(ctx, LaneKey(s.namespace, prev), 0, card.ID)
			}
			pipe.RPush(ctx, LaneKey(s.namespace, card.Status), card.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save card: %w", err)
	}
	return s.publish(ctx, ChangeNotice{Kind: ChangeCardSaved, CardID: card.ID, Lanes: []string{card.Status}})
}

// DeleteCard removes the card hash and its lane membership.
func (s *RedisService) DeleteCard(ctx context.Context, id string) error {
	lane, err := s.currentLane(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if lane != "" {
			pipe.LRem(ctx, LaneKey(s.namespace, lane), 0, id)
		}
		pipe.Del(ctx, CardKey(s.namespace, id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return s.publish(ctx, ChangeNotice{Kind: ChangeCardDeleted, CardID: id})
}

// SaveLaneOrder replaces the stored active lane order.
func (s *RedisService) SaveLaneOrder(ctx context.Context, order []string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, OrderKey(s.namespace))
		if len(order) > 0 {
			pipe.RPush(ctx, OrderKey(s.namespace), toArgs(order)...)
			pipe.SAdd(ctx, LanesKey(s.namespace), toArgs(order)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save lane order: %w", err)
	}
	return s.publish(ctx, ChangeNotice{Kind: ChangeLaneOrder})
}

// SaveColumns rewrites the lists of the given lanes and the lane field of
// every stored card in them. Card bodies are left to SaveCard, and ids with
// no stored hash (never saved, or already deleted) are dropped from the
// lists. A card that arrived from a lane not named in columns is removed
// there. The card hashes are watched, so a delete that lands mid-write
// aborts the transaction and the write is retried.
func (s *RedisService) SaveColumns(ctx context.Context, columns core.BoardMap) error {
	var keys []string
	for _, cards := range columns {
		for _, card := range cards {
			keys = append(keys, CardKey(s.namespace, card.ID))
		}
	}

	lanes := make([]string, 0, len(columns))
	txf := func(tx *redis.Tx) error {
		prev := make(map[string]string, len(keys))
		for _, cards := range columns {
			for _, card := range cards {
				lane, err := tx.HGet(ctx, CardKey(s.namespace, card.ID), "lane").Result()
				if errors.Is(err, redis.Nil) {
					continue
				}
				if err != nil {
					return fmt.Errorf("read card lane: %w", err)
				}
				prev[card.ID] = lane
			}
		}

		lanes = lanes[:0]
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for lane, cards := range columns {
				lanes = append(lanes, lane)
				pipe.SAdd(ctx, LanesKey(s.namespace), lane)
				pipe.Del(ctx, LaneKey(s.namespace, lane))
				ids := make([]string, 0, len(cards))
				for _, card := range cards {
					from, stored := prev[card.ID]
					if !stored {
						continue
					}
					if _, covered := columns[from]; from != lane && !covered {
						pipe.LRem(ctx, LaneKey(s.namespace, from), 0, card.ID)
					}
					pipe.HSet(ctx, CardKey(s.namespace, card.ID), "lane", lane)
					ids = append(ids, card.ID)
				}
				if len(ids) > 0 {
					pipe.RPush(ctx, LaneKey(s.namespace, lane), toArgs(ids)...)
				}
			}
			return nil
		})
		return err
	}

	if err := s.rdb.Watch(ctx, txf, keys...); err != nil {
		return fmt.Errorf("save columns: %w", err)
	}
	return s.publish(ctx, ChangeNotice{Kind: ChangeColumns, Lanes: lanes})
}

// LoadBoard reads every lane with its cards plus the stored active order.
// Ids whose hash is missing are skipped.
func (s *RedisService) LoadBoard(ctx context.Context) (persist.LoadedBoard, error) {
	out := persist.LoadedBoard{Columns: core.BoardMap{}, BoardOrder: []string{}}

	lanes, err := s.rdb.SMembers(ctx, LanesKey(s.namespace)).Result()
	if err != nil {
		return out, fmt.Errorf("read lanes: %w", err)
	}
	for _, lane := range lanes {
		ids, err := s.rdb.LRange(ctx, LaneKey(s.namespace, lane), 0, -1).Result()
		if err != nil {
			return out, fmt.Errorf("read lane %s: %w", lane, err)
		}
		cards := make([]core.Card, 0, len(ids))
		if len(ids) > 0 {
			cmds := make([]*redis.StringCmd, len(ids))
			_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
				for i, id := range ids {
					cmds[i] = pipe.HGet(ctx, CardKey(s.namespace, id), "body")
				}
				return nil
			})
			if err != nil && !errors.Is(err, redis.Nil) {
				return out, fmt.Errorf("read cards of %s: %w", lane, err)
			}
			for _, cmd := range cmds {
				body, err := cmd.Result()
				if errors.Is(err, redis.Nil) {
					continue
				}
				if err != nil {
					return out, fmt.Errorf("read card: %w", err)
				}
				var card core.Card
				if err := json.Unmarshal([]byte(body), &card); err != nil {
					return out, fmt.Errorf("decode card body: %w", err)
				}
				card.Status = lane
				cards = append(cards, card)
			}
		}
		out.Columns[lane] = cards
	}

	order, err := s.rdb.LRange(ctx, OrderKey(s.namespace), 0, -1).Result()
	if err != nil {
		return out, fmt.Errorf("read lane order: %w", err)
	}
	out.BoardOrder = append(out.BoardOrder, order...)
	return out, nil
}

func (s *RedisService) publish(ctx context.Context, n ChangeNotice) error {
	n.Origin = s.origin
	n.At = time.Now().UTC()
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal change notice: %w", err)
	}
	if err := s.rdb.Publish(ctx, ChangesChannel(s.namespace), data).Err(); err != nil {
		return fmt.Errorf("publish change notice: %w", err)
	}
	return nil
}

func toArgs(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// ChangeSubscription delivers notices published by other services sharing
// the namespace. Call Close when done.
type ChangeSubscription struct {
	events <-chan ChangeNotice
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the notice channel. It is closed when the subscription ends.
func (s *ChangeSubscription) Events() <-chan ChangeNotice {
	return s.events
}

// Errors returns decode failures. The subscription continues after them.
func (s *ChangeSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call more than once.
func (s *ChangeSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Watch subscribes to the changes channel. Notices published by this
// service itself are skipped. The subscription is confirmed before Watch
// returns, so no notice published afterwards is missed.
func (s *RedisService) Watch(ctx context.Context) (*ChangeSubscription, error) {
	pubsub := s.rdb.Subscribe(ctx, ChangesChannel(s.namespace))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to changes: %w", err)
	}

	eventsChan := make(chan ChangeNotice, 16)
	errorsChan := make(chan error, 4)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var n ChangeNotice
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					select {
					case errorsChan <- fmt.Errorf("decode change notice: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}
				if n.Origin == s.origin {
					continue
				}
				select {
				case eventsChan <- n:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &ChangeSubscription{events: eventsChan, errors: errorsChan, cancel: cancel}, nil
}
