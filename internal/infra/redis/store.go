package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"participation-tracker/internal/domain"
)

const defaultPrefix = "tracker"

// Store keeps tracker records in Redis.
// Layout per table:
//
//	{prefix}:{table}:rec:{id}             JSON-encoded domain.Record
//	{prefix}:{table}:ids                  set of ids
//	{prefix}:{table}:idx:{field}:{value}  set of ids carrying that index value
type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Put(ctx context.Context, rec domain.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", rec.Table, rec.ID, err)
	}
	old, err := s.get(ctx, rec.Table, rec.ID)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old != nil {
			for field, value := range old.Indexes {
				if rec.Indexes[field] != value {
					pipe.SRem(ctx, s.indexKey(rec.Table, field, value), rec.ID)
				}
			}
		}
		pipe.Set(ctx, s.recordKey(rec.Table, rec.ID), payload, 0)
		pipe.SAdd(ctx, s.idsKey(rec.Table), rec.ID)
		for field, value := range rec.Indexes {
			pipe.SAdd(ctx, s.indexKey(rec.Table, field, value), rec.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", rec.Table, rec.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	old, err := s.get(ctx, table, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(table, id))
		pipe.SRem(ctx, s.idsKey(table), id)
		if old != nil {
			for field, value := range old.Indexes {
				pipe.SRem(ctx, s.indexKey(table, field, value), id)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *Store) DeleteByIndex(ctx context.Context, table, field, value string) error {
	ids, err := s.client.SMembers(ctx, s.indexKey(table, field, value)).Result()
	if err != nil {
		return fmt.Errorf("members %s.%s=%s: %w", table, field, value, err)
	}
	for _, id := range ids {
		if err := s.Delete(ctx, table, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) QueryByIndex(ctx context.Context, table, field, value string) ([]domain.Record, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(table, field, value)).Result()
	if err != nil {
		return nil, fmt.Errorf("members %s.%s=%s: %w", table, field, value, err)
	}
	return s.load(ctx, table, ids)
}

func (s *Store) All(ctx context.Context, table string) ([]domain.Record, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey(table)).Result()
	if err != nil {
		return nil, fmt.Errorf("members %s: %w", table, err)
	}
	return s.load(ctx, table, ids)
}

func (s *Store) load(ctx context.Context, table string, ids []string) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(table, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	out := make([]domain.Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// id set and record drifted apart; skip the dangling id
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", table, ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) get(ctx context.Context, table, id string) (*domain.Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(table, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", table, id, err)
	}
	var rec domain.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", table, id, err)
	}
	return &rec, nil
}

func (s *Store) recordKey(table, id string) string {
	return s.prefix + ":" + table + ":rec:" + id
}

func (s *Store) idsKey(table string) string {
	return s.prefix + ":" + table + ":ids"
}

func (s *Store) indexKey(table, field, value string) string {
	return s.prefix + ":" + table + ":idx:" + field + ":" + value
}
