package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/you-humble/audioclip/internal/domain"

	"github.com/redis/go-redis/v9"
)

// createScript writes the hash only if the key is absent and indexes the job.
// KEYS: job hash, active zset, by_created zset.
// ARGV: id, updated score, created score, then field/value pairs.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
for i = 4, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// transitionScript is a compare-and-set on the state column.
// KEYS: job hash, active zset.
// ARGV: id, expected state, next state, updated_at, updated score, terminal flag,
// then field/value pairs.
var transitionScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'state')
if not cur then
	return -1
end
if cur ~= ARGV[2] then
	return 0
end
redis.call('HSET', KEYS[1], 'state', ARGV[3], 'updated_at', ARGV[4])
for i = 7, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
if ARGV[6] == '1' then
	redis.call('ZREM', KEYS[2], ARGV[1])
else
	redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
end
return 1
`)

type redisJobStore struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewRedisJobStore(rdb redis.Cmdable) *redisJobStore {
	return &redisJobStore{rdb: rdb, now: time.Now}
}

func (s *redisJobStore) Create(ctx context.Context, j domain.Job) error {
	args := []any{j.ID, j.UpdatedAt.UnixMilli(), j.CreatedAt.Unix()}
	for k, v := range encode(j) {
		args = append(args, k, v)
	}

	n, err := createScript.Run(ctx, s.rdb, []string{jobKey(j.ID), activeKey(), byCreatedKey()}, args...).Int()
	if err != nil {
		return fmt.Errorf("redis create job: %w", err)
	}
	if n == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *redisJobStore) Get(ctx context.Context, id string) (domain.Job, error) {
	res, err := s.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return domain.Job{}, fmt.Errorf("redis get job: %w", err)
	}
	if len(res) == 0 {
		return domain.Job{}, domain.ErrNotFound
	}

	return decode(res), nil
}

func (s *redisJobStore) Transition(
	ctx context.Context,
	id string,
	from, to domain.State,
	fields domain.TransitionFields,
) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, to)
	}

	now := s.now()
	terminal := "0"
	if to.Terminal() {
		terminal = "1"
	}

	args := []any{id, string(from), string(to), now.UnixNano(), now.UnixMilli(), terminal}
	for k, v := range encodeFields(fields) {
		args = append(args, k, v)
	}

	n, err := transitionScript.Run(ctx, s.rdb, []string{jobKey(id), activeKey()}, args...).Int()
	if err != nil {
		return fmt.Errorf("redis transition: %w", err)
	}

	switch n {
	case -1:
		return domain.ErrNotFound
	case 0:
		return fmt.Errorf("%w: expected %s", domain.ErrTransitionConflict, from)
	}
	return nil
}

// StaleCandidates returns non-terminal jobs not updated since before.
func (s *redisJobStore) StaleCandidates(ctx context.Context, before time.Time) ([]domain.Job, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, activeKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis stale scan: %w", err)
	}

	jobs := make([]domain.Job, 0, len(ids))
	for _, id := range ids {
		j, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			s.rdb.ZRem(ctx, activeKey(), id)
			continue
		}
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, j)
	}

	return jobs, nil
}

// PurgeCreatedBefore deletes terminal job records created before the cutoff.
func (s *redisJobStore) PurgeCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, byCreatedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprint(cutoff.Unix()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis purge scan: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		j, err := s.Get(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return deleted, err
		}
		if err == nil && !j.State.Terminal() {
			continue
		}

		pipe := s.rdb.TxPipeline()
		pipe.Del(ctx, jobKey(id))
		pipe.ZRem(ctx, byCreatedKey(), id)
		pipe.ZRem(ctx, activeKey(), id)

		if _, err := pipe.Exec(ctx); err != nil {
			slog.Warn("redis purge job", slog.String("job_id", id), slog.String("error", err.Error()))
			continue
		}
		deleted++
	}

	return deleted, nil
}
