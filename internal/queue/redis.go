package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chekins:q"

// RedisStore persists jobs in Redis. Layout per queue:
//
//	chekins:q:<queue>:waiting    list of job ids, LPUSH / BRPOP
//	chekins:q:<queue>:delayed    zset of job ids scored by run-at millis
//	chekins:q:<queue>:active     set of job ids currently being processed
//	chekins:q:<queue>:failed     list of terminally failed job ids
//	chekins:q:<queue>:completed  counter of completed jobs
//	chekins:q:<queue>:job:<id>   JSON record of the job
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func waitingKey(queue string) string   { return fmt.Sprintf("%s:%s:waiting", keyPrefix, queue) }
func delayedKey(queue string) string   { return fmt.Sprintf("%s:%s:delayed", keyPrefix, queue) }
func activeKey(queue string) string    { return fmt.Sprintf("%s:%s:active", keyPrefix, queue) }
func failedKey(queue string) string    { return fmt.Sprintf("%s:%s:failed", keyPrefix, queue) }
func completedKey(queue string) string { return fmt.Sprintf("%s:%s:completed", keyPrefix, queue) }
func jobKey(queue, id string) string   { return fmt.Sprintf("%s:%s:job:%s", keyPrefix, queue, id) }

func (s *RedisStore) Enqueue(ctx context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	// SETNX on the job record is the dedupe point: losing the race means
	// the id is already queued or retained.
	set, err := s.client.SetNX(ctx, jobKey(j.Queue, j.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("store job record: %w", err)
	}
	if !set {
		return ErrDuplicateJob
	}

	if err := s.client.LPush(ctx, waitingKey(j.Queue), j.ID).Err(); err != nil {
		return fmt.Errorf("push job to waiting list: %w", err)
	}
	return nil
}

func (s *RedisStore) Dequeue(ctx context.Context, queue string, block time.Duration) (*Job, error) {
	res, err := s.client.BRPop(ctx, block, waitingKey(queue)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}
	id := res[1]

	data, err := s.client.Get(ctx, jobKey(queue, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Record vanished under us; treat the pop as a miss.
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("load job record: %w", err)
	}

	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}

	j.Attempts++
	j.Status = StatusActive
	if err := s.saveRecord(ctx, &j); err != nil {
		return nil, err
	}
	if err := s.client.SAdd(ctx, activeKey(queue), id).Err(); err != nil {
		return nil, fmt.Errorf("mark job active: %w", err)
	}
	return &j, nil
}

func (s *RedisStore) Complete(ctx context.Context, j *Job) error {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, activeKey(j.Queue), j.ID)
	pipe.Del(ctx, jobKey(j.Queue, j.ID))
	pipe.Incr(ctx, completedKey(j.Queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete job %s: %w", j.ID, err)
	}
	return nil
}

func (s *RedisStore) Fail(ctx context.Context, j *Job, reason string) error {
	j.Status = StatusFailed
	j.LastError = reason
	if err := s.saveRecord(ctx, j); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, activeKey(j.Queue), j.ID)
	pipe.LPush(ctx, failedKey(j.Queue), j.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fail job %s: %w", j.ID, err)
	}
	return nil
}

func (s *RedisStore) Delay(ctx context.Context, j *Job, runAt time.Time) error {
	j.Status = StatusDelayed
	if err := s.saveRecord(ctx, j); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, activeKey(j.Queue), j.ID)
	pipe.ZAdd(ctx, delayedKey(j.Queue), redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: j.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delay job %s: %w", j.ID, err)
	}
	return nil
}

func (s *RedisStore) PromoteDue(ctx context.Context, queue string, now time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, delayedKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan delayed jobs: %w", err)
	}

	promoted := 0
	for _, id := range ids {
		removed, err := s.client.ZRem(ctx, delayedKey(queue), id).Result()
		if err != nil {
			return promoted, fmt.Errorf("promote job %s: %w", id, err)
		}
		if removed == 0 {
			continue // another promoter won the race
		}
		if err := s.client.LPush(ctx, waitingKey(queue), id).Err(); err != nil {
			return promoted, fmt.Errorf("requeue job %s: %w", id, err)
		}
		promoted++
	}
	return promoted, nil
}

func (s *RedisStore) Stats(ctx context.Context, queue string) (*Stats, error) {
	pipe := s.client.Pipeline()
	waiting := pipe.LLen(ctx, waitingKey(queue))
	active := pipe.SCard(ctx, activeKey(queue))
	completed := pipe.Get(ctx, completedKey(queue))
	failed := pipe.LLen(ctx, failedKey(queue))
	delayed := pipe.ZCard(ctx, delayedKey(queue))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read queue stats: %w", err)
	}

	stats := &Stats{
		Waiting: waiting.Val(),
		Active:  active.Val(),
		Failed:  failed.Val(),
		Delayed: delayed.Val(),
	}
	if v, err := completed.Int64(); err == nil {
		stats.Completed = v
	}
	stats.Total = stats.Waiting + stats.Active + stats.Completed + stats.Failed + stats.Delayed
	return stats, nil
}

func (s *RedisStore) FailedJobs(ctx context.Context, queue string, limit int64) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.LRange(ctx, failedKey(queue), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, jobKey(queue, id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load failed job %s: %w", id, err)
		}
		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, fmt.Errorf("unmarshal failed job %s: %w", id, err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) saveRecord(ctx context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.client.Set(ctx, jobKey(j.Queue, j.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("save job record: %w", err)
	}
	return nil
}
