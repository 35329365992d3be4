package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/DocuPay/app/repository"
)

// KeyPrefix is followed by the UTC day (YYYY-MM-DD); each hash field is a metric name.
const KeyPrefix = "settlement:counters:"

const tmpMarker = ":tmp:"

// Recorder counts settlement activity in Redis and periodically moves the
// counts into settlement_stats.
type Recorder struct {
	rdb   *redis.Client
	stats repository.StatsRepository
	now   func() time.Time
}

func NewRecorder(rdb *redis.Client, stats repository.StatsRepository) *Recorder {
	return &Recorder{
		rdb:   rdb,
		stats: stats,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// DayKey returns the Redis hash holding the counters of t's UTC day.
func DayKey(t time.Time) string {
	return KeyPrefix + t.UTC().Format("2006-01-02")
}

// Incr increments metric for the current day. Failures are logged only.
func (r *Recorder) Incr(metric string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.HIncrBy(ctx, DayKey(r.now()), metric, 1).Err(); err != nil {
		log.Warnf("[Counter] Failed to increment %s: %v", metric, err)
	}
}

// Pending returns the not yet flushed counts of the current day.
func (r *Recorder) Pending(ctx context.Context) (map[string]int64, error) {
	data, err := r.rdb.HGetAll(ctx, DayKey(r.now())).Result()
	if err != nil {
		return nil, err
	}
	return parseCounts(data), nil
}

// FlushAll drains every day hash into the database.
func (r *Recorder) FlushAll(ctx context.Context) error {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if strings.Contains(iter.Val(), tmpMarker) {
			continue
		}
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan counter keys: %w", err)
	}

	for _, key := range keys {
		if err := r.flushDay(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// flushDay drains one hash. The RENAME moves it aside atomically so increments
// that arrive during the flush land in a fresh hash. When the database write
// fails the drained counts are added back.
func (r *Recorder) flushDay(ctx context.Context, redisKey string) error {
	day := strings.TrimPrefix(redisKey, KeyPrefix)
	tmpKey := fmt.Sprintf("%s%s%d", redisKey, tmpMarker, time.Now().UnixNano())

	if err := r.rdb.Rename(ctx, redisKey, tmpKey).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such key") || err == redis.Nil {
			return nil
		}
		return err
	}
	defer r.rdb.Del(context.WithoutCancel(ctx), tmpKey)

	data, err := r.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	counts := parseCounts(data)
	if len(counts) == 0 {
		return nil
	}

	if err := r.stats.AddCounts(day, counts); err != nil {
		pipe := r.rdb.Pipeline()
		for metric, inc := range counts {
			pipe.HIncrBy(ctx, redisKey, metric, inc)
		}
		if _, rerr := pipe.Exec(context.WithoutCancel(ctx)); rerr != nil {
			log.Errorf("[Counter] Lost %d counters for %s: %v", len(counts), day, rerr)
		}
		return fmt.Errorf("store counters for %s: %w", day, err)
	}
	return nil
}

func parseCounts(data map[string]string) map[string]int64 {
	counts := make(map[string]int64, len(data))
	for metric, v := range data {
		inc, err := strconv.ParseInt(v, 10, 64)
		if err != nil || inc == 0 {
			continue
		}
		counts[metric] = inc
	}
	return counts
}
