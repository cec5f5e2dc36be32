// Package progress keeps ingestion milestones in Redis so asynchronous uploads
// can be polled by job id.
package progress

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ordersync_backend/internal/serviceorders/service"
	"ordersync_backend/platform/config"
	"ordersync_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ingest:job:"

var ErrNotFound = errors.New("ingest job not found")

// Snapshot is the stored state of one job.
type Snapshot struct {
	JobID    string             `json:"jobId"`
	SourceID string             `json:"sourceId"`
	FileName string             `json:"fileName"`
	Current  service.Progress   `json:"current"`
	Events   []service.Progress `json:"events"`
}

// Done reports whether the job reached a terminal stage.
func (s Snapshot) Done() bool { return s.Current.Terminal() }

type Store struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
	now func() time.Time
}

// NewRedisClient builds a client from the scheduler's Redis settings.
func NewRedisClient(cfg config.SchedulerConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return redis.NewClient(opt), nil
}

func New(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{rdb: rdb, ttl: ttl, log: log, now: time.Now}
}

func key(jobID string) string { return keyPrefix + jobID }

// Start registers a queued job.
func (s *Store) Start(ctx context.Context, jobID, sourceID, fileName string) error {
	snap := Snapshot{
		JobID:    jobID,
		SourceID: sourceID,
		FileName: fileName,
		Current:  service.Progress{Stage: service.StageIdle, Label: "queued", UpdatedAt: s.now()},
	}
	return s.save(ctx, snap)
}

// Record appends a milestone to the job. Each job has a single writer, the
// worker running it, so a read-modify-write is sufficient.
func (s *Store) Record(ctx context.Context, jobID string, p service.Progress) error {
	snap, err := s.Get(ctx, jobID)
	if errors.Is(err, ErrNotFound) {
		snap = Snapshot{JobID: jobID}
	} else if err != nil {
		return err
	}
	snap.Current = p
	snap.Events = append(snap.Events, p)
	return s.save(ctx, snap)
}

// Get returns the stored snapshot.
func (s *Store) Get(ctx context.Context, jobID string) (Snapshot, error) {
	raw, err := s.rdb.Get(ctx, key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read ingest progress: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode ingest progress: %w", err)
	}
	return snap, nil
}

// Reporter adapts the store to the ingestion pipeline. Write failures are logged
// and never interrupt the run.
func (s *Store) Reporter(jobID string) service.ProgressReporter {
	return service.ProgressFunc(func(ctx context.Context, p service.Progress) {
		if err := s.Record(context.WithoutCancel(ctx), jobID, p); err != nil {
			s.log.WithContext(ctx).Warn("ingest progress not recorded", "job_id", jobID, "stage", string(p.Stage), "error", err)
		}
	})
}

func (s *Store) save(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode ingest progress: %w", err)
	}
	if err := s.rdb.Set(ctx, key(snap.JobID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("write ingest progress: %w", err)
	}
	return nil
}
