package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/modoterra/jukedash/pkg/logpipe"
)

// S3Config configures the archive sink.
type S3Config struct {
	Region        string
	Bucket        string
	Prefix        string
	BatchSize     int
	FlushInterval time.Duration
	Timeout       time.Duration // per PutObject attempt
}

// ObjectPutter is the subset of *s3.Client the sink needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

const s3Attempts = 3

// S3 archives entries as gzip JSONL objects. Objects are written when a
// batch fills, on every flush interval, and on Close. Uploads run on the
// flusher goroutine so Write never waits on the network.
type S3 struct {
	cfg    S3Config
	client ObjectPutter
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending []logpipe.Entry

	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewS3FromAWS loads the default AWS credential chain.
func NewS3FromAWS(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3(s3.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewS3 starts the periodic flusher.
func NewS3(client ObjectPutter, cfg S3Config, logger *slog.Logger) *S3 {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &S3{
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *S3) Name() string { return "s3" }

func (s *S3) run() {
	defer close(s.done)
	var tick <-chan time.Time
	if s.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(s.cfg.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-s.stop:
			return
		case <-s.kick:
			s.flushInBackground("s3 batch flush failed")
		case <-tick:
			s.flushInBackground("s3 periodic flush failed")
		}
	}
}

func (s *S3) flushInBackground(msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), s3Attempts*s.cfg.Timeout)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.logger.Warn(msg, "err", err, "pending", s.Pending())
	}
}

// Write queues entries and wakes the flusher once a batch is full. It does
// not wait for the upload.
func (s *S3) Write(_ context.Context, entries []logpipe.Entry) error {
	s.mu.Lock()
	s.pending = append(s.pending, entries...)
	full := len(s.pending) >= s.cfg.BatchSize
	s.mu.Unlock()
	if full {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns how many entries await upload.
func (s *S3) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush uploads everything queued. On failure the entries stay queued,
// keeping at most ten batches.
func (s *S3) Flush(ctx context.Context) error {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	body, err := encodeJSONLGZ(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	key := s.objectKey()
	if err := s.upload(ctx, key, body); err != nil {
		s.requeue(batch)
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Debug("archived log batch", "key", key, "entries", len(batch), "bytes", len(body))
	return nil
}

func (s *S3) requeue(batch []logpipe.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(batch, s.pending...)
	if limit := 10 * s.cfg.BatchSize; len(s.pending) > limit {
		dropped := len(s.pending) - limit
		s.pending = s.pending[dropped:]
		s.logger.Warn("s3 backlog full, dropping oldest entries", "dropped", dropped)
	}
}

func (s *S3) objectKey() string {
	ts := s.now().UTC()
	return s.cfg.Prefix + ts.Format("2006/01/02/150405") + "-" + uuid.NewString() + ".jsonl.gz"
}

func (s *S3) upload(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 1; attempt <= s3Attempts; attempt++ {
		if err := s.putObject(ctx, key, body); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == s3Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return lastErr
}

func (s *S3) putObject(ctx context.Context, key string, body []byte) error {
	ctx2, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	_, err := s.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:          aws.String(s.cfg.Bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	return err
}

// Close stops the flusher and uploads what is left.
func (s *S3) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.stop) })
	<-s.done
	return s.Flush(ctx)
}

func encodeJSONLGZ(entries []logpipe.Entry) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, e := range entries {
		if err := enc.Encode(NewRecord(e)); err != nil {
			_ = gz.Close()
			return nil, err
		}
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
