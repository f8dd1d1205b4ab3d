package imagegen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PipelineConfig controls polling and deadlines
type PipelineConfig struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	Timeout           time.Duration
	MaxPollErrors     int
	PixelBudget       int
}

// DefaultPipelineConfig returns the production timings
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		PollInterval:      time.Second,
		HeartbeatInterval: 9 * time.Second,
		Timeout:           120 * time.Second,
		MaxPollErrors:     3,
		PixelBudget:       DefaultPixelBudget,
	}
}

// Result is a finished render
type Result struct {
	JobID    string
	Request  Request
	Artifact Artifact
	Data     []byte
}

// Pipeline drives one render job from description to image bytes
type Pipeline struct {
	backend Backend
	cfg     PipelineConfig
	seedFn  func() int64
	logger  *zap.Logger
}

// NewPipeline creates a pipeline. Zero config fields take their defaults.
func NewPipeline(backend Backend, cfg PipelineConfig, logger *zap.Logger) *Pipeline {
	def := DefaultPipelineConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxPollErrors <= 0 {
		cfg.MaxPollErrors = def.MaxPollErrors
	}
	if cfg.PixelBudget <= 0 {
		cfg.PixelBudget = def.PixelBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		backend: backend,
		cfg:     cfg,
		seedFn:  RandomSeed,
		logger:  logger.Named("imagegen"),
	}
}

// Generate parses description, submits the job and waits for the image.
// heartbeat, if non-nil, is called every HeartbeatInterval until the job
// resolves; it is never called after Generate returns.
func (p *Pipeline) Generate(ctx context.Context, description string, heartbeat func()) (*Result, error) {
	req, err := ParseRequest(description, p.cfg.PixelBudget, p.seedFn)
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	stopHeartbeat := p.startHeartbeat(jobCtx, heartbeat)
	defer stopHeartbeat()

	jobID, err := p.submit(jobCtx, req)
	if err != nil {
		return nil, p.jobError(ctx, jobCtx, "submit", err)
	}
	logger := p.logger.With(zap.String("job_id", jobID))
	logger.Info("Job state changed", zap.String("state", string(StatusSubmitted)))

	artifact, err := p.poll(jobCtx, jobID, logger)
	if err != nil {
		err = p.jobError(ctx, jobCtx, "poll", err)
		if errors.Is(err, ErrJobTimedOut) {
			logger.Warn("Job state changed", zap.String("state", string(StatusTimedOut)))
		}
		return nil, err
	}
	stopHeartbeat()

	data, err := p.backend.Fetch(jobCtx, *artifact)
	if err != nil {
		return nil, p.jobError(ctx, jobCtx, "fetch", err)
	}

	logger.Info("Generate completed", zap.Int("bytes", len(data)))
	return &Result{JobID: jobID, Request: req, Artifact: *artifact, Data: data}, nil
}

func (p *Pipeline) submit(ctx context.Context, req Request) (string, error) {
	jobID, err := p.backend.Submit(ctx, req)
	if err == nil {
		return jobID, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	p.logger.Warn("Submit failed, retrying", zap.Error(err))
	return p.backend.Submit(ctx, req)
}

// poll waits for the job to leave the pending state
func (p *Pipeline) poll(ctx context.Context, jobID string, logger *zap.Logger) (*Artifact, error) {
	pollErrors := 0
	wait := p.cfg.PollInterval
	reportedPending := false

	for {
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}

		state, err := p.backend.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			pollErrors++
			logger.Warn("Status check failed", zap.Int("consecutive_errors", pollErrors), zap.Error(err))
			if pollErrors > p.cfg.MaxPollErrors {
				return nil, fmt.Errorf("status check failed %d times: %w", pollErrors, err)
			}
			wait = p.cfg.PollInterval << pollErrors
			continue
		}
		pollErrors = 0
		wait = p.cfg.PollInterval

		switch state.Status {
		case StatusReady:
			if state.Artifact == nil {
				return nil, fmt.Errorf("%w: ready without artifact", ErrJobFailed)
			}
			logger.Info("Job state changed", zap.String("state", string(StatusReady)))
			return state.Artifact, nil
		case StatusFailed:
			logger.Warn("Job state changed", zap.String("state", string(StatusFailed)), zap.String("message", state.Message))
			return nil, fmt.Errorf("%w: %s", ErrJobFailed, state.Message)
		default:
			if !reportedPending {
				logger.Info("Job state changed", zap.String("state", string(StatusPending)))
				reportedPending = true
			}
		}
	}
}

// jobError wraps err as transient. An expired job deadline becomes
// ErrJobTimedOut; cancellation by the caller is returned as is.
func (p *Pipeline) jobError(parent, jobCtx context.Context, op string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrJobTimedOut) {
		err = ErrJobTimedOut
	}
	return &TransientError{Op: op, Err: err}
}

func (p *Pipeline) startHeartbeat(ctx context.Context, beat func()) (stop func()) {
	if beat == nil {
		return func() {}
	}

	hbCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				beat()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
