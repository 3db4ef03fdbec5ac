package judge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"doodle-duel/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type EvaluatorConfig struct {
	// Attempts is the total number of judge calls before falling back.
	Attempts int
	// Backoff is the delay after the first failed attempt; it doubles after
	// each further failure.
	Backoff time.Duration
	// Timeout bounds a single attempt.
	Timeout time.Duration
}

// Outcome describes how an evaluation was obtained.
type Outcome struct {
	Model    string
	Attempts int
	Fallback bool
	Reason   string
}

// Evaluator calls the judge registered for a room's model with retries and
// substitutes the fallback ranking when every attempt fails. It never returns
// an error: a round always gets a ranking.
type Evaluator struct {
	registry *Registry
	cfg      EvaluatorConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewEvaluator(registry *Registry, cfg EvaluatorConfig, logger *zap.Logger, m *metrics.Metrics) *Evaluator {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Evaluator{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

func (e *Evaluator) Evaluate(ctx context.Context, model string, submissions []Submission, keyword string) (Evaluation, Outcome) {
	started := time.Now()
	defer func() {
		e.metrics.JudgeDuration.Observe(time.Since(started).Seconds())
	}()

	outcome := Outcome{Model: model}
	j, ok := e.registry.Lookup(model)
	if !ok {
		outcome.Fallback = true
		outcome.Reason = fmt.Sprintf("%s: %s", ErrUnknownModel, model)
		e.metrics.JudgeFallbacks.WithLabelValues(model).Inc()
		return Fallback(submissions, keyword), outcome
	}

	var eval Evaluation
	operation := func() error {
		outcome.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		result, err := j.Evaluate(attemptCtx, submissions, keyword)
		if err == nil {
			err = Validate(result, submissions)
		}
		if err != nil {
			e.metrics.JudgeAttempts.WithLabelValues(model, "error").Inc()
			e.logger.Warn("judge attempt failed",
				zap.String("model", model),
				zap.Int("attempt", outcome.Attempts),
				zap.Error(err))
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		e.metrics.JudgeAttempts.WithLabelValues(model, "ok").Inc()
		eval = result
		return nil
	}

	err := backoff.Retry(operation, e.policy(ctx))
	if err != nil {
		outcome.Fallback = true
		outcome.Reason = err.Error()
		e.metrics.JudgeFallbacks.WithLabelValues(model).Inc()
		e.logger.Warn("judge fallback used",
			zap.String("model", model),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(err))
		return Fallback(submissions, keyword), outcome
	}
	return eval, outcome
}

func (e *Evaluator) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.cfg.Backoff
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = e.cfg.Backoff << uint(e.cfg.Attempts)
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(e.cfg.Attempts-1)), ctx)
}

func retryable(err error) bool {
	if errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrNoSubmissions) || errors.Is(err, ErrInvalidImage) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}
