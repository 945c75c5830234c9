package generate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	cerrors "github.com/Aman-CERP/coderag/internal/errors"
)

// Guarded wraps a Generator with a per-attempt timeout, bounded retries and
// a circuit breaker. Call never returns a raw error: failures come back as a
// Degraded result with an empty value.
type Guarded struct {
	gen     Generator
	breaker *cerrors.CircuitBreaker
	retry   cerrors.RetryConfig
	timeout time.Duration
}

// NewGuarded wraps gen. A nil gen yields Degraded results without calling anything.
func NewGuarded(gen Generator, timeout time.Duration, maxRetries int) *Guarded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retry := cerrors.DefaultRetryConfig()
	retry.MaxRetries = max(maxRetries, 0)
	retry.RetryIf = func(err error) bool {
		return !errors.Is(err, cerrors.ErrCircuitOpen) && !errors.Is(err, context.Canceled)
	}
	return &Guarded{
		gen:     gen,
		breaker: cerrors.NewCircuitBreaker("generator"),
		retry:   retry,
		timeout: timeout,
	}
}

// withRetryConfig replaces the backoff settings, keeping RetryIf.
func (g *Guarded) withRetryConfig(cfg cerrors.RetryConfig) *Guarded {
	cfg.RetryIf = g.retry.RetryIf
	g.retry = cfg
	return g
}

// Call runs one guarded completion. The result is Failed only when ctx
// itself ended.
func (g *Guarded) Call(ctx context.Context, system, prompt string) cerrors.Result[string] {
	if g.gen == nil {
		return cerrors.Degraded("", cerrors.New(cerrors.ErrCodeGeneratorUnavailable, "no generator configured", nil))
	}
	start := time.Now()
	text, err := cerrors.RetryWithResult(ctx, g.retry, func() (string, error) {
		return cerrors.CircuitExecute(g.breaker, func() (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			return g.gen.Generate(callCtx, system, prompt)
		})
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cerrors.Failed[string](ctxErr)
	}
	if err != nil {
		code := cerrors.ErrCodeGeneratorUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = cerrors.ErrCodeBackendTimeout
		}
		slog.Warn("generator_degraded",
			slog.String("model", g.gen.Model()),
			slog.String("breaker", g.breaker.State().String()),
			slog.String("error", err.Error()),
			slog.Duration("took", time.Since(start)))
		return cerrors.Degraded("", cerrors.New(code, "generation failed", err))
	}
	slog.Debug("generator_call",
		slog.String("model", g.gen.Model()),
		slog.Int("prompt_chars", len(prompt)),
		slog.Int("reply_chars", len(text)),
		slog.Duration("took", time.Since(start)))
	return cerrors.Ok(text)
}

// Generate adapts Call to a plain (string, error) signature.
func (g *Guarded) Generate(ctx context.Context, system, prompt string) (string, error) {
	res := g.Call(ctx, system, prompt)
	if !res.IsOK() {
		return "", res.Err
	}
	return res.Value, nil
}

// Model returns the wrapped model name, or "" without a generator.
func (g *Guarded) Model() string {
	if g.gen == nil {
		return ""
	}
	return g.gen.Model()
}

// Close closes the wrapped generator.
func (g *Guarded) Close() error {
	if g.gen == nil {
		return nil
	}
	return g.gen.Close()
}
