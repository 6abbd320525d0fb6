package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/provider"
	"github.com/hubeiqiao/Literature-screening/internal/resilience"
)

const (
	// MaxAttempts bounds every model call at two tries total. The second
	// attempt is the recovery; there is no third.
	MaxAttempts = 2

	// rateLimitDelay scales linearly with the attempt number on 429s.
	rateLimitDelay = 1500 * time.Millisecond
)

// attemptOutcome classifies one failed attempt.
type attemptOutcome int

const (
	outcomeRetryable attemptOutcome = iota
	outcomeFatal
)

// callWithRetry drives the bounded attempt loop for one record against one
// adapter. It returns the parsed decision on success, or the last failure
// description once attempts are exhausted.
func (p *Pipeline) callWithRetry(ctx context.Context, adapter provider.Adapter, in provider.CallInput) (*model.TriageDecision, *provider.CallResult, string) {
	log := zap.L().With(
		zap.String("provider", adapter.Name()),
		zap.String("record", in.Record.Key),
	)

	lastErr := "request failed without details"
	prevBadRequest := false

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		in.Attempt = attempt
		in.PrevBadRequest = prevBadRequest

		result, err := adapter.Call(ctx, in)
		if err == nil {
			decision, ok := provider.ParseDecision(result.Content, in.Record, in.Deterministic, result.ModelLabel)
			if ok {
				return &decision, result, ""
			}
			lastErr = "failed to parse model JSON response"
			log.Warn("triage: unparseable model output", zap.Int("attempt", attempt))
			continue
		}

		if ctx.Err() != nil {
			return nil, nil, ctx.Err().Error()
		}

		lastErr = err.Error()
		status, hasStatus := provider.HTTPStatus(err)
		outcome, badRequest := classifyFailure(adapter.Name(), err, status, hasStatus)
		prevBadRequest = prevBadRequest || badRequest

		if outcome == outcomeFatal {
			log.Warn("triage: fatal provider failure", zap.Int("attempt", attempt), zap.Error(err))
			break
		}

		log.Warn("triage: retryable provider failure", zap.Int("attempt", attempt), zap.Error(err))
		if (status == 429 || resilience.IsRateLimited(err)) && attempt < MaxAttempts {
			p.sleep(rateLimitDelay * time.Duration(attempt))
		}
	}

	return nil, nil, lastErr
}

// classifyFailure decides whether an attempt failure is worth a retry.
// Client errors are final for most providers; a Gemini 400 gets one more
// try with a simplified payload because its strict-JSON mode rejects
// requests the plain mode accepts.
func classifyFailure(providerName string, err error, status int, hasStatus bool) (attemptOutcome, bool) {
	if !hasStatus {
		// No HTTP status to go on: retry only known-transient transport
		// failures, everything else is a broken request.
		if resilience.IsTransient(err) {
			return outcomeRetryable, false
		}
		return outcomeFatal, false
	}

	if resilience.IsTransientHTTPStatus(status) {
		return outcomeRetryable, false
	}
	if resilience.IsFatalHTTPStatus(status) {
		if providerName == provider.NameGemini && status == 400 {
			return outcomeRetryable, true
		}
		return outcomeFatal, false
	}
	return outcomeRetryable, false
}
