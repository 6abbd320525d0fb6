// Package pipeline orchestrates one metered triage call end to end:
// deterministic anchor, cost projection, credit authorization, the bounded
// provider call, reconciliation, debit, and the run record.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubeiqiao/Literature-screening/internal/cost"
	"github.com/hubeiqiao/Literature-screening/internal/criteria"
	"github.com/hubeiqiao/Literature-screening/internal/ledger"
	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/provider"
	"github.com/hubeiqiao/Literature-screening/internal/registry"
	"github.com/hubeiqiao/Literature-screening/internal/store"
	"github.com/hubeiqiao/Literature-screening/internal/triage"
)

// UsageMode selects whose credentials and whose money a call runs on.
type UsageMode string

const (
	// ModeManaged uses the operator's provider key and debits the
	// caller's prepaid balance.
	ModeManaged UsageMode = "managed"

	// ModeBYOK uses a caller-supplied provider key and never touches the
	// ledger.
	ModeBYOK UsageMode = "byok"
)

// ProviderDeterministic is the provider name recorded for rule-only runs.
const ProviderDeterministic = "deterministic"

var (
	// ErrCallerRequired means a managed request carried no caller
	// identity to bill against.
	ErrCallerRequired = eris.New("pipeline: caller identity required")

	// ErrAPIKeyRequired means a byok call arrived without a key.
	ErrAPIKeyRequired = eris.New("pipeline: api key required for byok usage")

	// ErrManagedUnavailable means managed mode was requested but is not
	// offered for this provider or no managed key is configured.
	ErrManagedUnavailable = eris.New("pipeline: managed usage not available for this provider")

	// ErrUnknownProvider means the request named a provider with no
	// registered adapter.
	ErrUnknownProvider = eris.New("pipeline: unknown provider")
)

// InsufficientCreditError is returned when a managed call is refused
// before any provider traffic because the projected charge exceeds the
// caller's balance.
type InsufficientCreditError struct {
	BalanceCents   int64
	EstimatedCents int64
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("pipeline: insufficient credit: balance %d cents, estimated charge %d cents", e.BalanceCents, e.EstimatedCents)
}

// RunInput is one triage request for one record.
type RunInput struct {
	CallerID        string
	Provider        string
	UsageMode       UsageMode
	ModelID         string
	ReasoningEffort string
	APIKey          string

	Record       model.BibRecord
	Instructions criteria.TextInput

	// Heuristics bypasses text compilation when the caller ships
	// precompiled rules.
	Heuristics *criteria.Criteria
}

// RunResult is the outcome of one triage call.
type RunResult struct {
	Decision model.TriageDecision `json:"decision"`
	Warning  string               `json:"warning,omitempty"`
	Usage    *model.TokenUsage    `json:"usage,omitempty"`
	Cost     *model.CostSummary   `json:"cost,omitempty"`
}

// Pipeline wires the triage flow together.
type Pipeline struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
	store    store.Store
	adapters map[string]provider.Adapter

	managedKey string
	currency   string

	sleep func(time.Duration)
	now   func() time.Time
}

// New creates a pipeline. managedKey is the operator's OpenRouter key;
// empty disables managed mode entirely.
func New(reg *registry.Registry, led *ledger.Ledger, st store.Store, adapters []provider.Adapter, managedKey, currency string) *Pipeline {
	byName := make(map[string]provider.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	if currency == "" {
		currency = "usd"
	}
	return &Pipeline{
		registry:   reg,
		ledger:     led,
		store:      st,
		adapters:   byName,
		managedKey: managedKey,
		currency:   currency,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// Run executes one triage call. The deterministic classification always
// completes; provider failures degrade to it with a warning instead of
// failing the run. Only managed calls need a caller identity: BYOK and
// deterministic runs are open.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	if in.UsageMode == ModeManaged && in.CallerID == "" {
		return nil, ErrCallerRequired
	}

	crit := p.resolveCriteria(in)
	anchor := triage.Classify(in.Record, crit)

	if in.Provider == "" || in.Provider == ProviderDeterministic {
		result := &RunResult{Decision: anchor.Decision(in.Record)}
		p.recordRun(ctx, in, ProviderDeterministic, "", result)
		return result, nil
	}

	adapter, ok := p.adapters[in.Provider]
	if !ok {
		return nil, eris.Wrapf(ErrUnknownProvider, "%s", in.Provider)
	}

	modelCfg := p.registry.Resolve(in.ModelID)

	apiKey, err := p.resolveKey(in)
	if err != nil {
		return nil, err
	}

	callIn := provider.CallInput{
		Record:          in.Record,
		Instructions:    p.resolveInstructions(in),
		Deterministic:   anchor,
		Model:           modelCfg,
		APIKey:          apiKey,
		ReasoningEffort: in.ReasoningEffort,
	}

	// Managed calls authorize against the balance before any provider
	// traffic. The estimate is the refusal threshold, not the charge.
	var estimate cost.Estimate
	var balanceBefore int64
	metered := in.UsageMode == ModeManaged && p.ledger.Enabled()
	if metered {
		promptChars, promptErr := adapter.PromptChars(callIn)
		if promptErr != nil {
			return nil, promptErr
		}
		reasoning := modelCfg.SupportsReasoning && in.ReasoningEffort != "" && in.ReasoningEffort != "none"
		estimate = cost.Project(promptChars, modelCfg.MaxTokens, reasoning, modelCfg.Pricing)

		snapshot, balErr := p.ledger.Balance(ctx, in.CallerID)
		if balErr != nil {
			return nil, balErr
		}
		balanceBefore = snapshot.BalanceCents
		if balanceBefore < estimate.Cents {
			return nil, &InsufficientCreditError{BalanceCents: balanceBefore, EstimatedCents: estimate.Cents}
		}
	}

	decision, callResult, failure := p.callWithRetry(ctx, adapter, callIn)
	if decision == nil {
		// Degrade to the deterministic anchor. Nothing was consumed
		// from the balance: failed calls are free. The failure rides in
		// the rationale too so exported decisions keep their provenance.
		warning := fmt.Sprintf("%s: %s", adapter.Label(modelCfg), failure)
		fallback := anchor.Decision(in.Record)
		fallback.Rationale = warning
		result := &RunResult{
			Decision: fallback,
			Warning:  warning,
		}
		p.recordRun(ctx, in, adapter.Name(), modelCfg.ID, result)
		return result, nil
	}

	result := &RunResult{
		Decision: *decision,
		Usage:    callResult.Usage,
	}

	if metered {
		summary, debitErr := p.settle(ctx, in, modelCfg, estimate, balanceBefore, callResult)
		if debitErr != nil {
			return nil, debitErr
		}
		result.Cost = summary
	}

	p.recordRun(ctx, in, adapter.Name(), modelCfg.ID, result)
	return result, nil
}

// settle reconciles the actual charge and debits it. The debit is clamped
// to the balance observed at authorization so a reconciled cost above the
// estimate cannot take the account below zero on its own.
func (p *Pipeline) settle(ctx context.Context, in RunInput, modelCfg registry.ModelConfig, estimate cost.Estimate, balanceBefore int64, callResult *provider.CallResult) (*model.CostSummary, error) {
	actual := cost.ReconcileActualCents(callResult.RawUsage, callResult.Usage, modelCfg.Pricing, estimate)

	debitAmount := actual
	if debitAmount > balanceBefore {
		debitAmount = balanceBefore
	}

	debit, err := p.ledger.Debit(ctx, in.CallerID, debitAmount, map[string]any{
		"provider":           in.Provider,
		"model":              modelCfg.ID,
		"recordKey":          in.Record.Key,
		"estimatedCostCents": estimate.Cents,
		"actualCostCents":    actual,
	})
	if err != nil {
		var insufficient *store.InsufficientCreditError
		if eris.As(err, &insufficient) {
			return nil, eris.Wrap(err, "pipeline: credit exhausted while finalizing")
		}
		return nil, err
	}

	return &model.CostSummary{
		Currency:           p.currency,
		EstimatedCents:     estimate.Cents,
		ActualCents:        actual,
		BalanceBeforeCents: debit.PreviousBalanceCents,
		BalanceAfterCents:  debit.NewBalanceCents,
	}, nil
}

func (p *Pipeline) resolveKey(in RunInput) (string, error) {
	switch in.UsageMode {
	case ModeManaged:
		if in.Provider != provider.NameOpenRouter || p.managedKey == "" {
			return "", ErrManagedUnavailable
		}
		return p.managedKey, nil
	case ModeBYOK, "":
		if in.APIKey == "" {
			return "", ErrAPIKeyRequired
		}
		return in.APIKey, nil
	default:
		return "", eris.Errorf("pipeline: unknown usage mode %q", in.UsageMode)
	}
}

func (p *Pipeline) resolveCriteria(in RunInput) criteria.Criteria {
	if in.Heuristics != nil {
		return *in.Heuristics
	}
	if in.Instructions.Inclusion == "" && in.Instructions.Exclusion == "" {
		return criteria.Default()
	}
	return criteria.BuildFromText(in.Instructions)
}

func (p *Pipeline) resolveInstructions(in RunInput) criteria.TextInput {
	if in.Instructions.Inclusion == "" && in.Instructions.Exclusion == "" {
		return criteria.DefaultText()
	}
	return in.Instructions
}

// recordRun appends the run history entry. Persistence failures are logged
// and swallowed: the caller already has their decision. History is keyed by
// caller, so anonymous runs are not recorded.
func (p *Pipeline) recordRun(ctx context.Context, in RunInput, providerName, modelID string, result *RunResult) {
	if in.CallerID == "" {
		return
	}

	usageMode := string(in.UsageMode)
	if providerName == ProviderDeterministic {
		usageMode = ""
	}

	run := &model.TriageRun{
		ID:        uuid.NewString(),
		CallerID:  in.CallerID,
		Provider:  providerName,
		UsageMode: usageMode,
		Model:     modelID,
		RecordKey: in.Record.Key,
		Decision:  result.Decision,
		Warning:   result.Warning,
		Usage:     result.Usage,
		Cost:      result.Cost,
		CreatedAt: p.now().UTC(),
	}

	if err := p.store.InsertRun(ctx, run); err != nil {
		zap.L().Warn("triage: failed to record run",
			zap.String("caller_id", in.CallerID),
			zap.String("record", in.Record.Key),
			zap.Error(err),
		)
	}
}
