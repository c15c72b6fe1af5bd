package harness

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/semledger/internal/graphstore"
	"github.com/roach88/semledger/internal/integrity"
	"github.com/roach88/semledger/internal/ledger"
	"github.com/roach88/semledger/internal/monitor"
	"github.com/roach88/semledger/internal/policy"
	"github.com/roach88/semledger/internal/repair"
	"github.com/roach88/semledger/internal/testutil"
)

// tamperStatement is the foreign statement add_triple inserts.
const tamperStatement = "<http://example.org/mallory> <http://example.org/stole> <http://example.org/funds> ."

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic clock and deterministic keys.
type Harness struct {
	ledger    *ledger.Ledger
	allowList bool
	validator *integrity.Validator
	repairer  *repair.Engine
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store. Structural problems, such
// as a tamper on a block that does not exist, are returned as errors;
// unmet expectations are recorded on the result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := graphstore.Open(":memory:", graphstore.Options{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	opts := ledger.Options{
		Clock:  testutil.NewDeterministicClock(),
		Logger: logger,
	}
	if len(scenario.Validators) > 0 {
		opts.Validators = make(map[string]ed25519.PublicKey, len(scenario.Validators))
		for _, name := range scenario.Validators {
			opts.Validators[name] = testutil.NewKey(name).Public
		}
	}
	if scenario.Policy != "" {
		p, err := policy.CompileCUE(scenario.Policy, scenario.Name+".cue")
		if err != nil {
			st.Close()
			return nil, err
		}
		opts.Policy = p
	}

	l, err := ledger.Open(ctx, st, opts)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer l.Close()

	validator := integrity.NewValidator(integrity.Options{Parallel: true, Logger: logger})
	h := &Harness{
		ledger:    l,
		allowList: len(scenario.Validators) > 0,
		validator: validator,
		repairer:  repair.NewEngine(repair.Options{Validator: validator, Logger: logger}),
		logger:    logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		out, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Kind(), err)
		}
		out.Step = i + 1
		result.Steps = append(result.Steps, out)
		for _, msg := range checkStep(step, out) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", out.Step, out.Kind, msg))
		}
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, step Step) (StepOutcome, error) {
	switch step.Kind() {
	case StepAppend:
		return h.appendPayload(ctx, step.Append)
	case StepTamper:
		return h.tamper(ctx, step.Tamper)
	case StepValidate:
		return h.validate(ctx, step.Validate)
	case StepRepair:
		return h.repair(ctx)
	case StepVerify:
		ok, err := h.ledger.IsChainValid(ctx)
		if err != nil {
			return StepOutcome{}, err
		}
		return StepOutcome{Kind: StepVerify, Valid: &ok}, nil
	}
	return StepOutcome{}, errors.New("step has no action")
}

func (h *Harness) validatorID(name string) string {
	if h.allowList {
		return name
	}
	return testutil.NewKey(name).ID()
}

func (h *Harness) appendPayload(ctx context.Context, s *AppendStep) (StepOutcome, error) {
	out := StepOutcome{Kind: StepAppend}
	signer := s.Signer
	if signer == "" {
		signer = s.Validator
	}
	b, err := h.ledger.Append(ctx, s.Payload, h.validatorID(s.Validator), testutil.NewKey(signer).Private, nil)
	if err != nil {
		code := errorCode(err)
		if code == "" {
			return out, err
		}
		out.Error = code
		return out, nil
	}
	idx := b.Index
	out.Block = &idx
	return out, nil
}

// errorCode names a rejected append, or returns "" for errors that are not
// rejections.
func errorCode(err error) string {
	if code := ledger.CodeOf(err); code != "" {
		return string(code)
	}
	if errors.Is(err, ledger.ErrPolicyViolation) {
		return string(ledger.ErrCodePolicyViolation)
	}
	return ""
}

func (h *Harness) tamper(ctx context.Context, s *TamperStep) (StepOutcome, error) {
	out := StepOutcome{Kind: StepTamper, Block: &s.Block}
	if int(s.Block) >= h.ledger.Len() {
		return out, fmt.Errorf("block %d does not exist", s.Block)
	}
	graph := graphstore.BlockGraph(s.Block)
	st := h.ledger.Store()

	var err error
	switch s.Kind {
	case TamperAddTriple:
		_, err = st.AddToGraph(ctx, tamperStatement, graph)
	case TamperClearGraph:
		_, err = st.ClearGraph(ctx, graph)
	case TamperBreakLink:
		err = h.ledger.Update(func(tx *ledger.Tx) error {
			b, _ := tx.Block(s.Block)
			b.PreviousHash = "deadbeef"
			return tx.ReplaceBlock(ctx, b)
		})
	case TamperDropHeader:
		err = h.ledger.Update(func(tx *ledger.Tx) error {
			return tx.RemoveHeader(ctx, s.Block)
		})
	default:
		err = fmt.Errorf("unknown tamper kind %q", s.Kind)
	}
	return out, err
}

func (h *Harness) validate(ctx context.Context, s *ValidateStep) (StepOutcome, error) {
	level := monitor.Full
	if s.Level != "" {
		var err error
		if level, err = monitor.ParseLevel(s.Level); err != nil {
			return StepOutcome{}, err
		}
	}
	r, err := h.validator.ValidatePlan(ctx, h.ledger, level.Plan())
	if err != nil {
		return StepOutcome{}, err
	}
	return reportOutcome(StepValidate, r), nil
}

func (h *Harness) repair(ctx context.Context) (StepOutcome, error) {
	report, err := h.validator.Validate(ctx, h.ledger)
	if err != nil {
		return StepOutcome{}, err
	}
	res, err := h.repairer.Repair(ctx, h.ledger, report)
	if err != nil {
		return StepOutcome{}, err
	}
	out := StepOutcome{Kind: StepRepair, Successful: &res.Successful, Failed: &res.Failed}
	if res.Post != nil {
		post := reportOutcome(StepRepair, res.Post)
		out.Status, out.ChainLength, out.CorruptedBlocks, out.categories =
			post.Status, post.ChainLength, post.CorruptedBlocks, post.categories
	}
	return out, nil
}

func reportOutcome(kind string, r *integrity.Report) StepOutcome {
	out := StepOutcome{
		Kind:        kind,
		Status:      r.OverallStatus.String(),
		ChainLength: r.ChainLength,
	}
	for _, c := range r.Blockchain.CorruptedBlocks {
		out.CorruptedBlocks = append(out.CorruptedBlocks, c.Index)
	}
	for _, rec := range r.Recommendations {
		out.categories = append(out.categories, string(rec.Category))
	}
	return out
}
