package harness

import (
	"fmt"
	"slices"
)

// checkStep compares a step's outcome with its expectations and returns a
// message per mismatch.
func checkStep(step Step, out StepOutcome) []string {
	switch step.Kind() {
	case StepAppend:
		return checkAppend(step.Append, out)
	case StepValidate:
		return checkExpectation(step.Validate.Expect, out)
	case StepRepair:
		return checkExpectation(step.Repair.Expect, out)
	case StepVerify:
		if want := step.Verify.ExpectValid; want != nil && *want != *out.Valid {
			return []string{fmt.Sprintf("chain valid = %t, want %t", *out.Valid, *want)}
		}
	}
	return nil
}

func checkAppend(s *AppendStep, out StepOutcome) []string {
	switch {
	case s.ExpectError == "" && out.Error != "":
		return []string{fmt.Sprintf("append rejected with %s, want success", out.Error)}
	case s.ExpectError != "" && out.Error == "":
		return []string{fmt.Sprintf("append committed block %d, want %s", *out.Block, s.ExpectError)}
	case s.ExpectError != out.Error:
		return []string{fmt.Sprintf("append rejected with %s, want %s", out.Error, s.ExpectError)}
	}
	return nil
}

func checkExpectation(e *Expectation, out StepOutcome) []string {
	if e == nil {
		return nil
	}
	var errs []string
	if e.Status != "" && e.Status != out.Status {
		errs = append(errs, fmt.Sprintf("status = %s, want %s", out.Status, e.Status))
	}
	if e.CorruptedBlocks != nil && !slices.Equal(e.CorruptedBlocks, out.CorruptedBlocks) {
		errs = append(errs, fmt.Sprintf("corrupted blocks = %v, want %v", out.CorruptedBlocks, e.CorruptedBlocks))
	}
	for _, c := range e.Categories {
		if !slices.Contains(out.categories, c) {
			errs = append(errs, fmt.Sprintf("no %s recommendation (have %v)", c, out.categories))
		}
	}
	if e.Successful != nil && (out.Successful == nil || *out.Successful != *e.Successful) {
		errs = append(errs, fmt.Sprintf("successful repairs = %s, want %d", intOrNone(out.Successful), *e.Successful))
	}
	if e.Failed != nil && (out.Failed == nil || *out.Failed != *e.Failed) {
		errs = append(errs, fmt.Sprintf("failed repairs = %s, want %d", intOrNone(out.Failed), *e.Failed))
	}
	return errs
}

func intOrNone(p *int) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprint(*p)
}
