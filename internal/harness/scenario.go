package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/semledger/internal/integrity"
	"github.com/roach88/semledger/internal/monitor"
)

// Scenario is a sequence of ledger steps with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Validators names the keys allowed to submit. Empty runs in open mode.
	Validators []string `yaml:"validators,omitempty"`

	// Policy is CUE schema source checked against every payload.
	Policy string `yaml:"policy,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step holds exactly one action.
type Step struct {
	Append   *AppendStep   `yaml:"append,omitempty"`
	Tamper   *TamperStep   `yaml:"tamper,omitempty"`
	Validate *ValidateStep `yaml:"validate,omitempty"`
	Repair   *RepairStep   `yaml:"repair,omitempty"`
	Verify   *VerifyStep   `yaml:"verify,omitempty"`
}

// Step kinds.
const (
	StepAppend   = "append"
	StepTamper   = "tamper"
	StepValidate = "validate"
	StepRepair   = "repair"
	StepVerify   = "verify"
)

// Kind returns the name of the action set on the step, or "" when the
// step does not hold exactly one.
func (s Step) Kind() string {
	var kinds []string
	if s.Append != nil {
		kinds = append(kinds, StepAppend)
	}
	if s.Tamper != nil {
		kinds = append(kinds, StepTamper)
	}
	if s.Validate != nil {
		kinds = append(kinds, StepValidate)
	}
	if s.Repair != nil {
		kinds = append(kinds, StepRepair)
	}
	if s.Verify != nil {
		kinds = append(kinds, StepVerify)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// AppendStep proposes, signs and submits a payload.
type AppendStep struct {
	Payload   string `yaml:"payload"`
	Validator string `yaml:"validator"`

	// Signer signs in place of the validator's own key.
	Signer string `yaml:"signer,omitempty"`

	// ExpectError is the submit error code the append must fail with, e.g.
	// UNKNOWN_VALIDATOR or POLICY_VIOLATION. Empty expects success.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// TamperStep damages one block behind the ledger's back.
type TamperStep struct {
	Block uint64 `yaml:"block"`
	Kind  string `yaml:"kind"`
}

// Tamper kinds.
const (
	TamperAddTriple  = "add_triple"
	TamperClearGraph = "clear_graph"
	TamperBreakLink  = "break_link"
	TamperDropHeader = "drop_header"
)

var tamperKinds = []string{TamperAddTriple, TamperClearGraph, TamperBreakLink, TamperDropHeader}

// ValidateStep runs the integrity validator.
type ValidateStep struct {
	// Level is a monitor level name. Empty means full.
	Level  string       `yaml:"level,omitempty"`
	Expect *Expectation `yaml:"expect,omitempty"`
}

// RepairStep validates at full level and repairs. Status expectations
// apply to the post-repair report.
type RepairStep struct {
	Expect *Expectation `yaml:"expect,omitempty"`
}

// VerifyStep runs the chain validity check.
type VerifyStep struct {
	ExpectValid *bool `yaml:"expect_valid,omitempty"`
}

// Expectation is checked against a report or repair result. Unset fields
// are not checked.
type Expectation struct {
	Status          string   `yaml:"status,omitempty"`
	CorruptedBlocks []uint64 `yaml:"corrupted_blocks,omitempty"`
	// Categories must all appear among the report's recommendations.
	Categories []string `yaml:"categories,omitempty"`
	Successful *int     `yaml:"successful,omitempty"`
	Failed     *int     `yaml:"failed,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected, so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		switch step.Kind() {
		case "":
			return fmt.Errorf("steps[%d]: exactly one of append, tamper, validate, repair, verify is required", i)
		case StepAppend:
			if step.Append.Validator == "" {
				return fmt.Errorf("steps[%d].append: validator is required", i)
			}
			if step.Append.Payload == "" {
				return fmt.Errorf("steps[%d].append: payload is required", i)
			}
		case StepTamper:
			if !slices.Contains(tamperKinds, step.Tamper.Kind) {
				return fmt.Errorf("steps[%d].tamper: unknown kind %q", i, step.Tamper.Kind)
			}
		case StepValidate:
			if step.Validate.Level != "" {
				if _, err := monitor.ParseLevel(step.Validate.Level); err != nil {
					return fmt.Errorf("steps[%d].validate: %w", i, err)
				}
			}
			if err := validateExpectation(step.Validate.Expect); err != nil {
				return fmt.Errorf("steps[%d].validate.expect: %w", i, err)
			}
		case StepRepair:
			if err := validateExpectation(step.Repair.Expect); err != nil {
				return fmt.Errorf("steps[%d].repair.expect: %w", i, err)
			}
		}
	}
	return nil
}

func validateExpectation(e *Expectation) error {
	if e == nil {
		return nil
	}
	if e.Status != "" {
		if _, err := integrity.ParseStatus(e.Status); err != nil {
			return err
		}
	}
	for _, c := range e.Categories {
		if !slices.Contains(integrity.Categories, integrity.Category(c)) {
			return fmt.Errorf("unknown category %q", c)
		}
	}
	return nil
}
