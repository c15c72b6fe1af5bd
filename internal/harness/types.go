package harness

// StepOutcome records what one step did. Only fields that are stable
// across runs are recorded, so outcomes can be compared with golden files.
type StepOutcome struct {
	Step int    `json:"step"`
	Kind string `json:"kind"`

	// Block is the committed or tampered block index.
	Block *uint64 `json:"block,omitempty"`

	// Error is the submit error code of a rejected append.
	Error string `json:"error,omitempty"`

	Status          string   `json:"status,omitempty"`
	ChainLength     int      `json:"chain_length,omitempty"`
	CorruptedBlocks []uint64 `json:"corrupted_blocks,omitempty"`

	Successful *int  `json:"successful,omitempty"`
	Failed     *int  `json:"failed,omitempty"`
	Valid      *bool `json:"valid,omitempty"`

	// categories feeds expectation checks and is not serialized.
	categories []string
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	Steps []StepOutcome `json:"steps"`

	// Errors lists failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepOutcome{},
		Errors: []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
