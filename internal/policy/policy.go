package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/semledger/internal/rdf"
)

// ErrPolicyViolation marks a payload rejected by a policy.
var ErrPolicyViolation = errors.New("policy violation")

// Policy validates a payload before it becomes a block.
type Policy interface {
	Check(ctx context.Context, triples []rdf.Triple) error
}

// Allow is the policy used when none is configured. It accepts everything.
type Allow struct{}

func (Allow) Check(context.Context, []rdf.Triple) error { return nil }

// Violation describes the first statement a policy rejected.
// Index is -1 when the payload as a whole was rejected.
type Violation struct {
	Index   int
	Triple  string
	Message string
}

func (v *Violation) Error() string {
	if v.Index < 0 {
		return fmt.Sprintf("policy violation: payload: %s", v.Message)
	}
	return fmt.Sprintf("policy violation: statement %d %s: %s", v.Index, v.Triple, v.Message)
}

func (v *Violation) Unwrap() error { return ErrPolicyViolation }
