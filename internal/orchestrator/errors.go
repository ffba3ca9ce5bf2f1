package orchestrator

// #region imports
import "fmt"

// #endregion

// #region policy-error

// PolicyError wraps a failed or out-of-contract external policy call.
// It is always recoverable: the orchestrator logs it and proceeds with
// the deterministic fallback for the role, so a broken policy can slow
// a session down but never strand it.
type PolicyError struct {
	Role string // "stop", "routing", "construction"
	Err  error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s policy: %v", e.Role, e.Err)
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// #endregion

// #region consistency-error

// ConsistencyError reports a derived-state invariant violation found
// after recomputation. It signals a defect in the scoring pipeline, not
// a bad input, and is returned to the caller rather than absorbed.
type ConsistencyError struct {
	Check  string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency check %q failed: %s", e.Check, e.Detail)
}

// #endregion
