package engine

import "fmt"

// DefaultEventQuota is the default maximum number of event executions at a
// single time point.
const DefaultEventQuota = 10000

// QuotaEnforcer bounds the event cascade at one time point.
//
// Executing an event can make other triggers true, and delay-free firings
// execute at the same time point. A model whose events keep re-arming each
// other would never let the integrator resume; the quota cuts the cascade.
// Pending firings left over stay queued for the next poll.
type QuotaEnforcer struct {
	maxSteps int
	current  int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
func NewQuotaEnforcer(maxSteps int) *QuotaEnforcer {
	return &QuotaEnforcer{maxSteps: maxSteps}
}

// Check counts one more execution and reports when it exceeds the limit.
func (q *QuotaEnforcer) Check(t float64) *CascadeLimitError {
	q.current++
	if q.current > q.maxSteps {
		return &CascadeLimitError{
			Time:  t,
			Steps: q.current,
			Limit: q.maxSteps,
		}
	}
	return nil
}

// CascadeLimitError is reported when one time point executes more events
// than the quota allows.
type CascadeLimitError struct {
	Time  float64
	Steps int
	Limit int
}

// Error implements the error interface.
func (e *CascadeLimitError) Error() string {
	return fmt.Sprintf("event cascade at t=%g exceeded quota: %d executions > %d limit",
		e.Time, e.Steps, e.Limit)
}
