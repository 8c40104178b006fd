// Package quota emulates provider sending allowances for send methods that
// do not enforce one upstream.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oggyb/courier/internal/domain/message"
)

// QuotaExceededError is returned when a reservation does not fit in the
// remaining allowance of the current window.
type QuotaExceededError struct {
	Method    message.SendMethod
	Requested int
	Remaining int
	ResetAt   time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: requested %d, remaining %d until %s",
		e.Method, e.Requested, e.Remaining, e.ResetAt.Format(time.RFC3339))
}

// Policy is the emulated allowance for one send method.
type Policy struct {
	Allowance int
	Window    time.Duration
}

// Policies maps a send method to its policy. Methods without an entry are
// limited upstream and never emulated.
type Policies map[message.SendMethod]Policy

// DefaultPolicies emulates the real providers' allowances on the test
// methods, so load tests exercise the same admission behaviour.
func DefaultPolicies(emailTest, smsTest int, window time.Duration) Policies {
	return Policies{
		message.MethodEmailTest: {Allowance: emailTest, Window: window},
		message.MethodSMSTest:   {Allowance: smsTest, Window: window},
	}
}

// For returns the policy for method and whether one applies. Windows are
// counted in whole milliseconds, so anything shorter disables emulation.
func (p Policies) For(method message.SendMethod) (Policy, bool) {
	pol, ok := p[method]
	if !ok || pol.Window < time.Millisecond {
		return Policy{}, false
	}
	return pol, true
}

// Reservation is a granted slice of allowance. Remaining is -1 when the
// method is not emulated.
type Reservation struct {
	Granted   int
	Remaining int
	ResetAt   time.Time
}

// Ledger reserves allowance atomically.
type Ledger interface {
	Reserve(ctx context.Context, company string, method message.SendMethod, count int) (Reservation, error)
}

// Admit reserves as much of n as the ledger allows and returns the admitted
// count. A shortfall is not an error: the caller rejects the excess.
func Admit(ctx context.Context, l Ledger, company string, method message.SendMethod, n int) (int, error) {
	want := n
	for attempt := 0; attempt < 3 && want > 0; attempt++ {
		res, err := l.Reserve(ctx, company, method, want)
		if err == nil {
			return res.Granted, nil
		}

		var qe *QuotaExceededError
		if !errors.As(err, &qe) {
			return 0, err
		}
		// another reservation may have landed in between, so retry with
		// whatever is left now
		want = min(qe.Remaining, want)
	}
	return 0, nil
}
