package message

import "fmt"

// SendMethod selects the provider a group is dispatched through.
type SendMethod string

const (
	MethodEmailMandrill  SendMethod = "email-mandrill"
	MethodEmailSES       SendMethod = "email-ses"
	MethodEmailTest      SendMethod = "email-test"
	MethodSMSMessagebird SendMethod = "sms-messagebird"
	MethodSMSTest        SendMethod = "sms-test"
)

// Methods lists every supported send method.
var Methods = []SendMethod{
	MethodEmailMandrill,
	MethodEmailSES,
	MethodEmailTest,
	MethodSMSMessagebird,
	MethodSMSTest,
}

// ParseSendMethod validates s against the known send methods.
func ParseSendMethod(s string) (SendMethod, error) {
	for _, m := range Methods {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// IsEmail reports whether the method delivers email.
func (m SendMethod) IsEmail() bool {
	return m == MethodEmailMandrill || m == MethodEmailSES || m == MethodEmailTest
}

// IsSMS reports whether the method delivers SMS.
func (m SendMethod) IsSMS() bool {
	return m == MethodSMSMessagebird || m == MethodSMSTest
}

// Status is the delivery status of a message. The declaration order below is
// the canonical ordering used for reporting.
type Status string

const (
	StatusRenderFailed      Status = "render_failed"
	StatusSendRequestFailed Status = "send_request_failed"
	StatusReject            Status = "reject"

	StatusSend       Status = "send"
	StatusDeferral   Status = "deferral"
	StatusHardBounce Status = "hard_bounce"
	StatusSoftBounce Status = "soft_bounce"
	StatusOpen       Status = "open"
	StatusClick      Status = "click"
	StatusSpam       Status = "spam"
	StatusUnsub      Status = "unsub"

	// sms
	StatusScheduled      Status = "scheduled"
	StatusBuffered       Status = "buffered"
	StatusDelivered      Status = "delivered"
	StatusExpired        Status = "expired"
	StatusDeliveryFailed Status = "delivery_failed"
)

// Statuses is the ordered status enum.
var Statuses = []Status{
	StatusRenderFailed,
	StatusSendRequestFailed,
	StatusReject,
	StatusSend,
	StatusDeferral,
	StatusHardBounce,
	StatusSoftBounce,
	StatusOpen,
	StatusClick,
	StatusSpam,
	StatusUnsub,
	StatusScheduled,
	StatusBuffered,
	StatusDelivered,
	StatusExpired,
	StatusDeliveryFailed,
}

// ParseStatus validates s against the status enum.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Rank is the position of s in the ordered enum, or -1 if unknown.
func (s Status) Rank() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

// Failed reports whether the message never reached a provider.
func (s Status) Failed() bool {
	return s == StatusRenderFailed || s == StatusSendRequestFailed || s == StatusReject
}
