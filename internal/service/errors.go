package service

import (
	"errors"
	"fmt"

	"github.com/oggyb/courier/internal/domain/message"
)

// ErrDuplicateGroup is returned when a group uuid has been submitted before.
var ErrDuplicateGroup = errors.New("group uuid already used")

// CostLimitError rejects an SMS group whose company already spent its
// monthly limit.
type CostLimitError struct {
	Limit float64
	Spend float64
}

func (e *CostLimitError) Error() string {
	return fmt.Sprintf("cost limit exceeded: spent %.4f of %.4f this month", e.Spend, e.Limit)
}

// UnknownMessageError is returned for a delivery event that matches no
// message. The event is dropped.
type UnknownMessageError struct {
	Method     message.SendMethod
	ExternalID string
}

func (e *UnknownMessageError) Error() string {
	return fmt.Sprintf("no %s message with external id %q", e.Method, e.ExternalID)
}
