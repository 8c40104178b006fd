package cache

import "fmt"

type Prefix string

const (
	// Groups guards group uuids against reuse at ingestion.
	Groups Prefix = "group"
	// Templates holds resolved templates by group uuid.
	Templates Prefix = "template"
	// Events dedupes webhook events by signature.
	Events Prefix = "event"
	// Clicks dedupes click events by (link, ip).
	Clicks Prefix = "click"
	// SMSRates caches provider SMS pricing per country.
	SMSRates Prefix = "sms-rates"
)

func (p Prefix) Key(id string) string {
	return fmt.Sprintf("%s:%s", p, id)
}
