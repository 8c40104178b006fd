package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oggyb/courier/internal/cache"
	"github.com/rs/zerolog"
)

// defaultRateKey is the pricing entry used for countries without a rate.
const defaultRateKey = "0"

// ratesTTL is how long SMS pricing is cached.
const ratesTTL = 24 * time.Hour

// MessageBirdOptions configures the MessageBird provider.
type MessageBirdOptions struct {
	Key          string
	Originator   string
	USOriginator string
	// DefaultPrice is charged per part when pricing cannot be fetched.
	DefaultPrice float64
}

// MessageBird sends SMS through the MessageBird REST API and prices each
// message from the outbound pricing table.
type MessageBird struct {
	api   *apiClient
	cache cache.Cache
	opts  MessageBirdOptions
	log   zerolog.Logger
}

func NewMessageBird(baseURL string, c cache.Cache, opts MessageBirdOptions, client ClientOptions, log zerolog.Logger) *MessageBird {
	auth := func(r *http.Request) {
		r.Header.Set("Authorization", "AccessKey "+opts.Key)
	}
	return &MessageBird{
		api:   newAPIClient(baseURL, auth, client, log),
		cache: c,
		opts:  opts,
		log:   log,
	}
}

type messageBirdSend struct {
	Originator string   `json:"originator"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
	DataCoding string   `json:"datacoding"`
	Reference  string   `json:"reference"`
}

type messageBirdSent struct {
	ID         string `json:"id"`
	Recipients struct {
		TotalCount int `json:"totalCount"`
	} `json:"recipients"`
}

// price accepts both numeric and quoted prices.
type price float64

func (p *price) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*p = price(f)
	return nil
}

type messageBirdPricing struct {
	Prices []struct {
		Price          price  `json:"price"`
		MCC            string `json:"mcc"`
		CountryISOCode string `json:"countryIsoCode"`
	} `json:"prices"`
}

func (m *MessageBird) Send(ctx context.Context, env *Envelope) (*Receipt, error) {
	if env.Number == nil {
		return nil, &DispatchError{Method: env.Method, Err: errors.New("missing recipient number")}
	}

	rate, err := m.Rate(ctx, env.Number.Region)
	if err != nil {
		m.log.Error().Err(err).Msg("sms pricing unavailable, using default price")
		rate = m.opts.DefaultPrice
	}
	cost := rate * float64(max(env.Length.Parts, 1))

	var sent messageBirdSent
	err = m.api.do(ctx, http.MethodPost, "messages", messageBirdSend{
		Originator: m.originator(env),
		Body:       env.Text,
		Recipients: []string{strings.TrimPrefix(env.Number.E164, "+")},
		DataCoding: "auto",
		// a reference is required for status reports to be pushed
		Reference: "courier",
	}, &sent)
	if err != nil {
		return nil, &DispatchError{Method: env.Method, Err: err}
	}
	if sent.ID == "" {
		return nil, &DispatchError{Method: env.Method, Err: errors.New("send response missing id")}
	}
	if sent.Recipients.TotalCount != 1 {
		m.log.Error().Int("total_count", sent.Recipients.TotalCount).Str("id", sent.ID).Msg("not one recipient in send response")
	}

	m.log.Info().
		Str("number", env.Number.E164).
		Int("parts", env.Length.Parts).
		Float64("cost", cost).
		Msg("sms sent")

	return &Receipt{ExternalID: sent.ID, Cost: costOf(cost)}, nil
}

func (m *MessageBird) originator(env *Envelope) string {
	if env.Number.Region == "US" {
		return m.opts.USOriginator
	}
	if env.FromName != "" {
		return env.FromName
	}
	return m.opts.Originator
}

// Rate returns the per-part price for region, falling back to the default
// entry of the pricing table.
func (m *MessageBird) Rate(ctx context.Context, region string) (float64, error) {
	rates, err := m.rates(ctx)
	if err != nil {
		return 0, err
	}
	if r, ok := rates[region]; ok {
		return r, nil
	}
	m.log.Warn().Str("region", region).Msg("no sms rate for region, using default")
	if r, ok := rates[defaultRateKey]; ok {
		return r, nil
	}
	return 0, fmt.Errorf("no sms rate for %q and no default rate", region)
}

func (m *MessageBird) rates(ctx context.Context) (map[string]float64, error) {
	key := cache.SMSRates.Key("messagebird")

	raw, err := m.cache.Get(ctx, key)
	if err == nil {
		var rates map[string]float64
		if err := json.Unmarshal([]byte(raw), &rates); err == nil {
			return rates, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		m.log.Warn().Err(err).Msg("sms rate cache read failed")
	}

	m.log.Info().Msg("getting fresh pricing data from messagebird")
	var pricing messageBirdPricing
	if err := m.api.do(ctx, http.MethodGet, "pricing/sms/outbound", nil, &pricing); err != nil {
		return nil, err
	}

	rates := make(map[string]float64, len(pricing.Prices))
	for _, p := range pricing.Prices {
		if p.MCC == defaultRateKey {
			rates[defaultRateKey] = float64(p.Price)
			continue
		}
		if p.CountryISOCode == "" {
			continue
		}
		// the first entry of a country wins; per-network rates are ignored
		if _, ok := rates[p.CountryISOCode]; !ok {
			rates[p.CountryISOCode] = float64(p.Price)
		}
	}
	if _, ok := rates[defaultRateKey]; !ok {
		m.log.Error().Msg(`no default messagebird pricing with mcc "0"`)
	}

	if b, err := json.Marshal(rates); err == nil {
		if err := m.cache.Set(ctx, key, string(b), ratesTTL); err != nil {
			m.log.Warn().Err(err).Msg("sms rate cache write failed")
		}
	}
	return rates, nil
}

var _ Provider = (*MessageBird)(nil)
