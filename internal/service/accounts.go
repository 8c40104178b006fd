package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/oggyb/courier/internal/domain/message"
	"github.com/oggyb/courier/internal/provider"
	"github.com/rs/zerolog"
)

// ErrSubaccountsUnavailable is returned when a method needs a provider
// subaccount but no provider key is configured.
var ErrSubaccountsUnavailable = errors.New("subaccount provider not configured")

// SubaccountProvider manages per-company subaccounts at an email provider.
type SubaccountProvider interface {
	CreateSubaccount(ctx context.Context, id, name string) (*provider.Subaccount, error)
	DeleteSubaccount(ctx context.Context, id string) error
}

// SubaccountOutcome says what CreateSubaccount did.
type SubaccountOutcome string

const (
	SubaccountCreated     SubaccountOutcome = "created"
	SubaccountReused      SubaccountOutcome = "reused"
	SubaccountNotRequired SubaccountOutcome = "not_required"
)

type SubaccountResult struct {
	Outcome   SubaccountOutcome
	SentTotal int
}

// Accounts provisions and tears down companies.
type Accounts struct {
	companies message.CompanyRepository
	mandrill  SubaccountProvider
	log       zerolog.Logger
}

// NewAccounts wires the account service. mandrill may be nil when no
// Mandrill key is configured.
func NewAccounts(companies message.CompanyRepository, mandrill SubaccountProvider, log zerolog.Logger) *Accounts {
	return &Accounts{
		companies: companies,
		mandrill:  mandrill,
		log:       log.With().Str("component", "accounts").Logger(),
	}
}

// CreateSubaccount makes sure company code has a subaccount for method.
// Only email-mandrill keeps subaccounts; other methods need nothing.
func (a *Accounts) CreateSubaccount(ctx context.Context, method message.SendMethod, code, name string) (*SubaccountResult, error) {
	if method != message.MethodEmailMandrill {
		return &SubaccountResult{Outcome: SubaccountNotRequired}, nil
	}
	if a.mandrill == nil {
		return nil, ErrSubaccountsUnavailable
	}

	sa, err := a.mandrill.CreateSubaccount(ctx, code, name)
	if err != nil {
		return nil, err
	}
	res := &SubaccountResult{Outcome: SubaccountReused, SentTotal: sa.SentTotal}
	if sa.Created {
		res.Outcome = SubaccountCreated
	}
	a.log.Info().Str("company", code).Str("outcome", string(res.Outcome)).Msg("subaccount ready")
	return res, nil
}

// DeleteSubaccount removes every company whose code starts with code,
// together with their groups, messages and events, then drops the provider
// subaccount. The store is purged even if the provider call fails.
func (a *Accounts) DeleteSubaccount(ctx context.Context, method message.SendMethod, code string) (*message.CompanyPurge, error) {
	if code == "" {
		return nil, fmt.Errorf("company code is required")
	}
	mandrill := method == message.MethodEmailMandrill
	if mandrill && a.mandrill == nil {
		return nil, ErrSubaccountsUnavailable
	}

	purge, err := a.companies.DeleteCompanies(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("delete companies: %w", err)
	}
	a.log.Info().
		Str("company", code).
		Int64("companies", purge.Companies).
		Int64("groups", purge.Groups).
		Int64("messages", purge.Messages).
		Msg("companies deleted")

	if mandrill {
		if err := a.mandrill.DeleteSubaccount(ctx, code); err != nil {
			return purge, err
		}
	}
	return purge, nil
}
