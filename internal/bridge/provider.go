package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// Provider-local error kinds. These never leave the aggregator unless every
// provider is exhausted.
var (
	// ErrUnsupportedRoute is returned by GetQuote before any network call
	// when the provider cannot serve the route.
	ErrUnsupportedRoute = errors.New("route not supported by provider")

	// ErrProvider is a transient provider-side failure.
	ErrProvider = errors.New("provider error")

	// ErrProviderTimeout means the provider call exceeded its deadline.
	ErrProviderTimeout = errors.New("provider timeout")
)

// IsTimeout reports whether an error counts as a provider timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrProviderTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Route is a (from_chain, to_chain, from_token, to_token) pair a provider
// may or may not support.
type Route struct {
	FromChain string
	ToChain   string
	FromToken string
	ToToken   string
}

// TransferIntent describes one bridge to perform. Immutable once built.
type TransferIntent struct {
	WalletAddress string
	FromChain     string
	ToChain       string
	FromToken     string
	ToToken       string
	Amount        decimal.Decimal
}

// Route returns the intent's route.
func (i TransferIntent) Route() Route {
	return Route{
		FromChain: i.FromChain,
		ToChain:   i.ToChain,
		FromToken: i.FromToken,
		ToToken:   i.ToToken,
	}
}

// Quote is a provider's estimate for a route. Quotes are ephemeral; the
// RouteToken carries whatever the provider needs to execute this exact
// quote and is opaque outside the provider.
type Quote struct {
	ProviderID      string
	EstimatedOutput decimal.Decimal
	Fee             decimal.Decimal
	EtaSeconds      int
	RouteToken      json.RawMessage
}

// Net returns the quote's net proceeds, the primary ranking key.
func (q Quote) Net() decimal.Decimal {
	return q.EstimatedOutput.Sub(q.Fee)
}

// TxStatus is the settlement state reported by a provider.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusConfirmed TxStatus = "confirmed"
	StatusReverted  TxStatus = "reverted"
)

// Signer signs transactions for the wallet executing a bridge. It is valid
// only for the duration of the current execution scope.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// Provider adapts one external bridge API to the common capability set.
// Chain and token symbol mapping is the only provider-specific logic;
// nothing outside this package branches on provider identity.
type Provider interface {
	ID() string

	// SupportsRoute is a static compatibility check, no network I/O.
	SupportsRoute(route Route) bool

	// GetQuote returns a quote for the intent. Must return
	// ErrUnsupportedRoute without network I/O when SupportsRoute is false.
	GetQuote(ctx context.Context, intent TransferIntent) (*Quote, error)

	// Execute performs the bridge described by the quote and returns the
	// source-chain transaction reference.
	Execute(ctx context.Context, quote *Quote, signer Signer) (string, error)

	// GetStatus reports the settlement state of a previous execution.
	GetStatus(ctx context.Context, txRef string) (TxStatus, error)
}

// tokenDecimals is the shared symbol table for the tokens this bot bridges.
var tokenDecimals = map[string]int32{
	"USDC": 6,
	"USDT": 6,
	"DAI":  18,
	"ETH":  18,
	"WETH": 18,
}

// toRawAmount converts a token-unit amount to smallest-unit integer form.
func toRawAmount(amount decimal.Decimal, symbol string) (*big.Int, bool) {
	dec, ok := tokenDecimals[symbol]
	if !ok {
		return nil, false
	}
	return amount.Shift(dec).Truncate(0).BigInt(), true
}

// fromRawAmount converts a smallest-unit integer string to token units.
func fromRawAmount(raw string, symbol string) (decimal.Decimal, bool) {
	dec, ok := tokenDecimals[symbol]
	if !ok {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return value.Shift(-dec), true
}
