package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/blockchain/evm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Relay bridges through the Relay (relay.link) intent API.
type Relay struct {
	apiURL string
	apiKey string
	http   *http.Client
	evm    *evm.Client
}

// NewRelay creates the Relay provider adapter.
func NewRelay(apiURL, apiKey string, evmClient *evm.Client) *Relay {
	if apiURL == "" {
		apiURL = "https://api.relay.link"
	}
	return &Relay{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
		evm:    evmClient,
	}
}

func (r *Relay) ID() string { return "relay" }

// SupportsRoute requires both chains configured with an address for the
// tokens involved; Relay quotes by contract address, not symbol.
func (r *Relay) SupportsRoute(route Route) bool {
	if route.FromChain == route.ToChain {
		return false
	}
	if _, ok := r.tokenAddress(route.FromChain, route.FromToken); !ok {
		return false
	}
	if _, ok := r.tokenAddress(route.ToChain, route.ToToken); !ok {
		return false
	}
	return true
}

func (r *Relay) tokenAddress(chain, symbol string) (string, bool) {
	return tokenAddress(r.evm, chain, symbol)
}

type relayQuoteRequest struct {
	User                string `json:"user"`
	Recipient           string `json:"recipient"`
	OriginChainID       int64  `json:"originChainId"`
	DestinationChainID  int64  `json:"destinationChainId"`
	OriginCurrency      string `json:"originCurrency"`
	DestinationCurrency string `json:"destinationCurrency"`
	Amount              string `json:"amount"`
	TradeType           string `json:"tradeType"`
}

type relayQuoteResponse struct {
	Steps []struct {
		Items []struct {
			Data txRequest `json:"data"`
		} `json:"items"`
	} `json:"steps"`
	Fees struct {
		Relayer struct {
			AmountUSD string `json:"amountUsd"`
		} `json:"relayer"`
	} `json:"fees"`
	Details struct {
		TimeEstimate int `json:"timeEstimate"`
		CurrencyOut  struct {
			Amount string `json:"amount"`
		} `json:"currencyOut"`
	} `json:"details"`
}

type relayRoute struct {
	FromChain string    `json:"from_chain"`
	ToChain   string    `json:"to_chain"`
	FromToken string    `json:"from_token"`
	AmountRaw string    `json:"amount_raw"`
	Tx        txRequest `json:"tx"`
}

// GetQuote fetches a quote from POST /quote.
func (r *Relay) GetQuote(ctx context.Context, intent TransferIntent) (*Quote, error) {
	if !r.SupportsRoute(intent.Route()) {
		return nil, ErrUnsupportedRoute
	}

	raw, ok := toRawAmount(intent.Amount, intent.FromToken)
	if !ok {
		return nil, ErrUnsupportedRoute
	}

	fromCfg, _ := r.evm.Chain(intent.FromChain)
	toCfg, _ := r.evm.Chain(intent.ToChain)
	originCurrency, _ := r.tokenAddress(intent.FromChain, intent.FromToken)
	destCurrency, _ := r.tokenAddress(intent.ToChain, intent.ToToken)

	reqBody := relayQuoteRequest{
		User:                intent.WalletAddress,
		Recipient:           intent.WalletAddress,
		OriginChainID:       fromCfg.ChainID,
		DestinationChainID:  toCfg.ChainID,
		OriginCurrency:      originCurrency,
		DestinationCurrency: destCurrency,
		Amount:              raw.String(),
		TradeType:           "EXACT_INPUT",
	}

	var quote relayQuoteResponse
	if err := r.postJSON(ctx, "/quote", reqBody, &quote); err != nil {
		return nil, err
	}

	if len(quote.Steps) == 0 || len(quote.Steps[0].Items) == 0 {
		return nil, errors.Wrap(ErrProvider, "relay: quote has no executable step")
	}

	output, ok := fromRawAmount(quote.Details.CurrencyOut.Amount, intent.ToToken)
	if !ok {
		return nil, errors.Wrap(ErrProvider, "relay: unparseable output amount")
	}

	fee := decimal.Zero
	if amount, err := decimal.NewFromString(quote.Fees.Relayer.AmountUSD); err == nil {
		fee = amount
	}

	routeToken, err := json.Marshal(relayRoute{
		FromChain: intent.FromChain,
		ToChain:   intent.ToChain,
		FromToken: intent.FromToken,
		AmountRaw: raw.String(),
		Tx:        quote.Steps[0].Items[0].Data,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Quote{
		ProviderID:      r.ID(),
		EstimatedOutput: output,
		Fee:             fee,
		EtaSeconds:      quote.Details.TimeEstimate,
		RouteToken:      routeToken,
	}, nil
}

// Execute approves the Relay contract for the transfer amount, then signs
// and broadcasts the transaction prepared for the quote.
func (r *Relay) Execute(ctx context.Context, quote *Quote, signer Signer) (string, error) {
	var route relayRoute
	if err := json.Unmarshal(quote.RouteToken, &route); err != nil {
		return "", errors.Wrap(ErrProvider, "relay: corrupt route token")
	}

	spender := common.HexToAddress(route.Tx.To)
	if err := ensureTokenAllowance(ctx, r.evm, route.FromChain, route.FromToken, route.AmountRaw, spender, signer); err != nil {
		return "", wrapProviderErr("relay", err)
	}

	tx, chainID, err := buildTxFromRequest(ctx, r.evm, route.FromChain, route.Tx, signer.Address())
	if err != nil {
		return "", err
	}

	signed, err := signer.SignTx(chainID, tx)
	if err != nil {
		return "", errors.Wrapf(ErrProvider, "relay: %v", err)
	}

	txHash, err := r.evm.SendSigned(ctx, route.FromChain, signed)
	if err != nil {
		return "", wrapProviderErr("relay", err)
	}
	return txHash, nil
}

type relayStatusResponse struct {
	Status string `json:"status"` // pending, success, failure, refund
}

// GetStatus polls the intent status endpoint.
func (r *Relay) GetStatus(ctx context.Context, txRef string) (TxStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.apiURL+"/intents/status?txHash="+txRef, nil)
	if err != nil {
		return "", errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-API-KEY", r.apiKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return "", wrapProviderErr("relay", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrapf(ErrProvider, "relay: status endpoint returned %d", resp.StatusCode)
	}

	var status relayStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", errors.Wrapf(ErrProvider, "relay: decode status: %v", err)
	}

	switch status.Status {
	case "success":
		return StatusConfirmed, nil
	case "failure", "refund":
		return StatusReverted, nil
	default:
		return StatusPending, nil
	}
}

func (r *Relay) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-API-KEY", r.apiKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return wrapProviderErr("relay", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Wrapf(ErrProvider, "relay: status %s: %s", strconv.Itoa(resp.StatusCode), string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrProvider, "relay: decode response: %v", err)
	}
	return nil
}
