package bridge

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/blockchain/evm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// jumperChainKeys maps chain names to LI.FI chain keys.
var jumperChainKeys = map[string]string{
	"ethereum":            "ETH",
	"polygon":             "POL",
	"arbitrum":            "ARB",
	"optimism":            "OPT",
	"avalanche":           "AVA",
	"binance-smart-chain": "BSC",
	"base":                "BAS",
}

// Jumper bridges through the LI.FI aggregator API (jumper.exchange).
type Jumper struct {
	apiURL string
	apiKey string
	http   *http.Client
	evm    *evm.Client
}

// NewJumper creates the LI.FI provider adapter.
func NewJumper(apiURL, apiKey string, evmClient *evm.Client) *Jumper {
	if apiURL == "" {
		apiURL = "https://li.quest/v1"
	}
	return &Jumper{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
		evm:    evmClient,
	}
}

func (j *Jumper) ID() string { return "jumper" }

// SupportsRoute checks the static chain-key and token tables.
func (j *Jumper) SupportsRoute(route Route) bool {
	if _, ok := jumperChainKeys[route.FromChain]; !ok {
		return false
	}
	if _, ok := jumperChainKeys[route.ToChain]; !ok {
		return false
	}
	if _, ok := tokenDecimals[route.FromToken]; !ok {
		return false
	}
	if _, ok := tokenDecimals[route.ToToken]; !ok {
		return false
	}
	return route.FromChain != route.ToChain
}

type jumperQuoteResponse struct {
	Tool     string `json:"tool"`
	Estimate struct {
		ToAmount          string `json:"toAmount"`
		ExecutionDuration int    `json:"executionDuration"`
		FeeCosts          []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"feeCosts"`
	} `json:"estimate"`
	TransactionRequest txRequest `json:"transactionRequest"`
	Action             struct {
		FromChainID int64 `json:"fromChainId"`
	} `json:"action"`
}

// txRequest is the transaction payload REST providers return with a quote.
type txRequest struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	GasLimit string `json:"gasLimit"`
	GasPrice string `json:"gasPrice"`
	ChainID  int64  `json:"chainId"`
}

// jumperRoute is the opaque route token carried inside the quote.
type jumperRoute struct {
	FromChain string    `json:"from_chain"`
	ToChain   string    `json:"to_chain"`
	FromToken string    `json:"from_token"`
	AmountRaw string    `json:"amount_raw"`
	Tool      string    `json:"tool"`
	Tx        txRequest `json:"tx"`
}

// GetQuote fetches a quote from GET /quote.
func (j *Jumper) GetQuote(ctx context.Context, intent TransferIntent) (*Quote, error) {
	if !j.SupportsRoute(intent.Route()) {
		return nil, ErrUnsupportedRoute
	}

	raw, ok := toRawAmount(intent.Amount, intent.FromToken)
	if !ok {
		return nil, ErrUnsupportedRoute
	}

	params := url.Values{}
	params.Set("fromChain", jumperChainKeys[intent.FromChain])
	params.Set("toChain", jumperChainKeys[intent.ToChain])
	params.Set("fromToken", intent.FromToken)
	params.Set("toToken", intent.ToToken)
	params.Set("fromAmount", raw.String())
	params.Set("fromAddress", intent.WalletAddress)

	var quote jumperQuoteResponse
	if err := j.getJSON(ctx, "/quote", params, &quote); err != nil {
		return nil, err
	}

	output, ok := fromRawAmount(quote.Estimate.ToAmount, intent.ToToken)
	if !ok {
		return nil, errors.Wrap(ErrProvider, "jumper: unparseable toAmount")
	}

	fee := decimal.Zero
	for _, fc := range quote.Estimate.FeeCosts {
		if amount, err := decimal.NewFromString(fc.AmountUSD); err == nil {
			fee = fee.Add(amount)
		}
	}

	routeToken, err := json.Marshal(jumperRoute{
		FromChain: intent.FromChain,
		ToChain:   intent.ToChain,
		FromToken: intent.FromToken,
		AmountRaw: raw.String(),
		Tool:      quote.Tool,
		Tx:        quote.TransactionRequest,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Quote{
		ProviderID:      j.ID(),
		EstimatedOutput: output,
		Fee:             fee,
		EtaSeconds:      quote.Estimate.ExecutionDuration,
		RouteToken:      routeToken,
	}, nil
}

// Execute approves the LI.FI contract for the transfer amount, then signs
// and broadcasts the transaction prepared for the quote.
func (j *Jumper) Execute(ctx context.Context, quote *Quote, signer Signer) (string, error) {
	var route jumperRoute
	if err := json.Unmarshal(quote.RouteToken, &route); err != nil {
		return "", errors.Wrap(ErrProvider, "jumper: corrupt route token")
	}

	spender := common.HexToAddress(route.Tx.To)
	if err := ensureTokenAllowance(ctx, j.evm, route.FromChain, route.FromToken, route.AmountRaw, spender, signer); err != nil {
		return "", wrapProviderErr("jumper", err)
	}

	tx, chainID, err := buildTxFromRequest(ctx, j.evm, route.FromChain, route.Tx, signer.Address())
	if err != nil {
		return "", err
	}

	signed, err := signer.SignTx(chainID, tx)
	if err != nil {
		return "", errors.Wrapf(ErrProvider, "jumper: %v", err)
	}

	txHash, err := j.evm.SendSigned(ctx, route.FromChain, signed)
	if err != nil {
		return "", wrapProviderErr("jumper", err)
	}
	return txHash, nil
}

type jumperStatusResponse struct {
	Status string `json:"status"` // NOT_FOUND, PENDING, DONE, FAILED
}

// GetStatus polls GET /status for the bridge transaction.
func (j *Jumper) GetStatus(ctx context.Context, txRef string) (TxStatus, error) {
	params := url.Values{}
	params.Set("txHash", txRef)

	var status jumperStatusResponse
	if err := j.getJSON(ctx, "/status", params, &status); err != nil {
		return "", err
	}

	switch status.Status {
	case "DONE":
		return StatusConfirmed, nil
	case "FAILED":
		return StatusReverted, nil
	default:
		return StatusPending, nil
	}
}

func (j *Jumper) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.apiURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	if j.apiKey != "" {
		req.Header.Set("X-API-KEY", j.apiKey)
	}

	resp, err := j.http.Do(req)
	if err != nil {
		return wrapProviderErr("jumper", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Wrapf(ErrProvider, "jumper: status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(ErrProvider, "jumper: decode response: %v", err)
	}
	return nil
}

// wrapProviderErr classifies transport failures, mapping deadline expiry to
// the timeout kind so the aggregator can tell the two apart.
func wrapProviderErr(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(ErrProviderTimeout, "%s: %v", provider, err)
	}
	if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
		return errors.Wrapf(ErrProviderTimeout, "%s: %v", provider, err)
	}
	return errors.Wrapf(ErrProvider, "%s: %v", provider, err)
}

// buildTxFromRequest turns a provider tx payload into a signed-ready legacy
// transaction with the wallet's next nonce.
func buildTxFromRequest(ctx context.Context, client *evm.Client, chain string, req txRequest, from common.Address) (*types.Transaction, *big.Int, error) {
	nonce, err := client.PendingNonce(ctx, chain, from)
	if err != nil {
		return nil, nil, err
	}

	gasPrice := parseBigInt(req.GasPrice)
	if gasPrice == nil || gasPrice.Sign() == 0 {
		gasPrice, err = client.SuggestGasPrice(ctx, chain)
		if err != nil {
			return nil, nil, err
		}
	}

	gasLimit := parseBigInt(req.GasLimit)
	if gasLimit == nil || gasLimit.Sign() == 0 {
		gasLimit = big.NewInt(500000)
	}

	value := parseBigInt(req.Value)
	if value == nil {
		value = big.NewInt(0)
	}

	data := common.FromHex(req.Data)
	to := common.HexToAddress(req.To)

	chainID, err := client.ChainID(chain)
	if err != nil {
		return nil, nil, errors.Wrap(ErrProvider, err.Error())
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit.Uint64(), gasPrice, data)
	return tx, chainID, nil
}

// tokenAddress resolves a token contract from the chain configuration.
func tokenAddress(client *evm.Client, chain, symbol string) (string, bool) {
	cfg, ok := client.Chain(chain)
	if !ok {
		return "", false
	}
	for _, token := range cfg.Tokens {
		if token.Symbol == symbol {
			return token.Address, true
		}
	}
	return "", false
}

// ensureTokenAllowance grants the spender the transfer amount before an
// ERC-20 bridge broadcasts. The approval is confirmed on chain before this
// returns. Native coin routes have no token contract configured and need no
// approval.
func ensureTokenAllowance(ctx context.Context, client *evm.Client, chain, symbol, amountRaw string, spender common.Address, signer Signer) error {
	if symbol == "ETH" {
		return nil
	}
	address, ok := tokenAddress(client, chain, symbol)
	if !ok || address == "" {
		return nil
	}

	amount, ok := new(big.Int).SetString(amountRaw, 10)
	if !ok {
		return errors.Wrap(ErrProvider, "corrupt amount in route token")
	}
	return client.EnsureAllowance(ctx, chain, address, spender, amount, signer)
}

// parseBigInt accepts decimal or 0x-prefixed hex strings.
func parseBigInt(s string) *big.Int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil
		}
		return v
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}
