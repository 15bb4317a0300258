package bridge

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"sync"

	"github.com/Tom-Bini/manus-bridge-bot/internal/blockchain/evm"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const stargateRouterABIJSON = `[
	{"inputs":[
		{"internalType":"uint16","name":"_dstChainId","type":"uint16"},
		{"internalType":"uint256","name":"_srcPoolId","type":"uint256"},
		{"internalType":"uint256","name":"_dstPoolId","type":"uint256"},
		{"internalType":"address payable","name":"_refundAddress","type":"address"},
		{"internalType":"uint256","name":"_amountLD","type":"uint256"},
		{"internalType":"uint256","name":"_minAmountLD","type":"uint256"},
		{"internalType":"bytes","name":"_to","type":"bytes"},
		{"internalType":"bytes","name":"_payload","type":"bytes"},
		{"internalType":"bytes","name":"_additionalData","type":"bytes"}],
	 "name":"swap","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[
		{"internalType":"uint16","name":"_dstChainId","type":"uint16"},
		{"internalType":"uint256","name":"_srcPoolId","type":"uint256"},
		{"internalType":"uint256","name":"_dstPoolId","type":"uint256"},
		{"internalType":"address payable","name":"_refundAddress","type":"address"}],
	 "name":"quoteLayerZeroFee",
	 "outputs":[{"internalType":"uint256","name":"","type":"uint256"},{"internalType":"uint256","name":"","type":"uint256"}],
	 "stateMutability":"view","type":"function"}
]`

var (
	stargateABI     abi.ABI
	stargateABIOnce sync.Once
)

func loadStargateABI() abi.ABI {
	stargateABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(stargateRouterABIJSON))
		if err != nil {
			panic(err)
		}
		stargateABI = parsed
	})
	return stargateABI
}

type stargateChain struct {
	LZChainID uint16
	Router    string
}

// stargateChains maps chain names to LayerZero chain ids and router
// contracts.
var stargateChains = map[string]stargateChain{
	"ethereum":            {1, "0x8731d54E9D02c286767d56ac03e8037C07e01e98"},
	"binance-smart-chain": {2, "0x4a364f8c717cAAD9A442737Eb7b8A55cc6cf18D8"},
	"avalanche":           {6, "0x45A01E4e04F14f7A4a6702c74187c5F6222033cd"},
	"polygon":             {9, "0x45A01E4e04F14f7A4a6702c74187c5F6222033cd"},
	"arbitrum":            {10, "0x53Bf833A5d6c4ddA888F69c22C88C9f356a41614"},
	"optimism":            {11, "0xB0D502E938ed5f4df2E681fE6E419ff29631d62b"},
	"base":                {30, "0x45f5b7eDBCB52D6BF06C80395498097B6A8e9251"},
}

// stargatePools maps token symbols to per-chain pool ids. A route is only
// bridgeable when both endpoints share a pool for the token.
var stargatePools = map[string]map[string]int64{
	"USDC": {
		"ethereum": 1, "binance-smart-chain": 1, "avalanche": 1,
		"polygon": 1, "arbitrum": 1, "optimism": 1, "base": 1,
	},
	"USDT": {
		"ethereum": 2, "binance-smart-chain": 2, "avalanche": 2,
		"polygon": 2, "arbitrum": 2,
	},
}

// Pool transfers skim this fraction as the protocol fee.
var stargatePoolFeeRate = decimal.RequireFromString("0.0006")

// Executed swaps tolerate this much slippage on the destination amount.
var stargateSlippage = decimal.RequireFromString("0.005")

const stargateEtaSeconds = 60

// Stargate bridges stablecoins through the on-chain Stargate router; there
// is no REST API, quotes and swaps both go through the contract.
type Stargate struct {
	evm *evm.Client
}

// NewStargate creates the Stargate provider adapter.
func NewStargate(evmClient *evm.Client) *Stargate {
	return &Stargate{evm: evmClient}
}

func (s *Stargate) ID() string { return "stargate" }

// SupportsRoute checks the chain and pool tables. Stargate cannot change
// tokens in flight, so from and to token must match.
func (s *Stargate) SupportsRoute(route Route) bool {
	if route.FromChain == route.ToChain || route.FromToken != route.ToToken {
		return false
	}
	if _, ok := stargateChains[route.FromChain]; !ok {
		return false
	}
	if _, ok := stargateChains[route.ToChain]; !ok {
		return false
	}
	pools, ok := stargatePools[route.FromToken]
	if !ok {
		return false
	}
	if _, ok := pools[route.FromChain]; !ok {
		return false
	}
	if _, ok := pools[route.ToChain]; !ok {
		return false
	}
	return true
}

type stargateRoute struct {
	FromChain string `json:"from_chain"`
	ToChain   string `json:"to_chain"`
	Token     string `json:"token"`
	AmountRaw string `json:"amount_raw"`
	NativeFee string `json:"native_fee"`
}

// GetQuote prices the route via the router's quoteLayerZeroFee view call.
func (s *Stargate) GetQuote(ctx context.Context, intent TransferIntent) (*Quote, error) {
	if !s.SupportsRoute(intent.Route()) {
		return nil, ErrUnsupportedRoute
	}

	from := stargateChains[intent.FromChain]
	to := stargateChains[intent.ToChain]
	router := common.HexToAddress(from.Router)
	refund := common.HexToAddress(intent.WalletAddress)

	parsed := loadStargateABI()
	data, err := parsed.Pack("quoteLayerZeroFee",
		to.LZChainID,
		big.NewInt(stargatePools[intent.FromToken][intent.FromChain]),
		big.NewInt(stargatePools[intent.ToToken][intent.ToChain]),
		refund,
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	result, err := s.evm.CallContract(ctx, intent.FromChain, router, data)
	if err != nil {
		return nil, wrapProviderErr("stargate", err)
	}

	out, err := parsed.Unpack("quoteLayerZeroFee", result)
	if err != nil || len(out) < 1 {
		return nil, errors.Wrap(ErrProvider, "stargate: unpack quoteLayerZeroFee")
	}
	nativeFee, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Wrap(ErrProvider, "stargate: unexpected fee type")
	}

	raw, ok := toRawAmount(intent.Amount, intent.FromToken)
	if !ok {
		return nil, ErrUnsupportedRoute
	}

	poolFee := intent.Amount.Mul(stargatePoolFeeRate)

	routeToken, err := json.Marshal(stargateRoute{
		FromChain: intent.FromChain,
		ToChain:   intent.ToChain,
		Token:     intent.FromToken,
		AmountRaw: raw.String(),
		NativeFee: nativeFee.String(),
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Quote{
		ProviderID:      s.ID(),
		EstimatedOutput: intent.Amount.Sub(poolFee),
		Fee:             poolFee,
		EtaSeconds:      stargateEtaSeconds,
		RouteToken:      routeToken,
	}, nil
}

// Execute approves the router for the pool amount, then submits the swap
// with the quoted LayerZero fee attached.
func (s *Stargate) Execute(ctx context.Context, quote *Quote, signer Signer) (string, error) {
	var route stargateRoute
	if err := json.Unmarshal(quote.RouteToken, &route); err != nil {
		return "", errors.Wrap(ErrProvider, "stargate: corrupt route token")
	}

	from := stargateChains[route.FromChain]
	to := stargateChains[route.ToChain]

	if err := ensureTokenAllowance(ctx, s.evm, route.FromChain, route.Token, route.AmountRaw, common.HexToAddress(from.Router), signer); err != nil {
		return "", wrapProviderErr("stargate", err)
	}

	amountLD, ok := new(big.Int).SetString(route.AmountRaw, 10)
	if !ok {
		return "", errors.Wrap(ErrProvider, "stargate: corrupt amount in route token")
	}
	nativeFee, ok := new(big.Int).SetString(route.NativeFee, 10)
	if !ok {
		return "", errors.Wrap(ErrProvider, "stargate: corrupt fee in route token")
	}

	amountDec := decimal.NewFromBigInt(amountLD, 0)
	minAmountLD := amountDec.Sub(amountDec.Mul(stargateSlippage)).Truncate(0).BigInt()

	parsed := loadStargateABI()
	data, err := parsed.Pack("swap",
		to.LZChainID,
		big.NewInt(stargatePools[route.Token][route.FromChain]),
		big.NewInt(stargatePools[route.Token][route.ToChain]),
		signer.Address(),
		amountLD,
		minAmountLD,
		signer.Address().Bytes(),
		[]byte{},
		[]byte{},
	)
	if err != nil {
		return "", errors.WithStack(err)
	}

	nonce, err := s.evm.PendingNonce(ctx, route.FromChain, signer.Address())
	if err != nil {
		return "", wrapProviderErr("stargate", err)
	}
	gasPrice, err := s.evm.SuggestGasPrice(ctx, route.FromChain)
	if err != nil {
		return "", wrapProviderErr("stargate", err)
	}
	chainID, err := s.evm.ChainID(route.FromChain)
	if err != nil {
		return "", errors.Wrap(ErrProvider, err.Error())
	}

	tx := types.NewTransaction(nonce, common.HexToAddress(from.Router), nativeFee, 500000, gasPrice, data)

	signed, err := signer.SignTx(chainID, tx)
	if err != nil {
		return "", errors.Wrapf(ErrProvider, "stargate: %v", err)
	}

	txHash, err := s.evm.SendSigned(ctx, route.FromChain, signed)
	if err != nil {
		return "", wrapProviderErr("stargate", err)
	}
	return txHash, nil
}

// GetStatus checks the source-chain receipt; Stargate has no status API, so
// confirmed means the swap was mined without revert.
func (s *Stargate) GetStatus(ctx context.Context, txRef string) (TxStatus, error) {
	// The source chain is not encoded in the hash; scan configured chains.
	for name := range stargateChains {
		if _, ok := s.evm.Chain(name); !ok {
			continue
		}
		receipt, err := s.evm.TransactionReceipt(ctx, name, txRef)
		if err != nil || receipt == nil {
			continue
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			return StatusConfirmed, nil
		}
		return StatusReverted, nil
	}
	return StatusPending, nil
}
