package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/config"
	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var (
	erc20ABI     abi.ABI
	erc20ABIOnce sync.Once
)

func loadERC20ABI() abi.ABI {
	erc20ABIOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
		if err != nil {
			panic(err)
		}
		erc20ABI = parsed
	})
	return erc20ABI
}

// Client holds one ethclient per configured chain, dialed lazily.
type Client struct {
	chains map[string]config.ChainConfig

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

// NewClient builds a multi-chain client from the configured chain list.
func NewClient(chains []config.ChainConfig) *Client {
	chainMap := make(map[string]config.ChainConfig, len(chains))
	for _, c := range chains {
		chainMap[c.Name] = c
	}
	return &Client{
		chains:  chainMap,
		clients: make(map[string]*ethclient.Client),
	}
}

// Chain returns the configuration for a chain name.
func (c *Client) Chain(name string) (config.ChainConfig, bool) {
	cfg, ok := c.chains[name]
	return cfg, ok
}

// Chains returns all configured chains.
func (c *Client) Chains() []config.ChainConfig {
	out := make([]config.ChainConfig, 0, len(c.chains))
	for _, cfg := range c.chains {
		out = append(out, cfg)
	}
	return out
}

func (c *Client) client(chain string) (*ethclient.Client, error) {
	cfg, ok := c.chains[chain]
	if !ok {
		return nil, errors.Wrapf(entities.ErrValidation, "unknown chain %q", chain)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[chain]; ok {
		return client, nil
	}

	client, err := ethclient.Dial(cfg.RpcURL)
	if err != nil {
		return nil, errors.Wrapf(entities.ErrChainUnreachable, "dial %s: %v", chain, err)
	}
	c.clients[chain] = client
	return client, nil
}

// NativeBalance returns the native coin balance of an address.
func (c *Client) NativeBalance(ctx context.Context, chain, address string) (decimal.Decimal, error) {
	client, err := c.client(chain)
	if err != nil {
		return decimal.Zero, err
	}

	wei, err := client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, errors.Wrapf(entities.ErrChainUnreachable, "balance %s: %v", chain, err)
	}

	return decimal.NewFromBigInt(wei, -18), nil
}

// TokenBalance returns the ERC-20 balance of an address, scaled by decimals.
func (c *Client) TokenBalance(ctx context.Context, chain, tokenAddress, address string, decimals int) (decimal.Decimal, error) {
	client, err := c.client(chain)
	if err != nil {
		return decimal.Zero, err
	}

	parsed := loadERC20ABI()
	data, err := parsed.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, errors.WithStack(err)
	}

	token := common.HexToAddress(tokenAddress)
	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, errors.Wrapf(entities.ErrChainUnreachable, "balanceOf %s: %v", chain, err)
	}

	out, err := parsed.Unpack("balanceOf", result)
	if err != nil || len(out) == 0 {
		return decimal.Zero, errors.Wrap(err, "unpack balanceOf")
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, errors.New("unexpected balanceOf return type")
	}

	return decimal.NewFromBigInt(raw, -int32(decimals)), nil
}

// TxSigner signs a prepared transaction for a chain id. *Signer satisfies
// it.
type TxSigner interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// Allowance returns the raw ERC-20 allowance owner granted spender.
func (c *Client) Allowance(ctx context.Context, chain, tokenAddress string, owner, spender common.Address) (*big.Int, error) {
	parsed := loadERC20ABI()
	data, err := parsed.Pack("allowance", owner, spender)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	result, err := c.CallContract(ctx, chain, common.HexToAddress(tokenAddress), data)
	if err != nil {
		return nil, err
	}

	out, err := parsed.Unpack("allowance", result)
	if err != nil || len(out) == 0 {
		return nil, errors.Wrap(err, "unpack allowance")
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected allowance return type")
	}
	return raw, nil
}

// EnsureAllowance checks the spender's ERC-20 allowance and, when it is
// below amount, sends an approve transaction and waits for it to mine.
// Routers pull ERC-20 funds via transferFrom, so the approval must be
// confirmed before the bridge transaction broadcasts.
func (c *Client) EnsureAllowance(ctx context.Context, chain, tokenAddress string, spender common.Address, amount *big.Int, signer TxSigner) error {
	owner := signer.Address()
	current, err := c.Allowance(ctx, chain, tokenAddress, owner, spender)
	if err != nil {
		return err
	}
	if current.Cmp(amount) >= 0 {
		return nil
	}

	parsed := loadERC20ABI()
	data, err := parsed.Pack("approve", spender, amount)
	if err != nil {
		return errors.WithStack(err)
	}

	nonce, err := c.PendingNonce(ctx, chain, owner)
	if err != nil {
		return err
	}
	gasPrice, err := c.SuggestGasPrice(ctx, chain)
	if err != nil {
		return err
	}
	chainID, err := c.ChainID(chain)
	if err != nil {
		return err
	}

	tx := types.NewTransaction(nonce, common.HexToAddress(tokenAddress), big.NewInt(0), 100000, gasPrice, data)
	signed, err := signer.SignTx(chainID, tx)
	if err != nil {
		return errors.Wrap(err, "sign approve transaction")
	}

	txHash, err := c.SendSigned(ctx, chain, signed)
	if err != nil {
		return err
	}
	return c.waitMined(ctx, chain, txHash)
}

// waitMined polls for the transaction receipt until it mines, it reverts,
// or the context expires.
func (c *Client) waitMined(ctx context.Context, chain, txHash string) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, chain, txHash)
		if err != nil {
			return err
		}
		if receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return errors.Errorf("transaction %s reverted on %s", txHash, chain)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.WithStack(ctx.Err())
		case <-ticker.C:
		}
	}
}

// CallContract performs a read-only contract call on a chain.
func (c *Client) CallContract(ctx context.Context, chain string, to common.Address, data []byte) ([]byte, error) {
	client, err := c.client(chain)
	if err != nil {
		return nil, err
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(entities.ErrChainUnreachable, "call %s: %v", chain, err)
	}
	return result, nil
}

// SendSigned broadcasts a signed transaction and returns its hash.
func (c *Client) SendSigned(ctx context.Context, chain string, tx *types.Transaction) (string, error) {
	client, err := c.client(chain)
	if err != nil {
		return "", err
	}

	if err := client.SendTransaction(ctx, tx); err != nil {
		return "", errors.Wrapf(err, "send transaction on %s", chain)
	}
	return tx.Hash().Hex(), nil
}

// PendingNonce returns the next nonce for an address.
func (c *Client) PendingNonce(ctx context.Context, chain string, address common.Address) (uint64, error) {
	client, err := c.client(chain)
	if err != nil {
		return 0, err
	}
	nonce, err := client.PendingNonceAt(ctx, address)
	if err != nil {
		return 0, errors.Wrapf(entities.ErrChainUnreachable, "nonce %s: %v", chain, err)
	}
	return nonce, nil
}

// SuggestGasPrice returns the current gas price for a chain.
func (c *Client) SuggestGasPrice(ctx context.Context, chain string) (*big.Int, error) {
	client, err := c.client(chain)
	if err != nil {
		return nil, err
	}
	price, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrapf(entities.ErrChainUnreachable, "gas price %s: %v", chain, err)
	}
	return price, nil
}

// TransactionReceipt fetches the receipt for a mined transaction, or nil
// when it is not mined yet.
func (c *Client) TransactionReceipt(ctx context.Context, chain, txHash string) (*types.Receipt, error) {
	client, err := c.client(chain)
	if err != nil {
		return nil, err
	}
	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(entities.ErrChainUnreachable, "receipt %s: %v", chain, err)
	}
	return receipt, nil
}

// ChainID returns the configured numeric chain id for a chain name.
func (c *Client) ChainID(chain string) (*big.Int, error) {
	cfg, ok := c.chains[chain]
	if !ok {
		return nil, fmt.Errorf("unknown chain %q", chain)
	}
	return big.NewInt(cfg.ChainID), nil
}
