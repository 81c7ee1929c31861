package core

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/protocol-bank/custodian/validate"
	"github.com/sirupsen/logrus"
)

const (
	defaultNativeGasLimit = 21000
	defaultTokenGasLimit  = 100000
)

var _ Executor = (*EthExecutor)(nil)

// EthExecutor broadcasts transfer and contract_call proposals through an
// Ethereum-compatible RPC endpoint. Signer-set proposals are wallet-local
// and rejected here.
type EthExecutor struct {
	client  *ethclient.Client
	logger  *logrus.Logger
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address

	// tokens maps token symbols to ERC20 contract addresses; an empty
	// symbol or missing entry means a native transfer
	tokens map[string]common.Address
}

// NewEthExecutor dials dialURL, retrying with Fibonacci backoff, and
// derives the sending address from privateKeyHex.
func NewEthExecutor(ctx context.Context, dialURL, privateKeyHex string, chainID uint64, tokens map[string]string, logger *logrus.Logger) (*EthExecutor, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "invalid executor private key")
	}

	var client *ethclient.Client
	action := func(attempt uint) error {
		client, err = ethclient.DialContext(ctx, dialURL)
		return err
	}
	if err := retry.Retry(action, strategy.Limit(5), strategy.Backoff(backoff.Fibonacci(5*time.Second))); err != nil {
		return nil, errors.Wrapf(err, "dial %s", dialURL)
	}

	tokenAddrs := make(map[string]common.Address, len(tokens))
	for symbol, addr := range tokens {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid contract address for token %s: %s", symbol, addr)
		}
		tokenAddrs[strings.ToUpper(symbol)] = common.HexToAddress(addr)
	}

	return &EthExecutor{
		client:  client,
		logger:  logger,
		chainID: new(big.Int).SetUint64(chainID),
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		tokens:  tokenAddrs,
	}, nil
}

func (e *EthExecutor) Execute(ctx context.Context, proposal *Proposal) (string, error) {
	switch proposal.Type {
	case Transfer, ContractCall:
	default:
		return "", fmt.Errorf("proposal type %s is wallet-local and cannot be broadcast", proposal.Type)
	}

	if err := validate.ValidateAddress(proposal.To, validate.ChainEVM); err != nil {
		return "", err
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return "", errors.Wrap(err, "fetch nonce")
	}

	var tx *types.Transaction
	if proposal.Type == ContractCall {
		tx, err = e.buildContractCall(ctx, proposal, nonce)
	} else if contract, ok := e.tokens[strings.ToUpper(proposal.Token)]; ok {
		tx, err = e.buildTokenTransfer(ctx, proposal, contract, nonce)
	} else {
		tx, err = e.buildNativeTransfer(ctx, proposal, nonce)
	}
	if err != nil {
		return "", err
	}

	signer := types.LatestSignerForChainID(e.chainID)
	signedTx, err := types.SignTx(tx, signer, e.key)
	if err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}

	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return "", errors.Wrap(err, "send transaction")
	}

	txHash := signedTx.Hash().Hex()
	e.logger.WithFields(logrus.Fields{
		"proposal": proposal.ID,
		"txHash":   txHash,
	}).Info("transaction broadcast")

	return txHash, nil
}

func (e *EthExecutor) buildNativeTransfer(ctx context.Context, proposal *Proposal, nonce uint64) (*types.Transaction, error) {
	to := common.HexToAddress(proposal.To)

	gasPrice, err := e.suggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit := e.estimateGas(ctx, ethereum.CallMsg{
		From:  e.from,
		To:    &to,
		Value: proposal.Value,
	}, defaultNativeGasLimit)

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: gasPrice,
		GasFeeCap: new(big.Int).Mul(gasPrice, big.NewInt(2)),
		Gas:       gasLimit,
		To:        &to,
		Value:     proposal.Value,
	}), nil
}

func (e *EthExecutor) buildTokenTransfer(ctx context.Context, proposal *Proposal, contract common.Address, nonce uint64) (*types.Transaction, error) {
	to := common.HexToAddress(proposal.To)

	data := packTransfer(to, proposal.Value)

	gasPrice, err := e.suggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit := e.estimateGas(ctx, ethereum.CallMsg{
		From: e.from,
		To:   &contract,
		Data: data,
	}, defaultTokenGasLimit)

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: gasPrice,
		GasFeeCap: new(big.Int).Mul(gasPrice, big.NewInt(2)),
		Gas:       gasLimit,
		To:        &contract,
		Value:     new(big.Int),
		Data:      data,
	}), nil
}

func (e *EthExecutor) buildContractCall(ctx context.Context, proposal *Proposal, nonce uint64) (*types.Transaction, error) {
	to := common.HexToAddress(proposal.To)

	gasPrice, err := e.suggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit := e.estimateGas(ctx, ethereum.CallMsg{
		From:  e.from,
		To:    &to,
		Value: proposal.Value,
		Data:  proposal.Data,
	}, defaultTokenGasLimit)

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     nonce,
		GasTipCap: gasPrice,
		GasFeeCap: new(big.Int).Mul(gasPrice, big.NewInt(2)),
		Gas:       gasLimit,
		To:        &to,
		Value:     proposal.Value,
		Data:      proposal.Data,
	}), nil
}

// suggestGasPrice adds 20% headroom for faster confirmation.
func (e *EthExecutor) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "suggest gas price")
	}

	gasPrice = new(big.Int).Mul(gasPrice, big.NewInt(120))
	return new(big.Int).Div(gasPrice, big.NewInt(100)), nil
}

// estimateGas adds 20% headroom, falling back to fallbackLimit when the
// node refuses to estimate.
func (e *EthExecutor) estimateGas(ctx context.Context, msg ethereum.CallMsg, fallbackLimit uint64) uint64 {
	gasLimit, err := e.client.EstimateGas(ctx, msg)
	if err != nil {
		gasLimit = fallbackLimit
	}
	return gasLimit * 120 / 100
}

// packTransfer encodes an ERC20 transfer(to, value) call.
func packTransfer(to common.Address, value *big.Int) []byte {
	selector := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

	data := make([]byte, 0, 4+64)
	data = append(data, selector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(value.Bytes(), 32)...)

	return data
}
