package core

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestEngine(executor Executor) *ProposalEngine {
	return NewProposalEngine(executor, nil, testLogger())
}

func transferParams(required, total int) CreateProposalParams {
	return CreateProposalParams{
		Type:               Transfer,
		To:                 "0x1111111111111111111111111111111111111111",
		Value:              big.NewInt(1000),
		Token:              "USDC",
		ChainID:            1,
		RequiredSignatures: required,
		TotalSigners:       total,
	}
}

func signerAddr(i int) string {
	return fmt.Sprintf("0x%040x", i+1)
}

func TestCreateProposal(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})

	p, err := engine.CreateProposal(transferParams(2, 3))
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, Pending, p.Status)
	assert.Empty(t, p.Signatures)
	assert.Equal(t, 2, p.RequiredSignatures)
	assert.True(t, p.ExpiresAt.After(p.CreatedAt))
}

func TestCreateProposalValidation(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})

	_, err := engine.CreateProposal(transferParams(3, 2))
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = engine.CreateProposal(transferParams(1, 1))
	assert.ErrorIs(t, err, ErrInsufficientSigners)

	_, err = engine.CreateProposal(transferParams(1, 3))
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestProposalIDUniqueness(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})

	seen := make(map[string]bool, 10000)
	for i := 0; i < 10000; i++ {
		p, err := engine.CreateProposal(transferParams(2, 3))
		require.NoError(t, err)
		require.False(t, seen[p.ID], "duplicate proposal id %s", p.ID)
		seen[p.ID] = true
	}
}

func TestSigningReachesReady(t *testing.T) {
	for n := 2; n <= 10; n++ {
		engine := newTestEngine(&MockExecutor{})
		p, err := engine.CreateProposal(transferParams(n, n))
		require.NoError(t, err)

		for i := 0; i < n; i++ {
			p, err = engine.AddSignature(p.ID, signerAddr(i), []byte("sig"))
			require.NoError(t, err)
		}

		assert.Len(t, p.Signatures, n)
		assert.Equal(t, Ready, p.Status)
	}
}

func TestSignatureBelowThresholdStaysPending(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})
	p, err := engine.CreateProposal(transferParams(3, 5))
	require.NoError(t, err)

	p, err = engine.AddSignature(p.ID, signerAddr(0), []byte("sig"))
	require.NoError(t, err)
	assert.Equal(t, Pending, p.Status)

	p, err = engine.AddSignature(p.ID, signerAddr(1), []byte("sig"))
	require.NoError(t, err)
	assert.Equal(t, Pending, p.Status)
	assert.Len(t, p.Signatures, 2)
}

func TestDuplicateSignatureRejected(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})
	p, err := engine.CreateProposal(transferParams(2, 3))
	require.NoError(t, err)

	signer := "0xAbCd111111111111111111111111111111111111"
	_, err = engine.AddSignature(p.ID, signer, []byte("sig"))
	require.NoError(t, err)

	// same signer, different casing
	_, err = engine.AddSignature(p.ID, strings.ToUpper(signer), []byte("sig"))
	assert.ErrorIs(t, err, ErrDuplicateSignature)

	got, err := engine.Get(p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Signatures, 1)
}

func TestExpiredProposalRejectsSignatures(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})

	params := transferParams(2, 3)
	params.ExpiresInHours = -1
	p, err := engine.CreateProposal(params)
	require.NoError(t, err)

	_, err = engine.AddSignature(p.ID, signerAddr(0), []byte("sig"))
	assert.ErrorIs(t, err, ErrProposalExpired)

	got, err := engine.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, Expired, got.Status)
}

func TestExecuteBelowThreshold(t *testing.T) {
	executor := &MockExecutor{}
	engine := newTestEngine(executor)
	p, err := engine.CreateProposal(transferParams(2, 3))
	require.NoError(t, err)

	_, err = engine.AddSignature(p.ID, signerAddr(0), []byte("sig"))
	require.NoError(t, err)

	_, err = engine.Execute(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrInsufficientSignatures)
	assert.Zero(t, executor.Calls())

	got, err := engine.Get(p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, Executed, got.Status)
}

func TestExecuteExactlyOnce(t *testing.T) {
	executor := &MockExecutor{}
	engine := newTestEngine(executor)
	p := signedProposal(t, engine, 2, 3)

	executed, err := engine.Execute(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, Executed, executed.Status)
	assert.Regexp(t, "^0x[0-9a-f]{64}$", executed.TxHash)

	_, err = engine.Execute(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
	assert.EqualValues(t, 1, executor.Calls())

	got, err := engine.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, executed.TxHash, got.TxHash)
}

func TestExecuteFailureMarksFailed(t *testing.T) {
	engine := newTestEngine(&MockExecutor{FailWith: "insufficient balance"})
	p := signedProposal(t, engine, 2, 3)

	_, err := engine.Execute(context.Background(), p.ID)
	require.Error(t, err)
	assert.Equal(t, "insufficient balance", err.Error())

	got, err := engine.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, Failed, got.Status)

	// failed is terminal, re-execution requires a fresh proposal
	_, err = engine.Execute(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrNotExecutable)
}

func TestCancelProposal(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})

	params := transferParams(2, 3)
	params.Creator = "0xCCCC111111111111111111111111111111111111"
	p, err := engine.CreateProposal(params)
	require.NoError(t, err)

	_, err = engine.Cancel(p.ID, "0xdddd111111111111111111111111111111111111")
	assert.ErrorIs(t, err, ErrNotCreator)

	cancelled, err := engine.Cancel(p.ID, "0xcccc111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, Cancelled, cancelled.Status)

	// repeated cancellation is a no-op
	again, err := engine.Cancel(p.ID, "0xcccc111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, Cancelled, again.Status)
}

func TestCancelFailedProposal(t *testing.T) {
	engine := newTestEngine(&MockExecutor{FailWith: "insufficient balance"})
	p := signedProposal(t, engine, 2, 3)

	_, err := engine.Execute(context.Background(), p.ID)
	require.Error(t, err)

	// failed is terminal and is not overwritten by a cancel
	_, err = engine.Cancel(p.ID, "")
	assert.ErrorIs(t, err, ErrProposalFinalized)

	got, err := engine.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, Failed, got.Status)
}

func TestTerminalProposalRejectsSignatures(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})

	cancelled, err := engine.CreateProposal(transferParams(2, 3))
	require.NoError(t, err)
	_, err = engine.Cancel(cancelled.ID, "")
	require.NoError(t, err)

	_, err = engine.AddSignature(cancelled.ID, signerAddr(0), []byte("sig"))
	assert.ErrorIs(t, err, ErrProposalFinalized)

	got, err := engine.Get(cancelled.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Signatures)
	assert.Equal(t, Cancelled, got.Status)

	executed := signedProposal(t, engine, 2, 3)
	_, err = engine.Execute(context.Background(), executed.ID)
	require.NoError(t, err)

	_, err = engine.AddSignature(executed.ID, signerAddr(2), []byte("sig"))
	assert.ErrorIs(t, err, ErrProposalFinalized)

	got, err = engine.Get(executed.ID)
	require.NoError(t, err)
	assert.Len(t, got.Signatures, 2)
}

func TestFailedProposalRejectsSignatures(t *testing.T) {
	engine := newTestEngine(&MockExecutor{FailWith: "insufficient balance"})
	p := signedProposal(t, engine, 2, 3)

	_, err := engine.Execute(context.Background(), p.ID)
	require.Error(t, err)

	_, err = engine.AddSignature(p.ID, signerAddr(2), []byte("sig"))
	assert.ErrorIs(t, err, ErrProposalFinalized)

	got, err := engine.Get(p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Signatures, 2)
	assert.Equal(t, Failed, got.Status)
}

func TestCancelExecutedProposal(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})
	p := signedProposal(t, engine, 2, 3)

	_, err := engine.Execute(context.Background(), p.ID)
	require.NoError(t, err)

	_, err = engine.Cancel(p.ID, "")
	assert.ErrorIs(t, err, ErrCannotCancelExecuted)
}

func TestSignerChangeAdd(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})
	wallet := &MultiSigWallet{
		Address:   "0x9999111111111111111111111111111111111111",
		Signers:   []string{signerAddr(0), signerAddr(1)},
		Threshold: 2,
	}

	params := transferParams(2, 2)
	params.Type = AddSigner
	params.To = signerAddr(2)
	p, err := engine.CreateProposal(params)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = engine.AddSignature(p.ID, signerAddr(i), []byte("sig"))
		require.NoError(t, err)
	}

	updated, err := engine.ExecuteSignerChange(wallet, p.ID)
	require.NoError(t, err)
	assert.Len(t, updated.Signers, 3)

	// engine returns a copy, the input wallet is untouched
	assert.Len(t, wallet.Signers, 2)

	_, err = engine.ExecuteSignerChange(updated, p.ID)
	assert.ErrorIs(t, err, ErrSignerExists)
}

func TestSignerChangeRemoveBelowThreshold(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})
	wallet := &MultiSigWallet{
		Address:   "0x9999111111111111111111111111111111111111",
		Signers:   []string{signerAddr(0), signerAddr(1)},
		Threshold: 2,
	}

	params := transferParams(2, 2)
	params.Type = RemoveSigner
	params.To = signerAddr(1)
	p, err := engine.CreateProposal(params)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = engine.AddSignature(p.ID, signerAddr(i), []byte("sig"))
		require.NoError(t, err)
	}

	_, err = engine.ExecuteSignerChange(wallet, p.ID)
	assert.ErrorIs(t, err, ErrBelowThreshold)
}

func TestSignerChangeRemove(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})
	wallet := &MultiSigWallet{
		Address:   "0x9999111111111111111111111111111111111111",
		Signers:   []string{signerAddr(0), signerAddr(1), signerAddr(2)},
		Threshold: 2,
	}

	params := transferParams(2, 3)
	params.Type = RemoveSigner
	params.To = signerAddr(2)
	p, err := engine.CreateProposal(params)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = engine.AddSignature(p.ID, signerAddr(i), []byte("sig"))
		require.NoError(t, err)
	}

	updated, err := engine.ExecuteSignerChange(wallet, p.ID)
	require.NoError(t, err)
	assert.Len(t, updated.Signers, 2)
	assert.NotContains(t, updated.Signers, signerAddr(2))
}

func TestSignerChangeRequiresQuorum(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})
	wallet := &MultiSigWallet{
		Signers:   []string{signerAddr(0), signerAddr(1), signerAddr(2)},
		Threshold: 2,
	}

	params := transferParams(2, 3)
	params.Type = AddSigner
	params.To = signerAddr(3)
	p, err := engine.CreateProposal(params)
	require.NoError(t, err)

	_, err = engine.ExecuteSignerChange(wallet, p.ID)
	assert.ErrorIs(t, err, ErrInsufficientSignatures)
}

func TestThresholdChange(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})
	wallet := &MultiSigWallet{
		Address:   "0x9999111111111111111111111111111111111111",
		Signers:   []string{signerAddr(0), signerAddr(1), signerAddr(2)},
		Threshold: 2,
	}

	params := transferParams(2, 3)
	params.Type = ChangeThreshold
	params.Value = big.NewInt(3)
	p, err := engine.CreateProposal(params)
	require.NoError(t, err)

	_, err = engine.ExecuteThresholdChange(wallet, p.ID)
	assert.ErrorIs(t, err, ErrInsufficientSignatures)

	for i := 0; i < 2; i++ {
		_, err = engine.AddSignature(p.ID, signerAddr(i), []byte("sig"))
		require.NoError(t, err)
	}

	updated, err := engine.ExecuteThresholdChange(wallet, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Threshold)

	// engine returns a copy, the input wallet is untouched
	assert.Equal(t, 2, wallet.Threshold)
}

func TestThresholdChangeBounds(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})
	wallet := &MultiSigWallet{
		Signers:   []string{signerAddr(0), signerAddr(1), signerAddr(2)},
		Threshold: 2,
	}

	for _, target := range []int64{1, 4} {
		params := transferParams(2, 3)
		params.Type = ChangeThreshold
		params.Value = big.NewInt(target)
		p, err := engine.CreateProposal(params)
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, err = engine.AddSignature(p.ID, signerAddr(i), []byte("sig"))
			require.NoError(t, err)
		}

		_, err = engine.ExecuteThresholdChange(wallet, p.ID)
		assert.ErrorIs(t, err, ErrInvalidThreshold, "threshold %d", target)
	}

	transfer := signedProposal(t, engine, 2, 3)
	_, err := engine.ExecuteThresholdChange(wallet, transfer.ID)
	assert.ErrorIs(t, err, ErrNotThresholdChange)
}

func TestConcurrentSigners(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})
	p, err := engine.CreateProposal(transferParams(2, 10))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := engine.AddSignature(p.ID, signerAddr(i), []byte("sig"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := engine.Get(p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Signatures, 10)
	assert.Equal(t, Ready, got.Status)
}

func TestConcurrentExecuteExactlyOnce(t *testing.T) {
	executor := &MockExecutor{}
	engine := newTestEngine(executor)
	p := signedProposal(t, engine, 2, 3)

	var wg sync.WaitGroup
	successes := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Execute(context.Background(), p.ID); err == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.Equal(t, 1, count)
	assert.EqualValues(t, 1, executor.Calls())
}

func TestUnknownProposal(t *testing.T) {
	engine := newTestEngine(&MockExecutor{})

	_, err := engine.Get("prop_missing")
	assert.ErrorIs(t, err, ErrProposalNotFound)

	_, err = engine.AddSignature("prop_missing", signerAddr(0), nil)
	assert.ErrorIs(t, err, ErrProposalNotFound)
}

func signedProposal(t *testing.T, engine *ProposalEngine, required, total int) *Proposal {
	t.Helper()

	p, err := engine.CreateProposal(transferParams(required, total))
	require.NoError(t, err)

	for i := 0; i < required; i++ {
		p, err = engine.AddSignature(p.ID, signerAddr(i), []byte("sig"))
		require.NoError(t, err)
	}
	require.Equal(t, Ready, p.Status)

	return p
}
