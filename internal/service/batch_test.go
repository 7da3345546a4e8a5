package service

import (
	"context"
	"errors"
	"testing"

	"amza-pricing-api/internal/keepa"
	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBatchRun(t *testing.T) {
	env := newTestEnv(t, 100)
	seedCredential(t, env.store, 100)
	seedConfig(t, env.store)
	seedRate(t, env.store, "20")

	env.expect(t, "B000GOOD01", keepa.DomainUS, keepaProduct("B000GOOD01", productOpts{buyBox: 1250}))
	env.expect(t, "B000GOOD01", keepa.DomainMX, keepaProduct("B000GOOD01", productOpts{buyBox: 69900}))
	env.expect(t, "B000NONE01", keepa.DomainUS, keepaProduct("B000NONE01", productOpts{}))
	env.expect(t, "B000NONE01", keepa.DomainMX, keepaProduct("B000NONE01", productOpts{}))
	env.client.On("QueryProduct", mock.Anything, testAPIKey, "B000FAIL01", keepa.DomainUS).
		Return(nil, errors.New("connection reset"))
	ctx := context.Background()

	identifiers := []string{"B000GOOD01", "B000FAIL01", "B000NONE01"}
	batch, err := env.batches.Run(ctx, identifiers, "weekly", dec("85"))
	require.NoError(t, err)

	assert.Equal(t, model.BatchCompleted, batch.Status)
	assert.Equal(t, 3, batch.TotalCount)
	assert.Equal(t, 3, batch.ProcessedCount)
	assert.Equal(t, 2, batch.SuccessCount)
	assert.Equal(t, 1, batch.FailureCount)
	assert.Equal(t, 1, batch.UnavailableCount)
	assert.Equal(t, batch.ProcessedCount, batch.SuccessCount+batch.FailureCount)
	assert.Len(t, batch.ResultIDs, 2)
	assert.Contains(t, batch.ErrorLog["B000FAIL01"], "connection reset")
	require.NotNil(t, batch.StartedAt)
	require.NotNil(t, batch.CompletedAt)

	stored, err := env.batches.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchCompleted, stored.Status)
	assert.Equal(t, batch.ResultIDs, stored.ResultIDs)
	assert.Equal(t, batch.ErrorLog, stored.ErrorLog)
	assert.Equal(t, identifiers, stored.Identifiers)
}

func TestBatchRun_CompletesAfterCallerCancels(t *testing.T) {
	env := newTestEnv(t, 100)
	seedCredential(t, env.store, 100)
	seedConfig(t, env.store)
	seedRate(t, env.store, "20")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env.client.On("QueryProduct", mock.Anything, testAPIKey, "B000FIRST1", keepa.DomainUS).
		Run(func(mock.Arguments) { cancel() }).
		Return(productResult(t, keepaProduct("B000FIRST1", productOpts{buyBox: 1250})), nil)
	env.expect(t, "B000FIRST1", keepa.DomainMX, keepaProduct("B000FIRST1", productOpts{buyBox: 69900}))
	env.expect(t, "B000SECND1", keepa.DomainUS, keepaProduct("B000SECND1", productOpts{buyBox: 2000}))
	env.expect(t, "B000SECND1", keepa.DomainMX, keepaProduct("B000SECND1", productOpts{buyBox: 99900}))

	batch, err := env.batches.Run(ctx, []string{"B000FIRST1", "B000SECND1"}, "detached", nil)
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.Equal(t, model.BatchCompleted, batch.Status)
	assert.Equal(t, 2, batch.SuccessCount)
	assert.Empty(t, batch.ErrorLog)

	stored, err := env.batches.Get(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchCompleted, stored.Status)
	assert.Equal(t, 2, stored.ProcessedCount)
	assert.NotNil(t, stored.CompletedAt)
}

func TestBatchRun_TokenExhaustionIsPerItem(t *testing.T) {
	env := newTestEnv(t, 2)
	seedCredential(t, env.store, 2)
	seedConfig(t, env.store)
	seedRate(t, env.store, "20")
	env.expect(t, "B000FIRST1", keepa.DomainUS, keepaProduct("B000FIRST1", productOpts{buyBox: 1250}))
	env.expect(t, "B000FIRST1", keepa.DomainMX, keepaProduct("B000FIRST1", productOpts{buyBox: 69900}))

	batch, err := env.batches.Run(context.Background(), []string{"B000FIRST1", "B000SECOND"}, "quota", nil)
	require.NoError(t, err)

	assert.Equal(t, model.BatchCompleted, batch.Status)
	assert.Equal(t, 1, batch.SuccessCount)
	assert.Equal(t, 1, batch.FailureCount)
	assert.Contains(t, batch.ErrorLog["B000SECOND"], "token limit exceeded, used 2/2")
}

func TestBatchRun_MissingRateFailsBatch(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedConfig(t, env.store)
	ctx := context.Background()

	batch, err := env.batches.Run(ctx, []string{"B000AAAAA1", "B000AAAAA2"}, "no rate", nil)
	require.Error(t, err)
	assert.True(t, pricing.IsKind(err, pricing.KindExchangeRateNotFound))

	require.NotNil(t, batch)
	assert.Equal(t, model.BatchFailed, batch.Status)
	assert.NotNil(t, batch.CompletedAt)
	assert.Equal(t, 0, batch.ProcessedCount)
	assert.NotEmpty(t, batch.ErrorLog["error"])

	stored, err := env.batches.Get(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchFailed, stored.Status)
	env.client.AssertNotCalled(t, "QueryProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBatchRun_MissingConfigFailsBatch(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedRate(t, env.store, "20")

	batch, err := env.batches.Run(context.Background(), []string{"B000AAAAA1"}, "no config", nil)
	assert.True(t, pricing.IsKind(err, pricing.KindAnalysisConfigNotFound))
	assert.Equal(t, model.BatchFailed, batch.Status)
}
