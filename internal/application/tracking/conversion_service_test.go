package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/enercompare/backend/internal/domain/shared"
	domain "github.com/enercompare/backend/internal/domain/tracking"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWebhookSecret = "wh-secret-for-tests"

func seedClick(t *testing.T, svc *ConversionService, age time.Duration) *domain.ClickRecord {
	t.Helper()
	now := time.Now().UTC()
	record := &domain.ClickRecord{
		ClickID:   domain.NewClickID(now.Add(-age)),
		PartnerID: "enpal",
		Timestamp: now.Add(-age),
		Source:    "solar-guide",
	}
	require.NoError(t, svc.store.SetJSON(context.Background(), domain.ClickKey(record.ClickID), record, 0))
	return record
}

func newConversionService(t *testing.T) *ConversionService {
	t.Helper()
	store, _ := newTestStore(t)
	return NewConversionService(store, testWebhookSecret, zap.NewNop())
}

func TestAuthenticate(t *testing.T) {
	svc := newConversionService(t)

	assert.True(t, svc.Authenticate(testWebhookSecret))
	assert.False(t, svc.Authenticate("wrong"))
	assert.False(t, svc.Authenticate(""))

	// Fail closed when no secret is configured.
	unconfigured := NewConversionService(svc.store, "", zap.NewNop())
	assert.False(t, unconfigured.Authenticate(""))
	assert.False(t, unconfigured.Authenticate("anything"))
}

func TestValidateClick(t *testing.T) {
	svc := newConversionService(t)
	ctx := context.Background()

	click := seedClick(t, svc, time.Hour)

	got, err := svc.ValidateClick(ctx, click.ClickID)
	require.NoError(t, err)
	assert.Equal(t, click.ClickID, got.ClickID)

	_, err = svc.ValidateClick(ctx, "xyz_123_abc")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.ValidateClick(ctx, "dep_unknown_click")
	assert.ErrorIs(t, err, shared.ErrClickNotFound)
}

func TestValidateClickAttributionBoundary(t *testing.T) {
	svc := newConversionService(t)
	ctx := context.Background()

	// Exactly at the window boundary is still attributable.
	boundary := seedClick(t, svc, 0)
	fixed := boundary.Timestamp.Add(domain.AttributionWindow)
	svc.now = func() time.Time { return fixed }

	_, err := svc.ValidateClick(ctx, boundary.ClickID)
	assert.NoError(t, err)

	// One nanosecond past it is not.
	svc.now = func() time.Time { return fixed.Add(time.Nanosecond) }
	_, err = svc.ValidateClick(ctx, boundary.ClickID)
	assert.ErrorIs(t, err, shared.ErrOutsideWindow)
}

func TestRecordConversion(t *testing.T) {
	svc := newConversionService(t)
	ctx := context.Background()

	click := seedClick(t, svc, 48*time.Hour)
	value := decimal.NewFromFloat(12500.50)

	record, err := svc.RecordConversion(ctx, ConversionInput{
		ClickID:              click.ClickID,
		CustomerID:           "cust-9",
		ProductSelected:      "solar-complete",
		ContractValue:        &value,
		ContractLengthMonths: 240,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionStatusPending, record.Status)
	assert.Equal(t, "enpal", record.PartnerID)
	assert.Equal(t, click.Timestamp.Unix(), record.ClickTimestamp.Unix())

	// Durable record present, without a TTL.
	var stored domain.ConversionRecord
	require.NoError(t, svc.store.GetJSON(ctx, domain.ConversionKey(click.ClickID), &stored))
	assert.Equal(t, "cust-9", stored.CustomerID)

	// Projections updated exactly once.
	day := record.ConversionTimestamp
	count, err := svc.store.IncrBy(ctx, domain.DailyCounterKey(day, "enpal"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	revenue, err := svc.store.IncrByFloat(ctx, domain.DailyRevenueKey(day, "enpal"), 0)
	require.NoError(t, err)
	assert.InDelta(t, 12500.50, revenue, 0.001)
}

func TestRecordConversionDuplicate(t *testing.T) {
	svc := newConversionService(t)
	ctx := context.Background()

	click := seedClick(t, svc, time.Hour)
	input := ConversionInput{ClickID: click.ClickID, CustomerID: "cust-1"}

	_, err := svc.RecordConversion(ctx, input)
	require.NoError(t, err)

	_, err = svc.RecordConversion(ctx, input)
	assert.ErrorIs(t, err, shared.ErrDuplicateConversion)

	// The counter reflects a single conversion.
	count, err := svc.store.IncrBy(ctx, domain.DailyCounterKey(svc.now().UTC(), "enpal"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecordConversionConcurrentRace(t *testing.T) {
	svc := newConversionService(t)
	ctx := context.Background()

	click := seedClick(t, svc, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordConversion(ctx, ConversionInput{ClickID: click.ClickID})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)

	count, err := svc.store.IncrBy(ctx, domain.DailyCounterKey(svc.now().UTC(), "enpal"), 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, count, int64(1))
}

func TestRecordConversionOutsideWindow(t *testing.T) {
	svc := newConversionService(t)
	ctx := context.Background()

	click := seedClick(t, svc, domain.AttributionWindow+24*time.Hour)

	_, err := svc.RecordConversion(ctx, ConversionInput{ClickID: click.ClickID})
	assert.ErrorIs(t, err, shared.ErrOutsideWindow)

	exists, err := svc.store.Exists(ctx, domain.ConversionKey(click.ClickID))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRecordConversionWithoutContractValue(t *testing.T) {
	svc := newConversionService(t)
	ctx := context.Background()

	click := seedClick(t, svc, time.Hour)

	record, err := svc.RecordConversion(ctx, ConversionInput{ClickID: click.ClickID})
	require.NoError(t, err)
	assert.Nil(t, record.ContractValue)

	// No revenue key is created for value-less conversions.
	exists, err := svc.store.Exists(ctx, domain.DailyRevenueKey(record.ConversionTimestamp, "enpal"))
	require.NoError(t, err)
	assert.False(t, exists)
}
