package tracking

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/enercompare/backend/internal/domain/shared"
	domain "github.com/enercompare/backend/internal/domain/tracking"
	"github.com/enercompare/backend/internal/infrastructure/kv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ConversionInput carries the payload of a partner conversion webhook
type ConversionInput struct {
	ClickID              string
	CustomerID           string
	ProductSelected      string
	ContractValue        *decimal.Decimal
	ContractLengthMonths int
	Source               string
	Metadata             map[string]string
}

// ConversionService attributes partner-reported conversions back to referral
// clicks. The conversion record under conversion:{clickId} is written with
// SETNX and acts as the write-once duplicate guard; reporting projections
// (daily counter, revenue accumulator, processing queue) are updated exactly
// once, after the guard succeeds.
type ConversionService struct {
	store  kv.Store
	secret []byte
	logger *zap.Logger

	now func() time.Time
}

// NewConversionService creates a conversion service
func NewConversionService(store kv.Store, webhookSecret string, logger *zap.Logger) *ConversionService {
	return &ConversionService{
		store:  store,
		secret: []byte(webhookSecret),
		logger: logger,
		now:    time.Now,
	}
}

// Authenticate verifies the shared webhook secret in constant time. An empty
// configured secret rejects everything.
func (s *ConversionService) Authenticate(provided string) bool {
	if len(s.secret) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(s.secret, []byte(provided)) == 1
}

// ValidateClick resolves a click id to its record and checks attributability.
// It distinguishes three failures so the webhook caller can tell a malformed
// id (bad request) from an unknown click (not found) from an expired one.
func (s *ConversionService) ValidateClick(ctx context.Context, clickID string) (*domain.ClickRecord, error) {
	if !domain.IsValidClickID(clickID) {
		return nil, fmt.Errorf("%w: malformed click id", shared.ErrInvalidInput)
	}

	var click domain.ClickRecord
	if err := s.store.GetJSON(ctx, domain.ClickKey(clickID), &click); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, shared.ErrClickNotFound
		}
		return nil, fmt.Errorf("failed to load click record: %w", err)
	}

	if !click.WithinAttributionWindow(s.now().UTC()) {
		return nil, shared.ErrOutsideWindow
	}

	return &click, nil
}

// RecordConversion validates, deduplicates, and records a conversion. The
// SETNX on the conversion key is the authoritative guard: whatever the
// pre-check saw, only the caller whose SETNX succeeds updates projections.
func (s *ConversionService) RecordConversion(ctx context.Context, input ConversionInput) (*domain.ConversionRecord, error) {
	click, err := s.ValidateClick(ctx, input.ClickID)
	if err != nil {
		return nil, err
	}

	// Cheap pre-check; concurrent racers are settled by SETNX below.
	exists, err := s.store.Exists(ctx, domain.ConversionKey(input.ClickID))
	if err != nil {
		return nil, fmt.Errorf("failed to check conversion record: %w", err)
	}
	if exists {
		return nil, shared.ErrDuplicateConversion
	}

	record := &domain.ConversionRecord{
		ClickID:              click.ClickID,
		PartnerID:            click.PartnerID,
		ClickTimestamp:       click.Timestamp,
		ConversionTimestamp:  s.now().UTC(),
		CustomerID:           input.CustomerID,
		ProductSelected:      input.ProductSelected,
		ContractValue:        input.ContractValue,
		ContractLengthMonths: input.ContractLengthMonths,
		Status:               domain.ConversionStatusPending,
		Source:               input.Source,
		Metadata:             input.Metadata,
	}

	ok, err := s.store.SetNXJSON(ctx, domain.ConversionKey(record.ClickID), record, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to persist conversion record: %w", err)
	}
	if !ok {
		return nil, shared.ErrDuplicateConversion
	}

	s.updateProjections(ctx, record)

	return record, nil
}

// updateProjections maintains the daily reporting keys. The conversion
// record itself is already durable; projection failures are logged and never
// fail the webhook.
func (s *ConversionService) updateProjections(ctx context.Context, record *domain.ConversionRecord) {
	day := record.ConversionTimestamp

	if _, err := s.store.IncrBy(ctx, domain.DailyCounterKey(day, record.PartnerID), 1); err != nil {
		s.logger.Error("failed to update daily conversion counter",
			zap.String("click_id", record.ClickID),
			zap.Error(err))
	}

	if record.ContractValue != nil {
		value, _ := record.ContractValue.Float64()
		if _, err := s.store.IncrByFloat(ctx, domain.DailyRevenueKey(day, record.PartnerID), value); err != nil {
			s.logger.Error("failed to update daily revenue accumulator",
				zap.String("click_id", record.ClickID),
				zap.Error(err))
		}
	}

	payload, err := json.Marshal(record)
	if err == nil {
		err = s.store.RPush(ctx, domain.QueueKey(day), string(payload))
	}
	if err != nil {
		s.logger.Error("failed to enqueue conversion for processing",
			zap.String("click_id", record.ClickID),
			zap.Error(err))
	}
}
