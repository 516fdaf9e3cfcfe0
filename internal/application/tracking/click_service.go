package tracking

import (
	"context"
	"sync"
	"time"

	domain "github.com/enercompare/backend/internal/domain/tracking"
	"github.com/enercompare/backend/internal/infrastructure/kv"
	"go.uber.org/zap"
)

// ClickInput carries the attributes of an outbound referral click
type ClickInput struct {
	PartnerID string
	Source    string
	Metadata  map[string]string
}

// ClickService records outbound referral clicks. Recording is
// fire-and-forget: Record returns the generated click id immediately and a
// single background worker drains a bounded queue into the KV store, so a
// slow store never delays the redirect. When the queue is full the click is
// dropped and logged; losing a click costs at most one attribution, while
// blocking would stall the hot path.
type ClickService struct {
	store  kv.Store
	logger *zap.Logger

	queue chan *domain.ClickRecord
	wg    sync.WaitGroup
	once  sync.Once

	now func() time.Time
}

// NewClickService creates a click service and starts its write worker
func NewClickService(store kv.Store, queueSize int, logger *zap.Logger) *ClickService {
	if queueSize <= 0 {
		queueSize = 1024
	}
	s := &ClickService{
		store:  store,
		logger: logger,
		queue:  make(chan *domain.ClickRecord, queueSize),
		now:    time.Now,
	}

	s.wg.Add(1)
	go s.worker()

	return s
}

// Record generates a click id, enqueues the durable write, and returns the
// id without waiting for the store.
func (s *ClickService) Record(input ClickInput) string {
	now := s.now().UTC()
	record := &domain.ClickRecord{
		ClickID:   domain.NewClickID(now),
		PartnerID: input.PartnerID,
		Timestamp: now,
		Source:    input.Source,
		Metadata:  input.Metadata,
	}

	select {
	case s.queue <- record:
	default:
		s.logger.Warn("click queue full, dropping click",
			zap.String("click_id", record.ClickID),
			zap.String("partner_id", record.PartnerID))
	}

	return record.ClickID
}

// Close stops accepting clicks and waits for the queue to drain
func (s *ClickService) Close() {
	s.once.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

func (s *ClickService) worker() {
	defer s.wg.Done()

	for record := range s.queue {
		s.write(record)
	}
}

// write persists one click record, retrying once on failure. Clicks expire
// with the attribution window.
func (s *ClickService) write(record *domain.ClickRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := domain.ClickKey(record.ClickID)
	err := s.store.SetJSON(ctx, key, record, domain.ClickTTL)
	if err == nil {
		return
	}

	s.logger.Warn("click write failed, retrying",
		zap.String("click_id", record.ClickID),
		zap.Error(err))

	time.Sleep(100 * time.Millisecond)
	if err := s.store.SetJSON(ctx, key, record, domain.ClickTTL); err != nil {
		s.logger.Error("click write failed permanently",
			zap.String("click_id", record.ClickID),
			zap.String("partner_id", record.PartnerID),
			zap.Error(err))
	}
}
