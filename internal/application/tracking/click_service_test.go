package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	domain "github.com/enercompare/backend/internal/domain/tracking"
	"github.com/enercompare/backend/internal/infrastructure/kv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (kv.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return kv.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestClickRecordReturnsImmediately(t *testing.T) {
	store, mr := newTestStore(t)
	svc := NewClickService(store, 16, zap.NewNop())

	clickID := svc.Record(ClickInput{PartnerID: "enpal", Source: "solar-guide"})
	assert.True(t, domain.IsValidClickID(clickID))

	svc.Close()

	var record domain.ClickRecord
	require.NoError(t, store.GetJSON(context.Background(), domain.ClickKey(clickID), &record))
	assert.Equal(t, clickID, record.ClickID)
	assert.Equal(t, "enpal", record.PartnerID)
	assert.Equal(t, "solar-guide", record.Source)
	assert.Greater(t, mr.TTL(domain.ClickKey(clickID)), time.Duration(0))
}

func TestClickIDsAreUnique(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewClickService(store, 256, zap.NewNop())
	defer svc.Close()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := svc.Record(ClickInput{PartnerID: "enpal"})
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestClickQueueFullDropsWithoutBlocking(t *testing.T) {
	store, _ := newTestStore(t)
	svc := NewClickService(store, 1, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			svc.Record(ClickInput{PartnerID: "enpal"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	svc.Close()
}

func TestClickCloseDrainsQueue(t *testing.T) {
	store, mr := newTestStore(t)
	svc := NewClickService(store, 64, zap.NewNop())

	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		ids = append(ids, svc.Record(ClickInput{PartnerID: "enpal"}))
	}
	svc.Close()

	for _, id := range ids {
		assert.True(t, mr.Exists(domain.ClickKey(id)), "click %s not persisted", id)
	}
}
