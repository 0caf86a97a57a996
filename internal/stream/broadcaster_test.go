package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tandogan/livetrack/internal/location"
	"github.com/tandogan/livetrack/internal/registry"
)

// recordingConn captures every frame sent to it; it can be told to fail.
type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func (c *recordingConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send failed")
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *recordingConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *recordingConn) lastFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

// failingRepository simulates an unavailable point store.
type failingRepository struct {
	location.Repository
}

func (f *failingRepository) SavePoint(ctx context.Context, userID int64, lat, lon float64, at time.Time) (*location.Point, error) {
	return nil, errors.New("storage unavailable")
}

func TestAcceptAndBroadcast_DeliversToAllAdmins(t *testing.T) {
	repo := location.NewInMemoryRepository()
	reg := registry.New()
	b := NewBroadcaster(repo, reg, nil)

	admins := []*recordingConn{{}, {}, {}}
	for _, c := range admins {
		reg.ConnectAdmin(c)
	}

	at := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	p, err := b.AcceptAndBroadcast(context.Background(), 7, 41.0, 29.0, at)
	if err != nil {
		t.Fatalf("AcceptAndBroadcast failed: %v", err)
	}

	stored, err := repo.GetByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("point was not persisted: %v", err)
	}
	if stored.Lat != 41.0 || stored.Lon != 29.0 || !stored.CreatedAt.Equal(at) {
		t.Errorf("stored point mismatch: %+v", stored)
	}

	for i, c := range admins {
		if c.frameCount() != 1 {
			t.Fatalf("admin %d: expected 1 frame, got %d", i, c.frameCount())
		}
		var evt LocationEvent
		if err := json.Unmarshal(c.lastFrame(), &evt); err != nil {
			t.Fatalf("admin %d: bad frame: %v", i, err)
		}
		if evt.Event != EventLocation || evt.UserID != 7 || evt.Lat != 41.0 || evt.Lon != 29.0 || !evt.CreatedAt.Equal(at) {
			t.Errorf("admin %d: unexpected event %+v", i, evt)
		}
	}
}

// TestAcceptAndBroadcast_IsolatesFailedDelivery tests that one broken admin
// is removed without suppressing the other deliveries or failing the call.
func TestAcceptAndBroadcast_IsolatesFailedDelivery(t *testing.T) {
	repo := location.NewInMemoryRepository()
	reg := registry.New()
	b := NewBroadcaster(repo, reg, nil)

	good1 := &recordingConn{}
	broken := &recordingConn{fail: true}
	good2 := &recordingConn{}
	reg.ConnectAdmin(good1)
	reg.ConnectAdmin(broken)
	reg.ConnectAdmin(good2)

	if _, err := b.AcceptAndBroadcast(context.Background(), 1, 10, 20, time.Time{}); err != nil {
		t.Fatalf("AcceptAndBroadcast failed: %v", err)
	}

	if good1.frameCount() != 1 || good2.frameCount() != 1 {
		t.Errorf("healthy admins must still receive the event, got %d and %d frames",
			good1.frameCount(), good2.frameCount())
	}
	if !broken.closed {
		t.Error("broken admin connection must be closed")
	}
	if reg.AdminCount() != 2 {
		t.Errorf("broken admin must be deregistered, got %d admins", reg.AdminCount())
	}
}

// TestAcceptAndBroadcast_PersistenceFailureSuppressesBroadcast tests the
// durable-write-then-fanout contract.
func TestAcceptAndBroadcast_PersistenceFailureSuppressesBroadcast(t *testing.T) {
	reg := registry.New()
	b := NewBroadcaster(&failingRepository{}, reg, nil)

	admin := &recordingConn{}
	reg.ConnectAdmin(admin)

	if _, err := b.AcceptAndBroadcast(context.Background(), 1, 10, 20, time.Time{}); err == nil {
		t.Fatal("expected persistence error")
	}
	if admin.frameCount() != 0 {
		t.Error("an unpersisted point must never be broadcast")
	}
	if reg.AdminCount() != 1 {
		t.Error("persistence failure must not touch the registry")
	}
}

func TestAcceptAndBroadcast_NoAdmins(t *testing.T) {
	repo := location.NewInMemoryRepository()
	b := NewBroadcaster(repo, registry.New(), nil)

	p, err := b.AcceptAndBroadcast(context.Background(), 3, 1, 2, time.Time{})
	if err != nil {
		t.Fatalf("AcceptAndBroadcast failed: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), p.ID); err != nil {
		t.Errorf("point must be persisted even with no admins: %v", err)
	}
}
