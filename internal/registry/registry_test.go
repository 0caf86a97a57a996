package registry

import (
	"sync"
	"testing"
)

// fakeConn is a minimal Conn for registry tests.
type fakeConn struct {
	id int
}

func (f *fakeConn) Send(data []byte) error { return nil }
func (f *fakeConn) Close() error           { return nil }

func TestConnectDisconnectUser(t *testing.T) {
	r := New()
	c1 := &fakeConn{id: 1}
	c2 := &fakeConn{id: 2}

	r.ConnectUser(7, c1)
	r.ConnectUser(7, c2)
	if got := len(r.UserConnections(7)); got != 2 {
		t.Fatalf("expected 2 connections for user 7, got %d", got)
	}
	if r.UserCount() != 2 {
		t.Errorf("expected user count 2, got %d", r.UserCount())
	}

	r.DisconnectUser(7, c1)
	if got := len(r.UserConnections(7)); got != 1 {
		t.Fatalf("expected 1 connection after disconnect, got %d", got)
	}

	// Removing a non-member is a no-op.
	r.DisconnectUser(7, c1)
	r.DisconnectUser(99, c1)
	if got := len(r.UserConnections(7)); got != 1 {
		t.Fatalf("expected 1 connection after no-op disconnects, got %d", got)
	}

	r.DisconnectUser(7, c2)
	if r.UserCount() != 0 {
		t.Errorf("expected empty registry, got %d user connections", r.UserCount())
	}
}

func TestConnectDisconnectAdmin(t *testing.T) {
	r := New()
	c := &fakeConn{id: 1}

	r.ConnectAdmin(c)
	if r.AdminCount() != 1 {
		t.Fatalf("expected 1 admin, got %d", r.AdminCount())
	}

	r.DisconnectAdmin(c)
	r.DisconnectAdmin(c) // no-op
	if r.AdminCount() != 0 {
		t.Fatalf("expected 0 admins, got %d", r.AdminCount())
	}
}

// TestAdminConnections_Snapshot tests that the returned slice is detached
// from later registry mutation.
func TestAdminConnections_Snapshot(t *testing.T) {
	r := New()
	c1 := &fakeConn{id: 1}
	c2 := &fakeConn{id: 2}
	r.ConnectAdmin(c1)
	r.ConnectAdmin(c2)

	snapshot := r.AdminConnections()
	r.DisconnectAdmin(c1)
	r.DisconnectAdmin(c2)

	if len(snapshot) != 2 {
		t.Errorf("expected snapshot of 2 connections, got %d", len(snapshot))
	}
	if r.AdminCount() != 0 {
		t.Errorf("expected registry emptied, got %d", r.AdminCount())
	}
}

// TestConcurrentAccess exercises connect/disconnect/enumerate from many
// goroutines. Run with -race.
func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(3)
		conn := &fakeConn{id: i}
		userID := int64(i % 5)

		go func() {
			defer wg.Done()
			r.ConnectUser(userID, conn)
			r.DisconnectUser(userID, conn)
		}()
		go func() {
			defer wg.Done()
			r.ConnectAdmin(conn)
			r.DisconnectAdmin(conn)
		}()
		go func() {
			defer wg.Done()
			for _, c := range r.AdminConnections() {
				_ = c.Send(nil)
			}
			_ = r.UserCount()
		}()
	}
	wg.Wait()

	if r.AdminCount() != 0 || r.UserCount() != 0 {
		t.Errorf("expected empty registry, got %d admins / %d users", r.AdminCount(), r.UserCount())
	}
}
