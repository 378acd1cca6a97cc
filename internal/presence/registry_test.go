package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/campuschat/internal/event"
)

type fakeConn struct {
	mu     sync.Mutex
	events []event.Outgoing
	closed bool
	full   bool
}

func (c *fakeConn) Send(ev event.Outgoing) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) statuses() []event.StatusPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.StatusPayload
	for _, ev := range c.events {
		if ev.Type == event.UserStatusUpdate {
			out = append(out, ev.Payload.(event.StatusPayload))
		}
	}
	return out
}

type statusCall struct {
	userID string
	online bool
}

type fakeStatus struct {
	mu    sync.Mutex
	calls []statusCall
}

func (s *fakeStatus) SetOnline(_ context.Context, userID string, online bool) error {
	s.mu.Lock()
	s.calls = append(s.calls, statusCall{userID, online})
	s.mu.Unlock()
	return nil
}

func (s *fakeStatus) snapshot() []statusCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]statusCall(nil), s.calls...)
}

func waitClosed(t *testing.T, c *fakeConn) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !c.isClosed() {
		if time.Now().After(deadline) {
			t.Fatal("connection was not closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestJoinLeave_BroadcastsOnceEach(t *testing.T) {
	status := &fakeStatus{}
	r := NewRegistry(status, time.Second)
	ctx := context.Background()

	watcher := &fakeConn{}
	r.Join(ctx, "t1", watcher)

	a := &fakeConn{}
	r.Join(ctx, "s1", a)
	if !r.Online("s1") || r.Len() != 2 {
		t.Fatalf("s1 not online, len=%d", r.Len())
	}

	if !r.Leave(ctx, a) {
		t.Fatal("Leave of a joined connection returned false")
	}
	if r.Leave(ctx, a) {
		t.Error("second Leave should be a no-op")
	}
	if r.Online("s1") {
		t.Error("s1 still online after leave")
	}

	got := watcher.statuses()
	if len(got) != 2 {
		t.Fatalf("watcher saw %d status events, want 2: %+v", len(got), got)
	}
	if got[0].UserID != "s1" || !got[0].IsOnline || got[1].UserID != "s1" || got[1].IsOnline {
		t.Errorf("unexpected status sequence %+v", got)
	}
	if got := a.statuses(); len(got) != 0 {
		t.Errorf("s1 joined after t1 and should see no status events, got %+v", got)
	}

	calls := status.snapshot()
	want := []statusCall{{"t1", true}, {"s1", true}, {"s1", false}}
	if len(calls) != len(want) {
		t.Fatalf("status calls %+v, want %+v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("status call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestJoin_ReplacementClosesPreviousWithoutFlap(t *testing.T) {
	status := &fakeStatus{}
	r := NewRegistry(status, time.Second)
	ctx := context.Background()

	watcher := &fakeConn{}
	r.Join(ctx, "t1", watcher)
	first, second := &fakeConn{}, &fakeConn{}
	r.Join(ctx, "s1", first)
	r.Join(ctx, "s1", second)

	waitClosed(t, first)
	if c, _ := r.RouteTo("s1"); c != second {
		t.Fatal("latest join should win")
	}
	if r.Leave(ctx, first) {
		t.Error("displaced connection must not remove the new mapping")
	}
	if !r.Online("s1") {
		t.Error("s1 went offline when its displaced connection left")
	}
	if n := len(watcher.statuses()); n != 1 {
		t.Errorf("watcher saw %d status events, want 1", n)
	}
}

func TestJoin_SameConnectionTwiceIsNoop(t *testing.T) {
	status := &fakeStatus{}
	r := NewRegistry(status, time.Second)
	c := &fakeConn{}
	r.Join(context.Background(), "s1", c)
	r.Join(context.Background(), "s1", c)
	if c.isClosed() {
		t.Error("rejoin closed the connection")
	}
	if n := len(status.snapshot()); n != 1 {
		t.Errorf("status written %d times", n)
	}
}

func TestBroadcast_ClosesUnresponsiveConnections(t *testing.T) {
	r := NewRegistry(nil, time.Second)
	ctx := context.Background()
	slow := &fakeConn{full: true}
	r.Join(ctx, "t1", slow)
	r.Join(ctx, "s1", &fakeConn{})
	waitClosed(t, slow)
}

func TestClose_MarksEveryoneOffline(t *testing.T) {
	status := &fakeStatus{}
	r := NewRegistry(status, time.Second)
	ctx := context.Background()
	r.Join(ctx, "s1", &fakeConn{})
	r.Join(ctx, "t1", &fakeConn{})

	r.Close(ctx)
	if r.Len() != 0 {
		t.Errorf("len after close = %d", r.Len())
	}
	offline := map[string]bool{}
	for _, c := range status.snapshot() {
		if !c.online {
			offline[c.userID] = true
		}
	}
	if !offline["s1"] || !offline["t1"] {
		t.Errorf("not everyone marked offline: %+v", status.snapshot())
	}
	if got := r.Users(); len(got) != 0 {
		t.Errorf("users after close: %v", got)
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry(&fakeStatus{}, time.Second)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &fakeConn{}
			r.Join(ctx, "s1", c)
			r.Leave(ctx, c)
		}()
	}
	wg.Wait()
	if r.Online("s1") {
		t.Error("s1 online after every connection left")
	}
}
