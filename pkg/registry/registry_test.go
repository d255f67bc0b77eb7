package registry

import (
	"context"
	"io"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/sqmean/pkg/conn"
	"github.com/vango-dev/sqmean/pkg/dump"
	"github.com/vango-dev/sqmean/pkg/protocol"
)

type memSink struct {
	mu     sync.Mutex
	blocks []dump.Block
}

func (s *memSink) Enqueue(b dump.Block) error {
	s.mu.Lock()
	s.blocks = append(s.blocks, b)
	s.mu.Unlock()
	return nil
}

func (s *memSink) byID(id uint64) []dump.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dump.Block
	for _, b := range s.blocks {
		if b.ConnID == id {
			out = append(out, b)
		}
	}
	return out
}

// tickUntil ticks r until cond holds or two seconds pass.
func tickUntil(t *testing.T, r *Registry, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.tick(time.Now())
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func pipeConn(t *testing.T) (*conn.Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return conn.New(server), client
}

func TestIDsAreNeverReused(t *testing.T) {
	r := New(Config{})

	var clients []net.Conn
	var conns []*conn.Connection
	for i := 0; i < 3; i++ {
		c, cl := pipeConn(t)
		r.Register(c)
		conns = append(conns, c)
		clients = append(clients, cl)
	}
	r.tick(time.Now())

	for i, c := range conns {
		if c.ID() != uint64(i+1) {
			t.Errorf("conn %d id = %d, want %d", i, c.ID(), i+1)
		}
	}

	clients[1].Close()
	tickUntil(t, r, func() bool { return r.Stats().Live == 2 })

	c, _ := pipeConn(t)
	r.Register(c)
	r.tick(time.Now())
	if c.ID() != 4 {
		t.Errorf("new conn id = %d, want 4", c.ID())
	}
	if s := r.Stats(); s.Registered != 4 || s.Reaped != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestResetConnectionReapedWithinOneTick(t *testing.T) {
	r := New(Config{})
	c, client := pipeConn(t)
	r.Register(c)
	r.tick(time.Now())

	if c.ReadStatus() != conn.StatusInProgress {
		t.Fatalf("read status = %s, want in_progress", c.ReadStatus())
	}

	client.Close()
	deadline := time.Now().Add(2 * time.Second)
	for c.ReadStatus() != conn.StatusClosed && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	r.tick(time.Now())
	if r.Stats().Live != 0 {
		t.Fatalf("live = %d after one tick, want 0", r.Stats().Live)
	}
	if c.IsOpen() {
		t.Error("reaped connection still open")
	}
	if c.BeginRead() || c.BeginWrite([]byte{0}) {
		t.Error("reaped connection accepted further I/O")
	}
}

func TestEveryValueAnsweredOnce(t *testing.T) {
	r := New(Config{Tick: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	c, client := pipeConn(t)
	r.Register(c)

	client.SetDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, protocol.ResponseSize)
	var means []uint64
	for _, v := range []uint32{5, 2, 5} {
		if _, err := client.Write(protocol.EncodeRequest(v)); err != nil {
			t.Fatalf("write %d: %v", v, err)
		}
		if _, err := io.ReadFull(client, buf); err != nil {
			t.Fatalf("read after %d: %v", v, err)
		}
		mean, _ := protocol.DecodeResponse(buf)
		means = append(means, mean)
	}

	if diff := cmp.Diff([]uint64{25, 14, 14}, means); diff != "" {
		t.Errorf("means mismatch (-want +got):\n%s", diff)
	}

	cancel()
	<-done

	s := r.Stats()
	if s.Recorded != 3 || s.Answered != 3 {
		t.Errorf("recorded=%d answered=%d, want 3/3", s.Recorded, s.Answered)
	}
	if r.Register(conn.New(nil)) {
		t.Error("Register after stop should return false")
	}
}

func TestPipelinedValuesAnsweredInOrder(t *testing.T) {
	r := New(Config{Tick: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	c, client := pipeConn(t)
	r.Register(c)
	client.SetDeadline(time.Now().Add(5 * time.Second))

	writeErr := make(chan error, 1)
	go func() {
		for _, v := range []uint32{3, 4, 5} {
			if _, err := client.Write(protocol.EncodeRequest(v)); err != nil {
				writeErr <- err
				return
			}
		}
		writeErr <- nil
	}()

	// All three values are recorded before any response is read.
	deadline := time.Now().Add(2 * time.Second)
	for r.Stats().Recorded < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := r.Stats().Recorded; got != 3 {
		t.Fatalf("recorded = %d before reading, want 3", got)
	}

	buf := make([]byte, protocol.ResponseSize)
	var means []uint64
	for i := 0; i < 3; i++ {
		if _, err := io.ReadFull(client, buf); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		mean, _ := protocol.DecodeResponse(buf)
		means = append(means, mean)
	}
	if err := <-writeErr; err != nil {
		t.Fatalf("write: %v", err)
	}

	if diff := cmp.Diff([]uint64{9, 12, 16}, means); diff != "" {
		t.Errorf("means mismatch (-want +got):\n%s", diff)
	}

	cancel()
	<-done
}

func TestSnapshotOnCadenceAndShutdown(t *testing.T) {
	sink := &memSink{}
	r := New(Config{DumpInterval: time.Hour}, WithSink(sink))
	r.nextDump = time.Now().Add(time.Hour)

	c, client := pipeConn(t)
	idle, _ := pipeConn(t)
	r.Register(c)
	r.Register(idle)
	r.tick(time.Now())

	go func() {
		client.Write(protocol.EncodeRequest(3))
		io.ReadFull(client, make([]byte, protocol.ResponseSize))
		client.Write(protocol.EncodeRequest(4))
		io.ReadFull(client, make([]byte, protocol.ResponseSize))
	}()
	tickUntil(t, r, func() bool { return r.Stats().Answered == 2 })

	// Cadence elapsed: one block for the live connection.
	r.tick(time.Now().Add(2 * time.Hour))
	blocks := sink.byID(c.ID())
	if len(blocks) != 1 || !slices.Equal(blocks[0].Values, []uint64{9, 16}) {
		t.Fatalf("blocks = %+v, want one block [9 16]", blocks)
	}
	if got := sink.byID(idle.ID()); len(got) != 0 {
		t.Errorf("idle connection blocks = %+v, want none", got)
	}

	// Shutdown snapshots again, even though the cadence has not elapsed.
	r.shutdown()
	if n := len(sink.byID(c.ID())); n != 2 {
		t.Errorf("blocks after shutdown = %d, want 2", n)
	}
	if n := len(sink.byID(idle.ID())); n != 0 {
		t.Errorf("idle connection blocks after shutdown = %d, want 0", n)
	}
	if c.IsOpen() {
		t.Error("connection left open after shutdown")
	}
}

func TestRunTwice(t *testing.T) {
	r := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !r.running.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := r.Run(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("second Run = %v, want ErrAlreadyRunning", err)
	}
	cancel()
	<-done
}
