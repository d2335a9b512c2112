// Package inspect exposes the memory core's diagnostics over HTTP for host
// harnesses: heap snapshots as JSON, a brotli-compressed raw dump of the
// heap regions, and a WebSocket stream of live trace entries. The inspector
// is out-of-band: it only reads snapshots taken under the allocator lock and
// never allocates from the core.
package inspect

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/andybalholm/brotli"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/pnx9/sof/internal/mem"
	"github.com/pnx9/sof/internal/trace"
)

// subscriberBuffer is the per-connection entry backlog. Slow consumers lose
// entries rather than stalling the trace path.
const subscriberBuffer = 64

// Server serves the diagnostic endpoints for one memory map.
type Server struct {
	mm   *mem.MemMap
	ring *trace.Ring

	subs    *xsync.MapOf[uint64, chan trace.Entry]
	nextSub atomic.Uint64
}

// New creates an inspector over the given memory map and trace ring.
func New(mm *mem.MemMap, ring *trace.Ring) *Server {
	return &Server{
		mm:   mm,
		ring: ring,
		subs: xsync.NewMapOf[uint64, chan trace.Entry](),
	}
}

// Handler returns the HTTP handler serving:
//
//	GET /heaps -> JSON snapshot of every heap
//	GET /dump  -> brotli-compressed raw dump of the heap regions
//	GET /trace -> WebSocket stream of trace entries
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/heaps", s.handleHeaps)
	mux.HandleFunc("/dump", s.handleDump)
	mux.HandleFunc("/trace", s.handleTrace)
	return mux
}

// Start listens on addr and serves until the returned shutdown function is
// called. It also attaches the trace listener feeding the WebSocket stream.
func (s *Server) Start(addr string) (func(ctx context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	cancel := s.ring.Listen(s.broadcast)
	srv := &http.Server{Handler: s.Handler()}
	go func() {
		_ = srv.Serve(ln)
	}()
	return func(ctx context.Context) error {
		cancel()
		return srv.Shutdown(ctx)
	}, nil
}

func (s *Server) handleHeaps(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s.mm.Snapshot())
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "br")
	bw := brotli.NewWriter(w)
	defer bw.Close()
	if err := s.mm.WriteDump(bw); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := make(chan trace.Entry, subscriberBuffer)
	id := s.nextSub.Add(1)
	s.subs.Store(id, ch)
	defer s.subs.Delete(id)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-ch:
			if err := wsjson.Write(ctx, conn, entry); err != nil {
				return
			}
		}
	}
}

// broadcast fans a trace entry out to every subscriber without blocking the
// trace path.
func (s *Server) broadcast(e trace.Entry) {
	s.subs.Range(func(_ uint64, ch chan trace.Entry) bool {
		select {
		case ch <- e:
		default:
		}
		return true
	})
}
