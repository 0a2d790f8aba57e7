package console

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"github.com/sstgo/corevortex/internal/objectmap"
	"github.com/sstgo/corevortex/internal/simulation"
	"github.com/sstgo/corevortex/internal/telemetry"
)

// Server is the `--interactive-console` endpoint: a websocket for
// live ObjectMap navigation at /ws and a rendered run report at
// /report. One Server instance serves one partition.
type Server struct {
	Addr     string
	MaxConns int // 0 means DefaultMaxConns

	Sim       *simulation.Simulation
	Telemetry *telemetry.Store
	Log       *slog.Logger

	upgrader websocket.Upgrader
	srv      *http.Server
}

// DefaultMaxConns bounds concurrent console connections when
// MaxConns is unset, matching the "a diagnostic port, not a public
// API" sizing Design Notes call for.
const DefaultMaxConns = 8

// navRequest is the websocket request envelope: Path walks the
// ObjectMap tree by child name from the root; an empty Path
// describes the root itself. A present Value (even "") attempts a Set.
type navRequest struct {
	Path  []string `json:"path"`
	Value *string  `json:"value,omitempty"`
}

type navResponse struct {
	Value         string   `json:"value"`
	Type          string   `json:"type"`
	IsFundamental bool     `json:"is_fundamental"`
	ReadOnly      bool     `json:"read_only"`
	Children      []string `json:"children,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// ListenAndServe starts serving until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	max := s.MaxConns
	if max <= 0 {
		max = DefaultMaxConns
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	ln = netutil.LimitListener(ln, max)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS(log))
	mux.HandleFunc("/report", s.handleReport(log))

	s.srv = &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleWS(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("console: websocket upgrade", "err", err)
			return
		}
		defer conn.Close()

		connID := uuid.New().String()
		log = log.With("conn", connID)
		log.Debug("console: connection opened")

		for {
			var req navRequest
			if err := conn.ReadJSON(&req); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug("console: websocket read", "err", err)
				}
				return
			}
			resp := s.navigate(req)
			if err := conn.WriteJSON(resp); err != nil {
				log.Debug("console: websocket write", "err", err)
				return
			}
		}
	}
}

func (s *Server) navigate(req navRequest) navResponse {
	node := Snapshot(s.Sim)
	for _, name := range req.Path {
		if node.IsFundamental() {
			return navResponse{Error: "path descends into a fundamental value"}
		}
		container, ok := node.(*objectmap.Container)
		if !ok {
			return navResponse{Error: "path descends into a non-container node"}
		}
		child := container.Field(name)
		if child == nil {
			return navResponse{Error: "no such field: " + name}
		}
		node = child
	}

	if req.Value != nil {
		if err := node.Set(*req.Value); err != nil {
			return navResponse{Error: err.Error()}
		}
	}

	resp := navResponse{
		Value:         node.Get(),
		Type:          node.Type(),
		IsFundamental: node.IsFundamental(),
		ReadOnly:      node.ReadOnly(),
	}
	if container, ok := node.(*objectmap.Container); ok {
		resp.Children = container.Names()
	}
	return resp
}

func (s *Server) handleReport(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		html, err := RenderReport(s.Sim, s.Telemetry)
		if err != nil {
			log.Error("console: render report", "err", err)
			http.Error(w, "report rendering failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(html)
	}
}
