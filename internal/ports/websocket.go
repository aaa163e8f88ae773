package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sammcj/yaml-bridge/internal/bridge"
	"github.com/sammcj/yaml-bridge/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	outboundQueueSize = 32
	shutdownTimeout   = 5 * time.Second
)

// WebsocketServer serves bridge ports to browsers, one bridge per connection.
type WebsocketServer struct {
	factory  bridge.Factory
	logger   *logrus.Logger
	path     string
	upgrader websocket.Upgrader
}

// NewWebsocketServer creates a server answering upgrades on path. Browser
// origins other than loopback must appear in allowedOrigins.
func NewWebsocketServer(factory bridge.Factory, logger *logrus.Logger, path string, allowedOrigins []string) *WebsocketServer {
	s := &WebsocketServer{factory: factory, logger: logger, path: path}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if OriginAllowed(origin, allowedOrigins) {
				return true
			}
			logger.WithField("origin", origin).Warn("Rejected websocket connection from disallowed origin")
			return false
		},
	}
	return s
}

// ServeHTTP upgrades the request and serves the connection until either side closes it.
func (s *WebsocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	log := s.logger.WithField("remote", r.RemoteAddr)
	log.Info("Port client connected")
	if err := s.serveConn(r.Context(), conn); err != nil {
		log.WithError(err).Warn("Port connection ended with error")
		return
	}
	log.Info("Port client disconnected")
}

func (s *WebsocketServer) serveConn(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(telemetry.WithTransport(ctx, telemetry.TransportWebsocket))
	defer cancel()

	g, gctx := errgroup.WithContext(connCtx)
	stop := context.AfterFunc(gctx, func() { _ = conn.Close() })
	defer stop()

	out := make(chan bridge.Message, outboundQueueSize)
	b := s.factory(bridge.ChanSink(out))

	g.Go(func() error {
		defer cancel()
		defer b.Wait()
		return s.readLoop(gctx, conn, b, out)
	})
	g.Go(func() error {
		return s.writeLoop(gctx, conn, out)
	})

	err := g.Wait()
	_ = conn.Close()
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *WebsocketServer) readLoop(ctx context.Context, conn *websocket.Conn, b *bridge.Bridge, out chan<- bridge.Message) error {
	conn.SetReadLimit(MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read port message: %w", err)
		}
		if kind != websocket.TextMessage {
			s.reply(ctx, out, InvalidFrame(errors.New("binary frames are not supported")))
			continue
		}

		msg, err := Decode(frame)
		if err != nil {
			s.logger.WithError(err).Warn("Invalid port message")
			s.reply(ctx, out, InvalidFrame(err))
			continue
		}
		b.Dispatch(ctx, withID(msg))
	}
}

func (s *WebsocketServer) reply(ctx context.Context, out chan<- bridge.Message, msg bridge.Message) {
	if err := bridge.ChanSink(out).Send(ctx, msg); err != nil {
		s.logger.WithError(err).Debug("Dropped reply for closed connection")
	}
}

func (s *WebsocketServer) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan bridge.Message) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case msg := <-out:
			frame, err := Encode(msg)
			if err != nil {
				return fmt.Errorf("failed to encode message: %w", err)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("failed to write port message: %w", err)
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("failed to ping port client: %w", err)
			}
		}
	}
}

// ListenAndServe serves the websocket endpoint on addr until ctx is done.
func (s *WebsocketServer) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, s)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{"addr": addr, "path": s.path}).Info("Port websocket server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("port websocket server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down port websocket server: %w", err)
		}
		return nil
	}
}
