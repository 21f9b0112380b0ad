package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"towersim/sim"
	"towersim/utils"
)

// publishTimeout bounds how long Publish waits for a slow subscriber before
// moving on for this tick. The pending write is not cancelled: it keeps
// running in its goroutine and may still complete after the deadline.
const publishTimeout = 200 * time.Millisecond

// Server streams sim.Snapshot values to any number of QUIC subscribers, the
// telemetry-plane analogue of a driver that would otherwise only print to a
// console.
type Server struct {
	listener *quic.Listener

	mu   sync.Mutex
	subs map[*subscriber]bool
}

type subscriber struct {
	stream quic.Stream
}

// NewServer starts listening on addr using an ephemeral self-signed
// certificate; call Serve in its own goroutine to accept subscribers.
func NewServer(addr string) (*Server, error) {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return nil, err
	}

	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{
		MaxIdleTimeout: 30 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: ln,
		subs:     map[*subscriber]bool{},
	}, nil
}

// Serve accepts subscriber connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			utils.Logger.Error("telemetry accept failed", zap.Error(err))
			continue
		}
		go s.admit(ctx, conn)
	}
}

func (s *Server) admit(ctx context.Context, conn quic.Connection) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		utils.Logger.Error("telemetry stream open failed", zap.Error(err))
		return
	}
	sub := &subscriber{stream: stream}

	s.mu.Lock()
	s.subs[sub] = true
	s.mu.Unlock()

	utils.Logger.Info("telemetry subscriber connected",
		zap.String("remote", conn.RemoteAddr().String()))

	<-conn.Context().Done()

	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// Publish fans a snapshot out to every connected subscriber concurrently,
// racing each write against publishTimeout — the same decision-deadline
// shape controller/boost.go used when racing dial attempts against a
// configured timeout, adapted here so one wedged subscriber can never stall
// the simulation's tick loop.
func (s *Server) Publish(ctx context.Context, snap sim.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		utils.Logger.Error("telemetry snapshot marshal failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	targets := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func(sub *subscriber) {
			defer wg.Done()
			s.publishOne(ctx, sub, payload)
		}(sub)
	}
	wg.Wait()
}

func (s *Server) publishOne(ctx context.Context, sub *subscriber, payload []byte) {
	done := make(chan error, 1)
	go func() {
		_, err := sub.stream.Write(append(payload, '\n'))
		done <- err
	}()

	dtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	select {
	case err := <-done:
		if err != nil {
			utils.Logger.Debug("telemetry publish failed", zap.Error(err))
		}
	case <-dtx.Done():
		utils.Logger.Warn("telemetry subscriber missed publish deadline")
	}
}

// Close shuts the listener down; in-flight subscribers drain on their own.
func (s *Server) Close() error {
	return s.listener.Close()
}
