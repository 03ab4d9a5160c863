// Package ws exposes a streamer to players over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/udisondev/worldstream/internal/level"
	"github.com/udisondev/worldstream/internal/stream"
)

// World is the part of the streamer the transport drives.
type World interface {
	Submit(cmd stream.Command) error
	Subscribe() (<-chan stream.Event, func())
	Spawned() []stream.Instance
	Player() level.State
}

// Options tune client connections.
type Options struct {
	WriteTimeout  time.Duration
	ReadTimeout   time.Duration
	SendQueueSize int
}

// Server upgrades HTTP requests to player sessions.
type Server struct {
	world World
	opts  Options

	upgrader websocket.Upgrader
}

// NewServer returns a server driving w.
func NewServer(w World, opts Options) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 120 * time.Second
	}
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = 256
	}
	return &Server{
		world: w,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // local clients
		},
	}
}

// Handler serves one player session per connection.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		defer conn.Close()

		events, unsubscribe := s.world.Subscribe()
		defer unsubscribe()

		if err := s.writeJSON(conn, s.welcome()); err != nil {
			return
		}
		slog.Info("player connected", "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan any, s.opts.SendQueueSize)

		// Writer goroutine. Closing the connection unblocks the reader.
		go func() {
			defer conn.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case e, ok := <-events:
					if !ok {
						cancel()
						return
					}
					if err := s.writeJSON(conn, e); err != nil {
						cancel()
						return
					}
				case v := <-out:
					if err := s.writeJSON(conn, v); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
			_, b, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if err := s.handle(b); err != nil {
				select {
				case out <- ErrorMsg{Type: TypeError, Error: err.Error()}:
				default:
				}
			}
		}

		slog.Info("player disconnected", "remote", r.RemoteAddr)
	}
}

func (s *Server) handle(b []byte) error {
	msg, err := DecodeClientMsg(b)
	if err != nil {
		return err
	}
	cmd, err := msg.Command()
	if err != nil {
		return err
	}
	return s.world.Submit(cmd)
}

func (s *Server) welcome() WelcomeMsg {
	st := s.world.Player()
	msg := WelcomeMsg{
		Type:     TypeWelcome,
		Parcel:   st.Parcel,
		Level:    st.Level,
		Position: st.Position,
	}
	for _, inst := range s.world.Spawned() {
		msg.Spawned = append(msg.Spawned, SpawnedScene{
			Instance:  inst.ID,
			Kind:      inst.Kind.String(),
			Name:      inst.Scene.Name,
			Parcels:   inst.Parcels,
			Timestamp: inst.Timestamp,
			Level:     inst.Level,
		})
	}
	return msg
}

func (s *Server) writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
