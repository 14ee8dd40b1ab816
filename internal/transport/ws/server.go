package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"warfront.gg/internal/protocol"
	"warfront.gg/internal/sim/hub"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second
)

type Server struct {
	hub           *hub.Hub
	log           *log.Logger
	queueSize     int
	submitTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewServer(h *hub.Hub, queueSize int, submitTimeout time.Duration, logger *log.Logger) *Server {
	if queueSize <= 0 {
		queueSize = 64
	}
	if submitTimeout <= 0 {
		submitTimeout = time.Second
	}
	return &Server{
		hub:           h,
		log:           logger,
		queueSize:     queueSize,
		submitTimeout: submitTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out, kick := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-kick:
					// Hub dropped the session (queue overflow or shutdown).
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "dropped"),
						time.Now().Add(time.Second))
					_ = conn.Close()
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Heartbeats: silently dead connections miss pongs, the read
		// deadline fires, and the session is unsubscribed below.
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go func() {
			t := time.NewTicker(pingPeriod)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeAct:
				var act protocol.ActMsg
				if err := json.Unmarshal(msg, &act); err != nil {
					s.rejectProto(out, protocol.TypeAct, "malformed ACT")
					continue
				}
				if act.ProtocolVersion != protocol.Version {
					s.rejectProto(out, protocol.TypeAct, "protocol_version mismatch")
					continue
				}
				s.submit(sessionID, act, out)
			case protocol.TypeSubscribe:
				var sub protocol.SubscribeMsg
				if err := json.Unmarshal(msg, &sub); err != nil {
					s.rejectProto(out, protocol.TypeSubscribe, "malformed SUBSCRIBE")
					continue
				}
				if sub.ProtocolVersion != protocol.Version {
					s.rejectProto(out, protocol.TypeSubscribe, "protocol_version mismatch")
					continue
				}
				select {
				case s.hub.Subscribe() <- hub.SubscribeRequest{SessionID: sessionID, Filter: sub.Filter}:
				default:
					// Drop updates under load; the client may resend.
				}
			}
		}

		// Cleanup.
		s.hub.Leave() <- sessionID
	}
}

// rejectProto tells the client its message was dropped at the transport
// boundary. Best-effort: a full queue loses the notice, not the session.
func (s *Server) rejectProto(out chan []byte, ackFor, msg string) {
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ackFor,
		Accepted:        false,
		Code:            protocol.ErrProtoBadRequest,
		Message:         msg,
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

// submit forwards the ACT to the hub, bounded by the submit timeout. A
// submission that cannot be admitted in time is rejected explicitly, never
// left pending.
func (s *Server) submit(sessionID string, act protocol.ActMsg, out chan []byte) {
	select {
	case s.hub.Submit() <- hub.SubmitEnvelope{SessionID: sessionID, Act: act}:
		return
	case <-time.After(s.submitTimeout):
	}
	for _, a := range act.Actions {
		b, err := json.Marshal(protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          a.ID,
			Accepted:        false,
			Code:            protocol.ErrTimeout,
			Message:         "server busy",
		})
		if err != nil {
			continue
		}
		select {
		case out <- b:
		default:
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte, kick <-chan struct{}) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil, nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 || maxQ > s.queueSize {
		maxQ = s.queueSize
	}
	out = make(chan []byte, maxQ)

	kind := hub.KindPlayer
	if hello.Auth != nil && hello.Auth.Token != "" {
		kind = sessionKind(hello.Auth.Token)
	}

	respCh := make(chan hub.JoinResponse, 1)
	s.hub.Join() <- hub.JoinRequest{
		ClientName: hello.ClientName,
		FactionID:  hello.FactionID,
		Kind:       kind,
		Filter:     hello.Filter,
		Out:        out,
		Resp:       respCh,
	}
	resp := <-respCh

	if resp.Code != "" {
		// Explicit rejection (capacity, unknown faction) rather than a
		// reset connection.
		if err := writeJSON(conn, protocol.AckMsg{
			Type:            protocol.TypeAck,
			ProtocolVersion: protocol.Version,
			AckFor:          protocol.TypeHello,
			Accepted:        false,
			Code:            resp.Code,
		}); err == nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, resp.Code), time.Now().Add(time.Second))
		}
		return "", nil, nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.hub.Leave() <- resp.SessionID
		return "", nil, nil
	}

	return resp.SessionID, out, resp.Kick
}

// sessionKind maps an auth token to a session kind. Synthetic faction
// agents (the AI strategy module) authenticate with an "agent:" token.
func sessionKind(token string) string {
	if len(token) > 6 && token[:6] == "agent:" {
		return hub.KindAgent
	}
	return hub.KindPlayer
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
