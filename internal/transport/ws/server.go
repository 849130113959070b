// Package ws serves the game protocol over a single websocket per
// player: HELLO handshake, WELCOME + CATALOG, then ACT frames in and
// ACK/STATE frames out.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"towntrade.dev/internal/protocol"
	"towntrade.dev/internal/sim/session"
)

// SessionOpener creates (or resumes from disk) the session for a fresh
// HELLO and starts its run loop. Reconnects bypass it via resume tokens.
type SessionOpener interface {
	Open(playerName, roleKey string) (*session.Session, error)
}

type Server struct {
	open SessionOpener
	log  *log.Logger

	upgrader websocket.Upgrader

	helloSchema *jsonschema.Schema
	actSchema   *jsonschema.Schema

	mu      sync.Mutex
	byToken map[string]*session.Session
}

func NewServer(open SessionOpener, logger *log.Logger) (*Server, error) {
	hello, err := protocol.CompileSchema("hello.schema.json")
	if err != nil {
		return nil, err
	}
	act, err := protocol.CompileSchema("act.schema.json")
	if err != nil {
		return nil, err
	}
	return &Server{
		open: open,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		helloSchema: hello,
		actSchema:   act,
		byToken:     map[string]*session.Session{},
	}, nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess, out := s.handshake(conn)
		if sess == nil {
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
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeAct {
				nack(out, base.ID, "expected an ACT frame")
				continue
			}
			if !s.validate(s.actSchema, msg) {
				nack(out, base.ID, "malformed ACT frame")
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				nack(out, base.ID, "malformed ACT frame")
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				nack(out, act.ID, "unsupported protocol_version")
				continue
			}
			sess.Inbox() <- session.ActionEnvelope{
				MsgID:  act.ID,
				Action: act.Action,
				Input: session.ActionInput{
					Item:   act.Params.Item,
					Price:  act.Params.Price,
					Qty:    act.Params.Qty,
					Amount: act.Params.Amount,
					Option: act.Params.Option,
				},
			}
		}

		sess.Detach() <- struct{}{}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*session.Session, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return nil, nil
	}
	if !s.validate(s.helloSchema, msg) {
		closePolicy(conn, "malformed HELLO")
		return nil, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return nil, nil
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "trader"
	}
	if hello.Role == "" {
		hello.Role = "general_store"
	}

	var sess *session.Session
	if token := strings.TrimSpace(hello.ResumeToken); token != "" {
		s.mu.Lock()
		sess = s.byToken[token]
		s.mu.Unlock()
		if sess == nil {
			closePolicy(conn, "unknown resume_token")
			return nil, nil
		}
	} else {
		sess, err = s.open.Open(hello.PlayerName, hello.Role)
		if err != nil {
			if s.log != nil {
				s.log.Printf("ws: open session for %q/%q: %v", hello.PlayerName, hello.Role, err)
			}
			closePolicy(conn, "cannot open session")
			return nil, nil
		}
		s.mu.Lock()
		s.byToken[sess.ResumeToken()] = sess
		s.mu.Unlock()
	}

	out := make(chan []byte, 32)
	respCh := make(chan session.AttachResponse, 1)
	sess.Attach() <- session.AttachRequest{Out: out, Resp: respCh}
	resp := <-respCh

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return nil, nil
	}
	if err := writeJSON(conn, resp.Catalog); err != nil {
		return nil, nil
	}
	return sess, out
}

// Forget drops a resume token, usually because the hub evicted the
// session behind it. A later HELLO with that token is refused.
func (s *Server) Forget(token string) {
	s.mu.Lock()
	delete(s.byToken, token)
	s.mu.Unlock()
}

// nack acknowledges a frame the reader refused to dispatch. It goes
// through the out channel; only the writer goroutine touches the conn.
func nack(out chan []byte, msgID, text string) {
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          msgID,
		Code:            protocol.ErrProtoBadRequest,
		Message:         text,
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func (s *Server) validate(schema *jsonschema.Schema, msg []byte) bool {
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return false
	}
	return schema.Validate(v) == nil
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
