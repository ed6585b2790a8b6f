package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rtsim.ai/internal/protocol"
	"rtsim.ai/internal/sim/mathx"
	"rtsim.ai/internal/sim/rtsim"
	"rtsim.ai/internal/sim/rtsim/data"
)

const (
	outQueue = 64
	// Messages allowed per connection per second.
	maxMsgsPerSec = 20

	defaultJoinTimeout = 5 * time.Second
)

var errVersion = errors.New("unsupported protocol_version")

func errUnexpected(typ string) error {
	return fmt.Errorf("unexpected client message type %q", typ)
}

type Server struct {
	sim *rtsim.Sim
	log *log.Logger

	upgrader websocket.Upgrader
	// joinTimeout bounds the wait for the tick loop to accept a join.
	joinTimeout time.Duration
}

func NewServer(sim *rtsim.Sim, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		sim: sim,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		joinTimeout: defaultJoinTimeout,
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		session, char, out := s.handshake(r.Context(), conn)
		if session == "" {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		var window time.Time
		count := 0
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			if now := time.Now(); now.Sub(window) >= time.Second {
				window, count = now, 0
			}
			count++
			if count > maxMsgsPerSec {
				queue(out, protocol.NewError(protocol.ErrRateLimit, "too many messages"))
				continue
			}

			env, code, err := decodeClient(msg)
			if err != nil {
				queue(out, protocol.NewError(code, err.Error()))
				continue
			}
			env.SessionID = session
			env.Character = char
			select {
			case s.sim.Inbox() <- env:
			default:
				queue(out, protocol.NewError(protocol.ErrWorldBusy, "inbox full"))
			}
		}

		// Cleanup.
		s.sim.Leave() <- session
		s.log.Printf("session %s (char %d) closed", session, char)
	}
}

// handshake reads HELLO and joins the character. It returns an empty session
// when the connection should be closed.
func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (string, data.CharacterID, chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", 0, nil
	}

	base, err := protocol.Validate(msg)
	if err == nil && isDialogueType(base.Type) {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrNotJoined, "send HELLO before "+base.Type))
		return "", 0, nil
	}
	if err != nil || base.Type != protocol.TypeHello {
		reason := "expected HELLO"
		if err != nil && base.Type == protocol.TypeHello {
			reason = err.Error()
		}
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, reason))
		return "", 0, nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return "", 0, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "unsupported protocol_version "+hello.ProtocolVersion))
		return "", 0, nil
	}

	session := uuid.NewString()
	char := data.CharacterID(hello.CharacterID)
	out := make(chan []byte, outQueue)
	var pos mathx.Vec3
	if hello.Pos != nil {
		pos = mathx.V3(hello.Pos[0], hello.Pos[1], hello.Pos[2])
	}

	respCh := make(chan rtsim.JoinResponse, 1)
	s.sim.Join() <- rtsim.JoinRequest{
		SessionID: session,
		Character: char,
		Name:      hello.Name,
		Pos:       pos,
		Out:       out,
		Resp:      respCh,
	}
	var resp rtsim.JoinResponse
	timer := time.NewTimer(s.joinTimeout)
	defer timer.Stop()
	select {
	case resp = <-respCh:
	case <-timer.C:
		// The join may still be applied later, so queue a matching leave.
		select {
		case s.sim.Leave() <- session:
		default:
		}
		_ = writeJSON(conn, protocol.NewError(protocol.ErrInternal, "world did not accept the join"))
		return "", 0, nil
	case <-ctx.Done():
		select {
		case s.sim.Leave() <- session:
		default:
		}
		return "", 0, nil
	}
	if resp.ErrCode != "" {
		_ = writeJSON(conn, protocol.NewError(resp.ErrCode, resp.ErrMsg))
		return "", 0, nil
	}
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.sim.Leave() <- session
		return "", 0, nil
	}
	s.log.Printf("session %s joined as char %d", session, char)
	return session, char, out
}

// decodeClient validates one client message against its schema and maps it
// to an envelope. The returned code is set when err is.
func decodeClient(msg []byte) (rtsim.ClientEnvelope, string, error) {
	base, err := protocol.Validate(msg)
	if err != nil {
		return rtsim.ClientEnvelope{}, protocol.ErrProtoBadRequest, err
	}
	if base.ProtocolVersion != protocol.Version {
		return rtsim.ClientEnvelope{}, protocol.ErrProtoVersion, errVersion
	}
	env := rtsim.ClientEnvelope{Type: base.Type}
	switch base.Type {
	case protocol.TypeInteract:
		var m protocol.InteractMsg
		err = json.Unmarshal(msg, &m)
		env.Npc = data.NpcID(m.Npc)
	case protocol.TypeResponse:
		var m protocol.ResponseMsg
		err = json.Unmarshal(msg, &m)
		env.Npc = data.NpcID(m.ToNpc)
		env.Dialogue = data.DialogueID(m.DialogueID)
		env.Tag = m.Tag
		env.Response = m.ResponseID
	case protocol.TypeEnd:
		var m protocol.EndMsg
		err = json.Unmarshal(msg, &m)
		env.Npc = data.NpcID(m.ToNpc)
		env.Dialogue = data.DialogueID(m.DialogueID)
	case protocol.TypeMove:
		var m protocol.MoveMsg
		err = json.Unmarshal(msg, &m)
		env.Pos = mathx.V3(m.Pos[0], m.Pos[1], m.Pos[2])
	default:
		return rtsim.ClientEnvelope{}, protocol.ErrBadRequest, errUnexpected(base.Type)
	}
	if err != nil {
		return rtsim.ClientEnvelope{}, protocol.ErrProtoBadRequest, err
	}
	return env, "", nil
}

func isDialogueType(typ string) bool {
	switch typ {
	case protocol.TypeInteract, protocol.TypeResponse, protocol.TypeEnd, protocol.TypeMove:
		return true
	}
	return false
}

func queue(out chan []byte, msg protocol.ErrorMsg) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
