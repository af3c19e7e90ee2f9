// Package ws is the player-facing websocket transport: HELLO/WELCOME
// handshake, ACT/RESULT request handling and an EVENT push stream.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"arcanecycles.io/internal/auth"
	"arcanecycles.io/internal/protocol"
	"arcanecycles.io/internal/sim/bus"
	"arcanecycles.io/internal/sim/game"
)

type Config struct {
	// ActsPerSecond and Burst bound ACT messages per connection.
	ActsPerSecond float64
	Burst         int
}

type Server struct {
	loop      *game.Loop
	issuer    *auth.Issuer
	validator *protocol.Validator
	log       zerolog.Logger
	cfg       Config

	upgrader websocket.Upgrader
}

func NewServer(loop *game.Loop, issuer *auth.Issuer, cfg Config, logger zerolog.Logger) (*Server, error) {
	v, err := protocol.NewValidator()
	if err != nil {
		return nil, err
	}
	if cfg.ActsPerSecond <= 0 {
		cfg.ActsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Server{
		loop:      loop,
		issuer:    issuer,
		validator: v,
		log:       logger.With().Str("component", "ws").Logger(),
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}, nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		playerID, out := s.handshake(ctx, conn)
		if playerID == "" {
			return
		}
		log := s.log.With().Str("player", playerID).Logger()
		log.Info().Msg("player connected")

		var sub bus.SubID
		err = s.loop.Call(ctx, func(g *game.Game) {
			sub = g.Bus().Subscribe(bus.All, func(ev bus.Event) {
				sendLatest(out, marshal(eventMsg(ev)))
			})
		})
		if err != nil {
			return
		}
		defer func() {
			_ = s.loop.Call(context.Background(), func(g *game.Game) { g.Bus().Unsubscribe(sub) })
			log.Info().Msg("player disconnected")
		}()

		// Replies never share the lossy event queue.
		replies := make(chan []byte, 8)

		// Writer goroutine. Pending replies go out before events.
		go func() {
			write := func(b []byte) bool {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return false
				}
				return true
			}
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-replies:
					if !write(b) {
						return
					}
					continue
				default:
				}
				select {
				case <-ctx.Done():
					return
				case b := <-replies:
					if !write(b) {
						return
					}
				case b := <-out:
					if !write(b) {
						return
					}
				}
			}
		}()

		limiter := rate.NewLimiter(rate.Limit(s.cfg.ActsPerSecond), s.cfg.Burst)

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			res := s.handleAct(ctx, playerID, limiter, msg)
			if res == nil {
				continue
			}
			select {
			case replies <- marshal(res):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) handleAct(ctx context.Context, playerID string, limiter *rate.Limiter, msg []byte) *protocol.ResultMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeAct {
		return nil
	}
	var act protocol.ActMsg
	_ = json.Unmarshal(msg, &act)
	if err := s.validator.ValidateAct(msg); err != nil || act.ProtocolVersion != protocol.Version {
		return result(act.ReqID, false, protocol.ErrProtoBadRequest, "malformed ACT")
	}
	if !limiter.Allow() {
		return result(act.ReqID, false, protocol.ErrRateLimit, "too many actions")
	}
	var res game.Result
	if err := s.loop.Call(ctx, func(g *game.Game) { res = g.ExecutePlayerAction(playerID, act.Action) }); err != nil {
		return result(act.ReqID, false, protocol.ErrInternal, err.Error())
	}
	return result(act.ReqID, res.OK, res.Code, res.Message)
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (playerID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return "", nil
	}
	if err := s.validator.ValidateHello(msg); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "malformed HELLO")
		return "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return "", nil
	}
	claims, err := s.issuer.Validate(hello.Token)
	if err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrUnauthorized)
		return "", nil
	}

	var welcome protocol.WelcomeMsg
	known := false
	err = s.loop.Call(ctx, func(g *game.Game) {
		if claims.GameID != g.ID() {
			return
		}
		_, known = g.Registry().Player(claims.Subject)
		t := g.Tuning()
		welcome = protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			GameID:          g.ID(),
			PlayerID:        claims.Subject,
			Cycle:           g.Cycle(),
			Phase:           g.Phase(),
			Params: protocol.GameParams{
				MapWidth:     t.MapWidth,
				MapHeight:    t.MapHeight,
				MaxCycles:    t.MaxCycles,
				StartingGold: t.StartingGold,
			},
		}
	})
	if err != nil || !known {
		closeWith(conn, websocket.ClosePolicyViolation, protocol.ErrUnauthorized)
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 64
	}
	if maxQ > 1024 {
		maxQ = 1024
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", nil
	}
	return claims.Subject, make(chan []byte, maxQ)
}

func eventMsg(ev bus.Event) protocol.EventMsg {
	return protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Seq:             ev.Seq,
		Name:            ev.Name,
		AtMs:            ev.At.Milliseconds(),
		Data:            ev.Data,
	}
}

func result(reqID string, ok bool, code, message string) *protocol.ResultMsg {
	return &protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		OK:              ok,
		Code:            code,
		Message:         message,
	}
}

func marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// sendLatest never blocks: a full queue drops its oldest message.
func sendLatest(ch chan []byte, b []byte) {
	if b == nil {
		return
	}
	for {
		select {
		case ch <- b:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
