// Command bot is a minimal websocket player. It passes its sequential turns
// and posts a small bid in every auction window.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"arcanecycles.io/internal/protocol"
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8080", "server base url")
		player  = flag.String("player", "p1", "player id")
		spread  = flag.Float64("spread", 0.05, "bid discount below the window price")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMicro}).With().Timestamp().Str("player", *player).Logger()

	token, err := session(*baseURL, *player)
	if err != nil {
		logger.Fatal().Err(err).Msg("session")
	}
	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(*baseURL, "/"), "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Token:           token,
		MaxQueue:        64,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatal().Err(err).Msg("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	b := &bot{id: *player, conn: conn, spread: *spread, log: logger}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Info().Str("game", w.GameID).Int("cycle", w.Cycle).Str("phase", w.Phase).Msg("WELCOME")
		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			b.onEvent(ev)
		case protocol.TypeResult:
			var res protocol.ResultMsg
			if err := json.Unmarshal(msg, &res); err != nil {
				continue
			}
			if !res.OK {
				logger.Debug().Str("req", res.ReqID).Str("code", res.Code).Msg(res.Message)
			}
		}
	}
}

type bot struct {
	id     string
	conn   *websocket.Conn
	spread float64
	log    zerolog.Logger
	seq    int
}

func (b *bot) onEvent(ev protocol.EventMsg) {
	switch ev.Name {
	case "turn.started":
		if ev.Data["player"] != b.id {
			return
		}
		if phase, _ := ev.Data["phase"].(string); phase == "territory_selection" || phase == "outfitting" {
			b.act(protocol.Action{Type: protocol.ActionEndTurn})
		}
	case "auction.window.opened":
		price, _ := ev.Data["price"].(float64)
		resource, _ := ev.Data["resource"].(string)
		if price <= 0 {
			return
		}
		bid := math.Round(price*(1-b.spread)*100) / 100
		b.act(protocol.Action{Type: protocol.ActionSubmitPosition, Params: protocol.ActionParams{
			Resource: resource,
			Side:     "buy",
			Price:    bid,
			Quantity: 1,
		}})
	case "game.ended":
		b.log.Info().Interface("standings", ev.Data["standings"]).Msg("game ended")
		_ = b.conn.Close()
	}
}

func (b *bot) act(a protocol.Action) {
	b.seq++
	msg := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ReqID:           fmt.Sprintf("%s-%d", b.id, b.seq),
		Action:          a,
	}
	if err := b.conn.WriteJSON(msg); err != nil {
		b.log.Error().Err(err).Msg("send ACT")
	}
}

func session(baseURL, player string) (string, error) {
	body, _ := json.Marshal(map[string]string{"player_id": player})
	resp, err := http.Post(strings.TrimRight(baseURL, "/")+"/api/v1/session", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("session refused: status %d", resp.StatusCode)
	}
	return out.Token, nil
}
