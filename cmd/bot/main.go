package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"warfront.gg/internal/protocol"
)

// A synthetic faction agent: it secures weakly-held units of its faction and
// joins sieges it is a party to. Useful for soak-testing a server and for
// keeping low-population factions in the fight.
func main() {
	var (
		url     = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name    = flag.String("name", "bot", "client name")
		faction = flag.String("faction", "", "faction id (required)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if *faction == "" {
		logger.Fatalf("-faction is required")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		FactionID:       *faction,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 8},
		Auth:            &protocol.HelloAuth{Token: "agent:" + *name},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{
		conn:    conn,
		logger:  logger,
		faction: *faction,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

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
			logger.Printf("WELCOME session=%s faction=%s tick_rate=%d points=%d",
				w.SessionID, w.FactionID, w.MapParams.TickRateHz, w.MapParams.ControlPoints)

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err != nil {
				continue
			}
			if !a.Accepted {
				logger.Printf("rejected %s: %s %s", a.AckFor, a.Code, a.Message)
			}

		case protocol.TypeDiff:
			var d protocol.DiffMsg
			if err := json.Unmarshal(msg, &d); err != nil {
				continue
			}
			b.handleDiff(&d)
		}
	}
}

type bot struct {
	conn    *websocket.Conn
	logger  *log.Logger
	faction string
	rng     *rand.Rand

	// last seen influence for our faction per unit
	held map[string]float64
	// sieges we are attacker or defender in
	sieges map[string]protocol.SiegeDiff
}

func (b *bot) handleDiff(d *protocol.DiffMsg) {
	if b.held == nil {
		b.held = make(map[string]float64)
	}
	if b.sieges == nil {
		b.sieges = make(map[string]protocol.SiegeDiff)
	}

	for _, u := range d.Units {
		if u.FactionID == b.faction {
			b.held[u.UnitID] = u.Influence
		}
	}
	for _, s := range d.Sieges {
		switch s.Event {
		case protocol.SiegeResolved, protocol.SiegeAbandoned:
			delete(b.sieges, s.SiegeID)
		default:
			if s.Attacker == b.faction || s.Defender == b.faction {
				b.sieges[s.SiegeID] = s
			}
		}
	}

	var acts []protocol.ActionReq

	// Shore up the weakest unit we have presence on, at a modest rate.
	if d.Tick%20 == 0 {
		if unit, ok := b.weakestHeld(); ok {
			acts = append(acts, protocol.ActionReq{
				ID:        fmt.Sprintf("A_secure_%d", d.Tick),
				Kind:      protocol.ActionSecure,
				UnitID:    unit,
				Magnitude: 1 + b.rng.Float64()*2,
			})
		}
	}

	// Press every siege we are part of.
	if d.Tick%5 == 0 {
		for _, s := range b.sieges {
			acts = append(acts, protocol.ActionReq{
				ID:        fmt.Sprintf("A_strike_%s_%d", s.SiegeID, d.Tick),
				Kind:      protocol.ActionStrike,
				UnitID:    s.UnitID,
				SiegeID:   s.SiegeID,
				Magnitude: 2 + b.rng.Float64()*3,
			})
		}
	}

	if len(acts) == 0 {
		return
	}
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            d.Tick,
		Actions:         acts,
	}
	_ = b.conn.WriteJSON(act)
}

func (b *bot) weakestHeld() (string, bool) {
	var best string
	bestVal := 101.0
	for unit, v := range b.held {
		if v > 0 && v < bestVal {
			best = unit
			bestVal = v
		}
	}
	return best, best != ""
}
