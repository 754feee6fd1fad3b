package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// frame is the daemon's websocket envelope.
type frame struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outputsData struct {
	LeftDeltaDeg  float64 `json:"left_delta_deg"`
	RightDeltaDeg float64 `json:"right_delta_deg"`
	Propulsion    float64 `json:"propulsion"`
	Thrust        float64 `json:"thrust"`
	Yaw           float64 `json:"yaw"`
	Phase         float64 `json:"phase"`
}

type strokeData struct {
	Side           string  `json:"side"`
	PeakDeg        float64 `json:"peak_deg"`
	Class          string  `json:"class"`
	DistanceMeters int     `json:"distance_m"`
}

type tapData struct {
	Channel  string  `json:"channel"`
	Side     string  `json:"side"`
	Class    string  `json:"class"`
	DepthDeg float64 `json:"depth_deg"`
}

func main() {
	var (
		wsURL       = flag.String("ws", "ws://127.0.0.1:3002/ws", "paddlestroke websocket URL")
		showOutputs = flag.Bool("outputs", false, "Print continuous outputs frames")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	// The daemon pings every 20s; each ping extends the read deadline.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if line := formatFrame(message, *showOutputs); line != "" {
				fmt.Println(line)
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// formatFrame renders one frame for the terminal. Empty means skip.
func formatFrame(message []byte, showOutputs bool) string {
	var f frame
	if err := json.Unmarshal(message, &f); err != nil {
		return fmt.Sprintf("[TEXT] %s", string(message))
	}

	switch f.Type {
	case "outputs":
		if !showOutputs {
			return ""
		}
		var o outputsData
		if err := json.Unmarshal(f.Data, &o); err != nil {
			break
		}
		return fmt.Sprintf("[OUTPUTS] L=%+.2f R=%+.2f prop=%.2f thrust=%.2f yaw=%+.2f phase=%.2f",
			o.LeftDeltaDeg, o.RightDeltaDeg, o.Propulsion, o.Thrust, o.Yaw, o.Phase)

	case "stroke":
		var s strokeData
		if err := json.Unmarshal(f.Data, &s); err != nil {
			break
		}
		return fmt.Sprintf("[STROKE] %s %s peak=%.1f° +%dm", s.Side, s.Class, s.PeakDeg, s.DistanceMeters)

	case "tap":
		var tp tapData
		if err := json.Unmarshal(f.Data, &tp); err != nil {
			break
		}
		return fmt.Sprintf("[TAP] %s %s (channel %s, depth %.1f°)", tp.Side, tp.Class, tp.Channel, tp.DepthDeg)
	}

	var pretty any
	if err := json.Unmarshal(f.Data, &pretty); err != nil || len(f.Data) == 0 {
		return fmt.Sprintf("[%s]", f.Type)
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	return fmt.Sprintf("[%s]\n%s", f.Type, string(out))
}
