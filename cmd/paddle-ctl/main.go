package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// ============================================================================
// paddle-ctl - Command-line IPC Client
// ============================================================================
// Sends session and calibration events to the paddlestroke daemon, or
// prints its current state.
//
// Usage:
//   paddle-ctl start
//   paddle-ctl calibrate
//   paddle-ctl angle left 32.5
//   paddle-ctl state
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/paddlestroke.sock)
// ============================================================================

const defaultSocket = "/tmp/paddlestroke.sock"

// request is the line-delimited envelope understood by the daemon.
type request struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type angleData struct {
	Side     string  `json:"side"`
	AngleDeg float64 `json:"angle_deg"`
}

// response mirrors the daemon's IPCResponse. State is kept raw so this
// binary does not depend on the daemon's snapshot layout.
type response struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

func main() {
	socketPath := defaultSocket

	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-socket" || args[0] == "--socket") {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	req, err := buildRequest(args)
	if err == errHelp {
		printUsage()
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	resp, err := roundTrip(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if len(resp.State) == 0 {
		fmt.Println("ok")
		return
	}

	var pretty any
	if err := json.Unmarshal(resp.State, &pretty); err != nil {
		fmt.Println(string(resp.State))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
}

var errHelp = errors.New("help requested")

func buildRequest(args []string) (request, error) {
	switch args[0] {
	case "start":
		return request{Type: "session_start"}, nil
	case "stop":
		return request{Type: "session_stop"}, nil
	case "toggle":
		return request{Type: "session_toggle"}, nil
	case "calibrate", "cal":
		return request{Type: "calibrate"}, nil
	case "reset":
		return request{Type: "reset_stats"}, nil
	case "state", "status":
		return request{Type: "get_state"}, nil

	case "angle":
		if len(args) < 3 {
			return request{}, fmt.Errorf("angle requires <left|right> <degrees>")
		}
		side := strings.ToLower(args[1])
		switch side {
		case "left", "l", "right", "r":
		default:
			return request{}, fmt.Errorf("invalid side %q", args[1])
		}
		deg, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return request{}, fmt.Errorf("invalid angle: %w", err)
		}
		data, err := json.Marshal(angleData{Side: side, AngleDeg: deg})
		if err != nil {
			return request{}, fmt.Errorf("marshal angle: %w", err)
		}
		return request{Type: "angle_sampled", Data: data}, nil

	case "help", "-h", "--help":
		return request{}, errHelp

	default:
		return request{}, fmt.Errorf("unknown command: %s", args[0])
	}
}

func roundTrip(socketPath string, req request) (response, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return response{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return response{}, fmt.Errorf("send request: %w", err)
	}

	var resp response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status == "error" {
		return resp, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return resp, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `paddle-ctl - Control the paddlestroke daemon via IPC

Usage:
  paddle-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/paddlestroke.sock)

Commands:
  start                     Start a session
  stop                      Stop the session and publish its summary
  toggle                    Toggle the session
  calibrate, cal            Recalibrate both paddle baselines
  reset                     Clear distance and stroke counters
  angle <left|right> <deg>  Inject a raw angle sample
  state, status             Print the daemon state as JSON
  help, -h, --help          Show this help message

Examples:
  paddle-ctl start
  paddle-ctl angle left 32.5
  paddle-ctl -socket /run/paddlestroke.sock state
`)
}
