package gantry

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mofcat/labmill-core/internal/geometry"
)

// Simulator speaks the controller's wire protocol over an in-memory
// connection: banner on connect, "ok"/"error:N"/"ALARM:N" per command,
// "<...>" status reports for "?". It backs the driver tests and the
// offline validate path, where no physical controller exists.
//
// All methods are safe for concurrent use.
type Simulator struct {
	mu       sync.Mutex
	pos      geometry.Point3D
	alarmed  bool
	commands []string
	delay    time.Duration
	nextResp string
	settings map[string]string
}

// NewSimulator returns a simulator at position (0, 0, 0).
func NewSimulator() *Simulator {
	return &Simulator{settings: make(map[string]string)}
}

// Dial is a DialFunc. The address is ignored; each call starts a fresh
// session goroutine over an in-memory pipe.
func (s *Simulator) Dial(_ context.Context, _ string) (Transport, error) {
	client, server := net.Pipe()
	go s.serve(server)
	return client, nil
}

// Position returns the simulated machine position.
func (s *Simulator) Position() geometry.Point3D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// SetPosition places the simulated machine, for tests that start away
// from the origin.
func (s *Simulator) SetPosition(p geometry.Point3D) {
	s.mu.Lock()
	s.pos = p
	s.mu.Unlock()
}

// Commands returns every line command received, in order.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// SetDelay makes the simulator wait before acknowledging each line
// command, to exercise command timeouts.
func (s *Simulator) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// RespondNext overrides the response to the next line command, e.g.
// "error:9" or "ALARM:1". An ALARM response also puts the simulator in
// the alarm state until unlocked.
func (s *Simulator) RespondNext(resp string) {
	s.mu.Lock()
	s.nextResp = resp
	s.mu.Unlock()
}

// Setting returns a stored firmware setting value, e.g. Setting("$130").
func (s *Simulator) Setting(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[key]
	return v, ok
}

func (s *Simulator) serve(conn net.Conn) {
	defer conn.Close()

	if _, err := conn.Write([]byte("Grbl 1.1h ['$' for help]\r\n")); err != nil {
		return
	}

	reader := bufio.NewReader(conn)
	var line []byte
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return
		}
		if b == '?' && len(line) == 0 {
			if _, err := conn.Write([]byte(s.statusLine() + "\r\n")); err != nil {
				return
			}
			continue
		}
		if b != '\n' {
			line = append(line, b)
			continue
		}

		cmd := strings.TrimSpace(string(line))
		line = line[:0]
		if cmd == "" {
			continue
		}

		resp, delay := s.handle(cmd)
		if delay > 0 {
			time.Sleep(delay)
		}
		if _, err := conn.Write([]byte(resp + "\r\n")); err != nil {
			return
		}
	}
}

func (s *Simulator) handle(cmd string) (resp string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commands = append(s.commands, cmd)
	delay = s.delay

	if s.nextResp != "" {
		resp = s.nextResp
		s.nextResp = ""
		if strings.HasPrefix(resp, "ALARM") {
			s.alarmed = true
		}
		return resp, delay
	}

	if s.alarmed && cmd != cmdUnlock {
		return "error:9", delay
	}

	switch {
	case cmd == cmdHome:
		s.pos = geometry.Point3D{}
	case cmd == cmdUnlock:
		s.alarmed = false
	case strings.HasPrefix(cmd, "G10 L20"):
		s.pos = geometry.Point3D{}
	case strings.HasPrefix(cmd, "G01") || strings.HasPrefix(cmd, "G00") ||
		strings.HasPrefix(cmd, "G1 ") || strings.HasPrefix(cmd, "G0 "):
		p, err := s.applyMove(cmd)
		if err != nil {
			return "error:33", delay
		}
		s.pos = p
	case strings.HasPrefix(cmd, "$") && strings.Contains(cmd, "="):
		key, value, _ := strings.Cut(cmd, "=")
		s.settings[key] = value
	case cmd == cmdUnitsMM || cmd == cmdAbsolute:
	case strings.HasPrefix(cmd, "F"):
	default:
		return "error:20", delay
	}
	return "ok", delay
}

// applyMove parses the axis words of a move command against the current
// position; absent axes keep their value, matching absolute mode.
func (s *Simulator) applyMove(cmd string) (geometry.Point3D, error) {
	p := s.pos
	for _, word := range strings.Fields(cmd)[1:] {
		if len(word) < 2 {
			return geometry.Point3D{}, fmt.Errorf("bad word %q", word)
		}
		axis, rest := word[0], word[1:]
		if axis == 'F' {
			continue
		}
		v, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return geometry.Point3D{}, err
		}
		switch axis {
		case 'X':
			p.X = v
		case 'Y':
			p.Y = v
		case 'Z':
			p.Z = v
		default:
			return geometry.Point3D{}, fmt.Errorf("bad axis %q", word)
		}
	}
	return p, nil
}

func (s *Simulator) statusLine() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := "Idle"
	if s.alarmed {
		state = "Alarm"
	}
	return fmt.Sprintf("<%s|WPos:%.3f,%.3f,%.3f|FS:0,0>", state, s.pos.X, s.pos.Y, s.pos.Z)
}
