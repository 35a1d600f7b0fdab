// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Engine.IO v4 packet types.
const (
	eioOpen    byte = '0'
	eioClose   byte = '1'
	eioPing    byte = '2'
	eioPong    byte = '3'
	eioMessage byte = '4'
	eioUpgrade byte = '5'
	eioNoop    byte = '6'
)

// Socket.IO v5 packet types carried inside an Engine.IO message.
const (
	sioConnect      byte = '0'
	sioDisconnect   byte = '1'
	sioEvent        byte = '2'
	sioAck          byte = '3'
	sioConnectError byte = '4'
)

var ErrBadPacket = errors.New("realtime: malformed packet")

// Packet is one decoded text frame.
type Packet struct {
	EIO       byte
	SIO       byte // zero unless EIO is a message
	Namespace string
	AckID     int // -1 when absent
	Data      json.RawMessage
}

// ParsePacket decodes a text frame such as `2`, `0{...}` or `42["new_sos",{...}]`.
func ParsePacket(s string) (Packet, error) {
	p := Packet{AckID: -1}
	if s == "" {
		return p, fmt.Errorf("%w: empty frame", ErrBadPacket)
	}
	p.EIO = s[0]
	rest := s[1:]
	switch p.EIO {
	case eioOpen, eioClose, eioPing, eioPong, eioUpgrade, eioNoop:
		if rest != "" {
			p.Data = json.RawMessage(rest)
		}
		return p, nil
	case eioMessage:
	default:
		return p, fmt.Errorf("%w: engine type %q", ErrBadPacket, p.EIO)
	}

	if rest == "" {
		return p, fmt.Errorf("%w: message without socket type", ErrBadPacket)
	}
	p.SIO = rest[0]
	if p.SIO < sioConnect || p.SIO > '6' {
		return p, fmt.Errorf("%w: socket type %q", ErrBadPacket, p.SIO)
	}
	rest = rest[1:]

	if strings.HasPrefix(rest, "/") {
		i := strings.IndexByte(rest, ',')
		if i < 0 {
			p.Namespace, rest = rest, ""
		} else {
			p.Namespace, rest = rest[:i], rest[i+1:]
		}
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.Atoi(rest[:i])
		if err != nil {
			return p, fmt.Errorf("%w: ack id: %v", ErrBadPacket, err)
		}
		p.AckID = id
		rest = rest[i:]
	}
	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return p, fmt.Errorf("%w: invalid json body", ErrBadPacket)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// Encode renders the packet as a text frame.
func (p Packet) Encode() string {
	var b strings.Builder
	b.WriteByte(p.EIO)
	if p.EIO == eioMessage {
		b.WriteByte(p.SIO)
		if p.Namespace != "" && p.Namespace != "/" {
			b.WriteString(p.Namespace)
			b.WriteByte(',')
		}
		if p.AckID >= 0 {
			b.WriteString(strconv.Itoa(p.AckID))
		}
	}
	b.Write(p.Data)
	return b.String()
}

// EventPacket builds a `42["name",payload]` frame.
func EventPacket(name string, payload json.RawMessage) (Packet, error) {
	args := []json.RawMessage{nil, payload}
	rawName, err := json.Marshal(name)
	if err != nil {
		return Packet{}, err
	}
	args[0] = rawName
	if len(payload) == 0 {
		args = args[:1]
	}
	data, err := json.Marshal(args)
	if err != nil {
		return Packet{}, err
	}
	return Packet{EIO: eioMessage, SIO: sioEvent, AckID: -1, Data: data}, nil
}

// EventArgs splits an event body into its name and first argument.
func (p Packet) EventArgs() (string, json.RawMessage, error) {
	if p.EIO != eioMessage || p.SIO != sioEvent {
		return "", nil, fmt.Errorf("%w: not an event", ErrBadPacket)
	}
	var args []json.RawMessage
	if err := json.Unmarshal(p.Data, &args); err != nil || len(args) == 0 {
		return "", nil, fmt.Errorf("%w: event body must be a non-empty array", ErrBadPacket)
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", ErrBadPacket, err)
	}
	if len(args) < 2 {
		return name, nil, nil
	}
	return name, args[1], nil
}

// handshake is the Engine.IO open payload.
type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// deadline is how long the client waits for a server ping before giving up.
func (h handshake) deadline() time.Duration {
	interval := time.Duration(h.PingInterval) * time.Millisecond
	timeout := time.Duration(h.PingTimeout) * time.Millisecond
	if interval <= 0 {
		interval = 25 * time.Second
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return interval + timeout
}

type connectBody struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
}
