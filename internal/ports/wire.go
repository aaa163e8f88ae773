// Package ports carries bridge messages over byte streams and websockets.
//
// Each frame is one JSON object: {"port": "...", "value": "...", "id": "..."}.
// On a stream, frames are separated by newlines.
package ports

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sammcj/yaml-bridge/internal/bridge"
)

// ErrMissingPort is returned for frames without a port name
var ErrMissingPort = errors.New("missing port")

// Decode parses one frame. The value may be a string or null; any other JSON
// type is rejected.
func Decode(frame []byte) (bridge.Message, error) {
	var raw struct {
		Port  string          `json:"port"`
		Value json.RawMessage `json:"value"`
		ID    string          `json:"id"`
	}
	if err := json.Unmarshal(frame, &raw); err != nil {
		return bridge.Message{}, err
	}
	if strings.TrimSpace(raw.Port) == "" {
		return bridge.Message{}, ErrMissingPort
	}

	msg := bridge.Message{Port: raw.Port, ID: raw.ID}
	if len(raw.Value) == 0 || bytes.Equal(raw.Value, []byte("null")) {
		return msg, nil
	}
	var value string
	if err := json.Unmarshal(raw.Value, &value); err != nil {
		return bridge.Message{}, fmt.Errorf("value must be a string or null")
	}
	msg.Value = &value
	return msg, nil
}

// Encode renders msg as a single-line frame without a trailing newline.
func Encode(msg bridge.Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// InvalidFrame is the reply sent for a frame that could not be decoded.
func InvalidFrame(err error) bridge.Message {
	return bridge.Text(bridge.PortOnError, "Invalid port message: "+err.Error())
}

// OriginAllowed reports whether a websocket handshake from origin is accepted.
// Loopback origins are always allowed, "*" in allowed admits everything, and
// other entries must match scheme and host exactly. A missing Origin header
// comes from a non-browser client and is accepted.
func OriginAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}

	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return u.Scheme == "http" || u.Scheme == "https"
	}

	for _, a := range allowed {
		if a == "*" {
			return true
		}
		if strings.EqualFold(strings.TrimSuffix(a, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}
