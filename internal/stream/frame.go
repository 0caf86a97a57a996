// Package stream implements the tracking wire protocol: tolerant parsing of
// inbound frames, outbound event encoding, per-connection write pumps, and
// fan-out of accepted points to admin connections.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Frame kinds. Only KindLocation is acted on; every other kind is ignored.
const KindLocation = "loc"

// Frame parse errors.
var (
	// ErrBadFrame is returned when the inbound payload is not a JSON object.
	ErrBadFrame = errors.New("malformed frame")

	// ErrBadCoordinates is returned when a location frame is missing lat/lon
	// or carries values that cannot be parsed as numbers.
	ErrBadCoordinates = errors.New("invalid coordinates in location frame")
)

// Inbound is the normalized form of one client frame.
type Inbound struct {
	Kind string
	Lat  float64
	Lon  float64
}

// rawFrame mirrors the loose wire format. Older clients send the
// discriminator as "type", newer ones as "event"; both are accepted.
// Coordinates are kept raw because clients send them as numbers or as
// numeric strings.
type rawFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Lat   json.RawMessage `json:"lat"`
	Lon   json.RawMessage `json:"lon"`
}

// ParseInbound decodes one client frame. Frames with an unknown discriminator
// parse successfully with their kind set, so callers can skip them; location
// frames with missing or non-numeric coordinates fail with ErrBadCoordinates.
func ParseInbound(data []byte) (*Inbound, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	kind := raw.Type
	if kind == "" {
		kind = raw.Event
	}
	in := &Inbound{Kind: kind}
	if kind != KindLocation {
		return in, nil
	}

	lat, err := parseCoordinate(raw.Lat)
	if err != nil {
		return nil, fmt.Errorf("%w: lat: %v", ErrBadCoordinates, err)
	}
	lon, err := parseCoordinate(raw.Lon)
	if err != nil {
		return nil, fmt.Errorf("%w: lon: %v", ErrBadCoordinates, err)
	}
	in.Lat = lat
	in.Lon = lon
	return in, nil
}

// parseCoordinate accepts a JSON number or a numeric string.
func parseCoordinate(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing")
	}
	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}
