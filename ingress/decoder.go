// Package ingress decodes wire payloads into canonical hive events.
package ingress

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrFieldCount is returned for payloads with no known layout.
	ErrFieldCount = errors.New("unsupported field count")

	// ErrMalformed is returned when a field cannot be parsed.
	ErrMalformed = errors.New("malformed field")
)

// LegacyAgentID is assigned to deposits whose layout carries no agent id.
const LegacyAgentID = "LEGACY"

// DefaultRSSI is assumed for layouts without a signal reading.
const DefaultRSSI = -50

// Variant identifies a wire layout.
type Variant uint8

const (
	VariantLegacy3     Variant = iota + 3 // x,y,intensity
	VariantLegacy4                        // x,y,intensity,rssi
	VariantLegacy5                        // agent,x,y,intensity,rssi
	VariantWithAnchor6                    // anchor,agent,x,y,intensity,rssi
)

func (v Variant) String() string {
	switch v {
	case VariantLegacy3:
		return "legacy3"
	case VariantLegacy4:
		return "legacy4"
	case VariantLegacy5:
		return "legacy5"
	case VariantWithAnchor6:
		return "anchor6"
	}
	return fmt.Sprintf("variant(%d)", uint8(v))
}

// DepositEvent is the canonical form every layout normalizes to.
type DepositEvent struct {
	AnchorID  string // Empty when the layout has no anchor
	AgentID   string
	X, Y      int
	Intensity float64
	RSSI      int
}

// HasAnchor reports whether the event came through a named receiver.
func (e DepositEvent) HasAnchor() bool { return e.AnchorID != "" }

// Message is a decoded payload tagged with its layout.
type Message struct {
	Variant Variant
	event   DepositEvent
}

// Event returns the normalized deposit.
func (m Message) Event() DepositEvent { return m.event }

// Decoder parses comma-delimited deposits. The zero value uses DefaultRSSI.
type Decoder struct {
	DefaultRSSI int
}

// Decode parses a payload with the package defaults.
func Decode(payload []byte) (Message, error) {
	return Decoder{DefaultRSSI: DefaultRSSI}.Decode(payload)
}

// Decode selects the layout purely by field count and parses it.
func (d Decoder) Decode(payload []byte) (Message, error) {
	raw := strings.TrimSpace(string(payload))
	if raw == "" {
		return Message{}, fmt.Errorf("%w: empty payload", ErrFieldCount)
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	defRSSI := d.DefaultRSSI
	if defRSSI == 0 {
		defRSSI = DefaultRSSI
	}

	p := fieldParser{parts: parts}
	var m Message
	switch len(parts) {
	case 3:
		m.Variant = VariantLegacy3
		m.event = DepositEvent{
			AgentID:   LegacyAgentID,
			X:         p.integer(0, "x"),
			Y:         p.integer(1, "y"),
			Intensity: p.number(2, "intensity"),
			RSSI:      defRSSI,
		}
	case 4:
		m.Variant = VariantLegacy4
		m.event = DepositEvent{
			AgentID:   LegacyAgentID,
			X:         p.integer(0, "x"),
			Y:         p.integer(1, "y"),
			Intensity: p.number(2, "intensity"),
			RSSI:      p.integer(3, "rssi"),
		}
	case 5:
		m.Variant = VariantLegacy5
		m.event = DepositEvent{
			AgentID:   p.ident(0, "agent"),
			X:         p.integer(1, "x"),
			Y:         p.integer(2, "y"),
			Intensity: p.number(3, "intensity"),
			RSSI:      p.integer(4, "rssi"),
		}
	case 6:
		m.Variant = VariantWithAnchor6
		m.event = DepositEvent{
			AnchorID:  p.ident(0, "anchor"),
			AgentID:   p.ident(1, "agent"),
			X:         p.integer(2, "x"),
			Y:         p.integer(3, "y"),
			Intensity: p.number(4, "intensity"),
			RSSI:      p.integer(5, "rssi"),
		}
	default:
		return Message{}, fmt.Errorf("%w: %d fields in %q", ErrFieldCount, len(parts), raw)
	}

	if p.err != nil {
		return Message{}, p.err
	}
	return m, nil
}

// Encode renders an event in the richest layout it can fill:
// six fields with an anchor, five otherwise.
func Encode(e DepositEvent) []byte {
	intensity := strconv.FormatFloat(e.Intensity, 'f', -1, 64)
	if e.HasAnchor() {
		return fmt.Appendf(nil, "%s,%s,%d,%d,%s,%d", e.AnchorID, e.AgentID, e.X, e.Y, intensity, e.RSSI)
	}
	return fmt.Appendf(nil, "%s,%d,%d,%s,%d", e.AgentID, e.X, e.Y, intensity, e.RSSI)
}

// fieldParser keeps the first error so the layouts above read linearly.
type fieldParser struct {
	parts []string
	err   error
}

func (p *fieldParser) fail(i int, name string, cause error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: field %d (%s) %q: %v", ErrMalformed, i, name, p.parts[i], cause)
	}
}

func (p *fieldParser) ident(i int, name string) string {
	if p.parts[i] == "" {
		p.fail(i, name, errors.New("empty"))
	}
	return p.parts[i]
}

// integer accepts integral floats ("5.0") since some senders format every field as float.
// Values must fit in 32 bits.
func (p *fieldParser) integer(i int, name string) int {
	if n, err := strconv.ParseInt(p.parts[i], 10, 32); err == nil {
		return int(n)
	}
	f, err := strconv.ParseFloat(p.parts[i], 64)
	if err != nil {
		p.fail(i, name, err)
		return 0
	}
	if !(math.Abs(f) <= math.MaxInt32) {
		p.fail(i, name, errors.New("out of range"))
		return 0
	}
	if f != math.Trunc(f) {
		p.fail(i, name, errors.New("not an integer"))
		return 0
	}
	return int(f)
}

func (p *fieldParser) number(i int, name string) float64 {
	f, err := strconv.ParseFloat(p.parts[i], 64)
	if err != nil {
		p.fail(i, name, err)
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		p.fail(i, name, errors.New("not finite"))
		return 0
	}
	return f
}
