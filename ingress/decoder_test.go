package ingress

import (
	"errors"
	"testing"

	"github.com/pthm-cable/slimehive/config"
)

func TestDecodeLayouts(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		variant Variant
		want    DepositEvent
	}{
		{
			name:    "legacy3 assumes strong signal",
			payload: "12,34,5",
			variant: VariantLegacy3,
			want:    DepositEvent{AgentID: LegacyAgentID, X: 12, Y: 34, Intensity: 5, RSSI: -50},
		},
		{
			name:    "legacy4",
			payload: "12,34,5,-85",
			variant: VariantLegacy4,
			want:    DepositEvent{AgentID: LegacyAgentID, X: 12, Y: 34, Intensity: 5, RSSI: -85},
		},
		{
			name:    "legacy5",
			payload: "A1,5,5,50,-40",
			variant: VariantLegacy5,
			want:    DepositEvent{AgentID: "A1", X: 5, Y: 5, Intensity: 50, RSSI: -40},
		},
		{
			name:    "anchor6",
			payload: "QUEEN,P-7,20,30,2.5,-61",
			variant: VariantWithAnchor6,
			want:    DepositEvent{AnchorID: "QUEEN", AgentID: "P-7", X: 20, Y: 30, Intensity: 2.5, RSSI: -61},
		},
		{
			name:    "whitespace and float coordinates",
			payload: " A2 , 7.0 , 8 , 1 , -70 \n",
			variant: VariantLegacy5,
			want:    DepositEvent{AgentID: "A2", X: 7, Y: 8, Intensity: 1, RSSI: -70},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.payload))
			if err != nil {
				t.Fatalf("Decode(%q): %v", tt.payload, err)
			}
			if m.Variant != tt.variant {
				t.Errorf("variant mismatch: got %v, want %v", m.Variant, tt.variant)
			}
			if got := m.Event(); got != tt.want {
				t.Errorf("event mismatch: got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeLegacy5HasNoAnchor(t *testing.T) {
	m, err := Decode([]byte("A1,5,5,50,-40"))
	if err != nil {
		t.Fatal(err)
	}
	ev := m.Event()
	if ev.HasAnchor() {
		t.Errorf("legacy5 should carry no anchor, got %q", ev.AnchorID)
	}
	if ev.AgentID != "A1" || ev.X != 5 || ev.Y != 5 || ev.Intensity != 50 || ev.RSSI != -40 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestDecodeIntegralFloats(t *testing.T) {
	m, err := Decode([]byte("A1,5.0,-0.0,50,-40.0"))
	if err != nil {
		t.Fatal(err)
	}
	if ev := m.Event(); ev.X != 5 || ev.Y != 0 || ev.RSSI != -40 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestDecoderDefaultRSSI(t *testing.T) {
	m, err := Decoder{DefaultRSSI: -65}.Decode([]byte("1,2,3"))
	if err != nil {
		t.Fatal(err)
	}
	if m.Event().RSSI != -65 {
		t.Errorf("rssi mismatch: got %d, want -65", m.Event().RSSI)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"empty", "", ErrFieldCount},
		{"two fields", "1,2", ErrFieldCount},
		{"seven fields", "a,b,1,2,3,4,5", ErrFieldCount},
		{"bad x", "x,2,3", ErrMalformed},
		{"fractional coordinate", "A1,1.5,2,3,-40", ErrMalformed},
		{"bad rssi", "1,2,3,loud", ErrMalformed},
		{"nan intensity", "A1,1,2,NaN,-40", ErrMalformed},
		{"empty agent", ",1,2,3,-40", ErrMalformed},
		{"empty anchor", ",A1,1,2,3,-40", ErrMalformed},
		{"huge float coordinate", "A1,1e300,2,3,-40", ErrMalformed},
		{"huge integer coordinate", "A1,99999999999,2,3,-40", ErrMalformed},
		{"infinite rssi", "1,2,3,-Inf", ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode(%q) error = %v, want %v", tt.payload, err, tt.want)
			}
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	events := []DepositEvent{
		{AgentID: "S-001", X: 1, Y: 2, Intensity: 5, RSSI: -50},
		{AnchorID: "SENTINEL", AgentID: "P-3", X: 40, Y: 41, Intensity: 0.25, RSSI: -90},
	}
	for _, ev := range events {
		m, err := Decode(Encode(ev))
		if err != nil {
			t.Fatalf("Decode(Encode(%+v)): %v", ev, err)
		}
		if m.Event() != ev {
			t.Errorf("event mismatch: got %+v, want %+v", m.Event(), ev)
		}
	}
}

func TestParseCommand(t *testing.T) {
	subjects := SubjectsFrom(config.Default().Transport)

	tests := []struct {
		name    string
		subject string
		payload string
		want    Command
		wantErr error
	}{
		{"mode", "hive.control.mode", "forage,avoid", SetMode("FORAGE,AVOID"), nil},
		{"swarm", "hive.control.virtual_swarm", " 12 ", SetSwarmCount(12), nil},
		{"reset", "hive.control.reset", "", Reset(), nil},
		{"empty mode", "hive.control.mode", "  ", Command{}, ErrMalformed},
		{"bad count", "hive.control.virtual_swarm", "many", Command{}, ErrMalformed},
		{"negative count", "hive.control.virtual_swarm", "-1", Command{}, ErrMalformed},
		{"unknown subject", "hive.control.selfdestruct", "", Command{}, ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := subjects.Parse(tt.subject, []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("command mismatch: got %+v, want %+v", got, tt.want)
			}
		})
	}
}
