package ingress

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pthm-cable/slimehive/config"
)

// ErrUnknownCommand is returned for a control subject nobody handles.
var ErrUnknownCommand = errors.New("unknown control command")

// CommandKind identifies a control command.
type CommandKind uint8

const (
	CommandSetMode CommandKind = iota
	CommandSetSwarmCount
	CommandReset
	CommandSetLive
)

func (k CommandKind) String() string {
	switch k {
	case CommandSetMode:
		return "set_mode"
	case CommandSetSwarmCount:
		return "set_virtual_swarm_count"
	case CommandReset:
		return "reset"
	case CommandSetLive:
		return "set_live_config"
	}
	return fmt.Sprintf("command(%d)", uint8(k))
}

// Command is a state change requested from outside the tick loop.
// Only the field matching Kind is meaningful.
type Command struct {
	Kind  CommandKind
	Mode  string
	Count int
	Live  config.Live
}

// SetMode requests a new behavior mode, e.g. "FORAGE,AVOID".
func SetMode(mode string) Command { return Command{Kind: CommandSetMode, Mode: mode} }

// SetSwarmCount requests n virtual agents.
func SetSwarmCount(n int) Command { return Command{Kind: CommandSetSwarmCount, Count: n} }

// Reset requests archiving and clearing the hive.
func Reset() Command { return Command{Kind: CommandReset} }

// SetLive requests new live tunables.
func SetLive(l config.Live) Command { return Command{Kind: CommandSetLive, Live: l} }

// Subjects names the control subjects.
type Subjects struct {
	Mode  string
	Swarm string
	Reset string
}

// SubjectsFrom reads the control subjects from transport config.
func SubjectsFrom(cfg config.TransportConfig) Subjects {
	return Subjects{Mode: cfg.ModeSubject, Swarm: cfg.SwarmSubject, Reset: cfg.ResetSubject}
}

// Parse turns a control message into a Command.
func (s Subjects) Parse(subject string, payload []byte) (Command, error) {
	body := strings.TrimSpace(string(payload))
	switch subject {
	case s.Mode:
		if body == "" {
			return Command{}, fmt.Errorf("%w: empty mode", ErrMalformed)
		}
		return SetMode(strings.ToUpper(body)), nil
	case s.Swarm:
		n, err := strconv.Atoi(body)
		if err != nil {
			return Command{}, fmt.Errorf("%w: swarm count %q: %v", ErrMalformed, body, err)
		}
		if n < 0 {
			return Command{}, fmt.Errorf("%w: negative swarm count %d", ErrMalformed, n)
		}
		return SetSwarmCount(n), nil
	case s.Reset:
		return Reset(), nil
	}
	return Command{}, fmt.Errorf("%w: subject %q", ErrUnknownCommand, subject)
}
