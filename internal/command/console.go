package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"firestige.xyz/hsprobe/internal/core"
)

// Console command letters.
const (
	CmdHelp           byte = 'h'
	CmdHelpAlt        byte = '?'
	CmdRatio          byte = 'r'
	CmdRangeMin       byte = 'm'
	CmdRangeMax       byte = 'M'
	CmdFilter         byte = 'f'
	CmdTemplate       byte = 't'
	CmdPacketIDPeriod byte = 'I'
	CmdIfStatsPeriod  byte = 'J'
	CmdStatsPeriod    byte = 'K'
)

const consolePrefix = "mid:"

// ReplyUnknown is returned for command letters nobody handles.
const ReplyUnknown = "ERROR: unknown command"

// HelpText lists the console commands, one INFO line each.
const HelpText = "INFO: -h this help\n" +
	"INFO: -? this help\n" +
	"INFO: -m capturing selection range min (hex|int)\n" +
	"INFO: -M capturing selection range max (hex|int)\n" +
	"INFO: -r capturing ratio in %\n" +
	"INFO: -f bpf filter expression\n" +
	"INFO: -t template name\n" +
	"INFO: -I packet id export interval in s\n" +
	"INFO: -J interface stats export interval in s\n" +
	"INFO: -K probe stats export interval in s\n"

// ConsoleRequest is one parsed console message.
type ConsoleRequest struct {
	MID   uint32 `json:"mid"`
	Cmd   byte   `json:"cmd"`
	Value string `json:"value"`
}

func (r ConsoleRequest) String() string {
	return FormatConsole(r.MID, r.Cmd, r.Value)
}

// Known reports whether the command letter has a handler.
func (r ConsoleRequest) Known() bool {
	switch r.Cmd {
	case CmdHelp, CmdHelpAlt, CmdRatio, CmdRangeMin, CmdRangeMax, CmdFilter,
		CmdTemplate, CmdPacketIDPeriod, CmdIfStatsPeriod, CmdStatsPeriod:
		return true
	}
	return false
}

// ParseConsole parses "mid: <id> -<cmd> <value>".
// The command is the character after the first hyphen; a message without one
// yields the help command. Whitespace around the value is dropped.
func ParseConsole(msg string) (ConsoleRequest, error) {
	var req ConsoleRequest

	rest, ok := strings.CutPrefix(strings.TrimSpace(msg), consolePrefix)
	if !ok {
		return req, fmt.Errorf("console message %q lacks %q prefix: %w", msg, consolePrefix, core.ErrConfigInvalid)
	}
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)

	end := strings.IndexFunc(rest, unicode.IsSpace)
	if end < 0 {
		end = len(rest)
	}
	mid, err := strconv.ParseUint(rest[:end], 10, 32)
	if err != nil {
		return req, fmt.Errorf("console message id %q: %w", rest[:end], core.ErrConfigInvalid)
	}
	req.MID = uint32(mid)
	rest = rest[end:]

	hyphen := strings.IndexByte(rest, '-')
	if hyphen < 0 || hyphen+1 >= len(rest) {
		req.Cmd = CmdHelpAlt
		return req, nil
	}
	req.Cmd = rest[hyphen+1]
	req.Value = strings.TrimSpace(rest[hyphen+2:])
	return req, nil
}

// FormatConsole builds a console message.
func FormatConsole(mid uint32, cmd byte, value string) string {
	if value == "" {
		return fmt.Sprintf("%s %d -%c", consolePrefix, mid, cmd)
	}
	return fmt.Sprintf("%s %d -%c %s", consolePrefix, mid, cmd, value)
}

// ParseSeconds parses an interval value given in (fractional) seconds.
func ParseSeconds(value string) (float64, error) {
	s, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || !(s >= 0) || math.IsInf(s, 1) {
		return 0, fmt.Errorf("invalid interval %q: %w", value, core.ErrConfigInvalid)
	}
	return s, nil
}
