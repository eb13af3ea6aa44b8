package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/hsprobe/internal/core"
)

func TestParseConsole(t *testing.T) {
	tests := []struct {
		msg  string
		want ConsoleRequest
	}{
		{"mid: 7 -r 10", ConsoleRequest{MID: 7, Cmd: CmdRatio, Value: "10"}},
		{"mid: 1 -m 0x19999999", ConsoleRequest{MID: 1, Cmd: CmdRangeMin, Value: "0x19999999"}},
		{"mid: 2 -M  4294967295 ", ConsoleRequest{MID: 2, Cmd: CmdRangeMax, Value: "4294967295"}},
		{"mid: 3 -f udp and port 53", ConsoleRequest{MID: 3, Cmd: CmdFilter, Value: "udp and port 53"}},
		{"mid: 4 -t ts_ttl_proto", ConsoleRequest{MID: 4, Cmd: CmdTemplate, Value: "ts_ttl_proto"}},
		{"mid: 5 -h", ConsoleRequest{MID: 5, Cmd: CmdHelp}},
		{"mid: 6 -I 1.5", ConsoleRequest{MID: 6, Cmd: CmdPacketIDPeriod, Value: "1.5"}},
		{"mid:9 -x", ConsoleRequest{MID: 9, Cmd: 'x'}},
		{"mid: 10", ConsoleRequest{MID: 10, Cmd: CmdHelpAlt}},
		{"  mid: 11 -K 30\n", ConsoleRequest{MID: 11, Cmd: CmdStatsPeriod, Value: "30"}},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got, err := ParseConsole(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseConsoleMalformed(t *testing.T) {
	for _, msg := range []string{"", "-r 10", "mid -r 10", "mid: x -r 10", "mid: -1 -r 10", "mid: 99999999999 -r 1"} {
		_, err := ParseConsole(msg)
		assert.True(t, errors.Is(err, core.ErrConfigInvalid), "message %q", msg)
	}
}

func TestFormatConsoleRoundTrip(t *testing.T) {
	for _, req := range []ConsoleRequest{
		{MID: 1, Cmd: CmdRatio, Value: "12.5"},
		{MID: 2, Cmd: CmdHelp},
		{MID: 3, Cmd: CmdFilter, Value: "tcp port 80"},
	} {
		got, err := ParseConsole(req.String())
		require.NoError(t, err)
		assert.Equal(t, req, got)
	}
}

func TestConsoleRequestKnown(t *testing.T) {
	for _, c := range []byte("h?rmMftIJK") {
		assert.True(t, ConsoleRequest{Cmd: c}.Known(), string(c))
	}
	assert.False(t, ConsoleRequest{Cmd: 'x'}.Known())
	assert.False(t, ConsoleRequest{Cmd: 'R'}.Known())
}

func TestParseSeconds(t *testing.T) {
	s, err := ParseSeconds(" 2.5 ")
	require.NoError(t, err)
	assert.Equal(t, 2.5, s)

	s, err = ParseSeconds("0")
	require.NoError(t, err)
	assert.Zero(t, s)

	for _, bad := range []string{"", "abc", "-1", "NaN", "+Inf"} {
		_, err := ParseSeconds(bad)
		assert.ErrorIs(t, err, core.ErrConfigInvalid, bad)
	}
}

func TestHelpTextListsCommands(t *testing.T) {
	for _, c := range []string{"-h", "-?", "-m", "-M", "-r", "-f", "-t", "-I", "-J", "-K"} {
		assert.Contains(t, HelpText, "INFO: "+c+" ")
	}
}
