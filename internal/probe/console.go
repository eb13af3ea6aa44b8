package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"firestige.xyz/hsprobe/internal/command"
	"firestige.xyz/hsprobe/internal/log"
	"firestige.xyz/hsprobe/internal/metrics"
	"firestige.xyz/hsprobe/internal/sampling"
	"firestige.xyz/hsprobe/internal/template"
)

type consoleCall struct {
	req   command.ConsoleRequest
	reply chan string
}

// consoleHandler updates the settings for one command and returns the reply text.
type consoleHandler func(e *Engine, value string) string

var consoleHandlers = map[byte]consoleHandler{
	command.CmdHelp:           (*Engine).consoleHelp,
	command.CmdHelpAlt:        (*Engine).consoleHelp,
	command.CmdRatio:          (*Engine).consoleRatio,
	command.CmdRangeMin:       (*Engine).consoleRangeMin,
	command.CmdRangeMax:       (*Engine).consoleRangeMax,
	command.CmdFilter:         (*Engine).consoleFilter,
	command.CmdTemplate:       (*Engine).consoleTemplate,
	command.CmdPacketIDPeriod: intervalHandler(taskPacketID, "packet id export"),
	command.CmdIfStatsPeriod:  intervalHandler(taskInterfaceStats, "interface stats export"),
	command.CmdStatsPeriod:    intervalHandler(taskProbeStats, "probe stats export"),
}

// Exec runs a console request on the event loop. The reply is also exported as a
// SYNC record on every device.
func (e *Engine) Exec(ctx context.Context, req command.ConsoleRequest) (string, error) {
	if !e.running.Load() {
		return "", ErrNotRunning
	}
	call := consoleCall{req: req, reply: make(chan string, 1)}
	select {
	case e.console <- call:
	case <-e.done:
		return "", ErrNotRunning
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case reply := <-call.reply:
		return reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// execConsole runs on the loop goroutine.
func (e *Engine) execConsole(req command.ConsoleRequest) string {
	metrics.ConsoleCommandsTotal.WithLabelValues(string(req.Cmd)).Inc()

	reply := command.ReplyUnknown
	if h, ok := consoleHandlers[req.Cmd]; ok {
		reply = h(e, req.Value)
	}
	e.applyConsoleChanges()

	log.GetLogger().WithFields(map[string]interface{}{
		"mid":   req.MID,
		"cmd":   string(req.Cmd),
		"reply": strings.TrimSpace(reply),
	}).Debug("console reply")

	e.exportSync(req.MID, reply)
	return reply
}

func (e *Engine) applyConsoleChanges() {
	if e.intervalsDirty {
		e.intervalsDirty = false
		e.resetTickers()
	}
	metrics.SamplingRatio.Set(e.settings.Range.Ratio())
}

func (e *Engine) consoleHelp(string) string {
	return command.HelpText
}

func (e *Engine) consoleRatio(value string) string {
	p, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Sprintf("ERROR: invalid sampling ratio: %s", value)
	}
	r, err := sampling.FromRatio(p)
	if err != nil {
		return fmt.Sprintf("ERROR: invalid sampling ratio: %s", value)
	}
	e.settings.Range = r
	return fmt.Sprintf("INFO: new sampling ratio set: %s", value)
}

func (e *Engine) consoleRangeMin(value string) string {
	v, err := sampling.ParseBound(value)
	if err != nil {
		return fmt.Sprintf("ERROR: invalid minimum selection range: %s", value)
	}
	e.settings.Range.Min = v
	return fmt.Sprintf("INFO: minimum selection range set: %d", v)
}

func (e *Engine) consoleRangeMax(value string) string {
	v, err := sampling.ParseBound(value)
	if err != nil {
		return fmt.Sprintf("ERROR: invalid maximum selection range: %s", value)
	}
	e.settings.Range.Max = v
	return fmt.Sprintf("INFO: maximum selection range set: %d", v)
}

// consoleFilter installs value on every source. When any source rejects it, the
// previous expression is put back on all of them.
func (e *Engine) consoleFilter(value string) string {
	prev := e.settings.Filter
	e.settings.Filter = value
	errs := e.applyFilter()
	if len(errs) == 0 {
		return fmt.Sprintf("INFO: new filter expression set: %s", value)
	}

	e.settings.Filter = prev
	if rerrs := e.applyFilter(); len(rerrs) > 0 {
		log.GetLogger().WithError(errors.Join(rerrs...)).WithField("filter", prev).Error("previous filter not restored")
	}
	return fmt.Sprintf("ERROR: filter not applied: %v", errors.Join(errs...))
}

func (e *Engine) consoleTemplate(value string) string {
	desc, err := template.ParsePacket(value)
	if err != nil {
		return fmt.Sprintf("ERROR: unknown template: %s", value)
	}
	e.settings.Template = desc
	return fmt.Sprintf("INFO: new template set: %s", value)
}

func intervalHandler(task int, what string) consoleHandler {
	return func(e *Engine, value string) string {
		secs, err := command.ParseSeconds(value)
		if err != nil || secs > math.MaxInt64/float64(time.Second) {
			return fmt.Sprintf("ERROR: invalid %s interval: %s", what, value)
		}
		period := time.Duration(secs * float64(time.Second))
		switch task {
		case taskPacketID:
			e.settings.PacketIDInterval = period
		case taskInterfaceStats:
			e.settings.InterfaceStatsInterval = period
		case taskProbeStats:
			e.settings.ProbeStatsInterval = period
		}
		e.intervalsDirty = true
		return fmt.Sprintf("INFO: new %s interval set: %gs", what, secs)
	}
}
