package strategy

import (
	"context"
	"fmt"
	"strings"

	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/models"
)

// Command is the closed set of operations the engine accepts from the
// scheduler and the CLI.
type Command int

const (
	CmdStart Command = iota + 1
	CmdPause
	CmdResume
	CmdStop
	CmdEnter
	CmdMonitor
	CmdForceClose
	CmdEODReport
	CmdResetDay
	CmdCloseTrade
	CmdStatus
)

var commandNames = map[Command]string{
	CmdStart:      "start",
	CmdPause:      "pause",
	CmdResume:     "resume",
	CmdStop:       "stop",
	CmdEnter:      "enter",
	CmdMonitor:    "monitor",
	CmdForceClose: "force-close",
	CmdEODReport:  "eod-report",
	CmdResetDay:   "reset-day",
	CmdCloseTrade: "close-trade",
	CmdStatus:     "status",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// ParseCommand maps a command name back to its Command.
func ParseCommand(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range commandNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", errs.ErrUnknownCommand, s)
}

// Request is one command with its arguments.
type Request struct {
	Command  Command
	TradeID  int64               // CmdCloseTrade
	Reason   string              // CmdCloseTrade, defaults to MANUAL_CLOSE
	Strategy models.StrategyType // CmdEnter, defaults to GAMMA_STRANGLE
}

// Response carries whatever the command produced.
type Response struct {
	Command Command
	OK      bool
	Message string
	TradeID int64
	PnL     float64
	Summary *models.DailySummary
	Status  *Status
}

// Dispatch runs one command. It is the single entry point used by the
// scheduler and the CLI.
func (e *Engine) Dispatch(ctx context.Context, req Request) (Response, error) {
	resp := Response{Command: req.Command, OK: true}

	switch req.Command {
	case CmdStart:
		e.Start()
	case CmdPause:
		e.Pause()
	case CmdResume:
		e.Resume()
	case CmdStop:
		resp.PnL = e.Stop(ctx)
	case CmdEnter:
		strategy := req.Strategy
		if strategy == "" {
			strategy = models.StrategyGammaStrangle
		}
		if ok, reason := e.CheckEntry(ctx); !ok {
			resp.OK = false
			resp.Message = reason
			return resp, nil
		}
		resp.TradeID, resp.OK = e.OpenPosition(ctx, strategy)
		if !resp.OK {
			resp.Message = "entry refused"
		}
	case CmdMonitor:
		if err := e.Tick(ctx); err != nil {
			resp.OK = false
			resp.Message = err.Error()
			if errs.Is(err, errs.ErrTickInProgress) {
				return resp, nil
			}
			return resp, err
		}
	case CmdForceClose:
		resp.PnL = e.CloseAll(ctx, models.ReasonForceClose)
	case CmdEODReport:
		summary, err := e.EODSummary(ctx, e.now())
		if err != nil {
			resp.OK = false
			return resp, err
		}
		resp.Summary = &summary
	case CmdResetDay:
		e.ResetDay(ctx)
	case CmdCloseTrade:
		reason := req.Reason
		if reason == "" {
			reason = models.ReasonManualClose
		}
		resp.TradeID = req.TradeID
		if _, ok := e.Structure(req.TradeID); !ok {
			resp.OK = false
			resp.Message = fmt.Sprintf("trade %d is not open", req.TradeID)
			return resp, nil
		}
		resp.PnL = e.ClosePosition(ctx, req.TradeID, reason)
	case CmdStatus:
		st := e.Status()
		resp.Status = &st
	default:
		return Response{Command: req.Command}, fmt.Errorf("%w: %s", errs.ErrUnknownCommand, req.Command)
	}

	e.logger.Debug().
		Str("command", req.Command.String()).
		Bool("ok", resp.OK).
		Str("message", resp.Message).
		Msg("Command dispatched")
	return resp, nil
}
