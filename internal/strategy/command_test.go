package strategy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	errs "nifty-strangler/internal/errors"
	"nifty-strangler/internal/models"
)

func TestParseCommand(t *testing.T) {
	for c, name := range commandNames {
		got, err := ParseCommand(name)
		if err != nil || got != c {
			t.Errorf("ParseCommand(%q) = %v, %v; want %v", name, got, err, c)
		}
	}
	if _, err := ParseCommand("liquidate"); !errors.Is(err, errs.ErrUnknownCommand) {
		t.Errorf("ParseCommand(liquidate) error = %v, want ErrUnknownCommand", err)
	}
}

func TestDispatch(t *testing.T) {
	f := newFixture(t, ist(2024, 6, 3, 10, 0), nil)
	ctx := context.Background()

	resp, err := f.engine.Dispatch(ctx, Request{Command: CmdPause})
	if err != nil || !resp.OK || f.engine.Mode() != ModePaused {
		t.Fatalf("pause: resp=%+v err=%v mode=%s", resp, err, f.engine.Mode())
	}

	resp, _ = f.engine.Dispatch(ctx, Request{Command: CmdEnter})
	if resp.OK {
		t.Error("enter accepted while paused")
	}

	f.engine.Dispatch(ctx, Request{Command: CmdResume})
	resp, err = f.engine.Dispatch(ctx, Request{Command: CmdEnter})
	if err != nil || !resp.OK || resp.TradeID == 0 {
		t.Fatalf("enter: resp=%+v err=%v", resp, err)
	}
	id := resp.TradeID

	resp, _ = f.engine.Dispatch(ctx, Request{Command: CmdStatus})
	if resp.Status == nil || len(resp.Status.Open) != 1 || resp.Status.Mode != "RUNNING" {
		t.Errorf("status = %+v", resp.Status)
	}

	resp, _ = f.engine.Dispatch(ctx, Request{Command: CmdCloseTrade, TradeID: 404})
	if resp.OK {
		t.Error("closing an unknown trade reported OK")
	}

	resp, err = f.engine.Dispatch(ctx, Request{Command: CmdCloseTrade, TradeID: id})
	if err != nil || !resp.OK {
		t.Fatalf("close: resp=%+v err=%v", resp, err)
	}
	if rec := f.store.trade(id); rec.CloseReason != models.ReasonManualClose {
		t.Errorf("CloseReason = %s, want MANUAL_CLOSE", rec.CloseReason)
	}

	resp, err = f.engine.Dispatch(ctx, Request{Command: CmdEODReport})
	if err != nil || resp.Summary == nil || resp.Summary.TotalTrades != 1 {
		t.Errorf("eod: resp=%+v err=%v", resp, err)
	}

	if _, err := f.engine.Dispatch(ctx, Request{Command: Command(99)}); !errors.Is(err, errs.ErrUnknownCommand) {
		t.Errorf("Dispatch(99) error = %v, want ErrUnknownCommand", err)
	}
}

func TestDispatchMonitorSwallowsOverlap(t *testing.T) {
	f := newFixture(t, ist(2024, 6, 3, 10, 0), nil)
	f.engine.ticking.Store(true)

	resp, err := f.engine.Dispatch(context.Background(), Request{Command: CmdMonitor})
	if err != nil {
		t.Fatalf("Dispatch(monitor) error = %v", err)
	}
	if resp.OK {
		t.Error("overlapping monitor reported OK")
	}
}

func TestProperty_UntestedLegIsFarthest(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("untested leg is the short strike farthest from spot", prop.ForAll(
		func(ceOff, peOff int, spot float64) bool {
			ce := models.NewLeg("CE", 22000+ceOff*50, models.OptionCall, models.OrderSideSell, 50, 65, models.Greeks{}, false, time.Time{})
			pe := models.NewLeg("PE", 22000-peOff*50, models.OptionPut, models.OrderSideSell, 50, 65, models.Greeks{}, false, time.Time{})
			hedge := models.NewLeg("H", 30000, models.OptionCall, models.OrderSideBuy, 5, 65, models.Greeks{}, true, time.Time{})
			s := &models.Structure{Legs: []*models.Leg{ce, pe, hedge}}

			got := untestedLeg(s, spot)
			dce := math.Abs(float64(ce.Strike) - spot)
			dpe := math.Abs(float64(pe.Strike) - spot)
			if dce >= dpe {
				return got == ce
			}
			return got == pe
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 20),
		gen.Float64Range(21000, 23000),
	))

	properties.TestingRun(t)
}
