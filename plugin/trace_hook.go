package plugin

import (
	"fmt"
	"io"

	"github.com/sarchlab/akita/v4/sim/hooking"

	"github.com/mithrilplus/memctl/mscache"
	"github.com/mithrilplus/memctl/signal"
	"github.com/mithrilplus/memctl/tracker"
)

// TraceHook prints one line per VRR, write-back and dirty-drain event, in
// the style of the commented-out fmt.Printf trace lines in
// github.com/sarchlab/akita/v4/mem/dram's memcontroller.go. It prints only
// where it is attached through a builder's WithHook; no builder has a debug
// option that attaches it.
type TraceHook struct {
	w io.Writer
}

// NewTraceHook creates a hook that writes trace lines to w.
func NewTraceHook(w io.Writer) *TraceHook {
	return &TraceHook{w: w}
}

// Func implements hooking.Hook.
func (h *TraceHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case HookPosEmit:
		req := ctx.Item.(signal.Request)
		fmt.Fprintf(h.w, "%s, emit, %s, bank %d, row %d, col %d\n",
			req.ID, req.Kind, req.Bank, req.Row, req.Col)
	case tracker.HookPosVRR:
		ev := ctx.Item.(tracker.VRREvent)
		fmt.Fprintf(h.w, "vrr, bank %d, row %d, diff %d\n", ev.Bank, ev.Row, ev.Diff)
	case mscache.HookPosDrain:
		ev := ctx.Item.(mscache.DrainEvent)
		fmt.Fprintf(h.w, "drain, bank %d, %d pairs\n", ev.Bank, len(ev.Batch))
	}
}
