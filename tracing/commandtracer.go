package tracing

import (
	"github.com/nxsim/nxsim/clock"
	"github.com/nxsim/nxsim/gpfifo"
	"github.com/nxsim/nxsim/hooking"
)

// CollectCommandTrace attaches a hook to the command pusher that reports one
// task to the tracer per dispatched command list.
func CollectCommandTrace(pusher *gpfifo.Pusher, tracer Tracer) {
	pusher.AcceptHook(&commandHook{tracer: tracer})
}

// commandHook translates pusher dispatch hooks into tasks. Dispatches do not
// overlap, so a single pending ID is enough.
type commandHook struct {
	tracer    Tracer
	pendingID string
}

func (h *commandHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case gpfifo.HookPosDispatchStart:
		h.pendingID = clock.GetIDGenerator().Generate()
		h.tracer.StartTask(Task{
			ID:       h.pendingID,
			Kind:     "command_list",
			What:     "dispatch",
			Location: ctx.Domain.(hooking.Named).Name(),
			Detail:   ctx.Item,
		})
	case gpfifo.HookPosDispatchEnd:
		h.tracer.EndTask(Task{ID: h.pendingID})
		h.pendingID = ""
	}
}
