package workflows

import (
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/workflow"
)

// cancelState tracks an in-flight cancel request. Temporal workflows are
// cooperatively scheduled, so a plain flag checked between activities is
// safe; the run finishes its current stage before stopping.
type cancelState struct {
	requested bool
	reason    string
}

func (c *cancelState) listen(ctx workflow.Context, logger log.Logger) {
	ch := workflow.GetSignalChannel(ctx, SignalCancel)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		var req CancelRequest
		ch.Receive(gCtx, &req)
		c.requested = true
		c.reason = req.Reason
		if c.reason == "" {
			c.reason = "cancelled by operator"
		}
		logger.Info("Cancel signal received", "reason", c.reason, "requested_by", req.RequestedBy)
	})
}
