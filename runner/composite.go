package runner

import (
	"context"
	"fmt"

	"github.com/yawlgo/engine/net"
	"github.com/yawlgo/engine/workitem"
)

// scheduleCompositeLaunch queues the launch of t's child sub-net case.
// It must be called while the parent case's lock is held (from fire()),
// but the launch itself runs only after that lock is released
// (drainPending), so the child never starts executing while its parent
// is still locked.
func (r *Runner) scheduleCompositeLaunch(c *Case, t *net.Task, it *workitem.Item) {
	parentCaseID, netID, parentItemID, data := c.ID, t.SubNet, it.ID, c.Data
	r.enqueue(func(ctx context.Context) {
		childID := fmt.Sprintf("%s/%s", parentCaseID, parentItemID)
		if _, err := r.launch(ctx, childID, netID, data, parentCaseID, parentItemID); err != nil {
			// The parent work item stays Enabled; a caller inspecting the
			// case will see it never progressed and can retry or cancel.
			return
		}
	})
}
