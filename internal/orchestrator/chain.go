package orchestrator

import "context"

// ChainOnSuccess wraps a Handler so that, once it completes without error,
// build is called to derive the next job (e.g. a risk-assessment job
// carrying the same DiscoveryRunID) which is then enqueued onto next. If
// build returns nil no follow-on job is enqueued. Enqueue failures are
// logged on next's logger rather than failing the original job, since a
// discovery run having already completed should not be retried just
// because its downstream risk-assessment enqueue hiccuped.
func ChainOnSuccess(next *Queue, build func(completed *Job) *Job) func(Handler) Handler {
	return func(h Handler) Handler {
		return func(ctx context.Context, job *Job) error {
			if err := h(ctx, job); err != nil {
				return err
			}
			followOn := build(job)
			if followOn == nil {
				return nil
			}
			if err := next.Enqueue(context.Background(), followOn); err != nil {
				next.logger.Printf("chain: failed to enqueue follow-on job for %s: %v", job.ID, err)
			}
			return nil
		}
	}
}

// Coordinator wires the three named queues together per spec.md §4.3's
// pipeline: a completed discovery job enqueues one risk-assessment job
// carrying the ids of every automation it discovered, and a completed risk-assessment job
// enqueues a notification job when the computed risk crossed an alerting
// threshold. Handlers are supplied by the detection/risk/feedback
// packages; Coordinator only owns the chaining, not the business logic.
type Coordinator struct {
	Discovery      *Queue
	RiskAssessment *Queue
	Notifications  *Queue
}

// NewCoordinator wraps three already constructed queues; it creates no
// queues, backends or stores itself.
func NewCoordinator(discovery, risk, notifications *Queue) *Coordinator {
	return &Coordinator{Discovery: discovery, RiskAssessment: risk, Notifications: notifications}
}

// StartDiscovery launches the discovery queue's workers with discoveryHandler,
// chaining each completed job into one risk-assessment job whose
// "automationIds" payload lists the ids its payload reports under
// "discoveredAutomationIds" (populated
// by the detection engine's handler before returning).
func (c *Coordinator) StartDiscovery(discoveryHandler Handler) {
	chained := ChainOnSuccess(c.RiskAssessment, func(completed *Job) *Job {
		ids, _ := completed.Payload["discoveredAutomationIds"].([]string)
		if len(ids) == 0 {
			return nil
		}
		return &Job{
			ID:             RepeatableJobID(completed.OrganizationID, completed.ConnectionID) + "-risk",
			OrganizationID: completed.OrganizationID,
			ConnectionID:   completed.ConnectionID,
			DiscoveryRunID: completed.DiscoveryRunID,
			Priority:       completed.Priority,
			Payload:        map[string]any{"automationIds": ids},
		}
	})(discoveryHandler)
	c.Discovery.Start(chained)
}

// StartRiskAssessment launches the risk-assessment queue's workers with
// riskHandler, chaining into a notification job whenever the handler marks
// the job's payload "alertRequired" true.
func (c *Coordinator) StartRiskAssessment(riskHandler Handler) {
	chained := ChainOnSuccess(c.Notifications, func(completed *Job) *Job {
		alert, _ := completed.Payload["alertRequired"].(bool)
		if !alert {
			return nil
		}
		return &Job{
			OrganizationID: completed.OrganizationID,
			ConnectionID:   completed.ConnectionID,
			DiscoveryRunID: completed.DiscoveryRunID,
			Priority:       completed.Priority,
			Payload:        completed.Payload,
		}
	})(riskHandler)
	c.RiskAssessment.Start(chained)
}

// StartNotifications launches the notification queue's workers directly;
// it is the terminal stage, nothing chains off it.
func (c *Coordinator) StartNotifications(notifyHandler Handler) {
	c.Notifications.Start(notifyHandler)
}

// Shutdown stops all three queues' worker pools.
func (c *Coordinator) Shutdown() {
	c.Discovery.Shutdown()
	c.RiskAssessment.Shutdown()
	c.Notifications.Shutdown()
}
