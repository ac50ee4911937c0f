package audithook

// Audit event actions. Each one corresponds to an ext hook.
const (
	ActionJobEnqueued     = "job.enqueued"
	ActionJobStarted      = "job.started"
	ActionJobCompleted    = "job.completed"
	ActionJobRetrying     = "job.retrying"
	ActionJobDeadLettered = "job.dead_lettered"
	ActionLeaseExpired    = "job.lease_expired"
	ActionQuotaDenied     = "quota.denied"
	ActionQuotaDegraded   = "quota.degraded"
	ActionShutdown        = "queue.shutdown"
)

// Categories.
const (
	CategoryJob   = "soulbond.job"
	CategoryQuota = "soulbond.quota"
	CategoryQueue = "soulbond.queue"
)

// Resource types.
const (
	ResourceJob   = "job"
	ResourceUser  = "user"
	ResourceQueue = "queue"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobStarted,
		ActionJobCompleted,
		ActionJobRetrying,
		ActionJobDeadLettered,
		ActionLeaseExpired,
		ActionQuotaDenied,
		ActionQuotaDegraded,
		ActionShutdown,
	}
}

// DefaultActions are the actions recorded when WithActions is not used.
func DefaultActions() []string {
	return []string{
		ActionJobRetrying,
		ActionJobDeadLettered,
		ActionLeaseExpired,
		ActionQuotaDenied,
		ActionQuotaDegraded,
		ActionShutdown,
	}
}
