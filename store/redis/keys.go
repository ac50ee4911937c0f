package redis

// keyspace is the prefix every key of one store shares.
type keyspace string

const defaultPrefix keyspace = "soulbond:"

// ── Job keys ──

// job returns the Hash key of a job: soulbond:job:{id}
func (k keyspace) job(id string) string { return string(k) + "job:" + id }

// ready returns the Sorted Set of claimable jobs of one type, scored by
// NotBefore in unix milliseconds.
func (k keyspace) ready(jobType string) string { return string(k) + "ready:" + jobType }

// pendingSince returns the Sorted Set of never-claimed jobs of one type,
// scored by enqueue time. It backs the oldest-pending statistic.
func (k keyspace) pendingSince(jobType string) string {
	return string(k) + "pending_since:" + jobType
}

// inflight is the Sorted Set of leased jobs scored by lease expiry.
func (k keyspace) inflight() string { return string(k) + "inflight" }

// done is the Sorted Set of succeeded jobs scored by finish time.
func (k keyspace) done() string { return string(k) + "done" }

// jobs is the Set of every job ID.
func (k keyspace) jobs() string { return string(k) + "jobs" }

// types is the Set of every job type ever enqueued.
func (k keyspace) types() string { return string(k) + "types" }

// stats is the Hash of counters keyed "type|state".
func (k keyspace) stats() string { return string(k) + "stats" }

// ── DLQ keys ──

// dlq returns the Hash key of a DLQ entry: soulbond:dlq:{id}
func (k keyspace) dlq(id string) string { return string(k) + "dlq:" + id }

// dlqIDs is the Sorted Set of entry IDs scored by failure time.
func (k keyspace) dlqIDs() string { return string(k) + "dlq_ids" }

// ── Quota and entitlement keys ──

// quota returns the Hash holding one rate-limit counter: soulbond:rl:{key}
func (k keyspace) quota(key string) string { return string(k) + "rl:" + key }

// tiers is the Hash mapping user IDs to plan tiers.
func (k keyspace) tiers() string { return string(k) + "tiers" }
