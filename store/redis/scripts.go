package redis

import goredis "github.com/redis/go-redis/v9"

// Every script receives the key prefix as its last argument so it can
// address per-job keys it only learns at run time.

// enqueueScript stores a new pending job.
// KEYS: job hash. ARGV: id, type, not_before_ms, enqueued_ms, prefix, field/value pairs...
var enqueueScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
local p = ARGV[5]
for i = 6, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('SADD', p .. 'jobs', ARGV[1])
redis.call('SADD', p .. 'types', ARGV[2])
redis.call('ZADD', p .. 'ready:' .. ARGV[2], ARGV[3], ARGV[1])
redis.call('ZADD', p .. 'pending_since:' .. ARGV[2], ARGV[4], ARGV[1])
redis.call('HINCRBY', p .. 'stats', ARGV[2] .. '|pending', 1)
return 1
`)

// claimScript leases the due job with the lowest score across the ready
// sets in KEYS. Equal scores fall back to member order, which for
// time-ordered IDs is enqueue order.
// ARGV: now_ms, worker_id, token, lease_ms, lease_at, now_at, prefix.
var claimScript = goredis.NewScript(`
local best, bestScore, bestKey
for _, key in ipairs(KEYS) do
  local r = redis.call('ZRANGEBYSCORE', key, '-inf', ARGV[1], 'LIMIT', 0, 1, 'WITHSCORES')
  if #r > 0 then
    local sc = tonumber(r[2])
    if best == nil or sc < bestScore or (sc == bestScore and r[1] < best) then
      best, bestScore, bestKey = r[1], sc, key
    end
  end
end
if best == nil then
  return false
end
local p = ARGV[7]
local jk = p .. 'job:' .. best
local typ = redis.call('HGET', jk, 'type')
local old = redis.call('HGET', jk, 'state')
redis.call('ZREM', bestKey, best)
redis.call('ZREM', p .. 'pending_since:' .. typ, best)
redis.call('HINCRBY', jk, 'attempts', 1)
redis.call('HSET', jk, 'state', 'in_flight', 'worker_id', ARGV[2], 'lease_token', ARGV[3],
  'lease_expires_at', ARGV[5], 'started_at', ARGV[6], 'updated_at', ARGV[6])
redis.call('ZADD', p .. 'inflight', ARGV[4], best)
redis.call('HINCRBY', p .. 'stats', typ .. '|' .. old, -1)
redis.call('HINCRBY', p .. 'stats', typ .. '|in_flight', 1)
return best
`)

// extendScript moves the lease expiry of the token holder.
// KEYS: job hash, inflight. ARGV: id, token, lease_ms, lease_at.
// Returns 0 when the job is missing, -1 when the lease is lost.
var extendScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HGET', KEYS[1], 'state') ~= 'in_flight' or redis.call('HGET', KEYS[1], 'lease_token') ~= ARGV[2] then
  return -1
end
redis.call('HSET', KEYS[1], 'lease_expires_at', ARGV[4])
redis.call('ZADD', KEYS[2], 'XX', ARGV[3], ARGV[1])
return 1
`)

// resolveScript releases the lease and applies the outcome.
// KEYS: job hash. ARGV: id, token, state, not_before_ms, not_before_at,
// last_error, at, at_ms, prefix. Return codes as extendScript.
var resolveScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HGET', KEYS[1], 'state') ~= 'in_flight' or redis.call('HGET', KEYS[1], 'lease_token') ~= ARGV[2] then
  return -1
end
local p = ARGV[9]
local typ = redis.call('HGET', KEYS[1], 'type')
redis.call('ZREM', p .. 'inflight', ARGV[1])
redis.call('HDEL', KEYS[1], 'lease_token', 'lease_expires_at')
redis.call('HSET', KEYS[1], 'state', ARGV[3], 'updated_at', ARGV[7])
if ARGV[6] ~= '' then
  redis.call('HSET', KEYS[1], 'last_error', ARGV[6])
end
if ARGV[3] == 'failed' then
  redis.call('HSET', KEYS[1], 'not_before', ARGV[5])
  redis.call('ZADD', p .. 'ready:' .. typ, ARGV[4], ARGV[1])
else
  redis.call('HSET', KEYS[1], 'finished_at', ARGV[7])
  if ARGV[3] == 'succeeded' then
    redis.call('ZADD', p .. 'done', ARGV[8], ARGV[1])
  end
end
redis.call('HINCRBY', p .. 'stats', typ .. '|in_flight', -1)
redis.call('HINCRBY', p .. 'stats', typ .. '|' .. ARGV[3], 1)
return 1
`)

// statsScript reads the counters and the oldest pending job per type in
// one step. KEYS: stats, types. ARGV: prefix.
var statsScript = goredis.NewScript(`
local counts = redis.call('HGETALL', KEYS[1])
local oldest = {}
for _, t in ipairs(redis.call('SMEMBERS', KEYS[2])) do
  local r = redis.call('ZRANGE', ARGV[1] .. 'pending_since:' .. t, 0, 0, 'WITHSCORES')
  if #r > 0 then
    table.insert(oldest, t)
    table.insert(oldest, r[2])
  end
end
return {counts, oldest}
`)

// pruneScript deletes one batch of succeeded jobs finished before the
// cutoff. KEYS: done. ARGV: cutoff_ms, batch, prefix.
var pruneScript = goredis.NewScript(`
local p = ARGV[3]
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, jid in ipairs(ids) do
  local jk = p .. 'job:' .. jid
  local typ = redis.call('HGET', jk, 'type')
  redis.call('DEL', jk)
  redis.call('ZREM', KEYS[1], jid)
  redis.call('SREM', p .. 'jobs', jid)
  if typ then
    redis.call('HINCRBY', p .. 'stats', typ .. '|succeeded', -1)
  end
end
return #ids
`)

// markReplayedScript records a DLQ replay once.
// KEYS: dlq hash. ARGV: replay_job_id, at.
var markReplayedScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('HEXISTS', KEYS[1], 'replayed_at') == 1 then
  return -1
end
redis.call('HSET', KEYS[1], 'replayed_at', ARGV[2], 'replay_job_id', ARGV[1])
return 1
`)

// quotaScript resets the counter when the window changed and increments
// it only if the result stays within the limit.
// KEYS: counter hash. ARGV: window_start_ms, reset_ms, limit.
// Returns {used, allowed}.
var quotaScript = goredis.NewScript(`
local w = redis.call('HGET', KEYS[1], 'w')
local c = 0
if w == ARGV[1] then
  c = tonumber(redis.call('HGET', KEYS[1], 'c') or '0')
else
  redis.call('HSET', KEYS[1], 'w', ARGV[1], 'c', 0)
  redis.call('PEXPIREAT', KEYS[1], ARGV[2])
end
if c + 1 > tonumber(ARGV[3]) then
  return {c, 0}
end
c = redis.call('HINCRBY', KEYS[1], 'c', 1)
return {c, 1}
`)
