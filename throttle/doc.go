// Package throttle caps how fast and how many jobs of each type the local
// worker pool runs.
//
// Use [Config] to set per-type rate limits and concurrency caps:
//
//	throttle.Config{
//	    JobType:        "chat-completion",
//	    MaxConcurrency: 5,  // max 5 completions in flight on this process
//	    RateLimit:      20, // max 20 completions/s dequeued
//	    RateBurst:      40,
//	}
//
// [Manager] is consulted by the worker loop before each claim: [Manager.Reserve]
// returns the types that still have a free slot and a rate token, the
// worker claims only among those, and [Manager.Release] hands back the
// slots it did not use. Types without a Config are unlimited beyond the
// pool-wide concurrency. Token buckets come from golang.org/x/time/rate.
package throttle
