// Package breaker implements circuit breakers for the external
// dependencies the orchestration core calls: network fetch, the vector
// store, and AI completion.
//
// Each breaker is a Closed/Open/HalfOpen state machine guarding one named
// dependency. In Closed state calls pass through and consecutive failures
// are counted; reaching the failure threshold opens the breaker. While
// Open, every call fails immediately with an *OpenError (unwrapping to
// ErrOpen) and the dependency is never invoked. Once the recovery timeout
// elapses, the next call transitions the breaker to HalfOpen and runs as a
// trial: a single failure reopens the breaker, while enough consecutive
// successes close it again.
//
// Breakers are looked up by dependency name through a Registry and shared
// across workload categories, so every caller of "vector-store" observes
// the same health state regardless of which pool it runs in.
package breaker
