// Package resilience provides the circuit breaker pipefy uses to stop
// reconnecting a stage that keeps failing.
//
// A pipeline in reconnect mode retries forever by default. With a breaker,
// every stage error is recorded as a failure and every item the stage
// processes cleanly as a success; once MaxFailures consecutive failures
// accumulate the breaker opens and the next reconnect is refused.
//
//	cb := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("transform1"))
//	cb.RecordFailure()
//	if !cb.Allow() {
//	    // give up on the connection
//	}
package resilience
