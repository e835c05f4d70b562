package evalctx

import "log"

// logTrace prints one connection-lifecycle event. Kept as a tiny function
// (rather than inlined log.Printf calls) so traceTransport's ClientTrace
// table reads as a list of events, the way the teacher's own verbose build
// logging in cmd/distri/build.go favors one log line per lifecycle step.
func logTrace(format string, args ...interface{}) {
	log.Printf("[http] "+format, args...)
}
