// Package telemetry provides observability instrumentation for entstack.
//
// It integrates structured logging (zerolog) and operation metrics
// (Prometheus) behind one handle.
//
// Initialize telemetry at application startup and hand its parts to the
// stack:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s := stack.New(
//	    stack.WithLogger(tel.Logger.Zerolog()),
//	    stack.WithMetrics(tel.Metrics),
//	)
//
// A nil *Metrics records nothing, so libraries may call its methods
// unconditionally.
package telemetry
