// Package server assembles the sqmean TCP service.
//
// A Manager owns three long-lived goroutines:
//
//   - the event loop, which runs the Acceptor and hands every accepted
//     socket to the registry
//   - the registry loop (see package registry), which polls every live
//     connection on a short tick
//   - the dump worker (see package dump), which persists snapshots on its
//     own cadence
//
// Basic usage:
//
//	m := server.New(server.DefaultConfig())
//	if err := m.Start(64000); err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Stop()
//
// Runtime failures never surface as returned errors. They are reflected in
// connection status, logs and the Prometheus collectors exposed by Metrics.
// Start-time failures (invalid config, bind errors) are returned.
package server
