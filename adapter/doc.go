// Package adapter groups the integrations that connect graph runs to systems
// outside the process.
//
// Adapters sit on the graph.Listener and store.CheckpointStore seams, so the
// core packages never import a transport or broker directly.
//
//   - natsevents: publishes node events to NATS subjects per run
//
// # Example
//
//	nc, err := natsevents.Connect(nats.DefaultURL, "deep-research")
//	if err != nil {
//		return err
//	}
//	defer nc.Close()
//
//	runner, err := cg.NewRunner(store,
//		graph.WithRunListeners(natsevents.NewListener(nc)),
//	)
package adapter
