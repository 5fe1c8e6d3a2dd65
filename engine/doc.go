// Package engine provides the service lifecycle and per-tick task scheduling
// that the channel layer plugs into.
//
// Services are enabled in the order they were added. While enabling, each
// service appends its tasks to a shared list; every task may name tasks it must
// run after (Succeed) or before (Precede). Names that do not match any
// registered task are ignored, so a service can order itself against optional
// collaborators. The resulting graph is sorted once per Enable; a cycle is an
// error.
//
// Example:
//
//	channeled, err := toxnet.NewChanneled(transport)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	e := engine.New()
//	e.AddService(transportPump)
//	e.AddService(channeled)
//	if err := e.Enable(); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Disable()
//
//	for {
//	    e.Tick()
//	    time.Sleep(50 * time.Millisecond)
//	}
//
// Tick runs every task synchronously on the calling goroutine. Tasks never run
// concurrently with each other.
package engine
