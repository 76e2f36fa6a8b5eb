/*
Package event provides a type-safe pub/sub event system for the bridge.

The event system decouples the components of the bridge: the view-server
lifecycle managers, the package watcher, and the signal-file poller publish
events; the HTTP server's SSE endpoint and the CLI subscribe to them.

The package is built on top of watermill's gochannel for infrastructure while
keeping direct-call semantics to preserve type information.

Event types:

  - view.server.started: a managed server reached its readiness sentinel
  - view.server.stopped: a managed server was shut down or died
  - package.changed: the inspect binary path or version changed
  - log.produced: a signal file announced a new evaluation log
  - scan.produced: a signal file announced a new scan
  - config.reloaded: the bridge configuration file was rewritten

Publishing:

	event.Publish(event.Event{
		Type: event.ViewServerStarted,
		Data: event.ViewServerStartedData{Name: "view", Port: 7575, PID: pid},
	})

Subscribing:

	unsubscribe := event.Subscribe(event.PackageChanged, func(e event.Event) {
		data := e.Data.(event.PackageChangedData)
		// tear down stale servers
	})
	defer unsubscribe()

When using PublishSync, subscribers run in the publisher's goroutine and must
complete quickly, use non-blocking channel sends, and never publish
re-entrantly.

For testing or isolation, create a dedicated bus with NewBus and reset the
global bus with Reset in test cleanup.
*/
package event
