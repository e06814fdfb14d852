// Package authtask tracks asynchronous work attached to interactive sessions
// and correlates out-of-band authentication results with the task that is
// waiting for them.
//
// A federated login starts an attempt on an AuthEngine, parks a placeholder
// FederatedAuthJob in the session TaskRegistry and hands the caller a redirect
// URL plus a task id. The engine later publishes a terminal AuthEvent on an
// EventBus. Every node runs an EventListener that feeds those events into a
// Correlator; the node that holds the session finishes the task exactly once,
// the rest treat the event as not owned.
//
// Outcomes are observable two ways: the session EventSink receives an
// "auth_result" SessionEvent once the task is terminal, and
// LoginService.PollFederatedLoginResult returns the same stored outcome.
//
// Basic wiring:
//
//	cfg, err := authtask.LoadConfig("authtask.yaml")
//	sessions := authtask.NewSessionRegistry(authtask.WithSessionDefaults(cfg.SessionOptions()...))
//	login := authtask.NewLoginService(engine, authenticator, providers, cfg)
//	correlator := authtask.NewCorrelator(sessions, authenticator, authtask.WithCorrelatorConfig(cfg))
//	listener := authtask.NewEventListener(bus, correlator, cfg, authtask.WithListenerSweeper(sessions))
//	go listener.Run(ctx)
package authtask
