// Package authflow implements the client-side authentication controller for
// a hosted identity provider.
//
// The controller reconciles the provider's asynchronous session-change events
// with local multi-step flow state (registration and password recovery are
// OTP-gated, three-step flows) and derives the externally observable Status
// from exactly two pieces of state: the latest session snapshot and the flow
// state. A user is never reported as authenticated until both identity
// verification and password establishment have completed, even though the
// provider reports any live session as signed in.
//
// Construction and teardown are explicit:
//
//	ctrl, err := authflow.New(provider,
//		authflow.WithLogger(log),
//		authflow.WithResendCooldown(60*time.Second),
//	)
//	if err != nil { ... }
//	defer ctrl.Close()
//
//	statuses := ctrl.Subscribe(ctx)
//	go func() {
//		for st := range statuses {
//			render(st)
//		}
//	}()
//
//	if err := ctrl.StartRegistration(ctx, email); err != nil { ... }
//
// All provider failures are classified into a fixed ErrorKind taxonomy and
// stored on the status as LastError; the UI observes one uniform error
// channel regardless of whether a failure was local validation or remote.
package authflow
