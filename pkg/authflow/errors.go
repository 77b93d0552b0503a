package authflow

import "errors"

var (
	// ErrSessionNotFound is returned by Provider.CurrentSession when no
	// session exists. It is the one provider error the controller treats
	// as a normal outcome rather than a failure.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoActiveFlow is returned when a flow-step operation is invoked
	// outside its flow, e.g. verifying an OTP before one was sent. This is
	// a caller bug and is not routed through the classified error channel.
	ErrNoActiveFlow = errors.New("no active flow for this operation")

	// ErrUnsupportedProvider is returned by the social sign-in stub.
	ErrUnsupportedProvider = errors.New("social sign-in provider not supported")

	// ErrEventsAlreadySubscribed is returned by provider adapters whose
	// session event stream supports exactly one subscriber.
	ErrEventsAlreadySubscribed = errors.New("session events already subscribed")
)
