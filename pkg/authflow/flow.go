package authflow

// FlowKind identifies which authentication flow is in progress.
type FlowKind string

const (
	FlowNone FlowKind = "none"

	// FlowLogin is single-step; it never produces a multi-step FlowState
	// but is reported on Status while a sign-in call is in flight.
	FlowLogin FlowKind = "login"

	FlowRegistration FlowKind = "registration"
	FlowRecovery     FlowKind = "recovery"
)

// FlowStage is the progress tag of a FlowState.
type FlowStage uint8

const (
	// StageIdle means no multi-step flow is in progress.
	StageIdle FlowStage = iota
	// StageAwaitingOTP means an OTP was sent and has not been verified.
	StageAwaitingOTP
	// StagePasswordSetup means the OTP was verified and the flow is waiting
	// for the password-establishing step.
	StagePasswordSetup
)

// FlowState is the local record of progress through a multi-step flow.
// It is a tagged value: the constructors are the only way to build one, so
// combinations like "verified but never sent" are unrepresentable.
type FlowState struct {
	stage FlowStage
	kind  FlowKind
	email string
}

func flowIdle() FlowState {
	return FlowState{stage: StageIdle, kind: FlowNone}
}

func flowAwaitingOTP(kind FlowKind, email string) FlowState {
	return FlowState{stage: StageAwaitingOTP, kind: kind, email: email}
}

func flowPasswordSetup(kind FlowKind, email string) FlowState {
	return FlowState{stage: StagePasswordSetup, kind: kind, email: email}
}

// Stage returns the progress tag.
func (f FlowState) Stage() FlowStage { return f.stage }

// Kind returns the flow kind, FlowNone when idle.
func (f FlowState) Kind() FlowKind {
	if f.stage == StageIdle {
		return FlowNone
	}
	return f.kind
}

// Email returns the address the flow was started for, empty when idle.
func (f FlowState) Email() string { return f.email }

// OTPSent reports whether an OTP has been sent for this flow.
func (f FlowState) OTPSent() bool { return f.stage >= StageAwaitingOTP }

// OTPVerified reports whether the OTP has been verified.
func (f FlowState) OTPVerified() bool { return f.stage == StagePasswordSetup }

// Step derives the UI step: 1 before the OTP is sent, 2 while awaiting
// verification, 3 once verified.
func (f FlowState) Step() int {
	switch f.stage {
	case StageAwaitingOTP:
		return 2
	case StagePasswordSetup:
		return 3
	default:
		return 1
	}
}
