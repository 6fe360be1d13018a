package authkit

import "context"

// HookEvent names a lifecycle point the Manager announces.
type HookEvent string

const (
	HookAfterRegister       HookEvent = "after_register"
	HookAfterLogin          HookEvent = "after_login"
	HookAfterVerifyRequest  HookEvent = "after_verify_request"
	HookAfterVerify         HookEvent = "after_verify"
	HookAfterPasswordChange HookEvent = "after_password_change"
	HookAfterResetRequest   HookEvent = "after_reset_request"
	HookAfterDelete         HookEvent = "after_delete"
	HookAfterOAuthLink      HookEvent = "after_oauth_link"
)

// HookPayload is what a hook receives. Token is only populated for events
// that mint one (verification request, reset request).
type HookPayload struct {
	Event     HookEvent
	Principal Principal
	Token     string
	Metadata  map[string]any
}

// Hook observes a lifecycle event. Hooks run synchronously after the event
// commits; a hook error is logged and does not fail the triggering
// operation.
type Hook func(ctx context.Context, payload HookPayload) error

type hookRegistry struct {
	hooks  map[HookEvent][]Hook
	logger Logger
}

func newHookRegistry(logger Logger) *hookRegistry {
	if logger == nil {
		logger = defLogger{}
	}
	return &hookRegistry{
		hooks:  map[HookEvent][]Hook{},
		logger: logger,
	}
}

func (r *hookRegistry) register(event HookEvent, hook Hook) {
	if hook == nil {
		return
	}
	r.hooks[event] = append(r.hooks[event], hook)
}

func (r *hookRegistry) emit(ctx context.Context, payload HookPayload) {
	for _, hook := range r.hooks[payload.Event] {
		if err := hook(ctx, payload); err != nil {
			r.logger.Error("hook failed", "event", payload.Event, "error", err)
		}
	}
}
