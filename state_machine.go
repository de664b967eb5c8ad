package auth

import (
	"context"
	"maps"
	"slices"
	"time"
)

// ActorRef names whoever asked for a change: an admin id, a CLI operator,
// or "system" when left empty.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata is the free-form context recorded with a status change.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is what hooks see.
type TransitionContext struct {
	Actor ActorRef
	User  *User
	From  UserStatus
	To    UserStatus
	Meta  TransitionMetadata
}

type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionPlan)

// UserStateMachine moves users between active, disabled and deleted.
type UserStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus, opts ...TransitionOption) (*User, error)
	CurrentStatus(user *User) UserStatus
}

type StateMachineOption func(*userStateMachine)

func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *userStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink publishes user.status.changed events to sink.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *userStateMachine) {
		sm.sink = normalizeActivitySink(sink)
	}
}

func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *userStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason is stored as metadata["reason"] on the activity event.
func WithTransitionReason(reason string) TransitionOption {
	return func(p *transitionPlan) {
		p.meta.Reason = reason
	}
}

func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(p *transitionPlan) {
		if len(metadata) == 0 {
			return
		}
		if p.meta.Metadata == nil {
			p.meta.Metadata = map[string]any{}
		}
		maps.Copy(p.meta.Metadata, metadata)
	}
}

// WithBeforeTransitionHook runs h before the store is touched. A hook error
// aborts the transition and leaves the user unchanged.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(p *transitionPlan) {
		if h != nil {
			p.before = append(p.before, h)
		}
	}
}

// WithAfterTransitionHook runs h once the new status is persisted.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(p *transitionPlan) {
		if h != nil {
			p.after = append(p.after, h)
		}
	}
}

// lifecycle lists the statuses reachable from each status.
var lifecycle = map[UserStatus][]UserStatus{
	UserStatusActive:   {UserStatusDisabled, UserStatusDeleted},
	UserStatusDisabled: {UserStatusActive, UserStatusDeleted},
	UserStatusDeleted:  {UserStatusActive},
}

// NewUserStateMachine persists transitions through users.UpdateStatus.
func NewUserStateMachine(users Users, opts ...StateMachineOption) UserStateMachine {
	sm := &userStateMachine{
		users:  users,
		now:    time.Now,
		sink:   noopActivitySink{},
		logger: defLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}
	return sm
}

type userStateMachine struct {
	users  Users
	now    func() time.Time
	sink   ActivitySink
	logger Logger
}

type transitionPlan struct {
	meta   TransitionMetadata
	before []TransitionHook
	after  []TransitionHook
}

func newTransitionPlan(opts []TransitionOption) *transitionPlan {
	p := &transitionPlan{}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// snapshot returns metadata hooks can keep without seeing later mutations.
func (p *transitionPlan) snapshot() TransitionMetadata {
	return TransitionMetadata{
		Reason:   p.meta.Reason,
		Metadata: maps.Clone(p.meta.Metadata),
	}
}

// eventMetadata flattens the reason into the metadata map.
func (p *transitionPlan) eventMetadata() map[string]any {
	if p.meta.Reason == "" && len(p.meta.Metadata) == 0 {
		return nil
	}
	out := maps.Clone(p.meta.Metadata)
	if out == nil {
		out = map[string]any{}
	}
	if p.meta.Reason != "" {
		out["reason"] = p.meta.Reason
	}
	return out
}

func (sm *userStateMachine) Transition(ctx context.Context, actor ActorRef, user *User, target UserStatus, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, deriveError(ErrInvalidTransition, nil, map[string]any{
			"target": target,
			"reason": "user is nil",
		})
	}
	if !target.Valid() {
		return nil, deriveError(ErrInvalidTransition, nil, map[string]any{
			"target": target,
			"reason": "unknown target status",
		})
	}

	from := sm.CurrentStatus(user)
	if from == target {
		return user, nil
	}
	if !slices.Contains(lifecycle[from], target) {
		return nil, deriveError(ErrInvalidTransition, nil, map[string]any{
			"from": from,
			"to":   target,
		})
	}

	plan := newTransitionPlan(opts)
	tc := TransitionContext{Actor: actor, User: user, From: from, To: target, Meta: plan.snapshot()}

	if err := runHooks(ctx, plan.before, tc); err != nil {
		return nil, err
	}

	// work on a copy so a store failure leaves the caller's user intact
	next := *user
	next.applyStatus(target, sm.now())

	stored, err := sm.users.UpdateStatus(ctx, &next)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = &next
	}
	*user = *stored

	if err := runHooks(ctx, plan.after, tc); err != nil {
		return nil, err
	}

	if actor == (ActorRef{}) {
		actor = ActorRef{Type: "system"}
	}
	emitActivity(ctx, sm.sink, sm.logger, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     user.ID.String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   plan.eventMetadata(),
		OccurredAt: sm.now().UTC(),
	})

	return user, nil
}

func (sm *userStateMachine) CurrentStatus(user *User) UserStatus {
	if user == nil {
		return ""
	}
	user.EnsureStatus()
	return user.Status
}

func runHooks(ctx context.Context, hooks []TransitionHook, tc TransitionContext) error {
	for _, hook := range hooks {
		if err := hook(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}
