// Package auth provides email/password authentication with JWT access and
// refresh tokens delivered as HTTP-only cookies, a refresh token blacklist,
// and a bridge that turns a valid bearer token into a server side session.
//
// User lifecycle:
//   - Users carry a UserStatus (active, disabled, deleted) persisted via Bun.
//     DeletedAt is set exactly when the status is deleted; only the User
//     mutators and the state machine change either field.
//   - UserStateMachine centralizes the transition graph, hooks, and
//     persistence. Invoke Transition with ActorRef metadata whenever an admin
//     moves an account.
//
// Tokens:
//   - TokenService signs HS256 pairs with typed TokenClaims. Refresh rotates
//     the pair and claims the old jti in the Blacklist, so concurrent reuse
//     of one refresh token lets exactly one caller through.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the HTTP layer and
//     the state machine to describe registration, login, refresh, logout,
//     password and lifecycle events. Sinks run best-effort (errors are
//     logged). MetricsSink counts events for Prometheus.
package auth
