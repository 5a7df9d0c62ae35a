package audit

import (
	"time"

	"github.com/almoxweb/almoxweb/internal/users"
)

// Results of an audited operation.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Action names used across the trail.
const (
	ActionCreate             = "create"
	ActionUpdate             = "update"
	ActionDelete             = "delete"
	ActionLogin              = "login"
	ActionLogout             = "logout"
	ActionChangePassword     = "change_password"
	ActionReplacePermissions = "replace_permissions"
)

// Actor is the snapshot of who performed an action, captured at write
// time rather than joined live so the record survives later user edits
// or deactivation. A nil ID denotes the system itself.
type Actor struct {
	ID    *int64
	Name  string
	Email string
	Role  string
}

// SystemActor labels entries with no human actor.
func SystemActor() Actor {
	return Actor{Name: "sistema"}
}

// ActorFromUser snapshots a user record.
func ActorFromUser(u *users.User) Actor {
	if u == nil {
		return SystemActor()
	}
	id := u.ID
	return Actor{ID: &id, Name: u.Name, Email: u.Email, Role: string(u.Role)}
}

// Entry is one immutable audit record. There is no update or delete
// operation anywhere in the codebase.
type Entry struct {
	ID            int64
	Timestamp     time.Time
	Actor         Actor
	CorrelationID string
	Module        string
	Action        string
	EntityType    string
	EntityID      *int64
	Before        map[string]any
	After         map[string]any
	Result        string
	ErrorDetail   string
	DurationMs    *int64
}

// Draft is the caller-supplied part of an entry; id and timestamp are
// assigned on insert.
type Draft struct {
	Actor         Actor
	CorrelationID string
	Module        string
	Action        string
	EntityType    string
	EntityID      *int64
	Before        map[string]any
	After         map[string]any
	Result        string
	ErrorDetail   string
	DurationMs    *int64
}

// Filters narrows a Query. Zero values mean "no filter".
type Filters struct {
	From   time.Time
	To     time.Time
	Actor  string
	Module string
	Action string
	Result string
	Limit  int
}

// LoginAttempt is one row of the authentication-attempt trail. The
// failure reason stays internal to diagnostics; it is never surfaced to
// the caller that triggered it.
type LoginAttempt struct {
	ID                  int64
	Timestamp           time.Time
	Email               string
	Result              string
	FailureReason       string
	ConsecutiveFailures int
}
