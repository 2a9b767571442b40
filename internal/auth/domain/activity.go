package domain

import "time"

// ActivityType names an event emitted to the activity log.
type ActivityType string

const (
	ActivityLoginSucceeded  ActivityType = "login.succeeded"
	ActivityLoginFailed     ActivityType = "login.failed"
	ActivitySessionRefresh  ActivityType = "session.refreshed"
	ActivitySessionLogout   ActivityType = "session.logged_out"
	ActivityUserCreated     ActivityType = "user.created"
	ActivityUserUpdated     ActivityType = "user.updated"
	ActivityUserRoleChanged ActivityType = "user.role_changed"
	ActivityUserDeactivated ActivityType = "user.deactivated"
	ActivityUserReactivated ActivityType = "user.reactivated"
)

// ActivityEvent is a single entry for the activity log.
type ActivityEvent struct {
	Type     ActivityType
	TenantID string
	ActorID  string
	TargetID string
	At       time.Time
	Detail   map[string]string
}
