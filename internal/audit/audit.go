package audit

import (
	"context"
	"log/slog"

	"github.com/roadworks/authd/model"
)

const (
	ActionLoginSuccess    = "login_success"
	ActionLoginFailure    = "login_failure"
	ActionLoginLocked     = "login_locked"
	ActionLoginDisabled   = "login_disabled"
	ActionLogout          = "logout"
	ActionAccountCreated  = "account_created"
	ActionAccountUnlocked = "account_unlocked"
	ActionImportRemote    = "import_remote"
	ActionPushRemote      = "push_remote"
	ActionIdentityEvent   = "identity_event"
)

const (
	ResourceAccount  = "account"
	ResourceSession  = "session"
	ResourceIdentity = "identity"
)

// Entry is one security-relevant event. Session tokens must never be
// placed in any field, including Metadata.
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   *uint
	UserID       *uint
	Username     string
	IPAddress    string
	UserAgent    string
	Metadata     string
}

// Recorder appends entries to the security log. Writes are best-effort:
// a failure is logged locally and never surfaces to the caller, so audit
// problems cannot change an authentication outcome.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) Record(ctx context.Context, entry Entry) {
	row := &model.SecurityLog{
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		UserID:       entry.UserID,
		Username:     entry.Username,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		Metadata:     entry.Metadata,
	}
	if err := r.repo.Append(ctx, row); err != nil {
		slog.Error("Failed to write security log entry",
			"action", entry.Action, "resource", entry.ResourceType, "error", err)
	}
}
