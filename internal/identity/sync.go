package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roadworks/authd/internal/accounts"
	"github.com/roadworks/authd/internal/audit"
	"github.com/roadworks/authd/model"
	"golang.org/x/crypto/bcrypt"
)

// ImportSummary reports one reconciliation run. Skipped covers both
// already-present identities and per-identity failures.
type ImportSummary struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// SyncService reconciles remote identities with the local credential
// store.
type SyncService struct {
	bridge   Bridge
	accounts accounts.Repository
	recorder *audit.Recorder
}

func NewSyncService(bridge Bridge, accountRepo accounts.Repository, recorder *audit.Recorder) *SyncService {
	return &SyncService{
		bridge:   bridge,
		accounts: accountRepo,
		recorder: recorder,
	}
}

// ImportFromRemote walks every remote identity and creates the missing
// local accounts. Re-running with unchanged remote data creates nothing:
// identities whose derived username already exists are skipped. A failure
// on one identity counts it as skipped and the batch continues; each
// local account is a single insert, so an identity is either fully
// present or absent.
func (s *SyncService) ImportFromRemote(ctx context.Context) (ImportSummary, error) {
	var summary ImportSummary
	iter := s.bridge.List(ctx)
	for {
		remote, err := iter.Next()
		if errors.Is(err, ErrDone) {
			break
		}
		if err != nil {
			return summary, err
		}
		imported, err := s.importOne(ctx, remote)
		if err != nil {
			slog.Warn("Skipping remote identity", "uid", remote.UID, "error", err)
			summary.Skipped++
			continue
		}
		if imported {
			summary.Imported++
		} else {
			summary.Skipped++
		}
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionImportRemote,
		ResourceType: audit.ResourceIdentity,
		Metadata:     fmt.Sprintf("imported=%d skipped=%d", summary.Imported, summary.Skipped),
	})
	return summary, nil
}

func (s *SyncService) importOne(ctx context.Context, remote *RemoteIdentity) (bool, error) {
	username := deriveUsername(remote)
	exists, err := s.accounts.ExistsUsername(ctx, username)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return false, nil
	}

	// Placeholder credential derived from the remote uid: the account
	// cannot be used for password login until an administrator sets a
	// real password.
	hash, err := bcrypt.GenerateFromPassword([]byte("imported:"+remote.UID), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("hash placeholder password: %w", err)
	}

	uid := remote.UID
	account := &model.Account{
		Username:   username,
		Password:   string(hash),
		ExternalID: &uid,
		Role:       model.RoleUser,
		IsActive:   !remote.Disabled,
		IsLocked:   remote.Disabled,
	}
	err = s.accounts.Create(ctx, account)
	if errors.Is(err, accounts.ErrDuplicate) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create account: %w", err)
	}
	return true, nil
}

// PushAccount creates or updates the remote identity for a local account
// and records the external id locally.
func (s *SyncService) PushAccount(ctx context.Context, accountID uint, email, password string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	remote, err := s.bridge.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	var uid string
	if remote != nil {
		uid = remote.UID
		if remote.Disabled == account.IsActive {
			if err := s.bridge.SetDisabled(ctx, uid, !account.IsActive); err != nil {
				return err
			}
		}
		if password != "" {
			if err := s.bridge.SetPassword(ctx, uid, password); err != nil {
				return err
			}
		}
	} else {
		uid, err = s.bridge.CreateIdentity(ctx, email, password, account.Username)
		if err != nil {
			return err
		}
	}

	if err := s.accounts.LinkExternal(ctx, account.ID, uid); err != nil {
		return fmt.Errorf("link external id: %w", err)
	}

	id := account.ID
	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionPushRemote,
		ResourceType: audit.ResourceAccount,
		ResourceID:   &id,
		UserID:       &id,
		Username:     account.Username,
	})
	return nil
}

// HandleEvent mirrors a normalized identity change onto the linked local
// account. Local accounts are never hard-deleted; a remote deletion only
// deactivates.
func (s *SyncService) HandleEvent(ctx context.Context, event Event) {
	var err error
	switch event.Kind {
	case EventCreated:
		_, err = s.importOne(ctx, &event.Identity)
	case EventDisabled, EventDeleted:
		err = s.setActiveByUID(ctx, event.Identity.UID, false)
	case EventEnabled:
		err = s.setActiveByUID(ctx, event.Identity.UID, true)
	}
	if err != nil {
		slog.Error("Failed to apply identity event",
			"kind", event.Kind, "uid", event.Identity.UID, "error", err)
		return
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:       audit.ActionIdentityEvent,
		ResourceType: audit.ResourceIdentity,
		Metadata:     fmt.Sprintf("kind=%s uid=%s", event.Kind, event.Identity.UID),
	})
}

func (s *SyncService) setActiveByUID(ctx context.Context, uid string, active bool) error {
	account, err := s.accounts.GetByExternalID(ctx, uid)
	if errors.Is(err, accounts.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if account.IsActive == active {
		return nil
	}
	return s.accounts.SetActive(ctx, account.ID, active)
}

// deriveUsername prefers the display name, then the local part of the
// email, then the remote uid.
func deriveUsername(remote *RemoteIdentity) string {
	if name := strings.TrimSpace(remote.DisplayName); name != "" {
		return name
	}
	if at := strings.IndexByte(remote.Email, '@'); at > 0 {
		return remote.Email[:at]
	}
	return remote.UID
}
