package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roadworks/authd/internal/accounts"
	"github.com/roadworks/authd/internal/audit"
	"github.com/roadworks/authd/internal/policy"
	"github.com/roadworks/authd/internal/sessions"
	"github.com/roadworks/authd/model"
	"github.com/roadworks/authd/params"
	"golang.org/x/crypto/bcrypt"
)

// ClientContext carries request metadata attached to sessions and audit
// entries for forensics.
type ClientContext struct {
	IPAddress string
	UserAgent string
}

// AccountSummary is the externally visible view of an account. It never
// contains the password hash.
type AccountSummary struct {
	ID          uint       `json:"id"`
	Username    string     `json:"username"`
	Role        model.Role `json:"role"`
	RoleLabel   string     `json:"roleLabel"`
	Linked      bool       `json:"linked"`
	IsActive    bool       `json:"isActive"`
	IsLocked    bool       `json:"isLocked"`
	Attempts    int        `json:"attempts"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   AccountSummary
}

// PolicyProvider hands the engine the current lockout policy without a
// storage round trip per request.
type PolicyProvider interface {
	Current() policy.Policy
}

// Engine orchestrates credential verification, the lockout policy,
// session minting and the audit trail. It holds no in-process locks
// across store calls; counter atomicity is the store's job.
type Engine struct {
	accounts accounts.Repository
	sessions sessions.Repository
	policy   PolicyProvider
	recorder *audit.Recorder
	now      func() time.Time
}

func NewEngine(accountRepo accounts.Repository, sessionRepo sessions.Repository, policyProvider PolicyProvider, recorder *audit.Recorder) *Engine {
	return &Engine{
		accounts: accountRepo,
		sessions: sessionRepo,
		policy:   policyProvider,
		recorder: recorder,
		now:      time.Now,
	}
}

// Login verifies the credentials and mints a session. Unknown usernames
// and wrong passwords produce the identical ErrInvalidCredentials;
// disabled and locked accounts are reported without mutating the attempt
// counter. Every branch leaves exactly one audit entry.
func (e *Engine) Login(ctx context.Context, username, password string, client ClientContext) (*LoginResult, error) {
	account, err := e.accounts.GetByUsername(ctx, username)
	if errors.Is(err, accounts.ErrNotFound) {
		e.audit(ctx, audit.Entry{
			Action:       audit.ActionLoginFailure,
			ResourceType: audit.ResourceAccount,
			Username:     username,
			IPAddress:    client.IPAddress,
			UserAgent:    client.UserAgent,
			Metadata:     "unknown username",
		})
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if !account.IsActive {
		e.auditAccount(ctx, audit.ActionLoginDisabled, account, client, "")
		return nil, ErrAccountDisabled
	}
	if account.IsLocked {
		e.auditAccount(ctx, audit.ActionLoginLocked, account, client, "")
		return nil, ErrAccountLocked
	}

	pol := e.policy.Current()
	if bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)) != nil {
		account, err = e.accounts.RecordFailure(ctx, account.ID, pol.MaxAttempts, e.now())
		if err != nil {
			return nil, fmt.Errorf("record failed attempt: %w", err)
		}
		meta := fmt.Sprintf("attempts=%d", account.Attempts)
		if account.IsLocked {
			slog.Warn("Account locked after repeated failed logins",
				"username", account.Username, "attempts", account.Attempts)
			meta += " locked"
		}
		e.auditAccount(ctx, audit.ActionLoginFailure, account, client, meta)
		return nil, ErrInvalidCredentials
	}

	now := e.now()
	if err := e.accounts.RecordSuccess(ctx, account.ID, now); err != nil {
		return nil, fmt.Errorf("record successful login: %w", err)
	}
	account.Attempts = 0
	account.LastFailedLoginAt = nil
	account.LastLoginAt = &now

	session, err := e.mintSession(ctx, account.ID, now, pol.SessionLifetime, client)
	if err != nil {
		return nil, err
	}

	e.auditAccount(ctx, audit.ActionLoginSuccess, account, client, "")
	return &LoginResult{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Account:   summarize(account),
	}, nil
}

// Logout deletes the session for the token. Deleting an absent or
// already expired token is a success, not an error.
func (e *Engine) Logout(ctx context.Context, token string, client ClientContext) error {
	entry := audit.Entry{
		Action:       audit.ActionLogout,
		ResourceType: audit.ResourceSession,
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
	}
	session, err := e.sessions.FindByToken(ctx, token)
	if err == nil {
		entry.UserID = &session.AccountID
	} else if !errors.Is(err, sessions.ErrNotFound) {
		return fmt.Errorf("lookup session: %w", err)
	}
	if err := e.sessions.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	e.audit(ctx, entry)
	return nil
}

// ValidateToken resolves the token to its owning account. An unknown or
// expired token is the expected ErrSessionInvalid outcome, never a fault.
func (e *Engine) ValidateToken(ctx context.Context, token string) (*AccountSummary, error) {
	session, err := e.sessions.FindByToken(ctx, token)
	if errors.Is(err, sessions.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session.Expired(e.now()) {
		return nil, ErrSessionInvalid
	}

	account, err := e.accounts.GetByID(ctx, session.AccountID)
	if errors.Is(err, accounts.ErrNotFound) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	summary := summarize(account)
	return &summary, nil
}

// CreateAccount registers a local account, unlinked from the identity
// provider until a later reconciliation step.
func (e *Engine) CreateAccount(ctx context.Context, username, password string, role model.Role, client ClientContext) (*AccountSummary, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	exists, err := e.accounts.ExistsUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return nil, ErrDuplicateUsername
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &model.Account{
		Username: username,
		Password: string(hash),
		Role:     role,
		IsActive: true,
	}
	err = e.accounts.Create(ctx, account)
	if errors.Is(err, accounts.ErrDuplicate) {
		return nil, ErrDuplicateUsername
	}
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	e.auditAccount(ctx, audit.ActionAccountCreated, account, client, "role="+string(role))
	summary := summarize(account)
	return &summary, nil
}

// UnlockAccount clears the lock and the attempt counter. This is the only
// path that clears IsLocked; time alone never unlocks an account.
func (e *Engine) UnlockAccount(ctx context.Context, id uint, client ClientContext) (*AccountSummary, error) {
	account, err := e.accounts.Unlock(ctx, id)
	if errors.Is(err, accounts.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unlock account: %w", err)
	}
	e.auditAccount(ctx, audit.ActionAccountUnlocked, account, client, "")
	summary := summarize(account)
	return &summary, nil
}

func (e *Engine) GetAccount(ctx context.Context, id uint) (*AccountSummary, error) {
	account, err := e.accounts.GetByID(ctx, id)
	if errors.Is(err, accounts.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	summary := summarize(account)
	return &summary, nil
}

func (e *Engine) ListAccounts(ctx context.Context) ([]AccountSummary, error) {
	return e.list(e.accounts.ListAll)(ctx)
}

func (e *Engine) ListLockedAccounts(ctx context.Context) ([]AccountSummary, error) {
	return e.list(e.accounts.ListLocked)(ctx)
}

// ListUnlinkedAccounts returns accounts not yet reconciled with the
// identity provider.
func (e *Engine) ListUnlinkedAccounts(ctx context.Context) ([]AccountSummary, error) {
	return e.list(e.accounts.ListUnlinked)(ctx)
}

func (e *Engine) list(fetch func(context.Context) ([]*model.Account, error)) func(context.Context) ([]AccountSummary, error) {
	return func(ctx context.Context) ([]AccountSummary, error) {
		rows, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		summaries := make([]AccountSummary, 0, len(rows))
		for _, account := range rows {
			summaries = append(summaries, summarize(account))
		}
		return summaries, nil
	}
}

func (e *Engine) mintSession(ctx context.Context, accountID uint, now time.Time, lifetime time.Duration, client ClientContext) (*model.Session, error) {
	token, err := GenerateToken(params.SessionTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	session := &model.Session{
		AccountID: accountID,
		Token:     token,
		ExpiresAt: now.Add(lifetime),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	}
	if err := e.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

func (e *Engine) audit(ctx context.Context, entry audit.Entry) {
	e.recorder.Record(ctx, entry)
}

func (e *Engine) auditAccount(ctx context.Context, action string, account *model.Account, client ClientContext, metadata string) {
	id := account.ID
	e.audit(ctx, audit.Entry{
		Action:       action,
		ResourceType: audit.ResourceAccount,
		ResourceID:   &id,
		UserID:       &id,
		Username:     account.Username,
		IPAddress:    client.IPAddress,
		UserAgent:    client.UserAgent,
		Metadata:     metadata,
	})
}

func summarize(account *model.Account) AccountSummary {
	return AccountSummary{
		ID:          account.ID,
		Username:    account.Username,
		Role:        account.Role,
		RoleLabel:   account.Role.Label(),
		Linked:      account.Linked(),
		IsActive:    account.IsActive,
		IsLocked:    account.IsLocked,
		Attempts:    account.Attempts,
		LastLoginAt: account.LastLoginAt,
		CreatedAt:   account.CreatedAt,
	}
}
