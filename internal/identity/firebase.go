package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// firebaseBridge adapts the Firebase Auth Admin SDK to the Bridge
// interface. Remote error detail is logged locally; callers only see
// ErrProvider.
type firebaseBridge struct {
	client  *fbauth.Client
	timeout time.Duration
}

func NewFirebaseBridge(ctx context.Context, credentialsFile string, timeout time.Duration) (Bridge, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase auth client: %w", err)
	}
	return &firebaseBridge{client: client, timeout: timeout}, nil
}

func (b *firebaseBridge) CreateIdentity(ctx context.Context, email, password, displayName string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	toCreate := (&fbauth.UserToCreate{}).Email(email).Password(password)
	if displayName != "" {
		toCreate = toCreate.DisplayName(displayName)
	}
	record, err := b.client.CreateUser(ctx, toCreate)
	if err != nil {
		return "", b.fail("create remote identity", email, err)
	}
	return record.UID, nil
}

func (b *firebaseBridge) DeleteIdentity(ctx context.Context, uid string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.client.DeleteUser(ctx, uid); err != nil {
		return b.fail("delete remote identity", uid, err)
	}
	return nil
}

func (b *firebaseBridge) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	update := (&fbauth.UserToUpdate{}).Disabled(disabled)
	if _, err := b.client.UpdateUser(ctx, uid, update); err != nil {
		return b.fail("update remote identity state", uid, err)
	}
	return nil
}

func (b *firebaseBridge) SetPassword(ctx context.Context, uid, password string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	update := (&fbauth.UserToUpdate{}).Password(password)
	if _, err := b.client.UpdateUser(ctx, uid, update); err != nil {
		return b.fail("update remote password", uid, err)
	}
	return nil
}

func (b *firebaseBridge) GetByEmail(ctx context.Context, email string) (*RemoteIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	record, err := b.client.GetUserByEmail(ctx, email)
	if fbauth.IsUserNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, b.fail("get remote identity by email", email, err)
	}
	return normalize(record.UserInfo, record.Disabled), nil
}

func (b *firebaseBridge) List(ctx context.Context) Iterator {
	// the iterator spans many paged calls, so the per-call timeout does
	// not apply; the caller's context bounds the whole listing
	return &firebaseIterator{users: b.client.Users(ctx, "")}
}

func (b *firebaseBridge) fail(op, subject string, err error) error {
	slog.Error("Firebase call failed", "op", op, "subject", subject, "error", err)
	return fmt.Errorf("%s: %w", op, ErrProvider)
}

type firebaseIterator struct {
	users *fbauth.UserIterator
}

func (it *firebaseIterator) Next() (*RemoteIdentity, error) {
	record, err := it.users.Next()
	if err == iterator.Done {
		return nil, ErrDone
	}
	if err != nil {
		slog.Error("Firebase listing failed", "error", err)
		return nil, fmt.Errorf("list remote identities: %w", ErrProvider)
	}
	return normalize(record.UserInfo, record.Disabled), nil
}

func normalize(info *fbauth.UserInfo, disabled bool) *RemoteIdentity {
	return &RemoteIdentity{
		UID:         info.UID,
		Email:       info.Email,
		DisplayName: info.DisplayName,
		Disabled:    disabled,
	}
}
