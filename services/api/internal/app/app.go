package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nebulaone/internal/metrics"
	"nebulaone/pkg/auth"
	"nebulaone/pkg/domain"
	"nebulaone/pkg/queue"
	"nebulaone/pkg/storage"
	"nebulaone/pkg/store"
)

// Publisher receives timeline items as entities are created.
type Publisher interface {
	PublishTimeline(domain.TimelineItem)
}

// JobQueue schedules background work such as thread summaries.
type JobQueue interface {
	Enqueue(ctx context.Context, kind, ref string) (queue.Job, error)
	GetJob(ctx context.Context, id string) (queue.Job, bool, error)
}

// Config wires the application's dependencies. Store and Sessions are
// required; Objects, Events and Jobs may be nil.
type Config struct {
	Store    store.Store
	Sessions store.SessionStore
	Objects  storage.ObjectStore
	Events   Publisher
	Jobs     JobQueue
	Now      func() time.Time
}

// App is the core application service.
type App struct {
	store    store.Store
	sessions store.SessionStore
	objects  storage.ObjectStore
	events   Publisher
	jobs     JobQueue
	now      func() time.Time
}

// New constructs the application around an already chosen store.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("app: session store is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{
		store:    cfg.Store,
		sessions: cfg.Sessions,
		objects:  cfg.Objects,
		events:   cfg.Events,
		jobs:     cfg.Jobs,
		now:      cfg.Now,
	}, nil
}

// AttachmentsEnabled reports whether object storage is configured.
func (a *App) AttachmentsEnabled() bool {
	return a.objects != nil
}

// RegisterInput is the payload for Register.
type RegisterInput struct {
	Username string
	Password string
	Email    string
	Name     string
}

// Register creates a user and opens a session for it. The first user of a
// workspace becomes its admin.
func (a *App) Register(in RegisterInput) (domain.User, string, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return domain.User{}, "", invalidf("username and password are required")
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, "", invalidf("%s", err.Error())
	}
	if _, exists, err := a.store.GetUserByUsername(username); err != nil {
		return domain.User{}, "", fmt.Errorf("lookup username: %w", err)
	} else if exists {
		return domain.User{}, "", ErrUsernameTaken
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.RegisterUser(domain.User{
		Username:     username,
		Email:        strings.TrimSpace(strings.ToLower(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
	})
	if errors.Is(err, store.ErrUsernameTaken) {
		return domain.User{}, "", ErrUsernameTaken
	}
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and opens a session.
func (a *App) Login(username, password string) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, "", invalidf("username and password are required")
	}
	user, ok, err := a.store.GetUserByUsername(username)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Logout ends the session. Unknown tokens are not an error.
func (a *App) Logout(token string) error {
	if token == "" {
		return nil
	}
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// UserFromToken resolves the session owner.
func (a *App) UserFromToken(token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrUnauthorized
	}
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	user, ok, err := a.store.GetUser(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("load session user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// SubscriptionInput carries billing identifiers recorded on a user.
type SubscriptionInput struct {
	UserID               string
	StripeCustomerID     string
	StripeSubscriptionID string
}

// UpdateSubscription records billing identifiers. Users may update their
// own record; updating someone else's requires the admin role.
func (a *App) UpdateSubscription(actor domain.User, in SubscriptionInput) (domain.User, error) {
	target := strings.TrimSpace(in.UserID)
	if target == "" {
		target = actor.ID
	}
	if target != actor.ID && actor.Role != domain.RoleAdmin {
		return domain.User{}, ErrForbidden
	}
	patch := domain.UserPatch{}
	if in.StripeCustomerID != "" {
		patch.StripeCustomerID = &in.StripeCustomerID
	}
	if in.StripeSubscriptionID != "" {
		patch.StripeSubscriptionID = &in.StripeSubscriptionID
	}
	user, ok, err := a.store.UpdateUser(target, patch)
	if err != nil {
		return domain.User{}, fmt.Errorf("update subscription: %w", err)
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

// ListUsers returns every workspace user.
func (a *App) ListUsers() ([]domain.User, error) {
	users, err := a.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// publish broadcasts the creation item of e with e as its data.
func (a *App) publish(e domain.Entity, createdAt time.Time) {
	ref := domain.EntityRef{Kind: e.Kind(), ID: e.EntityID()}
	item, ok, err := a.store.CreationItem(ref)
	if err != nil || !ok {
		slog.Warn("creation timeline item missing", "type", ref.Kind, "item_id", ref.ID, "err", err)
		item = domain.TimelineItem{Type: ref.Kind, ItemID: ref.ID, CreatedAt: createdAt}
	}
	item.Data = e
	a.publishItem(item)
}

func (a *App) publishItem(item domain.TimelineItem) {
	metrics.TimelineEvent(string(item.Type))
	if a.events == nil {
		return
	}
	a.events.PublishTimeline(item)
	slog.Debug("timeline event published", "type", item.Type, "item_id", item.ItemID)
}

// translateStoreErr maps store sentinels onto app errors.
func translateStoreErr(op string, err error) error {
	if errors.Is(err, store.ErrUnknownReference) {
		return invalidf("%s: unknown user reference", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
