package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/almoxweb/almoxweb/internal/audit"
	"github.com/almoxweb/almoxweb/internal/credential"
	"github.com/almoxweb/almoxweb/internal/permissions"
	"github.com/almoxweb/almoxweb/internal/sessions"
	"github.com/almoxweb/almoxweb/internal/shared"
	"github.com/almoxweb/almoxweb/internal/users"
)

// In-memory ports backing a fully wired facade.

type memUserRepo struct {
	byID   map[int64]*users.User
	nextID int64
}

func (m *memUserRepo) GetByID(ctx context.Context, id int64) (*users.User, error) {
	u, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memUserRepo) List(ctx context.Context, activeOnly bool) ([]users.User, error) {
	var out []users.User
	for _, u := range m.byID {
		if activeOnly && !u.IsActive {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (m *memUserRepo) Create(ctx context.Context, u users.User) (*users.User, error) {
	u.ID = m.nextID
	m.nextID++
	stored := u
	m.byID[u.ID] = &stored
	copied := u
	return &copied, nil
}

func (m *memUserRepo) Update(ctx context.Context, u users.User) (*users.User, error) {
	existing, ok := m.byID[u.ID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	existing.Name = u.Name
	existing.Email = u.Email
	existing.Role = u.Role
	existing.IsActive = u.IsActive
	copied := *existing
	return &copied, nil
}

func (m *memUserRepo) Deactivate(ctx context.Context, id int64) error {
	u, ok := m.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.IsActive = false
	return nil
}

func (m *memUserRepo) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	u, ok := m.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUserRepo) TouchLastLogin(ctx context.Context, id int64) error {
	if u, ok := m.byID[id]; ok {
		now := time.Now()
		u.LastLoginAt = &now
	}
	return nil
}

type memSessionRepo struct {
	sessions  map[string]*sessions.Session
	users     *memUserRepo
	insertErr error
}

func (m *memSessionRepo) Insert(ctx context.Context, s sessions.Session) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	stored := s
	m.sessions[s.Token] = &stored
	return nil
}

func (m *memSessionRepo) GetWithUser(ctx context.Context, token string) (*sessions.Session, *users.User, error) {
	s, ok := m.sessions[token]
	if !ok {
		return nil, nil, shared.ErrNotFound
	}
	user, err := m.users.GetByID(ctx, s.UserID)
	if err != nil {
		return nil, nil, err
	}
	copied := *s
	return &copied, user, nil
}

func (m *memSessionRepo) Revoke(ctx context.Context, token string) error {
	if s, ok := m.sessions[token]; ok {
		s.Active = false
	}
	return nil
}

func (m *memSessionRepo) RevokeAllForUser(ctx context.Context, userID int64) ([]string, error) {
	var tokens []string
	for token, s := range m.sessions {
		if s.UserID == userID && s.Active {
			s.Active = false
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (m *memSessionRepo) ActiveTokensForUser(ctx context.Context, userID int64) ([]string, error) {
	var tokens []string
	for token, s := range m.sessions {
		if s.UserID == userID && s.Active {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (m *memSessionRepo) PurgeStale(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

type memPermRepo struct {
	rows map[int64]map[string]bool
}

func (m *memPermRepo) Get(ctx context.Context, userID int64, moduleKey string) (*permissions.ModulePermission, error) {
	granted, ok := m.rows[userID][moduleKey]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &permissions.ModulePermission{UserID: userID, ModuleKey: moduleKey, Granted: granted}, nil
}

func (m *memPermRepo) ListForUser(ctx context.Context, userID int64) ([]permissions.ModulePermission, error) {
	var out []permissions.ModulePermission
	for key, granted := range m.rows[userID] {
		out = append(out, permissions.ModulePermission{UserID: userID, ModuleKey: key, Granted: granted})
	}
	return out, nil
}

func (m *memPermRepo) Replace(ctx context.Context, userID int64, grants map[string]bool) error {
	replacement := make(map[string]bool, len(grants))
	for key, granted := range grants {
		replacement[key] = granted
	}
	m.rows[userID] = replacement
	return nil
}

type memAuditRepo struct {
	entries  []audit.Draft
	attempts []audit.LoginAttempt
}

func (m *memAuditRepo) Insert(ctx context.Context, draft audit.Draft) error {
	m.entries = append(m.entries, draft)
	return nil
}

func (m *memAuditRepo) Query(ctx context.Context, filters audit.Filters) ([]audit.Entry, error) {
	return nil, nil
}

func (m *memAuditRepo) InsertAttempt(ctx context.Context, attempt audit.LoginAttempt) error {
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *memAuditRepo) CountRecentFailures(ctx context.Context, email string, window time.Duration) (int, error) {
	count := 0
	for _, a := range m.attempts {
		if a.Email == email && a.Result == audit.ResultError {
			count++
		}
	}
	return count, nil
}

type harness struct {
	service  *Service
	userRepo *memUserRepo
	sessRepo *memSessionRepo
	permRepo *memPermRepo
	trail    *memAuditRepo
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithCache(t, nil)
}

func newHarnessWithCache(t *testing.T, cache *sessions.Cache) *harness {
	t.Helper()
	userRepo := &memUserRepo{byID: make(map[int64]*users.User), nextID: 1}
	sessRepo := &memSessionRepo{sessions: make(map[string]*sessions.Session), users: userRepo}
	permRepo := &memPermRepo{rows: make(map[int64]map[string]bool)}
	trail := &memAuditRepo{}

	hasher := credential.NewHasher(bcrypt.MinCost)
	directory := users.NewDirectory(userRepo, hasher, users.DefaultPasswordPolicy())
	store := sessions.NewStore(sessRepo, cache, time.Hour, nil)
	engine := permissions.NewEngine(permRepo, nil)
	log := audit.NewLog(trail, nil, nil, 0)

	return &harness{
		service:  NewService(directory, store, engine, log, nil, nil),
		userRepo: userRepo,
		sessRepo: sessRepo,
		permRepo: permRepo,
		trail:    trail,
	}
}

func (h *harness) seedUser(t *testing.T, email, password string, role users.Role) *users.User {
	t.Helper()
	created, err := h.service.CreateUser(context.Background(), users.CreateInput{
		Name:     "Ana Silva",
		Email:    email,
		Password: password,
		Role:     role,
	}, nil)
	require.NoError(t, err)
	return created
}

func (h *harness) lastEntry(t *testing.T) audit.Draft {
	t.Helper()
	require.NotEmpty(t, h.trail.entries)
	return h.trail.entries[len(h.trail.entries)-1]
}

func TestLoginSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	sess, user, err := h.service.Login(ctx, "ana@inventario.com", "Senha123")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)
	require.Len(t, sess.Token, 64)
	require.NotNil(t, h.userRepo.byID[created.ID].LastLoginAt)

	require.Len(t, h.trail.attempts, 1)
	require.Equal(t, audit.ResultSuccess, h.trail.attempts[0].Result)

	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionLogin, entry.Action)
	require.Equal(t, "sistema", entry.Module)
	require.Equal(t, audit.ResultSuccess, entry.Result)
	require.Equal(t, "ana@inventario.com", entry.Actor.Email)
}

func TestLoginFailureIsGenericAndAudited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	_, _, err := h.service.Login(ctx, "ana@inventario.com", "errada99")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = h.service.Login(ctx, "ninguem@inventario.com", "Senha123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.Len(t, h.trail.attempts, 2)
	require.Equal(t, users.ReasonBadPassword, h.trail.attempts[0].FailureReason)
	require.Equal(t, users.ReasonUserNotFound, h.trail.attempts[1].FailureReason)

	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionLogin, entry.Action)
	require.Equal(t, audit.ResultError, entry.Result)
	require.Equal(t, "sistema", entry.Actor.Name)
}

func TestLogoutRevokesAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	sess, _, err := h.service.Login(ctx, "ana@inventario.com", "Senha123")
	require.NoError(t, err)

	require.NoError(t, h.service.Logout(ctx, sess.Token))
	_, err = h.service.RequireSession(ctx, sess.Token)
	require.ErrorIs(t, err, shared.ErrInvalidSession)

	// Logging out twice still succeeds.
	require.NoError(t, h.service.Logout(ctx, sess.Token))

	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionLogout, entry.Action)
}

func TestRequirePermission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)
	h.permRepo.rows[created.ID] = map[string]bool{permissions.ModuleInsumos: true}

	sess, _, err := h.service.Login(ctx, "ana@inventario.com", "Senha123")
	require.NoError(t, err)

	user, err := h.service.RequirePermission(ctx, sess.Token, permissions.ModuleInsumos)
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)

	_, err = h.service.RequirePermission(ctx, sess.Token, permissions.ModuleUsuarios)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = h.service.RequirePermission(ctx, "invalid-token", permissions.ModuleInsumos)
	require.ErrorIs(t, err, shared.ErrInvalidSession)
}

func TestDeactivateUserRevokesSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.seedUser(t, "admin@inventario.com", "Admin123", users.RoleAdmin)
	target := h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	sess, _, err := h.service.Login(ctx, "ana@inventario.com", "Senha123")
	require.NoError(t, err)

	require.NoError(t, h.service.DeactivateUser(ctx, target.ID, admin))

	_, err = h.service.RequireSession(ctx, sess.Token)
	require.ErrorIs(t, err, shared.ErrInvalidSession)

	// Re-login is rejected without revealing the account state.
	_, _, err = h.service.Login(ctx, "ana@inventario.com", "Senha123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionLogin, entry.Action)
}

func TestDeactivateUserAuditCapturesImages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.seedUser(t, "admin@inventario.com", "Admin123", users.RoleAdmin)
	target := h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	require.NoError(t, h.service.DeactivateUser(ctx, target.ID, admin))

	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionDelete, entry.Action)
	require.Equal(t, "usuarios", entry.Module)
	require.Equal(t, true, entry.Before["active"])
	require.Equal(t, false, entry.After["active"])
	require.Equal(t, admin.Email, entry.Actor.Email)
}

func TestUpdateUserAuditsBeforeAndAfter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.seedUser(t, "admin@inventario.com", "Admin123", users.RoleAdmin)
	target := h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	updated, err := h.service.UpdateUser(ctx, target.ID, users.UpdateInput{
		Name:     "Ana Souza",
		Email:    "ana@inventario.com",
		Role:     users.RoleManager,
		IsActive: true,
	}, admin)
	require.NoError(t, err)
	require.Equal(t, users.RoleManager, updated.Role)

	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionUpdate, entry.Action)
	require.Equal(t, "Ana Silva", entry.Before["name"])
	require.Equal(t, "Ana Souza", entry.After["name"])
}

func TestCreateUserSnapshotsOmitHash(t *testing.T) {
	h := newHarness(t)
	admin := h.seedUser(t, "admin@inventario.com", "Admin123", users.RoleAdmin)

	_, err := h.service.CreateUser(context.Background(), users.CreateInput{
		Name:     "Bia",
		Email:    "bia@inventario.com",
		Password: "Senha123",
		Role:     users.RoleUser,
	}, admin)
	require.NoError(t, err)

	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionCreate, entry.Action)
	require.NotContains(t, entry.After, "password_hash")
	require.NotContains(t, entry.After, "password")
}

func TestChangePasswordAudited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	target := h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	err := h.service.ChangePassword(ctx, target.ID, "Senha123", "Nova1234", target)
	require.NoError(t, err)

	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionChangePassword, entry.Action)
	require.Nil(t, entry.Before)
	require.Nil(t, entry.After)

	_, _, err = h.service.Login(ctx, "ana@inventario.com", "Nova1234")
	require.NoError(t, err)
}

func TestReplacePermissionsEmitsSingleEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.seedUser(t, "admin@inventario.com", "Admin123", users.RoleAdmin)
	target := h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	entriesBefore := len(h.trail.entries)
	err := h.service.ReplacePermissions(ctx, target.ID, map[string]bool{
		permissions.ModuleInsumos:    true,
		permissions.ModuleRelatorios: true,
		permissions.ModuleReservas:   false,
	}, admin)
	require.NoError(t, err)
	require.Len(t, h.trail.entries, entriesBefore+1)

	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionReplacePermissions, entry.Action)
	require.Equal(t, false, entry.Before[permissions.ModuleInsumos])
	require.Equal(t, true, entry.After[permissions.ModuleInsumos])

	effective, err := h.service.EffectivePermissions(ctx, target.ID)
	require.NoError(t, err)
	require.True(t, effective[permissions.ModuleInsumos])
	require.True(t, effective[permissions.ModuleRelatorios])
	require.False(t, effective[permissions.ModuleReservas])
	require.False(t, effective[permissions.ModuleUsuarios])
}

func TestLoginIssueFailureStillAudited(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	h.sessRepo.insertErr = errors.New("connection refused")
	_, _, err := h.service.Login(ctx, "ana@inventario.com", "Senha123")
	require.Error(t, err)

	// Credentials were verified, so the attempt still lands on the trail.
	require.Len(t, h.trail.attempts, 1)
	require.Equal(t, audit.ResultSuccess, h.trail.attempts[0].Result)

	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionLogin, entry.Action)
	require.Equal(t, audit.ResultError, entry.Result)
	require.Equal(t, "ana@inventario.com", entry.Actor.Email)
	require.Contains(t, entry.ErrorDetail, "connection refused")
}

func TestUpdateUserRefreshesCachedSessions(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	h := newHarnessWithCache(t, sessions.NewCache(client, time.Minute))
	ctx := context.Background()
	admin := h.seedUser(t, "admin@inventario.com", "Admin123", users.RoleAdmin)
	target := h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	sess, _, err := h.service.Login(ctx, "ana@inventario.com", "Senha123")
	require.NoError(t, err)

	// Prime the cache with the pre-update snapshot.
	resolved, err := h.service.RequireSession(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, users.RoleUser, resolved.Role)

	_, err = h.service.UpdateUser(ctx, target.ID, users.UpdateInput{
		Name:     "Ana Silva",
		Email:    "ana@inventario.com",
		Role:     users.RoleManager,
		IsActive: true,
	}, admin)
	require.NoError(t, err)

	resolved, err = h.service.RequireSession(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, users.RoleManager, resolved.Role)
}

func TestReplacePermissionsMissingUserStillAudited(t *testing.T) {
	h := newHarness(t)
	admin := h.seedUser(t, "admin@inventario.com", "Admin123", users.RoleAdmin)

	entriesBefore := len(h.trail.entries)
	err := h.service.ReplacePermissions(context.Background(), 999, map[string]bool{
		permissions.ModuleInsumos: true,
	}, admin)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Len(t, h.trail.entries, entriesBefore+1)
	entry := h.lastEntry(t)
	require.Equal(t, audit.ActionReplacePermissions, entry.Action)
	require.Equal(t, audit.ResultError, entry.Result)
	require.NotNil(t, entry.EntityID)
	require.Equal(t, int64(999), *entry.EntityID)
}

func TestReplacePermissionsUnknownModule(t *testing.T) {
	h := newHarness(t)
	admin := h.seedUser(t, "admin@inventario.com", "Admin123", users.RoleAdmin)
	target := h.seedUser(t, "ana@inventario.com", "Senha123", users.RoleUser)

	err := h.service.ReplacePermissions(context.Background(), target.ID, map[string]bool{"naoexiste": true}, admin)
	_, ok := shared.AsValidation(err)
	require.True(t, ok)
}
