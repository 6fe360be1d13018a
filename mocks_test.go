package authkit_test

import (
	"context"
	"io"
	"mime/multipart"
	"sync"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	authkit "github.com/mvarela/go-authkit"
)

// testUser implements authkit.Principal and authkit.RBACPrincipal.
type testUser struct {
	id       string
	email    string
	username string
	hash     string
	active   bool
	verified bool
	role     *testRole
	perms    []*testPermission
}

func (u *testUser) ID() string           { return u.id }
func (u *testUser) Email() string        { return u.email }
func (u *testUser) Username() string     { return u.username }
func (u *testUser) PasswordHash() string { return u.hash }
func (u *testUser) IsActive() bool       { return u.active }
func (u *testUser) IsVerified() bool     { return u.verified }

func (u *testUser) Role() authkit.Role {
	if u.role == nil {
		return nil
	}
	return u.role
}

func (u *testUser) DirectPermissions() []authkit.Permission {
	out := make([]authkit.Permission, 0, len(u.perms))
	for _, p := range u.perms {
		out = append(out, p)
	}
	return out
}

type testRole struct {
	id       string
	codename string
	perms    []*testPermission
}

func (r *testRole) RoleID() string   { return r.id }
func (r *testRole) Codename() string { return r.codename }

func (r *testRole) Permissions() []authkit.Permission {
	out := make([]authkit.Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out = append(out, p)
	}
	return out
}

type testPermission struct {
	id       string
	codename string
}

func (p *testPermission) PermissionID() string { return p.id }
func (p *testPermission) Codename() string     { return p.codename }

func notFoundErr() error {
	return errors.New("record not found", errors.CategoryNotFound).
		WithCode(errors.CodeNotFound)
}

func conflictErr() error {
	return errors.New("record already exists", errors.CategoryConflict).
		WithCode(errors.CodeConflict)
}

// memUsers is an in-memory authkit.UserRepository.
type memUsers struct {
	mu    sync.Mutex
	byID  map[string]*testUser
	roles *memRBAC
}

var _ authkit.UserRepository = (*memUsers)(nil)

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]*testUser{}}
}

func (m *memUsers) add(u *testUser) *testUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.id == "" {
		u.id = uuid.NewString()
	}
	m.byID[u.id] = u
	return u
}

func (m *memUsers) GetByID(_ context.Context, id string) (authkit.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, notFoundErr()
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (authkit.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.email == email {
			return u, nil
		}
	}
	return nil, notFoundErr()
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (authkit.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.username == username {
			return u, nil
		}
	}
	return nil, notFoundErr()
}

func (m *memUsers) GetByField(ctx context.Context, value, field string) (authkit.Principal, error) {
	switch field {
	case "email":
		return m.GetByEmail(ctx, value)
	case "username":
		return m.GetByUsername(ctx, value)
	case "id":
		return m.GetByID(ctx, value)
	}
	return nil, notFoundErr()
}

func (m *memUsers) GetByFields(ctx context.Context, value string, fields []string) (authkit.Principal, error) {
	for _, field := range fields {
		if u, err := m.GetByField(ctx, value, field); err == nil {
			return u, nil
		}
	}
	return nil, notFoundErr()
}

func (m *memUsers) Create(_ context.Context, fields map[string]any) (authkit.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := &testUser{id: uuid.NewString()}
	applyTestUserFields(u, fields, m.roles)

	for _, existing := range m.byID {
		if existing.email == u.email || (u.username != "" && existing.username == u.username) {
			return nil, conflictErr()
		}
	}

	m.byID[u.id] = u
	return u, nil
}

func (m *memUsers) Update(_ context.Context, principal authkit.Principal, fields map[string]any) (authkit.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[principal.ID()]
	if !ok {
		return nil, notFoundErr()
	}

	if email, ok := fields["email"].(string); ok {
		for _, existing := range m.byID {
			if existing.id != u.id && existing.email == email {
				return nil, conflictErr()
			}
		}
	}

	applyTestUserFields(u, fields, m.roles)
	return u, nil
}

func (m *memUsers) Delete(_ context.Context, principal authkit.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[principal.ID()]; !ok {
		return notFoundErr()
	}
	delete(m.byID, principal.ID())
	return nil
}

func applyTestUserFields(u *testUser, fields map[string]any, roles *memRBAC) {
	if v, ok := fields["email"].(string); ok {
		u.email = v
	}
	if v, ok := fields["username"].(string); ok {
		u.username = v
	}
	if v, ok := fields["password_hash"].(string); ok {
		u.hash = v
	}
	if v, ok := fields["is_active"].(bool); ok {
		u.active = v
	}
	if v, ok := fields["is_verified"].(bool); ok {
		u.verified = v
	}
	if v, ok := fields["role_id"].(string); ok && roles != nil {
		if role, ok := roles.byID[v]; ok {
			u.role = role
		}
	}
}

// memRBAC is an in-memory authkit.RBACRepository.
type memRBAC struct {
	byID       map[string]*testRole
	byCodename map[string]*testRole
	perms      map[string]*testPermission
}

var _ authkit.RBACRepository = (*memRBAC)(nil)

func newMemRBAC() *memRBAC {
	return &memRBAC{
		byID:       map[string]*testRole{},
		byCodename: map[string]*testRole{},
		perms:      map[string]*testPermission{},
	}
}

func (m *memRBAC) addRole(codename string, perms ...*testPermission) *testRole {
	role := &testRole{id: uuid.NewString(), codename: codename, perms: perms}
	m.byID[role.id] = role
	m.byCodename[codename] = role
	return role
}

func (m *memRBAC) GetRole(_ context.Context, id string) (authkit.Role, error) {
	if role, ok := m.byID[id]; ok {
		return role, nil
	}
	return nil, notFoundErr()
}

func (m *memRBAC) GetRoleByCodename(_ context.Context, codename string) (authkit.Role, error) {
	if role, ok := m.byCodename[codename]; ok {
		return role, nil
	}
	return nil, notFoundErr()
}

func (m *memRBAC) CreateRole(_ context.Context, fields map[string]any) (authkit.Role, error) {
	codename, _ := fields["codename"].(string)
	if _, ok := m.byCodename[codename]; ok {
		return nil, conflictErr()
	}
	return m.addRole(codename), nil
}

func (m *memRBAC) UpdateRole(_ context.Context, role authkit.Role, fields map[string]any) (authkit.Role, error) {
	stored, ok := m.byID[role.RoleID()]
	if !ok {
		return nil, notFoundErr()
	}
	if codename, ok := fields["codename"].(string); ok {
		delete(m.byCodename, stored.codename)
		stored.codename = codename
		m.byCodename[codename] = stored
	}
	return stored, nil
}

func (m *memRBAC) DeleteRole(_ context.Context, role authkit.Role) error {
	stored, ok := m.byID[role.RoleID()]
	if !ok {
		return notFoundErr()
	}
	delete(m.byID, stored.id)
	delete(m.byCodename, stored.codename)
	return nil
}

func (m *memRBAC) ListRoles(_ context.Context) ([]authkit.Role, error) {
	out := make([]authkit.Role, 0, len(m.byID))
	for _, role := range m.byID {
		out = append(out, role)
	}
	return out, nil
}

func (m *memRBAC) GetPermission(_ context.Context, id string) (authkit.Permission, error) {
	if p, ok := m.perms[id]; ok {
		return p, nil
	}
	return nil, notFoundErr()
}

func (m *memRBAC) GetPermissionByCodename(_ context.Context, codename string) (authkit.Permission, error) {
	for _, p := range m.perms {
		if p.codename == codename {
			return p, nil
		}
	}
	return nil, notFoundErr()
}

func (m *memRBAC) CreatePermission(_ context.Context, fields map[string]any) (authkit.Permission, error) {
	codename, _ := fields["codename"].(string)
	for _, p := range m.perms {
		if p.codename == codename {
			return nil, conflictErr()
		}
	}
	p := &testPermission{id: uuid.NewString(), codename: codename}
	m.perms[p.id] = p
	return p, nil
}

func (m *memRBAC) UpdatePermission(_ context.Context, permission authkit.Permission, fields map[string]any) (authkit.Permission, error) {
	p, ok := m.perms[permission.PermissionID()]
	if !ok {
		return nil, notFoundErr()
	}
	if codename, ok := fields["codename"].(string); ok {
		p.codename = codename
	}
	return p, nil
}

func (m *memRBAC) DeletePermission(_ context.Context, permission authkit.Permission) error {
	if _, ok := m.perms[permission.PermissionID()]; !ok {
		return notFoundErr()
	}
	delete(m.perms, permission.PermissionID())
	return nil
}

func (m *memRBAC) ListPermissions(_ context.Context) ([]authkit.Permission, error) {
	out := make([]authkit.Permission, 0, len(m.perms))
	for _, p := range m.perms {
		out = append(out, p)
	}
	return out, nil
}

type memOAuthAccount struct {
	provider  string
	accountID string
	email     string
	ownerID   string
	access    string
	refresh   string
}

func (a *memOAuthAccount) Provider() string     { return a.provider }
func (a *memOAuthAccount) AccountID() string    { return a.accountID }
func (a *memOAuthAccount) AccountEmail() string { return a.email }
func (a *memOAuthAccount) OwnerID() string      { return a.ownerID }

// memOAuth is an in-memory authkit.OAuthRepository.
type memOAuth struct {
	users    *memUsers
	accounts []*memOAuthAccount
}

var _ authkit.OAuthRepository = (*memOAuth)(nil)

func newMemOAuth(users *memUsers) *memOAuth {
	return &memOAuth{users: users}
}

func (m *memOAuth) find(provider, accountID string) *memOAuthAccount {
	for _, a := range m.accounts {
		if a.provider == provider && a.accountID == accountID {
			return a
		}
	}
	return nil
}

func (m *memOAuth) GetUserByOAuth(ctx context.Context, provider, accountID string) (authkit.Principal, error) {
	account := m.find(provider, accountID)
	if account == nil {
		return nil, notFoundErr()
	}
	return m.users.GetByID(ctx, account.ownerID)
}

func (m *memOAuth) GetOAuthAccount(_ context.Context, provider, accountID string) (authkit.OAuthAccount, error) {
	if account := m.find(provider, accountID); account != nil {
		return account, nil
	}
	return nil, notFoundErr()
}

func (m *memOAuth) AddOAuthAccount(_ context.Context, principal authkit.Principal, fields map[string]any) (authkit.Principal, error) {
	provider, _ := fields["provider"].(string)
	accountID, _ := fields["provider_account_id"].(string)

	if m.find(provider, accountID) != nil {
		return nil, conflictErr()
	}

	account := &memOAuthAccount{
		provider:  provider,
		accountID: accountID,
		ownerID:   principal.ID(),
	}
	account.email, _ = fields["account_email"].(string)
	account.access, _ = fields["access_token"].(string)
	account.refresh, _ = fields["refresh_token"].(string)

	m.accounts = append(m.accounts, account)
	return principal, nil
}

func (m *memOAuth) UpdateOAuthAccount(_ context.Context, principal authkit.Principal, existing authkit.OAuthAccount, fields map[string]any) (authkit.Principal, error) {
	account := m.find(existing.Provider(), existing.AccountID())
	if account == nil {
		return nil, notFoundErr()
	}
	if v, ok := fields["access_token"].(string); ok {
		account.access = v
	}
	if v, ok := fields["refresh_token"].(string); ok {
		account.refresh = v
	}
	return principal, nil
}

// stubContext is a hand-rolled router.Context for transport and controller
// tests. Response state is captured in fields for assertions.
type stubContext struct {
	ctx        context.Context
	headers    map[string]string
	setHeaders map[string]string
	cookies    map[string]string
	setCookies []*router.Cookie
	locals     map[any]any

	bindFunc func(any) error

	jsonStatus int
	jsonBody   any
	noContent  int
	nextCalled bool
}

var _ router.Context = (*stubContext)(nil)

func newStubContext() *stubContext {
	return &stubContext{
		ctx:        context.Background(),
		headers:    map[string]string{},
		setHeaders: map[string]string{},
		cookies:    map[string]string{},
		locals:     map[any]any{},
		noContent:  -1,
	}
}

func (s *stubContext) Next() error {
	s.nextCalled = true
	return nil
}

func (s *stubContext) Context() context.Context        { return s.ctx }
func (s *stubContext) SetContext(ctx context.Context)  { s.ctx = ctx }
func (s *stubContext) Path() string                    { return "/" }
func (s *stubContext) Method() string                  { return "GET" }
func (s *stubContext) Body() []byte                    { return nil }
func (s *stubContext) OriginalURL() string             { return "/" }
func (s *stubContext) Referer() string                 { return "" }
func (s *stubContext) OnNext(callback func() error)    {}
func (s *stubContext) Status(code int) router.Context  { return s }
func (s *stubContext) SendString(v string) error       { return nil }
func (s *stubContext) Send(b []byte) error             { return nil }

func (s *stubContext) JSON(code int, val any) error {
	s.jsonStatus = code
	s.jsonBody = val
	return nil
}

func (s *stubContext) NoContent(code int) error {
	s.noContent = code
	return nil
}

func (s *stubContext) Render(name string, bind any, layout ...string) error { return nil }

func (s *stubContext) Redirect(path string, status ...int) error { return nil }

func (s *stubContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	return nil
}

func (s *stubContext) RedirectBack(fallback string, status ...int) error { return nil }

func (s *stubContext) SetHeader(key, val string) router.Context {
	s.setHeaders[key] = val
	return s
}

func (s *stubContext) Header(key string) string { return s.headers[key] }

func (s *stubContext) Get(key string, defaultValue any) any { return defaultValue }

func (s *stubContext) GetBool(key string, defaultValue bool) bool { return defaultValue }

func (s *stubContext) GetInt(key string, defaultValue int) int { return defaultValue }

func (s *stubContext) GetString(key string, defaultValue string) string { return defaultValue }

func (s *stubContext) Set(key string, val any) {}

func (s *stubContext) Bind(i any) error {
	if s.bindFunc != nil {
		return s.bindFunc(i)
	}
	return nil
}

func (s *stubContext) BindJSON(i any) error  { return s.Bind(i) }
func (s *stubContext) BindXML(i any) error   { return s.Bind(i) }
func (s *stubContext) BindQuery(i any) error { return s.Bind(i) }

func (s *stubContext) CookieParser(i any) error { return nil }

func (s *stubContext) Cookie(cookie *router.Cookie) {
	s.setCookies = append(s.setCookies, cookie)
}

func (s *stubContext) Cookies(key string, defaultValue ...string) string {
	if v, ok := s.cookies[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (s *stubContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (s *stubContext) ParamsInt(key string, defaultValue int) int { return defaultValue }

func (s *stubContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (s *stubContext) QueryValues(key string) []string { return nil }

func (s *stubContext) QueryInt(key string, defaultValue int) int { return defaultValue }

func (s *stubContext) Queries() map[string]string { return nil }

func (s *stubContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		s.locals[key] = value[0]
		return nil
	}
	return s.locals[key]
}

func (s *stubContext) LocalsMerge(key any, value map[string]any) map[string]any {
	existing, _ := s.locals[key].(map[string]any)
	if existing == nil {
		existing = map[string]any{}
	}
	for k, v := range value {
		existing[k] = v
	}
	s.locals[key] = existing
	return existing
}

func (s *stubContext) FormFile(key string) (*multipart.FileHeader, error) { return nil, nil }

func (s *stubContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (s *stubContext) IP() string { return "" }

func (s *stubContext) SendStatus(code int) error { return nil }

func (s *stubContext) SendStream(r io.Reader) error { return nil }

func (s *stubContext) RouteName() string { return "" }

func (s *stubContext) RouteParams() map[string]string { return nil }
