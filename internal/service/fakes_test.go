package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stowbox/stowbox/internal/access"
	"github.com/stowbox/stowbox/internal/cache"
	"github.com/stowbox/stowbox/internal/identity"
	"github.com/stowbox/stowbox/internal/model"
	"github.com/stowbox/stowbox/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFiles is an in-memory FileStore with failure injection.
type fakeFiles struct {
	mu        sync.Mutex
	files     map[string]*model.File
	orphans   []*model.OrphanedBlob
	createErr error
	deleteErr error
	listErr   error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: map[string]*model.File{}}
}

func (f *fakeFiles) CreateFile(_ context.Context, file *model.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	clone := *file
	f.files[file.ID] = &clone
	return nil
}

func (f *fakeFiles) ListFiles(_ context.Context, q access.Query) (*repository.FilePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if !q.Scoped() {
		return nil, repository.ErrUnscopedQuery
	}
	all := make([]*model.File, 0, len(f.files))
	for _, file := range f.files {
		clone := *file
		all = append(all, &clone)
	}
	matched := access.Apply(q.WithLimit(0), all)
	page := &repository.FilePage{Files: access.Apply(q, all), Total: len(matched)}
	return page, nil
}

func (f *fakeFiles) FindFile(ctx context.Context, q access.Query, id string) (*model.File, error) {
	page, err := f.ListFiles(ctx, q.Where(access.IDIs{FileID: id}).WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(page.Files) == 0 {
		return nil, repository.ErrFileNotFound
	}
	return page.Files[0], nil
}

func (f *fakeFiles) RenameFile(_ context.Context, id, ownerID, name string, now time.Time) (*model.File, error) {
	return f.update(id, ownerID, now, func(file *model.File) { file.Name = name })
}

func (f *fakeFiles) UpdateSharing(_ context.Context, id, ownerID string, emails []string, now time.Time) (*model.File, error) {
	return f.update(id, ownerID, now, func(file *model.File) { file.SharedWith = append([]string{}, emails...) })
}

func (f *fakeFiles) update(id, ownerID string, now time.Time, apply func(*model.File)) (*model.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok || file.OwnerID != ownerID {
		return nil, repository.ErrFileNotFound
	}
	apply(file)
	file.UpdatedAt = now
	clone := *file
	return &clone, nil
}

func (f *fakeFiles) DeleteFile(_ context.Context, id, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	file, ok := f.files[id]
	if !ok || file.OwnerID != ownerID {
		return repository.ErrFileNotFound
	}
	delete(f.files, id)
	return nil
}

func (f *fakeFiles) RecordOrphan(_ context.Context, o *model.OrphanedBlob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orphans = append(f.orphans, o)
	return nil
}

func (f *fakeFiles) orphanIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.orphans))
	for i, o := range f.orphans {
		out[i] = o.BlobID
	}
	return out
}

func (f *fakeFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

// fakeListings is an in-memory ListingCache with per-viewer versions, the
// same keying the Redis cache uses. It records invalidations.
type fakeListings struct {
	mu          sync.Mutex
	versions    map[string]int64
	pages       map[string]*cache.ListingPage
	invalidated []string
	failReads   error
}

func newFakeListings() *fakeListings {
	return &fakeListings{versions: map[string]int64{}, pages: map[string]*cache.ListingPage{}}
}

func listingKey(viewer string, version int64, key string) string {
	return fmt.Sprintf("%s|%d|%s", viewer, version, key)
}

func (c *fakeListings) GetListing(_ context.Context, viewer, key string) (*cache.ListingPage, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failReads != nil {
		return nil, 0, c.failReads
	}
	version := c.versions[viewer]
	page, ok := c.pages[listingKey(viewer, version, key)]
	if !ok {
		return nil, version, cache.ErrCacheMiss
	}
	return page, version, nil
}

func (c *fakeListings) SetListing(_ context.Context, viewer string, version int64, key string, page *cache.ListingPage, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[listingKey(viewer, version, key)] = page
	return nil
}

func (c *fakeListings) InvalidateListings(_ context.Context, viewers ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range viewers {
		c.invalidated = append(c.invalidated, v)
		c.versions[v]++
	}
	return nil
}

func (c *fakeListings) cachedPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

func (c *fakeListings) invalidatedViewers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, v := range c.invalidated {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// fakeProvider is a scripted IdentityProvider.
type fakeProvider struct {
	mu        sync.Mutex
	accounts  map[string]string
	codes     map[string]string
	sessions  map[string]*model.Session
	issueErr  error
	issued    int
	nextID    int
	revokeErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		accounts: map[string]string{},
		codes:    map[string]string{},
		sessions: map[string]*model.Session{},
	}
}

func (p *fakeProvider) EnsureAccount(_ context.Context, email string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.accounts[email]; ok {
		return id, nil
	}
	p.nextID++
	id := "ACC" + string(rune('0'+p.nextID))
	p.accounts[email] = id
	return id, nil
}

func (p *fakeProvider) IssueOTP(_ context.Context, accountID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.issueErr != nil {
		return p.issueErr
	}
	p.issued++
	p.codes[accountID] = "123456"
	return nil
}

func (p *fakeProvider) CreateSession(_ context.Context, accountID, code string) (*model.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	want, ok := p.codes[accountID]
	if !ok {
		return nil, identity.ErrChallengeNotFound
	}
	if want != code {
		return nil, identity.ErrCodeMismatch
	}
	delete(p.codes, accountID)
	s := &model.Session{
		ID:        "sess-" + accountID,
		AccountID: accountID,
		Secret:    "secret-" + accountID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	p.sessions[s.Secret] = s
	return s, nil
}

func (p *fakeProvider) ValidateSession(_ context.Context, secret string) (*model.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[secret]
	if !ok {
		return nil, identity.ErrInvalidSession
	}
	return s, nil
}

func (p *fakeProvider) RevokeSecret(_ context.Context, secret string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.revokeErr != nil {
		return p.revokeErr
	}
	if _, ok := p.sessions[secret]; !ok {
		return identity.ErrInvalidSession
	}
	delete(p.sessions, secret)
	return nil
}

// fakeUsers is an in-memory UserStore.
type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]*model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: map[string]*model.User{}}
}

func (u *fakeUsers) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (u *fakeUsers) GetUserByAccountID(_ context.Context, accountID string) (*model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, user := range u.byEmail {
		if user.AccountID == accountID {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (u *fakeUsers) GetOrCreateUser(_ context.Context, user *model.User) (*model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.byEmail[user.Email]; ok {
		return existing, nil
	}
	u.byEmail[user.Email] = user
	return user, nil
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (l *fakeLimiter) CheckOTPEmailRateLimit(context.Context, string, int, int) (*cache.RateLimitResult, error) {
	if l.err != nil {
		return nil, l.err
	}
	return &cache.RateLimitResult{Allowed: l.allowed}, nil
}
