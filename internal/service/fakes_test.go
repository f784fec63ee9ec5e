package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blockful/backoffice/internal/apperror"
	"github.com/blockful/backoffice/internal/model"
	"github.com/blockful/backoffice/internal/repository"
	"github.com/blockful/backoffice/internal/storage"
)

var errStoreDown = errors.New("database is locked")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =========================================================================
// USERS
// =========================================================================

// fakeUserRepo is an in-memory UserRepository with the same uniqueness
// rules as the real table. It is safe for concurrent use.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int

	creates int
	err     error         // returned by every call when set
	delay   time.Duration // slows CreateUser to widen race windows
}

var _ repository.UserRepository = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

func (f *fakeUserRepo) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakeUserRepo) seed(u model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.Email = strings.ToLower(u.Email)
	f.users[u.ID] = &u
	out := u
	return &out
}

func (f *fakeUserRepo) find(match func(*model.User) bool, key string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, apperror.NotFound("user", key)
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }, id)
}

func (f *fakeUserRepo) GetUserByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.GoogleID != "" && u.GoogleID == googleID }, googleID)
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(email)
	return f.find(func(u *model.User) bool { return u.Email == email }, email)
}

func (f *fakeUserRepo) CreateUser(_ context.Context, user *model.User) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.err != nil {
		return f.err
	}
	for _, u := range f.users {
		if u.Email == strings.ToLower(user.Email) || (user.GoogleID != "" && u.GoogleID == user.GoogleID) {
			return apperror.Conflict("user", user.Email)
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) update(match func(*model.User) bool, key string, p repository.ProfileUpdate, link bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, u := range f.users {
		if !match(u) {
			continue
		}
		if link && p.GoogleID != "" {
			u.GoogleID = p.GoogleID
		}
		u.Name = p.Name
		u.Avatar = p.Avatar
		last := p.LastLogin
		u.LastLogin = &last
		u.UpdatedAt = time.Now().UTC()
		out := *u
		return &out, nil
	}
	return nil, apperror.NotFound("user", key)
}

func (f *fakeUserRepo) UpdateUserByGoogleID(_ context.Context, googleID string, p repository.ProfileUpdate) (*model.User, error) {
	return f.update(func(u *model.User) bool { return u.GoogleID == googleID }, googleID, p, false)
}

func (f *fakeUserRepo) UpdateUserByEmail(_ context.Context, email string, p repository.ProfileUpdate) (*model.User, error) {
	email = strings.ToLower(email)
	return f.update(func(u *model.User) bool { return u.Email == email }, email, p, true)
}

func (f *fakeUserRepo) UpdateUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u, ok := f.users[user.ID]
	if !ok {
		return apperror.NotFound("user", user.ID)
	}
	u.Name = user.Name
	u.Avatar = user.Avatar
	u.IsActive = user.IsActive
	return nil
}

// =========================================================================
// OOO
// =========================================================================

type fakeOOORepo struct {
	records map[string]*model.OOO
	nextID  int
	err     error
}

var _ repository.OOORepository = (*fakeOOORepo)(nil)

func newFakeOOORepo() *fakeOOORepo {
	return &fakeOOORepo{records: make(map[string]*model.OOO)}
}

func (f *fakeOOORepo) CreateOOO(_ context.Context, o *model.OOO) error {
	if f.err != nil {
		return f.err
	}
	f.nextID++
	o.ID = fmt.Sprintf("ooo-%d", f.nextID)
	stored := *o
	f.records[o.ID] = &stored
	return nil
}

func (f *fakeOOORepo) GetOOO(_ context.Context, id string) (*model.OOO, error) {
	o, ok := f.records[id]
	if !ok {
		return nil, apperror.NotFound("ooo", id)
	}
	out := *o
	return &out, nil
}

func (f *fakeOOORepo) ListOOO(_ context.Context, filter repository.OOOFilter) ([]model.OOO, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []model.OOO{}
	for _, o := range f.records {
		if filter.Active != nil && o.Active != *filter.Active {
			continue
		}
		out = append(out, *o)
	}
	slices.SortFunc(out, func(a, b model.OOO) int { return strings.Compare(a.ID, b.ID) })
	if filter.Offset >= len(out) {
		return []model.OOO{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeOOORepo) UpdateOOO(_ context.Context, o *model.OOO) error {
	if _, ok := f.records[o.ID]; !ok {
		return apperror.NotFound("ooo", o.ID)
	}
	stored := *o
	f.records[o.ID] = &stored
	return nil
}

func (f *fakeOOORepo) DeleteOOO(_ context.Context, id string) error {
	if _, ok := f.records[id]; !ok {
		return apperror.NotFound("ooo", id)
	}
	delete(f.records, id)
	return nil
}

// =========================================================================
// REIMBURSEMENTS
// =========================================================================

type fakeReimbursementRepo struct {
	records map[string]*model.Reimbursement
	nextID  int
	err     error
}

var _ repository.ReimbursementRepository = (*fakeReimbursementRepo)(nil)

func newFakeReimbursementRepo() *fakeReimbursementRepo {
	return &fakeReimbursementRepo{records: make(map[string]*model.Reimbursement)}
}

func (f *fakeReimbursementRepo) CreateReimbursement(_ context.Context, r *model.Reimbursement) error {
	if f.err != nil {
		return f.err
	}
	f.nextID++
	r.ID = fmt.Sprintf("rb-%d", f.nextID)
	stored := *r
	f.records[r.ID] = &stored
	return nil
}

func (f *fakeReimbursementRepo) GetReimbursement(_ context.Context, id string) (*model.Reimbursement, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, apperror.NotFound("reimbursement", id)
	}
	out := *r
	return &out, nil
}

func (f *fakeReimbursementRepo) ListReimbursements(_ context.Context, userID string, status model.ReimbursementStatus) ([]model.Reimbursement, error) {
	out := []model.Reimbursement{}
	for _, r := range f.records {
		if r.UserID == userID && (status == "" || r.Status == status) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReimbursementRepo) UpdateReimbursement(_ context.Context, r *model.Reimbursement) error {
	if _, ok := f.records[r.ID]; !ok {
		return apperror.NotFound("reimbursement", r.ID)
	}
	stored := *r
	f.records[r.ID] = &stored
	return nil
}

func (f *fakeReimbursementRepo) DeleteReimbursement(_ context.Context, id string) error {
	delete(f.records, id)
	return nil
}

func (f *fakeReimbursementRepo) ReimbursementStats(_ context.Context, userID string) (model.ReimbursementStats, error) {
	var s model.ReimbursementStats
	for _, r := range f.records {
		if r.UserID != userID {
			continue
		}
		s.Total++
		switch r.Status {
		case model.StatusPending:
			s.Pending++
		case model.StatusApproved:
			s.Approved++
		case model.StatusRejected:
			s.Rejected++
		case model.StatusPaid:
			s.Paid++
		}
	}
	return s, nil
}

// newTestFileStore returns a real disk store in a temp dir and the dir.
func newTestFileStore(t *testing.T) (*storage.Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	s, err := storage.New(dir, 1024)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return s, dir
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	return len(entries)
}
