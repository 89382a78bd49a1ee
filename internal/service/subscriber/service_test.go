package subscriber_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmail/dashboard/internal/domain"
	"github.com/flowmail/dashboard/internal/service/subscriber"
	"github.com/flowmail/dashboard/internal/whop"
)

// memRepo is an in-memory subscriber repository for unit testing.
type memRepo struct {
	mu   sync.Mutex
	subs map[string]*domain.Subscriber // keyed by id
	seq  int
}

func newMemRepo() *memRepo {
	return &memRepo{subs: make(map[string]*domain.Subscriber)}
}

func (m *memRepo) List(_ context.Context, userID string, f subscriber.ListFilter) ([]domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscriber
	for _, s := range m.subs {
		if s.UserID != userID {
			continue
		}
		if f.Status != "" && string(s.Status) != f.Status {
			continue
		}
		if f.Tier != "" && !strings.EqualFold(s.Tier, f.Tier) {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(s.Name+" "+s.Email), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) Get(_ context.Context, userID, id string) (*domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.UserID != userID {
		return nil, subscriber.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) Upsert(_ context.Context, s *domain.Subscriber) (*domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.subs {
		if existing.UserID == s.UserID && strings.EqualFold(existing.Email, s.Email) {
			existing.Name, existing.Tier, existing.Status = s.Name, s.Tier, s.Status
			existing.WhopMembershipID, existing.SyncedAt = s.WhopMembershipID, s.SyncedAt
			cp := *existing
			return &cp, nil
		}
	}
	m.seq++
	cp := *s
	cp.ID = fmt.Sprintf("s-%03d", m.seq)
	m.subs[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.UserID != userID {
		return subscriber.ErrNotFound
	}
	delete(m.subs, id)
	return nil
}

func (m *memRepo) DeleteMany(_ context.Context, userID string, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range ids {
		if s, ok := m.subs[id]; ok && s.UserID == userID {
			delete(m.subs, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) DeleteAll(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.subs {
		if s.UserID == userID {
			delete(m.subs, id)
			n++
		}
	}
	return n, nil
}

type fakeWhop struct {
	members   []whop.Membership
	err       error
	companyID string
}

func (f *fakeWhop) ListMemberships(_ context.Context, companyID string) ([]whop.Membership, error) {
	f.companyID = companyID
	return f.members, f.err
}

const testUser = "user-1"

func TestCreateUpsertsByEmail(t *testing.T) {
	repo := newMemRepo()
	svc := subscriber.NewService(repo, &fakeWhop{}, "")
	ctx := context.Background()

	a, err := svc.Create(ctx, testUser, subscriber.CreateInput{Name: "Bob", Email: " Bob@Example.com ", Tier: "Gold"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", a.Email)
	assert.Equal(t, domain.SubscriberActive, a.Status)

	b, err := svc.Create(ctx, testUser, subscriber.CreateInput{Name: "Robert", Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, repo.subs, 1)

	// Email uniqueness is per user.
	_, err = svc.Create(ctx, "user-2", subscriber.CreateInput{Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Len(t, repo.subs, 2)

	_, err = svc.Create(ctx, testUser, subscriber.CreateInput{Email: "not-an-email"})
	assert.ErrorIs(t, err, subscriber.ErrInvalidEmail)
}

func TestSync(t *testing.T) {
	repo := newMemRepo()
	wh := &fakeWhop{members: []whop.Membership{
		{ID: "mem_1", Valid: true, Status: "active", User: whop.MembershipUser{Name: "Bob", Email: "bob@example.com"}, Plan: whop.MembershipPlan{Name: "Gold"}},
		{ID: "mem_2", Valid: false, Status: "expired", Email: "eve@example.com"},
		{ID: "mem_3", Valid: true, User: whop.MembershipUser{Username: "ghost"}},
	}}
	svc := subscriber.NewService(repo, wh, "biz_default")
	u := &domain.User{ID: testUser}

	res, err := svc.Sync(context.Background(), u, "")
	require.NoError(t, err)
	assert.Equal(t, "biz_default", wh.companyID)
	assert.Equal(t, subscriber.SyncResult{Synced: 2, Skipped: 1, Total: 3}, res)

	list, err := svc.List(context.Background(), testUser, subscriber.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Bob", list[0].Name)
	assert.Equal(t, "Gold", list[0].Tier)
	assert.Equal(t, domain.SubscriberActive, list[0].Status)
	assert.NotNil(t, list[0].SyncedAt)
	assert.Equal(t, domain.SubscriberStatus("expired"), list[1].Status)

	// Departed members are not deleted by a later sync.
	wh.members = wh.members[:1]
	_, err = svc.Sync(context.Background(), u, "biz_default")
	require.NoError(t, err)
	assert.Len(t, repo.subs, 2)
}

func TestSyncRejectsForeignCompany(t *testing.T) {
	repo := newMemRepo()
	wh := &fakeWhop{members: []whop.Membership{
		{ID: "mem_9", Valid: true, User: whop.MembershipUser{Email: "spy@example.com"}},
	}}
	svc := subscriber.NewService(repo, wh, "biz_default")

	_, err := svc.Sync(context.Background(), &domain.User{ID: testUser}, "biz_someone_else")
	assert.ErrorIs(t, err, subscriber.ErrCompanyForbidden)
	assert.Empty(t, wh.companyID, "whop must not be queried for another company")
	assert.Empty(t, repo.subs)
}

func TestSyncUpstreamError(t *testing.T) {
	svc := subscriber.NewService(newMemRepo(), &fakeWhop{err: errors.New("company not found")}, "biz")
	_, err := svc.Sync(context.Background(), &domain.User{ID: testUser}, "")
	require.ErrorIs(t, err, subscriber.ErrUpstream)
	assert.Contains(t, err.Error(), "company not found")
}

func TestSyncWithoutCompany(t *testing.T) {
	wh := &fakeWhop{}
	svc := subscriber.NewService(newMemRepo(), wh, "")
	_, err := svc.Sync(context.Background(), &domain.User{ID: testUser}, "")
	assert.ErrorIs(t, err, subscriber.ErrNoCompany)

	// An unconfigured deployment cannot vouch for a caller-supplied company.
	_, err = svc.Sync(context.Background(), &domain.User{ID: testUser}, "biz_any")
	assert.ErrorIs(t, err, subscriber.ErrNoCompany)
	assert.Empty(t, wh.companyID)
}

func TestListRecipientsBySegment(t *testing.T) {
	repo := newMemRepo()
	svc := subscriber.NewService(repo, &fakeWhop{}, "")
	ctx := context.Background()
	repo.Upsert(ctx, &domain.Subscriber{UserID: testUser, Email: "a@example.com", Tier: "Gold", Status: domain.SubscriberActive})
	repo.Upsert(ctx, &domain.Subscriber{UserID: testUser, Email: "b@example.com", Tier: "Basic", Status: domain.SubscriberActive})
	repo.Upsert(ctx, &domain.Subscriber{UserID: testUser, Email: "c@example.com", Tier: "gold", Status: "expired"})

	all, err := svc.ListRecipients(ctx, testUser, "all")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	gold, err := svc.ListRecipients(ctx, testUser, "GOLD")
	require.NoError(t, err)
	require.Len(t, gold, 1)
	assert.Equal(t, "a@example.com", gold[0].Email)

	empty, err := svc.ListRecipients(ctx, testUser, "")
	require.NoError(t, err)
	assert.Len(t, empty, 2)
}

func TestDelete(t *testing.T) {
	repo := newMemRepo()
	svc := subscriber.NewService(repo, &fakeWhop{}, "")
	ctx := context.Background()
	s, _ := svc.Create(ctx, testUser, subscriber.CreateInput{Email: "a@example.com"})

	assert.ErrorIs(t, svc.Delete(ctx, "intruder", s.ID), subscriber.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, testUser, s.ID))
	assert.ErrorIs(t, svc.Delete(ctx, testUser, s.ID), subscriber.ErrNotFound)
}

func TestDeleteMany(t *testing.T) {
	repo := newMemRepo()
	svc := subscriber.NewService(repo, &fakeWhop{}, "")
	ctx := context.Background()
	a, _ := svc.Create(ctx, testUser, subscriber.CreateInput{Email: "a@example.com"})
	b, _ := svc.Create(ctx, testUser, subscriber.CreateInput{Email: "b@example.com"})
	other, _ := svc.Create(ctx, "user-2", subscriber.CreateInput{Email: "c@example.com"})

	_, err := svc.DeleteMany(ctx, testUser, nil)
	assert.ErrorIs(t, err, subscriber.ErrNoIDs)

	n, err := svc.DeleteMany(ctx, testUser, []string{a.ID, b.ID, other.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, repo.subs, 1)
}

func TestImport(t *testing.T) {
	rows, err := subscriber.ParseCSV(strings.NewReader("Email,NAME,Tier\nbob@example.com,Bob,Gold\nnot-an-email,X,\n,Y,Z\nann@example.com,Ann\n"))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, subscriber.ImportRow{Name: "Bob", Email: "bob@example.com", Tier: "Gold"}, rows[0])
	assert.Equal(t, "", rows[3].Tier)

	repo := newMemRepo()
	svc := subscriber.NewService(repo, &fakeWhop{}, "")
	res, err := svc.Import(context.Background(), testUser, rows)
	require.NoError(t, err)
	assert.Equal(t, subscriber.ImportResult{Imported: 2, Skipped: 2}, res)
}

func TestParseCSVRequiresEmailColumn(t *testing.T) {
	_, err := subscriber.ParseCSV(strings.NewReader("name,tier\nBob,Gold\n"))
	assert.ErrorIs(t, err, subscriber.ErrInvalidCSV)

	_, err = subscriber.ParseCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, subscriber.ErrInvalidCSV)
}

func TestSampleCSVParses(t *testing.T) {
	rows, err := subscriber.ParseCSV(bytes.NewReader(subscriber.SampleCSV()))
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}
