package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/portfolio"
	"github.com/totegamma/portfolio/internal/domain"
)

var (
	editor = domain.Requester{ID: "user-1", Role: domain.RoleEditor}
	other  = domain.Requester{ID: "user-2", Role: domain.RoleEditor}
	admin  = domain.Requester{ID: "root", Role: domain.RoleAdmin}
)

func fastOptions() WriteOptions {
	return WriteOptions{
		StorageAttempts: 3,
		ConfirmAttempts: 3,
		ConfirmTimeout:  200 * time.Millisecond,
		BackoffInitial:  time.Millisecond,
	}
}

func ptr[T any](v T) *T { return &v }

// mockCaseStudyRepo keeps one record in memory. Hooks override individual
// operations.
type mockCaseStudyRepo struct {
	mu      sync.Mutex
	stored  map[string]domain.CaseStudy
	creates int
	updates int
	gets    int

	createHook func(call int) error
	updateHook func(call int) error
	getHook    func(ctx context.Context, call int, cs domain.CaseStudy, ok bool) (domain.CaseStudy, error)
}

func newMockRepo() *mockCaseStudyRepo {
	return &mockCaseStudyRepo{stored: map[string]domain.CaseStudy{}}
}

func (m *mockCaseStudyRepo) Create(ctx context.Context, cs domain.CaseStudy, summary *string) (domain.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createHook != nil {
		if err := m.createHook(m.creates); err != nil {
			return domain.WriteResult{}, err
		}
	}
	cs.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	cs.UpdatedAt = cs.CreatedAt
	cs.CurrentVersion = 1
	m.stored[cs.ID] = cs
	return domain.WriteResult{CaseStudy: cs, NewVersion: true}, nil
}

func (m *mockCaseStudyRepo) Update(ctx context.Context, id string, patch domain.CaseStudyPatch, expectedUpdatedAt *time.Time, editor string) (domain.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.updateHook != nil {
		if err := m.updateHook(m.updates); err != nil {
			return domain.WriteResult{}, err
		}
	}
	cs, ok := m.stored[id]
	if !ok {
		return domain.WriteResult{}, domain.NotFoundError{Resource: "case study"}
	}
	if expectedUpdatedAt != nil && !expectedUpdatedAt.Equal(cs.UpdatedAt) {
		return domain.WriteResult{}, domain.ConflictError{ID: id}
	}
	merged := patch.Apply(cs)
	merged.UpdatedAt = cs.UpdatedAt.Add(time.Millisecond)
	changed := merged.Content().Hash() != cs.Content().Hash()
	if changed {
		merged.CurrentVersion++
	}
	m.stored[id] = merged
	return domain.WriteResult{CaseStudy: merged, NewVersion: changed}, nil
}

func (m *mockCaseStudyRepo) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.stored[id]
	delete(m.stored, id)
	return ok, nil
}

func (m *mockCaseStudyRepo) Get(ctx context.Context, id string) (domain.CaseStudy, error) {
	m.mu.Lock()
	m.gets++
	call := m.gets
	cs, ok := m.stored[id]
	hook := m.getHook
	m.mu.Unlock()

	if hook != nil {
		return hook(ctx, call, cs, ok)
	}
	if !ok {
		return domain.CaseStudy{}, domain.NotFoundError{Resource: "case study"}
	}
	return cs, nil
}

func (m *mockCaseStudyRepo) GetForWrite(ctx context.Context, id string) (domain.CaseStudy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.stored[id]
	if !ok {
		return domain.CaseStudy{}, domain.NotFoundError{Resource: "case study"}
	}
	return cs, nil
}

func (m *mockCaseStudyRepo) List(ctx context.Context, filter domain.ListFilter) ([]domain.CaseStudy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.CaseStudy{}
	for _, cs := range m.stored {
		if filter.Status != nil && cs.Status != *filter.Status {
			continue
		}
		out = append(out, cs)
	}
	return out, nil
}

func (m *mockCaseStudyRepo) IncrementViews(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.stored[id]
	if !ok {
		return domain.NotFoundError{Resource: "case study"}
	}
	cs.ViewCount++
	m.stored[id] = cs
	return nil
}

func (m *mockCaseStudyRepo) ListVersions(ctx context.Context, id string) ([]domain.VersionSnapshot, error) {
	return nil, nil
}

func (m *mockCaseStudyRepo) GetVersion(ctx context.Context, id string, number int) (domain.VersionSnapshot, error) {
	return domain.VersionSnapshot{}, domain.NotFoundError{Resource: "version"}
}

func (m *mockCaseStudyRepo) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := []domain.SearchHit{}
	for _, cs := range m.stored {
		hits = append(hits, domain.SearchHit{CaseStudy: cs, Rank: 1})
	}
	return hits, nil
}

func (m *mockCaseStudyRepo) RebuildSearch(ctx context.Context) (int, error) {
	return len(m.stored), nil
}

func (m *mockCaseStudyRepo) put(cs domain.CaseStudy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[cs.ID] = cs
}

type mockNotifier struct {
	mu     sync.Mutex
	events []portfolio.ChangeEvent
}

func (n *mockNotifier) Publish(ctx context.Context, event portfolio.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func transient() error {
	return domain.StorageError{Op: "test", Retryable: true}
}

func TestCreateRequiresEditorRole(t *testing.T) {
	uc := NewCaseStudyUsecase(newMockRepo(), WithWriteOptions(fastOptions()))
	ctx := context.Background()

	_, err := uc.Create(ctx, domain.Anonymous, domain.CaseStudyInput{Title: "A"})
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	_, err = uc.Create(ctx, domain.Requester{ID: "v", Role: domain.RoleViewer}, domain.CaseStudyInput{Title: "A"})
	assert.ErrorIs(t, err, domain.ErrAuthorization)
}

func TestCreateValidation(t *testing.T) {
	repo := newMockRepo()
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))
	ctx := context.Background()

	cases := []struct {
		name  string
		input domain.CaseStudyInput
		field string
	}{
		{"missing title", domain.CaseStudyInput{}, "title"},
		{"blank title", domain.CaseStudyInput{Title: "   "}, "title"},
		{"bad status", domain.CaseStudyInput{Title: "A", Status: "deleted"}, "status"},
		{"negative order", domain.CaseStudyInput{Title: "A", OrderIndex: -1}, "orderIndex"},
		{
			"relative media url",
			domain.CaseStudyInput{Title: "A", Sections: domain.Sections{
				{Enabled: true, Body: domain.ShowcaseSection{Items: []domain.MediaItem{{URL: "/img.png"}}}},
			}},
			"sections.showcase.items[0].url",
		},
		{
			"link without label",
			domain.CaseStudyInput{Title: "A", Sections: domain.Sections{
				{Enabled: true, Body: domain.ResourcesSection{Links: []domain.Link{{URL: "https://example.com"}}}},
			}},
			"sections.resources.links[0].label",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Create(ctx, editor, tc.input)
			var ve domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
	assert.Zero(t, repo.creates)
}

func TestCreateNormalizesInput(t *testing.T) {
	repo := newMockRepo()
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))

	result, err := uc.Create(context.Background(), editor, domain.CaseStudyInput{
		Title: "  A  ",
		Tags:  []string{"web", " ux", "web", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "A", result.CaseStudy.Title)
	assert.Equal(t, domain.StatusDraft, result.CaseStudy.Status)
	assert.Equal(t, []string{"ux", "web"}, result.CaseStudy.Tags)
	assert.Equal(t, editor.ID, result.CaseStudy.OwnerID)
	assert.NotEmpty(t, result.CaseStudy.ID)
}

func TestCreateRetriesTransientStorage(t *testing.T) {
	repo := newMockRepo()
	repo.createHook = func(call int) error {
		if call < 3 {
			return transient()
		}
		return nil
	}
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))

	result, err := uc.Create(context.Background(), editor, domain.CaseStudyInput{Title: "A"})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.creates)
	assert.Equal(t, 1, result.CaseStudy.CurrentVersion)
}

func TestCreateSurfacesRetryableAfterExhaustion(t *testing.T) {
	repo := newMockRepo()
	repo.createHook = func(int) error { return transient() }
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))

	_, err := uc.Create(context.Background(), editor, domain.CaseStudyInput{Title: "A"})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 3, repo.creates)
}

// lostAckRepo commits the first create and then reports a transient
// failure. Later attempts hit the stored id.
type lostAckRepo struct {
	*mockCaseStudyRepo
	tamper func(cs *domain.CaseStudy)
}

func (r *lostAckRepo) Create(ctx context.Context, cs domain.CaseStudy, summary *string) (domain.WriteResult, error) {
	r.mu.Lock()
	_, exists := r.stored[cs.ID]
	r.mu.Unlock()
	if exists {
		r.mu.Lock()
		r.creates++
		r.mu.Unlock()
		return domain.WriteResult{}, domain.StorageError{Op: "create", Cause: domain.ErrDuplicateID}
	}

	written, err := r.mockCaseStudyRepo.Create(ctx, cs, summary)
	if err != nil {
		return written, err
	}
	if r.tamper != nil {
		r.mu.Lock()
		stored := r.stored[cs.ID]
		r.tamper(&stored)
		r.stored[cs.ID] = stored
		r.mu.Unlock()
	}
	return domain.WriteResult{}, transient()
}

func TestCreateRecoversLostAcknowledgement(t *testing.T) {
	repo := &lostAckRepo{mockCaseStudyRepo: newMockRepo()}
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))

	result, err := uc.Create(context.Background(), editor, domain.CaseStudyInput{Title: "A", Sections: domain.Sections{{Enabled: true, Body: domain.HeroSection{Title: "H"}}}})
	require.NoError(t, err)
	assert.Equal(t, "A", result.CaseStudy.Title)
	assert.Equal(t, 1, result.CaseStudy.CurrentVersion)
	assert.True(t, result.NewVersion)
	assert.Equal(t, 2, repo.creates)
	assert.Len(t, repo.stored, 1)
}

func TestCreateDuplicateWithOtherContentIsUnconfirmed(t *testing.T) {
	repo := &lostAckRepo{
		mockCaseStudyRepo: newMockRepo(),
		tamper:            func(cs *domain.CaseStudy) { cs.Title = "edited meanwhile" },
	}
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))

	_, err := uc.Create(context.Background(), editor, domain.CaseStudyInput{Title: "A"})
	assert.ErrorIs(t, err, domain.ErrUnconfirmedWrite)
	assert.False(t, domain.IsRetryable(err))
	assert.Len(t, repo.stored, 1)
}

func TestNonTransientStorageIsNotRetried(t *testing.T) {
	repo := newMockRepo()
	repo.createHook = func(int) error { return domain.StorageError{Op: "test"} }
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))

	_, err := uc.Create(context.Background(), editor, domain.CaseStudyInput{Title: "A"})
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.False(t, domain.IsRetryable(err))
	assert.Equal(t, 1, repo.creates)
}

func TestConflictIsNotRetried(t *testing.T) {
	repo := newMockRepo()
	repo.put(domain.CaseStudy{ID: "cs", OwnerID: editor.ID, Title: "A", UpdatedAt: time.Now().UTC()})
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))

	stale := time.Now().Add(-time.Hour)
	_, err := uc.Update(context.Background(), editor, "cs", domain.CaseStudyPatch{Title: ptr("B")}, &stale)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, repo.updates)
}

func TestConfirmRetriesUntilVisible(t *testing.T) {
	repo := newMockRepo()
	// the first two read-backs miss, as a lagging replica would
	repo.getHook = func(ctx context.Context, call int, cs domain.CaseStudy, ok bool) (domain.CaseStudy, error) {
		if call <= 2 || !ok {
			return domain.CaseStudy{}, domain.NotFoundError{}
		}
		return cs, nil
	}
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))

	result, err := uc.Create(context.Background(), editor, domain.CaseStudyInput{Title: "A"})
	require.NoError(t, err)
	assert.Equal(t, "A", result.CaseStudy.Title)
	assert.Equal(t, 3, repo.gets)
}

func TestConfirmFailsWithUnconfirmedWrite(t *testing.T) {
	repo := newMockRepo()
	repo.getHook = func(ctx context.Context, call int, cs domain.CaseStudy, ok bool) (domain.CaseStudy, error) {
		cs.Title = "stale"
		return cs, nil
	}
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))

	_, err := uc.Create(context.Background(), editor, domain.CaseStudyInput{Title: "A"})
	assert.ErrorIs(t, err, domain.ErrUnconfirmedWrite)
	assert.Equal(t, 3, repo.gets)
}

func TestConfirmHonoursTimeout(t *testing.T) {
	repo := newMockRepo()
	repo.getHook = func(ctx context.Context, call int, cs domain.CaseStudy, ok bool) (domain.CaseStudy, error) {
		<-ctx.Done()
		return domain.CaseStudy{}, domain.StorageError{Op: "get", Cause: ctx.Err()}
	}
	opts := fastOptions()
	opts.ConfirmAttempts = 100
	opts.ConfirmTimeout = 50 * time.Millisecond
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(opts))

	start := time.Now()
	_, err := uc.Create(context.Background(), editor, domain.CaseStudyInput{Title: "A"})
	assert.ErrorIs(t, err, domain.ErrUnconfirmedWrite)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUpdateDeniedForNonOwner(t *testing.T) {
	repo := newMockRepo()
	repo.put(domain.CaseStudy{ID: "cs", OwnerID: editor.ID, Title: "A", Status: domain.StatusPublished})
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))
	ctx := context.Background()

	_, err := uc.Update(ctx, other, "cs", domain.CaseStudyPatch{Title: ptr("B")}, nil)
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	assert.Zero(t, repo.updates)

	result, err := uc.Update(ctx, admin, "cs", domain.CaseStudyPatch{Title: ptr("B")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "B", result.CaseStudy.Title)
}

func TestUpdateValidation(t *testing.T) {
	repo := newMockRepo()
	repo.put(domain.CaseStudy{ID: "cs", OwnerID: editor.ID, Title: "A"})
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))

	_, err := uc.Update(context.Background(), editor, "cs", domain.CaseStudyPatch{Title: ptr(" ")}, nil)
	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)
	assert.Zero(t, repo.updates)
}

func TestUpdateMissing(t *testing.T) {
	uc := NewCaseStudyUsecase(newMockRepo(), WithWriteOptions(fastOptions()))
	_, err := uc.Update(context.Background(), editor, "missing", domain.CaseStudyPatch{Title: ptr("B")}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo := newMockRepo()
	repo.put(domain.CaseStudy{ID: "cs", OwnerID: editor.ID, Title: "A"})
	notifier := &mockNotifier{}
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()), WithNotifier(notifier))
	ctx := context.Background()

	var ve domain.ValidationError
	require.ErrorAs(t, uc.Delete(ctx, editor, "cs", false), &ve)
	assert.Equal(t, "confirmed", ve.Field)

	assert.ErrorIs(t, uc.Delete(ctx, other, "cs", true), domain.ErrAuthorization)

	require.NoError(t, uc.Delete(ctx, editor, "cs", true))
	require.NoError(t, uc.Delete(ctx, editor, "cs", true))
	require.NoError(t, uc.Delete(ctx, other, "never-existed", true))

	require.Len(t, notifier.events, 1)
	assert.Equal(t, domain.ChangeDeleted, notifier.events[0].Type)
}

func TestGetAppliesReadPolicy(t *testing.T) {
	repo := newMockRepo()
	repo.put(domain.CaseStudy{ID: "draft", OwnerID: editor.ID, Title: "D", Status: domain.StatusDraft})
	repo.put(domain.CaseStudy{ID: "pub", OwnerID: editor.ID, Title: "P", Status: domain.StatusPublished})
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))
	ctx := context.Background()

	_, err := uc.Get(ctx, other, "draft")
	assert.ErrorIs(t, err, domain.ErrAuthorization)
	_, err = uc.Get(ctx, domain.Anonymous, "draft")
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	cs, err := uc.Get(ctx, editor, "draft")
	require.NoError(t, err)
	assert.Equal(t, "D", cs.Title)

	cs, err = uc.Get(ctx, admin, "draft")
	require.NoError(t, err)
	assert.Equal(t, "D", cs.Title)

	cs, err = uc.Get(ctx, domain.Anonymous, "pub")
	require.NoError(t, err)
	assert.Equal(t, "P", cs.Title)

	_, err = uc.Get(ctx, editor, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAndSearchHideDrafts(t *testing.T) {
	repo := newMockRepo()
	repo.put(domain.CaseStudy{ID: "draft", OwnerID: editor.ID, Title: "D", Status: domain.StatusDraft})
	repo.put(domain.CaseStudy{ID: "pub", OwnerID: editor.ID, Title: "P", Status: domain.StatusPublished})
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))
	ctx := context.Background()

	list, err := uc.List(ctx, other, domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pub", list[0].ID)

	list, err = uc.List(ctx, editor, domain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	hits, err := uc.Search(ctx, domain.Anonymous, "anything", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "pub", hits[0].CaseStudy.ID)

	_, err = uc.Search(ctx, editor, "  ", 10)
	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "q", ve.Field)
}

func TestRebuildSearchIndexIsAdminOnly(t *testing.T) {
	uc := NewCaseStudyUsecase(newMockRepo(), WithWriteOptions(fastOptions()))
	ctx := context.Background()

	_, err := uc.RebuildSearchIndex(ctx, editor)
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	_, err = uc.RebuildSearchIndex(ctx, admin)
	assert.NoError(t, err)
}

func TestWritesPublishChangeEvents(t *testing.T) {
	notifier := &mockNotifier{}
	uc := NewCaseStudyUsecase(newMockRepo(), WithWriteOptions(fastOptions()), WithNotifier(notifier))
	ctx := context.Background()

	created, err := uc.Create(ctx, editor, domain.CaseStudyInput{Title: "A"})
	require.NoError(t, err)
	_, err = uc.Update(ctx, editor, created.CaseStudy.ID, domain.CaseStudyPatch{Title: ptr("B")}, nil)
	require.NoError(t, err)

	require.Len(t, notifier.events, 2)
	assert.Equal(t, domain.ChangeCreated, notifier.events[0].Type)
	assert.Equal(t, 1, notifier.events[0].Version)
	assert.Equal(t, domain.ChangeUpdated, notifier.events[1].Type)
	assert.Equal(t, 2, notifier.events[1].Version)
	assert.Equal(t, created.CaseStudy.ID, notifier.events[1].ID)
}

func TestRecordView(t *testing.T) {
	repo := newMockRepo()
	repo.put(domain.CaseStudy{ID: "pub", OwnerID: editor.ID, Status: domain.StatusPublished})
	repo.put(domain.CaseStudy{ID: "draft", OwnerID: editor.ID, Status: domain.StatusDraft})
	uc := NewCaseStudyUsecase(repo, WithWriteOptions(fastOptions()))
	ctx := context.Background()

	require.NoError(t, uc.RecordView(ctx, domain.Anonymous, "pub"))
	assert.Equal(t, int64(1), repo.stored["pub"].ViewCount)

	assert.ErrorIs(t, uc.RecordView(ctx, domain.Anonymous, "draft"), domain.ErrAuthorization)
	assert.Zero(t, repo.stored["draft"].ViewCount)
}
