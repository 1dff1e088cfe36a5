package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"inkforge/internal/store"
	"inkforge/pkg/ai"
	"inkforge/pkg/domain"
)

type fakePlan struct {
	mu       sync.Mutex
	setCalls []int
	lastUser string
	err      error
}

func (f *fakePlan) SetFreeUsage(_ context.Context, userID string, usage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.setCalls = append(f.setCalls, usage)
	f.lastUser = userID
	return nil
}

func (f *fakePlan) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.setCalls...)
}

type fakeTextGen struct {
	calls      int
	lastPrompt string
	lastOpts   ai.GenerateOptions
	reply      string
	err        error
}

func (f *fakeTextGen) GenerateText(_ context.Context, prompt string, opts ai.GenerateOptions) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	f.lastOpts = opts
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeRenderer struct {
	calls int
	data  []byte
	err   error
}

func (f *fakeRenderer) Render(context.Context, string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeUploader struct {
	calls         int
	lastFilename  string
	lastTransform string
	url           string
	err           error
}

func (f *fakeUploader) Upload(_ context.Context, filename string, _ io.Reader, _ int64) (string, error) {
	f.calls++
	f.lastFilename = filename
	f.lastTransform = ""
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func (f *fakeUploader) UploadWithTransform(_ context.Context, filename string, _ io.Reader, _ int64, transform string) (string, error) {
	f.calls++
	f.lastFilename = filename
	f.lastTransform = transform
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeFeed struct {
	calls int
	last  domain.Creation
}

func (f *fakeFeed) PublishCreation(_ context.Context, c domain.Creation) error {
	f.calls++
	f.last = c
	return nil
}

type failingStore struct{}

func (failingStore) SaveCreation(domain.Creation) error { return errors.New("insert failed") }
func (failingStore) ListCreationsByUser(string) ([]domain.Creation, error) {
	return nil, nil
}
func (failingStore) ListPublishedCreations() ([]domain.Creation, error) {
	return nil, nil
}

type testDeps struct {
	store    *store.MemoryStore
	plan     *fakePlan
	textGen  *fakeTextGen
	renderer *fakeRenderer
	uploader *fakeUploader
	feed     *fakeFeed
}

func newTestApp(t *testing.T, mutate func(*Config)) (*App, *testDeps) {
	t.Helper()
	deps := &testDeps{
		store:    store.NewMemoryStore(),
		plan:     &fakePlan{},
		textGen:  &fakeTextGen{reply: "generated text"},
		renderer: &fakeRenderer{data: []byte("png-bytes")},
		uploader: &fakeUploader{url: "https://cdn.example.com/asset.png"},
		feed:     &fakeFeed{},
	}
	cfg := Config{
		Store:    deps.store,
		Plan:     deps.plan,
		TextGen:  deps.textGen,
		Renderer: deps.renderer,
		Assets:   deps.uploader,
		Feed:     deps.feed,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, deps
}

func freeCaller(usage int) domain.Caller {
	return domain.Caller{ID: "user-1", Plan: domain.PlanFree, FreeUsage: usage}
}

func premiumCaller() domain.Caller {
	return domain.Caller{ID: "user-premium", Plan: domain.PlanPremium}
}

func TestGenerateArticleQuotaExceeded(t *testing.T) {
	a, deps := newTestApp(t, nil)
	_, err := a.GenerateArticle(context.Background(), freeCaller(5), "write about Go", 800)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if deps.textGen.calls != 0 {
		t.Fatalf("text generator called %d times, want 0", deps.textGen.calls)
	}
	if rows := deps.store.Creations(); len(rows) != 0 {
		t.Fatalf("creations = %d, want 0", len(rows))
	}
	if calls := deps.plan.calls(); len(calls) != 0 {
		t.Fatalf("usage updates = %d, want 0", len(calls))
	}
}

func TestGenerateArticleSuccessIncrementsUsage(t *testing.T) {
	a, deps := newTestApp(t, nil)
	content, err := a.GenerateArticle(context.Background(), freeCaller(4), "write about Go", 800)
	if err != nil {
		t.Fatalf("generate article: %v", err)
	}
	if content != "generated text" {
		t.Fatalf("content = %q, want %q", content, "generated text")
	}
	rows := deps.store.Creations()
	if len(rows) != 1 {
		t.Fatalf("creations = %d, want 1", len(rows))
	}
	if rows[0].Type != domain.TypeArticle {
		t.Fatalf("type = %q, want %q", rows[0].Type, domain.TypeArticle)
	}
	if rows[0].UserID != "user-1" {
		t.Fatalf("user id = %q, want %q", rows[0].UserID, "user-1")
	}
	if calls := deps.plan.calls(); len(calls) != 1 || calls[0] != 5 {
		t.Fatalf("usage updates = %v, want [5]", calls)
	}
	if deps.textGen.lastOpts.MaxTokens != 800 {
		t.Fatalf("max tokens = %d, want 800", deps.textGen.lastOpts.MaxTokens)
	}
}

func TestGenerateArticlePremiumSkipsCounter(t *testing.T) {
	a, deps := newTestApp(t, nil)
	if _, err := a.GenerateArticle(context.Background(), premiumCaller(), "prompt", 500); err != nil {
		t.Fatalf("generate article: %v", err)
	}
	if calls := deps.plan.calls(); len(calls) != 0 {
		t.Fatalf("usage updates = %v, want none for premium", calls)
	}
}

func TestGenerateArticleNoDeduplication(t *testing.T) {
	a, deps := newTestApp(t, nil)
	for i := 0; i < 2; i++ {
		if _, err := a.GenerateArticle(context.Background(), freeCaller(0), "same prompt", 100); err != nil {
			t.Fatalf("generate article #%d: %v", i+1, err)
		}
	}
	if rows := deps.store.Creations(); len(rows) != 2 {
		t.Fatalf("creations = %d, want 2 (identical requests never deduplicate)", len(rows))
	}
	if calls := deps.plan.calls(); len(calls) != 2 {
		t.Fatalf("usage updates = %d, want 2", len(calls))
	}
}

func TestGenerateArticleFailedInsertSkipsIncrement(t *testing.T) {
	a, deps := newTestApp(t, func(cfg *Config) {
		cfg.Store = failingStore{}
	})
	_, err := a.GenerateArticle(context.Background(), freeCaller(0), "prompt", 100)
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if calls := deps.plan.calls(); len(calls) != 0 {
		t.Fatalf("usage updates = %v, want none after failed insert", calls)
	}
}

func TestGenerateBlogTitleUsesFixedBudget(t *testing.T) {
	a, deps := newTestApp(t, func(cfg *Config) {
		cfg.TitleMaxTokens = 64
	})
	if _, err := a.GenerateBlogTitle(context.Background(), freeCaller(0), "gopher blog"); err != nil {
		t.Fatalf("generate blog title: %v", err)
	}
	if deps.textGen.lastOpts.MaxTokens != 64 {
		t.Fatalf("max tokens = %d, want fixed 64", deps.textGen.lastOpts.MaxTokens)
	}
	rows := deps.store.Creations()
	if len(rows) != 1 || rows[0].Type != domain.TypeBlogTitle {
		t.Fatalf("expected one blog-title creation, got %v", rows)
	}
}

func TestGenerateImageRequiresPremium(t *testing.T) {
	a, deps := newTestApp(t, nil)
	_, err := a.GenerateImage(context.Background(), freeCaller(0), "a gopher", false)
	if !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("err = %v, want ErrPremiumRequired", err)
	}
	if deps.renderer.calls != 0 {
		t.Fatalf("renderer called %d times, want 0", deps.renderer.calls)
	}
	if rows := deps.store.Creations(); len(rows) != 0 {
		t.Fatalf("creations = %d, want 0", len(rows))
	}
}

func TestGenerateImagePersistsPublishFlag(t *testing.T) {
	a, deps := newTestApp(t, nil)
	url, err := a.GenerateImage(context.Background(), premiumCaller(), "a gopher", false)
	if err != nil {
		t.Fatalf("generate image: %v", err)
	}
	if url != deps.uploader.url {
		t.Fatalf("url = %q, want %q", url, deps.uploader.url)
	}
	rows := deps.store.Creations()
	if len(rows) != 1 || rows[0].Publish {
		t.Fatalf("expected one unpublished image creation, got %v", rows)
	}
	if deps.feed.calls != 0 {
		t.Fatalf("feed publish calls = %d, want 0 for unpublished image", deps.feed.calls)
	}
}

func TestGenerateImagePublishEmitsFeedEvent(t *testing.T) {
	a, deps := newTestApp(t, nil)
	if _, err := a.GenerateImage(context.Background(), premiumCaller(), "a gopher", true); err != nil {
		t.Fatalf("generate image: %v", err)
	}
	rows := deps.store.Creations()
	if len(rows) != 1 || !rows[0].Publish {
		t.Fatalf("expected one published image creation, got %v", rows)
	}
	if deps.feed.calls != 1 {
		t.Fatalf("feed publish calls = %d, want 1", deps.feed.calls)
	}
	if deps.feed.last.ID != rows[0].ID {
		t.Fatalf("feed event creation id = %q, want %q", deps.feed.last.ID, rows[0].ID)
	}
}

func TestRemoveObjectForwardsDescriptionVerbatim(t *testing.T) {
	a, deps := newTestApp(t, nil)
	object := "the red car, rear wheel & shadow"
	_, err := a.RemoveObject(context.Background(), premiumCaller(), "photo.png", bytes.NewReader([]byte("img")), 3, object)
	if err != nil {
		t.Fatalf("remove object: %v", err)
	}
	want := "gen_remove:prompt_" + object
	if deps.uploader.lastTransform != want {
		t.Fatalf("transform = %q, want %q (unescaped)", deps.uploader.lastTransform, want)
	}
}

func TestRemoveObjectRequiresDescription(t *testing.T) {
	a, deps := newTestApp(t, nil)
	_, err := a.RemoveObject(context.Background(), premiumCaller(), "photo.png", bytes.NewReader([]byte("img")), 3, "  ")
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
	if deps.uploader.calls != 0 {
		t.Fatalf("uploader called %d times, want 0", deps.uploader.calls)
	}
}

func TestRemoveBackgroundUsesTransform(t *testing.T) {
	a, deps := newTestApp(t, nil)
	url, err := a.RemoveBackground(context.Background(), premiumCaller(), "photo.jpg", bytes.NewReader([]byte("img")), 3)
	if err != nil {
		t.Fatalf("remove background: %v", err)
	}
	if url != deps.uploader.url {
		t.Fatalf("url = %q, want %q", url, deps.uploader.url)
	}
	if deps.uploader.lastTransform != "background_removal" {
		t.Fatalf("transform = %q, want background_removal", deps.uploader.lastTransform)
	}
	rows := deps.store.Creations()
	if len(rows) != 1 || rows[0].Type != domain.TypeImage {
		t.Fatalf("expected one image creation, got %v", rows)
	}
}

func TestReviewResumeRejectsOversizedFileBeforeExtraction(t *testing.T) {
	a, deps := newTestApp(t, nil)
	size := int64(6 << 20)
	_, err := a.ReviewResume(context.Background(), premiumCaller(), "resume.pdf", bytes.NewReader(make([]byte, 64)), size)
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
	if !strings.Contains(err.Error(), "5 MB") {
		t.Fatalf("err = %q, want size limit message", err)
	}
	if deps.textGen.calls != 0 {
		t.Fatalf("text generator called %d times, want 0", deps.textGen.calls)
	}
	if rows := deps.store.Creations(); len(rows) != 0 {
		t.Fatalf("creations = %d, want 0", len(rows))
	}
}

func TestReviewResumeRequiresPremium(t *testing.T) {
	a, _ := newTestApp(t, nil)
	_, err := a.ReviewResume(context.Background(), freeCaller(0), "resume.pdf", bytes.NewReader([]byte("pdf")), 3)
	if !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("err = %v, want ErrPremiumRequired", err)
	}
}

func TestQuotaFailureIsUpstreamWhenCounterUpdateFails(t *testing.T) {
	a, deps := newTestApp(t, func(cfg *Config) {
		cfg.Plan = &fakePlan{err: errors.New("provider down")}
	})
	_, err := a.GenerateArticle(context.Background(), freeCaller(0), "prompt", 100)
	if err == nil || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want plain upstream failure", err)
	}
	// The row stays: a failed increment after a successful persist leaves
	// state inconsistent in favor of the user.
	if rows := deps.store.Creations(); len(rows) != 1 {
		t.Fatalf("creations = %d, want 1", len(rows))
	}
}
