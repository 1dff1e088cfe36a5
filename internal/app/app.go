package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"inkforge/internal/store"
	"inkforge/pkg/ai"
	"inkforge/pkg/assets"
	"inkforge/pkg/domain"
	"inkforge/pkg/imagegen"
	"inkforge/pkg/pdftext"
	"inkforge/pkg/storage"
)

const (
	defaultFreeUsageLimit  = 5
	defaultMaxResumeBytes  = 5 << 20
	defaultTitleMaxTokens  = 100
	defaultReviewMaxTokens = 1000
	defaultTemperature     = 0.7

	resumeReviewPrompt = "Review the following resume and provide constructive feedback on its strengths, weaknesses, and areas for improvement. Resume content:\n\n%s"
)

// UsageRecorder writes the free-usage counter back to the billing provider.
type UsageRecorder interface {
	SetFreeUsage(ctx context.Context, userID string, usage int) error
}

// FeedPublisher announces published creations to community-feed consumers.
type FeedPublisher interface {
	PublishCreation(ctx context.Context, c domain.Creation) error
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Plan        UsageRecorder
	TextGen     ai.TextGenerator
	Renderer    imagegen.Renderer
	Assets      assets.Uploader
	Objects     storage.ObjectStore
	Feed        FeedPublisher

	FreeUsageLimit  int
	MaxResumeBytes  int64
	TitleMaxTokens  int
	ReviewMaxTokens int
}

// App is the core application service wiring the action pipeline together.
// Every action follows the same shape: gate on plan/quota, make exactly one
// external gateway call, persist one creation row, then (for count-limited
// actions by free-tier callers) bump the usage counter.
type App struct {
	store    store.Store
	plan     UsageRecorder
	textGen  ai.TextGenerator
	renderer imagegen.Renderer
	assets   assets.Uploader
	objects  storage.ObjectStore
	feed     FeedPublisher

	freeLimit       int
	maxResumeBytes  int64
	titleMaxTokens  int
	reviewMaxTokens int
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Plan == nil {
		return nil, errors.New("plan service required")
	}
	if cfg.TextGen == nil {
		return nil, errors.New("text generator required")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("image renderer required")
	}
	if cfg.Assets == nil {
		return nil, errors.New("asset uploader required")
	}
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	freeLimit := cfg.FreeUsageLimit
	if freeLimit <= 0 {
		freeLimit = defaultFreeUsageLimit
	}
	maxResumeBytes := cfg.MaxResumeBytes
	if maxResumeBytes <= 0 {
		maxResumeBytes = defaultMaxResumeBytes
	}
	titleMaxTokens := cfg.TitleMaxTokens
	if titleMaxTokens <= 0 {
		titleMaxTokens = defaultTitleMaxTokens
	}
	reviewMaxTokens := cfg.ReviewMaxTokens
	if reviewMaxTokens <= 0 {
		reviewMaxTokens = defaultReviewMaxTokens
	}
	return &App{
		store:           dataStore,
		plan:            cfg.Plan,
		textGen:         cfg.TextGen,
		renderer:        cfg.Renderer,
		assets:          cfg.Assets,
		objects:         cfg.Objects,
		feed:            cfg.Feed,
		freeLimit:       freeLimit,
		maxResumeBytes:  maxResumeBytes,
		titleMaxTokens:  titleMaxTokens,
		reviewMaxTokens: reviewMaxTokens,
	}, nil
}

// GenerateArticle produces an article completion with a caller-supplied
// token budget. Count-limited for free-tier callers.
func (a *App) GenerateArticle(ctx context.Context, caller domain.Caller, prompt string, length int) (string, error) {
	if err := a.checkCountedQuota(caller); err != nil {
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidPayload)
	}
	if length <= 0 {
		return "", fmt.Errorf("%w: length must be a positive token budget", ErrInvalidPayload)
	}
	content, err := a.textGen.GenerateText(ctx, prompt, ai.GenerateOptions{
		MaxTokens:   length,
		Temperature: defaultTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate article: %w", err)
	}
	creation := a.newCreation(caller, prompt, content, domain.TypeArticle, false, map[string]string{
		"maxTokens": strconv.Itoa(length),
	})
	if err := a.persist(ctx, caller, creation, true); err != nil {
		return "", err
	}
	return content, nil
}

// GenerateBlogTitle produces a short title completion with a fixed token
// budget. Count-limited for free-tier callers.
func (a *App) GenerateBlogTitle(ctx context.Context, caller domain.Caller, prompt string) (string, error) {
	if err := a.checkCountedQuota(caller); err != nil {
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidPayload)
	}
	content, err := a.textGen.GenerateText(ctx, prompt, ai.GenerateOptions{
		MaxTokens:   a.titleMaxTokens,
		Temperature: defaultTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate blog title: %w", err)
	}
	creation := a.newCreation(caller, prompt, content, domain.TypeBlogTitle, false, nil)
	if err := a.persist(ctx, caller, creation, true); err != nil {
		return "", err
	}
	return content, nil
}

// GenerateImage renders an image from a prompt and uploads it to the asset
// host. Premium-only.
func (a *App) GenerateImage(ctx context.Context, caller domain.Caller, prompt string, publish bool) (string, error) {
	if err := a.requirePremium(caller); err != nil {
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidPayload)
	}
	data, err := a.renderer.Render(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("render image: %w", err)
	}
	url, err := a.assets.Upload(ctx, "generated.png", bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	creation := a.newCreation(caller, prompt, url, domain.TypeImage, publish, nil)
	if err := a.persist(ctx, caller, creation, false); err != nil {
		return "", err
	}
	if publish && a.feed != nil {
		if err := a.feed.PublishCreation(ctx, creation); err != nil {
			slog.Warn("feed publish failed", "creation_id", creation.ID, "err", err)
		}
	}
	return url, nil
}

// RemoveBackground uploads an image with the background-removal transform.
// Premium-only.
func (a *App) RemoveBackground(ctx context.Context, caller domain.Caller, filename string, r io.Reader, size int64) (string, error) {
	if err := a.requirePremium(caller); err != nil {
		return "", err
	}
	data, err := a.readUpload(r, size, "image")
	if err != nil {
		return "", err
	}
	creation := a.newCreation(caller, "Remove background from image", "", domain.TypeImage, false, map[string]string{
		"transform": assets.TransformBackgroundRemoval,
		"filename":  filepath.Base(filename),
	})
	a.archiveOriginal(ctx, creation.ID, filename, data)
	url, err := a.assets.UploadWithTransform(ctx, filename, bytes.NewReader(data), int64(len(data)), assets.TransformBackgroundRemoval)
	if err != nil {
		return "", fmt.Errorf("remove background: %w", err)
	}
	creation.Content = url
	if err := a.persist(ctx, caller, creation, false); err != nil {
		return "", err
	}
	return url, nil
}

// RemoveObject uploads an image and requests an inpainting transform naming
// the target object. The object description is forwarded verbatim.
// Premium-only.
func (a *App) RemoveObject(ctx context.Context, caller domain.Caller, filename string, r io.Reader, size int64, object string) (string, error) {
	if err := a.requirePremium(caller); err != nil {
		return "", err
	}
	if strings.TrimSpace(object) == "" {
		return "", fmt.Errorf("%w: object description is required", ErrInvalidPayload)
	}
	data, err := a.readUpload(r, size, "image")
	if err != nil {
		return "", err
	}
	transform := assets.ObjectRemovalTransform(object)
	creation := a.newCreation(caller, fmt.Sprintf("Removed %s from image", object), "", domain.TypeImage, false, map[string]string{
		"transform": transform,
		"filename":  filepath.Base(filename),
	})
	a.archiveOriginal(ctx, creation.ID, filename, data)
	url, err := a.assets.UploadWithTransform(ctx, filename, bytes.NewReader(data), int64(len(data)), transform)
	if err != nil {
		return "", fmt.Errorf("remove object: %w", err)
	}
	creation.Content = url
	if err := a.persist(ctx, caller, creation, false); err != nil {
		return "", err
	}
	return url, nil
}

// ReviewResume extracts text from an uploaded PDF and asks the completion
// provider for a review. Files over the size ceiling are rejected before
// any extraction is attempted. Premium-only.
func (a *App) ReviewResume(ctx context.Context, caller domain.Caller, filename string, r io.Reader, size int64) (string, error) {
	if err := a.requirePremium(caller); err != nil {
		return "", err
	}
	if r == nil || size <= 0 {
		return "", fmt.Errorf("%w: resume file is required", ErrInvalidPayload)
	}
	if size > a.maxResumeBytes {
		return "", fmt.Errorf("%w: resume file exceeds the 5 MB limit", ErrInvalidPayload)
	}
	data, err := io.ReadAll(io.LimitReader(r, a.maxResumeBytes+1))
	if err != nil {
		return "", fmt.Errorf("read resume: %w", err)
	}
	if int64(len(data)) > a.maxResumeBytes {
		return "", fmt.Errorf("%w: resume file exceeds the 5 MB limit", ErrInvalidPayload)
	}
	creation := a.newCreation(caller, "Review the uploaded resume", "", domain.TypeResumeReview, false, map[string]string{
		"filename": filepath.Base(filename),
	})
	a.archiveOriginal(ctx, creation.ID, filename, data)
	text, err := pdftext.Extract(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse resume: %w", err)
	}
	content, err := a.textGen.GenerateText(ctx, fmt.Sprintf(resumeReviewPrompt, text), ai.GenerateOptions{
		MaxTokens:   a.reviewMaxTokens,
		Temperature: defaultTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("review resume: %w", err)
	}
	creation.Content = content
	if err := a.persist(ctx, caller, creation, false); err != nil {
		return "", err
	}
	return content, nil
}

// ListCreations returns the caller's creations, newest first.
func (a *App) ListCreations(userID string) ([]domain.Creation, error) {
	return a.store.ListCreationsByUser(userID)
}

// ListPublishedCreations returns published image creations for the feed.
func (a *App) ListPublishedCreations() ([]domain.Creation, error) {
	return a.store.ListPublishedCreations()
}

// checkCountedQuota gates count-limited actions: free-tier callers get
// freeLimit actions, premium callers are unlimited.
func (a *App) checkCountedQuota(caller domain.Caller) error {
	if caller.Plan != domain.PlanPremium && caller.FreeUsage >= a.freeLimit {
		return ErrQuotaExceeded
	}
	return nil
}

// requirePremium gates premium-only actions regardless of usage count.
func (a *App) requirePremium(caller domain.Caller) error {
	if caller.Plan != domain.PlanPremium {
		return ErrPremiumRequired
	}
	return nil
}

func (a *App) newCreation(caller domain.Caller, prompt, content string, typ domain.CreationType, publish bool, meta map[string]string) domain.Creation {
	return domain.Creation{
		ID:        uuid.NewString(),
		UserID:    caller.ID,
		Prompt:    prompt,
		Content:   content,
		Type:      typ,
		Publish:   publish,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}
}

// persist writes the creation row, then bumps the usage counter for
// count-limited actions by free-tier callers. The order matters: a failed
// insert must never consume quota.
func (a *App) persist(ctx context.Context, caller domain.Caller, c domain.Creation, counted bool) error {
	if err := a.store.SaveCreation(c); err != nil {
		return fmt.Errorf("save creation: %w", err)
	}
	if counted && caller.Plan != domain.PlanPremium {
		if err := a.plan.SetFreeUsage(ctx, caller.ID, caller.FreeUsage+1); err != nil {
			return fmt.Errorf("update usage: %w", err)
		}
	}
	return nil
}

func (a *App) readUpload(r io.Reader, size int64, field string) ([]byte, error) {
	if r == nil || size <= 0 {
		return nil, fmt.Errorf("%w: %s file is required", ErrInvalidPayload, field)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s file is required", ErrInvalidPayload, field)
	}
	return data, nil
}

// archiveOriginal keeps a copy of the raw upload in object storage when
// configured. Best effort: archival failures never fail the action.
func (a *App) archiveOriginal(ctx context.Context, id, filename string, data []byte) {
	if a.objects == nil {
		return
	}
	ext := strings.ToLower(filepath.Ext(filename))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := "originals/" + id + ext
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		slog.Warn("archive original failed", "key", key, "err", err)
	}
}
