package domain

import "time"

type CreationType string

const (
	TypeArticle      CreationType = "article"
	TypeBlogTitle    CreationType = "blog-title"
	TypeImage        CreationType = "image"
	TypeResumeReview CreationType = "resume-review"
)

type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanPremium PlanTier = "premium"
)

// Creation is one persisted record of a completed AI action. Rows are
// immutable once written: there is no update or delete path.
type Creation struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Prompt    string            `json:"prompt"`
	Content   string            `json:"content"`
	Type      CreationType      `json:"type"`
	Publish   bool              `json:"publish"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Caller describes the authenticated subscriber behind a request.
// Middleware builds it once per request; it is passed by value and
// never mutated afterwards.
type Caller struct {
	ID        string
	Plan      PlanTier
	FreeUsage int
}

// Subscriber is the plan metadata held by the billing provider.
type Subscriber struct {
	Plan      PlanTier `json:"plan"`
	FreeUsage int      `json:"freeUsage"`
}
