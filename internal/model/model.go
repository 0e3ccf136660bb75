// Package model holds the persisted records of the publishing pipeline and
// the caller identity that flows through it.
package model

import "time"

// Status is the lifecycle state of a Deployment. The only transitions are
// UPLOADING -> ACTIVE -> ARCHIVED.
type Status string

const (
	StatusUploading Status = "UPLOADING"
	StatusActive    Status = "ACTIVE"
	StatusArchived  Status = "ARCHIVED"
)

// Account is a tenant. Sites live under its profile slug.
type Account struct {
	ID            string
	ProfileSlug   string
	DisplayName   string
	DeactivatedAt *time.Time
}

func (a Account) Deactivated() bool { return a.DeactivatedAt != nil }

// Site is a named collection of deployments, unique per (OwnerID, Slug).
// ActiveDeploymentID is the single source of truth for what is served.
type Site struct {
	ID                 string
	OwnerID            string
	Slug               string
	Name               string
	ActiveDeploymentID *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Deployment is one immutable upload of a site's files under Prefix.
type Deployment struct {
	ID              string
	SiteID          string
	DeploymentKey   string
	Prefix          string
	Status          Status
	FileCount       *int
	TotalBytes      *int64
	PublishRecordID *string
	CreatedAt       time.Time
	ActivatedAt     *time.Time
}

// PublishSession is a bearer credential issued to an account. Only the
// SHA-256 of the token is stored.
type PublishSession struct {
	ID         string
	UserID     string
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastUsedAt *time.Time
}

// ValidAt reports whether the session can authenticate at now.
func (s PublishSession) ValidAt(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// PublishRecord is the feed entry written when a deployment goes live.
type PublishRecord struct {
	ID           string
	AuthorID     string
	SiteID       string
	DeploymentID string
	URL          string
	CreatedAt    time.Time
}

// ActiveSite is the read model used when serving: where the live files of
// one site are stored.
type ActiveSite struct {
	OwnerSlug     string
	SiteSlug      string
	DeploymentID  string
	DeploymentKey string
	Prefix        string
}

// ActorKind tags who is calling the publish API.
type ActorKind uint8

const (
	ActorUser ActorKind = iota + 1
	ActorService
)

func (k ActorKind) String() string {
	switch k {
	case ActorUser:
		return "user"
	case ActorService:
		return "service"
	default:
		return "unknown"
	}
}

// Actor is the authenticated caller. UserID and ProfileSlug are only set
// for ActorUser.
type Actor struct {
	Kind        ActorKind
	UserID      string
	ProfileSlug string
}

// OwnerContext is the tenant a publish operation acts on.
type OwnerContext struct {
	OwnerID     string
	ProfileSlug string
}
