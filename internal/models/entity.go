// Package models contains data structures for the engine's domain models.
package models

import "fmt"

// EntityKind names the table an entity lives in.
type EntityKind string

const (
	KindPost        EntityKind = "posts"
	KindComment     EntityKind = "comments"
	KindProgression EntityKind = "user_progressions"
)

// EntityRef addresses a single stored entity.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.ID)
}

// PostRef returns the reference for a post id.
func PostRef(id string) EntityRef { return EntityRef{Kind: KindPost, ID: id} }

// CommentRef returns the reference for a comment id.
func CommentRef(id string) EntityRef { return EntityRef{Kind: KindComment, ID: id} }

// ProgressionRef returns the reference for a user's progression.
func ProgressionRef(userID string) EntityRef {
	return EntityRef{Kind: KindProgression, ID: userID}
}

// Versioned carries the optimistic concurrency token. Every committed write
// bumps it by one.
type Versioned struct {
	Version int64 `gorm:"not null" json:"version"`
}

// GetVersion returns the stored version.
func (v *Versioned) GetVersion() int64 { return v.Version }

// SetVersion overwrites the stored version.
func (v *Versioned) SetVersion(version int64) { v.Version = version }

// Author is the identity snapshot supplied by the identity provider.
type Author struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarRef string `json:"avatar,omitempty"`
}
