package models

import "time"

// Post is a feed entry. CommentCount is denormalized and kept in step with
// the comments table by the content service and the repair job.
type Post struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	AuthorID     string     `gorm:"size:64;not null;index" json:"author_id"`
	AuthorName   string     `gorm:"size:120" json:"author_name"`
	AuthorAvatar string     `gorm:"size:512" json:"author_avatar,omitempty"`
	Content      string     `gorm:"type:text;not null" json:"content"`
	ImageRefs    []string   `gorm:"serializer:json;type:text" json:"image_refs"`
	Likes        LikeSet    `gorm:"serializer:json;type:text" json:"likes"`
	LikeRewarded LikeSet    `gorm:"serializer:json;type:text" json:"-"`
	CommentCount int        `gorm:"not null;default:0" json:"comment_count"`
	CreatedAt    time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt    *time.Time `gorm:"autoUpdateTime:false" json:"updated_at,omitempty"`
	Versioned
}

// TableName specifies the table name for GORM
func (Post) TableName() string {
	return string(KindPost)
}

// Ref returns the store reference of the post.
func (p *Post) Ref() EntityRef { return PostRef(p.ID) }

// SetAuthor copies identity fields onto the post.
func (p *Post) SetAuthor(a Author) {
	p.AuthorID = a.ID
	p.AuthorName = a.Name
	p.AuthorAvatar = a.AvatarRef
}
