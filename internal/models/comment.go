package models

import "time"

// Comment is either a root comment on a post or a reply to a root comment.
// Use Variant to tell the two apart.
type Comment struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	PostID       string     `gorm:"size:36;not null;index" json:"post_id"`
	ParentID     *string    `gorm:"size:36;index" json:"parent_id,omitempty"`
	AuthorID     string     `gorm:"size:64;not null" json:"author_id"`
	AuthorName   string     `gorm:"size:120" json:"author_name"`
	AuthorAvatar string     `gorm:"size:512" json:"author_avatar,omitempty"`
	Content      string     `gorm:"type:text;not null" json:"content"`
	Likes        LikeSet    `gorm:"serializer:json;type:text" json:"likes"`
	LikeRewarded LikeSet    `gorm:"serializer:json;type:text" json:"-"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    *time.Time `gorm:"autoUpdateTime:false" json:"updated_at,omitempty"`
	Versioned
}

// TableName specifies the table name for GORM
func (Comment) TableName() string {
	return string(KindComment)
}

// Ref returns the store reference of the comment.
func (c *Comment) Ref() EntityRef { return CommentRef(c.ID) }

// SetAuthor copies identity fields onto the comment.
func (c *Comment) SetAuthor(a Author) {
	c.AuthorID = a.ID
	c.AuthorName = a.Name
	c.AuthorAvatar = a.AvatarRef
}

// RootID is the id of a root comment. It is only obtainable from a Root,
// so a reply can never point at another reply.
type RootID struct {
	id string
}

func (r RootID) String() string { return r.id }

// CommentVariant is implemented by Root and Reply only.
type CommentVariant interface {
	Comment() *Comment
	variant()
}

// Root is a top-level comment on a post.
type Root struct {
	c *Comment
}

func (r Root) Comment() *Comment { return r.c }
func (Root) variant()            {}

// ID returns the id that replies attach to.
func (r Root) ID() RootID { return RootID{id: r.c.ID} }

// Reply is a one-level reply to a root comment.
type Reply struct {
	c      *Comment
	Parent RootID
}

func (r Reply) Comment() *Comment { return r.c }
func (Reply) variant()            {}

// Variant classifies the comment by its parent pointer.
func (c *Comment) Variant() CommentVariant {
	if c.ParentID == nil {
		return Root{c: c}
	}
	return Reply{c: c, Parent: RootID{id: *c.ParentID}}
}

// AsRoot returns the comment as a Root if it has no parent.
func AsRoot(c *Comment) (Root, bool) {
	root, ok := c.Variant().(Root)
	return root, ok
}

// AttachTo makes c a reply to root.
func (c *Comment) AttachTo(root RootID) {
	id := root.id
	c.ParentID = &id
}
