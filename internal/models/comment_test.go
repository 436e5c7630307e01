package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComment_Variant(t *testing.T) {
	t.Parallel()

	root := &Comment{ID: "c1", PostID: "p1"}
	r, ok := AsRoot(root)
	require.True(t, ok)
	assert.Equal(t, "c1", r.ID().String())
	assert.Same(t, root, r.Comment())

	reply := &Comment{ID: "c2", PostID: "p1"}
	reply.AttachTo(r.ID())
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, "c1", *reply.ParentID)

	v, ok := reply.Variant().(Reply)
	require.True(t, ok)
	assert.Equal(t, "c1", v.Parent.String())

	_, ok = AsRoot(reply)
	assert.False(t, ok, "a reply cannot be used as a parent")
}

func TestAppError(t *testing.T) {
	t.Parallel()

	err := NewConflictError("busy", assert.AnError)
	assert.True(t, IsCode(err, CodeConflict))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "busy")

	nf := NewNotFoundError("Post", "p1")
	assert.Equal(t, "Post with ID p1 not found", nf.Error())
}
