package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebook/api/internal/syncclient"
)

func TestParseMove(t *testing.T) {
	move, err := parseMove([]string{"Page", "pg_1", "2"}, "")
	require.NoError(t, err)
	assert.Equal(t, syncclient.Move{ID: "pg_1", Type: "page", Position: 2}, move)
	assert.Nil(t, move.ParentID)

	move, err = parseMove([]string{"folder", "fd_2", "0"}, "fd_1")
	require.NoError(t, err)
	require.NotNil(t, move.ParentID)
	assert.Equal(t, "fd_1", *move.ParentID)

	_, err = parseMove([]string{"note", "x", "0"}, "")
	assert.Error(t, err)
	_, err = parseMove([]string{"page", "x", "-1"}, "")
	assert.Error(t, err)
}

func TestRenderTree(t *testing.T) {
	var buf bytes.Buffer
	renderTree(&buf, []syncclient.TreeNode{
		{ID: "fd_1", Type: "folder", Name: "Work", Children: []syncclient.TreeNode{
			{ID: "pg_1", Type: "page", Name: "Plan", Position: 0},
		}},
		{ID: "pg_2", Type: "page", Name: "Inbox", Position: 0},
	})
	assert.Equal(t, "+ Work  (fd_1 #0)\n  - Plan  (pg_1 #0)\n- Inbox  (pg_2 #0)\n", buf.String())

	buf.Reset()
	renderTree(&buf, nil)
	assert.Equal(t, "(empty)\n", buf.String())
}

func TestWatchOptions(t *testing.T) {
	opts, err := watchOptions("5s", "2s", "250ms")
	require.NoError(t, err)
	assert.True(t, opts.Immediate)
	assert.Equal(t, "250ms", opts.Debounce.String())

	_, err = watchOptions("soon", "2s", "1s")
	assert.Error(t, err)
}
