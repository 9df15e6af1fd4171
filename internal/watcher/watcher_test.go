package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestEventTypeFromOp(t *testing.T) {
	assert.Equal(t, EventTypeCreated, eventType(fsnotify.Create|fsnotify.Write))
	assert.Equal(t, EventTypeModified, eventType(fsnotify.Write))
	assert.Equal(t, EventTypeDeleted, eventType(fsnotify.Remove))
	assert.Equal(t, EventTypeRenamed, eventType(fsnotify.Rename))
	assert.Equal(t, EventTypeModified, eventType(fsnotify.Chmod))
}

func TestTemplateFilter(t *testing.T) {
	assert.True(t, TemplateFilter("a/page.tt"))
	assert.True(t, TemplateFilter("shared.TTINCLUDE"))
	assert.True(t, TemplateFilter("x.t4"))
	assert.False(t, TemplateFilter("main.go"))
}

func TestDebouncerGroupsByPath(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	d.add(ChangeEvent{Type: EventTypeCreated, Path: "/b"})
	d.add(ChangeEvent{Type: EventTypeModified, Path: "/a"})
	d.add(ChangeEvent{Type: EventTypeModified, Path: "/b"})

	select {
	case events := <-d.output:
		assert.Equal(t, []ChangeEvent{
			{Type: EventTypeModified, Path: "/a"},
			{Type: EventTypeModified, Path: "/b"},
		}, events)
	case <-time.After(2 * time.Second):
		t.Fatal("debounced events were not delivered")
	}
}

func TestWatchIgnoresUnwatchedFiles(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "page.tt")
	require.NoError(t, os.WriteFile(tmpl, []byte("a"), 0o644))

	w, err := New(20*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.Watch(tmpl, tmpl))
	assert.Len(t, w.Files(), 1)

	changes := make(chan []ChangeEvent, 4)
	w.OnChange(func(_ context.Context, events []ChangeEvent) error {
		changes <- events
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(tmpl, []byte("b"), 0o644))

	select {
	case events := <-changes:
		require.NotEmpty(t, events)
		for _, e := range events {
			assert.Equal(t, w.Files()[0], e.Path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	assert.NoError(t, <-done)
}
