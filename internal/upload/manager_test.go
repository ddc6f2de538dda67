package upload

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(&fakeSender{chunk: 3}, time.Second)

	a := NewUploadableFile(context.Background(), "a", "a.pdf", 9, strings.NewReader("123456789"))
	b := NewUploadableFile(context.Background(), "b", "b.epub", 4, strings.NewReader("abcd"))
	require.NoError(t, m.Add(a))
	require.NoError(t, m.Add(b))
	assert.ErrorIs(t, m.Add(a), ErrDuplicateUpload)

	e, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, StatusPending, e.State.Status)
	assert.False(t, e.Finished())

	_, err := m.Start("a", nil)
	require.NoError(t, err)
	_, err = m.Start("a", nil)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	_, err = m.Start("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownUpload)

	m.Wait()

	e, ok = m.Get("a")
	require.True(t, ok)
	assert.True(t, e.Finished())
	assert.Equal(t, StatusUploaded, e.State.Status)
	assert.Equal(t, int64(9), e.State.UploadedSize)
	assert.Empty(t, e.Error)
	require.Len(t, e.Documents, 1)

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, StatusPending, list[1].State.Status)
}

func TestManager_AbortRecordsError(t *testing.T) {
	m := NewManager(&fakeSender{block: true}, time.Minute)

	f := NewUploadableFile(context.Background(), "x", "x.pdf", 5, strings.NewReader("12345"))
	require.NoError(t, m.Add(f))
	_, err := m.Start("x", nil)
	require.NoError(t, err)

	require.NoError(t, m.Abort("x"))
	assert.ErrorIs(t, m.Abort("nope"), ErrUnknownUpload)
	m.Wait()

	e, _ := m.Get("x")
	assert.True(t, e.Finished())
	assert.Contains(t, e.Error, "context canceled")
	assert.Equal(t, StatusUploading, e.State.Status)
}

func TestManager_CleanupFinished(t *testing.T) {
	m := NewManager(&fakeSender{chunk: 1}, time.Second)

	f := NewUploadableFile(context.Background(), "1", "1.pdf", 1, strings.NewReader("1"))
	require.NoError(t, m.Add(f))
	_, err := m.Start("1", nil)
	require.NoError(t, err)
	m.Wait()

	assert.Equal(t, 0, m.CleanupFinished(time.Hour))
	assert.Equal(t, 1, m.CleanupFinished(-time.Second))
	_, ok := m.Get("1")
	assert.False(t, ok)
}

func TestManager_AbortBeforeStart(t *testing.T) {
	m := NewManager(&fakeSender{block: true}, time.Minute)

	f := &UploadableFile{ID: "q", Name: "q.pdf", Size: 5, Content: strings.NewReader("12345")}
	require.NoError(t, m.Add(f))
	require.NotNil(t, f.Handle)

	require.NoError(t, m.Abort("q"))
	assert.True(t, f.Handle.Aborted())

	tr, err := m.Start("q", nil)
	require.NoError(t, err)
	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("aborted upload kept running")
	}
	_, err = tr.Wait()
	assert.ErrorIs(t, err, context.Canceled)

	m.Wait()
	e, _ := m.Get("q")
	assert.Contains(t, e.Error, "context canceled")
}
