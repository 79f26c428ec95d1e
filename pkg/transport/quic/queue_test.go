package quic

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/quic-http-go/pkg/errors"
)

func TestChunkQueue_ReadsChunksInOrder(t *testing.T) {
	q := newChunkQueue()
	require.NoError(t, q.push("r1", []byte("hello "), false))
	require.NoError(t, q.push("r1", []byte("world"), true))

	body, err := io.ReadAll(q)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
}

func TestChunkQueue_ShortReadKeepsRemainder(t *testing.T) {
	q := newChunkQueue()
	require.NoError(t, q.push("r1", []byte("abcdef"), true))

	buf := make([]byte, 4)
	n, err := q.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))

	n, err = q.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ef", string(buf[:n]))

	_, err = q.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestChunkQueue_PushCopiesData(t *testing.T) {
	q := newChunkQueue()
	data := []byte("abc")
	require.NoError(t, q.push("r1", data, true))
	data[0] = 'x'

	body, err := io.ReadAll(q)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(body))
}

func TestChunkQueue_ReadBlocksUntilPush(t *testing.T) {
	q := newChunkQueue()
	got := make(chan string, 1)

	go func() {
		body, _ := io.ReadAll(q)
		got <- string(body)
	}()

	select {
	case <-got:
		t.Fatal("read returned before fin")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.push("r1", []byte("late"), false))
	require.NoError(t, q.push("r1", nil, true))

	select {
	case body := <-got:
		assert.Equal(t, "late", body)
	case <-time.After(time.Second):
		t.Fatal("reader not released")
	}
}

func TestChunkQueue_PushAfterFin(t *testing.T) {
	q := newChunkQueue()
	require.NoError(t, q.push("r1", nil, true))

	err := q.push("r1", []byte("more"), false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeWriteAfterFin))
}

func TestChunkQueue_CloseReleasesReader(t *testing.T) {
	q := newChunkQueue()
	done := make(chan error, 1)
	go func() {
		_, err := q.Read(make([]byte, 8))
		done <- err
	}()

	q.close()

	select {
	case err := <-done:
		assert.Equal(t, io.ErrUnexpectedEOF, err)
	case <-time.After(time.Second):
		t.Fatal("reader not released by close")
	}

	err := q.push("r1", []byte("x"), false)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStreamClosed))
}
