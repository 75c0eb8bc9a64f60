//go:build unix

package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/xing15037290/uxmpp-sub000/pkg/ioreactor"
)

func newReactor(t *testing.T) *ioreactor.Reactor {
	r, err := ioreactor.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestFDConnDefaultCallbacks(t *testing.T) {
	r := newReactor(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])

	c, err := NewFDConn(r, fds[0], nil)
	require.NoError(t, err)
	defer c.Close()

	rx := make(chan string, 1)
	tx := make(chan int, 1)
	c.SetRxCallback(func(op *ioreactor.Operation) { rx <- string(op.Data()) })
	c.SetTxCallback(func(op *ioreactor.Operation) { tx <- op.Offset })

	require.NoError(t, c.Write([]byte("out"), nil))
	select {
	case n := <-tx:
		assert.Equal(t, 3, n)
	case <-time.After(2 * time.Second):
		t.Fatal("tx callback not called")
	}

	require.NoError(t, c.Read(make([]byte, 8), nil))
	_, err = unix.Write(fds[1], []byte("in"))
	require.NoError(t, err)
	select {
	case s := <-rx:
		assert.Equal(t, "in", s)
	case <-time.After(2 * time.Second):
		t.Fatal("rx callback not called")
	}
}

func TestFDConnExplicitCallbackWins(t *testing.T) {
	r := newReactor(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])

	c, err := NewFDConn(r, fds[0], nil)
	require.NoError(t, err)
	defer c.Close()

	c.SetTxCallback(func(*ioreactor.Operation) { t.Error("default tx callback used") })
	done := make(chan struct{})
	require.NoError(t, c.Write([]byte("x"), func(*ioreactor.Operation) { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write did not complete")
	}
}

func TestFDConnClose(t *testing.T) {
	r := newReactor(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])

	c, err := NewFDConn(r, fds[0], nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, -1, c.FD())
	assert.Equal(t, ioreactor.ErrNotRegistered, c.Read(make([]byte, 1), nil))
}
