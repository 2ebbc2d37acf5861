package notify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/torqlist/leadgate/internal/signup"
)

type fakeAdmin struct {
	calls atomic.Int64
	err   error
}

func (f *fakeAdmin) NotifyAdmin(_ context.Context, _ signup.Stored) error {
	f.calls.Add(1)
	return f.err
}

type fakeAck struct {
	calls atomic.Int64
	err   error
}

func (f *fakeAck) SendAck(_ context.Context, _ signup.Stored) error {
	f.calls.Add(1)
	return f.err
}

func stored() signup.Stored {
	return signup.Stored{ID: "id-1", Record: signup.Record{Email: "a@b.com", Role: "buyer", Source: "landing"}}
}

func TestDispatchCallsBothChannels(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{}
	ack := &fakeAck{}
	d := NewDispatcher(admin, ack, time.Second, zap.NewNop())

	d.Dispatch(context.Background(), stored())

	require.Equal(t, int64(1), admin.calls.Load())
	require.Equal(t, int64(1), ack.calls.Load())
}

func TestDispatchFailuresAreIndependent(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{err: errors.New("topic gone")}
	ack := &fakeAck{}
	d := NewDispatcher(admin, ack, time.Second, zap.NewNop())

	// Must not panic or propagate; the ack channel still fires.
	d.Dispatch(context.Background(), stored())

	require.Equal(t, int64(1), admin.calls.Load())
	require.Equal(t, int64(1), ack.calls.Load())
}

func TestDispatchSurvivesCanceledRequestContext(t *testing.T) {
	t.Parallel()

	admin := &fakeAdmin{}
	ack := &fakeAck{}
	d := NewDispatcher(admin, ack, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Dispatch(ctx, stored())

	require.Equal(t, int64(1), admin.calls.Load())
	require.Equal(t, int64(1), ack.calls.Load())
}

func TestNewDispatcherDefaultsNilNotifiers(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(nil, nil, 0, zap.NewNop())
	d.Dispatch(context.Background(), stored())
}
