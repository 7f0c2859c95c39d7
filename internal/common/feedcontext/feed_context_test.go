package feedcontext

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultLogger = logrus.WithField("foo", "bar")

func TestNew(t *testing.T) {
	ctx := New(context.Background(), defaultLogger)
	require.Equal(t, defaultLogger, ctx.Log)
	require.Equal(t, context.Background(), ctx.Context)
}

func TestBackground(t *testing.T) {
	ctx := Background()
	require.Equal(t, ctx.Context, context.Background())
}

func TestFromContext(t *testing.T) {
	ctx := New(context.Background(), defaultLogger)
	assert.Same(t, ctx, FromContext(ctx))

	upgraded := FromContext(context.Background())
	assert.NotNil(t, upgraded.Log)
	assert.Equal(t, context.Background(), upgraded.Context)
}

func TestWithLogField(t *testing.T) {
	ctx := WithLogField(Background(), "source", "acme")
	require.Equal(t, context.Background(), ctx.Context)
	require.Equal(t, logrus.Fields{"source": "acme"}, ctx.Log.Data)
}

func TestWithLogFields(t *testing.T) {
	ctx := WithLogFields(Background(), logrus.Fields{"source": "acme", "runId": "01h"})
	require.Equal(t, context.Background(), ctx.Context)
	require.Equal(t, logrus.Fields{"source": "acme", "runId": "01h"}, ctx.Log.Data)
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(Background(), 50*time.Millisecond)
	defer cancel()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled after its timeout")
	}
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestWithCancel(t *testing.T) {
	ctx, cancel := WithCancel(WithLogField(Background(), "a", 1))
	cancel()
	<-ctx.Done()
	assert.Equal(t, logrus.Fields{"a": 1}, ctx.Log.Data)
}

func TestErrGroup(t *testing.T) {
	g, ctx := ErrGroup(Background())
	called := false
	g.Go(func() error {
		called = true
		return nil
	})
	require.NoError(t, g.Wait())
	assert.True(t, called)
	assert.NotNil(t, ctx.Log)
}
