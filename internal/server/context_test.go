package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/gmail-mcp/internal/config"
	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/gmail/gmailtest"
	"github.com/teemow/gmail-mcp/internal/google"
	"github.com/teemow/gmail-mcp/internal/toolerr"
)

type fakeResolver struct {
	calls    atomic.Int32
	rejected atomic.Int32
	err      error
}

func (f *fakeResolver) Reject() { f.rejected.Add(1) }

func (f *fakeResolver) Resolve(context.Context) (*google.Credential, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &google.Credential{
		Strategy:    google.StrategyTokenFile,
		Source:      "token.json",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test"}),
	}, nil
}

func newTestContext(t *testing.T, resolver CredentialResolver, opts ...Option) *ServerContext {
	t.Helper()
	srv := gmailtest.NewServer()
	t.Cleanup(srv.Close)

	factory := func(ctx context.Context, _ *google.Credential) (*gmail.Client, error) {
		return gmail.NewClient(ctx, srv.Client(), gmail.WithEndpoint(srv.URL))
	}
	opts = append([]Option{WithClientFactory(factory)}, opts...)
	sc := NewServerContext(context.Background(), config.Settings{DelegatedUser: "user@example.com"}, resolver, opts...)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestServerContext_CachesClient(t *testing.T) {
	resolver := &fakeResolver{}
	sc := newTestContext(t, resolver)
	assert.Empty(t, sc.Strategy())

	first, err := sc.GmailClient(context.Background())
	require.NoError(t, err)
	second, err := sc.GmailClient(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, resolver.calls.Load())
	assert.Equal(t, string(google.StrategyTokenFile), sc.Strategy())
	assert.Equal(t, "user@example.com", sc.Subject())
}

func TestServerContext_ConcurrentCallersResolveOnce(t *testing.T) {
	resolver := &fakeResolver{}
	sc := newTestContext(t, resolver)

	var wg sync.WaitGroup
	clients := make([]*gmail.Client, 8)
	for i := range clients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := sc.GmailClient(context.Background())
			assert.NoError(t, err)
			clients[i] = c
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, resolver.calls.Load())
	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
}

func TestServerContext_Invalidate(t *testing.T) {
	resolver := &fakeResolver{}
	sc := newTestContext(t, resolver)

	first, err := sc.GmailClient(context.Background())
	require.NoError(t, err)

	assert.True(t, sc.Invalidate(first))
	assert.Empty(t, sc.Strategy())
	assert.EqualValues(t, 1, resolver.rejected.Load())

	second, err := sc.GmailClient(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.EqualValues(t, 2, resolver.calls.Load())
}

func TestServerContext_InvalidateIgnoresReplacedClient(t *testing.T) {
	resolver := &fakeResolver{}
	sc := newTestContext(t, resolver)

	stale, err := sc.GmailClient(context.Background())
	require.NoError(t, err)
	require.True(t, sc.Invalidate(stale))
	current, err := sc.GmailClient(context.Background())
	require.NoError(t, err)

	// A late rejection from a call made with the old client.
	assert.False(t, sc.Invalidate(stale))
	assert.False(t, sc.Invalidate(nil))

	again, err := sc.GmailClient(context.Background())
	require.NoError(t, err)
	assert.Same(t, current, again)
	assert.EqualValues(t, 2, resolver.calls.Load())
	assert.EqualValues(t, 1, resolver.rejected.Load())
	assert.Equal(t, string(google.StrategyTokenFile), sc.Strategy())
}

func TestServerContext_ResolveFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "auth error passes through", err: toolerr.Auth("no usable credentials", nil)},
		{name: "other error becomes auth", err: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{err: tt.err}
			sc := newTestContext(t, resolver)

			_, err := sc.GmailClient(context.Background())
			require.Error(t, err)
			assert.Equal(t, toolerr.KindAuth, toolerr.KindOf(err))

			// Failures are not cached.
			_, err = sc.GmailClient(context.Background())
			require.Error(t, err)
			assert.EqualValues(t, 2, resolver.calls.Load())
		})
	}
}

func TestServerContext_FactoryFailure(t *testing.T) {
	factory := func(context.Context, *google.Credential) (*gmail.Client, error) {
		return nil, errors.New("no transport")
	}
	sc := newTestContext(t, &fakeResolver{}, WithClientFactory(factory))

	_, err := sc.GmailClient(context.Background())
	require.Error(t, err)
	assert.Equal(t, toolerr.KindTransport, toolerr.KindOf(err))
	assert.Empty(t, sc.Strategy())
}

func TestServerContext_Shutdown(t *testing.T) {
	resolver := &fakeResolver{}
	sc := newTestContext(t, resolver)
	_, err := sc.GmailClient(context.Background())
	require.NoError(t, err)

	require.NoError(t, sc.Shutdown())
	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())

	_, err = sc.GmailClient(context.Background())
	require.Error(t, err)
	assert.Equal(t, toolerr.KindTransport, toolerr.KindOf(err))
	assert.EqualValues(t, 1, resolver.calls.Load())
}

// blockingResolver waits for its context, like a pending consent flow.
type blockingResolver struct {
	started chan struct{}
}

func (b *blockingResolver) Resolve(ctx context.Context) (*google.Credential, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestServerContext_ShutdownAbortsResolution(t *testing.T) {
	resolver := &blockingResolver{started: make(chan struct{})}
	sc := newTestContext(t, resolver)

	errc := make(chan error, 1)
	go func() {
		_, err := sc.GmailClient(context.Background())
		errc <- err
	}()

	<-resolver.started
	require.NoError(t, sc.Shutdown())

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.Equal(t, toolerr.KindAuth, toolerr.KindOf(err))
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("resolution was not cancelled by shutdown")
	}
}

func TestServerContext_Options(t *testing.T) {
	sc := newTestContext(t, &fakeResolver{}, WithReadOnly(true))
	assert.True(t, sc.ReadOnly())
	assert.NotNil(t, sc.Logger())
	assert.Nil(t, sc.Metrics())
	assert.Nil(t, sc.AuditLogger())
}
