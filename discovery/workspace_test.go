package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moepig/jmx-conf-gen/mbean"
)

type fakeLister struct {
	mu       sync.Mutex
	full     mbean.Domains
	sub      mbean.Domains
	err      error
	lists    int
	sublists [][]string

	// when set, List signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (f *fakeLister) List(ctx context.Context) (mbean.Domains, error) {
	f.mu.Lock()
	f.lists++
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.full, f.err
}

func (f *fakeLister) Sublist(ctx context.Context, paths []string) (mbean.Domains, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sublists = append(f.sublists, paths)
	return f.sub, f.err
}

func testDomains() mbean.Domains {
	return mbean.Domains{
		"org.acme": {
			"type=Manager,name=Primary": {Desc: "primary"},
		},
		"org.other": {
			"type=Thing": {Desc: "thing"},
		},
	}
}

func TestWorkspace_Refresh(t *testing.T) {
	lister := &fakeLister{full: testDomains()}
	ws := NewWorkspace(lister, WorkspaceOptions{})

	assert.Nil(t, ws.Current())
	tree, err := ws.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, tree)
	assert.Same(t, tree, ws.Current())
	assert.NotNil(t, tree.Navigate("org.acme", "Manager", "Primary"))
	assert.EqualValues(t, 1, ws.Generation())
	assert.False(t, ws.Refreshing())
	assert.NotEmpty(t, ws.ID())
}

func TestWorkspace_FailedRefreshKeepsTree(t *testing.T) {
	lister := &fakeLister{full: testDomains()}
	ws := NewWorkspace(lister, WorkspaceOptions{})
	first, err := ws.Refresh(context.Background())
	require.NoError(t, err)

	lister.err = errors.New("connection reset")
	_, err = ws.Refresh(context.Background())
	require.Error(t, err)
	assert.Same(t, first, ws.Current())
	assert.False(t, ws.Refreshing())
}

func TestWorkspace_ProcessorFailureKeepsTree(t *testing.T) {
	lister := &fakeLister{full: testDomains()}
	processors := NewProcessorRegistry()
	ws := NewWorkspace(lister, WorkspaceOptions{Processors: processors})
	first, err := ws.Refresh(context.Background())
	require.NoError(t, err)

	processors.Add("broken", ProcessorFunc(func(ctx context.Context, tree *mbean.Tree) error {
		return errors.New("boom")
	}))
	_, err = ws.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tree processor broken failed")
	assert.Same(t, first, ws.Current())
}

func TestWorkspace_RefreshInFlight(t *testing.T) {
	lister := &fakeLister{
		full:    testDomains(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	ws := NewWorkspace(lister, WorkspaceOptions{})

	done := make(chan error, 1)
	go func() {
		_, err := ws.Refresh(context.Background())
		done <- err
	}()
	<-lister.entered

	assert.True(t, ws.Refreshing())
	_, err := ws.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInFlight)
	_, err = ws.RefreshDomain(context.Background(), "org.acme")
	assert.ErrorIs(t, err, ErrRefreshInFlight)

	close(lister.release)
	require.NoError(t, <-done)
	assert.NotNil(t, ws.Current())
}

func TestWorkspace_AbandonedResultIsDiscarded(t *testing.T) {
	lister := &fakeLister{
		full:    testDomains(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	ws := NewWorkspace(lister, WorkspaceOptions{})

	done := make(chan error, 1)
	go func() {
		_, err := ws.Refresh(context.Background())
		done <- err
	}()
	<-lister.entered

	ws.Abandon()
	assert.False(t, ws.Refreshing())

	close(lister.release)
	require.NoError(t, <-done)
	assert.Nil(t, ws.Current())

	// a later cycle publishes normally
	lister.mu.Lock()
	lister.entered = nil
	lister.mu.Unlock()
	tree, err := ws.Refresh(context.Background())
	require.NoError(t, err)
	assert.Same(t, tree, ws.Current())
}

func TestWorkspace_QueryDuringAbandonedFirstLoad(t *testing.T) {
	lister := &fakeLister{
		full:    testDomains(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	ws := NewWorkspace(lister, WorkspaceOptions{})

	type answer struct {
		has bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		has, err := ws.HasMBeans(context.Background())
		done <- answer{has, err}
	}()
	<-lister.entered

	ws.Abandon()
	close(lister.release)

	got := <-done
	require.NoError(t, got.err)
	assert.False(t, got.has)
	assert.Nil(t, ws.Current())

	// the next query loads the tree
	lister.mu.Lock()
	lister.entered = nil
	lister.mu.Unlock()
	found, err := ws.FindMBeans(context.Background(), "org.acme", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, found)
}

func TestWorkspace_RefreshDomain(t *testing.T) {
	lister := &fakeLister{full: testDomains()}
	ws := NewWorkspace(lister, WorkspaceOptions{})
	before, err := ws.Refresh(context.Background())
	require.NoError(t, err)
	other := before.Get("org.other")
	oldAcme := before.Get("org.acme")

	lister.sub = mbean.Domains{
		"org.acme": {
			"type=Manager,name=Primary":   {Desc: "primary"},
			"type=Manager,name=Secondary": {Desc: "secondary"},
		},
	}
	after, err := ws.RefreshDomain(context.Background(), "org.acme")
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"org.acme"}}, lister.sublists)
	assert.Same(t, other, after.Get("org.other"))
	assert.NotNil(t, after.Navigate("org.acme", "Manager", "Secondary"))
	assert.Same(t, oldAcme, before.Get("org.acme"))
	assert.Nil(t, before.Navigate("org.acme", "Manager", "Secondary"))

	t.Run("empty listing removes the domain", func(t *testing.T) {
		lister.sub = mbean.Domains{}
		tree, err := ws.RefreshDomain(context.Background(), "org.acme")
		require.NoError(t, err)
		assert.Nil(t, tree.Get("org.acme"))
		assert.Same(t, other, tree.Get("org.other"))
	})
}

func TestWorkspace_RefreshDomainWithoutTree(t *testing.T) {
	lister := &fakeLister{full: testDomains()}
	ws := NewWorkspace(lister, WorkspaceOptions{})
	tree, err := ws.RefreshDomain(context.Background(), "org.acme")
	require.NoError(t, err)
	assert.NotNil(t, tree.Get("org.other"))
	assert.Equal(t, 1, lister.lists)
	assert.Empty(t, lister.sublists)
}

func TestWorkspace_Queries(t *testing.T) {
	lister := &fakeLister{full: testDomains()}
	ws := NewWorkspace(lister, WorkspaceOptions{})
	ctx := context.Background()

	has, err := ws.HasMBeans(ctx)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 1, lister.lists)

	found, err := ws.TreeContainsDomainAndProperties(ctx, "org.acme", nil)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = ws.TreeContainsDomainAndProperties(ctx, "org.acme", map[string]string{"name": "Primary"})
	require.NoError(t, err)
	assert.True(t, found)

	found, err = ws.TreeContainsDomainAndProperties(ctx, "org.acme", map[string]string{"name": "Nope"})
	require.NoError(t, err)
	assert.False(t, found)

	found, err = ws.TreeContainsDomainAndProperties(ctx, "missing", nil)
	require.NoError(t, err)
	assert.False(t, found)

	nodes, err := ws.FindMBeans(ctx, "org.acme", map[string]string{"type": "Manager"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Primary", nodes[0].Name)

	assert.Equal(t, 1, lister.lists)

	ws.Reset()
	assert.Nil(t, ws.Current())
	has, err = ws.HasMBeans(ctx)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, 2, lister.lists)
}

func TestWorkspace_AutoRefresh(t *testing.T) {
	lister := &fakeLister{full: testDomains()}
	ws := NewWorkspace(lister, WorkspaceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ws.AutoRefresh(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		lister.mu.Lock()
		defer lister.mu.Unlock()
		return lister.lists >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.NotNil(t, ws.Current())
}

func TestProcessorRegistry(t *testing.T) {
	r := NewProcessorRegistry()
	var order []string
	r.Add("b", ProcessorFunc(func(ctx context.Context, tree *mbean.Tree) error {
		order = append(order, "b")
		return nil
	}))
	r.Add("a", ProcessorFunc(func(ctx context.Context, tree *mbean.Tree) error {
		order = append(order, "a")
		return nil
	}))
	assert.Equal(t, []string{"a", "b"}, r.Processors())

	require.NoError(t, r.Process(context.Background(), mbean.NewTree("t", nil)))
	assert.Equal(t, []string{"a", "b"}, order)

	r.Reset()
	assert.Empty(t, r.Processors())
}
