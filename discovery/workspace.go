package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moepig/jmx-conf-gen/jolokia"
	"github.com/moepig/jmx-conf-gen/mbean"
)

// Lister fetches canonical listings. *Service implements it.
type Lister interface {
	List(ctx context.Context) (mbean.Domains, error)
	Sublist(ctx context.Context, paths []string) (mbean.Domains, error)
}

// WorkspaceOptions configures a Workspace.
type WorkspaceOptions struct {
	Conventions mbean.Conventions
	Processors  *ProcessorRegistry
	Logger      *slog.Logger
}

// Workspace owns the published tree of one connection. Only one refresh
// runs at a time; a result whose generation was superseded is dropped.
type Workspace struct {
	id         string
	lister     Lister
	conv       mbean.Conventions
	processors *ProcessorRegistry
	logger     *slog.Logger
	tracer     trace.Tracer

	mu         sync.Mutex
	tree       *mbean.Tree
	generation uint64
	refreshing bool
}

// NewWorkspace creates a workspace with no tree loaded.
func NewWorkspace(lister Lister, opts WorkspaceOptions) *Workspace {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	processors := opts.Processors
	if processors == nil {
		processors = NewProcessorRegistry()
	}
	id := uuid.NewString()
	return &Workspace{
		id:         id,
		lister:     lister,
		conv:       opts.Conventions,
		processors: processors,
		logger:     logger.With("workspace", id),
		tracer:     otel.Tracer(tracerName),
	}
}

// ID returns the session identifier of the workspace.
func (w *Workspace) ID() string {
	return w.id
}

// Generation returns the number of refresh cycles started so far,
// abandoned ones included.
func (w *Workspace) Generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation
}

// Refreshing reports whether a refresh is in flight.
func (w *Workspace) Refreshing() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refreshing
}

func (w *Workspace) begin() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.refreshing {
		return 0, ErrRefreshInFlight
	}
	w.refreshing = true
	w.generation++
	return w.generation, nil
}

func (w *Workspace) end(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation == gen {
		w.refreshing = false
	}
}

// publish installs tree unless gen was superseded, and returns the
// tree that is current afterwards. A discarded result with nothing
// published yields an empty tree, never nil.
func (w *Workspace) publish(gen uint64, tree *mbean.Tree) *mbean.Tree {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.generation {
		w.logger.Debug("Discarding refresh result", "error", ErrStaleResult, "generation", gen, "current", w.generation)
		if w.tree == nil {
			return mbean.NewTree("", w.conv)
		}
		return w.tree
	}
	w.tree = tree
	return w.tree
}

// Refresh lists every MBean, builds a new tree, runs the processors and
// publishes the tree. On failure the previous tree stays in place.
func (w *Workspace) Refresh(ctx context.Context) (*mbean.Tree, error) {
	gen, err := w.begin()
	if err != nil {
		return nil, err
	}
	defer w.end(gen)
	return w.refresh(ctx, gen)
}

func (w *Workspace) refresh(ctx context.Context, gen uint64) (*mbean.Tree, error) {
	ctx, span := w.tracer.Start(ctx, "discovery.refresh", trace.WithAttributes(
		attribute.Int64("generation", int64(gen)),
	))
	defer span.End()

	domains, err := w.lister.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to refresh mbean tree: %w", err)
	}

	tree, buildErr := mbean.Build(uuid.NewString(), domains, w.conv)
	if buildErr != nil {
		w.logger.Warn("MBean tree built with skipped entries", "error", buildErr)
	}
	if err := w.processors.Process(ctx, tree); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to refresh mbean tree: %w", err)
	}

	current := w.publish(gen, tree)
	if current == tree {
		w.logger.Info("Refreshed MBean tree", "domains", len(domains), "mbeans", domains.Count(), "generation", gen)
	}
	return current, nil
}

// RefreshDomain lists one domain and merges it into a copy of the current
// tree, leaving every other domain's nodes untouched. Without a current
// tree it performs a full refresh.
func (w *Workspace) RefreshDomain(ctx context.Context, domain string) (*mbean.Tree, error) {
	gen, err := w.begin()
	if err != nil {
		return nil, err
	}
	defer w.end(gen)

	current := w.Current()
	if current == nil {
		return w.refresh(ctx, gen)
	}

	ctx, span := w.tracer.Start(ctx, "discovery.refresh_domain", trace.WithAttributes(
		attribute.String("domain", domain),
		attribute.Int64("generation", int64(gen)),
	))
	defer span.End()

	domains, err := w.lister.Sublist(ctx, []string{jolokia.EscapePath(domain)})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to refresh domain %s: %w", domain, err)
	}

	tree := current.ShallowCopy(uuid.NewString())
	if err := tree.Merge(domain, domains[domain]); err != nil {
		w.logger.Warn("MBean domain merged with skipped entries", "domain", domain, "error", err)
	}
	if err := w.processors.Process(ctx, tree); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to refresh domain %s: %w", domain, err)
	}

	published := w.publish(gen, tree)
	if published == tree {
		w.logger.Info("Refreshed MBean domain", "domain", domain, "mbeans", len(domains[domain]), "generation", gen)
	}
	return published, nil
}

// Abandon gives up on the refresh in flight. Its result will be discarded
// when it arrives and a new refresh may start at once.
func (w *Workspace) Abandon() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	w.refreshing = false
}

// Reset drops the published tree and abandons any refresh in flight.
func (w *Workspace) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	w.refreshing = false
	w.tree = nil
}

// Current returns the published tree without loading one.
func (w *Workspace) Current() *mbean.Tree {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tree
}

// Tree returns the published tree, refreshing first if none is loaded.
func (w *Workspace) Tree(ctx context.Context) (*mbean.Tree, error) {
	if tree := w.Current(); tree != nil {
		return tree, nil
	}
	return w.Refresh(ctx)
}

// HasMBeans reports whether the tree holds at least one MBean.
func (w *Workspace) HasMBeans(ctx context.Context) (bool, error) {
	tree, err := w.Tree(ctx)
	if err != nil {
		return false, err
	}
	return !tree.IsEmpty(), nil
}

// TreeContainsDomainAndProperties reports whether the domain exists and,
// when properties are given, holds an MBean matching them.
func (w *Workspace) TreeContainsDomainAndProperties(ctx context.Context, domain string, properties map[string]string) (bool, error) {
	tree, err := w.Tree(ctx)
	if err != nil {
		return false, err
	}
	if tree.Get(domain) == nil {
		return false, nil
	}
	if len(properties) == 0 {
		return true, nil
	}
	return len(tree.FindMBeans(domain, properties)) > 0, nil
}

// FindMBeans returns the MBeans of a domain matching properties.
func (w *Workspace) FindMBeans(ctx context.Context, domain string, properties map[string]string) ([]*mbean.Node, error) {
	tree, err := w.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return tree.FindMBeans(domain, properties), nil
}

// AutoRefresh refreshes every interval until ctx is done. Ticks that find
// a refresh in flight are skipped.
func (w *Workspace) AutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Duration(jolokia.DefaultUpdateRate) * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := w.Refresh(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrRefreshInFlight):
				w.logger.Debug("Skipping auto refresh", "error", err)
			default:
				w.logger.Warn("Auto refresh failed", "error", err)
			}
		}
	}
}
