package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/moepig/jmx-conf-gen/jolokia"
	"github.com/moepig/jmx-conf-gen/mbean"
)

// DefaultRBACMBean provides the optimised list operations.
const DefaultRBACMBean = "hawtio:type=security,name=RBACRegistry"

const tracerName = "github.com/moepig/jmx-conf-gen/discovery"

// ListMethod is the list strategy used on a connection.
type ListMethod int

const (
	// ListMethodUndetermined means the probe has not run yet.
	ListMethodUndetermined ListMethod = iota
	// ListMethodDefault uses plain list requests.
	ListMethodDefault
	// ListMethodOptimised uses the list operations of the RBAC registry MBean.
	ListMethodOptimised
)

func (m ListMethod) String() string {
	switch m {
	case ListMethodDefault:
		return "default"
	case ListMethodOptimised:
		return "optimised"
	default:
		return "undetermined"
	}
}

// Options configures a Service.
type Options struct {
	// Request options passed through to every list request.
	Request jolokia.Options
	// RBACMBean is probed for optimised list support.
	RBACMBean string
	Logger    *slog.Logger
}

// Service issues discovery and access requests for one connection. It owns
// the probe result and the compact descriptor cache of that connection.
type Service struct {
	transport jolokia.Transport
	opts      Options
	logger    *slog.Logger
	tracer    trace.Tracer

	mu         sync.Mutex
	method     ListMethod
	reconciler *Reconciler
	probes     int
}

// NewService creates a Service on top of a transport.
func NewService(transport jolokia.Transport, opts Options) *Service {
	if opts.RBACMBean == "" {
		opts.RBACMBean = DefaultRBACMBean
	}
	if opts.Request.MaxDepth == 0 && opts.Request.MaxCollectionSize == 0 {
		opts.Request = jolokia.DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		transport:  transport,
		opts:       opts,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		reconciler: NewReconciler(),
	}
}

// Reset forgets the probe result and the descriptor cache, e.g. on disconnect.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.method = ListMethodUndetermined
	s.reconciler.Reset()
}

// ListMethod returns the list strategy, probing the agent on first use.
// A failed probe selects the default method for the rest of the session.
func (s *Service) ListMethod(ctx context.Context) ListMethod {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.method != ListMethodUndetermined {
		return s.method
	}

	ctx, span := s.tracer.Start(ctx, "discovery.probe")
	defer span.End()

	s.probes++
	method, err := s.probe(ctx)
	if err != nil {
		s.logger.Warn("List optimisation unavailable, using default list", "mbean", s.opts.RBACMBean, "error", err)
		span.RecordError(err)
		method = ListMethodDefault
	}
	s.method = method
	span.SetAttributes(attribute.String("list_method", method.String()))
	s.logger.Debug("Determined list method", "method", method.String())
	return method
}

func (s *Service) probe(ctx context.Context) (ListMethod, error) {
	domain, props, ok := strings.Cut(s.opts.RBACMBean, ":")
	if !ok {
		return ListMethodDefault, fmt.Errorf("%w: invalid mbean name %q", ErrCapabilityProbe, s.opts.RBACMBean)
	}
	resp, err := s.transport.Do(ctx, jolokia.Request{
		Type: jolokia.TypeList,
		Path: jolokia.JoinPath(domain, props),
	})
	if err != nil {
		return ListMethodDefault, fmt.Errorf("%w: %w", ErrCapabilityProbe, err)
	}
	if err := resp.Err(); err != nil {
		return ListMethodDefault, fmt.Errorf("%w: %w", ErrCapabilityProbe, err)
	}
	var info mbean.MBeanInfo
	if err := json.Unmarshal(resp.Value, &info); err != nil {
		return ListMethodDefault, fmt.Errorf("%w: unexpected response: %w", ErrCapabilityProbe, err)
	}
	if _, ok := info.Op["list"]; ok {
		return ListMethodOptimised, nil
	}
	return ListMethodDefault, nil
}

// ProbeCount returns how many times the capability probe was issued.
func (s *Service) ProbeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.probes
}

// List returns the full listing of the agent.
func (s *Service) List(ctx context.Context) (mbean.Domains, error) {
	method := s.ListMethod(ctx)

	ctx, span := s.tracer.Start(ctx, "discovery.list", trace.WithAttributes(
		attribute.String("list_method", method.String()),
	))
	defer span.End()

	var req jolokia.Request
	if method == ListMethodOptimised {
		req = jolokia.Request{Type: jolokia.TypeExec, MBean: s.opts.RBACMBean, Operation: "list()"}
	} else {
		req = jolokia.Request{Type: jolokia.TypeList, Config: s.listConfig()}
	}

	resp, err := s.transport.Do(ctx, req)
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list mbeans: %w", err)
	}

	domains, err := s.unwind(resp.Value, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("mbeans", domains.Count()))
	return domains, nil
}

// Sublist returns the listing below the given paths ("domain" or
// "domain/propertyList", escaped as list paths). All paths are sent in one
// bulk call. A path the agent does not know yields no entries.
func (s *Service) Sublist(ctx context.Context, paths []string) (mbean.Domains, error) {
	if len(paths) == 0 {
		return s.List(ctx)
	}
	method := s.ListMethod(ctx)

	ctx, span := s.tracer.Start(ctx, "discovery.sublist", trace.WithAttributes(
		attribute.String("list_method", method.String()),
		attribute.Int("paths", len(paths)),
	))
	defer span.End()

	reqs := make([]jolokia.Request, len(paths))
	for i, p := range paths {
		if method == ListMethodOptimised {
			reqs[i] = jolokia.Request{
				Type:      jolokia.TypeExec,
				MBean:     s.opts.RBACMBean,
				Operation: "list(java.lang.String)",
				Arguments: []interface{}{p},
			}
		} else {
			reqs[i] = jolokia.Request{Type: jolokia.TypeList, Path: p, Config: s.listConfig()}
		}
	}

	resps, err := jolokia.Bulk(ctx, s.transport, reqs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list mbeans: %w", err)
	}

	domains := make(mbean.Domains)
	for i, resp := range resps {
		if resp == nil {
			s.logger.Warn("Empty list response", "path", paths[i])
			continue
		}
		if resp.Status == http.StatusNotFound {
			s.logger.Debug("List path not found", "path", paths[i])
			continue
		}
		if err := resp.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to list %s: %w", paths[i], err)
		}
		part, err := s.unwind(resp.Value, jolokia.SplitPath(paths[i]))
		if err != nil {
			return nil, err
		}
		MergeDomains(domains, part)
	}
	span.SetAttributes(attribute.Int("mbeans", domains.Count()))
	return domains, nil
}

func (s *Service) listConfig() map[string]any {
	opts := s.opts.Request
	opts.IgnoreErrors = true
	return opts.Config()
}

func (s *Service) unwind(raw json.RawMessage, path []string) (mbean.Domains, error) {
	s.mu.Lock()
	res, err := s.reconciler.Unwind(raw, path)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile listing: %w", err)
	}
	for _, skipped := range res.Skipped {
		s.logger.Warn("Skipping listing entry", "shape", res.Shape.String(), "error", skipped)
	}
	return res.Domains, nil
}

func (s *Service) do(ctx context.Context, req jolokia.Request) (json.RawMessage, error) {
	resp, err := s.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func decodeValue(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return v, nil
}

// ReadAttributes reads every attribute of an MBean.
func (s *Service) ReadAttributes(ctx context.Context, mbeanName string) (map[string]interface{}, error) {
	raw, err := s.do(ctx, jolokia.Request{Type: jolokia.TypeRead, MBean: mbeanName, Config: s.opts.Request.Config()})
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{})
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("failed to decode attributes of %s: %w", mbeanName, err)
	}
	return values, nil
}

// ReadAttribute reads a single attribute.
func (s *Service) ReadAttribute(ctx context.Context, mbeanName, attr string) (interface{}, error) {
	raw, err := s.do(ctx, jolokia.Request{Type: jolokia.TypeRead, MBean: mbeanName, Attribute: attr, Config: s.opts.Request.Config()})
	if err != nil {
		return nil, err
	}
	return decodeValue(raw)
}

// WriteAttribute sets an attribute and returns its previous value.
func (s *Service) WriteAttribute(ctx context.Context, mbeanName, attr string, value interface{}) (interface{}, error) {
	raw, err := s.do(ctx, jolokia.Request{Type: jolokia.TypeWrite, MBean: mbeanName, Attribute: attr, Value: value})
	if err != nil {
		return nil, err
	}
	return decodeValue(raw)
}

// Execute invokes an operation. Overloaded operations need a full signature.
func (s *Service) Execute(ctx context.Context, mbeanName, operation string, args ...interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	raw, err := s.do(ctx, jolokia.Request{Type: jolokia.TypeExec, MBean: mbeanName, Operation: operation, Arguments: args})
	if err != nil {
		return nil, err
	}
	return decodeValue(raw)
}

// Search returns the ObjectNames matching a pattern.
func (s *Service) Search(ctx context.Context, pattern string) ([]string, error) {
	raw, err := s.do(ctx, jolokia.Request{Type: jolokia.TypeSearch, MBean: pattern})
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("failed to decode search result: %w", err)
	}
	return names, nil
}

// BulkRequest sends several requests in one round trip when possible.
func (s *Service) BulkRequest(ctx context.Context, reqs []jolokia.Request) ([]*jolokia.Response, error) {
	return jolokia.Bulk(ctx, s.transport, reqs)
}

// Register asks the transport to poll req and pass responses to cb.
func (s *Service) Register(req jolokia.Request, cb jolokia.Callback) (int, error) {
	w, ok := s.transport.(jolokia.Watcher)
	if !ok {
		return 0, ErrWatchUnsupported
	}
	return w.Register(req, cb)
}

// Unregister stops polling a registered request.
func (s *Service) Unregister(handle int) error {
	w, ok := s.transport.(jolokia.Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	return w.Unregister(handle)
}

// IsNotFound reports whether err is an agent error for an unknown MBean.
func IsNotFound(err error) bool {
	var pe *jolokia.ProtocolError
	return errors.As(err, &pe) && pe.Status == http.StatusNotFound
}
