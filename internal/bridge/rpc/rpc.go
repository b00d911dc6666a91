package rpc

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"noetic/internal/apperr"
	"noetic/internal/engine"
	"noetic/internal/query"
	"noetic/internal/render"
	"noetic/internal/shape"
	"noetic/internal/store"
	"noetic/internal/subgraph"
	"noetic/internal/term"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Service exposes the unary RPCs of spec.md §6 RPC surface (Assert,
// Retract, Query, Why, Subgraph, Search, Health, Contradictions) over the same engine,
// shape registry, and renderer as the HTTP bridge. Its shape mirrors
// httpapi.Server deliberately: the two bridges are alternate transports
// over one inference-engine backend, not separate implementations.
type Service struct {
	engine   *engine.Engine
	shapes   *shape.Registry
	renderer *render.Renderer
}

func New(eng *engine.Engine, shapes *shape.Registry, renderer *render.Renderer) *Service {
	return &Service{engine: eng, shapes: shapes, renderer: renderer}
}

// AssertRequest/AssertResponse and the other message types below stand
// in for protoc-generated structs: there is no .proto file compiled in
// this repository, so the wire messages are plain Go structs tagged for
// jsonCodec instead of generated protobuf types. See codec.go for why
// this is legal against grpc-go's RegisterService contract.
type AssertRequest struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence,omitempty"`
	Source     string  `json:"source,omitempty"`
}

type AssertResponse struct {
	FactID   int64  `json:"fact_id"`
	Admitted bool   `json:"admitted"`
	Reason   string `json:"reason,omitempty"`
}

type RetractRequest struct {
	FactID int64 `json:"fact_id"`
}

type RetractResponse struct {
	RetractedIDs []int64 `json:"retracted_ids"`
}

type QueryRequest struct {
	Pattern              string  `json:"pattern"`
	Limit                int     `json:"limit"`
	MinConfidence        float64 `json:"min_confidence,omitempty"`
	IncludeJustification bool    `json:"include_justification,omitempty"`
}

type Binding struct {
	Variable string `json:"variable"`
	Value    string `json:"value"`
}

type Match struct {
	Bindings             []Binding `json:"bindings"`
	FactID               int64     `json:"fact_id"`
	Confidence           float64   `json:"confidence"`
	JustificationSummary []string  `json:"justification_summary,omitempty"`
}

type QueryResponse struct {
	Matches []Match `json:"matches"`
	Count   int     `json:"count"`
}

type WhyRequest struct {
	FactID   int64 `json:"fact_id"`
	MaxDepth int   `json:"max_depth,omitempty"`
}

type WhyResponse struct {
	FactID   int64    `json:"fact_id"`
	Term     string   `json:"term"`
	Asserted bool     `json:"asserted"`
	Rules    []string `json:"rules,omitempty"`
	HasProof bool     `json:"has_proof"`
}

type SubgraphRequest struct {
	Focus    string `json:"focus"`
	Radius   int    `json:"radius"`
	MaxNodes int    `json:"max_nodes,omitempty"`
}

type SubgraphResponse struct {
	Nodes     []subgraph.Node `json:"nodes"`
	Edges     []subgraph.Edge `json:"edges"`
	NodeCount int             `json:"node_count"`
	Collapsed bool            `json:"collapsed"`
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchResponse struct {
	Matches []Match `json:"matches"`
	Count   int     `json:"count"`
}

type HealthRequest struct{}

type HealthResponse struct {
	Status             string  `json:"status"`
	FactCount          int     `json:"fact_count"`
	RuleCount          int     `json:"rule_count"`
	ContradictionCount int     `json:"contradiction_count"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
}

type ContradictionsRequest struct{}

type ContradictionEvent struct {
	EventID  int64     `json:"event_id"`
	RuleName string    `json:"rule_name"`
	Binding  []Binding `json:"binding"`
	Facts    []int64   `json:"facts"`
}

type ContradictionsResponse struct {
	Contradictions []ContradictionEvent `json:"contradictions"`
	Count          int                  `json:"count"`
}

func grpcErr(err error) error {
	if err == nil {
		return nil
	}
	switch apperr.KindOf(err) {
	case apperr.NotFound:
		return status.Error(codes.NotFound, err.Error())
	case apperr.BadRequest, apperr.ValidationFailed:
		return status.Error(codes.InvalidArgument, err.Error())
	case apperr.CapacityExhausted:
		return status.Error(codes.ResourceExhausted, err.Error())
	case apperr.Cancelled:
		return status.Error(codes.Canceled, err.Error())
	case apperr.Unsupported:
		return status.Error(codes.Unimplemented, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *Service) Assert(ctx context.Context, req *AssertRequest) (*AssertResponse, error) {
	subject := term.Atom(req.Subject)
	t := term.NewCompound(req.Predicate, subject, term.Atom(req.Object))

	report := s.shapes.Validate(s.engine.Store(), subject, t)
	if !report.Conforms {
		reason := "shape validation failed"
		if len(report.Violations) > 0 {
			reason = report.Violations[0].Message
		}
		return &AssertResponse{Admitted: false, Reason: reason}, nil
	}

	meta := store.Meta{Asserted: true, Confidence: req.Confidence}
	if req.Source != "" {
		meta.Provenance = &store.Provenance{Source: req.Source, Timestamp: time.Now()}
	}
	id, _, err := s.engine.Assert(t, meta)
	if err != nil {
		return nil, grpcErr(err)
	}
	return &AssertResponse{FactID: id, Admitted: true}, nil
}

func (s *Service) Retract(ctx context.Context, req *RetractRequest) (*RetractResponse, error) {
	ids, err := s.engine.Retract(req.FactID)
	if err != nil {
		return nil, grpcErr(err)
	}
	return &RetractResponse{RetractedIDs: ids}, nil
}

func (s *Service) Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	release := s.engine.ReadLease()
	defer release()

	pattern, err := query.ParsePattern(req.Pattern)
	if err != nil {
		return nil, grpcErr(err)
	}
	limit := s.engine.RuleLimits().MaxQueryResults
	if req.Limit > 0 {
		limit = req.Limit
	}

	res, err := query.Evaluate(ctx, s.engine.Store(), s.engine.Graph(), pattern, query.Filters{
		MaxResults:           limit,
		MinConfidence:        req.MinConfidence,
		IncludeJustification: req.IncludeJustification,
	})
	if err != nil {
		return nil, grpcErr(err)
	}

	matches := make([]Match, 0, len(res.Matches))
	for _, m := range res.Matches {
		bindings := make([]Binding, 0, len(m.Binding))
		for k, v := range m.Binding {
			bindings = append(bindings, Binding{Variable: k, Value: v.String()})
		}
		matches = append(matches, Match{
			Bindings: bindings, FactID: m.FactID, Confidence: m.Confidence,
			JustificationSummary: m.JustificationSummary,
		})
	}
	return &QueryResponse{Matches: matches, Count: res.Count}, nil
}

func (s *Service) Why(ctx context.Context, req *WhyRequest) (*WhyResponse, error) {
	release := s.engine.ReadLease()
	defer release()

	f, ok := s.engine.Store().Get(req.FactID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "why: fact_id %d not found", req.FactID)
	}
	recs := s.engine.Graph().Justifications(req.FactID)
	rules := make([]string, 0, len(recs))
	for _, r := range recs {
		rules = append(rules, r.Rule)
	}
	return &WhyResponse{
		FactID: req.FactID, Term: f.Term.String(), Asserted: f.Asserted,
		Rules: rules, HasProof: len(recs) > 0 || f.Asserted,
	}, nil
}

func (s *Service) Subgraph(ctx context.Context, req *SubgraphRequest) (*SubgraphResponse, error) {
	release := s.engine.ReadLease()
	defer release()

	limits := s.engine.RuleLimits()
	radius := req.Radius
	if radius <= 0 {
		radius = limits.MaxRadius
	} else if limits.MaxRadius > 0 && radius > limits.MaxRadius {
		return nil, grpcErr(apperr.New(apperr.CapacityExhausted, "subgraph: radius %d exceeds max_radius %d", radius, limits.MaxRadius))
	}
	maxNodes := req.MaxNodes
	if maxNodes <= 0 {
		maxNodes = limits.MaxSubgraphNodes
	} else if limits.MaxSubgraphNodes > 0 && maxNodes > limits.MaxSubgraphNodes {
		return nil, grpcErr(apperr.New(apperr.CapacityExhausted, "subgraph: max_nodes %d exceeds configured cap %d", maxNodes, limits.MaxSubgraphNodes))
	}
	env, err := subgraph.Extract(ctx, s.engine.Store(), req.Focus, subgraph.Options{Radius: radius, MaxNodes: maxNodes, Collapse: true})
	if err != nil {
		return nil, grpcErr(err)
	}
	collapsed := false
	for _, e := range env.Edges {
		if e.Collapsed {
			collapsed = true
			break
		}
	}
	return &SubgraphResponse{Nodes: env.Nodes, Edges: env.Edges, NodeCount: env.NodeCount, Collapsed: collapsed}, nil
}

// Search is the thin substring wrapper named in spec.md §9 Open
// Questions (resolved in SPEC_FULL.md §4.F): it scans every live fact's
// canonical string form for req.Query as a substring, rather than
// unifying against a structured pattern.
func (s *Service) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	release := s.engine.ReadLease()
	defer release()

	limit := req.Limit
	if limit <= 0 {
		limit = s.engine.RuleLimits().MaxQueryResults
	}

	var matches []Match
	for _, f := range s.engine.Store().AllLive() {
		if len(matches) >= limit {
			break
		}
		if !strings.Contains(f.Term.String(), req.Query) {
			continue
		}
		matches = append(matches, Match{FactID: f.ID, Confidence: f.Confidence})
	}
	return &SearchResponse{Matches: matches, Count: len(matches)}, nil
}

func (s *Service) Health(ctx context.Context, req *HealthRequest) (*HealthResponse, error) {
	snap := s.engine.Snapshot()
	return &HealthResponse{
		Status: "ok", FactCount: snap.Facts.TotalFacts, RuleCount: snap.Rules.Total,
		ContradictionCount: snap.Contradictions,
		UptimeSeconds:      snap.UptimeSeconds,
	}, nil
}

// Contradictions serves the contradiction event log (spec.md §7:
// "Contradictions ... are recorded as events retrievable via the
// operational surface"), mirroring the HTTP bridge's /contradictions.
func (s *Service) Contradictions(ctx context.Context, req *ContradictionsRequest) (*ContradictionsResponse, error) {
	release := s.engine.ReadLease()
	defer release()

	events := s.engine.Contradictions().All()
	out := make([]ContradictionEvent, 0, len(events))
	for _, ev := range events {
		bindings := make([]Binding, 0, len(ev.Binding))
		for k, v := range ev.Binding {
			bindings = append(bindings, Binding{Variable: k, Value: v.String()})
		}
		out = append(out, ContradictionEvent{EventID: ev.ID, RuleName: ev.RuleName, Binding: bindings, Facts: ev.Facts})
	}
	return &ContradictionsResponse{Contradictions: out, Count: len(out)}, nil
}

func unaryHandler(method string, handle func(ctx context.Context, req any) (any, error), newReq func() any) grpc.MethodHandler {
	fullMethod := "/noetic.rpc.Inference/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := newReq()
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return handle(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
			return handle(ctx, req)
		})
	}
}

// ServiceDesc is registered with grpc.Server.RegisterService in place of
// a protoc-generated _grpc.pb.go ServiceDesc. grpc-go's server dispatch
// only depends on the MethodDesc.Handler closures below, not on
// generated code, so a hand-written desc is a legal, if unusual, way to
// expose unary RPCs without running protoc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "noetic.rpc.Inference",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Assert", Handler: unaryHandler("Assert",
			func(ctx context.Context, req any) (any, error) {
				return currentService.Assert(ctx, req.(*AssertRequest))
			},
			func() any { return &AssertRequest{} },
		)},
		{MethodName: "Retract", Handler: unaryHandler("Retract",
			func(ctx context.Context, req any) (any, error) {
				return currentService.Retract(ctx, req.(*RetractRequest))
			},
			func() any { return &RetractRequest{} },
		)},
		{MethodName: "Query", Handler: unaryHandler("Query",
			func(ctx context.Context, req any) (any, error) {
				return currentService.Query(ctx, req.(*QueryRequest))
			},
			func() any { return &QueryRequest{} },
		)},
		{MethodName: "Why", Handler: unaryHandler("Why",
			func(ctx context.Context, req any) (any, error) {
				return currentService.Why(ctx, req.(*WhyRequest))
			},
			func() any { return &WhyRequest{} },
		)},
		{MethodName: "Subgraph", Handler: unaryHandler("Subgraph",
			func(ctx context.Context, req any) (any, error) {
				return currentService.Subgraph(ctx, req.(*SubgraphRequest))
			},
			func() any { return &SubgraphRequest{} },
		)},
		{MethodName: "Search", Handler: unaryHandler("Search",
			func(ctx context.Context, req any) (any, error) {
				return currentService.Search(ctx, req.(*SearchRequest))
			},
			func() any { return &SearchRequest{} },
		)},
		{MethodName: "Health", Handler: unaryHandler("Health",
			func(ctx context.Context, req any) (any, error) {
				return currentService.Health(ctx, req.(*HealthRequest))
			},
			func() any { return &HealthRequest{} },
		)},
		{MethodName: "Contradictions", Handler: unaryHandler("Contradictions",
			func(ctx context.Context, req any) (any, error) {
				return currentService.Contradictions(ctx, req.(*ContradictionsRequest))
			},
			func() any { return &ContradictionsRequest{} },
		)},
	},
	Metadata: "noetic/rpc.proto",
}

// currentService backs the package-level ServiceDesc's method handlers.
// grpc.ServiceDesc.Methods closures cannot close over the *Service
// passed to RegisterService (that value only becomes the `srv any`
// argument at dispatch time), so Register stashes it here before
// calling grpc.Server.RegisterService.
var currentService *Service

// Register installs s as the server backing ServiceDesc and registers
// it against grpcServer.
func Register(grpcServer *grpc.Server, s *Service) {
	currentService = s
	grpcServer.RegisterService(&ServiceDesc, s)
}
