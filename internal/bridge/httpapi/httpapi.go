// Package httpapi implements the HTTP service bridge (spec.md §4.J,
// §6 HTTP surface): JSON request/response handlers over the inference
// engine, shape registry, and renderer. Request/response envelope
// shapes and error-kind-to-status mapping follow spec.md §6 exactly;
// the JSON marshal/unmarshal idiom is modeled on codenerd's
// internal/mcp/transport_http.go (structured request/response types,
// explicit status and error-body handling) adapted from an MCP client
// transport to a stdlib net/http server.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"noetic/internal/apperr"
	"noetic/internal/compiler"
	"noetic/internal/engine"
	"noetic/internal/logging"
	"noetic/internal/query"
	"noetic/internal/render"
	"noetic/internal/shape"
	"noetic/internal/store"
	"noetic/internal/subgraph"
	"noetic/internal/term"
)

const version = "0.1.0"

// Server wires the engine, shape registry, and renderer behind the HTTP
// surface of spec.md §6.
type Server struct {
	engine   *engine.Engine
	shapes   *shape.Registry
	renderer *render.Renderer
	mux      *http.ServeMux
}

func New(eng *engine.Engine, shapes *shape.Registry, renderer *render.Renderer) *Server {
	s := &Server{engine: eng, shapes: shapes, renderer: renderer, mux: http.NewServeMux()}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/assert", s.handleAssert)
	s.mux.HandleFunc("/retract", s.handleRetract)
	s.mux.HandleFunc("/query", s.handleQuery)
	s.mux.HandleFunc("/why", s.handleWhy)
	s.mux.HandleFunc("/subgraph", s.handleSubgraph)
	s.mux.HandleFunc("/rules/load", s.handleRulesLoad)
	s.mux.HandleFunc("/rules/stat", s.handleRulesStat)
	s.mux.HandleFunc("/contradictions", s.handleContradictions)
	s.mux.HandleFunc("/render", s.handleRender)
	return s
}

// ServeHTTP tags every request with a correlation id (the same
// uuid.NewString() idiom the teacher uses for session/campaign ids in
// internal/browser/session_manager.go) so log lines across a single
// request can be grepped together, then dispatches to the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	w.Header().Set("X-Request-Id", reqID)
	logging.Get(logging.CategoryBridge).Debugw("request received", "request_id", reqID, "method", r.Method, "path", r.URL.Path)
	s.mux.ServeHTTP(w, r)
}

// errorEnvelope is spec.md §6 "Error envelope".
type errorEnvelope struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.BadRequest:        http.StatusBadRequest,
	apperr.ValidationFailed:  http.StatusBadRequest,
	apperr.NotFound:          http.StatusNotFound,
	apperr.CapacityExhausted: http.StatusTooManyRequests,
	apperr.Cancelled:         499,
	apperr.Internal:          http.StatusInternalServerError,
	apperr.Unsupported:       http.StatusNotImplemented,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryBridge).Warnw("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	env := errorEnvelope{ErrorKind: string(kind), Message: err.Error()}
	if ae, ok := err.(*apperr.Error); ok {
		env.Details = ae.Details
	}
	logging.Get(logging.CategoryBridge).Warnw("request failed", "error_kind", env.ErrorKind, "message", env.Message)
	writeJSON(w, status, env)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "noetic",
		"version": version,
		"engine": map[string]any{
			"fact_count":          snap.Facts.TotalFacts,
			"rule_count":          snap.Rules.Total,
			"contradiction_count": snap.Contradictions,
			"uptime_seconds":      snap.UptimeSeconds,
		},
	})
}

// handleContradictions serves the contradiction event log (spec.md §7:
// "Contradictions ... are recorded as events retrievable via the
// operational surface"), mirroring rules/stat's read-only shape.
func (s *Server) handleContradictions(w http.ResponseWriter, r *http.Request) {
	release := s.engine.ReadLease()
	defer release()

	events := s.engine.Contradictions().All()
	out := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		bindings := make(map[string]string, len(ev.Binding))
		for k, v := range ev.Binding {
			bindings[k] = v.String()
		}
		out = append(out, map[string]any{
			"event_id":  ev.ID,
			"rule_name": ev.RuleName,
			"binding":   bindings,
			"facts":     ev.Facts,
			"timestamp": ev.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"contradictions": out, "count": len(out)})
}

// assertionBody mirrors spec.md §6 `POST /assert`.
type assertionBody struct {
	Subject     string          `json:"subject"`
	Predicate   string          `json:"predicate"`
	Object      string          `json:"object"`
	Confidence  float64         `json:"confidence,omitempty"`
	Provenance  *provenanceBody `json:"provenance,omitempty"`
	Assertions  []assertionBody `json:"assertions,omitempty"`
}

type provenanceBody struct {
	Source    string `json:"source,omitempty"`
	DocID     string `json:"doc_id,omitempty"`
	Span      string `json:"span,omitempty"`
	Extractor string `json:"extractor,omitempty"`
}

type assertItemResult struct {
	FactID     int64            `json:"fact_id,omitempty"`
	Admitted   bool             `json:"admitted"`
	Validation *validationBody  `json:"validation,omitempty"`
	Error      *errorEnvelope   `json:"error,omitempty"`
}

type validationBody struct {
	Conforms   bool              `json:"conforms"`
	Violations []shape.Violation `json:"violations,omitempty"`
}

func (s *Server) handleAssert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apperr.New(apperr.BadRequest, "assert: method %s not allowed", r.Method))
		return
	}
	var body assertionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.BadRequest, "assert: invalid JSON body: %v", err))
		return
	}

	items := body.Assertions
	if len(items) == 0 {
		items = []assertionBody{body}
	}

	results := make([]assertItemResult, 0, len(items))
	var processed int
	for _, item := range items {
		results = append(results, s.assertOne(item))
		processed++
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"processed_count": processed,
		"items":          results,
	})
}

func (s *Server) assertOne(item assertionBody) assertItemResult {
	subject := term.Atom(item.Subject)
	t := term.NewCompound(item.Predicate, subject, term.Atom(item.Object))

	report := s.shapes.Validate(s.engine.Store(), subject, t)
	if !report.Conforms {
		return assertItemResult{
			Admitted:   false,
			Validation: &validationBody{Conforms: false, Violations: report.Violations},
		}
	}

	meta := store.Meta{Asserted: true, Confidence: item.Confidence}
	if item.Provenance != nil {
		meta.Provenance = &store.Provenance{
			Source: item.Provenance.Source, DocID: item.Provenance.DocID,
			Span: item.Provenance.Span, Extractor: item.Provenance.Extractor, Timestamp: time.Now(),
		}
	}

	id, _, err := s.engine.Assert(t, meta)
	if err != nil {
		env := errorEnvelope{ErrorKind: string(apperr.KindOf(err)), Message: err.Error()}
		return assertItemResult{Admitted: false, Error: &env}
	}
	return assertItemResult{
		FactID:     id,
		Admitted:   true,
		Validation: &validationBody{Conforms: true},
	}
}

func (s *Server) handleRetract(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("fact_id"), 10, 64)
	if err != nil {
		writeError(w, apperr.New(apperr.BadRequest, "retract: invalid fact_id"))
		return
	}
	retracted, err := s.engine.Retract(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"retracted_ids": retracted})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	release := s.engine.ReadLease()
	defer release()

	raw := r.URL.Query().Get("pattern")
	pattern, err := query.ParsePattern(raw)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := query.ParseLimit(r.URL.Query().Get("limit"), s.engine.RuleLimits().MaxQueryResults)
	if err != nil {
		writeError(w, err)
		return
	}
	minConf, _ := strconv.ParseFloat(r.URL.Query().Get("min_confidence"), 64)
	includeJust := r.URL.Query().Get("include_justification") == "true"

	res, err := query.Evaluate(r.Context(), s.engine.Store(), s.engine.Graph(), pattern, query.Filters{
		MaxResults: limit, MinConfidence: minConf, IncludeJustification: includeJust,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	type matchBody struct {
		Bindings             map[string]string `json:"bindings"`
		FactID               int64             `json:"fact_id"`
		Confidence           float64           `json:"confidence"`
		JustificationSummary []string          `json:"justification_summary,omitempty"`
	}
	out := make([]matchBody, 0, len(res.Matches))
	for _, m := range res.Matches {
		b := make(map[string]string, len(m.Binding))
		for k, v := range m.Binding {
			b[k] = v.String()
		}
		out = append(out, matchBody{Bindings: b, FactID: m.FactID, Confidence: m.Confidence, JustificationSummary: m.JustificationSummary})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out, "count": res.Count})
}

func (s *Server) handleWhy(w http.ResponseWriter, r *http.Request) {
	release := s.engine.ReadLease()
	defer release()

	id, err := strconv.ParseInt(r.URL.Query().Get("fact_id"), 10, 64)
	if err != nil {
		writeError(w, apperr.New(apperr.BadRequest, "why: invalid fact_id"))
		return
	}
	maxDepth := 32
	if v := r.URL.Query().Get("max_depth"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxDepth = n
		}
	}

	f, ok := s.engine.Store().Get(id)
	if !ok {
		writeError(w, apperr.New(apperr.NotFound, "why: fact_id %d not found", id))
		return
	}

	node := buildJustificationDAG(s.engine, id, maxDepth)
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":       id,
		"justification": node,
		"has_proof":     len(s.engine.Graph().Justifications(id)) > 0 || f.Asserted,
	})
}

type dagNode struct {
	FactID     int64              `json:"fact_id"`
	Term       string             `json:"term"`
	Asserted   bool               `json:"asserted"`
	Rules      []string           `json:"rules,omitempty"`
	Supports   []*dagNode         `json:"supports,omitempty"`
	Provenance *store.Provenance  `json:"provenance,omitempty"`
}

func buildJustificationDAG(eng *engine.Engine, id int64, maxDepth int) *dagNode {
	f, ok := eng.Store().Get(id)
	if !ok {
		return nil
	}
	n := &dagNode{FactID: id, Term: f.Term.String(), Asserted: f.Asserted, Provenance: f.Provenance}
	if maxDepth <= 0 {
		return n
	}
	recs := eng.Graph().Justifications(id)
	seen := map[int64]bool{}
	for _, rec := range recs {
		n.Rules = append(n.Rules, rec.Rule)
		for _, p := range rec.Premises {
			if seen[p] {
				continue
			}
			seen[p] = true
			n.Supports = append(n.Supports, buildJustificationDAG(eng, p, maxDepth-1))
		}
	}
	return n
}

func (s *Server) handleSubgraph(w http.ResponseWriter, r *http.Request) {
	release := s.engine.ReadLease()
	defer release()

	limits := s.engine.RuleLimits()
	radius := limits.MaxRadius
	if v := r.URL.Query().Get("radius"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, apperr.New(apperr.BadRequest, "subgraph: invalid radius %q", v))
			return
		}
		radius = n
	}
	if limits.MaxRadius > 0 && radius > limits.MaxRadius {
		writeError(w, apperr.New(apperr.CapacityExhausted, "subgraph: radius %d exceeds max_radius %d", radius, limits.MaxRadius))
		return
	}

	maxNodes := limits.MaxSubgraphNodes
	if v := r.URL.Query().Get("max_nodes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, apperr.New(apperr.BadRequest, "subgraph: invalid max_nodes %q", v))
			return
		}
		if limits.MaxSubgraphNodes > 0 && n > limits.MaxSubgraphNodes {
			writeError(w, apperr.New(apperr.CapacityExhausted, "subgraph: max_nodes %d exceeds configured cap %d", n, limits.MaxSubgraphNodes))
			return
		}
		maxNodes = n
	}

	collapse := true
	if v := r.URL.Query().Get("collapse"); v != "" {
		collapse = v == "true"
	}

	env, err := subgraph.Extract(r.Context(), s.engine.Store(), r.URL.Query().Get("focus"), subgraph.Options{
		Radius:       radius,
		MaxNodes:     maxNodes,
		Collapse:     collapse,
		IncludeEdges: splitCommaList(r.URL.Query().Get("include_edges")),
		ExcludeEdges: splitCommaList(r.URL.Query().Get("exclude_edges")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func splitCommaList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) handleRulesLoad(w http.ResponseWriter, r *http.Request) {
	body, err := readAllLimited(r, s.engine.RuleLimits().MaxRulePackBytes)
	if err != nil {
		writeError(w, err)
		return
	}
	rpt, err := compiler.CompilePack(body, "loaded")
	if err != nil {
		writeError(w, err)
		return
	}
	loadReport := s.engine.LoadRules(rpt.Rules, nil)

	report := make([]ruleReportEntry, 0, len(rpt.Rejected)+len(loadReport.Outcomes))
	for _, rej := range rpt.Rejected {
		report = append(report, ruleReportEntry{Construct: rej.Construct, Name: rej.Key, Status: "rejected", Reason: rej.Reason})
	}
	for _, outcome := range loadReport.Outcomes {
		report = append(report, ruleReportEntry{Construct: outcome.Construct, Name: outcome.Name, Status: outcome.Status, Reason: outcome.Reason})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loaded_rule_count": rpt.LoadedCount,
		"rejected":          rpt.Rejected,
		"report":            report,
	})
}

// ruleReportEntry is one declarative construct's disposition in a
// rules/load response (SPEC_FULL.md §9 rules/load report field).
type ruleReportEntry struct {
	Construct string `json:"construct"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

func readAllLimited(r *http.Request, max int) ([]byte, error) {
	if max <= 0 {
		max = 5 << 20
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, int64(max)+1))
	if err != nil {
		return nil, apperr.New(apperr.BadRequest, "rules/load: failed to read body: %v", err)
	}
	if len(buf) > max {
		return nil, apperr.New(apperr.CapacityExhausted, "rules/load: rule pack exceeds max_rule_pack_bytes (%d)", max)
	}
	if len(buf) == 0 {
		return nil, apperr.New(apperr.BadRequest, "rules/load: empty body")
	}
	return buf, nil
}

func (s *Server) handleRulesStat(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   snap.Rules.Total,
		"by_kind": snap.Rules.ByKind,
		"by_origin": snap.Rules.ByOrigin,
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	release := s.engine.ReadLease()
	defer release()

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	radius := s.engine.RuleLimits().MaxRadius
	if v := r.URL.Query().Get("radius"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			radius = n
		}
	}
	env, err := subgraph.Extract(r.Context(), s.engine.Store(), r.URL.Query().Get("focus"), subgraph.Options{Radius: radius, MaxNodes: s.engine.RuleLimits().MaxSubgraphNodes})
	if err != nil {
		writeError(w, err)
		return
	}

	if format == "json" {
		writeJSON(w, http.StatusOK, env)
		return
	}
	if format != "svg" {
		writeError(w, apperr.New(apperr.Unsupported, "render: unsupported format %q", format))
		return
	}

	envJSON, err := json.Marshal(env)
	if err != nil {
		writeError(w, apperr.New(apperr.Internal, "render: could not encode subgraph: %v", err))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	svg, err := s.renderer.RenderSVG(ctx, envJSON)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(svg)
}
