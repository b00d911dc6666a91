// Package store implements the fact store (spec.md §4.B): admission,
// retraction, lookup, and the primary/head/argument indices. It is
// modeled on the index bookkeeping in codenerd's internal/mangle engine
// (predicateIndex, factCount) but generalized to the spec's fact_id /
// tombstone / argument-index contract.
package store

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"noetic/internal/apperr"
	"noetic/internal/logging"
	"noetic/internal/term"
)

// Provenance is the optional record attached to asserted facts (spec.md
// §3) and propagated verbatim through `why`; it is never matched against
// in queries (spec.md §9 Open Questions).
type Provenance struct {
	Source        string    `json:"source,omitempty"`
	DocID         string    `json:"doc_id,omitempty"`
	Span          string    `json:"span,omitempty"`
	Extractor     string    `json:"extractor,omitempty"`
	ModelVersion  string    `json:"model_version,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// Meta carries the admission-time attributes of a Fact.
type Meta struct {
	Asserted   bool
	Confidence float64 // defaults to 1.0 if zero-valued
	Provenance *Provenance
}

// Fact is a ground Compound plus its store-assigned metadata (spec.md §3).
type Fact struct {
	ID         int64
	Term       term.Term
	Asserted   bool
	Confidence float64
	Provenance *Provenance
	Retracted  bool
}

type headKey struct {
	functor string
	arity   int
}

type argKey struct {
	functor  string
	position int
}

// Store holds ground facts and their indices. All mutating methods are
// safe for concurrent use, but spec.md §5 assigns sole ownership of
// mutation to the inference engine's single goroutine — this mutex exists
// so the Store is independently testable and defensively correct, not to
// invite concurrent writers.
type Store struct {
	mu sync.RWMutex

	nextID int64
	facts  map[int64]*Fact

	// byTerm supports idempotent admission: a non-retracted fact with an
	// identical Term returns its existing ID (spec.md §4.B, §8 law 4).
	byTerm map[string]int64

	headIndex map[headKey][]int64           // ascending fact_id, live only
	argIndex  map[argKey]map[string][]int64  // ascending fact_id, live only
	argWanted map[argKey]bool                // lazily created on WantArgIndex request
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		facts:     make(map[int64]*Fact),
		byTerm:    make(map[string]int64),
		headIndex: make(map[headKey][]int64),
		argIndex:  make(map[argKey]map[string][]int64),
		argWanted: make(map[argKey]bool),
	}
}

// WantArgIndex registers a lazy (functor, position) argument index and
// builds it from the live facts. The query evaluator calls it when a
// pattern has a ground argument at that position; calling it again for
// the same key is a no-op.
func (s *Store) WantArgIndex(functor string, position int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := argKey{functor, position}
	if s.argWanted[key] {
		return
	}
	s.argWanted[key] = true
	idx := make(map[string][]int64)
	for _, id := range s.headIndexAnyArity(functor) {
		f := s.facts[id]
		if f.Retracted || position >= len(f.Term.Args()) {
			continue
		}
		v := f.Term.Args()[position].String()
		idx[v] = insertSorted(idx[v], id)
	}
	s.argIndex[key] = idx
}

func (s *Store) headIndexAnyArity(functor string) []int64 {
	var out []int64
	for k, ids := range s.headIndex {
		if k.functor == functor {
			out = append(out, ids...)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Admit inserts term as a new fact, or returns the existing live fact's ID
// if a structurally identical term is already present (idempotent —
// spec.md §4.B, §8 law 4).
func (s *Store) Admit(t term.Term, meta Meta) (id int64, isNew bool, err error) {
	if !t.Ground() {
		return 0, false, apperr.New(apperr.BadRequest, "admit: term %s is not ground", t.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.String()
	if existing, ok := s.byTerm[key]; ok {
		if f := s.facts[existing]; f != nil && !f.Retracted {
			if meta.Asserted && !f.Asserted {
				// Asserted wins: a fact first reached by derivation and
				// later independently asserted is promoted in place so it
				// carries asserted provenance and survives premise loss
				// (spec.md §3).
				f.Asserted = true
				confidence := meta.Confidence
				if confidence == 0 {
					confidence = 1.0
				}
				f.Confidence = confidence
				f.Provenance = meta.Provenance
				logging.Get(logging.CategoryStore).Debugw("promoted derived fact to asserted", "fact_id", existing, "term", key)
			}
			return existing, false, nil
		}
	}

	confidence := meta.Confidence
	if confidence == 0 {
		confidence = 1.0
	}

	s.nextID++
	id = s.nextID
	f := &Fact{
		ID:         id,
		Term:       t,
		Asserted:   meta.Asserted,
		Confidence: confidence,
		Provenance: meta.Provenance,
	}
	s.facts[id] = f
	s.byTerm[key] = id

	hk := headKey{t.Functor(), t.Arity()}
	s.headIndex[hk] = insertSorted(s.headIndex[hk], id)

	for pos, arg := range t.Args() {
		ak := argKey{t.Functor(), pos}
		if !s.argWanted[ak] {
			continue
		}
		v := arg.String()
		idx := s.argIndex[ak]
		if idx == nil {
			idx = make(map[string][]int64)
			s.argIndex[ak] = idx
		}
		idx[v] = insertSorted(idx[v], id)
	}

	logging.Get(logging.CategoryStore).Debugw("admitted fact", "fact_id", id, "term", key, "asserted", meta.Asserted)
	return id, true, nil
}

// Retract sets the tombstone on fact_id and removes its index entries.
// Retracting an unknown or already-retracted fact_id is a no-op reporting
// not-found (spec.md §4.B Failure modes).
func (s *Store) Retract(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[id]
	if !ok || f.Retracted {
		return apperr.New(apperr.NotFound, "retract: fact_id %d not found", id)
	}
	f.Retracted = true

	hk := headKey{f.Term.Functor(), f.Term.Arity()}
	s.headIndex[hk] = removeSorted(s.headIndex[hk], id)

	for pos, arg := range f.Term.Args() {
		ak := argKey{f.Term.Functor(), pos}
		if idx, ok := s.argIndex[ak]; ok {
			v := arg.String()
			idx[v] = removeSorted(idx[v], id)
		}
	}

	logging.Get(logging.CategoryStore).Debugw("retracted fact", "fact_id", id)
	return nil
}

// Get returns the fact record (including retracted ones, so callers like
// `why` can still render tombstoned history) or ok=false if the ID was
// never allocated.
func (s *Store) Get(id int64) (Fact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[id]
	if !ok {
		return Fact{}, false
	}
	return *f, true
}

// Lookup returns live facts with the given (functor, arity) head, in
// ascending fact_id order.
func (s *Store) Lookup(functor string, arity int) []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.headIndex[headKey{functor, arity}]
	out := make([]Fact, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.facts[id])
	}
	return out
}

// LookupByArg returns live facts whose functor's argument at position
// equals value, using the secondary index if one was requested via
// WantArgIndex, else falling back to a linear scan over Lookup's result
// for every encountered arity.
func (s *Store) LookupByArg(functor string, position int, value term.Term) []Fact {
	s.mu.RLock()
	ak := argKey{functor, position}
	if idx, ok := s.argIndex[ak]; ok {
		ids := idx[value.String()]
		out := make([]Fact, 0, len(ids))
		for _, id := range ids {
			out = append(out, *s.facts[id])
		}
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()

	var out []Fact
	for _, hk := range s.headKeysFor(functor) {
		for _, f := range s.Lookup(functor, hk.arity) {
			if position < len(f.Term.Args()) && f.Term.Args()[position].Equal(value) {
				out = append(out, f)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Exists reports whether a live fact structurally equal to t is present.
func (s *Store) Exists(t term.Term) bool {
	_, ok := s.FindID(t)
	return ok
}

// FindID returns the fact_id of the live fact structurally equal to t.
func (s *Store) FindID(t term.Term) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTerm[t.String()]
	if !ok {
		return 0, false
	}
	if f := s.facts[id]; f == nil || f.Retracted {
		return 0, false
	}
	return id, true
}

func (s *Store) headKeysFor(functor string) []headKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []headKey
	for k := range s.headIndex {
		if k.functor == functor {
			out = append(out, k)
		}
	}
	return out
}

// Stats reports per-functor/arity live fact counts (ambient addition,
// SPEC_FULL.md §4.B, mirroring the teacher's Engine.Stats()).
type Stats struct {
	TotalFacts      int
	PredicateCounts map[string]int
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{PredicateCounts: make(map[string]int)}
	for k, ids := range s.headIndex {
		st.PredicateCounts[k.functor+"/"+strconv.Itoa(k.arity)] += len(ids)
		st.TotalFacts += len(ids)
	}
	return st
}

// AllLive returns every non-retracted fact, ascending by fact_id. Used by
// the subgraph extractor, the RPC Search scan, and bare-functor queries.
func (s *Store) AllLive() []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Fact, 0, len(s.facts))
	for _, f := range s.facts {
		if !f.Retracted {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func insertSorted(ids []int64, id int64) []int64 {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return ids
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeSorted(ids []int64, id int64) []int64 {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return append(ids[:i], ids[i+1:]...)
	}
	return ids
}
