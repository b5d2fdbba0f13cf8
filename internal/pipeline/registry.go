// Package pipeline holds the plugin registry and the run orchestrator: one
// pass fetches every due source through the cache, runs processors over the
// fetched data, builds the market universe, fans out to detectors, and
// aggregates their edges into a ranked RunResult.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/market-scanner/internal/model"
)

// Source is a named, cached external-data provider. Fetch is the only
// side-effecting operation and must return a plain, serializable value.
type Source interface {
	Name() string
	Category() model.SourceCategory
	TTL() time.Duration
	Fetch(ctx context.Context) (any, error)
}

// Processor derives new data from one or more sources. Its result is merged
// into the shared data map under OutputKey, visible to detectors like any
// other source. Missing inputs arrive as absent keys, not as errors.
type Processor interface {
	Name() string
	Inputs() []string
	OutputKey() string
	Process(ctx context.Context, data SourceData) (any, error)
}

// Detector turns source data and the market universe into candidate edges.
// It must be a pure function of its declared inputs and must emit only edges
// at or above its declared MinEdge.
type Detector interface {
	Name() string
	Description() string
	Requires() []string
	MinEdge() float64
	Detect(ctx context.Context, data SourceData, markets []model.Market) ([]model.Edge, error)
}

// SourceData is the shared per-run data map: source name (or processor
// output key) to fetched value. Absent keys mean the input was never
// registered or failed with no cached fallback.
type SourceData map[string]any

// Has reports whether a value is present for name.
func (d SourceData) Has(name string) bool {
	_, ok := d[name]
	return ok
}

// Markets returns the value under name as a market list, or nil when the
// key is absent or holds something else.
func (d SourceData) Markets(name string) []model.Market {
	v, _ := d[name].([]model.Market)
	return v
}

// News returns the value under name as a news list, or nil.
func (d SourceData) News(name string) []model.NewsItem {
	v, _ := d[name].([]model.NewsItem)
	return v
}

// Table returns the value under name as a tabular feed snapshot.
func (d SourceData) Table(name string) (model.Table, bool) {
	v, ok := d[name].(model.Table)
	return v, ok
}

// Float returns a numeric value under name, handling the common case of a
// processor that publishes a bare number.
func (d SourceData) Float(name string) (float64, bool) {
	v, ok := d[name].(float64)
	return v, ok
}

// Registry holds the registered sources, processors, and detectors for one
// pipeline instance. Registration is last-write-wins by name so tests can
// hot-swap plugins. Dependency names are not validated here; the
// orchestrator treats unknown names as permanent misses at run time.
type Registry struct {
	mu         sync.RWMutex
	sources    map[string]Source
	processors map[string]Processor
	detectors  map[string]Detector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources:    make(map[string]Source),
		processors: make(map[string]Processor),
		detectors:  make(map[string]Detector),
	}
}

// RegisterSource adds or replaces a source by name.
func (r *Registry) RegisterSource(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[s.Name()]; ok {
		zap.L().Debug("registry: replacing source", zap.String("name", s.Name()))
	}
	r.sources[s.Name()] = s
}

// RegisterProcessor adds or replaces a processor by name.
func (r *Registry) RegisterProcessor(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.processors[p.Name()]; ok {
		zap.L().Debug("registry: replacing processor", zap.String("name", p.Name()))
	}
	r.processors[p.Name()] = p
}

// RegisterDetector adds or replaces a detector by name.
func (r *Registry) RegisterDetector(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.detectors[d.Name()]; ok {
		zap.L().Debug("registry: replacing detector", zap.String("name", d.Name()))
	}
	r.detectors[d.Name()] = d
}

// Source returns the named source.
func (r *Registry) Source(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Sources returns all sources sorted by name, giving runs a deterministic
// iteration order.
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Processors returns all processors sorted by name.
func (r *Registry) Processors() []Processor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Processor, 0, len(r.processors))
	for _, p := range r.processors {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Detectors returns all detectors sorted by name.
func (r *Registry) Detectors() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Detector, 0, len(r.detectors))
	for _, d := range r.detectors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

type funcSource struct {
	name     string
	category model.SourceCategory
	ttl      time.Duration
	fetch    func(ctx context.Context) (any, error)
}

func (s *funcSource) Name() string                   { return s.name }
func (s *funcSource) Category() model.SourceCategory { return s.category }
func (s *funcSource) TTL() time.Duration             { return s.ttl }
func (s *funcSource) Fetch(ctx context.Context) (any, error) {
	return s.fetch(ctx)
}

// NewSource builds a Source from a fetch function.
func NewSource(name string, category model.SourceCategory, ttl time.Duration, fetch func(ctx context.Context) (any, error)) Source {
	return &funcSource{name: name, category: category, ttl: ttl, fetch: fetch}
}

type funcProcessor struct {
	name    string
	inputs  []string
	output  string
	process func(ctx context.Context, data SourceData) (any, error)
}

func (p *funcProcessor) Name() string      { return p.name }
func (p *funcProcessor) Inputs() []string  { return p.inputs }
func (p *funcProcessor) OutputKey() string { return p.output }
func (p *funcProcessor) Process(ctx context.Context, data SourceData) (any, error) {
	return p.process(ctx, data)
}

// NewProcessor builds a Processor from a process function.
func NewProcessor(name string, inputs []string, outputKey string, process func(ctx context.Context, data SourceData) (any, error)) Processor {
	return &funcProcessor{name: name, inputs: inputs, output: outputKey, process: process}
}

type funcDetector struct {
	name     string
	desc     string
	requires []string
	minEdge  float64
	detect   func(ctx context.Context, data SourceData, markets []model.Market) ([]model.Edge, error)
}

func (d *funcDetector) Name() string        { return d.name }
func (d *funcDetector) Description() string { return d.desc }
func (d *funcDetector) Requires() []string  { return d.requires }
func (d *funcDetector) MinEdge() float64    { return d.minEdge }
func (d *funcDetector) Detect(ctx context.Context, data SourceData, markets []model.Market) ([]model.Edge, error) {
	return d.detect(ctx, data, markets)
}

// NewDetector builds a Detector from a detect function.
func NewDetector(name, description string, requires []string, minEdge float64, detect func(ctx context.Context, data SourceData, markets []model.Market) ([]model.Edge, error)) Detector {
	return &funcDetector{name: name, desc: description, requires: requires, minEdge: minEdge, detect: detect}
}
