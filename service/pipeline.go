package service

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krau/objclassify/monitor"
	"go.uber.org/zap"
)

type Options struct {
	// ModelCandidates are model identifiers in priority order.
	ModelCandidates []string
	LabelsID        string
	// Threshold drops results with a lower confidence. Zero keeps everything.
	Threshold  float64
	Preprocess PreprocessOptions
}

// Pipeline classifies images with one engine and label set loaded at
// startup. Classify never fails: any problem yields Fallback().
type Pipeline struct {
	models ModelLoader
	texts  TextLoader
	opts   Options
	pre    *Preprocessor
	log    *zap.Logger

	loadMu   sync.Mutex
	disposed bool

	// runMu serializes engine use; the engine is not safe for concurrent runs.
	runMu  sync.Mutex
	mu     sync.RWMutex
	engine Engine
	model  string
	labels LabelSet
	loaded atomic.Bool
}

func NewPipeline(models ModelLoader, texts TextLoader, opts Options, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		models: models,
		texts:  texts,
		opts:   opts,
		pre:    NewPreprocessor(opts.Preprocess),
		log:    log,
	}
}

// Load acquires the model and labels. It blocks; failures leave the
// pipeline not loaded and are only logged. Loading again after success or
// after Dispose does nothing.
func (p *Pipeline) Load() {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	if p.disposed || p.IsLoaded() {
		return
	}
	start := time.Now()
	if err := p.load(); err != nil {
		p.log.Warn("classifier not loaded", zap.Error(err))
		monitor.SetModelLoaded(false)
		return
	}
	p.log.Info("classifier loaded",
		zap.String("model", p.model),
		zap.Int("labels", len(p.labels)),
		zap.Duration("took", time.Since(start)))
	monitor.SetModelLoaded(true)
}

func (p *Pipeline) load() error {
	engine, id, err := TryInOrder(p.opts.ModelCandidates, p.models)
	if err != nil {
		return err
	}
	labels, err := LoadLabels(p.texts, p.opts.LabelsID)
	if err != nil {
		_ = engine.Destroy()
		return err
	}
	if n := engine.OutputShape()[1]; int(n) != len(labels) {
		p.log.Warn("model output and label count differ; extra entries are ignored",
			zap.String("model", id),
			zap.Int64("outputs", n),
			zap.Int("labels", len(labels)))
	}

	p.mu.Lock()
	p.engine, p.model, p.labels = engine, id, labels
	p.mu.Unlock()
	p.loaded.Store(true)
	return nil
}

func (p *Pipeline) IsLoaded() bool {
	return p.loaded.Load()
}

func (p *Pipeline) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

func (p *Pipeline) Labels() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.labels)
}

// Classify returns up to MaxResults labels for the encoded image, or
// Fallback() if the pipeline is not loaded or any step fails.
func (p *Pipeline) Classify(data []byte) []Result {
	results, err := p.TryClassify(data)
	monitor.ObserveClassification(Reason(err))
	if err != nil {
		p.log.Debug("classification fell back", zap.Error(err))
		return Fallback()
	}
	return results
}

// TryClassify is Classify without the fallback.
func (p *Pipeline) TryClassify(data []byte) ([]Result, error) {
	if !p.IsLoaded() {
		return nil, ErrModelUnavailable
	}
	p.mu.RLock()
	engine, labels := p.engine, p.labels
	p.mu.RUnlock()
	if engine == nil {
		return nil, ErrModelUnavailable
	}

	tensor, err := p.pre.FromBytes(data, engine.InputShape())
	if err != nil {
		return nil, err
	}
	scores, err := p.run(engine, tensor)
	if err != nil {
		return nil, err
	}
	return Postprocess(scores, labels, p.opts.Threshold), nil
}

func (p *Pipeline) run(engine Engine, t Tensor) ([]float32, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	p.mu.RLock()
	current := p.engine
	p.mu.RUnlock()
	if current != engine {
		return nil, fmt.Errorf("%w: engine released", ErrModelUnavailable)
	}

	start := time.Now()
	defer func() { monitor.ObserveInference(time.Since(start)) }()
	return Invoke(engine, t)
}

// Dispose releases the engine. It is safe to call more than once.
func (p *Pipeline) Dispose() {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	p.disposed = true

	p.runMu.Lock()
	defer p.runMu.Unlock()
	p.mu.Lock()
	engine := p.engine
	p.engine = nil
	p.mu.Unlock()
	p.loaded.Store(false)
	monitor.SetModelLoaded(false)

	if engine == nil {
		return
	}
	if err := engine.Destroy(); err != nil {
		p.log.Warn("failed to release engine", zap.Error(err))
	}
}
