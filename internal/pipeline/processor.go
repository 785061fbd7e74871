package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dunamismax/staffcut/internal/compose"
	"github.com/dunamismax/staffcut/internal/domain"
	"github.com/dunamismax/staffcut/internal/layout"
)

// BackgroundName is the file every batch writes its shared background to.
const BackgroundName = "background.png"

var (
	ErrNoImages      = errors.New("no images found")
	ErrNameCollision = errors.New("input name collides with the background output")
)

type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyConcurrent Strategy = "concurrent"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategySequential:
		return StrategySequential, nil
	case StrategyConcurrent, "":
		return StrategyConcurrent, nil
	default:
		return "", fmt.Errorf("unknown strategy %q (use sequential or concurrent)", s)
	}
}

type Request struct {
	BatchID string
	Input   string
	Output  string
	Options domain.Options
}

// Item is one listed input. Name is the base name used for the output file.
type Item struct {
	Name string
	Key  string
}

type Output struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Path   string `json:"path"`
	Bytes  int    `json:"bytes"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type Result struct {
	Extent      domain.Extent
	Boxes       map[string]domain.BoundingBox
	Background  Output
	Outputs     []Output
	SourceBytes int
}

type Source interface {
	List(ctx context.Context, req Request) ([]Item, error)
	Fetch(ctx context.Context, item Item) ([]byte, error)
}

type Emitter interface {
	Prepare(ctx context.Context, req Request) error
	Emit(ctx context.Context, req Request, name string, data []byte, format string, extent domain.Extent) (Output, error)
}

type Config struct {
	Strategy    Strategy
	Concurrency int
	Metrics     *Metrics
}

type Processor struct {
	source      Source
	codec       Codec
	emitter     Emitter
	strategy    Strategy
	concurrency int
	logger      *zap.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

func NewProcessor(source Source, emitter Emitter, logger *zap.Logger, cfg Config) (*Processor, error) {
	if source == nil {
		return nil, errors.New("source is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	codec, err := newCodec()
	if err != nil {
		return nil, fmt.Errorf("build codec: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyConcurrent
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	return &Processor{
		source:      source,
		codec:       codec,
		emitter:     emitter,
		strategy:    strategy,
		concurrency: concurrency,
		logger:      logger,
		metrics:     cfg.Metrics,
		tracer:      otel.Tracer("staffcut/pipeline"),
	}, nil
}

func NewLocalProcessor(logger *zap.Logger, cfg Config) (*Processor, error) {
	return NewProcessor(LocalDirSource{}, LocalDirEmitter{}, logger, cfg)
}

func NewObjectStoreProcessor(storage ObjectStorage, logger *zap.Logger, cfg Config) (*Processor, error) {
	if storage == nil {
		return nil, errors.New("storage client is required")
	}
	return NewProcessor(ObjectStoreSource{Storage: storage}, ObjectStoreEmitter{Storage: storage}, logger, cfg)
}

// page is one decoded input with its detected box.
type page struct {
	item  Item
	img   image.Image
	box   domain.BoundingBox
	bytes int
}

type rendered struct {
	name   string
	format string
	data   []byte
}

// Process runs one batch: every box is detected before the shared extent is
// computed, and every output is encoded before the first one is written.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	startedAt := time.Now()
	req.Options = req.Options.WithDefaults()

	ctx, span := p.tracer.Start(ctx, "pipeline.process")
	span.SetAttributes(
		attribute.String("batch.id", req.BatchID),
		attribute.String("batch.input", req.Input),
		attribute.String("batch.output", req.Output),
		attribute.String("batch.strategy", string(p.strategy)),
	)
	defer span.End()

	result, err := p.process(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
		p.metrics.observeBatch(domain.BatchStatusFailed, time.Since(startedAt))
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Int("batch.images", len(result.Outputs)),
		attribute.Int("batch.extent.width", result.Extent.W),
		attribute.Int("batch.extent.height", result.Extent.H),
	)
	span.SetStatus(codes.Ok, "processed")
	p.metrics.observeBatch(domain.BatchStatusSucceeded, time.Since(startedAt))
	p.metrics.observeResult(result)
	return result, nil
}

func (p *Processor) process(ctx context.Context, req Request) (Result, error) {
	if err := req.Options.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid options: %w", err)
	}
	fill, err := compose.ParseColor(req.Options.Background)
	if err != nil {
		return Result{}, fmt.Errorf("background: %w", err)
	}

	items, err := p.list(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("list stage: %w", err)
	}
	if err := p.emitter.Prepare(ctx, req); err != nil {
		return Result{}, fmt.Errorf("prepare stage: %w", err)
	}

	pages, err := p.scan(ctx, items)
	if err != nil {
		return Result{}, fmt.Errorf("scan stage: %w", err)
	}

	boxes := make(map[string]domain.BoundingBox, len(pages))
	sourceBytes := 0
	for _, pg := range pages {
		boxes[pg.item.Name] = pg.box
		sourceBytes += pg.bytes
	}
	extent, err := layout.Aggregate(boxes)
	if err != nil {
		return Result{}, fmt.Errorf("aggregate stage: %w", err)
	}
	p.logger.Debug("Largest bounding box", zap.Stringer("extent", extent))

	outputs, err := p.render(ctx, pages, extent, req.Options.Radius, fill)
	if err != nil {
		return Result{}, fmt.Errorf("render stage: %w", err)
	}

	written, err := p.emit(ctx, req, outputs, extent)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}

	return Result{
		Extent:      extent,
		Boxes:       boxes,
		Background:  written[0],
		Outputs:     written[1:],
		SourceBytes: sourceBytes,
	}, nil
}

func (p *Processor) list(ctx context.Context, req Request) ([]Item, error) {
	items, err := p.source.List(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: extension %q in directory %s", ErrNoImages, req.Options.Extension, req.Input)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	for _, item := range items {
		if item.Name == BackgroundName {
			return nil, fmt.Errorf("%w: %s", ErrNameCollision, item.Key)
		}
		if _, err := formatForName(item.Name); err != nil {
			return nil, fmt.Errorf("output %s: %w", item.Name, err)
		}
	}

	if ce := p.logger.Check(zap.DebugLevel, "Found images"); ce != nil {
		names := make([]string, 0, len(items))
		for _, item := range items {
			names = append(names, item.Key)
		}
		ce.Write(zap.Strings("images", names))
	}
	p.logger.Info(fmt.Sprintf("Opened %d %s images", len(items), req.Options.Extension))
	return items, nil
}

// scan decodes every item and detects its box. All failures are collected so
// the whole set of problem files is reported at once.
func (p *Processor) scan(ctx context.Context, items []Item) ([]page, error) {
	p.logger.Info("Extracting largest bounding box of staff systems ...")
	defer p.metrics.timeStage("scan")()

	ctx, span := p.tracer.Start(ctx, "pipeline.scan")
	defer span.End()

	pages := make([]page, len(items))
	errs := make([]error, len(items))
	err := p.run(ctx, len(items), func(ctx context.Context, i int) error {
		pg, err := p.scanOne(ctx, items[i])
		if err != nil {
			p.logger.Error("image rejected", zap.String("image", items[i].Key), zap.Error(err))
			errs[i] = err
			return nil
		}
		pages[i] = pg
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return pages, nil
}

func (p *Processor) scanOne(ctx context.Context, item Item) (page, error) {
	p.logger.Debug("Getting bounding box for image", zap.String("image", item.Key))

	data, err := p.source.Fetch(ctx, item)
	if err != nil {
		return page{}, fmt.Errorf("%s: fetch: %w", item.Key, err)
	}
	img, err := p.codec.Decode(data)
	if err != nil {
		return page{}, fmt.Errorf("%s: decode: %w", item.Key, err)
	}
	box, err := layout.Detect(img)
	if err != nil {
		return page{}, fmt.Errorf("%s: %w", item.Key, err)
	}
	return page{item: item, img: img, box: box, bytes: len(data)}, nil
}

// render composes the background alongside every cutout. Slot 0 is the
// background, slot i+1 belongs to pages[i].
func (p *Processor) render(ctx context.Context, pages []page, extent domain.Extent, radius float64, fill color.Color) ([]rendered, error) {
	p.logger.Info("Creating background image ...")
	p.logger.Info("Centering and making images transparent ...")
	defer p.metrics.timeStage("render")()

	ctx, span := p.tracer.Start(ctx, "pipeline.render")
	defer span.End()

	out := make([]rendered, len(pages)+1)
	err := p.run(ctx, len(out), func(_ context.Context, i int) error {
		if i == 0 {
			data, err := p.codec.Encode(compose.Background(extent, radius, fill), formatPNG)
			if err != nil {
				return fmt.Errorf("%s: encode: %w", BackgroundName, err)
			}
			p.logger.Debug("Created background image")
			out[0] = rendered{name: BackgroundName, format: formatPNG, data: data}
			return nil
		}

		pg := pages[i-1]
		p.logger.Debug("Converting image", zap.String("image", pg.item.Key))
		img, err := compose.Normalize(pg.img, pg.box, extent)
		if err != nil {
			return fmt.Errorf("%s: normalize: %w", pg.item.Key, err)
		}
		format, err := formatForName(pg.item.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", pg.item.Key, err)
		}
		data, err := p.codec.Encode(img, format)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", pg.item.Key, err)
		}
		out[i] = rendered{name: pg.item.Name, format: format, data: data}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	p.logger.Debug("Made all images transparent")
	return out, nil
}

func (p *Processor) emit(ctx context.Context, req Request, outputs []rendered, extent domain.Extent) ([]Output, error) {
	defer p.metrics.timeStage("emit")()

	ctx, span := p.tracer.Start(ctx, "pipeline.emit")
	defer span.End()

	written := make([]Output, len(outputs))
	err := p.run(ctx, len(outputs), func(ctx context.Context, i int) error {
		o := outputs[i]
		w, err := p.emitter.Emit(ctx, req, o.name, o.data, o.format, extent)
		if err != nil {
			return fmt.Errorf("%s: %w", o.name, err)
		}
		p.logger.Info("Writing file: " + w.Path)
		written[i] = w
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return written, nil
}

// run executes n tasks with the configured strategy. Concurrent runs stop
// scheduling new tasks after the first error.
func (p *Processor) run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	if p.strategy == StrategySequential {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := task(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return task(gctx, i)
		})
	}
	return g.Wait()
}
