// Package service implements the hybrid diagnostic pipeline: base classifiers,
// stacking, the clinical guardrail, image fusion, attribution ranking and result
// assembly.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hybrid-diagnosis-engine/internal/domain"
	"github.com/hybrid-diagnosis-engine/internal/features"
)

const instrumentationName = "github.com/hybrid-diagnosis-engine/internal/service"

// DiagnosticEngine is the single entry point of the pipeline. It holds no
// per-case state and is safe for concurrent use.
type DiagnosticEngine struct {
	logger    *logrus.Logger
	models    domain.ModelProvider
	engineer  *features.Engineer
	predictor *BasePredictor
	stacker   *StackingCombiner
	guardrail *Guardrail
	imaging   *ImagingPipeline
	ranker    *AttributionRanker

	tracer       trace.Tracer
	degradations metric.Int64Counter
}

type engineOptions struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// EngineOption configures a DiagnosticEngine.
type EngineOption func(*engineOptions)

// WithTracerProvider sets the provider used for pipeline spans.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(o *engineOptions) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets the provider used for the degradation counter.
func WithMeterProvider(mp metric.MeterProvider) EngineOption {
	return func(o *engineOptions) {
		o.meterProvider = mp
	}
}

// NewDiagnosticEngine wires the pipeline over a loaded model registry.
func NewDiagnosticEngine(logger *logrus.Logger, models domain.ModelProvider, cfg *domain.Config, opts ...EngineOption) (*DiagnosticEngine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine configuration is required")
	}
	o := engineOptions{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	imaging, err := NewImagingPipeline(logger, models, cfg.Imaging, cfg.Media)
	if err != nil {
		return nil, err
	}

	counter, err := o.meterProvider.Meter(instrumentationName).Int64Counter(
		"diagnosis.degradations",
		metric.WithDescription("Number of non-fatal pipeline component failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create degradation counter: %w", err)
	}

	return &DiagnosticEngine{
		logger:       logger,
		models:       models,
		engineer:     features.NewEngineer(),
		predictor:    NewBasePredictor(logger, models, cfg.Inference),
		stacker:      NewStackingCombiner(logger, models),
		guardrail:    NewGuardrail(logger),
		imaging:      imaging,
		ranker:       NewAttributionRanker(logger, models),
		tracer:       o.tracerProvider.Tracer(instrumentationName),
		degradations: counter,
	}, nil
}

// Predict runs the full pipeline for one case. The only error it returns is a
// validation error for an unsupported disease category; every component failure
// degrades the result instead.
func (e *DiagnosticEngine) Predict(ctx context.Context, clinicalData map[string]any, imagePath string, disease domain.DiseaseCategory) (*domain.DiagnosticResult, error) {
	if !disease.IsValid() {
		return nil, domain.NewValidationError("disease_category",
			fmt.Sprintf("%v: %q", domain.ErrInvalidDisease, disease), disease)
	}

	startTime := time.Now()
	ctx, span := e.tracer.Start(ctx, "diagnosis.predict", trace.WithAttributes(
		attribute.String("diagnosis.disease", disease.String()),
		attribute.Bool("diagnosis.has_image", imagePath != ""),
	))
	defer span.End()

	e.logger.WithFields(logrus.Fields{
		"disease":   disease,
		"has_image": imagePath != "",
		"fields":    len(clinicalData),
	}).Info("Starting diagnostic prediction")

	a := &Assembly{Disease: disease}

	_, stage := e.tracer.Start(ctx, "features")
	a.Record = e.engineer.Engineer(e.engineer.FromRaw(clinicalData))
	stage.End()

	_, stage = e.tracer.Start(ctx, "base_models")
	base := e.predictor.Predict(ctx, a.Record)
	stage.SetAttributes(attribute.Int("diagnosis.base_failures", len(base.Degradations)))
	stage.End()
	a.Degradations = append(a.Degradations, base.Degradations...)

	_, stage = e.tracer.Start(ctx, "stacking")
	a.Stacking = e.stacker.Combine(base)
	stage.SetAttributes(
		attribute.Bool("diagnosis.meta_learner", a.Stacking.UsedMeta),
		attribute.Float64("diagnosis.ml_probability", a.Stacking.Probability),
	)
	stage.End()
	if a.Stacking.Degradation != nil {
		a.Degradations = append(a.Degradations, *a.Stacking.Degradation)
	}

	_, stage = e.tracer.Start(ctx, "calibration")
	a.Calibration = e.guardrail.Calibrate(disease, a.Record, a.Stacking.Probability)
	stage.SetAttributes(attribute.Float64("diagnosis.clinical_points", a.Calibration.ClinicalPoints))
	stage.End()

	if e.imaging.Applies(disease, imagePath) {
		imgCtx, stage := e.tracer.Start(ctx, "imaging")
		a.Imaging = e.imaging.Run(imgCtx, imagePath)
		stage.SetAttributes(
			attribute.Bool("diagnosis.imaging_ran", a.Imaging.Ran),
			attribute.Bool("diagnosis.heatmap", a.Imaging.Heatmap),
		)
		stage.End()
		a.Degradations = append(a.Degradations, a.Imaging.Degradations...)
	}

	_, stage = e.tracer.Start(ctx, "attribution")
	attributions, degradation := e.ranker.Rank(disease, a.Record)
	stage.SetAttributes(attribute.Int("diagnosis.attributions", len(attributions)))
	stage.End()
	a.Attributions = attributions
	if degradation != nil {
		a.Degradations = append(a.Degradations, *degradation)
	}

	result := Assemble(a)
	for _, d := range result.Degradations {
		e.degradations.Add(ctx, 1, metric.WithAttributes(attribute.String("component", d.Component)))
	}
	span.SetAttributes(
		attribute.String("diagnosis.label", result.Label),
		attribute.Float64("diagnosis.confidence", result.Confidence),
		attribute.Int("diagnosis.degradations", len(result.Degradations)),
	)

	e.logger.WithFields(logrus.Fields{
		"disease":      disease,
		"label":        result.Label,
		"confidence":   result.Confidence,
		"ml_prob":      result.MLProbability,
		"calibrated":   result.CalibratedProbability,
		"final_prob":   result.Probability,
		"degradations": len(result.Degradations),
		"duration":     time.Since(startTime),
	}).Info("Diagnostic prediction completed")

	return result, nil
}

// PredictPV runs a clinical-only Pemphigus Vulgaris prediction.
func (e *DiagnosticEngine) PredictPV(ctx context.Context, clinicalData map[string]any) (*domain.DiagnosticResult, error) {
	return e.Predict(ctx, clinicalData, "", domain.PV)
}

// PredictAEFusion runs an Autoimmune Encephalitis prediction fused with the image.
func (e *DiagnosticEngine) PredictAEFusion(ctx context.Context, clinicalData map[string]any, imagePath string) (*domain.DiagnosticResult, error) {
	return e.Predict(ctx, clinicalData, imagePath, domain.AE)
}

// Models exposes the registry the engine was built on.
func (e *DiagnosticEngine) Models() domain.ModelProvider {
	return e.models
}
