package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybrid-diagnosis-engine/internal/domain"
)

func TestDisplayConfidence(t *testing.T) {
	tests := []struct {
		name         string
		final        float64
		wantPositive bool
		want         float64
	}{
		{"Zero_Clamped", 0, false, 95},
		{"One_Clamped", 1, true, 95},
		{"Boundary_Is_Normal", 0.5, false, 50},
		{"Positive", 0.6, true, 60},
		{"Normal", 0.3, false, 70},
		{"Near_Zero", 0.97, true, 95},
		{"Low_Positive", 0.5001, true, 50.01},
		{"Rounded", 0.123456, false, 87.65},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			positive, conf := DisplayConfidence(tt.final)
			assert.Equal(t, tt.wantPositive, positive)
			assert.InDelta(t, tt.want, conf, 1e-9)
			assert.GreaterOrEqual(t, conf, MinConfidence)
			assert.LessOrEqual(t, conf, MaxConfidence)
		})
	}
}

func TestExplain(t *testing.T) {
	tests := []struct {
		name    string
		disease domain.DiseaseCategory
		label   string
		conf    float64
		raw     map[string]any
		want    string
	}{
		{
			name:    "Normal",
			disease: domain.AE,
			label:   domain.LabelNormal,
			conf:    70,
			want:    "The AI analysis indicates a 70.0% probability of Normal status.",
		},
		{
			name:    "AE_Reasons",
			disease: domain.AE,
			label:   domain.LabelAE,
			conf:    60,
			raw:     map[string]any{"csf_protein": 60, "seizures": 1, "memory_loss": 1},
			want:    "The model predicts Autoimmune Encephalitis (AE) (60.0% risk score) driven by high CSF protein (60.0 mg/dL), seizure activity.",
		},
		{
			name:    "PV_Reasons",
			disease: domain.PV,
			label:   domain.LabelPV,
			conf:    82.5,
			raw:     map[string]any{"dsg1_index": 25.5, "dsg3_index": 40},
			want:    "The model predicts Pemphigus Vulgaris (PV) (82.5% risk score) driven by elevated Dsg1 (25.5), elevated Dsg3 (40.0).",
		},
		{
			name:    "Fallback_Reason",
			disease: domain.PV,
			label:   domain.LabelPV,
			conf:    55,
			raw:     map[string]any{"skin_blisters": 1},
			want:    "The model predicts Pemphigus Vulgaris (PV) (55.0% risk score) driven by clinical pattern matching.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Explain(tt.disease, tt.label, tt.conf, engineered(tt.raw)))
		})
	}
}

func TestAssemble(t *testing.T) {
	record := engineered(map[string]any{"csf_protein": 60, "seizures": 1})

	t.Run("Fuses_When_Imaging_Ran", func(t *testing.T) {
		a := &Assembly{
			Disease:     domain.AE,
			Record:      record,
			Stacking:    StackingOutcome{Probability: 0.5},
			Calibration: Calibration{Calibrated: 0.8},
			Imaging:     &ImagingOutcome{Ran: true, CNNProbability: 0.2, SaliencyPath: "/media/grad_cam/scan_x.png"},
		}
		assert.InDelta(t, 0.62, a.FinalProbability(), 1e-12)

		res := Assemble(a)
		assert.Equal(t, domain.LabelAE, res.Label)
		assert.True(t, res.Positive)
		assert.InDelta(t, 62.0, res.Confidence, 1e-9)
		require.NotNil(t, res.CNNProbability)
		assert.Equal(t, 0.2, *res.CNNProbability)
		assert.Equal(t, "/media/grad_cam/scan_x.png", res.SaliencyPath)
		assert.Equal(t, 0.5, res.MLProbability)
		assert.Equal(t, 0.8, res.CalibratedProbability)
	})

	t.Run("No_Fusion_When_Imaging_Failed", func(t *testing.T) {
		a := &Assembly{
			Disease:     domain.AE,
			Record:      record,
			Calibration: Calibration{Calibrated: 0.8},
			Imaging:     &ImagingOutcome{Ran: false},
		}
		res := Assemble(a)
		assert.Equal(t, 0.8, res.Probability)
		assert.Nil(t, res.CNNProbability)
		assert.False(t, res.HasSaliency())
	})

	t.Run("Normal_Result", func(t *testing.T) {
		res := Assemble(&Assembly{
			Disease:     domain.PV,
			Record:      engineered(nil),
			Calibration: Calibration{Calibrated: 0.1},
		})
		assert.Equal(t, domain.LabelNormal, res.Label)
		assert.False(t, res.Positive)
		assert.Equal(t, 90.0, res.Confidence)
		assert.Equal(t, "The AI analysis indicates a 90.0% probability of Normal status.", res.Explanation)
		assert.NotNil(t, res.Attributions)
		assert.Empty(t, res.Attributions)
	})
}

func TestFuse(t *testing.T) {
	assert.InDelta(t, 0.62, Fuse(0.8, 0.2), 1e-12)
	assert.InDelta(t, 0.0, Fuse(0, 0), 1e-12)
	assert.InDelta(t, 1.0, Fuse(1, 1), 1e-12)
}
