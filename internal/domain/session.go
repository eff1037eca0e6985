package domain

import (
	"time"
)

// Session is the persisted form of a diagnostic result.
type Session struct {
	ID               string          `json:"id"`
	Disease          DiseaseCategory `json:"disease"`
	Status           string          `json:"status"`
	Label            string          `json:"label"`
	Confidence       float64         `json:"confidence"`
	Explanation      string          `json:"explanation"`
	ImagePath        string          `json:"image_path,omitempty"`
	SaliencyPath     string          `json:"saliency_path,omitempty"`
	Attributions     []Attribution   `json:"attributions"`
	EngineeredRecord FeatureRecord   `json:"engineered_record"`
	CreatedAt        time.Time       `json:"created_at"`
}

// StatusCompleted marks a session whose prediction finished.
const StatusCompleted = "completed"

// NewSession builds a completed session from a result.
func NewSession(id string, imagePath string, result *DiagnosticResult) *Session {
	return &Session{
		ID:               id,
		Disease:          result.Disease,
		Status:           StatusCompleted,
		Label:            result.Label,
		Confidence:       result.Confidence,
		Explanation:      result.Explanation,
		ImagePath:        imagePath,
		SaliencyPath:     result.SaliencyPath,
		Attributions:     result.Attributions,
		EngineeredRecord: result.EngineeredRecord,
	}
}
