package proctoring

import "peerprep/interview/internal/models"

// Policy holds the escalation thresholds for the two violation categories.
// A recommendation is reached when either category meets its threshold.
type Policy struct {
	FaceWarning     int
	FaceFinal       int
	FaceTerminate   int
	ObjectWarning   int
	ObjectFinal     int
	ObjectTerminate int
}

var DefaultPolicy = Policy{
	FaceWarning:     1,
	FaceFinal:       3,
	FaceTerminate:   5,
	ObjectWarning:   1,
	ObjectFinal:     2,
	ObjectTerminate: 4,
}

func (p Policy) Recommend(faceMismatches, objectDetections int) models.Recommendation {
	switch {
	case faceMismatches >= p.FaceTerminate || objectDetections >= p.ObjectTerminate:
		return models.RecommendTerminated
	case faceMismatches >= p.FaceFinal || objectDetections >= p.ObjectFinal:
		return models.RecommendFinalWarning
	case faceMismatches >= p.FaceWarning || objectDetections >= p.ObjectWarning:
		return models.RecommendWarning
	default:
		return models.RecommendNone
	}
}

func (p Policy) Evaluate(faceMismatches, objectDetections int) models.Enforcement {
	rec := p.Recommend(faceMismatches, objectDetections)
	return models.Enforcement{
		TotalViolations:         faceMismatches + objectDetections,
		FaceMismatchCount:       faceMismatches,
		ObjectDetectionCount:    objectDetections,
		Recommendation:          rec,
		RequiresImmediateAction: rec == models.RecommendTerminated,
	}
}

func (p Policy) valid() bool {
	return p.FaceWarning > 0 && p.FaceWarning <= p.FaceFinal && p.FaceFinal <= p.FaceTerminate &&
		p.ObjectWarning > 0 && p.ObjectWarning <= p.ObjectFinal && p.ObjectFinal <= p.ObjectTerminate
}
