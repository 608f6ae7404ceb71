package models

type Recommendation string

const (
	RecommendNone         Recommendation = "none"
	RecommendWarning      Recommendation = "warning"
	RecommendFinalWarning Recommendation = "final_warning"
	RecommendTerminated   Recommendation = "terminated"
)

// Action maps a recommendation onto the action recorded with a violation.
// RecommendNone has no action.
func (r Recommendation) Action() (ActionTaken, bool) {
	switch r {
	case RecommendWarning:
		return ActionWarning, true
	case RecommendFinalWarning:
		return ActionFinalWarning, true
	case RecommendTerminated:
		return ActionTerminated, true
	}
	return "", false
}

// Enforcement is computed from ledger counts and never stored.
type Enforcement struct {
	TotalViolations         int            `json:"totalViolations"`
	FaceMismatchCount       int            `json:"faceMismatchCount"`
	ObjectDetectionCount    int            `json:"objectDetectionCount"`
	Recommendation          Recommendation `json:"recommendation"`
	RequiresImmediateAction bool           `json:"requiresImmediateAction"`
}

type SessionUpdate struct {
	FaceMismatchCount int  `json:"faceMismatchCount"`
	IsCritical        bool `json:"isCritical"`
}

type LogResult struct {
	Violation     *Violation     `json:"violation"`
	Duplicate     bool           `json:"duplicate,omitempty"`
	SessionUpdate *SessionUpdate `json:"sessionUpdate,omitempty"`
	Enforcement   Enforcement    `json:"enforcement"`
}

type VerifyResult struct {
	Verified                 bool       `json:"verified"`
	Similarity               float64    `json:"similarity"`
	Threshold                float64    `json:"threshold"`
	ConsecutiveMismatchCount int        `json:"consecutiveMismatchCount"`
	ConfirmedMismatch        bool       `json:"triggersViolation"`
	Message                  string     `json:"message"`
	Enforcement              *LogResult `json:"enforcement,omitempty"`
}

// DetectionResult is what the object-detection service reports for one frame.
type DetectionResult struct {
	PhoneDetected   bool     `json:"phoneDetected"`
	Confidence      float64  `json:"confidence"`
	DetectedObjects []string `json:"detectedObjects"`
}

type IncidentResult struct {
	Recorded      bool            `json:"recorded"`
	IncidentCount int             `json:"incidentCount"`
	PenaltyPoints int             `json:"penaltyPoints"`
	IsDetected    bool            `json:"isDetected"`
	ImageURL      string          `json:"imageUrl,omitempty"`
	Detection     DetectionResult `json:"detection"`
}

type FinalScore struct {
	SessionID         string `json:"sessionId"`
	TotalScore        int    `json:"totalScore"`
	MaxScore          int    `json:"maxScore"`
	OverallPercentage int    `json:"overallPercentage"`
	PenaltyPoints     int    `json:"penaltyPoints"`
	QuestionCount     int    `json:"questionCount"`
	AlreadyFinalized  bool   `json:"alreadyFinalized"`
}
