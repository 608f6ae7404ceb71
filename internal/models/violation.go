package models

import "time"

type ViolationType string

const (
	ViolationCameraOff     ViolationType = "camera_off"
	ViolationCameraCovered ViolationType = "camera_covered"
	ViolationFaceMismatch  ViolationType = "face_mismatch"
	ViolationMultipleFaces ViolationType = "multiple_faces"

	// counted by the enforcement rules but never accepted on the ledger
	ViolationPhoneDetected ViolationType = "phone_detected"
	ViolationNoFace        ViolationType = "no_face"
)

// ObjectViolationTypes make up the object-detection category of the escalation rules.
var ObjectViolationTypes = []ViolationType{ViolationPhoneDetected, ViolationMultipleFaces, ViolationNoFace}

// Storable reports whether the type may be written to the ledger.
func (t ViolationType) Storable() bool {
	switch t {
	case ViolationCameraOff, ViolationCameraCovered, ViolationFaceMismatch, ViolationMultipleFaces:
		return true
	}
	return false
}

type ActionTaken string

const (
	ActionWarning      ActionTaken = "warning"
	ActionFinalWarning ActionTaken = "final_warning"
	ActionTerminated   ActionTaken = "terminated"
)

type ViolationSource string

const (
	SourceClient        ViolationSource = "client"
	SourceIdentityCheck ViolationSource = "identity_check"
)

// Violation is an immutable ledger row.
type Violation struct {
	ID            string          `bson:"_id" json:"id"`
	SessionID     string          `bson:"sessionId" json:"sessionId"`
	UserID        string          `bson:"userId" json:"userId"`
	ViolationType ViolationType   `bson:"violationType" json:"violationType"`
	ActionTaken   ActionTaken     `bson:"actionTaken" json:"actionTaken"`
	ScreenshotURL string          `bson:"screenshotUrl,omitempty" json:"screenshotUrl,omitempty"`
	EventID       string          `bson:"eventId,omitempty" json:"eventId,omitempty"`
	Source        ViolationSource `bson:"source" json:"source"`
	Timestamp     time.Time       `bson:"timestamp" json:"timestamp"`
}
