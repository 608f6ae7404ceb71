package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InterviewSession is a single practice interview owned by one user.
type InterviewSession struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID `bson:"userId" json:"userId"`
	Role              string             `bson:"role" json:"role"`
	TotalQuestions    int                `bson:"totalQuestions" json:"totalQuestions"`
	CurrentIndex      int                `bson:"currentIndex" json:"currentIndex"`
	Questions         []QuestionRecord   `bson:"questions" json:"questions"`
	TotalScore        int                `bson:"totalScore" json:"totalScore"`
	OverallPercentage int                `bson:"overallPercentage" json:"overallPercentage"`
	BodyLanguage      *BodyLanguage      `bson:"bodyLanguage,omitempty" json:"bodyLanguage,omitempty"`
	Cheating          CheatingRecord     `bson:"cheating" json:"cheating"`
	IsCompleted       bool               `bson:"isCompleted" json:"isCompleted"`
	FinalizedAt       *time.Time         `bson:"finalizedAt,omitempty" json:"finalizedAt,omitempty"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// QuestionRecord is one slot of the ordered question list.
type QuestionRecord struct {
	Question    string     `bson:"question" json:"question"`
	IdealAnswer string     `bson:"idealAnswer" json:"-"`
	Answer      string     `bson:"answer" json:"answer"`
	Score       int        `bson:"score" json:"score"`
	Feedback    string     `bson:"feedback" json:"feedback"`
	Behavior    *Behavior  `bson:"behavior,omitempty" json:"behavior,omitempty"`
	AnsweredAt  *time.Time `bson:"answeredAt,omitempty" json:"answeredAt,omitempty"`
}

type Behavior struct {
	Confident  float64 `bson:"confident" json:"confident"`
	Nervous    float64 `bson:"nervous" json:"nervous"`
	Distracted float64 `bson:"distracted" json:"distracted"`
}

type BodyLanguage struct {
	EyeContact       float64   `bson:"eyeContact" json:"eyeContact"`
	Engagement       float64   `bson:"engagement" json:"engagement"`
	Attention        float64   `bson:"attention" json:"attention"`
	Stability        float64   `bson:"stability" json:"stability"`
	DominantBehavior string    `bson:"dominantBehavior" json:"dominantBehavior"`
	SampleCount      int       `bson:"sampleCount" json:"sampleCount"`
	LastUpdated      time.Time `bson:"lastUpdated" json:"lastUpdated"`
}

// CheatingRecord holds the proctoring counters of a session.
// IsDetected is sticky, PenaltyPoints only grows until the score is finalized.
type CheatingRecord struct {
	IsDetected               bool       `bson:"isDetected" json:"isDetected"`
	IncidentCount            int        `bson:"incidentCount" json:"incidentCount"`
	PenaltyPoints            int        `bson:"penaltyPoints" json:"penaltyPoints"`
	Incidents                []Incident `bson:"incidents" json:"incidents"`
	FaceMismatchCount        int        `bson:"faceMismatchCount" json:"faceMismatchCount"`
	ConsecutiveMismatchCount int        `bson:"consecutiveMismatchCount" json:"consecutiveMismatchCount"`
}

// Incident is a banned-object detection recorded against a session.
type Incident struct {
	Timestamp       time.Time `bson:"timestamp" json:"timestamp"`
	Confidence      float64   `bson:"confidence" json:"confidence"`
	DetectedObjects []string  `bson:"detectedObjects" json:"detectedObjects"`
	ImageURL        string    `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
}

// AnsweredCount returns how many question slots carry an answer.
func (s *InterviewSession) AnsweredCount() int {
	n := 0
	for _, q := range s.Questions {
		if q.AnsweredAt != nil {
			n++
		}
	}
	return n
}
