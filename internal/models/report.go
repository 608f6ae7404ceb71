package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InterviewReport is the snapshot written when a session is finalized.
// One report exists per (userId, sessionId).
type InterviewReport struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID `bson:"userId" json:"userId"`
	SessionID         primitive.ObjectID `bson:"sessionId" json:"sessionId"`
	Role              string             `bson:"role" json:"role"`
	TotalScore        int                `bson:"totalScore" json:"totalScore"`
	MaxScore          int                `bson:"maxScore" json:"maxScore"`
	OverallPercentage int                `bson:"overallPercentage" json:"overallPercentage"`
	QuestionScores    []int              `bson:"questionScores" json:"questionScores"`
	BodyLanguage      *BodyLanguage      `bson:"bodyLanguage,omitempty" json:"bodyLanguage,omitempty"`
	Cheating          CheatingSummary    `bson:"cheating" json:"cheating"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
}

type CheatingSummary struct {
	IsDetected        bool     `bson:"isDetected" json:"isDetected"`
	IncidentCount     int      `bson:"incidentCount" json:"incidentCount"`
	PenaltyPoints     int      `bson:"penaltyPoints" json:"penaltyPoints"`
	FaceMismatchCount int      `bson:"faceMismatchCount" json:"faceMismatchCount"`
	EvidenceImages    []string `bson:"evidenceImages" json:"evidenceImages"`
}

// User is the subset of the user document this service reads.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Email         string             `bson:"email" json:"email"`
	FaceEmbedding []float64          `bson:"faceEmbedding,omitempty" json:"-"`
}
