package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"peerprep/interview/internal/interview"
	"peerprep/interview/internal/middleware"
	"peerprep/interview/internal/models"
	"peerprep/interview/internal/proctoring"
)

// ============================================================================
// Test Helpers
// ============================================================================

const (
	testUserID    = "64b7f0c2a1b2c3d4e5f60718"
	testSessionID = "64b7f0c2a1b2c3d4e5f60719"
)

type fakeProctoring struct {
	verifyFn   func(sessionID, userID string, embedding []float64) (*models.VerifyResult, error)
	logFn      func(r proctoring.Report) (*models.LogResult, error)
	detectFn   func(sessionID, image string) (*models.IncidentResult, error)
	finalizeFn func(sessionID, userID string) (*models.FinalScore, error)
	historyFn  func(sessionID string) ([]models.Violation, error)
	enrollFn   func(userID string, embedding []float64) error
}

func (f *fakeProctoring) VerifyIdentity(_ context.Context, sessionID, userID string, embedding []float64) (*models.VerifyResult, error) {
	return f.verifyFn(sessionID, userID, embedding)
}

func (f *fakeProctoring) LogViolation(_ context.Context, r proctoring.Report) (*models.LogResult, error) {
	return f.logFn(r)
}

func (f *fakeProctoring) DetectAndRecord(_ context.Context, sessionID, image string) (*models.IncidentResult, error) {
	return f.detectFn(sessionID, image)
}

func (f *fakeProctoring) FinalizeSessionScore(_ context.Context, sessionID, userID string) (*models.FinalScore, error) {
	return f.finalizeFn(sessionID, userID)
}

func (f *fakeProctoring) GetViolationHistory(_ context.Context, sessionID string) ([]models.Violation, error) {
	return f.historyFn(sessionID)
}

func (f *fakeProctoring) EnrollFace(_ context.Context, userID string, embedding []float64) error {
	return f.enrollFn(userID, embedding)
}

type fakeInterview struct {
	startFn  func(userID string, req models.StartInterviewRequest) (*models.InterviewSession, error)
	getFn    func(sessionID, userID string) (*models.InterviewSession, error)
	answerFn func(userID string, req models.SubmitAnswerRequest) (*interview.AnswerResult, error)
	bodyFn   func(userID string, req models.BodyLanguageRequest) (*models.BodyLanguage, error)
}

func (f *fakeInterview) Start(_ context.Context, userID string, req models.StartInterviewRequest) (*models.InterviewSession, error) {
	return f.startFn(userID, req)
}

func (f *fakeInterview) GetSession(_ context.Context, sessionID, userID string) (*models.InterviewSession, error) {
	return f.getFn(sessionID, userID)
}

func (f *fakeInterview) SubmitAnswer(_ context.Context, userID string, req models.SubmitAnswerRequest) (*interview.AnswerResult, error) {
	return f.answerFn(userID, req)
}

func (f *fakeInterview) SaveBodyLanguage(_ context.Context, userID string, req models.BodyLanguageRequest) (*models.BodyLanguage, error) {
	return f.bodyFn(userID, req)
}

var (
	_ ProctoringService = (*fakeProctoring)(nil)
	_ InterviewService  = (*fakeInterview)(nil)
)

// serve runs one request through the validation middleware, as the router does,
// with userID already placed in the context by the auth layer.
func serve[T middleware.Validator](t *testing.T, h http.HandlerFunc, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	middleware.ValidateRequest[T]()(h).ServeHTTP(rec, req)
	return rec
}

func getWithParam(h http.HandlerFunc, pattern, path, userID string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Get(pattern, h)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func newProctoringHandler(f *fakeProctoring) *ProctoringHandler {
	return NewProctoringHandler(f, zap.NewNop())
}
