package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"peerprep/interview/internal/llm"
)

const (
	MaxScore      = 10
	FallbackScore = 5

	DefaultTimeout = 20 * time.Second

	feedbackUnavailable = "Evaluation temporarily unavailable. Answer saved."
	feedbackUnparsable  = "Evaluation parsing error. Answer saved."
	feedbackMissing     = "No feedback provided."
	feedbackNoAnswer    = "No answer was given."

	templateName = "answer_evaluation"
)

type promptBuilder interface {
	BuildPrompt(name, variant string, data map[string]string) (string, error)
}

// Evaluation is the stored outcome for one answer. Fallback marks scores
// that did not come from the model.
type Evaluation struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
	Fallback bool   `json:"-"`
}

type AnswerInput struct {
	Role        string
	Question    string
	IdealAnswer string
	Answer      string
	Behavioral  bool
}

// AnswerScorer grades one answer on a 0-10 scale with an LLM. It never fails:
// provider or parse errors produce the fallback score.
type AnswerScorer struct {
	provider llm.Provider
	prompts  promptBuilder
	timeout  time.Duration
	logger   *zap.Logger
}

func NewAnswerScorer(provider llm.Provider, prompts promptBuilder, timeout time.Duration, logger *zap.Logger) *AnswerScorer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerScorer{provider: provider, prompts: prompts, timeout: timeout, logger: logger}
}

func (s *AnswerScorer) Evaluate(ctx context.Context, in AnswerInput) Evaluation {
	if strings.TrimSpace(in.Answer) == "" {
		return Evaluation{Score: 0, Feedback: feedbackNoAnswer}
	}
	if s.provider == nil || s.prompts == nil {
		return Evaluation{Score: FallbackScore, Feedback: feedbackUnavailable, Fallback: true}
	}

	variant := "default"
	if in.Behavioral {
		variant = "behavioral"
	}
	prompt, err := s.prompts.BuildPrompt(templateName, variant, map[string]string{
		"Role":        in.Role,
		"Question":    in.Question,
		"IdealAnswer": in.IdealAnswer,
		"Answer":      in.Answer,
	})
	if err != nil {
		s.logger.Error("Failed to build evaluation prompt", zap.Error(err))
		return Evaluation{Score: FallbackScore, Feedback: feedbackUnavailable, Fallback: true}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	raw, err := s.provider.GenerateContent(ctx, prompt)
	if err != nil {
		fields := []zap.Field{zap.String("provider", s.provider.GetProviderName()), zap.Error(err)}
		var pe *llm.ProviderError
		if errors.As(err, &pe) {
			fields = append(fields, zap.String("code", pe.Code))
		}
		s.logger.Warn("Answer evaluation failed, using fallback score", fields...)
		return Evaluation{Score: FallbackScore, Feedback: feedbackUnavailable, Fallback: true}
	}

	ev, err := ParseEvaluation(raw)
	if err != nil {
		s.logger.Warn("Unparsable answer evaluation", zap.Error(err), zap.String("raw", truncate(raw, 200)))
		return Evaluation{Score: FallbackScore, Feedback: feedbackUnparsable, Fallback: true}
	}
	s.logger.Debug("Answer evaluated",
		zap.Int("score", ev.Score),
		zap.Duration("latency", time.Since(start)))
	return ev
}

// ParseEvaluation reads the model's JSON reply, tolerating markdown code fences
// and numeric or string scores. Scores are clamped to 0..10.
func ParseEvaluation(raw string) (Evaluation, error) {
	body := stripFences(raw)

	var out struct {
		Score    json.RawMessage `json:"score"`
		Feedback string          `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return Evaluation{}, fmt.Errorf("decode evaluation: %w", err)
	}

	score, err := parseScore(out.Score)
	if err != nil {
		return Evaluation{}, err
	}
	feedback := strings.TrimSpace(out.Feedback)
	if feedback == "" {
		feedback = feedbackMissing
	}
	return Evaluation{Score: score, Feedback: feedback}, nil
}

func parseScore(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("score has unexpected type: %s", raw)
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, nil
		}
	}
	if math.IsNaN(f) {
		return 0, nil
	}
	n := int(f)
	if n < 0 {
		n = 0
	}
	if n > MaxScore {
		n = MaxScore
	}
	return n, nil
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
