package gemini

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

const (
	providerName = "gemini"
	defaultModel = "gemini-2.5-flash"
)

var errMissingAPIKey = errors.New("GEMINI_API_KEY or GOOGLE_API_KEY must be set")

// Config selects the model that grades interview answers.
type Config struct {
	APIKey string
	Model  string
	// JSONOutput requests application/json replies, which is what the
	// answer scorer parses.
	JSONOutput        bool
	SystemInstruction string
}

func NewConfig() (*Config, error) {
	return configFrom(os.Getenv)
}

func configFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		APIKey:            strings.TrimSpace(getenv("GEMINI_API_KEY")),
		Model:             strings.TrimSpace(getenv("GEMINI_MODEL")),
		JSONOutput:        true,
		SystemInstruction: strings.TrimSpace(getenv("GEMINI_SYSTEM_INSTRUCTION")),
	}
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(getenv("GOOGLE_API_KEY"))
	}
	if cfg.APIKey == "" {
		return nil, errMissingAPIKey
	}

	if cfg.Model == "" {
		cfg.Model = defaultModel
	} else if strings.ContainsFunc(cfg.Model, func(r rune) bool { return r == ' ' || r == '\t' }) {
		return nil, fmt.Errorf("GEMINI_MODEL %q is not a model name", cfg.Model)
	}

	if raw := getenv("GEMINI_JSON_OUTPUT"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("GEMINI_JSON_OUTPUT: %q is not a boolean", raw)
		}
		cfg.JSONOutput = v
	}
	return cfg, nil
}

// generateConfig returns nil when no request options are set.
func (c *Config) generateConfig() *genai.GenerateContentConfig {
	if !c.JSONOutput && c.SystemInstruction == "" {
		return nil
	}
	gc := &genai.GenerateContentConfig{}
	if c.JSONOutput {
		gc.ResponseMIMEType = "application/json"
	}
	if c.SystemInstruction != "" {
		gc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: c.SystemInstruction}}}
	}
	return gc
}
