package gemini

import "peerprep/interview/internal/llm"

func init() {
	llm.RegisterProvider(providerName, newProvider)
}

func newProvider() (llm.Provider, error) {
	cfg, err := NewConfig()
	if err != nil {
		return nil, &llm.ProviderError{
			Provider: providerName,
			Code:     llm.ErrCodeAPIKey,
			Message:  "Invalid Gemini configuration",
			Err:      err,
		}
	}
	return NewClient(cfg)
}
