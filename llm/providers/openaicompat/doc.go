// Package openaicompat provides the chat-completions client used for every
// OpenAI-compatible endpoint.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openai",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.openai.com",
//	    DefaultModel: "gpt-4o-mini",
//	}, logger)
//
// HTTP failures are returned as *types.Error; rate limits, timeouts and 5xx
// responses are marked Retryable so callers can back off.
package openaicompat
