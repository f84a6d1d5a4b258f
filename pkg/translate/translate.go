// Package translate renders Dutch product names in English for the catalog.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"shelf-sync/pkg/cache"
	"shelf-sync/pkg/fetch"
)

type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Cached consults Store before calling Next and remembers every successful translation.
type Cached struct {
	Next   Translator
	Store  cache.Store
	Source string
	Target string
}

func NewCached(next Translator, store cache.Store, source, target string) *Cached {
	return &Cached{Next: next, Store: store, Source: source, Target: target}
}

func (c *Cached) namespace() string {
	return fmt.Sprintf("translate:%s:%s", c.Source, c.Target)
}

func (c *Cached) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	ns := c.namespace()
	if c.Store != nil {
		got, err := c.Store.Get(ctx, ns, text)
		if err == nil {
			return got, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("[TRANSLATE] cache lookup for %q failed: %v", text, err)
		}
	}

	out, err := c.Next.Translate(ctx, text)
	if err != nil {
		return "", err
	}

	if c.Store != nil {
		if err := c.Store.Set(ctx, ns, text, out); err != nil {
			log.Printf("[TRANSLATE] cache store for %q failed: %v", text, err)
		}
	}
	return out, nil
}

// HTTP talks to a LibreTranslate compatible endpoint.
type HTTP struct {
	Endpoint string
	APIKey   string
	Source   string
	Target   string
	client   *fetch.Client
}

func NewHTTP(endpoint, apiKey, source, target string, perSecond float64) *HTTP {
	return &HTTP{
		Endpoint: strings.TrimRight(endpoint, "/"),
		APIKey:   apiKey,
		Source:   source,
		Target:   target,
		client:   fetch.NewClient("TRANSLATE", perSecond, 1),
	}
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

func (h *HTTP) Translate(ctx context.Context, text string) (string, error) {
	req := translateRequest{Q: text, Source: h.Source, Target: h.Target, Format: "text", APIKey: h.APIKey}

	var resp translateResponse
	if err := h.client.PostJSON(ctx, h.Endpoint+"/translate", nil, req, &resp); err != nil {
		return "", fmt.Errorf("translate %q: %w", text, err)
	}
	if resp.TranslatedText == "" {
		return "", fmt.Errorf("translate %q: empty translation", text)
	}
	return resp.TranslatedText, nil
}

// Identity returns the input unchanged. It stands in when no endpoint is configured.
type Identity struct{}

func (Identity) Translate(_ context.Context, text string) (string, error) {
	return text, nil
}
