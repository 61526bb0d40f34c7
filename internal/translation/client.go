// Package translation posts finished transcripts to a LibreTranslate
// compatible service.
package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/obiente/translate/whisperbridge/internal/logging"
)

// Translator is what the HTTP layer depends on.
type Translator interface {
	Translate(ctx context.Context, text, source string, targets []string) (map[string]Result, error)
}

// Result is one target language's translation.
type Result struct {
	Primary          string   `json:"primary"`
	Alternatives     []string `json:"alternatives,omitempty"`
	DetectedLanguage string   `json:"detected_language,omitempty"`
}

type Client struct {
	base     string
	http     *http.Client
	altLimit int
	log      zerolog.Logger
}

func New(base string, timeoutSec int) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 8
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		log:  logging.WithComponent("translation"),
	}
}

// WithAlternatives asks the service for up to n alternatives per target.
func (c *Client) WithAlternatives(n int) *Client {
	c.altLimit = n
	return c
}

// Translate calls the service once per target. A source of "" or "auto" lets
// the service detect the language. Blank text yields an empty map.
func (c *Client) Translate(ctx context.Context, text, source string, targets []string) (map[string]Result, error) {
	out := make(map[string]Result, len(targets))
	if c == nil || c.base == "" || len(targets) == 0 || strings.TrimSpace(text) == "" {
		return out, nil
	}

	src := strings.TrimSpace(source)
	if src == "" {
		src = "auto"
	}

	for _, tgt := range targets {
		tgt = strings.TrimSpace(tgt)
		if tgt == "" || tgt == src {
			continue
		}
		res, err := c.translateOne(ctx, text, src, tgt)
		if err != nil {
			c.log.Warn().Err(err).Str("target", tgt).Msg("translation failed")
			return nil, err
		}
		out[tgt] = res
	}
	return out, nil
}

func (c *Client) translateOne(ctx context.Context, text, src, tgt string) (Result, error) {
	payload := map[string]any{
		"q":      text,
		"source": src,
		"target": tgt,
		"format": "text",
	}
	if c.altLimit > 0 {
		payload["alternatives"] = c.altLimit
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/translate", bytes.NewReader(b))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("translation http %d for target %s", resp.StatusCode, tgt)
	}

	var lr struct {
		TranslatedText   string   `json:"translatedText"`
		Alternatives     []string `json:"alternatives"`
		DetectedLanguage struct {
			Language string `json:"language"`
		} `json:"detectedLanguage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return Result{}, fmt.Errorf("translation decode: %w", err)
	}

	res := Result{
		Primary:          strings.TrimSpace(lr.TranslatedText),
		DetectedLanguage: lr.DetectedLanguage.Language,
	}
	for _, a := range lr.Alternatives {
		if s := strings.TrimSpace(a); s != "" {
			res.Alternatives = append(res.Alternatives, s)
		}
	}
	return res, nil
}
