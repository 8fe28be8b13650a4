package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Suggester calls a Gemini-compatible generateContent endpoint to
// polish task descriptions and propose subtasks. Every failure mode
// degrades to a harmless result: the feature is a nicety, and a broken
// or unconfigured AI backend must never block task management.
type Suggester struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

type Config struct {
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration
}

func NewSuggester(cfg Config, logger *zap.Logger) *Suggester {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &Suggester{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether an API key is configured.
func (s *Suggester) Enabled() bool {
	return s.apiKey != ""
}

// RefineDescription rewrites a rough description into one or two clear
// sentences. On any failure the original text comes back unchanged.
func (s *Suggester) RefineDescription(ctx context.Context, title, description string) string {
	if !s.Enabled() {
		return description
	}

	prompt := fmt.Sprintf(
		"Rewrite this task description to be clear and actionable, in at most two sentences. Reply with only the rewritten description.\nTask: %s\nDescription: %s",
		title, description,
	)

	text, err := s.generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("description refinement failed, keeping original", zap.Error(err))
		return description
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return description
	}
	return text
}

// SuggestSubtasks proposes up to five subtask titles for a task. On any
// failure it returns an empty list.
func (s *Suggester) SuggestSubtasks(ctx context.Context, title, description string) []string {
	if !s.Enabled() {
		return nil
	}

	prompt := fmt.Sprintf(
		"Break this task into at most five short subtasks. Reply with one subtask per line, no numbering, no extra text.\nTask: %s\nDescription: %s",
		title, description,
	)

	text, err := s.generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("subtask suggestion failed", zap.Error(err))
		return nil
	}

	var subtasks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
		if line == "" {
			continue
		}
		subtasks = append(subtasks, line)
		if len(subtasks) == 5 {
			break
		}
	}
	return subtasks
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Suggester) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(s.endpoint, "/"), s.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		msg := "request failed"
		if result.Error != nil {
			msg = result.Error.Message
		}
		return "", fmt.Errorf("ai backend returned %d: %s", resp.StatusCode, msg)
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("ai backend returned no candidates")
	}
	return result.Candidates[0].Content.Parts[0].Text, nil
}
