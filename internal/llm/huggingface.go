package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StreamChunk is one incremental piece of generated text. Done marks the
// backend's natural end-of-generation event; a non-empty Error means the
// stream failed and no further chunks follow.
type StreamChunk struct {
	Text  string
	Done  bool
	Error string
}

// Provider defines the interface for a streaming text-generation backend.
type Provider interface {
	GenerateStream(ctx context.Context, req *GenerateRequest, ch chan<- StreamChunk) error
}

// Message is a single conversation turn as the llm package sees it.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the text-generation-inference request body. Model
// selects the endpoint and is not part of the wire payload.
type GenerateRequest struct {
	Model      string     `json:"-"`
	Inputs     string     `json:"inputs"`
	Parameters Parameters `json:"parameters"`
}

type Parameters struct {
	MaxNewTokens      int     `json:"max_new_tokens"`
	TypicalP          float64 `json:"typical_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	Truncate          int     `json:"truncate"`
	ReturnFullText    bool    `json:"return_full_text"`
}

type huggingFaceProvider struct {
	client *http.Client
	url    string
	apiKey string
}

// NewHuggingFaceProvider creates a Provider backed by the HuggingFace
// inference API (or any text-generation-inference server) at url.
func NewHuggingFaceProvider(url, apiKey string) Provider {
	return &huggingFaceProvider{
		client: &http.Client{},
		url:    strings.TrimSuffix(url, "/"),
		apiKey: apiKey,
	}
}

// tgiStreamEvent is a single server-sent event emitted by a
// text-generation-inference stream. The final event carries the full
// generated text; special tokens (e.g. end-of-text) are bookkeeping and are
// not part of the completion.
type tgiStreamEvent struct {
	Token struct {
		ID      int     `json:"id"`
		Text    string  `json:"text"`
		Logprob float64 `json:"logprob"`
		Special bool    `json:"special"`
	} `json:"token"`
	GeneratedText *string `json:"generated_text"`
	Error         string  `json:"error"`
	ErrorType     string  `json:"error_type"`
}

func (p *huggingFaceProvider) GenerateStream(ctx context.Context, req *GenerateRequest, ch chan<- StreamChunk) error {
	defer close(ch)

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("could not marshal request: %w", err)
	}

	endpoint := p.url + "/models/" + req.Model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		sendChunk(ctx, ch, StreamChunk{Error: "inference backend unreachable"})
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		sendChunk(ctx, ch, StreamChunk{Error: fmt.Sprintf("inference backend returned status %d", resp.StatusCode)})
		return fmt.Errorf("api returned non-200 status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	scanner := bufio.NewScanner(resp.Body)
	// The final event repeats the whole generated text on one line, which can
	// exceed bufio's default 64KiB token limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))

		var event tgiStreamEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			sendChunk(ctx, ch, StreamChunk{Error: "failed to decode stream event"})
			return fmt.Errorf("could not decode stream event: %w", err)
		}
		if event.Error != "" {
			sendChunk(ctx, ch, StreamChunk{Error: event.Error})
			return fmt.Errorf("stream error from backend: %s", event.Error)
		}

		if !event.Token.Special {
			if !sendChunk(ctx, ch, StreamChunk{Text: event.Token.Text}) {
				return ctx.Err()
			}
		}
		if event.GeneratedText != nil {
			sendChunk(ctx, ch, StreamChunk{Done: true})
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		sendChunk(ctx, ch, StreamChunk{Error: "stream read failed"})
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}

func sendChunk(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
