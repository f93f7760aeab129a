package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shiksha-ai/shiksha/internal/store"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// defaultModel is the multimodal model used for document analysis.
const defaultModel = "gemini-3-flash-preview"

const analysisPrompt = "Analyze this study material for a Grade 4 student. " +
	"Identify the Subject, Chapter Name. Write a summary. " +
	"IMPORTANT: Extract the FULL visible text content into 'extractedText' field."

// Result is the structured output of analyzing one uploaded document.
type Result struct {
	Subject       store.SubjectName `json:"subject"`
	ChapterName   string            `json:"chapterName"`
	Summary       string            `json:"summary"`
	ExtractedText string            `json:"extractedText"`
	Difficulty    string            `json:"difficulty"`
}

// Analyzer classifies uploaded study material into a subject and chapter
// using structured model output.
type Analyzer struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// Config holds configuration for the analyzer.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string // overridable for tests
}

// NewAnalyzer creates a new document analyzer.
func NewAnalyzer(cfg Config) *Analyzer {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Analyzer{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

type analyzeRequest struct {
	Contents         reqContents  `json:"contents"`
	GenerationConfig reqGenConfig `json:"generationConfig"`
}

type reqContents struct {
	Parts []reqPart `json:"parts"`
}

type reqPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *reqInlineData `json:"inlineData,omitempty"`
}

type reqInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type reqGenConfig struct {
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema"`
}

// responseSchema constrains the model to the Result shape; the subject is
// locked to the supported enumeration.
var responseSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"subject": {
			"type": "STRING",
			"enum": ["Hindi", "SST", "Science", "Computer Science", "Kannada"],
			"description": "The school subject this content belongs to."
		},
		"chapterName": {"type": "STRING", "description": "A short, clear name for the chapter/topic."},
		"summary": {"type": "STRING", "description": "A concise summary of the key concepts."},
		"extractedText": {"type": "STRING", "description": "The full extracted text content from the document image/pdf."},
		"difficulty": {"type": "STRING", "enum": ["Easy", "Medium", "Hard"]}
	},
	"required": ["subject", "chapterName", "summary", "extractedText"]
}`)

type analyzeResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the document (base64 payload plus its MIME type) for
// classification and returns the structured result.
func (a *Analyzer) Analyze(ctx context.Context, mimeType, base64Data string) (*Result, error) {
	req := analyzeRequest{
		Contents: reqContents{Parts: []reqPart{
			{InlineData: &reqInlineData{MimeType: mimeType, Data: base64Data}},
			{Text: analysisPrompt},
		}},
		GenerationConfig: reqGenConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, a.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Gemini API error: %s - %s", resp.Status, string(respBody))
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	var result Result
	if err := json.Unmarshal([]byte(parsed.Candidates[0].Content.Parts[0].Text), &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}
	return &result, nil
}

// unclearContext is handed to the tutor when analysis produced no usable
// subject or chapter.
const unclearContext = "Content analyzed but format was unclear. Proceeding with general context."

// Apply persists the analyzed chapter and returns the context string that
// primes the live session. Extraction failures fall back to the summary as
// the stored content. A result without a subject and chapter name saves
// nothing and yields a generic context.
func Apply(ctx context.Context, s *store.Store, r *Result) (string, error) {
	if r.Subject == "" || r.ChapterName == "" {
		return unclearContext, nil
	}

	content := r.ExtractedText
	if content == "" {
		content = r.Summary
	}
	if err := s.SaveChapter(ctx, r.Subject, r.ChapterName, r.Summary, content, r.Difficulty); err != nil {
		return "", fmt.Errorf("save chapter: %w", err)
	}

	return fmt.Sprintf("Subject: %s. Chapter: %s. FULL TEXT CONTENT: %s", r.Subject, r.ChapterName, content), nil
}
