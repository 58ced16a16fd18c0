package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type GeminiPart struct {
	Text     string          `json:"text,omitempty"`
	FileData *GeminiFileData `json:"file_data,omitempty"`
}

type GeminiFileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type GeminiContent struct {
	Parts []*GeminiPart `json:"parts"`
	Role  string        `json:"role,omitempty"`
}

type GeminiRequest struct {
	Contents []*GeminiContent `json:"contents"`
}

type GeminiCandidate struct {
	Content *GeminiContent `json:"content"`
}

type GeminiResponse struct {
	Candidates []*GeminiCandidate `json:"candidates"`
}

// NutritionItem is one recognized food component.
type NutritionItem struct {
	Name     string  `json:"name"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein_g"`
	Carbs    float64 `json:"carbs_g"`
	Fat      float64 `json:"fat_g"`
}

// NutritionEstimate is the structured result of one analysis.
type NutritionEstimate struct {
	DishName      string          `json:"dish_name"`
	TotalCalories float64         `json:"total_calories"`
	Items         []NutritionItem `json:"items"`
	Confidence    float64         `json:"confidence"`
	Answer        string          `json:"answer,omitempty"`
}

const nutritionPrompt = `You are a nutrition estimation assistant. Look at the meal photo and respond ONLY with JSON matching this schema:
{"dish_name": string, "total_calories": number, "items": [{"name": string, "calories": number, "protein_g": number, "carbs_g": number, "fat_g": number}], "confidence": number between 0 and 1}`

// Client calls the Gemini vision model for nutrition estimation.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}
}

// Analyze sends the image to the model and parses its answer into a
// structured estimate. When the model replies with something that cannot be
// parsed as valid JSON, Analyze returns (nil, nil): no analysis available,
// not a failure. Callers must branch on presence, not assume success.
func (c *Client) Analyze(ctx context.Context, imageURL, promptContext string) (*NutritionEstimate, error) {
	prompt := nutritionPrompt
	if promptContext != "" {
		prompt = fmt.Sprintf("%s\nAdditionally answer this user question in an \"answer\" field: %s", nutritionPrompt, promptContext)
	}

	payload := GeminiRequest{
		Contents: []*GeminiContent{
			{
				Parts: []*GeminiPart{
					{Text: prompt},
					{FileData: &GeminiFileData{MimeType: "image/jpeg", FileURI: imageURL}},
				},
				Role: "user",
			},
		},
	}
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1/models/%s:generateContent", c.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadJson))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"vision status error, got status %d. with response body %s",
			res.StatusCode,
			string(resBody),
		)
	}

	var geminiRes GeminiResponse
	if err := json.Unmarshal(resBody, &geminiRes); err != nil {
		return nil, err
	}
	if len(geminiRes.Candidates) == 0 || geminiRes.Candidates[0].Content == nil || len(geminiRes.Candidates[0].Content.Parts) == 0 {
		return nil, nil
	}

	return ParseEstimate(geminiRes.Candidates[0].Content.Parts[0].Text), nil
}

// ParseEstimate extracts a NutritionEstimate from raw model text. Models
// love wrapping JSON in markdown fences, so those are stripped first.
// Returns nil when the text is not usable structured data.
func ParseEstimate(raw string) *NutritionEstimate {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	// Salvage the outermost object if the model added prose around it.
	if !strings.HasPrefix(cleaned, "{") {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start == -1 || end == -1 || end < start {
			return nil
		}
		cleaned = cleaned[start : end+1]
	}

	var estimate NutritionEstimate
	if err := json.Unmarshal([]byte(cleaned), &estimate); err != nil {
		return nil
	}
	if estimate.DishName == "" && estimate.TotalCalories == 0 && len(estimate.Items) == 0 {
		return nil
	}
	return &estimate
}
