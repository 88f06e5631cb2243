package filesearch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/haasonsaas/filesearch/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

type searchRequest struct {
	Query         string `json:"query"`
	MaxNumResults int    `json:"max_num_results,omitempty"`
}

type searchResponse struct {
	Data []struct {
		FileID   string        `json:"file_id"`
		Filename string        `json:"filename"`
		Score    float64       `json:"score"`
		Content  []contentPart `json:"content"`
	} `json:"data"`
}

// Search runs a similarity search and returns at most k ranked results.
func (c *Client) Search(ctx context.Context, storeID, query string, k int) ([]models.SearchResult, error) {
	if storeID == "" {
		return nil, ErrStoreIDRequired
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if k < 1 {
		k = 10
	}

	path := fmt.Sprintf("/vector_stores/%s/search", url.PathEscape(storeID))
	var resp searchResponse
	err := c.call(ctx, "vector_stores.search", storeID, c.retry, func(ctx context.Context) error {
		return c.doJSON(ctx, "vector_stores.search", "POST", path, searchRequest{Query: query, MaxNumResults: k}, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", storeID, err)
	}

	results := make([]models.SearchResult, 0, len(resp.Data))
	for _, d := range resp.Data {
		results = append(results, models.SearchResult{
			FileID:   d.FileID,
			Filename: d.Filename,
			Score:    d.Score,
			Text:     joinText(d.Content),
		})
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

type fileSearchTool struct {
	Type           string   `json:"type"`
	VectorStoreIDs []string `json:"vector_store_ids"`
	MaxNumResults  int      `json:"max_num_results,omitempty"`
}

type responsesRequest struct {
	Model      string           `json:"model"`
	Input      string           `json:"input"`
	Tools      []fileSearchTool `json:"tools"`
	ToolChoice string           `json:"tool_choice,omitempty"`
	Include    []string         `json:"include,omitempty"`
}

type responsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Results []struct {
			FileID   string  `json:"file_id"`
			Filename string  `json:"filename"`
			Score    float64 `json:"score"`
			Text     string  `json:"text"`
		} `json:"results"`
		Content []struct {
			Type        string `json:"type"`
			Text        string `json:"text"`
			Annotations []struct {
				Type     string `json:"type"`
				FileID   string `json:"file_id"`
				Filename string `json:"filename"`
			} `json:"annotations"`
		} `json:"content"`
	} `json:"output"`
}

// AnswerWithSearch asks model to answer query using the file_search tool over
// the store. FilesUsed lists cited filenames in citation order without
// duplicates.
func (c *Client) AnswerWithSearch(ctx context.Context, storeID, query, model string, k int) (*models.Answer, error) {
	if storeID == "" {
		return nil, ErrStoreIDRequired
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if k < 1 {
		k = 10
	}

	req := responsesRequest{
		Model: model,
		Input: query,
		Tools: []fileSearchTool{{
			Type:           "file_search",
			VectorStoreIDs: []string{storeID},
			MaxNumResults:  k,
		}},
		ToolChoice: "required",
		Include:    []string{"file_search_call.results"},
	}
	var resp responsesResponse
	err := c.call(ctx, "responses.create", storeID, c.retry, func(ctx context.Context) error {
		return c.doJSON(ctx, "responses.create", "POST", "/responses", req, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("answer with search: %w", err)
	}

	answer := &models.Answer{Query: query, Model: model}
	seen := make(map[string]bool)
	var texts []string
	for _, item := range resp.Output {
		switch item.Type {
		case "file_search_call":
			for _, r := range item.Results {
				answer.Results = append(answer.Results, models.SearchResult{
					FileID:   r.FileID,
					Filename: r.Filename,
					Score:    r.Score,
					Text:     r.Text,
				})
			}
		case "message":
			for _, part := range item.Content {
				if part.Type != "output_text" {
					continue
				}
				texts = append(texts, part.Text)
				for _, a := range part.Annotations {
					if a.Type != "file_citation" || a.Filename == "" || seen[a.Filename] {
						continue
					}
					seen[a.Filename] = true
					answer.FilesUsed = append(answer.FilesUsed, a.Filename)
				}
			}
		}
	}
	answer.Text = strings.Join(texts, "\n")
	if answer.Text == "" {
		answer.Text = resp.OutputText
	}
	return answer, nil
}

// Complete sends a single user prompt to a chat model and returns the reply.
func (c *Client) Complete(ctx context.Context, model, prompt string) (string, error) {
	var resp openai.ChatCompletionResponse
	err := c.call(ctx, "chat.completions", "", c.retry, func(ctx context.Context) error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
