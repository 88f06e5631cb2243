package questions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/haasonsaas/filesearch/pkg/models"
)

// Encode renders questions as the questions.json list.
func Encode(qs []models.Question) ([]byte, error) {
	if qs == nil {
		qs = []models.Question{}
	}
	data, err := json.MarshalIndent(qs, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses questions.json. Besides the list form it accepts the older
// object form {"file.pdf": "question"}, ordered by filename.
func Decode(data []byte) ([]models.Question, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("questions file is empty")
	}

	if trimmed[0] == '{' {
		var legacy map[string]string
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return nil, fmt.Errorf("parse questions: %w", err)
		}
		names := make([]string, 0, len(legacy))
		for name := range legacy {
			names = append(names, name)
		}
		sort.Strings(names)
		qs := make([]models.Question, 0, len(names))
		for _, name := range names {
			qs = append(qs, models.Question{Question: legacy[name], Filename: name})
		}
		return qs, nil
	}

	var qs []models.Question
	if err := json.Unmarshal(trimmed, &qs); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	for i, q := range qs {
		if q.Question == "" || q.Filename == "" {
			return nil, fmt.Errorf("question %d: question and filename are required", i)
		}
	}
	return qs, nil
}
