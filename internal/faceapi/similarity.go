package faceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Match is one candidate returned by the similarity service.
type Match struct {
	ImageID    string  `json:"id"`
	Similarity float64 `json:"similarity"`
}

// FindSimilar posts the image to /find_similar/ and returns the service's ranked candidates.
// The service order is preserved.
func (c *Client) FindSimilar(ctx context.Context, imageData []byte, filename string) ([]Match, error) {
	if len(imageData) == 0 {
		return nil, errors.New("empty image")
	}

	body, err := c.postMultipartImage(ctx, c.similarityURL, findSimilarEndpoint, "file", filename, imageData)
	if err != nil {
		return nil, err
	}

	return ParseMatches(body)
}

// ParseMatches decodes [[id, score], ...] where score is a string or a number.
// Pairs with a missing id or an unparsable score are dropped.
func ParseMatches(body []byte) ([]Match, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return []Match{}, nil
	}

	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	matches := make([]Match, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		id, ok := decodeID(pair[0])
		if !ok {
			continue
		}
		score, ok := decodeScore(pair[1])
		if !ok {
			continue
		}
		matches = append(matches, Match{ImageID: id, Similarity: score})
	}
	return matches, nil
}

func decodeID(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func decodeScore(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return min(max(f, 0), 1), true
}
