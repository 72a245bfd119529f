package faceapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type generateResponse struct {
	Result struct {
		GeneratedImage string `json:"generatedImage"`
	} `json:"result"`
}

// Generate posts a sketch to the generator's /image/upload and returns the generated
// photo as a url or data URI.
func (c *Client) Generate(ctx context.Context, sketch []byte, filename string) (string, error) {
	if len(sketch) == 0 {
		return "", errors.New("empty sketch")
	}

	body, err := c.postMultipartImage(ctx, c.generatorURL, generateEndpoint, "digitalImage", filename, sketch)
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Result.GeneratedImage == "" {
		return "", errors.New("empty generated image returned")
	}
	return resp.Result.GeneratedImage, nil
}
