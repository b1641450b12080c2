package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const visionMaxTokens = 400

// DescribeImage sends the image as a data URI followed by the prompt.
func (c *Client) DescribeImage(ctx context.Context, imageDataURI, prompt string) (string, error) {
	if !strings.HasPrefix(imageDataURI, "data:image/") {
		return "", fmt.Errorf("llm.%s.describe: image must be a data uri", c.name)
	}

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: visionMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageDataURI,
							Detail: openai.ImageURLDetailAuto,
						},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
				},
			},
		},
	}

	resp, err := c.createChatCompletion(ctx, "describe", req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
