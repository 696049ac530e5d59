package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// estimateTokens approximates the prompt's token count with cl100k_base.
// Not exact for every model family, but close enough for budget display.
func estimateTokens(messages []Message) (int, error) {
	c, err := getCodec()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range messages {
		ids, _, err := c.Encode(m.Content)
		if err != nil {
			return 0, err
		}
		total += len(ids)
	}
	return total, nil
}
