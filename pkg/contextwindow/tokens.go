package contextwindow

import (
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// Counter measures how much of the context budget a piece of text consumes.
// Exact token semantics differ per model family, so counting is a
// configuration point rather than a baked-in default.
type Counter interface {
	Count(text string) (int, error)
}

// TiktokenCounter counts tokens with a tiktoken BPE codec. cl100k_base is
// the encoding used by the gpt-4 generation of models.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = string(tokenizer.Cl100kBase)
	}
	codec, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, errors.Wrapf(err, "could not create tokenizer for encoding %s", encoding)
	}
	return &TiktokenCounter{codec: codec}, nil
}

// NewTiktokenCounterForModel resolves the codec from a model name instead of
// an encoding name.
func NewTiktokenCounterForModel(model string) (*TiktokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		return nil, errors.Wrapf(err, "could not create tokenizer for model %s", model)
	}
	return &TiktokenCounter{codec: codec}, nil
}

func (c *TiktokenCounter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// RuneCounter is a deterministic offline counter, one unit per rune. Useful
// in tests and when no tokenizer data should be loaded.
type RuneCounter struct{}

func (RuneCounter) Count(text string) (int, error) {
	return utf8.RuneCountInString(text), nil
}

var (
	_ Counter = (*TiktokenCounter)(nil)
	_ Counter = RuneCounter{}
)
