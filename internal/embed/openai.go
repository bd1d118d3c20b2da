package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI embeds through the OpenAI embeddings API.
type OpenAI struct {
	api   openai.Client
	model string
	dims  int
}

// NewOpenAI creates an OpenAI-backed provider. dims requests a reduced
// output dimension when positive; zero keeps the model default.
func NewOpenAI(apiKey, model string, dims int) *OpenAI {
	return &OpenAI{
		api:   openai.NewClient(option.WithAPIKey(apiKey)),
		model: model,
		dims:  dims,
	}
}

func (o *OpenAI) ID() string    { return "openai" }
func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if o.dims > 0 {
		params.Dimensions = openai.Int(int64(o.dims))
	}
	resp, err := o.api.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = toFloat32(d.Embedding)
	}
	return out, nil
}

func (o *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
