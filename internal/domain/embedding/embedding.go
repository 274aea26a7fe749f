package embedding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"speechbridge-server-go/internal/platform/config"
	plerrors "speechbridge-server-go/internal/platform/errors"
)

// Provider turns an audio clip into a fixed-length speaker embedding.
type Provider interface {
	Embed(ctx context.Context, wav []byte) ([]float64, error)
}

// RESTProvider calls an embedding server that accepts a wav body and
// responds with {"embedding": [...]}.
type RESTProvider struct {
	url    string
	client *http.Client
}

func NewRESTProvider(cfg config.EmbeddingConfig) (*RESTProvider, error) {
	if cfg.URL == "" {
		return nil, plerrors.New(plerrors.KindConfig, "embedding.NewRESTProvider", "server url required")
	}

	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &RESTProvider{
		url:    strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (p *RESTProvider) Embed(ctx context.Context, wav []byte) ([]float64, error) {
	const op = "embedding.RESTProvider.Embed"

	if len(wav) == 0 {
		return nil, plerrors.New(plerrors.KindEmbedding, op, "empty clip")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/embed", bytes.NewReader(wav))
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindEmbedding, op, "build request", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, plerrors.WrapCoded(plerrors.KindEmbedding, plerrors.CodeTimeout, op, "embedding cancelled", err)
		}
		return nil, plerrors.WrapCoded(plerrors.KindEmbedding, plerrors.CodeEmbeddingFailed, op, "embedding server unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindEmbedding, op, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, plerrors.NewCoded(plerrors.KindEmbedding, plerrors.CodeEmbeddingFailed, op,
			fmt.Sprintf("embedding server returned status %d", resp.StatusCode))
	}

	var payload struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		return nil, plerrors.Wrap(plerrors.KindEmbedding, op, "decode response", err)
	}
	if len(payload.Embedding) == 0 {
		return nil, plerrors.NewCoded(plerrors.KindEmbedding, plerrors.CodeEmbeddingFailed, op,
			"embedding server returned an empty vector")
	}

	return payload.Embedding, nil
}
