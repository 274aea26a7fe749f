package translate

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

// OpenNMTProvider talks to an OpenNMT translation server over its REST API.
type OpenNMTProvider struct {
	url    string
	client *http.Client
}

type openNMTItem struct {
	Src string `json:"src"`
	Tgt string `json:"tgt,omitempty"`
}

func NewOpenNMTProvider(cfg config.OpenNMTConfig) (*OpenNMTProvider, error) {
	if cfg.URL == "" {
		return nil, plerrors.New(plerrors.KindConfig, "translate.NewOpenNMTProvider", "server url required")
	}

	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenNMTProvider{
		url:    strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (p *OpenNMTProvider) Name() string {
	return "opennmt"
}

func (p *OpenNMTProvider) Translate(ctx context.Context, text, source, target string) (*Result, error) {
	const op = "translate.OpenNMTProvider.Translate"

	body, err := sonic.Marshal([]openNMTItem{{Src: text}})
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "encode request", err)
	}

	url := fmt.Sprintf("%s/translate/%s/%s", p.url, source, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeTimeout, op, "translation cancelled", err)
		}
		return nil, plerrors.WrapCoded(plerrors.KindStage, plerrors.CodeModelUnavailable, op, "translation server unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, plerrors.NewCoded(plerrors.KindStage, plerrors.CodeModelUnavailable, op,
			fmt.Sprintf("translation server returned status %d", resp.StatusCode))
	}

	var items []openNMTItem
	if err := sonic.Unmarshal(raw, &items); err != nil {
		return nil, plerrors.Wrap(plerrors.KindStage, op, "decode response", err)
	}
	if len(items) == 0 || strings.TrimSpace(items[0].Tgt) == "" {
		return nil, plerrors.New(plerrors.KindStage, op, "translation server returned no output")
	}

	return &Result{
		Text:       strings.TrimSpace(items[0].Tgt),
		Confidence: 0,
		Model:      "opennmt",
	}, nil
}
