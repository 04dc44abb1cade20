package sentiment

import (
	"context"
	"fmt"
	"time"

	"PaperDesk/internal/domain/models"
	domsvc "PaperDesk/internal/domain/service"
	xhttp "PaperDesk/pkg/http"
)

// RemoteAnalyzer delegates scoring to an HTTP model service that answers
// POST /sentiment {"text": ...} with {"score": s, "confidence": c}.
type RemoteAnalyzer struct {
	baseURL string
	client  *xhttp.Client
}

func NewRemoteAnalyzer(baseURL string, timeout time.Duration, attempts int) *RemoteAnalyzer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RemoteAnalyzer{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithRetry(attempts, 100*time.Millisecond, time.Second)),
	}
}

func (a *RemoteAnalyzer) Name() string { return "remote_model" }

type remoteReq struct {
	Text string `json:"text"`
}

type remoteResp struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

func (a *RemoteAnalyzer) Analyze(ctx context.Context, text string) (models.Polarity, error) {
	var out remoteResp
	err := a.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    a.baseURL + "/sentiment",
		Body:   remoteReq{Text: text},
	}, &out)
	if err != nil {
		return models.Polarity{}, fmt.Errorf("remote sentiment: %w", err)
	}
	if out.Confidence <= 0 {
		return models.Polarity{}, fmt.Errorf("remote sentiment: non-positive confidence %v", out.Confidence)
	}
	return models.Polarity{
		Score:      clamp(out.Score, -1, 1),
		Confidence: clamp(out.Confidence, 0, 1),
	}, nil
}

var _ domsvc.PolarityAnalyzer = (*RemoteAnalyzer)(nil)
