package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/noah-isme/sma-curriculum-api/internal/dto"
	appErrors "github.com/noah-isme/sma-curriculum-api/pkg/errors"
)

// RubricGenerationInput is the context sent when asking for four rubric levels.
type RubricGenerationInput struct {
	ObjectiveID string `json:"objectiveId"`
	BnccCode    string `json:"bnccCode"`
	Objective   string `json:"objective"`
}

// ObjectiveGenerationInput is the context sent when asking for new objectives.
type ObjectiveGenerationInput struct {
	BnccCode     string `json:"bnccCode"`
	DisciplineID int64  `json:"disciplineId"`
	YearLevel    int    `json:"yearLevel"`
	Bimester     int    `json:"bimester"`
	Quantity     int    `json:"quantity"`
}

// GenerationClientConfig configures the HTTP generation client.
type GenerationClientConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
}

// GenerationClient calls the external text generation service.
type GenerationClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	metrics *MetricsService
	logger  *zap.Logger
}

// NewGenerationClient constructs the client. Calls are throttled to RatePerSecond.
func NewGenerationClient(cfg GenerationClientConfig, metrics *MetricsService, logger *zap.Logger) *GenerationClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	return &GenerationClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		metrics: metrics,
		logger:  logger,
	}
}

type rubricGenerationResponse struct {
	Levels map[string]string `json:"levels"`
}

type objectiveGenerationResponse struct {
	Objectives []dto.GeneratedText `json:"objectives"`
}

// GenerateRubricLevels returns level number -> description for levels 1..4.
func (c *GenerationClient) GenerateRubricLevels(ctx context.Context, input RubricGenerationInput) (map[int]string, error) {
	var resp rubricGenerationResponse
	if err := c.post(ctx, "rubrics", "/rubrics/generate", input, &resp); err != nil {
		return nil, err
	}
	levels := make(map[int]string, 4)
	for level := 1; level <= 4; level++ {
		text := strings.TrimSpace(resp.Levels[fmt.Sprintf("%d", level)])
		if text != "" {
			levels[level] = text
		}
	}
	if len(levels) == 0 {
		return nil, appErrors.Clone(appErrors.ErrGenerationFailed, "generation service returned no rubric levels")
	}
	return levels, nil
}

// GenerateObjectives returns freshly generated objective texts.
func (c *GenerationClient) GenerateObjectives(ctx context.Context, input ObjectiveGenerationInput) ([]dto.GeneratedText, error) {
	var resp objectiveGenerationResponse
	if err := c.post(ctx, "objectives", "/objectives/generate", input, &resp); err != nil {
		return nil, err
	}
	texts := make([]dto.GeneratedText, 0, len(resp.Objectives))
	for _, text := range resp.Objectives {
		text.Description = strings.TrimSpace(text.Description)
		if text.Description != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return nil, appErrors.Clone(appErrors.ErrGenerationFailed, "generation service returned no objectives")
	}
	return texts, nil
}

func (c *GenerationClient) post(ctx context.Context, operation, path string, payload, dest interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveGeneration(operation, err, time.Since(start))
	}()
	if err = c.limiter.Wait(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "generation request throttled")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s generation payload: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s generation request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "generation service unreachable")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "failed to read generation response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("generation service error",
			zap.String("operation", operation), zap.Int("status", resp.StatusCode), zap.ByteString("body", raw))
		return appErrors.Clone(appErrors.ErrGenerationFailed, fmt.Sprintf("generation service responded %d", resp.StatusCode))
	}
	if err = json.Unmarshal(raw, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "invalid generation response")
	}
	return nil
}
