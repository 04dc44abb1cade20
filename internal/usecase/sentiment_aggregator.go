package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	domsvc "PaperDesk/internal/domain/service"
	"PaperDesk/internal/services/sentiment"
	"PaperDesk/pkg/cache"
	applogger "PaperDesk/pkg/logger"

	"github.com/google/uuid"
)

// fullConfidenceArticles is the article count at which volume stops discounting confidence.
const fullConfidenceArticles = 10

type SentimentSettings struct {
	Lookback         time.Duration
	MinArticleLength int
	CacheTTL         time.Duration
	Keywords         []string
	// Concurrency bounds AnalyzeMany; 0 means one worker per symbol.
	Concurrency int
}

// SentimentAggregator turns raw news into one SentimentRecord per symbol.
type SentimentAggregator struct {
	news     domrepo.NewsProvider
	ensemble domsvc.PolarityEnsemble
	store    domrepo.SentimentStore
	cache    domrepo.Cache
	metrics  domrepo.Metrics
	log      *applogger.Logger
	cfg      SentimentSettings
	now      func() time.Time
}

func NewSentimentAggregator(
	news domrepo.NewsProvider,
	ensemble domsvc.PolarityEnsemble,
	store domrepo.SentimentStore,
	c domrepo.Cache,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg SentimentSettings,
) *SentimentAggregator {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	if cfg.MinArticleLength <= 0 {
		cfg.MinArticleLength = 50
	}
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = sentiment.DefaultKeywords
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &SentimentAggregator{
		news:     news,
		ensemble: ensemble,
		store:    store,
		cache:    c,
		metrics:  metrics,
		log:      l,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func sentimentCacheKey(symbol string) string {
	return cache.GenerateKey("sentiment", symbol)
}

// Analyze returns the current sentiment for symbol. A cached record younger
// than the cache TTL is returned as is; otherwise a new record is computed
// and persisted. Provider failures degrade to a neutral record.
func (a *SentimentAggregator) Analyze(ctx context.Context, symbol string) (*models.SentimentRecord, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, models.ValidationError("symbol", "is required")
	}

	if a.cache != nil && a.cfg.CacheTTL > 0 {
		var cached models.SentimentRecord
		if err := a.cache.Get(ctx, sentimentCacheKey(symbol), &cached); err == nil && cached.Symbol == symbol {
			return &cached, nil
		} else if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			a.log.Warn("sentiment cache read failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}

	start := time.Now()
	now := a.now()
	articles, err := a.news.CompanyNews(ctx, symbol, now.Add(-a.cfg.Lookback), now)
	degraded := err != nil
	if degraded {
		a.log.Warn("news provider unavailable, recording neutral sentiment",
			applogger.String("symbol", symbol), applogger.Error(err))
		a.metrics.RecordError("news_provider")
		articles = nil
	}

	kept := a.filter(symbol, articles, now)
	rec := a.aggregate(ctx, symbol, kept, now)

	if err := a.store.Insert(ctx, rec); err != nil {
		a.metrics.RecordError("sentiment_store")
		return nil, err
	}
	a.metrics.RecordSentiment(symbol, rec.OverallScore, rec.Confidence, rec.ArticleCount)
	a.metrics.RecordLatency("sentiment_analyze_seconds", time.Since(start).Seconds())

	if !degraded && a.cache != nil && a.cfg.CacheTTL > 0 {
		if err := a.cache.Set(ctx, sentimentCacheKey(symbol), rec, a.cfg.CacheTTL); err != nil {
			a.log.Warn("sentiment cache write failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}

	a.log.Debug("sentiment analyzed",
		applogger.String("symbol", symbol),
		applogger.Int("fetched", len(articles)),
		applogger.Int("kept", len(kept)),
		applogger.Float64("score", rec.OverallScore),
		applogger.Float64("confidence", rec.Confidence))
	return rec, nil
}

// AnalyzeMany analyzes each symbol independently. Failed symbols are
// reported in the error map and omitted from the result.
func (a *SentimentAggregator) AnalyzeMany(ctx context.Context, symbols []string) (map[string]*models.SentimentRecord, map[string]error) {
	workers := a.cfg.Concurrency
	if workers <= 0 || workers > len(symbols) {
		workers = len(symbols)
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		out  = make(map[string]*models.SentimentRecord, len(symbols))
		errs = make(map[string]error)
		sem  = make(chan struct{}, max(workers, 1))
	)
	for _, s := range symbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			rec, err := a.Analyze(ctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[symbol] = err
				return
			}
			out[rec.Symbol] = rec
		}(s)
	}
	wg.Wait()
	return out, errs
}

// filter drops short, stale, off-topic or duplicate articles.
func (a *SentimentAggregator) filter(symbol string, articles []models.Article, now time.Time) []models.Article {
	seen := make(map[string]struct{}, len(articles))
	oldest := now.Add(-a.cfg.Lookback)
	kept := make([]models.Article, 0, len(articles))
	for _, art := range articles {
		text := art.Text()
		if len(strings.TrimSpace(text)) < a.cfg.MinArticleLength {
			continue
		}
		if art.PublishedAt.IsZero() || art.PublishedAt.Before(oldest) || art.PublishedAt.After(now) {
			continue
		}
		if !art.TaggedWith(symbol) && !sentiment.ContainsWord(text, symbol) {
			continue
		}
		if !sentiment.MentionsAny(text, a.cfg.Keywords) {
			continue
		}
		key := articleKey(art)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, art)
	}
	return kept
}

func articleKey(a models.Article) string {
	if a.URL != "" {
		return a.URL
	}
	sum := sha256.Sum256([]byte(strings.ToLower(a.Headline)))
	return hex.EncodeToString(sum[:])
}

func (a *SentimentAggregator) aggregate(ctx context.Context, symbol string, articles []models.Article, now time.Time) *models.SentimentRecord {
	rec := &models.SentimentRecord{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		AsOf:      now,
		CreatedAt: now,
	}

	var weighted, weights, confSum float64
	for _, art := range articles {
		p, err := a.ensemble.Ensemble(ctx, art.Text())
		if err != nil {
			a.log.Debug("article skipped", applogger.String("symbol", symbol), applogger.Error(err))
			continue
		}
		switch models.Classify(p.Score) {
		case "positive":
			rec.Positive++
		case "negative":
			rec.Negative++
		default:
			rec.Neutral++
		}
		weighted += p.Score * p.Confidence
		weights += p.Confidence
		confSum += p.Confidence
		rec.ArticleCount++
	}
	if rec.ArticleCount == 0 {
		return rec
	}

	if weights > 0 {
		rec.OverallScore = clampUnit(weighted/weights, -1)
	}
	volume := math.Min(float64(rec.ArticleCount)/fullConfidenceArticles, 1)
	rec.Confidence = clampUnit(confSum/float64(rec.ArticleCount)*volume, 0)
	return rec
}

// clampUnit bounds v to [lo, 1].
func clampUnit(v, lo float64) float64 {
	return math.Max(lo, math.Min(1, v))
}
