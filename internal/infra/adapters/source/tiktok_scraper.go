package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/ports/adapter"
)

var _ adapter.ContentSourceAdapter = (*TikTokScraper)(nil)

// TikTokScraper pulls slideshow images through a RapidAPI scraper backend.
// One metadata call resolves the image URLs, then the images are fetched
// concurrently from the CDN.
type TikTokScraper struct {
	apiKey      string
	apiHost     string
	client      *http.Client
	log         *zerolog.Logger
	downloaders int

	// baseURL overrides the https://{apiHost}/ endpoint in tests.
	baseURL string
}

func NewTikTokScraper(apiKey, apiHost string, timeout time.Duration, log *zerolog.Logger) *TikTokScraper {
	if apiHost == "" {
		apiHost = "tiktok-scraper7.p.rapidapi.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TikTokScraper{
		apiKey:      apiKey,
		apiHost:     apiHost,
		client:      &http.Client{Timeout: timeout},
		log:         log,
		downloaders: 4,
	}
}

type scrapeEnvelope struct {
	Code int        `json:"code"`
	Msg  string     `json:"msg"`
	Data scrapeData `json:"data"`
}

type scrapeData struct {
	Title  string     `json:"title"`
	Author struct {
		Nickname string `json:"nickname"`
		UniqueID string `json:"unique_id"`
	} `json:"author"`
	Images []imageRef `json:"images"`
}

// imageRef tolerates both shapes the scraper returns: a bare URL string or an
// object with a url field.
type imageRef struct {
	URL string
}

func (r *imageRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		r.URL = s
		return nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.URL = obj.URL
	return nil
}

func (s *TikTokScraper) Fetch(ctx context.Context, link string) (*adapter.SourceContent, error) {
	start := time.Now()
	data, err := s.resolve(ctx, link)
	if err != nil {
		return nil, err
	}
	if s.log != nil {
		s.log.Debug().Str("url", link).Int("images", len(data.Images)).
			Dur("took", time.Since(start)).Msg("scrape resolved")
	}
	if len(data.Images) == 0 {
		return nil, fmt.Errorf("%w: no slideshow images, link is probably a video", domain.ErrInvalidInput)
	}

	images := make([][]byte, len(data.Images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.downloaders)
	for i, ref := range data.Images {
		g.Go(func() error {
			b, err := s.download(gctx, ref.URL)
			if err != nil {
				return err
			}
			images[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	author := data.Author.Nickname
	if author == "" {
		author = data.Author.UniqueID
	}
	return &adapter.SourceContent{
		Images:  images,
		Caption: data.Title,
		Author:  author,
	}, nil
}

func (s *TikTokScraper) resolve(ctx context.Context, link string) (*scrapeData, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("%w: scraper api key not configured", domain.ErrAuthFailed)
	}

	endpoint := s.baseURL
	if endpoint == "" {
		endpoint = "https://" + s.apiHost + "/"
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("url", link)
	q.Set("hd", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-rapidapi-key", s.apiKey)
	req.Header.Set("x-rapidapi-host", s.apiHost)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, mapTransportErr(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: scraper http 429", domain.ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: scraper http %d", domain.ErrAuthFailed, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: scraper http %d", domain.ErrTimeout, resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("scraper http %d", resp.StatusCode)
	}

	var env scrapeEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode scraper response: %w", err)
	}
	if env.Code != 0 {
		return nil, mapScrapeError(env.Msg)
	}
	return &env.Data, nil
}

// mapScrapeError classifies the scraper's application-level failures. The API
// reports everything as code!=0 plus a message, so classification is textual.
func mapScrapeError(msg string) error {
	l := strings.ToLower(msg)
	switch {
	case strings.Contains(l, "private"):
		return fmt.Errorf("%w: %s", domain.ErrSourcePrivate, msg)
	case strings.Contains(l, "not found") || strings.Contains(l, "unavailable") || strings.Contains(l, "invalid url"):
		return fmt.Errorf("%w: %s", domain.ErrSourceNotFound, msg)
	case strings.Contains(l, "rate") || strings.Contains(l, "quota"):
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("%w: scraper: %s", domain.ErrSourceNotFound, msg)
	}
}

func mapTransportErr(err error) error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}

func (s *TikTokScraper) download(ctx context.Context, imgURL string) ([]byte, error) {
	if imgURL == "" {
		return nil, fmt.Errorf("%w: empty image url", domain.ErrSourceNotFound)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imgURL, nil)
	if err != nil {
		return nil, err
	}
	// The CDN rejects requests that don't look like a browser.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Referer", "https://www.tiktok.com/")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, mapTransportErr(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image download http %d", domain.ErrTimeout, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapTransportErr(err)
	}
	// Truncated CDN responses come back as tiny bodies.
	if len(b) < 1000 {
		return nil, fmt.Errorf("%w: image download truncated (%d bytes)", domain.ErrTimeout, len(b))
	}
	return b, nil
}
