// Package scraper fetches and cleans web pages for ingestion. Fetch grabs a
// single page synchronously; Crawl walks same-host links in the background
// as a tracked job, rate limited per crawl.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/latticekb/lattice/internal/errs"
)

// Job states.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Config tunes fetching and crawling behavior.
type Config struct {
	MaxDepth          int
	MaxPages          int
	RateLimit         float64 // requests per second per crawl
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	UserAgent         string
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxDepth == 0 {
		c.MaxDepth = 3
	}
	if c.MaxPages == 0 {
		c.MaxPages = 100
	}
	if c.RateLimit == 0 {
		c.RateLimit = 2
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if c.UserAgent == "" {
		c.UserAgent = "lattice-capture/1.0"
	}
	return c
}

// Page is one fetched and cleaned web page.
type Page struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	ContentType string    `json:"content_type"`
	Content     string    `json:"content"`
	Links       []string  `json:"-"`
	Depth       int       `json:"depth"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Job is the observable state of one background crawl.
type Job struct {
	ID         string     `json:"id"`
	RootURL    string     `json:"root_url"`
	Status     string     `json:"status"`
	Pages      int        `json:"pages"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// PageHandler receives each crawled page. Handler errors are logged and do
// not stop the crawl.
type PageHandler func(ctx context.Context, page *Page) error

// Scraper fetches pages and tracks crawl jobs.
type Scraper struct {
	config Config
	client *http.Client
	log    *zap.Logger

	mu   sync.Mutex
	jobs map[string]*Job
}

// New creates a scraper, applying defaults for unset config fields.
func New(config Config, log *zap.Logger) *Scraper {
	if log == nil {
		log = zap.NewNop()
	}
	config = config.withDefaults()
	return &Scraper{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		log:    log,
		jobs:   make(map[string]*Job),
	}
}

// Fetch retrieves and cleans a single page.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() {
		return nil, errs.Validation("url", "must be an absolute URL")
	}
	return s.fetch(ctx, rawURL, 0)
}

func (s *Scraper) fetch(ctx context.Context, rawURL string, depth int) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errs.Validation("url", err.Error())
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errs.Upstream("scraper", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.Upstream("scraper",
			fmt.Errorf("status %d for %s", resp.StatusCode, rawURL))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errs.Upstream("scraper", err)
	}

	page := &Page{
		URL:         rawURL,
		Title:       strings.TrimSpace(doc.Find("title").Text()),
		ContentType: resp.Header.Get("Content-Type"),
		Content:     extractMainContent(doc),
		Links:       extractLinks(doc, rawURL),
		Depth:       depth,
		FetchedAt:   time.Now().UTC(),
	}
	return page, nil
}

// StartCrawl launches a background crawl rooted at rawURL and returns the
// job id. Each fetched page is passed to handle.
func (s *Scraper) StartCrawl(rawURL string, handle PageHandler) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() {
		return "", errs.Validation("url", "must be an absolute URL")
	}

	job := &Job{
		ID:        uuid.NewString(),
		RootURL:   rawURL,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go s.runCrawl(job.ID, rawURL, parsed.Host, handle)
	return job.ID, nil
}

// Status returns a snapshot of one job, nil when unknown.
func (s *Scraper) Status(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// Await polls a job until it leaves the running state or the deadline
// passes. A non-positive interval falls back to half a second.
func (s *Scraper) Await(ctx context.Context, id string, interval, deadline time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job := s.Status(id)
		if job == nil {
			return nil, errs.Validation("job_id", "crawl job not found")
		}
		if job.Status != StatusRunning {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, fmt.Errorf("crawl %s still running after %s", id, deadline)
		case <-ticker.C:
		}
	}
}

func (s *Scraper) runCrawl(jobID, rootURL, host string, handle PageHandler) {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(s.config.MaxPages)*s.config.Timeout)
	defer cancel()

	walker := &crawlWalker{
		scraper: s,
		jobID:   jobID,
		host:    host,
		handle:  handle,
		limiter: rate.NewLimiter(rate.Limit(s.config.RateLimit), 1),
		visited: make(map[string]bool),
	}
	err := walker.walk(ctx, rootURL, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[jobID]
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		return
	}
	job.Status = StatusDone
}

type crawlWalker struct {
	scraper *Scraper
	jobID   string
	host    string
	handle  PageHandler
	limiter *rate.Limiter
	visited map[string]bool
	pages   int
}

// walk fetches one URL and recurses into its same-host links. Only the root
// fetch is fatal to the job; deeper failures are logged and skipped.
func (w *crawlWalker) walk(ctx context.Context, rawURL string, depth int) error {
	s := w.scraper
	if depth > s.config.MaxDepth || w.pages >= s.config.MaxPages || w.visited[rawURL] {
		return nil
	}
	if !s.shouldProcess(rawURL, w.host) {
		return nil
	}
	w.visited[rawURL] = true

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	page, err := s.fetch(ctx, rawURL, depth)
	if err != nil {
		if depth == 0 {
			return err
		}
		s.log.Warn("crawl fetch failed",
			zap.String("job_id", w.jobID), zap.String("url", rawURL), zap.Error(err))
		return nil
	}

	w.pages++
	s.mu.Lock()
	s.jobs[w.jobID].Pages = w.pages
	s.mu.Unlock()

	if w.handle != nil {
		if err := w.handle(ctx, page); err != nil {
			s.log.Warn("crawl page handler failed",
				zap.String("job_id", w.jobID), zap.String("url", rawURL), zap.Error(err))
		}
	}

	for _, link := range page.Links {
		if err := w.walk(ctx, link, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scraper) shouldProcess(rawURL, host string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host != host {
		return false
	}

	path := strings.ToLower(parsed.Path)
	allowed := false
	for _, ext := range s.config.AllowedExtensions {
		if strings.HasSuffix(path, ext) {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(rawURL, pattern) {
			return false
		}
	}
	return true
}

var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	".documentation",
	"#documentation",
}

func extractMainContent(doc *goquery.Document) string {
	var content string
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}
	return cleanContent(content)
}

var noisePatterns = []string{
	"Cookie Policy",
	"Accept Cookies",
	"Privacy Policy",
	"Terms of Service",
}

func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.TrimSpace(content)
}

func extractLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, ok := selection.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		links = append(links, resolved.String())
	})
	return links
}
