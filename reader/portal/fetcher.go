package portal

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	appconfig "gridflow/config"
	"gridflow/logger"
	"gridflow/models"
)

// ReportRequest names one downloadable report and how to locate it on its
// product page. Archived reports arrive as a zip holding exactly one file.
type ReportRequest struct {
	ID       string
	PageURL  string
	Pattern  LinkPattern
	Archived bool
}

// Fetcher resolves a report's download link through a LinkFinder, retrieves
// the raw bytes and unpacks archived payloads. Every failure is fatal to
// the current pipeline run; there are no retries.
type Fetcher struct {
	config *appconfig.Config
	finder LinkFinder
	client *http.Client
	log    *logger.Log
}

func NewFetcher(cfg *appconfig.Config, finder LinkFinder) *Fetcher {
	if finder == nil {
		pageClient := &http.Client{Timeout: cfg.Portal.FetchTimeout}
		finder = NewPageFinder(pageClient, cfg.Portal.LinkWait, cfg.Portal.PollInterval)
	}
	return &Fetcher{
		config: cfg,
		finder: finder,
		client: &http.Client{Timeout: cfg.Portal.FetchTimeout},
		log:    logger.GetLogger(),
	}
}

// ResolveAndFetch locates the report's download link, retrieves it and
// returns the payload bytes together with the payload file name.
func (f *Fetcher) ResolveAndFetch(ctx context.Context, req ReportRequest) ([]byte, string, error) {
	log := f.log.WithComponent("source_fetcher").WithFields(logger.Fields{
		"report": req.ID,
		"page":   req.PageURL,
	})

	href, err := f.finder.FindLink(ctx, req.PageURL, req.Pattern)
	if err != nil {
		return nil, "", fmt.Errorf("report %s: %w", req.ID, err)
	}

	href = f.absolutize(href)
	log.WithFields(logger.Fields{"href": href}).Info("resolved download link")

	start := time.Now()
	body, err := f.download(ctx, href)
	if err != nil {
		log.WithError(err).Error("download failed")
		return nil, "", fmt.Errorf("report %s: %w", req.ID, err)
	}
	logger.LogPerformanceEntry(log, "source_fetcher", "download", time.Since(start), logger.Fields{
		"bytes": len(body),
	})

	name := path.Base(urlPath(href))
	if req.Archived {
		body, name, err = extractSingle(body)
		if err != nil {
			log.WithError(err).Error("archive extraction failed")
			return nil, "", fmt.Errorf("report %s: %w", req.ID, err)
		}
	}

	logger.LogDataFlowEntry(log, req.ID, "pipeline", len(body), "report_bytes")
	return body, name, nil
}

// absolutize rewrites host-relative hrefs against the portal base URL.
func (f *Fetcher) absolutize(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base := strings.TrimSuffix(f.config.Portal.BaseURL, "/")
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return base + href
}

func (f *Fetcher) download(ctx context.Context, href string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", href, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %v: %w", href, err, models.ErrTransfer)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: status %d: %w", href, resp.StatusCode, models.ErrTransfer)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", href, err, models.ErrTransfer)
	}
	return body, nil
}

// extractSingle unpacks a zip archive that must hold exactly one file and
// returns its contents and name.
func extractSingle(archive []byte) ([]byte, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, "", fmt.Errorf("open archive: %v: %w", err, models.ErrUnexpectedArchiveContents)
	}
	if len(zr.File) != 1 {
		return nil, "", fmt.Errorf("archive holds %d entries, want 1: %w", len(zr.File), models.ErrUnexpectedArchiveContents)
	}

	entry := zr.File[0]
	rc, err := entry.Open()
	if err != nil {
		return nil, "", fmt.Errorf("open archive entry %s: %v: %w", entry.Name, err, models.ErrUnexpectedArchiveContents)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("read archive entry %s: %v: %w", entry.Name, err, models.ErrUnexpectedArchiveContents)
	}
	return body, entry.Name, nil
}

func urlPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return u.Path
}
