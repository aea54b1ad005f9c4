package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"gridflow/logger"
	"gridflow/models"
)

// LinkPattern selects one download link among a product page's anchors.
// Non-empty criteria must all hold; Index breaks ties when several anchors
// are equally valid, such as today's and yesterday's variant of the same
// report on one page.
type LinkPattern struct {
	Text  string // exact anchor text, e.g. "zip" or "xlsx"
	Attr  string // substring required in the href or title attribute
	Index int    // positional tie-break among matches
}

func (p LinkPattern) String() string {
	return fmt.Sprintf("text=%q attr=%q index=%d", p.Text, p.Attr, p.Index)
}

// LinkFinder resolves a download link on a report product page, waiting a
// bounded time for the link to appear. Implementations may drive a real
// browser; the pipeline only depends on this capability.
type LinkFinder interface {
	FindLink(ctx context.Context, pageURL string, pattern LinkPattern) (string, error)
}

// PageFinder is the default LinkFinder. It fetches the page over plain HTTP
// and scans its anchors, polling until the configured wait expires. Product
// pages that only materialize links through scripting need a browser-backed
// LinkFinder instead.
type PageFinder struct {
	client   *http.Client
	wait     time.Duration
	interval time.Duration
	log      *logger.Log
}

func NewPageFinder(client *http.Client, wait, interval time.Duration) *PageFinder {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PageFinder{
		client:   client,
		wait:     wait,
		interval: interval,
		log:      logger.GetLogger(),
	}
}

// FindLink polls pageURL until an anchor matches the pattern or the bounded
// wait expires. Transient fetch errors keep polling; only the deadline
// produces ErrResourceNotFound.
func (pf *PageFinder) FindLink(ctx context.Context, pageURL string, pattern LinkPattern) (string, error) {
	log := pf.log.WithComponent("link_finder").WithFields(logger.Fields{
		"page":    pageURL,
		"pattern": pattern.String(),
	})

	deadline := time.Now().Add(pf.wait)
	for {
		href, err := pf.scanOnce(ctx, pageURL, pattern)
		if err == nil {
			log.WithFields(logger.Fields{"href": href}).Info("found download link")
			return href, nil
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("find link on %s: %w", pageURL, ctx.Err())
		}
		if time.Now().After(deadline) {
			log.WithError(err).Error("no link matched within bounded wait")
			return "", fmt.Errorf("find link on %s (%s): %w", pageURL, pattern, models.ErrResourceNotFound)
		}
		log.WithError(err).Debug("link not found yet, polling")

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("find link on %s: %w", pageURL, ctx.Err())
		case <-time.After(pf.interval):
		}
	}
}

func (pf *PageFinder) scanOnce(ctx context.Context, pageURL string, pattern LinkPattern) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build page request: %w", err)
	}
	resp, err := pf.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	anchors, err := scanAnchors(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	matches := make([]string, 0, 4)
	for _, a := range anchors {
		if matchesPattern(a, pattern) {
			matches = append(matches, a.href)
		}
	}
	if pattern.Index >= len(matches) {
		return "", fmt.Errorf("%d matching links, need index %d", len(matches), pattern.Index)
	}
	return matches[pattern.Index], nil
}

type anchor struct {
	href  string
	title string
	text  string
}

func matchesPattern(a anchor, p LinkPattern) bool {
	if a.href == "" {
		return false
	}
	if p.Text != "" && !strings.EqualFold(strings.TrimSpace(a.text), p.Text) {
		return false
	}
	if p.Attr != "" && !strings.Contains(a.href, p.Attr) && !strings.Contains(a.title, p.Attr) {
		return false
	}
	return p.Text != "" || p.Attr != ""
}

// scanAnchors walks the document tree and collects every anchor's href,
// title and immediate text content.
func scanAnchors(r io.Reader) ([]anchor, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var anchors []anchor
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var a anchor
			for _, attr := range n.Attr {
				switch attr.Key {
				case "href":
					a.href = attr.Val
				case "title":
					a.title = attr.Val
				}
			}
			a.text = nodeText(n)
			anchors = append(anchors, a)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return anchors, nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
