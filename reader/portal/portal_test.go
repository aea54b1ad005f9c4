package portal

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "gridflow/config"
	"gridflow/models"
)

func testConfig(baseURL string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Portal.BaseURL = baseURL
	cfg.Portal.LinkWait = 500 * time.Millisecond
	cfg.Portal.PollInterval = 50 * time.Millisecond
	cfg.Portal.FetchTimeout = 5 * time.Second
	return cfg
}

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestFindLinkByText(t *testing.T) {
	page := `<html><body>
		<a href="/misdownload/servlets/mirDownload?doclookupId=1">zip</a>
		<a href="/other">csv</a>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	pf := NewPageFinder(srv.Client(), 500*time.Millisecond, 50*time.Millisecond)
	href, err := pf.FindLink(context.Background(), srv.URL, LinkPattern{Text: "zip"})
	if err != nil {
		t.Fatalf("FindLink: %v", err)
	}
	if href != "/misdownload/servlets/mirDownload?doclookupId=1" {
		t.Fatalf("unexpected href: %s", href)
	}
}

func TestFindLinkIndexTieBreak(t *testing.T) {
	page := `<html><body>
		<a href="/doc/today">zip</a>
		<a href="/doc/minus1">zip</a>
		<a href="/doc/minus2">zip</a>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	pf := NewPageFinder(srv.Client(), 500*time.Millisecond, 50*time.Millisecond)
	href, err := pf.FindLink(context.Background(), srv.URL, LinkPattern{Text: "zip", Index: 2})
	if err != nil {
		t.Fatalf("FindLink: %v", err)
	}
	if href != "/doc/minus2" {
		t.Fatalf("unexpected href: %s", href)
	}
}

func TestFindLinkByAttr(t *testing.T) {
	page := `<html><body>
		<a href="/files/report.xlsx" title="Monthly Outlook for Resource Adequacy (MORA)">download</a>
		<a href="/files/report.pdf" title="Something else">download</a>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	pf := NewPageFinder(srv.Client(), 500*time.Millisecond, 50*time.Millisecond)
	href, err := pf.FindLink(context.Background(), srv.URL, LinkPattern{Attr: ".xlsx"})
	if err != nil {
		t.Fatalf("FindLink: %v", err)
	}
	if href != "/files/report.xlsx" {
		t.Fatalf("unexpected href: %s", href)
	}
}

func TestFindLinkBoundedWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>no links here</body></html>")
	}))
	defer srv.Close()

	pf := NewPageFinder(srv.Client(), 200*time.Millisecond, 50*time.Millisecond)
	_, err := pf.FindLink(context.Background(), srv.URL, LinkPattern{Text: "zip"})
	if !errors.Is(err, models.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestResolveAndFetchArchived(t *testing.T) {
	payload := zipBytes(t, map[string]string{"cdr.00013483.csv": "DELIVERY_DATE,HOUR_ENDING\n01/10/2024,1\n"})

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		// Host-relative href exercises the absolute URL rewrite.
		fmt.Fprint(w, `<html><body><a href="/download/report.zip">zip</a></body></html>`)
	})
	mux.HandleFunc("/download/report.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), nil)
	body, name, err := f.ResolveAndFetch(context.Background(), ReportRequest{
		ID:       "solar_forecast",
		PageURL:  srv.URL + "/page",
		Pattern:  LinkPattern{Text: "zip"},
		Archived: true,
	})
	if err != nil {
		t.Fatalf("ResolveAndFetch: %v", err)
	}
	if name != "cdr.00013483.csv" {
		t.Fatalf("unexpected entry name: %s", name)
	}
	if !bytes.Contains(body, []byte("DELIVERY_DATE")) {
		t.Fatalf("unexpected payload: %s", body)
	}
}

func TestResolveAndFetchRejectsMultiEntryArchive(t *testing.T) {
	payload := zipBytes(t, map[string]string{"a.csv": "x", "b.csv": "y"})

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/report.zip">zip</a></body></html>`)
	})
	mux.HandleFunc("/report.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), nil)
	_, _, err := f.ResolveAndFetch(context.Background(), ReportRequest{
		ID:       "solar_forecast",
		PageURL:  srv.URL + "/page",
		Pattern:  LinkPattern{Text: "zip"},
		Archived: true,
	})
	if !errors.Is(err, models.ErrUnexpectedArchiveContents) {
		t.Fatalf("expected ErrUnexpectedArchiveContents, got %v", err)
	}
}

func TestResolveAndFetchTransferError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/gone.zip">zip</a></body></html>`)
	})
	mux.HandleFunc("/gone.zip", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), nil)
	_, _, err := f.ResolveAndFetch(context.Background(), ReportRequest{
		ID:      "wind_forecast",
		PageURL: srv.URL + "/page",
		Pattern: LinkPattern{Text: "zip"},
	})
	if !errors.Is(err, models.ErrTransfer) {
		t.Fatalf("expected ErrTransfer, got %v", err)
	}
}

func TestParseCSV(t *testing.T) {
	data := []byte("DELIVERY_DATE,HOUR_ENDING,COP_HSL_SYSTEM_WIDE\n01/10/2024,1,1200.5\n01/10/2024,2,1100.0\n")
	tbl, err := ParseCSV(data)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", tbl.Len())
	}
	if len(tbl.Cols) != 3 || tbl.Cols[0] != "DELIVERY_DATE" {
		t.Fatalf("unexpected columns: %v", tbl.Cols)
	}
	v, err := tbl.Rows[0].Float("COP_HSL_SYSTEM_WIDE")
	if err != nil || v != 1200.5 {
		t.Fatalf("unexpected value: %v %v", v, err)
	}
}

func TestParseCSVStripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("A,B\n1,2\n")...)
	tbl, err := ParseCSV(data)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if tbl.Cols[0] != "A" {
		t.Fatalf("BOM not stripped from header: %q", tbl.Cols[0])
	}
}
