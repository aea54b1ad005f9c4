package writer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	appconfig "gridflow/config"
	"gridflow/models"
)

func TestArtifactName(t *testing.T) {
	at := time.Date(2024, 1, 10, 13, 5, 0, 0, time.UTC)
	got := ArtifactName("phase1_metrics", at)
	want := "phase1_metrics_2024-01-10_T13_05_00.xlsx"
	if got != want {
		t.Errorf("ArtifactName = %q, want %q", got, want)
	}
}

func TestWorkbookWrite(t *testing.T) {
	dir := t.TempDir()

	tbl := models.NewTable("datetime", "Forecasted Demand")
	tbl.Append(models.Row{
		"datetime":          time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		"Forecasted Demand": 51234.5,
	})
	tbl.Append(models.Row{
		"datetime":          time.Date(2024, 1, 10, 1, 0, 0, 0, time.UTC),
		"Forecasted Demand": 50012.0,
	})

	w := NewWorkbookWriter(dir)
	path, err := w.Write("phase1", time.Date(2024, 1, 10, 5, 0, 0, 0, time.UTC),
		Sheet{Name: "Forecast", Table: tbl})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open written workbook: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 1 || got[0] != "Forecast" {
		t.Errorf("sheets = %v, want [Forecast]", got)
	}
	header, err := f.GetCellValue("Forecast", "B1")
	if err != nil || header != "Forecasted Demand" {
		t.Errorf("B1 = %q (err %v), want header", header, err)
	}
	cell, err := f.GetCellValue("Forecast", "A2")
	if err != nil || cell != "2024-01-10 00:00" {
		t.Errorf("A2 = %q (err %v), want formatted timestamp", cell, err)
	}
}

func TestWorkbookWriteMultipleSheets(t *testing.T) {
	tbl := models.NewTable("a")
	tbl.Append(models.Row{"a": 1.0})

	w := NewWorkbookWriter(t.TempDir())
	path, err := w.Write("phase2", time.Now(),
		Sheet{Name: "DAM Today", Table: tbl},
		Sheet{Name: "DAM Yesterday", Table: tbl.Copy()})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open written workbook: %v", err)
	}
	defer f.Close()
	if got := f.GetSheetList(); len(got) != 2 {
		t.Errorf("sheets = %v, want 2 sheets", got)
	}
}

func TestArchiveOldArtifacts(t *testing.T) {
	prod := t.TempDir()
	archive := filepath.Join(prod, "archive")

	stale := filepath.Join(prod, "phase1_2024-01-09_T05_00_00.xlsx")
	fresh := filepath.Join(prod, "phase1_2024-01-10_T05_00_00.xlsx")
	for _, p := range []string{stale, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	yesterday := time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(stale, yesterday, yesterday); err != nil {
		t.Fatal(err)
	}
	today := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)
	if err := os.Chtimes(fresh, today, today); err != nil {
		t.Fatal(err)
	}

	moved, err := ArchiveOldArtifacts(prod, archive, today)
	if err != nil {
		t.Fatalf("ArchiveOldArtifacts: %v", err)
	}
	if moved != 1 {
		t.Errorf("moved = %d, want 1", moved)
	}
	if _, err := os.Stat(filepath.Join(archive, filepath.Base(stale))); err != nil {
		t.Errorf("stale artifact not archived: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh artifact should stay in production: %v", err)
	}
}

func TestArchiveOldArtifactsMissingDir(t *testing.T) {
	moved, err := ArchiveOldArtifacts(filepath.Join(t.TempDir(), "absent"), t.TempDir(), time.Now())
	if err != nil || moved != 0 {
		t.Errorf("moved = %d, err = %v; want 0, nil", moved, err)
	}
}

func TestSlackNotifier(t *testing.T) {
	var got struct {
		Channel string `json:"channel"`
		Text    string `json:"text"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer xoxb-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := jsonDecode(r, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cfg := &appconfig.Config{}
	cfg.Notify.SlackToken = "xoxb-test"
	cfg.Notify.SlackChannel = "#eepp"

	n := NewSlackNotifier(cfg)
	n.url = srv.URL
	if err := n.Notify(context.Background(), "run complete"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got.Channel != "#eepp" || got.Text != "run complete" {
		t.Errorf("posted %+v", got)
	}
}

func TestSlackNotifierDisabledWithoutToken(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	n := NewSlackNotifier(&appconfig.Config{})
	n.url = srv.URL
	if err := n.Notify(context.Background(), "ignored"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if calls != 0 {
		t.Errorf("requests issued = %d, want 0", calls)
	}
}

func TestSlackNotifierAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	cfg := &appconfig.Config{}
	cfg.Notify.SlackToken = "xoxb-test"
	cfg.Notify.SlackChannel = "#nowhere"

	n := NewSlackNotifier(cfg)
	n.url = srv.URL
	if err := n.Notify(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for rejected message")
	}
}

func jsonDecode(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
