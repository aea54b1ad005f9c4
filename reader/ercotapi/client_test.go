package ercotapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	appconfig "gridflow/config"
	"gridflow/models"
)

func testConfig(tokenURL, baseURL string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.API.TokenURL = tokenURL
	cfg.API.BaseURL = baseURL
	cfg.API.Username = "user"
	cfg.API.Password = "pass"
	cfg.API.SubscriptionKey = "subkey"
	cfg.API.PageSize = 100
	cfg.API.Timeout = 5 * time.Second
	cfg.API.RequestsPerSecond = 1000
	cfg.API.BurstSize = 1000
	return cfg
}

func tokenHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if r.Form.Get("grant_type") != "password" {
			t.Errorf("unexpected grant_type: %s", r.Form.Get("grant_type"))
		}
		json.NewEncoder(w).Encode(map[string]string{"id_token": "tok123"})
	}
}

func TestAuthenticateMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "bad creds"})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL, srv.URL))
	err := c.Authenticate(context.Background())
	if !errors.Is(err, models.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestQueryAllPagesTerminatesOnShortPage(t *testing.T) {
	const pageSize = 4
	var pageRequests int

	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(t))
	mux.HandleFunc("/np6-905-cd/spp_node_zone_hub", func(w http.ResponseWriter, r *http.Request) {
		pageRequests++
		if got := r.Header.Get("Authorization"); got != "Bearer tok123" {
			t.Errorf("unexpected auth header: %s", got)
		}
		if got := r.Header.Get("Ocp-Apim-Subscription-Key"); got != "subkey" {
			t.Errorf("unexpected subscription key: %s", got)
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		rows := pageSize
		if page == 3 {
			rows = pageSize - 1
		}
		if page > 3 {
			t.Errorf("unexpected request for page %d", page)
		}

		data := make([][]any, 0, rows)
		for i := 0; i < rows; i++ {
			seq := (page-1)*pageSize + i
			data = append(data, []any{"2024-01-10", seq, "LZ_NORTH", 25.5})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"fields": []map[string]string{
				{"name": "deliveryDate"}, {"name": "seq"}, {"name": "settlementPoint"}, {"name": "settlementPointPrice"},
			},
			"data": data,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL+"/token", srv.URL))
	tbl, err := c.QueryAllPages(context.Background(), "/np6-905-cd/spp_node_zone_hub", nil, pageSize)
	if err != nil {
		t.Fatalf("QueryAllPages: %v", err)
	}
	if pageRequests != 3 {
		t.Fatalf("expected exactly 3 page requests, got %d", pageRequests)
	}
	if want := pageSize*2 + pageSize - 1; tbl.Len() != want {
		t.Fatalf("expected %d rows, got %d", want, tbl.Len())
	}
	// Server order preserved across pages.
	for i, row := range tbl.Rows {
		if seq, err := row.Int("seq"); err != nil || seq != i {
			t.Fatalf("row %d out of order: seq=%v err=%v", i, row["seq"], err)
		}
	}
	// Column order follows the first page's declared schema.
	wantCols := []string{"deliveryDate", "seq", "settlementPoint", "settlementPointPrice"}
	if len(tbl.Cols) != len(wantCols) {
		t.Fatalf("unexpected columns: %v", tbl.Cols)
	}
	for i, c := range wantCols {
		if tbl.Cols[i] != c {
			t.Fatalf("column %d: want %s, got %v", i, c, tbl.Cols)
		}
	}
}

func TestQueryAllPagesObjectRows(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(t))
	mux.HandleFunc("/np4-190-cd/dam_stlmnt_pnt_prices", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"deliveryDate":"2024-01-10","settlementPoint":"LZ_NORTH","settlementPointPrice":30.25}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL+"/token", srv.URL))
	tbl, err := c.QueryAllPages(context.Background(), "/np4-190-cd/dam_stlmnt_pnt_prices", nil, 100)
	if err != nil {
		t.Fatalf("QueryAllPages: %v", err)
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", tbl.Len())
	}
	if v, err := tbl.Rows[0].Float("settlementPointPrice"); err != nil || v != 30.25 {
		t.Fatalf("unexpected price: %v %v", v, err)
	}
}

func TestQueryAllPagesWithoutCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be issued without credentials")
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, srv.URL)
	cfg.API.Password = ""
	c := NewClient(cfg)

	tbl, err := c.QueryAllPages(context.Background(), "/np6-905-cd/spp_node_zone_hub", nil, 100)
	if err != nil {
		t.Fatalf("expected empty result, got error: %v", err)
	}
	if !tbl.Empty() {
		t.Fatalf("expected empty table, got %d rows", tbl.Len())
	}
}

func TestQueryAllPagesMalformedRow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", tokenHandler(t))
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		// Positional rows with no declared schema cannot be mapped.
		fmt.Fprint(w, `{"data":[["2024-01-10",1,25.5]]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL+"/token", srv.URL))
	_, err := c.QueryAllPages(context.Background(), "/report", nil, 100)
	if !errors.Is(err, models.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}
