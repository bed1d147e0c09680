package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/taxcore/src/database"
	"github.com/username/taxcore/src/parsers"
	"github.com/username/taxcore/src/parsers/pattern"
	"github.com/username/taxcore/src/repository"
	"github.com/username/taxcore/src/security"
	"github.com/username/taxcore/src/services"
	"github.com/username/taxcore/src/taxconfig"
)

const testSecret = "0123456789abcdef0123456789abcdef"

const w2Text = `Form W-2 Wage and Tax Statement 2024
b Employer identification number (EIN) 12-3456789
c Employer's name, address, and ZIP code
ACME CORP
1 Wages, tips, other compensation   60,000.00
2 Federal income tax withheld       8,000.00
3 Social security wages             60,000.00
4 Social security tax withheld      3,720.00
5 Medicare wages and tips           60,000.00
6 Medicare tax withheld             870.00
15 State IL
16 State wages, tips, etc. 60,000.00
17 State income tax 2,970.00`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	store := repository.NewSQLiteStore(db)
	cfg := taxconfig.NewStore(store, nil)
	f, err := os.Open("../../data/tax_config_2024.yaml")
	require.NoError(t, err)
	defer f.Close()
	_, err = cfg.Import(context.Background(), f)
	require.NoError(t, err)

	reportCache := cache.New(time.Minute, 0)
	extractor := parsers.NewExtractor(0.8, 5*time.Second, pattern.NewProvider())
	router := NewRouter(RouterConfig{
		Auth:           security.NewAuthService(testSecret),
		Documents:      services.NewDocumentService(store, extractor, services.NewTextProducer(1<<20), &services.MockNotifier{}, reportCache, 2),
		Returns:        services.NewReturnService(store, cfg, reportCache, 0.8),
		Config:         cfg,
		MaxUploadSize:  1 << 20,
		RateLimitEvery: time.Millisecond,
		RateLimitBurst: 1000,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c client) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.base+path, rdr)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c client) upload(path string, files map[string]string) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + name + `"`}
		h["Content-Type"] = []string{"text/plain"}
		part, err := mw.CreatePart(h)
		require.NoError(c.t, err)
		_, err = part.Write([]byte(content))
		require.NoError(c.t, err)
	}
	require.NoError(c.t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createReturn(t *testing.T, c client, state string) map[string]any {
	t.Helper()
	resp := c.do(http.MethodPost, "/api/returns", map[string]any{
		"filing_status": "single",
		"profile": map[string]any{
			"first_name": "Jane",
			"last_name":  "Doe",
			"address":    map[string]any{"line1": "1 Main St", "city": "Springfield", "state": state, "zip": "62701"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[map[string]any](t, resp)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	resp := client{t: t, base: srv.URL}.do(http.MethodGet, "/api/returns", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = client{t: t, base: srv.URL, token: "garbage"}.do(http.MethodGet, "/api/returns", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = client{t: t, base: srv.URL}.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestUploadAndCalculate(t *testing.T) {
	srv := newTestServer(t)
	c := client{t: t, base: srv.URL, token: tokenFor(t, "user-1")}
	ret := createReturn(t, c, "IL")
	id := ret["id"].(string)

	resp := c.upload("/api/returns/"+id+"/documents", map[string]string{"w2.txt": w2Text})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	doc := decode[services.DocumentResult](t, resp)
	assert.Equal(t, "parsed", string(doc.Document.Status))

	resp = c.do(http.MethodPost, "/api/returns/"+id+"/calculate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	calc := decode[services.CalculationResult](t, resp)
	assert.Equal(t, "45400.00", calc.Form1040.TaxableIncome.StringFixed(2))
	assert.Equal(t, "5216.00", calc.Form1040.TotalTax.StringFixed(2))
	assert.Equal(t, "2784.00", calc.Form1040.Refund.StringFixed(2))

	resp = c.do(http.MethodGet, "/api/returns/"+id+"/calculation", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/returns/"+id+"/calculation", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("If-None-Match", etag)
	notModified, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer notModified.Body.Close()
	assert.Equal(t, http.StatusNotModified, notModified.StatusCode)

	resp = c.do(http.MethodGet, "/api/documents/"+doc.Document.ID+"/attempts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	attempts := decode[[]map[string]any](t, resp)
	assert.Len(t, attempts, 1)
}

func TestOtherUsersReturnsAreHidden(t *testing.T) {
	srv := newTestServer(t)
	owner := client{t: t, base: srv.URL, token: tokenFor(t, "owner")}
	id := createReturn(t, owner, "IL")["id"].(string)

	intruder := client{t: t, base: srv.URL, token: tokenFor(t, "intruder")}
	for _, path := range []string{"/api/returns/" + id, "/api/returns/" + id + "/documents", "/api/returns/" + id + "/form-8949"} {
		resp := intruder.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp := intruder.do(http.MethodGet, "/api/returns", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]map[string]any](t, resp))
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	c := client{t: t, base: srv.URL, token: tokenFor(t, "user-1")}

	resp := c.do(http.MethodPost, "/api/returns", map[string]any{"filing_status": "divorced"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = c.do(http.MethodPost, "/api/returns", map[string]any{"filing_status": "single", "tax_year": 2019})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "2019")

	resp = c.do(http.MethodPost, "/api/returns", map[string]any{"filing_status": "single", "unknown": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	id := createReturn(t, c, "CA")["id"].(string)
	resp = c.do(http.MethodPost, "/api/returns/"+id+"/calculate", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "CA")

	resp = c.do(http.MethodGet, "/api/returns/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = c.do(http.MethodGet, "/api/tax-years/2024/brackets?filing_status=single&jurisdiction=NY", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = c.do(http.MethodGet, "/api/tax-years/abc/brackets?filing_status=single", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTaxTableEndpoints(t *testing.T) {
	srv := newTestServer(t)
	c := client{t: t, base: srv.URL, token: tokenFor(t, "user-1")}

	resp := c.do(http.MethodGet, "/api/tax-years/active", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2024, decode[map[string]any](t, resp)["year"])

	resp = c.do(http.MethodGet, "/api/tax-years/2024/brackets?filing_status=mfj", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]map[string]any](t, resp), 7)

	resp = c.do(http.MethodGet, "/api/tax-years/2024/standard-deduction?filing_status=single&jurisdiction=il", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2775", decode[map[string]any](t, resp)["amount"])
}

func TestForm8949CSVExport(t *testing.T) {
	srv := newTestServer(t)
	c := client{t: t, base: srv.URL, token: tokenFor(t, "user-1")}
	id := createReturn(t, c, "TX")["id"].(string)

	resp := c.do(http.MethodPost, "/api/returns/"+id+"/adjustments", map[string]any{
		"description":   "=HYPERLINK(\"x\")",
		"date_acquired": "2024-01-02",
		"date_sold":     "2024-03-04",
		"proceeds":      "1000",
		"cost_basis":    "400",
		"is_short_term": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = c.do(http.MethodPost, "/api/returns/"+id+"/calculate", map[string]string{"filing_status": "single"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.do(http.MethodGet, "/api/returns/"+id+"/form-8949?format=csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv"))
	var body bytes.Buffer
	_, err := body.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `"'=HYPERLINK(""x"")"`)
	assert.Contains(t, lines[1], "600.00")
}
