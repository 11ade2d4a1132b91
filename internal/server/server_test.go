package server

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sqlnow/internal/app"
	"github.com/kyleking/sqlnow/internal/catalog"
	"github.com/kyleking/sqlnow/internal/config"
	"github.com/kyleking/sqlnow/internal/errors"
	"github.com/kyleking/sqlnow/internal/results"
	"github.com/kyleking/sqlnow/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeBackend serves a fixed catalog and canned query results
type fakeBackend struct {
	tables  []catalog.TableDescriptor
	data    *results.TableData
	err     error
	lastSQL string
	limit   int
}

func (f *fakeBackend) Catalog() []catalog.TableDescriptor { return f.tables }

func (f *fakeBackend) Sections() []string { return []string{"shop"} }

func (f *fakeBackend) Table(name string) (catalog.TableDescriptor, error) {
	for _, t := range f.tables {
		if t.DisplayName == name {
			return t, nil
		}
	}

	return catalog.TableDescriptor{}, errors.Newf(errors.ErrTypeNotFound, "table not found: %s", name)
}

func (f *fakeBackend) RunQuery(_ context.Context, query string, limit int) (*results.TableData, error) {
	f.lastSQL, f.limit = query, limit
	return f.data, f.err
}

func (f *fakeBackend) Stream(_ context.Context, w io.Writer, query string, _ results.Encoding, limit int) error {
	f.lastSQL, f.limit = query, limit
	if f.err != nil {
		return f.err
	}

	_, err := io.WriteString(w, "a\n1\n")

	return err
}

func newFake() *fakeBackend {
	return &fakeBackend{
		tables: []catalog.TableDescriptor{
			testutil.NewTestTable("orders"),
			testutil.NewTestTable("customers", testutil.WithExternal("shop", "")),
		},
		data: &results.TableData{Headers: []string{"a"}, Rows: [][]string{{"1"}}},
	}
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())

	return out
}

func TestTables(t *testing.T) {
	h := New(newFake(), config.ServerConfig{}).Handler()

	rec := postJSON(t, h, "/tables.json", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[tablesResponse](t, rec)
	require.Len(t, resp.Tables, 2)
	assert.Equal(t, "orders", resp.Tables[0].DisplayName)
	assert.Equal(t, "shop.customers", resp.Tables[1].DisplayName)
	assert.Equal(t, []string{"shop"}, resp.Sections)
}

func TestTable(t *testing.T) {
	h := New(newFake(), config.ServerConfig{}).Handler()

	rec := postJSON(t, h, "/table.json", `{"name": "shop.customers"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[tableResponse](t, rec)
	assert.Equal(t, `"shop"."customers"`, resp.Table.QualifiedRef)
	assert.Equal(t, `SELECT * FROM "shop"."customers"`, resp.SelectStar)
	assert.Equal(t, "SELECT\n    \"id\",\n    \"name\"\nFROM \"shop\".\"customers\"", resp.SelectFields)
	assert.Contains(t, resp.SelectFieldsType, "-- VARCHAR")
}

func TestTableErrors(t *testing.T) {
	h := New(newFake(), config.ServerConfig{}).Handler()

	rec := postJSON(t, h, "/table.json", `{"name": "nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	notFound := decode[errorResponse](t, rec)
	assert.Equal(t, "table not found: nope", notFound.Error)
	assert.Equal(t, errors.ErrTypeNotFound, notFound.Type)

	rec = postJSON(t, h, "/table.json", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.ErrTypeValidation, decode[errorResponse](t, rec).Type)
}

func TestQuery(t *testing.T) {
	fake := newFake()
	h := New(fake, config.ServerConfig{}).Handler()

	form := url.Values{"sql": {"SELECT 1 AS a"}, "display_limit": {"25"}}
	req := httptest.NewRequest(http.MethodPost, "/query.json", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SELECT 1 AS a", fake.lastSQL)
	assert.Equal(t, 25, fake.limit)

	resp := decode[queryResponse](t, rec)
	assert.Empty(t, resp.Error)
	assert.Equal(t, fake.data, resp.TableData)
}

func TestQueryErrorIsReportedInPayload(t *testing.T) {
	fake := newFake()
	fake.err = stderrors.New("Parser Error: syntax error at or near \"SELEC\"")

	rec := postJSON(t, New(fake, config.ServerConfig{}).Handler(), "/query.json", `{"sql": "SELEC 1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[queryResponse](t, rec)
	assert.Contains(t, resp.Error, "Parser Error")
	assert.Nil(t, resp.TableData)
}

func TestOutputs(t *testing.T) {
	fake := newFake()
	h := New(fake, config.ServerConfig{}).Handler()

	rec := postJSON(t, h, "/outputs", `{"sql": "SELECT 1 AS a", "format": "tab"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/tab-separated-values", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=download.tsv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a\n1\n", rec.Body.String())
	assert.Equal(t, -1, fake.limit, "exports default to the configured limit")
}

func TestOutputsErrors(t *testing.T) {
	fake := newFake()
	h := New(fake, config.ServerConfig{}).Handler()

	rec := postJSON(t, h, "/outputs", `{"sql": "SELECT 1", "format": "xml"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	fake.err = stderrors.New("Catalog Error: Table with name nope does not exist")
	rec = postJSON(t, h, "/outputs", `{"sql": "SELECT * FROM nope"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, decode[errorResponse](t, rec).Error, "nope does not exist")
}

func TestCORS(t *testing.T) {
	h := New(newFake(), config.ServerConfig{CORSOrigins: []string{"http://localhost:5173"}}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/tables.json", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:5173")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestEndToEnd(t *testing.T) {
	path := testutil.WriteCSV(t, t.TempDir(), "orders.csv", [][]string{{"id", "note"}, {"1", ""}, {"2", "x"}})

	cfg := config.DefaultConfig()
	cfg.Views = []config.Source{{Name: "orders", URI: path}}

	a, err := app.Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	h := New(a, cfg.Server).Handler()

	rec := postJSON(t, h, "/outputs", `{"sql": "SELECT * FROM orders ORDER BY id", "format": "jsonl"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"id":"1","note":null}`+"\n"+`{"id":"2","note":"x"}`+"\n", rec.Body.String())

	rec = postJSON(t, h, "/query.json", `{"sql": "SELECT COUNT(*) AS n FROM orders"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][]string{{"2"}}, decode[queryResponse](t, rec).TableData.Rows)
}
