package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MuniFlow-io/V1MuniLanding-sub001/assembly"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/auth"
	"github.com/MuniFlow-io/V1MuniLanding-sub001/drafts"
	_ "github.com/MuniFlow-io/V1MuniLanding-sub001/formats/text"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

const certificate = `No. {{BOND_NUMBER}} CUSIP {{CUSIP}}
Matures {{MATURITY_DATE}}, dated {{DATED_DATE}}, at {{COUPON_RATE}}
{{PRINCIPAL_AMOUNT}} ({{PRINCIPAL_WORDS}})
`

func maturityCSV(bad bool) []byte {
	var b strings.Builder
	b.WriteString("Maturity Date,Principal,Coupon Rate,Dated Date\n")
	for i := 1; i <= 4; i++ {
		date := fmt.Sprintf("%d-08-01", 2026+i)
		if bad && i == 2 {
			date = "later"
		}
		fmt.Fprintf(&b, "%s,\"$%d,000\",4.000,2025-06-15\n", date, 100*i)
	}
	return []byte(b.String())
}

func cusipCSV() []byte {
	var b strings.Builder
	b.WriteString("CUSIP,Maturity Date\n")
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&b, "12345AB%02d,%d-08-01\n", i, 2026+i)
	}
	return []byte(b.String())
}

func testServer(t *testing.T, opts Options, keys map[string]string) *Server {
	t.Helper()
	store, err := drafts.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "drafts.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if opts.Version == "" {
		opts.Version = "test"
	}
	return New(opts, assembly.New(nil, 2), store, auth.NewResolver(keys), nil)
}

type part struct {
	name string
	data []byte
}

// form builds a multipart body; files maps field to file, fields holds
// plain values.
func form(t *testing.T, files map[string]part, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, p := range files {
		fw, err := mw.CreateFormFile(field, p.name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(p.data)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func inputs(bad bool) map[string]part {
	return map[string]part{
		"template": {"certificate.txt", []byte(certificate)},
		"maturity": {"maturity.csv", maturityCSV(bad)},
		"cusip":    {"cusip.csv", cusipCSV()},
	}
}

func do(t *testing.T, s *Server, method, path string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func post(t *testing.T, s *Server, path string, files map[string]part, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := form(t, files, fields)
	return do(t, s, http.MethodPost, path, body, map[string]string{"Content-Type": ct})
}

// envelope decodes the response and unmarshals its data into v.
func envelope(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) APIResponse {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if v != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, v); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return APIResponse{Success: raw.Success, Error: raw.Error}
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("response is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

// ════════════════════════════════════════════════════════════════════
// Info and auth
// ════════════════════════════════════════════════════════════════════

func TestHealth(t *testing.T) {
	s := testServer(t, Options{}, nil)
	rec := do(t, s, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var data map[string]string
	resp := envelope(t, rec, &data)
	if !resp.Success || data["status"] != "ok" || data["version"] != "test" {
		t.Errorf("unexpected health response: %+v %v", resp, data)
	}
}

func TestInfoListsFormats(t *testing.T) {
	s := testServer(t, Options{}, nil)
	rec := do(t, s, http.MethodGet, "/api/info", nil, nil)
	var data struct {
		Formats []FormatInfo `json:"formats"`
		Auth    string       `json:"auth"`
	}
	envelope(t, rec, &data)
	if len(data.Formats) == 0 {
		t.Error("expected registered formats")
	}
	if data.Auth != "open" {
		t.Errorf("auth: got %q, want open", data.Auth)
	}
}

func TestTags(t *testing.T) {
	s := testServer(t, Options{}, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/tags", nil, nil)
	var defs []map[string]interface{}
	envelope(t, rec, &defs)
	if len(defs) != 12 {
		t.Errorf("expected 12 tag definitions, got %d", len(defs))
	}
}

func TestAuthentication(t *testing.T) {
	s := testServer(t, Options{}, map[string]string{"secret": "alice"})

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"health is open", "/health", nil, http.StatusOK},
		{"info is open", "/api/info", nil, http.StatusOK},
		{"no key", "/api/v1/tags", nil, http.StatusUnauthorized},
		{"wrong key", "/api/v1/tags", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"api key", "/api/v1/tags", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer", "/api/v1/tags", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.path, nil, tt.header)
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// ════════════════════════════════════════════════════════════════════
// Pipeline endpoints
// ════════════════════════════════════════════════════════════════════

func TestScan(t *testing.T) {
	s := testServer(t, Options{}, nil)
	rec := post(t, s, "/api/v1/templates/scan", map[string]part{"template": inputs(false)["template"]}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var data ScanResponse
	envelope(t, rec, &data)
	if !data.Completeness.Complete {
		t.Errorf("expected complete template, missing %v", data.Completeness.Missing)
	}
	if data.TagMap == nil || len(data.TagMap.Assignments) != 7 {
		t.Errorf("expected 7 assignments, got %+v", data.TagMap)
	}
	if !strings.Contains(data.Preview, `data-tag="CUSIP"`) {
		t.Errorf("preview does not mark tags: %s", data.Preview)
	}
}

func TestScanRejectsUnknownFormat(t *testing.T) {
	s := testServer(t, Options{}, nil)
	rec := post(t, s, "/api/v1/templates/scan", map[string]part{"template": {"logo.png", []byte("\x89PNG\r\n\x1a\n")}}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestValidateSchedules(t *testing.T) {
	s := testServer(t, Options{}, nil)
	files := inputs(true)
	delete(files, "template")

	rec := post(t, s, "/api/v1/schedules/validate", files, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var data ScheduleReport
	envelope(t, rec, &data)
	if data.Maturity.Summary.Invalid != 1 || data.Maturity.Summary.Valid != 3 {
		t.Errorf("maturity summary: %+v", data.Maturity.Summary)
	}
	if len(data.Join.Joined) != 3 || len(data.Join.UnmatchedCusip) != 1 {
		t.Errorf("join: %d joined, %d unmatched CUSIPs", len(data.Join.Joined), len(data.Join.UnmatchedCusip))
	}

	rec = post(t, s, "/api/v1/schedules/validate?report=xlsx", files, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Error("expected an xlsx workbook")
	}
}

func TestAssemble(t *testing.T) {
	s := testServer(t, Options{}, nil)
	rec := post(t, s, "/api/v1/assemble", inputs(false), map[string]string{
		"numbering": `{"prefix":"2025A-","starting_number":7}`,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if n := rec.Header().Get("X-Bond-Count"); n != "4" {
		t.Errorf("X-Bond-Count: got %q, want 4", n)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "certificate-certificates.zip") {
		t.Errorf("Content-Disposition: got %q", cd)
	}
	names := zipNames(t, rec.Body.Bytes())
	want := []string{"2025A-07.txt", "2025A-08.txt", "2025A-09.txt", "2025A-10.txt", "manifest.json"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("members: got %v, want %v", names, want)
	}
}

func TestAssembleDefaultNumbering(t *testing.T) {
	prefix := "S-"
	s := testServer(t, Options{}, nil)
	s.opts.Numbering.Prefix = &prefix
	rec := post(t, s, "/api/v1/assemble", inputs(false), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if names := zipNames(t, rec.Body.Bytes()); names[0] != "S-1.txt" {
		t.Errorf("first member: got %q, want S-1.txt", names[0])
	}
}

func TestAssembleRefusals(t *testing.T) {
	s := testServer(t, Options{}, nil)

	rec := post(t, s, "/api/v1/assemble", inputs(true), nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var failure Failure
	resp := envelope(t, rec, &failure)
	if resp.Success || failure.Stage != assembly.StageAcknowledgment {
		t.Errorf("unexpected failure: %+v %+v", resp, failure)
	}

	// Acknowledged: the CUSIP of the invalid row is left out with it.
	rec = post(t, s, "/api/v1/assemble", inputs(true), map[string]string{"acknowledge": "true"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if n := rec.Header().Get("X-Bond-Count"); n != "3" {
		t.Errorf("X-Bond-Count: got %q, want 3", n)
	}
	if n := rec.Header().Get("X-Orphaned-Rows"); n != "1" {
		t.Errorf("X-Orphaned-Rows: got %q, want 1", n)
	}

	// A CUSIP row no invalid row accounts for still blocks the join.
	files := inputs(true)
	files["cusip"] = part{"cusip.csv", append(cusipCSV(), "12345AB99,2050-08-01\n"...)}
	rec = post(t, s, "/api/v1/assemble", files, map[string]string{"acknowledge": "true"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var joinFailure struct {
		Stage  assembly.Stage         `json:"stage"`
		Detail map[string]interface{} `json:"detail"`
	}
	envelope(t, rec, &joinFailure)
	if joinFailure.Stage != assembly.StageJoin || joinFailure.Detail["unmatched_cusip"] == nil {
		t.Errorf("unexpected join failure: %+v", joinFailure)
	}

	// The same CUSIP on two maturities is a join error.
	files = inputs(false)
	files["cusip"] = part{"cusip.csv", []byte(strings.Replace(string(cusipCSV()), "12345AB02", "12345AB01", 1))}
	rec = post(t, s, "/api/v1/assemble", files, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate CUSIP: expected 422, got %d", rec.Code)
	}
	joinFailure.Detail = nil
	envelope(t, rec, &joinFailure)
	if dups, _ := joinFailure.Detail["duplicate_cusip"].([]interface{}); len(dups) != 1 {
		t.Errorf("duplicate_cusip detail: %+v", joinFailure.Detail)
	}
}

func TestAssembleBadInput(t *testing.T) {
	s := testServer(t, Options{}, nil)

	files := inputs(false)
	delete(files, "cusip")
	if rec := post(t, s, "/api/v1/assemble", files, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: expected 400, got %d", rec.Code)
	}
	if rec := post(t, s, "/api/v1/assemble", inputs(false), map[string]string{"metadata": "{"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: expected 400, got %d", rec.Code)
	}
}

func TestPreflight(t *testing.T) {
	s := testServer(t, Options{}, nil)

	rec := post(t, s, "/api/v1/preflight", inputs(false), nil)
	var report assembly.Report
	envelope(t, rec, &report)
	if !report.Ready || len(report.Bonds) != 4 {
		t.Errorf("expected ready report with 4 bonds, got %+v", report.Problems)
	}

	rec = post(t, s, "/api/v1/preflight", inputs(true), nil)
	report = assembly.Report{}
	envelope(t, rec, &report)
	if report.Ready || len(report.Problems) == 0 {
		t.Error("expected problems for an invalid schedule")
	}
}

// ════════════════════════════════════════════════════════════════════
// Drafts
// ════════════════════════════════════════════════════════════════════

func TestDraftLifecycle(t *testing.T) {
	s := testServer(t, Options{}, map[string]string{"k-alice": "alice", "k-bob": "bob"})
	alice := map[string]string{"X-API-Key": "k-alice", "Content-Type": "application/json"}
	bob := map[string]string{"X-API-Key": "k-bob"}

	in := inputs(false)
	body, _ := json.Marshal(drafts.Draft{
		Step:     drafts.StepSchedules,
		Template: &drafts.Upload{Name: in["template"].name, Data: in["template"].data},
		Maturity: &drafts.Upload{Name: in["maturity"].name, Data: in["maturity"].data},
		Cusip:    &drafts.Upload{Name: in["cusip"].name, Data: in["cusip"].data},
	})
	rec := do(t, s, http.MethodPost, "/api/v1/drafts", bytes.NewReader(body), alice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created drafts.Summary
	envelope(t, rec, &created)
	if created.Owner != "alice" || created.Step != drafts.StepSchedules {
		t.Fatalf("unexpected summary: %+v", created)
	}
	path := "/api/v1/drafts/" + created.ID.String()

	var list []drafts.Summary
	envelope(t, do(t, s, http.MethodGet, "/api/v1/drafts", nil, alice), &list)
	if len(list) != 1 {
		t.Errorf("alice: expected 1 draft, got %d", len(list))
	}
	list = nil
	envelope(t, do(t, s, http.MethodGet, "/api/v1/drafts", nil, bob), &list)
	if len(list) != 0 {
		t.Errorf("bob: expected no drafts, got %d", len(list))
	}
	if rec := do(t, s, http.MethodGet, path, nil, bob); rec.Code != http.StatusNotFound {
		t.Errorf("bob reading alice's draft: expected 404, got %d", rec.Code)
	}

	var loaded drafts.Draft
	envelope(t, do(t, s, http.MethodGet, path, nil, alice), &loaded)
	if loaded.Template == nil || string(loaded.Template.Data) != certificate {
		t.Error("template did not round-trip")
	}

	loaded.Step = drafts.StepReview
	body, _ = json.Marshal(loaded)
	if rec := do(t, s, http.MethodPut, path, bytes.NewReader(body), alice); rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodPost, path+"/assemble", nil, alice)
	if rec.Code != http.StatusOK {
		t.Fatalf("assemble draft: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if n := rec.Header().Get("X-Bond-Count"); n != "4" {
		t.Errorf("X-Bond-Count: got %q", n)
	}

	if rec := do(t, s, http.MethodDelete, path, nil, alice); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, path, nil, alice); rec.Code != http.StatusNotFound {
		t.Errorf("after delete: expected 404, got %d", rec.Code)
	}
}

func TestDraftValidation(t *testing.T) {
	s := testServer(t, Options{}, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/drafts", strings.NewReader(`{"step":"shipping"}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown step: expected 400, got %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/api/v1/drafts/not-a-uuid", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}

	rec = do(t, s, http.MethodPost, "/api/v1/drafts", strings.NewReader(`{"step":"template"}`), nil)
	var created drafts.Summary
	envelope(t, rec, &created)
	rec = do(t, s, http.MethodPost, "/api/v1/drafts/"+created.ID.String()+"/assemble", nil, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("incomplete draft: expected 422, got %d", rec.Code)
	}
}

// ════════════════════════════════════════════════════════════════════
// Static UI and base path
// ════════════════════════════════════════════════════════════════════

func TestStaticIndex(t *testing.T) {
	s := testServer(t, Options{}, nil)
	rec := do(t, s, http.MethodGet, "/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Bond Certificate Generator") {
		t.Error("index page not served")
	}
}

func TestBasePath(t *testing.T) {
	s := testServer(t, Options{BasePath: "/bonds/"}, nil)

	if rec := do(t, s, http.MethodGet, "/bonds/health", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("health under base path: got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/bonds/", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("index under base path: got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/", nil, nil); rec.Code != http.StatusFound {
		t.Errorf("root redirect: got %d", rec.Code)
	}
}
