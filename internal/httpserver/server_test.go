package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sdsresolve/internal/config"
	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/health"
	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
	"github.com/MrSnakeDoc/sdsresolve/internal/sources/fields"
	"github.com/MrSnakeDoc/sdsresolve/internal/store/memory"
)

type fakeResolver struct {
	ids    domain.Identifiers
	fields []string
	err    error
}

func (f *fakeResolver) ResolveMissingFields(_ context.Context, ids domain.Identifiers, names []string) (map[string]domain.FieldResult, error) {
	f.ids, f.fields = ids, names
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.FieldResult, len(names))
	for _, n := range names {
		if n == domain.FieldUNNumber {
			out[n] = domain.FieldResult{FieldName: n, Value: "1170", Confidence: 0.8, SourceURL: "https://sds.example", Origin: domain.OriginAnswer}
			continue
		}
		out[n] = domain.Unresolved(n, "")
	}
	return out, nil
}

type fixture struct {
	handler  http.Handler
	resolver *fakeResolver
	tracker  *health.Tracker
	trigger  chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tr, err := health.NewTracker([]string{"https://a.example", "https://b.example"}, health.Config{FailureThreshold: 1})
	if err != nil {
		t.Fatal(err)
	}
	res := &fakeResolver{}
	trigger := make(chan struct{}, 1)
	d := deps.Deps{
		Logger:        logger.NewNop(),
		StartTime:     time.Now(),
		Version:       "test",
		InboundBurst:  100,
		InboundPerMin: 100,
		Resolver:      res,
		Tracker:       tr,
		Cache:         memory.New(time.Now),
		Templates:     fields.NewRegistry(),
		ReloadTrigger: trigger,
	}
	srv := New(&config.Config{ListenPort: ":0", HandlerTimeout: 5 * time.Second}, logger.NewNop(), d)
	return &fixture{handler: srv.Handler(), resolver: res, tracker: tr, trigger: trigger}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestResolve(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/resolve",
		`{"identifiers":{"product_name":"ethanol","cas_number":"64-17-5"},"missing_fields":["un_number","manufacturer"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RunID  string `json:"run_id"`
		Fields map[string]struct {
			Value      string  `json:"value"`
			Confidence float64 `json:"confidence"`
			SourceURL  *string `json:"source_url"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RunID == "" {
		t.Error("expected run_id")
	}
	un := resp.Fields["un_number"]
	if un.Value != "1170" || un.Confidence != 0.8 || un.SourceURL == nil || *un.SourceURL != "https://sds.example" {
		t.Errorf("unexpected un_number %+v", un)
	}
	mf := resp.Fields["manufacturer"]
	if mf.Value != domain.NotFound || mf.Confidence != 0 || mf.SourceURL != nil {
		t.Errorf("unexpected manufacturer %+v", mf)
	}
	if f.resolver.ids.CASNumber != "64-17-5" || len(f.resolver.fields) != 2 {
		t.Errorf("resolver got %+v %v", f.resolver.ids, f.resolver.fields)
	}
}

func TestResolve_BadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"unknown field", `{"identifiers":{},"missing_fields":["un_number"],"extra":1}`, http.StatusBadRequest},
		{"no fields", `{"identifiers":{"product_name":"ethanol"},"missing_fields":[]}`, http.StatusUnprocessableEntity},
		{"blank field", `{"identifiers":{"product_name":"ethanol"},"missing_fields":[""]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := f.do(http.MethodPost, "/resolve", tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestResolve_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = domain.Cancelled(context.DeadlineExceeded)

	rec := f.do(http.MethodPost, "/resolve", `{"identifiers":{"product_name":"ethanol"},"missing_fields":["un_number"]}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestInstancesAndReadiness(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/instances", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Mode      string            `json:"mode"`
		Instances []health.Instance `json:"instances"`
		Cache     struct {
			Enabled bool   `json:"enabled"`
			Backend string `json:"backend"`
		} `json:"cache"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Mode != "healthy" || len(body.Instances) != 2 || !body.Cache.Enabled || body.Cache.Backend != "memory" {
		t.Errorf("unexpected body %+v", body)
	}

	if rec := f.do(http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	f.tracker.ReportFailure("https://a.example")
	f.tracker.ReportFailure("https://b.example")
	if rec := f.do(http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with every instance cooling = %d, want 503", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(http.MethodPost, "/reload", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("first reload = %d", rec.Code)
	}
	// nobody drains the trigger, so the second one is refused
	if rec := f.do(http.MethodPost, "/reload", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second reload = %d, want 429", rec.Code)
	}
	select {
	case <-f.trigger:
	default:
		t.Error("expected a pending trigger")
	}
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodGet, "/healthz", "")

	rec := f.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sdsresolve_http_requests_total") {
		t.Error("expected request counter in exposition")
	}
}
