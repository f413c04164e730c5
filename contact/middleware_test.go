package contact

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/context"
	"github.com/stretchr/testify/assert"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		Developing bool
		HSTS       string
	}{
		{Developing: false, HSTS: "max-age=63072000; includeSubDomains; preload"},
		{Developing: true, HSTS: ""},
	}

	for _, test := range tests {
		s := Server{cfg: Config{Developing: test.Developing}}

		rr := httptest.NewRecorder()
		s.SecurityHeaders(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		h := rr.Header()
		if h.Get("Strict-Transport-Security") != test.HSTS {
			t.Errorf("TestSecurityHeaders: developing=%v expected HSTS %q, got %q", test.Developing, test.HSTS, h.Get("Strict-Transport-Security"))
		}

		assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
		assert.Equal(t, "SAMEORIGIN", h.Get("X-Frame-Options"))
		assert.Equal(t, "1; mode=block", h.Get("X-XSS-Protection"))
		assert.Equal(t, "on", h.Get("X-DNS-Prefetch-Control"))
		assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
		assert.Equal(t, "camera=(), microphone=(), geolocation=()", h.Get("Permissions-Policy"))
		assert.Contains(t, h.Get("Content-Security-Policy"), "default-src 'none'")
	}
}

func TestSetVersionHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	SetVersionHeader(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Header().Get("X-Roilion-Version") != version {
		t.Errorf("TestSetVersionHeader: expected %v, got %v", version, rr.Header().Get("X-Roilion-Version"))
	}
}

func TestJSONContentType(t *testing.T) {
	rr := httptest.NewRecorder()
	JSONContentType(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestRestoreRealIP(t *testing.T) {
	var seen string
	h := RestoreRealIP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = clientIP(r)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "10.0.0.1", seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("CF-Connecting-IP", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "203.0.113.7", seen)
}

func TestCheckOrigin(t *testing.T) {
	s := Server{cfg: Config{AllowedOrigins: []string{"https://auroilion.fr"}}}

	tests := []struct {
		Name     string
		Method   string
		Origin   string
		Expected int
		ACAO     string
	}{
		{Name: "allowed", Method: http.MethodPost, Origin: "https://auroilion.fr", Expected: http.StatusOK, ACAO: "https://auroilion.fr"},
		{Name: "allowed any case", Method: http.MethodPost, Origin: "https://AuRoiLion.fr", Expected: http.StatusOK, ACAO: "https://AuRoiLion.fr"},
		{Name: "no origin", Method: http.MethodPost, Origin: "", Expected: http.StatusOK},
		{Name: "foreign", Method: http.MethodPost, Origin: "https://evil.example", Expected: http.StatusForbidden},
		{Name: "preflight", Method: http.MethodOptions, Origin: "https://auroilion.fr", Expected: http.StatusNoContent, ACAO: "https://auroilion.fr"},
		{Name: "foreign preflight", Method: http.MethodOptions, Origin: "https://evil.example", Expected: http.StatusForbidden},
	}

	for _, test := range tests {
		r := httptest.NewRequest(test.Method, "/api/v1/contact", nil)
		if test.Origin != "" {
			r.Header.Set("Origin", test.Origin)
		}

		rr := httptest.NewRecorder()
		s.CheckOrigin(ok).ServeHTTP(rr, r)

		if rr.Code != test.Expected {
			t.Errorf("TestCheckOrigin: %v: expected status %v, got %v", test.Name, test.Expected, rr.Code)
		}

		assert.Equal(t, test.ACAO, rr.Header().Get("Access-Control-Allow-Origin"), test.Name)
	}
}

func TestCheckOrigin_AnyWhenUnconfigured(t *testing.T) {
	s := Server{}

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Origin", "https://anywhere.example")

	rr := httptest.NewRecorder()
	s.CheckOrigin(ok).ServeHTTP(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequireBearer_SetsAndClearsIdentity(t *testing.T) {
	ts := newTestServer(t, nil)

	var seen string
	h := ts.RequireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = identity(r)
	}))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "bearer "+ts.tg.NewToken("visitor-7"))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "visitor-7", seen)
	assert.Nil(t, context.Get(r, identityKey))
}

func TestRecover(t *testing.T) {
	for _, developing := range []bool{false, true} {
		s := Server{cfg: Config{Developing: developing}}

		rr := httptest.NewRecorder()
		s.Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		if developing {
			assert.Contains(t, rr.Body.String(), "boom")
		} else {
			assert.NotContains(t, rr.Body.String(), "boom")
		}
	}
}
