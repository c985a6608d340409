package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func request(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func TestPolicyRequiredRole(t *testing.T) {
	policy := NewDefaultPolicy(nil, nil)

	cases := []struct {
		method, path string
		want         Role
	}{
		{http.MethodGet, "/api/v1/baseline/adjustments", RoleViewer},
		{http.MethodPost, "/api/v1/baseline/adjustments", RoleOperator},
		{http.MethodGet, "/api/v1/baseline", RoleViewer},
		{http.MethodPost, "/api/v1/baseline/recompute", RoleAdmin},
		{http.MethodPost, "/api/v1/invoices", RoleAdmin},
		{http.MethodPost, "/api/v1/invoices/inv-1/payment", RoleOperator},
		{http.MethodPost, "/api/v1/schedules", RoleOperator},
		{http.MethodGet, "/api/v1/schedules", RoleViewer},
	}
	for _, tc := range cases {
		role, ok := policy.RequiredRole(request(tc.method, tc.path))
		if !ok {
			t.Fatalf("%s %s must require a role", tc.method, tc.path)
		}
		if role != tc.want {
			t.Fatalf("%s %s requires %s, want %s", tc.method, tc.path, role, tc.want)
		}
	}
}

func TestPolicyExemptions(t *testing.T) {
	policy := NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})

	if !policy.IsExempt(request(http.MethodGet, "/healthz")) {
		t.Fatal("/healthz should be exempt")
	}
	if !policy.IsExempt(request(http.MethodPost, "/ingest/readings")) {
		t.Fatal("/ingest/ prefix should be exempt")
	}
	if policy.IsExempt(request(http.MethodGet, "/api/v1/baseline")) {
		t.Fatal("/api/v1/baseline must not be exempt")
	}
}
