package assignments

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"

	"parc-backend/internal/platform/auth"
	"parc-backend/internal/platform/dbtest"
	"parc-backend/internal/platform/tenant"
)

// newTestRouter mounts the routes the way main does, with a stub session carrying the
// given tenant and role in place of RequireAuth.
func newTestRouter(t *testing.T, f *fixture, sessionTenant, role string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, _ := test.NewNullLogger()
	h := NewHandler(f.svc, f.rec, log, true)

	r := gin.New()
	api := r.Group("/api")
	RegisterPublicRoutes(api, h)
	private := api.Group("/", func(c *gin.Context) {
		c.Set(auth.CtxUserIDKey, "tester")
		c.Set(auth.CtxRoleKey, role)
		c.Set(auth.CtxTenantKey, sessionTenant)
		c.Next()
	})
	RegisterRoutes(private, h)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v\n%s", method, path, err, w.Body)
		}
	}
	return w.Code, out
}

func TestHTTPEquipmentFlow(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f, tenant.Lagom, "user")

	code, body := do(t, r, http.MethodPost, "/api/assignments/actifs/reserve", map[string]any{
		"employeeId": 1,
		"actifIds":   []int64{10},
		"quantities": map[string]int{"10": 2},
	})
	if code != http.StatusCreated || body["success"] != true || body["emailSent"] != true {
		t.Fatalf("reserve: %d %v", code, body)
	}
	if _, leaked := body["token"]; leaked {
		t.Error("reserve response exposes the raw token")
	}
	inv, _ := f.mail.LastInvitation()
	token := inv.Link[strings.LastIndex(inv.Link, "/")+1:]

	code, body = do(t, r, http.MethodGet, "/api/assignments/actifs/"+token+"/validate", nil)
	if code != http.StatusOK || body["valid"] != true {
		t.Fatalf("validate: %d %v", code, body)
	}
	actifs := body["actifs"].([]any)
	first := actifs[0].(map[string]any)
	if first["actifId"] != float64(10) || first["quantity"] != float64(2) || first["assignmentStatus"] != StatusReserved {
		t.Errorf("actif = %v", first)
	}
	if emp := body["employee"].(map[string]any); emp["email"] != "alice@example.com" || emp["nom"] != "Martin" {
		t.Errorf("employee = %v", emp)
	}

	code, body = do(t, r, http.MethodPost, "/api/assignments/actifs/"+token+"/accept", map[string]any{"acceptTerms": false})
	if code != http.StatusBadRequest || body["success"] != false || body["message"] != msgTermsMissing {
		t.Fatalf("accept without terms: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodPost, "/api/assignments/actifs/"+token+"/accept", map[string]any{"acceptTerms": true})
	if code != http.StatusOK || body["success"] != true || body["employeeId"] != float64(1) {
		t.Fatalf("accept: %d %v", code, body)
	}
	if ids := body["actifIds"].([]any); len(ids) != 1 || ids[0] != float64(10) {
		t.Errorf("actifIds = %v", ids)
	}

	code, body = do(t, r, http.MethodPost, "/api/assignments/actifs/"+token+"/accept", map[string]any{"acceptTerms": true})
	if code != http.StatusBadRequest || body["success"] != false || body["message"] != msgUsedLink {
		t.Errorf("second accept: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodGet, "/api/assignments/actifs/"+token+"/validate", nil)
	if code != http.StatusBadRequest || body["valid"] != false {
		t.Errorf("validate after accept: %d %v", code, body)
	}
}

func TestHTTPLicenseRejectWithoutBody(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f, tenant.Insight, "user")

	code, body := do(t, r, http.MethodPost, "/api/assignments/licenses/reserve", map[string]any{
		"employeeId": 2,
		"licenseIds": []int64{20, 21},
	})
	if code != http.StatusCreated {
		t.Fatalf("reserve: %d %v", code, body)
	}
	if got := relStatus(t, f.dbs[tenant.Insight], "license", 2, 20); got != StatusReserved {
		t.Fatalf("insight relation = %q, reservation must follow the session tenant", got)
	}
	inv, _ := f.mail.LastInvitation()
	if !strings.Contains(inv.Link, "/acceptation/licences/") {
		t.Errorf("link = %q", inv.Link)
	}
	token := inv.Link[strings.LastIndex(inv.Link, "/")+1:]

	code, body = do(t, r, http.MethodGet, "/api/assignments/licenses/"+token+"/validate", nil)
	if code != http.StatusOK || len(body["licenses"].([]any)) != 2 {
		t.Fatalf("validate: %d %v", code, body)
	}
	if code, body := do(t, r, http.MethodGet, "/api/assignments/actifs/"+token+"/validate", nil); code != http.StatusBadRequest || body["message"] != msgInvalidLink {
		t.Errorf("license token on equipment route: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodPost, "/api/assignments/licenses/"+token+"/reject", nil)
	if code != http.StatusOK || body["success"] != true {
		t.Fatalf("reject: %d %v", code, body)
	}
	if ids := body["licenseIds"].([]any); len(ids) != 2 {
		t.Errorf("licenseIds = %v", ids)
	}
	if _, echoed := body["reason"]; echoed {
		t.Error("reason echoed back")
	}
}

func TestHTTPValidateReportsMismatchedItems(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f, tenant.Lagom, "user")
	res := f.reserve(t, tenant.Lagom, "equipment", 1, []int64{10, 11}, nil)
	dbtest.Exec(t, f.lagom, `DELETE FROM employee_actifs WHERE actif_id = 11`)

	code, body := do(t, r, http.MethodGet, "/api/assignments/actifs/"+res.Token+"/validate", nil)
	if code != http.StatusBadRequest || body["valid"] != false || body["code"] != string(CodeStateMismatch) {
		t.Fatalf("validate: %d %v", code, body)
	}
	items := body["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["itemId"] != float64(11) {
		t.Errorf("items = %v", items)
	}
}

func TestHTTPResend(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(t, f, tenant.Lagom, "user")
	f.reserve(t, tenant.Lagom, "equipment", 1, []int64{10}, nil)

	code, body := do(t, r, http.MethodPost, "/api/assignments/actifs/resend", map[string]any{"employeeId": 1, "actifId": 10})
	if code != http.StatusOK || body["emailSent"] != true {
		t.Fatalf("resend: %d %v", code, body)
	}

	f.mail.Fail = true
	code, body = do(t, r, http.MethodPost, "/api/assignments/actifs/resend", map[string]any{"employeeId": 1, "actifId": 10})
	if code != http.StatusBadGateway || body["success"] != false || body["emailSent"] != false {
		t.Errorf("resend with failing relay: %d %v", code, body)
	}

	code, body = do(t, r, http.MethodPost, "/api/assignments/actifs/resend", map[string]any{"employeeId": 1})
	if code != http.StatusBadRequest || body["emailSent"] != false {
		t.Errorf("resend without actifId: %d %v", code, body)
	}
}

func TestHTTPTokensAndSweep(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, tenant.Lagom, "equipment", 1, []int64{10}, nil)
	f.reserve(t, tenant.Insight, "equipment", 1, []int64{10}, nil)

	user := newTestRouter(t, f, tenant.Lagom, "user")
	req := httptest.NewRequest(http.MethodGet, "/api/assignments/tokens?employeeId=1&status=PENDING", nil)
	w := httptest.NewRecorder()
	user.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("tokens: %d %s", w.Code, w.Body)
	}
	var rows []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 1 || rows[0]["database"] != tenant.Lagom {
		t.Fatalf("rows = %v, want the session tenant only", rows)
	}
	if _, leaked := rows[0]["token"]; leaked {
		t.Error("audit rows expose the raw token")
	}
	if code, _ := do(t, user, http.MethodGet, "/api/assignments/tokens?employeeId=abc", nil); code != http.StatusBadRequest {
		t.Errorf("bad employeeId: %d", code)
	}

	if code, _ := do(t, user, http.MethodPost, "/api/assignments/sweep", nil); code != http.StatusForbidden {
		t.Errorf("sweep as user: %d", code)
	}
	admin := newTestRouter(t, f, tenant.Lagom, "admin")
	code, body := do(t, admin, http.MethodPost, "/api/assignments/sweep", nil)
	if code != http.StatusOK || len(body["results"].([]any)) != 2 {
		t.Errorf("sweep as admin: %d %v", code, body)
	}
}
