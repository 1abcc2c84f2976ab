package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"raffle-ledger/internal/backup"
	"raffle-ledger/internal/config"
	"raffle-ledger/internal/handler"
	"raffle-ledger/internal/ledger"
	"raffle-ledger/internal/models"
	"raffle-ledger/internal/raffle"
	"raffle-ledger/internal/testutil"
	"raffle-ledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const adminPassword = "correct horse"

type testServer struct {
	engine *gin.Engine
	db     *gorm.DB
	token  string
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, mode ledger.Mode) *testServer {
	t.Helper()
	db := testutil.GetEmptyTestDB(t)
	l, err := ledger.New(db, mode, ledger.Options{})
	require.NoError(t, err)
	svc := raffle.NewService(l, raffle.Rules{UnitSize: 200, MaxChancesPerRequest: 5000})

	cfg := &config.Config{
		Server:   config.ServerConfig{Mode: gin.TestMode},
		JWT:      config.JWTConfig{Secret: "test-secret", Issuer: "raffle-ledger", ExpireHours: 1},
		Security: config.SecurityConfig{AdminPassword: adminPassword, EncryptionKey: "test-key"},
	}
	hash, err := util.HashPassword(adminPassword, bcrypt.MinCost)
	require.NoError(t, err)

	s := &testServer{
		engine: SetupRouter(cfg, Deps{
			DB:        db,
			Service:   svc,
			Backups:   backup.NewManager(db, svc, t.TempDir(), cfg.Security.EncryptionKey),
			AdminHash: hash,
		}),
		db: db,
	}
	s.token = s.login(t)
	return s
}

func (s *testServer) do(t *testing.T, method, path, body string, auth bool) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/auth/login", `{"password":"`+adminPassword+`"}`, false)
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestAuth_Required(t *testing.T) {
	s := newTestServer(t, ledger.ModeWeighted)

	for _, r := range []struct{ method, path string }{
		{http.MethodPost, "/api/entries"},
		{http.MethodGet, "/api/entries/summary"},
		{http.MethodDelete, "/api/entries"},
		{http.MethodPost, "/api/draw"},
		{http.MethodGet, "/api/logs"},
		{http.MethodGet, "/api/backups"},
		{http.MethodGet, "/api/export/csv"},
	} {
		w, env := s.do(t, r.method, r.path, "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, r.path)
		assert.Equal(t, util.CodeAuth, env.Code, r.path)
	}
}

func TestAuth_LoginCookieAndMe(t *testing.T) {
	s := newTestServer(t, ledger.ModeWeighted)

	_, env := s.do(t, http.MethodGet, "/api/me", "", false)
	assert.JSONEq(t, `{"is_admin":false}`, string(env.Data))
	_, env = s.do(t, http.MethodGet, "/api/me", "", true)
	assert.JSONEq(t, `{"is_admin":true}`, string(env.Data))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"password":"`+adminPassword+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, handler.TokenCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// cookie 也能通过鉴权
	req = httptest.NewRequest(http.MethodGet, "/api/entries/summary", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_Lockout(t *testing.T) {
	s := newTestServer(t, ledger.ModeWeighted)

	for i := 0; i < 5; i++ {
		w, _ := s.do(t, http.MethodPost, "/api/auth/login", `{"password":"wrong"}`, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	// 锁定期间正确口令也被拒绝
	w, env := s.do(t, http.MethodPost, "/api/auth/login", `{"password":"`+adminPassword+`"}`, false)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, util.CodeTooMany, env.Code)
}

func TestEntries_WeightedFlow(t *testing.T) {
	s := newTestServer(t, ledger.ModeWeighted)

	w, env := s.do(t, http.MethodPost, "/api/entries", `{"id":"Alice","amount":600}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	var grant struct {
		ID          string `json:"id"`
		Chances     int64  `json:"chances"`
		Amount      int64  `json:"amount"`
		ChanceValue int64  `json:"chance_value"`
		Batch       string `json:"batch"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &grant))
	assert.Equal(t, "Alice", grant.ID)
	assert.EqualValues(t, 3, grant.Chances)
	assert.EqualValues(t, 600, grant.Amount)
	assert.EqualValues(t, 200, grant.ChanceValue)
	assert.NotEmpty(t, grant.Batch)

	// 字符串金额同样接受
	w, _ = s.do(t, http.MethodPost, "/api/entries", `{"id":"bob_1","amount":"400"}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	_, env = s.do(t, http.MethodGet, "/api/entries/summary", "", true)
	assert.JSONEq(t, `{
		"mode":"weighted",
		"total_entries":5,
		"unit_size":200,
		"totals":[{"id":"Alice","chances":3},{"id":"bob_1","chances":2}]
	}`, string(env.Data))

	w, _ = s.do(t, http.MethodDelete, "/api/entries/by-id/alice/one", "", true)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodDelete, "/api/entries/by-id/BOB_1", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":2}`, string(env.Data))

	w, env = s.do(t, http.MethodDelete, "/api/entries/by-id/bob_1", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, util.CodeNotFound, env.Code)

	w, env = s.do(t, http.MethodPost, "/api/draw", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var draw struct {
		Winner struct {
			ID string `json:"id"`
		} `json:"winner"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &draw))
	assert.Equal(t, "Alice", draw.Winner.ID)
	assert.EqualValues(t, 2, draw.Total)

	w, _ = s.do(t, http.MethodDelete, "/api/entries", "", true)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodPost, "/api/draw", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, util.CodeEmptyLedger, env.Code)
}

func TestEntries_ValidationErrors(t *testing.T) {
	s := newTestServer(t, ledger.ModeWeighted)

	testCases := map[string]string{
		"missing id":   `{"amount":200}`,
		"short id":     `{"id":"ab","amount":200}`,
		"bad chars":    `{"id":"a b c","amount":200}`,
		"no amount":    `{"id":"Alice"}`,
		"not multiple": `{"id":"Alice","amount":250}`,
		"negative":     `{"id":"Alice","amount":-200}`,
		"fraction":     `{"id":"Alice","amount":200.5}`,
		"word":         `{"id":"Alice","amount":"lots"}`,
		"too many":     `{"id":"Alice","amount":1000200}`,
	}
	for name, body := range testCases {
		w, env := s.do(t, http.MethodPost, "/api/entries", body, true)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
		assert.Equal(t, util.CodeInvalidParam, env.Code, name)
	}

	_, env := s.do(t, http.MethodGet, "/api/entries/summary", "", true)
	assert.JSONEq(t, `{"mode":"weighted","total_entries":0,"unit_size":200,"totals":[]}`, string(env.Data))
}

func TestEntries_UniqueDuplicate(t *testing.T) {
	s := newTestServer(t, ledger.ModeUnique)

	w, _ := s.do(t, http.MethodPost, "/api/entries", `{"id":"Bob"}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := s.do(t, http.MethodPost, "/api/entries", `{"id":"bob"}`, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, util.CodeConflict, env.Code)

	_, env = s.do(t, http.MethodGet, "/api/entries/summary", "", true)
	assert.JSONEq(t, `{"mode":"unique","total_entries":1,"totals":[{"id":"Bob","chances":1}]}`, string(env.Data))
}

func TestAudit_RecordsMutations(t *testing.T) {
	s := newTestServer(t, ledger.ModeWeighted)

	s.do(t, http.MethodPost, "/api/entries", `{"id":"Alice","amount":200}`, true)
	s.do(t, http.MethodGet, "/api/entries/summary", "", true)

	var count int64
	require.NoError(t, s.db.Model(&models.AuditLog{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	_, env := s.do(t, http.MethodGet, "/api/logs", "", true)
	var logs struct {
		Items []struct {
			Path   string `json:"path"`
			Action string `json:"action"`
			Actor  string `json:"actor"`
			Status int    `json:"status"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	require.Len(t, logs.Items, 1)
	assert.Equal(t, "/api/entries", logs.Items[0].Path)
	assert.Contains(t, logs.Items[0].Action, `"Alice"`)
	assert.Equal(t, util.RoleAdmin, logs.Items[0].Actor)
	assert.Equal(t, http.StatusOK, logs.Items[0].Status)

	// 数据库里只有密文
	var row models.AuditLog
	require.NoError(t, s.db.First(&row).Error)
	assert.NotContains(t, row.PathEnc, "/api/entries")
}

func TestExport(t *testing.T) {
	s := newTestServer(t, ledger.ModeWeighted)
	s.do(t, http.MethodPost, "/api/entries", `{"id":"Alice","amount":600}`, true)
	s.do(t, http.MethodPost, "/api/entries", `{"id":"Bob","amount":200}`, true)

	w, _ := s.do(t, http.MethodGet, "/api/export/csv", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "\xEF\xBB\xBF"))
	assert.Contains(t, body, "Alice,3,75.00")
	assert.Contains(t, body, "Bob,1,25.00")

	w, _ = s.do(t, http.MethodGet, "/api/export/xlsx", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	// xlsx 是 zip 文件
	assert.True(t, strings.HasPrefix(w.Body.String(), "PK"))
}

func TestBackups(t *testing.T) {
	s := newTestServer(t, ledger.ModeWeighted)
	s.do(t, http.MethodPost, "/api/entries", `{"id":"Alice","amount":400}`, true)

	w, env := s.do(t, http.MethodPost, "/api/backups", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	var created struct {
		Backup struct {
			ID      uint  `json:"id"`
			Chances int64 `json:"chances"`
		} `json:"backup"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.EqualValues(t, 2, created.Backup.Chances)
	id := created.Backup.ID

	s.do(t, http.MethodDelete, "/api/entries", "", true)

	w, env = s.do(t, http.MethodPost, "/api/backups/"+itoa(id)+"/restore", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"chances_count":2`)

	_, env = s.do(t, http.MethodGet, "/api/entries/summary", "", true)
	assert.Contains(t, string(env.Data), `"total_entries":2`)

	w, _ = s.do(t, http.MethodGet, "/api/backups/"+itoa(id)+"/download", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))

	w, _ = s.do(t, http.MethodDelete, "/api/backups/"+itoa(id), "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(t, http.MethodPost, "/api/backups/"+itoa(id)+"/restore", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, util.CodeNotFound, env.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/backups/abc", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, ledger.ModeWeighted)
	s.do(t, http.MethodPost, "/api/entries", `{"id":"Alice","amount":200}`, true)

	w, _ := s.do(t, http.MethodGet, "/metrics", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "raffle_chances_granted_total")
	assert.Contains(t, w.Body.String(), `raffle_ledger_operations_total{op="register",result="ok"}`)
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
