package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/services/ratelimit"
	"github.com/trezcool/academia/tests"
)

var (
	env *testutil.Env
	app *Server

	errMissingToken   = httpErr{Error: "missing or malformed token"}
	errInvalidToken   = httpErr{Error: "invalid or expired token"}
	errAuthRequired   = httpErr{Error: "authentication required"}
	errPermDenied     = httpErr{Error: "permission denied"}
	errNotFound       = httpErr{Error: "not found"}
	errInvalidSysCred = httpErr{Error: "invalid system admin credentials"}
)

func TestMain(m *testing.M) {
	env = testutil.NewEnv()
	app = newServer(ratelimit.NewMemoryLimiter(1000, time.Minute))

	// run tests
	code := m.Run()

	// clean up
	if err := env.Mailer.Close(); err != nil {
		fmt.Printf("mailer.Close(): %v", err)
		os.Exit(1)
	}

	os.Exit(code)
}

func newServer(limiter ratelimit.Limiter) *Server {
	return NewServer(ServerDeps{
		Conf:       env.Conf,
		Logger:     env.Logger,
		Tokens:     env.Tokens,
		AccountSvc: env.AccountSvc,
		StaffSvc:   env.StaffSvc,
		SetupSvc:   env.SetupSvc,
		Limiter:    limiter,
		Validate:   env.Validate,
		Translator: env.Translator,
	})
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// serve sends the request of tt to app.
func serve(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	return rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshalBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshalBody() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	checkCode(t, tt, rec)
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// sysAdminBody merges the system admin credentials into the JSON object of obj.
func sysAdminBody(t *testing.T, obj interface{}) []byte {
	data := make(map[string]interface{})
	if err := json.Unmarshal(marchallObj(t, obj), &data); err != nil {
		t.Fatalf("sysAdminBody() failed: %v", err)
	}
	data["sysAdminUsername"] = env.Conf.Auth.SysAdminUsername
	data["sysAdminPassword"] = env.Conf.Auth.SysAdminPassword
	return marchallObj(t, data)
}

func sysAdminQuery() string {
	return "sysAdminUsername=" + env.Conf.Auth.SysAdminUsername + "&sysAdminPassword=" + env.Conf.Auth.SysAdminPassword
}
