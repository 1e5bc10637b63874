package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/account"
	"github.com/darasahq/darasa/core/classroom"
	"github.com/darasahq/darasa/core/session"
	emailsvc "github.com/darasahq/darasa/services/email"
	"github.com/darasahq/darasa/storage/database/inmem"
	redisstore "github.com/darasahq/darasa/storage/session"
)

var (
	errNotAuthenticated = httpErr{Error: "not authenticated"}
	errForbidden        = httpErr{Error: "permission denied"}
	errNotFound         = httpErr{Error: "not found"}
)

type testEnv struct {
	server   Server
	conf     *core.Config
	acctSvc  account.Service
	classSvc classroom.Service
	auth     *session.Authenticator
}

type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}

func newTestConfig() *core.Config {
	return &core.Config{
		Env:                       "test",
		TestMode:                  true,
		AppName:                   "Darasa",
		FrontendBaseURL:           "http://localhost:3000",
		WorkDir:                   core.Getwd(),
		PasswordResetTimeoutDelta: 24 * time.Hour,
		Server: core.ServerConfig{
			SessionTTL:        time.Hour,
			SessionCookieName: "darasa_session",
		},
	}
}

func newTestTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := newTestConfig()
	logger := testLogger{}

	validate := validator.New()
	translator := newTestTranslator()
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator)
	core.ParseEmailTemplates(logger, conf)

	db := inmem.NewDB()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	acctSvc := account.NewService(inmem.NewAccountRepository(db), mailSvc, conf)
	classSvc := classroom.NewService(inmem.NewClassRepository(db))

	mr := miniredis.RunT(t)
	store := redisstore.NewRedisStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	auth := session.NewAuthenticator(store, acctSvc, conf)

	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		AccountSvc: acctSvc,
		ClassSvc:   classSvc,
		Auth:       auth,
		Validate:   validate,
		Translator: translator,
	})
	return &testEnv{
		server:   server,
		conf:     conf,
		acctSvc:  acctSvc,
		classSvc: classSvc,
		auth:     auth,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	cookie   *http.Cookie
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path string, cookie *http.Cookie, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, nil, data...)
}

// createAccount seeds an account through the service, bypassing the API.
func createAccount(t *testing.T, svc account.Service, name, email, pwd, role string) account.Account {
	t.Helper()
	acct, err := svc.Create(context.Background(), account.NewAccount{
		Name:            name,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Role:            role,
	})
	if err != nil {
		t.Fatalf("createAccount(%s) failed: %v", email, err)
	}
	return acct
}

// login performs an API login and returns the session cookie.
func login(t *testing.T, env *testEnv, email, pwd string) *http.Cookie {
	t.Helper()
	body := marchallObj(t, LoginRequest{Email: email, Password: pwd})
	req, rec := newRequest(http.MethodPost, "/v1/accounts/login", body)
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login(%s) failed: code = %v; body = %s", email, rec.Code, rec.Body.String())
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == env.conf.Server.SessionCookieName {
			return cookie
		}
	}
	t.Fatalf("login(%s): no session cookie in response", email)
	return nil
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
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
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decodeObj(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
}

var seq int

// uniqueEmail avoids collisions between accounts seeded by different tests.
func uniqueEmail(prefix string) string {
	seq++
	return fmt.Sprintf("%s%d@test.cd", prefix, seq)
}
