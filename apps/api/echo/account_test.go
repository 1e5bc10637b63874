package echoapi

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/darasahq/darasa/core/account"
)

const testPassword = "S3kr3t!Pass234"

func Test_accountApi_register(t *testing.T) {
	env := setup(t)

	newAccountBody := func(name, email, pwd, role string) []byte {
		return marchallObj(t, account.NewAccount{
			Name:            name,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Role:            role,
		})
	}

	t.Run("student gets a linking code", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/accounts/register", newAccountBody("Asha M", uniqueEmail("asha"), testPassword, "student"))
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var acct account.Account
		decodeObj(t, rec, &acct)
		if acct.Role != account.RoleStudent {
			t.Errorf("role = %q; want %q", acct.Role, account.RoleStudent)
		}
		if len(acct.StudentCode) != account.DefaultCodeLength {
			t.Errorf("student code = %q; want length %d", acct.StudentCode, account.DefaultCodeLength)
		}
	})

	t.Run("signup opens a session", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/accounts/register", newAccountBody("S Igned", uniqueEmail("signup"), testPassword, "teacher"))
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var acct account.Account
		decodeObj(t, rec, &acct)

		var cookie *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == env.conf.Server.SessionCookieName {
				cookie = c
			}
		}
		if cookie == nil {
			t.Fatal("register response set no session cookie")
		}

		// the cookie works without a separate login
		req, rec = newAuthRequest(http.MethodGet, "/v1/accounts/me", cookie)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, acct)}, rec)
	})

	t.Run("teacher gets no linking code", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/accounts/register", newAccountBody("Mr K", uniqueEmail("k"), testPassword, "teacher"))
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var acct account.Account
		decodeObj(t, rec, &acct)
		if acct.StudentCode != "" {
			t.Errorf("student code = %q; want empty", acct.StudentCode)
		}
	})

	t.Run("password never leaks", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/accounts/register", newAccountBody("P Leak", uniqueEmail("leak"), testPassword, "parent"))
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var raw map[string]interface{}
		decodeObj(t, rec, &raw)
		for _, key := range []string{"password", "password_hash", "reset_token"} {
			if _, ok := raw[key]; ok {
				t.Errorf("response contains %q", key)
			}
		}
	})

	fieldErrorCases := []struct {
		name      string
		body      []byte
		wantField string
	}{
		{name: "invalid role", body: newAccountBody("X", uniqueEmail("x"), testPassword, "principal"), wantField: "role"},
		{name: "invalid email", body: newAccountBody("X", "nope", testPassword, "student"), wantField: "email"},
		{name: "short password", body: newAccountBody("X", uniqueEmail("x"), "Ab1!", "student"), wantField: "password"},
		{name: "numeric password", body: newAccountBody("X", uniqueEmail("x"), "1234567890", "student"), wantField: "password"},
	}
	for _, tt := range fieldErrorCases {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/accounts/register", tt.body)
			env.server.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			var fldErrs map[string]string
			decodeObj(t, rec, &fldErrs)
			if _, ok := fldErrs[tt.wantField]; !ok {
				t.Errorf("missing %q field error; got %v", tt.wantField, fldErrs)
			}
		})
	}

	t.Run("duplicate email", func(t *testing.T) {
		email := uniqueEmail("dup")
		createAccount(t, env.acctSvc, "First", email, testPassword, account.RoleTeacher)

		req, rec := newRequest(http.MethodPost, "/v1/accounts/register", newAccountBody("Second", email, testPassword, "teacher"))
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
		var fldErrs map[string]string
		decodeObj(t, rec, &fldErrs)
		if _, ok := fldErrs["email"]; !ok {
			t.Errorf("missing email field error; got %v", fldErrs)
		}
	})
}

func Test_accountApi_loginMeLogout(t *testing.T) {
	env := setup(t)
	email := uniqueEmail("teach")
	acct := createAccount(t, env.acctSvc, "Mrs T", email, testPassword, account.RoleTeacher)

	// unknown email and wrong password fail identically
	invalidCreds := marchallObj(t, httpErr{Error: "invalid credentials"})
	for _, tt := range []httpTest{
		{
			name: "wrong password", body: marchallObj(t, LoginRequest{Email: email, Password: "wr0ng-Pass!"}),
			wantCode: http.StatusBadRequest, wantData: invalidCreds,
		},
		{
			name: "unknown email", body: marchallObj(t, LoginRequest{Email: "ghost@test.cd", Password: testPassword}),
			wantCode: http.StatusBadRequest, wantData: invalidCreds,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/accounts/login", tt.body)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("me requires a session", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/accounts/me")
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)}, rec)
	})

	cookie := login(t, env, email, testPassword)

	t.Run("me", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/accounts/me", cookie)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, acct)}, rec)
	})

	t.Run("logout kills the session", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/accounts/logout", cookie)
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusNoContent)
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/accounts/me", cookie)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)}, rec)
	})

	t.Run("deleted account session resolves to nothing", func(t *testing.T) {
		cookie := login(t, env, email, testPassword)
		if err := env.acctSvc.Delete(context.Background(), acct.ID); err != nil {
			t.Fatalf("Delete() failed: %v", err)
		}

		req, rec := newAuthRequest(http.MethodGet, "/v1/accounts/me", cookie)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errNotAuthenticated)}, rec)
	})
}

func Test_accountApi_update(t *testing.T) {
	env := setup(t)
	email := uniqueEmail("upd")
	createAccount(t, env.acctSvc, "Old Name", email, testPassword, account.RoleParent)
	cookie := login(t, env, email, testPassword)

	req, rec := newAuthRequest(http.MethodPut, "/v1/accounts/me", cookie, []byte(`{"name": "New Name"}`))
	env.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var got account.Account
	decodeObj(t, rec, &got)
	if got.Name != "New Name" {
		t.Errorf("name = %q; want %q", got.Name, "New Name")
	}
	if got.Email != email {
		t.Errorf("email = %q; want %q (unchanged)", got.Email, email)
	}
}

func Test_accountApi_query(t *testing.T) {
	env := setup(t)
	teacherEmail := uniqueEmail("teach")
	studentEmail := uniqueEmail("stud")
	createAccount(t, env.acctSvc, "Mrs T", teacherEmail, testPassword, account.RoleTeacher)
	createAccount(t, env.acctSvc, "Asha", studentEmail, testPassword, account.RoleStudent)

	t.Run("teacher role required", func(t *testing.T) {
		cookie := login(t, env, studentEmail, testPassword)
		req, rec := newAuthRequest(http.MethodGet, "/v1/accounts", cookie)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	t.Run("teacher sees all accounts", func(t *testing.T) {
		cookie := login(t, env, teacherEmail, testPassword)
		req, rec := newAuthRequest(http.MethodGet, "/v1/accounts", cookie)
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var accts []account.Account
		decodeObj(t, rec, &accts)
		if len(accts) != 2 {
			t.Errorf("len(accounts) = %d; want 2", len(accts))
		}
	})
}

func Test_accountApi_passwordReset(t *testing.T) {
	env := setup(t)
	email := uniqueEmail("reset")
	createAccount(t, env.acctSvc, "Mrs R", email, testPassword, account.RoleTeacher)

	uniform := marchallObj(t, SuccessResponse{
		Success: "If the email address supplied is associated with an account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})

	// the response never says whether the email is registered
	for _, tt := range []httpTest{
		{name: "unknown email", body: marchallObj(t, PasswordResetRequest{Email: "ghost@test.cd"})},
		{name: "known email", body: marchallObj(t, PasswordResetRequest{Email: email})},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/accounts/password-reset", tt.body)
			env.server.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: uniform}, rec)
		})
	}

	acct, err := env.acctSvc.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("GetByEmail() failed: %v", err)
	}
	if len(acct.ResetToken) != 64 {
		t.Fatalf("stored token = %q; want 64 hex chars", acct.ResetToken)
	}

	confirmBody := func(token, pwd string) []byte {
		return marchallObj(t, account.ResetAccountPassword{Token: token, Password: pwd, PasswordConfirm: pwd})
	}
	const newPassword = "N3w-S3kr3t!Pass"

	t.Run("bogus token", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/accounts/password-reset-confirm", confirmBody("deadbeef", newPassword))
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: account.ErrInvalidToken.Error()}),
		}, rec)
	})

	t.Run("weak password is rejected before the token is spent", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/accounts/password-reset-confirm", confirmBody(acct.ResetToken, "Ab1!"))
		env.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v; body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
		var fldErrs map[string]string
		decodeObj(t, rec, &fldErrs)
		if _, ok := fldErrs["password"]; !ok {
			t.Errorf("missing password field error; got %v", fldErrs)
		}

		// old password and token are both still good
		if _, err := env.acctSvc.Authenticate(context.Background(), email, testPassword); err != nil {
			t.Errorf("Authenticate() with old password failed: %v", err)
		}
	})

	t.Run("confirm swaps the password and consumes the token", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/accounts/password-reset-confirm", confirmBody(acct.ResetToken, newPassword))
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		}, rec)

		login(t, env, email, newPassword)

		// token reuse
		req, rec = newRequest(http.MethodPost, "/v1/accounts/password-reset-confirm", confirmBody(acct.ResetToken, "An0ther-S3kr3t!"))
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: account.ErrInvalidToken.Error()}),
		}, rec)
	})
}

func Test_accountApi_children(t *testing.T) {
	env := setup(t)
	parentEmail := uniqueEmail("parent")
	studentEmail := uniqueEmail("kid")
	teacherEmail := uniqueEmail("teach")
	createAccount(t, env.acctSvc, "Mrs P", parentEmail, testPassword, account.RoleParent)
	child := createAccount(t, env.acctSvc, "Asha", studentEmail, testPassword, account.RoleStudent)
	createAccount(t, env.acctSvc, "Mrs T", teacherEmail, testPassword, account.RoleTeacher)

	t.Run("parent role required", func(t *testing.T) {
		cookie := login(t, env, teacherEmail, testPassword)
		req, rec := newAuthRequest(http.MethodPost, "/v1/accounts/children", cookie, marchallObj(t, LinkChildRequest{StudentCode: child.StudentCode}))
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})

	cookie := login(t, env, parentEmail, testPassword)

	t.Run("unknown code", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/accounts/children", cookie, marchallObj(t, LinkChildRequest{StudentCode: "ZZZZZZ"}))
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_code": "unknown student code"}),
		}, rec)
	})

	t.Run("link folds code case", func(t *testing.T) {
		body := marchallObj(t, LinkChildRequest{StudentCode: "  " + strings.ToLower(child.StudentCode) + " "})
		req, rec := newAuthRequest(http.MethodPost, "/v1/accounts/children", cookie, body)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusCreated, wantData: marchallObj(t, child)}, rec)
	})

	t.Run("list children", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/accounts/children", cookie)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t, child)}, rec)
	})

	t.Run("unlink", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/accounts/children/"+child.ID, cookie)
		env.server.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusNoContent)
		}

		// unlinking twice
		req, rec = newAuthRequest(http.MethodDelete, "/v1/accounts/children/"+child.ID, cookie)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)}, rec)

		// a malformed child id is simply not linked
		req, rec = newAuthRequest(http.MethodDelete, "/v1/accounts/children/not-a-uuid", cookie)
		env.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)}, rec)
	})
}
