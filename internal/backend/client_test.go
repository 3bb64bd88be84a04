package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atinyakov/GophBank/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", ts.Client(), nil)
}

func TestSendOTP_JSONAndText(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"json message", "application/json", `{"message":"OTP sent"}`, "OTP sent"},
		{"plain text", "text/plain; charset=utf-8", "OTP sent to inbox\n", "OTP sent to inbox"},
		{"json without message", "application/json", `{"ok":true}`, `{"ok":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/auth/send-otp", r.URL.Path)
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "user@example.com", r.PostForm.Get("email"))
				w.Header().Set("Content-Type", tc.contentType)
				_, _ = io.WriteString(w, tc.body)
			})

			msg, err := c.SendOTP(context.Background(), "user@example.com")
			require.NoError(t, err)
			assert.Equal(t, tc.want, msg)
		})
	}
}

func TestSendOTP_ErrorBodies(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"json error field", "application/json", `{"error":"mail server down"}`, "mail server down"},
		{"json message field", "application/json", `{"message":"email already registered"}`, "email already registered"},
		{"text", "text/plain", "too many requests", "too many requests"},
		{"empty", "", "", "Bad Request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if tc.contentType != "" {
					w.Header().Set("Content-Type", tc.contentType)
				}
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, tc.body)
			})

			_, err := c.SendOTP(context.Background(), "user@example.com")
			be, ok := AsError(err)
			require.True(t, ok, "expected *Error, got %v", err)
			assert.Equal(t, http.StatusBadRequest, be.StatusCode)
			assert.Equal(t, tc.want, be.Message)
			assert.True(t, be.IsClientError())
		})
	}
}

func TestTransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}, nil)

	_, err := c.ResendOTP(context.Background(), "a@b.c")
	be, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, 0, be.StatusCode)
	assert.Contains(t, be.Error(), "resend-otp")
	assert.Contains(t, be.Error(), "connection refused")
}

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestVerifyOTP(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		verified := r.PostForm.Get("otp") == "123456" && r.PostForm.Get("email") == "user@example.com"
		_ = json.NewEncoder(w).Encode(map[string]bool{"verified": verified})
	})

	ok, err := c.VerifyOTP(context.Background(), "user@example.com", "123456")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.VerifyOTP(context.Background(), "user@example.com", "000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyOTP_MessageBodies(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
		wantErr     string
	}{
		{"plain text success", "text/plain", "OTP verified", true, ""},
		{"plain text failure", "text/plain; charset=utf-8", "Invalid OTP", false, ""},
		{"json message", "application/json", `{"message":"OTP verified successfully"}`, true, ""},
		{"json string literal", "application/json", `"OTP expired"`, false, ""},
		{"json flag wins", "application/json", `{"verified":false,"message":"verified"}`, false, ""},
		{"unrecognised", "text/plain", "ok", false, "invalid response"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				_, _ = io.WriteString(w, tc.body)
			})
			ok, err := c.VerifyOTP(context.Background(), "user@example.com", "123456")
			if tc.wantErr != "" {
				be, isBackend := AsError(err)
				require.True(t, isBackend, "err = %v", err)
				assert.Contains(t, be.Message, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestApply(t *testing.T) {
	details := models.PersonalDetails{FullName: "Asha Rao", Aadhaar: "123412341234", PAN: "ABCDE1234F"}
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account-applications/apply", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var got models.PersonalDetails
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, details, got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":42,"status":"SUBMITTED"}`)
	})

	app, err := c.Apply(context.Background(), details)
	require.NoError(t, err)
	assert.Equal(t, int64(42), app.ID)
	assert.Equal(t, models.StatusSubmitted, app.Status)
}

func TestApply_MissingID(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"SUBMITTED"}`)
	})
	_, err := c.Apply(context.Background(), models.PersonalDetails{})
	_, ok := AsError(err)
	assert.True(t, ok)
}

func TestUploadKYC_Multipart(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/account-applications/7/upload-kyc", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for field, want := range map[string]string{
			"profileImage": "face",
			"aadhaarImage": "aadhaar-scan",
			"panImage":     "pan-scan",
		} {
			f, _, err := r.FormFile(field)
			require.NoError(t, err, field)
			b, _ := io.ReadAll(f)
			assert.Equal(t, want, string(b), field)
		}
		_, _ = io.WriteString(w, `{"message":"KYC uploaded"}`)
	})

	docs := models.KYCDocuments{
		Profile: &models.KYCFile{Filename: "me.jpg", Data: []byte("face")},
		Aadhaar: &models.KYCFile{Filename: "a.png", Data: []byte("aadhaar-scan")},
		PAN:     &models.KYCFile{Filename: "p.png", Data: []byte("pan-scan")},
	}
	msg, err := c.UploadKYC(context.Background(), 7, docs)
	require.NoError(t, err)
	// no JSON content type was declared, so the raw body is the message
	assert.Equal(t, `{"message":"KYC uploaded"}`, msg)
}

func TestUploadKYC_MissingFileNoRequest(t *testing.T) {
	called := false
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { called = true })
	_, err := c.UploadKYC(context.Background(), 7, models.KYCDocuments{
		Profile: &models.KYCFile{Data: []byte("x")},
	})
	require.Error(t, err)
	assert.False(t, called)
}

func TestAdminCalls(t *testing.T) {
	var seen []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if strings.HasSuffix(r.URL.Path, "/reject") {
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "blurry scan", body["reason"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"message":"done"}`)
	}).WithToken("tok")

	ctx := context.Background()
	_, err := c.Approve(ctx, 3)
	require.NoError(t, err)
	_, err = c.Reject(ctx, 3, "blurry scan")
	require.NoError(t, err)
	_, err = c.VerifyDocument(ctx, 9, models.AadhaarDocument)
	require.NoError(t, err)
	_, err = c.VerifyDocument(ctx, 9, models.PANDocument)
	require.NoError(t, err)
	_, err = c.VerifyDocument(ctx, 9, models.ProfileDocument)
	require.Error(t, err)

	assert.Equal(t, []string{
		"PUT /account-applications/3/approve",
		"POST /account-applications/3/reject",
		"PUT /customer-profile/user/9/verify-aadhaar",
		"PUT /customer-profile/user/9/verify-pan",
	}, seen)
}

func TestListAndGetApplications(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/account-applications":
			_, _ = io.WriteString(w, `[{"id":1,"status":"SUBMITTED"},{"id":2,"status":"PARTIAL_KYC_PENDING","aadhaarVerified":true}]`)
		case "/account-applications/2":
			_, _ = io.WriteString(w, `{"id":2,"status":"PARTIAL_KYC_PENDING","aadhaarVerified":true}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	apps, err := c.ListApplications(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.True(t, apps[1].AadhaarVerified)

	app, err := c.GetApplication(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartialKYCPending, app.Status)
}

func TestViewImage(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account-applications/view-image", r.URL.Path)
		assert.Equal(t, "uploads/a b.png", r.URL.Query().Get("path"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	img, err := c.ViewImage(context.Background(), "uploads/a b.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Len(t, img.Data, 4)
}

func TestExtractMessage(t *testing.T) {
	assert.Equal(t, "quoted", extractMessage("application/json", []byte(`"quoted"`)))
	assert.Equal(t, "x", extractMessage("application/problem+json", []byte(`{"error":"x"}`)))
	assert.Equal(t, "{broken", extractMessage("application/json", []byte(`{broken`)))
	assert.Equal(t, `{"message":"m"}`, extractMessage("text/html", []byte(`{"message":"m"}`)))
}
