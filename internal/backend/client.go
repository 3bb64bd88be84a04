// Package backend is the single configured client for the banking REST
// backend. Every call made by the onboarding workflow and the admin screens
// goes through it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/atinyakov/GophBank/internal/models"
	"go.uber.org/zap"
)

const (
	apiSendOTP      = "/auth/send-otp"
	apiResendOTP    = "/auth/resend-otp"
	apiVerifyOTP    = "/auth/verify-otp"
	apiApplications = "/account-applications"
	apiApply        = apiApplications + "/apply"
	apiViewImage    = apiApplications + "/view-image"
	apiCustomerUser = "/customer-profile/user"
)

// Client talks to the banking backend. The zero value is not usable; use New.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	log     *zap.Logger
}

// New returns a Client rooted at baseURL. A nil httpClient means
// http.DefaultClient; a nil log disables logging.
func New(baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log,
	}
}

// WithToken returns a copy of c that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendOTP asks the backend to e-mail a one-time code to email.
func (c *Client) SendOTP(ctx context.Context, email string) (string, error) {
	return c.postForm(ctx, "send-otp", apiSendOTP, url.Values{"email": {email}})
}

// ResendOTP asks the backend to issue a fresh code to email.
func (c *Client) ResendOTP(ctx context.Context, email string) (string, error) {
	return c.postForm(ctx, "resend-otp", apiResendOTP, url.Values{"email": {email}})
}

// VerifyOTP checks code for email. A false result with a nil error means the
// backend answered but rejected the code.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) (bool, error) {
	const op = "verify-otp"
	form := url.Values{"email": {email}, "otp": {code}}
	req, err := c.newRequest(ctx, http.MethodPost, apiVerifyOTP, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(op, req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if err := checkStatus(op, resp); err != nil {
		return false, err
	}
	body, err := readBody(resp, maxMessageBody)
	if err != nil {
		return false, &Error{Op: op, StatusCode: resp.StatusCode, Message: "read body: " + err.Error()}
	}
	return parseVerified(op, resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

// Apply submits personal details and returns the created application.
func (c *Client) Apply(ctx context.Context, details models.PersonalDetails) (*models.ApplicationRecord, error) {
	const op = "apply"
	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, apiApply, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var app models.ApplicationRecord
	if err := decodeJSON(op, resp, &app); err != nil {
		return nil, err
	}
	if app.ID == 0 {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: "response carries no application id"}
	}
	return &app, nil
}

// UploadKYC sends the three KYC images as one multipart request.
func (c *Client) UploadKYC(ctx context.Context, applicationID int64, docs models.KYCDocuments) (string, error) {
	const op = "upload-kyc"
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, d := range models.DocumentTypes {
		f := docs.File(d)
		if !f.Present() {
			return "", fmt.Errorf("%s: missing %s file", op, d)
		}
		name := f.Filename
		if name == "" {
			name = string(d)
		}
		part, err := mw.CreateFormFile(models.FormField(d), name)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, applicationPath(applicationID, "upload-kyc"), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.message(op, req)
}

// ListApplications returns every application visible to the caller's token.
func (c *Client) ListApplications(ctx context.Context) ([]models.ApplicationRecord, error) {
	const op = "list-applications"
	req, err := c.newRequest(ctx, http.MethodGet, apiApplications, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apps []models.ApplicationRecord
	if err := decodeJSON(op, resp, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// GetApplication fetches one application.
func (c *Client) GetApplication(ctx context.Context, id int64) (*models.ApplicationRecord, error) {
	const op = "get-application"
	req, err := c.newRequest(ctx, http.MethodGet, applicationPath(id, ""), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var app models.ApplicationRecord
	if err := decodeJSON(op, resp, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// Approve approves an application.
func (c *Client) Approve(ctx context.Context, id int64) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPut, applicationPath(id, "approve"), nil)
	if err != nil {
		return "", err
	}
	return c.message("approve", req)
}

// Reject rejects an application with a reason.
func (c *Client) Reject(ctx context.Context, id int64, reason string) (string, error) {
	b, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, http.MethodPost, applicationPath(id, "reject"), bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.message("reject", req)
}

// VerifyDocument marks the Aadhaar or PAN of a customer as verified.
func (c *Client) VerifyDocument(ctx context.Context, userID int64, doc models.DocumentType) (string, error) {
	var action string
	switch doc {
	case models.AadhaarDocument:
		action = "verify-aadhaar"
	case models.PANDocument:
		action = "verify-pan"
	default:
		return "", fmt.Errorf("document %q has no verification endpoint", doc)
	}
	path := apiCustomerUser + "/" + strconv.FormatInt(userID, 10) + "/" + action
	req, err := c.newRequest(ctx, http.MethodPut, path, nil)
	if err != nil {
		return "", err
	}
	return c.message(action, req)
}

// Image is a document image downloaded from the backend.
type Image struct {
	ContentType string
	Data        []byte
}

// ViewImage downloads the stored image at path.
func (c *Client) ViewImage(ctx context.Context, path string) (*Image, error) {
	const op = "view-image"
	req, err := c.newRequest(ctx, http.MethodGet, apiViewImage+"?"+url.Values{"path": {path}}.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(op, resp); err != nil {
		return nil, err
	}
	data, err := readBody(resp, maxImageBody)
	if err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: "read body: " + err.Error()}
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &Image{ContentType: ct, Data: data}, nil
}

func applicationPath(id int64, action string) string {
	p := apiApplications + "/" + strconv.FormatInt(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) postForm(ctx context.Context, op, path string, form url.Values) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.message(op, req)
}

func (c *Client) message(op string, req *http.Request) (string, error) {
	resp, err := c.do(op, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	return readMessage(op, resp)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("backend request failed",
			zap.String("op", op),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		return nil, &Error{Op: op, Message: err.Error()}
	}
	c.log.Debug("backend request",
		zap.String("op", op),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode))
	return resp, nil
}
