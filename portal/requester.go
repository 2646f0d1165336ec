package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
)

// Requester performs one JSON request against the attendance API.
// token is sent as a bearer token when not empty; out (a pointer) receives the decoded 2xx body.
//
// Errors are typed: 400 -> *core.ValidationError, 401 -> errUnauthenticated kind, 403 -> ErrUnauthorized kind,
// 404 -> ErrNotFound kind, anything else (network included) -> *TransportError.
type Requester interface {
	Do(ctx context.Context, method, path, token string, body, out interface{}) error
}

type HTTPRequester struct {
	baseURL string
	client  *http.Client
}

var _ Requester = (*HTTPRequester)(nil) // interface compliance check

func NewHTTPRequester(baseURL string, timeout time.Duration) *HTTPRequester {
	vala.BeginValidation().Validate(
		vala.StringNotEmpty(baseURL, "baseURL"),
	).CheckAndPanic()

	return &HTTPRequester{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRequester) Do(ctx context.Context, method, path, token string, body, out interface{}) error {
	transportErr := func(status int, err error) error {
		return &TransportError{Method: method, Path: path, StatusCode: status, Err: err}
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return transportErr(0, errors.Wrap(err, "encoding request body"))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return transportErr(0, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return transportErr(0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportErr(resp.StatusCode, errors.Wrap(err, "reading response body"))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return transportErr(resp.StatusCode, errors.Wrap(err, "decoding response body"))
		}
		return nil
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return decodeValidationError(data)
	case http.StatusUnauthorized:
		return &apiError{status: resp.StatusCode, message: decodeErrorMessage(data), kind: errUnauthenticated}
	case http.StatusForbidden:
		return &apiError{status: resp.StatusCode, message: decodeErrorMessage(data), kind: ErrUnauthorized}
	case http.StatusNotFound:
		return &apiError{status: resp.StatusCode, message: decodeErrorMessage(data), kind: ErrNotFound}
	}

	msg := decodeErrorMessage(data)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return transportErr(resp.StatusCode, errors.New(msg))
}

// decodeErrorMessage reads the message of an error body: {"error": "..."} or a bare JSON string (debug mode).
func decodeErrorMessage(data []byte) string {
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Error != "" {
		return obj.Error
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return ""
}

// decodeValidationError turns a 400 body into a *core.ValidationError.
// Field errors come as {"field": "message", ...}; anything else is kept as a single message.
func decodeValidationError(data []byte) error {
	if msg := decodeErrorMessage(data); msg != "" {
		return core.NewValidationError(errors.New(msg))
	}

	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil || len(fields) == 0 {
		return core.NewValidationError(errors.New(http.StatusText(http.StatusBadRequest)))
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	flds := make([]core.FieldError, 0, len(fields))
	for _, name := range names {
		flds = append(flds, core.FieldError{Field: name, Error: fields[name]})
	}
	return core.NewValidationError(nil, flds...)
}
