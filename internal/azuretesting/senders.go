// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package azuretesting provides test doubles for the ARM SDK's HTTP
// pipeline: canned transports, replayable bodies, a fake token
// credential, and a request-recording policy.
package azuretesting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// Body is a response body that can be served any number of times.
type Body struct {
	*bytes.Reader
	content []byte
}

// NewBody returns a Body serving the given content.
func NewBody(content string) *Body {
	data := []byte(content)
	return &Body{Reader: bytes.NewReader(data), content: data}
}

// Close implements io.ReadCloser.
func (b *Body) Close() error {
	return nil
}

// fresh returns a new Body serving the same content from the start.
func (b *Body) fresh() *Body {
	return &Body{Reader: bytes.NewReader(b.content), content: b.content}
}

// NewResponseWithBodyAndStatus assembles a response around a replayable
// body.
func NewResponseWithBodyAndStatus(body *Body, code int, status string) *http.Response {
	return &http.Response{
		StatusCode:    code,
		Status:        status,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          body,
		ContentLength: int64(len(body.content)),
	}
}

// NewResponseWithStatus returns a bodyless response with the given
// status.
func NewResponseWithStatus(code int, status string) *http.Response {
	return NewResponseWithBodyAndStatus(NewBody(""), code, status)
}

type mockResponse struct {
	response *http.Response
	repeat   int
}

// MockSender is a policy.Transporter serving a queue of canned
// responses. A PathPattern, when set, is a regular expression every
// request path must match before a response is served.
type MockSender struct {
	PathPattern string

	responses []mockResponse
	err       error
}

// AppendResponse adds a response to the back of the queue.
func (s *MockSender) AppendResponse(response *http.Response) {
	s.AppendAndRepeatResponse(response, 1)
}

// AppendAndRepeatResponse adds a response to the back of the queue, to
// be served repeat times.
func (s *MockSender) AppendAndRepeatResponse(response *http.Response, repeat int) {
	s.responses = append(s.responses, mockResponse{response: response, repeat: repeat})
}

// SetError makes the sender fail every request with err.
func (s *MockSender) SetError(err error) {
	s.err = err
}

// Do implements policy.Transporter.
func (s *MockSender) Do(req *http.Request) (*http.Response, error) {
	if s.PathPattern != "" {
		matched, err := regexp.MatchString(s.PathPattern, req.URL.Path)
		if err != nil {
			return nil, err
		}
		if !matched {
			return nil, fmt.Errorf("request path %q did not match pattern %q", req.URL.Path, s.PathPattern)
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("no response for %q", req.URL)
	}
	next := &s.responses[0]
	response := *next.response
	next.repeat--
	if next.repeat <= 0 {
		s.responses = s.responses[1:]
	}
	if body, ok := response.Body.(*Body); ok {
		response.Body = body.fresh()
	}
	response.Request = req
	return &response, nil
}

// NewSenderWithValue returns a MockSender serving the JSON encoding of v
// with status 200.
func NewSenderWithValue(v interface{}) *MockSender {
	content, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	sender := &MockSender{}
	sender.AppendResponse(NewResponseWithBodyAndStatus(NewBody(string(content)), http.StatusOK, "OK"))
	return sender
}

// NewSenderWithError returns a MockSender serving an ARM error response
// with the given status code and service error code.
func NewSenderWithError(status int, code string) *MockSender {
	body := fmt.Sprintf(`{"error":{"code":%q,"message":"mock %s error"}}`, code, code)
	sender := &MockSender{}
	sender.AppendResponse(NewResponseWithBodyAndStatus(NewBody(body), status, http.StatusText(status)))
	return sender
}

// Senders is an ordered queue of transports. Each request is served by
// the transport at the head of the queue, which is then popped unless it
// is the last one; the last sender is sticky so polling loops can hit it
// repeatedly.
type Senders []policy.Transporter

// Do implements policy.Transporter.
func (s *Senders) Do(req *http.Request) (*http.Response, error) {
	if len(*s) == 0 {
		return nil, fmt.Errorf("no sender for %q", req.URL)
	}
	sender := (*s)[0]
	if len(*s) > 1 {
		*s = (*s)[1:]
	}
	return sender.Do(req)
}

// PolicyFunc adapts a function to policy.Policy.
type PolicyFunc func(*policy.Request) (*http.Response, error)

// Do implements policy.Policy.
func (f PolicyFunc) Do(req *policy.Request) (*http.Response, error) {
	return f(req)
}

// RequestRecorder returns a pipeline policy that appends a copy of every
// request to the given slice, preserving the request body for
// assertions.
func RequestRecorder(requests *[]*http.Request) policy.Policy {
	if requests == nil {
		return nil
	}
	var mu sync.Mutex
	return PolicyFunc(func(req *policy.Request) (*http.Response, error) {
		// Save the request body, since reading it consumes it.
		reqCopy := *req.Raw()
		if req.Raw().Body != nil {
			var buf bytes.Buffer
			if _, err := buf.ReadFrom(req.Raw().Body); err != nil {
				return nil, err
			}
			if err := req.Raw().Body.Close(); err != nil {
				return nil, err
			}
			reqCopy.Body = io.NopCloser(&buf)
			req.Raw().Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
		}
		mu.Lock()
		*requests = append(*requests, &reqCopy)
		mu.Unlock()
		return req.Next()
	})
}
