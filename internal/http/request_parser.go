// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for reading request input. Form posts may
// arrive url-encoded from plain HTML forms or as JSON from htmx's json-enc
// extension; both are read through RequestBodyParser.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxBodyBytes bounds every form body.
const maxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r once, up to maxBodyBytes.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized, trimmed value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	return strings.TrimSpace(sanitizeInput(p.Raw(key)))
}

// Raw returns the value exactly as submitted. Used for passwords.
func (p *RequestBodyParser) Raw(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return stringValue(val)
		}
		return ""
	}
	if p.formData != nil {
		return p.formData.Get(key)
	}
	return ""
}

// Bool reads a checkbox: "on", "true", "1" or a JSON true.
func (p *RequestBodyParser) Bool(key string) bool {
	switch strings.ToLower(p.Get(key)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseFormOrFail parses the body of r and returns an error response on failure.
// Returns the parser and nil on success.
func ParseFormOrFail(r *http.Request) (*RequestBodyParser, *HTMXResponse) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return nil, ErrorResponse(http.StatusRequestEntityTooLarge, "Request is too large")
		}
		return nil, BadRequestError("Invalid request format")
	}
	return p, nil
}

// ListParams are the query parameters of the expense list.
type ListParams struct {
	From       string
	To         string
	CategoryID int64
	Search     string
	Page       int
}

// ParseListParams reads expense list filters. Malformed numbers are ignored.
func ParseListParams(query url.Values) ListParams {
	params := ListParams{
		From:   strings.TrimSpace(query.Get("from")),
		To:     strings.TrimSpace(query.Get("to")),
		Search: sanitizeInput(query.Get("q")),
		Page:   1,
	}
	if v := strings.TrimSpace(query.Get("category")); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			params.CategoryID = id
		}
	}
	if v := strings.TrimSpace(query.Get("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			params.Page = n
		}
	}
	return params
}

// Encode renders the filters back into a query string, without the page.
func (p ListParams) Encode() string {
	v := url.Values{}
	if p.From != "" {
		v.Set("from", p.From)
	}
	if p.To != "" {
		v.Set("to", p.To)
	}
	if p.CategoryID > 0 {
		v.Set("category", strconv.FormatInt(p.CategoryID, 10))
	}
	if p.Search != "" {
		v.Set("q", p.Search)
	}
	return v.Encode()
}
