package domain

import (
	"net/http"
	"slices"
)

// Request describes an upstream call besides its URL
type Request struct {
	// Defaults to GET
	Method string
	Header http.Header
	Body   []byte
}

func (r Request) MethodOrDefault() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// WithBearerToken returns a copy of the request authorized with token
func (r Request) WithBearerToken(token string) Request {
	if token == "" {
		return r
	}
	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Authorization", "Bearer "+token)
	return Request{
		Method: r.Method,
		Header: header,
		Body:   slices.Clone(r.Body),
	}
}
