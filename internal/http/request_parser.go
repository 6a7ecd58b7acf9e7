// Package http provides HTTP server and handler implementations.
//
// This file implements parsing of transaction request bodies. Multipart is
// the primary format since it is the only one that can carry an image;
// url-encoded forms and JSON are accepted for updates without one.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"moneybook/internal/core"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling file parts to disk.
const multipartMemory = 4 << 20

var (
	errBodyTooLarge  = errors.New("request body too large")
	errMalformedBody = errors.New("malformed request body")
)

// RequestBodyParser extracts transaction fields from a request.
type RequestBodyParser struct {
	r        *http.Request
	jsonData map[string]any
}

// NewRequestBodyParser creates a parser for the given request. The body
// must already be limited with http.MaxBytesReader.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	return &RequestBodyParser{r: r}
}

// Parse reads the body according to its Content-Type.
func (p *RequestBodyParser) Parse() error {
	mediaType, _, _ := mime.ParseMediaType(p.r.Header.Get("Content-Type"))

	var err error
	switch mediaType {
	case "multipart/form-data":
		err = p.r.ParseMultipartForm(multipartMemory)
	case "application/json":
		err = p.parseJSON()
	default:
		err = p.r.ParseForm()
	}
	return classifyBodyError(err)
}

func (p *RequestBodyParser) parseJSON() error {
	dec := json.NewDecoder(p.r.Body)
	dec.UseNumber()
	data := make(map[string]any)
	if err := dec.Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			p.jsonData = data
			return nil
		}
		return err
	}
	p.jsonData = data
	return nil
}

func classifyBodyError(err error) error {
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errBodyTooLarge
	}
	// Bodies without a multipart boundary or with no fields are just empty.
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
		return nil
	}
	return errMalformedBody
}

// Get returns a sanitized string value from the parsed body.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	return sanitizeInput(p.r.PostFormValue(key))
}

// File returns the uploaded file under key, or nil when none was sent.
// Reading stops one byte past the image limit so oversize uploads are
// still reported as such without buffering them whole.
func (p *RequestBodyParser) File(key string) (*core.Upload, error) {
	if p.r.MultipartForm == nil {
		return nil, nil
	}
	f, header, err := p.r.FormFile(key)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyBodyError(err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, core.MaxImageBytes+1))
	if err != nil {
		return nil, classifyBodyError(err)
	}
	return &core.Upload{Filename: header.Filename, Data: data}, nil
}

// TransactionInput parses the body into the service's input type.
func (p *RequestBodyParser) TransactionInput() (core.TransactionInput, error) {
	if err := p.Parse(); err != nil {
		return core.TransactionInput{}, err
	}
	img, err := p.File("image")
	if err != nil {
		return core.TransactionInput{}, err
	}
	return core.TransactionInput{
		Name:        p.Get("name"),
		Description: p.Get("description"),
		Amount:      p.Get("amount"),
		Type:        p.Get("type"),
		Image:       img,
	}, nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace. Invalid UTF-8 is passed through untouched
// so validation can reject it instead of it being silently rewritten.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	if !utf8.ValidString(s) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		if r == 127 {
			return -1
		}
		return r
	}, s)
}

// parseID reads a positive integer path id. Anything else is reported by
// callers as not-found.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
