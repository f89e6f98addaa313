package security

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
)

// isForm reports whether the body is a form the standard parser understands.
func isForm(r *http.Request) (form, multipart bool) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false, false
	}
	switch mt {
	case "application/x-www-form-urlencoded":
		return true, false
	case "multipart/form-data":
		return true, true
	}
	return false, false
}

// parseForm parses form bodies once, capped at maxBody. Other bodies are left untouched.
func parseForm(r *http.Request, maxBody int64) error {
	if r.PostForm != nil {
		return nil
	}
	form, multi := isForm(r)
	if !form {
		return nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBody)
	if multi {
		return r.ParseMultipartForm(maxBody)
	}
	return r.ParseForm()
}

var errBodyTooLarge = errors.New("request body too large")

// peekBody reads up to maxBody bytes and puts them back for the next reader.
func peekBody(r *http.Request, maxBody int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	r.Body.Close()
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > maxBody {
		return nil, errBodyTooLarge
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	return b, nil
}
