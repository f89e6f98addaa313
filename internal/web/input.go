package web

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
)

// input returns the submitted fields for form and JSON bodies alike.
func input(r *http.Request) (url.Values, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/json" {
		if mt == "multipart/form-data" {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				return nil, err
			}
		} else if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json body: %w", err)
	}
	vals := make(url.Values, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			vals.Set(k, tv)
		case nil:
		default:
			vals.Set(k, fmt.Sprint(tv))
		}
	}
	return vals, nil
}
