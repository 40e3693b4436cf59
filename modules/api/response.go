package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"github.com/guarzo/studyplan/common/model"
)

// interpret turns the final response into an envelope. It only fails when
// the body cannot be read.
func interpret(resp *http.Response, mode model.ResponseMode) (model.Envelope, error) {
	env := model.Envelope{
		OK:     resp.StatusCode >= 200 && resp.StatusCode <= 299,
		Status: resp.StatusCode,
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if mode == model.ModeBinary && env.OK {
		env.Data = model.BlobPayload(data, resp.Header.Get("Content-Type"))
		env.Filename = FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
		return env, nil
	}

	if mode == model.ModeStructured && json.Valid(data) {
		env.Data = model.JSONPayload(data)
	} else {
		env.Data = model.FallbackPayload(string(data))
	}
	return env, nil
}

var filenameRe = regexp.MustCompile(`filename[^;=\n]*=((['"]).*?['"]|[^;\n]*)`)

// FilenameFromDisposition extracts the suggested filename from an
// attachment Content-Disposition header, without quotes. It returns "" for
// inline or missing headers.
func FilenameFromDisposition(disposition string) string {
	if !strings.Contains(disposition, "attachment") {
		return ""
	}
	if _, params, err := mime.ParseMediaType(disposition); err == nil {
		if name := unquote(params["filename"]); name != "" {
			return name
		}
	}
	m := filenameRe.FindStringSubmatch(disposition)
	if m == nil {
		return ""
	}
	return unquote(m[1])
}

var quoteStripper = strings.NewReplacer(`"`, "", `'`, "")

func unquote(s string) string {
	return quoteStripper.Replace(strings.TrimSpace(s))
}
