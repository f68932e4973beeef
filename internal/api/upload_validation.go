package api

import (
	"bytes"
	"net/http"
	"strings"
	"unicode/utf8"
)

var supportedUploadTypes = map[string]string{
	"application/pdf": "application/pdf",
	"image/png":       "image/png",
	"image/jpeg":      "image/jpeg",
}

// detectUpload sniffs the payload and returns its content type, or false when the upload
// is empty, whitespace only, invalid text or an unsupported binary format.
func detectUpload(body []byte) (string, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", false
	}
	sniffed := http.DetectContentType(body)
	base := strings.TrimSpace(strings.SplitN(sniffed, ";", 2)[0])
	if ct, ok := supportedUploadTypes[base]; ok {
		return ct, true
	}
	if strings.HasPrefix(base, "text/") && utf8.Valid(body) {
		return "text/plain; charset=utf-8", true
	}
	return "", false
}
