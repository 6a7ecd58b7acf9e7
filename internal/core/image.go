package core

import (
	"bytes"
	"net/http"
	"strings"
)

// MaxImageBytes bounds an uploaded receipt image (2048 KiB).
const MaxImageBytes = 2048 * 1024

// AcceptedImageTypes lists the accepted formats in the order they are
// reported back to clients.
var AcceptedImageTypes = []string{"jpeg", "png", "jpg", "gif", "svg"}

type (
	// Upload is a raw file as received from the client. Filename is kept only
	// for logging; it never becomes a storage key.
	Upload struct {
		Filename string
		Data     []byte
	}

	// Image is an upload that passed validation.
	Image struct {
		Data        []byte
		ContentType string
		Ext         string
	}
)

// Size returns the upload size in bytes.
func (u *Upload) Size() int64 {
	if u == nil {
		return 0
	}
	return int64(len(u.Data))
}

// Empty reports whether no file content was received.
func (u *Upload) Empty() bool {
	return u == nil || len(u.Data) == 0
}

// DetectImage sniffs data and returns its content type and canonical
// extension. isImage is true for any image/* content; accepted is true only
// for the formats in AcceptedImageTypes.
func DetectImage(data []byte) (contentType, ext string, isImage, accepted bool) {
	if isSVG(data) {
		return "image/svg+xml", "svg", true, true
	}
	contentType = http.DetectContentType(data)
	switch contentType {
	case "image/jpeg":
		return contentType, "jpg", true, true
	case "image/png":
		return contentType, "png", true, true
	case "image/gif":
		return contentType, "gif", true, true
	}
	return contentType, "", strings.HasPrefix(contentType, "image/"), false
}

func isSVG(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	head = bytes.ToLower(bytes.TrimSpace(head))
	if !bytes.HasPrefix(head, []byte("<?xml")) &&
		!bytes.HasPrefix(head, []byte("<svg")) &&
		!bytes.HasPrefix(head, []byte("<!doctype svg")) &&
		!bytes.HasPrefix(head, []byte("<!--")) {
		return false
	}
	return bytes.Contains(head, []byte("<svg"))
}
