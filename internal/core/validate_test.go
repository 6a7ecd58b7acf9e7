package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0}, 32)...)
	gifBytes  = append([]byte("GIF89a"), bytes.Repeat([]byte{0}, 32)...)
	svgBytes  = []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	webpBytes = []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
)

func TestDetectImage(t *testing.T) {
	cases := []struct {
		name     string
		data     []byte
		ext      string
		isImage  bool
		accepted bool
	}{
		{"png", pngBytes, "png", true, true},
		{"jpeg", jpegBytes, "jpg", true, true},
		{"gif", gifBytes, "gif", true, true},
		{"svg with prolog", svgBytes, "svg", true, true},
		{"bare svg", []byte(`<svg width="1"></svg>`), "svg", true, true},
		{"webp is an image but not accepted", webpBytes, "", true, false},
		{"plain text", []byte("hello world"), "", false, false},
		{"xml that is not svg", []byte(`<?xml version="1.0"?><note></note>`), "", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ext, isImage, accepted := DetectImage(tc.data)
			if ext != tc.ext || isImage != tc.isImage || accepted != tc.accepted {
				t.Fatalf("DetectImage = (%q, %v, %v), want (%q, %v, %v)", ext, isImage, accepted, tc.ext, tc.isImage, tc.accepted)
			}
		})
	}
}

func TestTransactionInputValidate_OK(t *testing.T) {
	in := TransactionInput{
		Name:        "  Coffee ",
		Description: "",
		Amount:      "5000",
		Type:        "expense",
		Image:       &Upload{Filename: "valid.jpg", Data: jpegBytes},
	}
	draft, err := in.Validate(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Name != "Coffee" {
		t.Errorf("name = %q, want trimmed", draft.Name)
	}
	if draft.Amount.String() != "5000" {
		t.Errorf("amount = %s", draft.Amount)
	}
	if draft.Type != Expense {
		t.Errorf("type = %s", draft.Type)
	}
	if draft.Image == nil || draft.Image.Ext != "jpg" || draft.Image.ContentType != "image/jpeg" {
		t.Errorf("image = %+v", draft.Image)
	}
}

func TestTransactionInputValidate_ImageOptionalOnUpdate(t *testing.T) {
	in := TransactionInput{Name: "Salary", Amount: "100.50", Type: "income"}
	draft, err := in.Validate(false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.Image != nil {
		t.Fatalf("expected no image")
	}
}

func TestTransactionInputValidate_Failures(t *testing.T) {
	tests := []struct {
		name  string
		in    TransactionInput
		field string
		msg   string
	}{
		{"missing name", TransactionInput{Amount: "1", Type: "income", Image: &Upload{Data: pngBytes}}, "name", "The name field is required."},
		{"long name", TransactionInput{Name: strings.Repeat("x", 256), Amount: "1", Type: "income", Image: &Upload{Data: pngBytes}}, "name", "The name field must not be greater than 255 characters."},
		{"name not utf-8", TransactionInput{Name: "caf\xe9", Amount: "1", Type: "income", Image: &Upload{Data: pngBytes}}, "name", "The name field must be a valid UTF-8 string."},
		{"description not utf-8", TransactionInput{Name: "a", Description: "\xff\xfe", Amount: "1", Type: "income", Image: &Upload{Data: pngBytes}}, "description", "The description field must be a valid UTF-8 string."},
		{"missing amount", TransactionInput{Name: "a", Type: "income", Image: &Upload{Data: pngBytes}}, "amount", "The amount field is required."},
		{"non numeric amount", TransactionInput{Name: "a", Amount: "abc", Type: "income", Image: &Upload{Data: pngBytes}}, "amount", "The amount field must be a number."},
		{"amount exponent too large", TransactionInput{Name: "a", Amount: "1e999999999", Type: "income", Image: &Upload{Data: pngBytes}}, "amount", "The amount field must be a number."},
		{"negative amount", TransactionInput{Name: "a", Amount: "-5", Type: "income", Image: &Upload{Data: pngBytes}}, "amount", "The amount field must be at least 0."},
		{"missing type", TransactionInput{Name: "a", Amount: "1", Image: &Upload{Data: pngBytes}}, "type", "The type field is required."},
		{"bad type", TransactionInput{Name: "a", Amount: "1", Type: "transfer", Image: &Upload{Data: pngBytes}}, "type", "The selected type is invalid."},
		{"missing image", TransactionInput{Name: "a", Amount: "1", Type: "income"}, "image", "The image field is required."},
		{"empty image", TransactionInput{Name: "a", Amount: "1", Type: "income", Image: &Upload{Filename: "x.png"}}, "image", "The image field is required."},
		{"not an image", TransactionInput{Name: "a", Amount: "1", Type: "income", Image: &Upload{Data: []byte("text")}}, "image", "The image field must be an image."},
		{"wrong format", TransactionInput{Name: "a", Amount: "1", Type: "income", Image: &Upload{Data: webpBytes}}, "image", "The image field must be a file of type: jpeg, png, jpg, gif, svg."},
		{"too large", TransactionInput{Name: "a", Amount: "1", Type: "income", Image: &Upload{Data: append(append([]byte{}, pngBytes...), make([]byte, MaxImageBytes)...)}}, "image", "The image field must not be greater than 2048 kilobytes."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.Validate(true)
			var fe FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldErrors, got %v", err)
			}
			found := false
			for _, m := range fe[tt.field] {
				if m == tt.msg {
					found = true
				}
			}
			if !found {
				t.Fatalf("field %q messages = %v, want %q", tt.field, fe[tt.field], tt.msg)
			}
		})
	}
}

func TestTransactionInputValidate_ReportsAllFields(t *testing.T) {
	_, err := TransactionInput{}.Validate(true)
	var fe FieldErrors
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldErrors, got %v", err)
	}
	for _, f := range []string{"name", "amount", "type", "image"} {
		if len(fe[f]) == 0 {
			t.Errorf("missing error for %s", f)
		}
	}
	if !strings.HasPrefix(fe.Error(), "validation failed: amount:") {
		t.Errorf("Error() should list fields sorted, got %q", fe.Error())
	}
}
