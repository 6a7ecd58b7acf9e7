package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const maxNameLength = 255

// FieldErrors maps an input field to the reasons it was rejected.
type FieldErrors map[string][]string

// Add appends a message for field.
func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// HasErrors reports whether any field failed.
func (e FieldErrors) HasErrors() bool {
	return len(e) > 0
}

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e[f], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type (
	// TransactionInput is the raw, untrusted form of a create or update.
	TransactionInput struct {
		Name        string
		Description string
		Amount      string
		Type        string
		Image       *Upload
	}

	// TransactionDraft is a validated TransactionInput. Image is nil when the
	// caller did not supply a new image.
	TransactionDraft struct {
		Name        string
		Description string
		Amount      decimal.Decimal
		Type        Type
		Image       *Image
	}
)

// Validate checks every field and returns all failures at once as
// FieldErrors. imageRequired distinguishes create from update.
func (in TransactionInput) Validate(imageRequired bool) (TransactionDraft, error) {
	errs := FieldErrors{}
	var draft TransactionDraft

	draft.Name = strings.TrimSpace(in.Name)
	switch {
	case draft.Name == "":
		errs.Add("name", "The name field is required.")
	case !utf8.ValidString(draft.Name):
		errs.Add("name", "The name field must be a valid UTF-8 string.")
	case utf8.RuneCountInString(draft.Name) > maxNameLength:
		errs.Add("name", fmt.Sprintf("The name field must not be greater than %d characters.", maxNameLength))
	}

	draft.Description = strings.TrimSpace(in.Description)
	if !utf8.ValidString(draft.Description) {
		errs.Add("description", "The description field must be a valid UTF-8 string.")
	}

	amount, err := ParseAmount(in.Amount)
	switch {
	case errors.Is(err, ErrEmptyAmount):
		errs.Add("amount", "The amount field is required.")
	case errors.Is(err, ErrNegativeAmount):
		errs.Add("amount", "The amount field must be at least 0.")
	case err != nil:
		errs.Add("amount", "The amount field must be a number.")
	default:
		draft.Amount = amount
	}

	typ := Type(strings.TrimSpace(in.Type))
	switch {
	case typ == "":
		errs.Add("type", "The type field is required.")
	case !typ.Valid():
		errs.Add("type", "The selected type is invalid.")
	default:
		draft.Type = typ
	}

	if in.Image.Empty() {
		if imageRequired {
			errs.Add("image", "The image field is required.")
		}
	} else {
		img, imgErrs := validateImage(in.Image)
		if len(imgErrs) > 0 {
			errs["image"] = imgErrs
		} else {
			draft.Image = img
		}
	}

	if errs.HasErrors() {
		return TransactionDraft{}, errs
	}
	return draft, nil
}

func validateImage(u *Upload) (*Image, []string) {
	var msgs []string
	contentType, ext, isImage, accepted := DetectImage(u.Data)
	if !isImage {
		msgs = append(msgs, "The image field must be an image.")
	}
	if !accepted {
		msgs = append(msgs, "The image field must be a file of type: "+strings.Join(AcceptedImageTypes, ", ")+".")
	}
	if u.Size() > MaxImageBytes {
		msgs = append(msgs, fmt.Sprintf("The image field must not be greater than %d kilobytes.", MaxImageBytes/1024))
	}
	if len(msgs) > 0 {
		return nil, msgs
	}
	return &Image{Data: u.Data, ContentType: contentType, Ext: ext}, nil
}
