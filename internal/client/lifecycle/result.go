package lifecycle

import (
	"fmt"

	"github.com/dmitrijs2005/hawachat/internal/common"
	"github.com/dmitrijs2005/hawachat/internal/models"
)

var (
	ErrEmptyBody          = fmt.Errorf("%w: message body is empty", common.ErrorValidation)
	ErrMissingAttachment  = fmt.Errorf("%w: attachment is required", common.ErrorValidation)
	ErrInvalidType        = fmt.Errorf("%w: unknown message type", common.ErrorValidation)
	ErrMissingParticipant = fmt.Errorf("%w: sender and recipient are required", common.ErrorValidation)
)

// Kind tells a confirmed send apart from a degraded one.
type Kind int

const (
	KindCommitted Kind = iota + 1
	// KindLocalOnly means the store refused the write and the message only
	// exists in this engine's views. It is never reconciled.
	KindLocalOnly
)

func (k Kind) String() string {
	switch k {
	case KindCommitted:
		return "committed"
	case KindLocalOnly:
		return "local-only"
	}
	return "unknown"
}

// Result is the outcome of Submit.
type Result struct {
	Kind Kind
	ID   string
}

func (r Result) Committed() bool { return r.Kind == KindCommitted }

func validate(d models.Draft) error {
	if d.From == "" || d.To == "" {
		return ErrMissingParticipant
	}
	if !d.Type.Valid() {
		return ErrInvalidType
	}
	if d.Type.NeedsBody() && isBlank(d.Text) {
		return ErrEmptyBody
	}
	if d.Type.NeedsAttachment() && d.Attachment == "" {
		return ErrMissingAttachment
	}
	return nil
}
