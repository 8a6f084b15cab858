package signatures

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/trialsite/siteaccess/pkg/domain"
)

// Status is the lifecycle state of a signature request
type Status string

const (
	StatusPending   Status = "PENDING"   // Created, not yet sent to the provider
	StatusSent      Status = "SENT"      // Sent, waiting for the recipient
	StatusViewed    Status = "VIEWED"    // Recipient opened the document
	StatusSigned    Status = "SIGNED"    // Recipient signed
	StatusDeclined  Status = "DECLINED"  // Recipient declined to sign
	StatusExpired   Status = "EXPIRED"   // Signing window elapsed
	StatusCancelled Status = "CANCELLED" // Withdrawn by staff
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusPending, StatusSent, StatusViewed,
	StatusSigned, StatusDeclined, StatusExpired, StatusCancelled,
}

// OpenStatuses are the statuses a request can still move out of
var OpenStatuses = []Status{StatusPending, StatusSent, StatusViewed}

// Open reports whether the request is still awaiting the recipient
func (s Status) Open() bool {
	return s == StatusPending || s == StatusSent || s == StatusViewed
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s.Valid() && !s.Open()
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// rank orders the open statuses; terminal statuses share the top rank
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusViewed:
		return 2
	default:
		return 3
	}
}

// ParseStatus parses a status name (case-insensitive)
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", domain.NewValidationError("unknown signature status: %q", s)
	}
	return st, nil
}

// Request is one signature request for one assignee on one document
type Request struct {
	ID           int64      `json:"id"`
	DocumentID   int64      `json:"document_id"`
	AssigneeID   int64      `json:"assignee_id"`
	AssignedByID int64      `json:"assigned_by_id"`
	AssignedBy   string     `json:"assigned_by,omitempty"`
	ProviderRef  string     `json:"provider_ref,omitempty"`
	Status       Status     `json:"status"`
	SigningURL   string     `json:"signing_url,omitempty"`
	Message      string     `json:"message,omitempty"`
	SignedAt     *time.Time `json:"signed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Validate checks the fields a store requires before writing
func (r Request) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.DocumentID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.AssigneeID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.AssignedByID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Status, validation.Required, validation.By(func(interface{}) error {
			if !r.Status.Valid() {
				return fmt.Errorf("unknown status %q", r.Status)
			}
			return nil
		})),
		validation.Field(&r.SigningURL, validation.Length(0, 2000), validation.By(absoluteURL)),
		validation.Field(&r.Message, validation.Length(0, 1000)),
	)
	if err != nil {
		return &domain.ValidationError{Message: "invalid signature request: " + err.Error(), Err: err}
	}
	return nil
}

func absoluteURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

// transition moves the request to next. It reports false when the request
// already is at or past next among the open statuses, so replayed or
// reordered provider events are absorbed.
func (r *Request) transition(next Status, at time.Time) (bool, error) {
	if r.Status == next {
		return false, nil
	}
	if r.Status.Terminal() {
		return false, domain.NewInvariantViolation("signature request %d is %s and cannot become %s", r.ID, r.Status, next)
	}
	if next.Open() && next.rank() <= r.Status.rank() {
		return false, nil
	}

	r.Status = next
	r.UpdatedAt = at
	if next == StatusSigned {
		signed := at
		r.SignedAt = &signed
	}
	return true, nil
}

func (r Request) clone() Request {
	out := r
	if r.SignedAt != nil {
		v := *r.SignedAt
		out.SignedAt = &v
	}
	return out
}

// ProviderEvent is a status callback from the e-signature provider
type ProviderEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID string `json:"id"`
	} `json:"data"`
}

var eventStatuses = map[string]Status{
	"document.viewed":    StatusViewed,
	"document.completed": StatusSigned,
	"document.declined":  StatusDeclined,
	"document.expired":   StatusExpired,
}

// StatusForEvent maps a provider event name to the status it produces
func StatusForEvent(event string) (Status, bool) {
	s, ok := eventStatuses[event]
	return s, ok
}

const resourceSignature = "signature request"
