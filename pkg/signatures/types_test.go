package signatures

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialsite/siteaccess/pkg/domain"
)

func TestStatus_OpenAndTerminal(t *testing.T) {
	for _, s := range AllStatuses {
		assert.NotEqual(t, s.Open(), s.Terminal(), s)
	}
	assert.False(t, Status("BOGUS").Terminal())
	assert.False(t, Status("BOGUS").Open())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" viewed ")
	require.NoError(t, err)
	assert.Equal(t, StatusViewed, s)

	_, err = ParseStatus("lost")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestRequest_Validate(t *testing.T) {
	valid := Request{DocumentID: 1, AssigneeID: 2, AssignedByID: 3, Status: StatusPending}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing document", func(r *Request) { r.DocumentID = 0 }},
		{"missing assignee", func(r *Request) { r.AssigneeID = 0 }},
		{"unknown status", func(r *Request) { r.Status = "LOST" }},
		{"relative url", func(r *Request) { r.SigningURL = "/sign/here" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}

	withURL := valid
	withURL.SigningURL = "https://sign.example.com/s/abc"
	assert.NoError(t, withURL.Validate())
}

func TestRequest_Transition(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	r := Request{ID: 1, Status: StatusPending}
	changed, err := r.transition(StatusSent, at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.transition(StatusViewed, at)
	require.NoError(t, err)
	assert.True(t, changed)

	// a late SENT after VIEWED is absorbed
	changed, err = r.transition(StatusSent, at)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusViewed, r.Status)

	changed, err = r.transition(StatusSigned, at)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, r.SignedAt)
	assert.True(t, r.SignedAt.Equal(at))

	changed, err = r.transition(StatusSigned, at)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = r.transition(StatusDeclined, at)
	assert.True(t, errors.Is(err, domain.ErrInvariant))
	assert.Equal(t, StatusSigned, r.Status)
}

func TestStatusForEvent(t *testing.T) {
	s, ok := StatusForEvent("document.completed")
	assert.True(t, ok)
	assert.Equal(t, StatusSigned, s)

	_, ok = StatusForEvent("document.state_changed")
	assert.False(t, ok)
}
