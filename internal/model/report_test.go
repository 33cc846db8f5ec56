package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatus(t *testing.T) {
	yes, no := true, false
	cases := []struct {
		name       string
		hasErrors  bool
		isAccepted *bool
		want       ReportStatus
	}{
		{"undecided clean report", false, nil, StatusPending},
		{"undecided report with errors", true, nil, StatusPending},
		{"accepted with errors", true, &yes, StatusAccepted},
		{"accepted clean", false, &yes, StatusAccepted},
		{"rejected with errors", true, &no, StatusRejected},
		{"rejected without errors", false, &no, StatusDeclined},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.hasErrors, tc.isAccepted))
		})
	}
}

func TestParseReportStatus(t *testing.T) {
	s, ok := ParseReportStatus(" Pending ")
	assert.True(t, ok)
	assert.Equal(t, StatusPending, s)

	_, ok = ParseReportStatus("declined")
	assert.False(t, ok)
	_, ok = ParseReportStatus("archived")
	assert.False(t, ok)
}
