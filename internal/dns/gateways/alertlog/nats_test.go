package alertlog

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haukened/exfil-watch/internal/dns/domain"
)

type mockConn struct {
	mock.Mock
}

func (m *mockConn) Publish(subject string, data []byte) error {
	args := m.Called(subject, data)
	return args.Error(0)
}

func (m *mockConn) Drain() error {
	return m.Called().Error(0)
}

func (m *mockConn) Close() {
	m.Called()
}

func TestNATSPublisher_Publish(t *testing.T) {
	c := new(mockConn)
	p := newPublisher(c, "")
	assert.Equal(t, DefaultSubject, p.Subject())

	var sent []byte
	c.On("Publish", DefaultSubject, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).([]byte)
	}).Return(nil)

	rec := sampleRecord("14:03:07", domain.SeverityCritical, domain.RuleHighEntropy)
	require.NoError(t, p.Publish(rec))

	var got Payload
	require.NoError(t, json.Unmarshal(sent, &got))
	assert.Equal(t, "14:03:07", got.Time)
	assert.Equal(t, []string{"HIGH ENTROPY SUBDOMAIN"}, got.Rules)
	assert.Equal(t, "CRITICAL", got.Severity)
	assert.Equal(t, "10.0.0.5", got.SourceIP)
	assert.Equal(t, 4.33, got.Entropy)
	c.AssertExpectations(t)
}

func TestNATSPublisher_PublishError(t *testing.T) {
	c := new(mockConn)
	p := newPublisher(c, "custom.subject")
	c.On("Publish", "custom.subject", mock.Anything).Return(errors.New("no responders"))

	err := p.Publish(sampleRecord("14:03:07", domain.SeverityMedium))
	assert.ErrorContains(t, err, "no responders")
}

func TestNATSPublisher_Close(t *testing.T) {
	c := new(mockConn)
	c.On("Drain").Return(nil)
	c.On("Close").Return()
	p := newPublisher(c, "s")
	require.NoError(t, p.Close())
	c.AssertExpectations(t)

	assert.NoError(t, (&NATSPublisher{}).Close())
}

func TestNewPayload_Timestamp(t *testing.T) {
	rec := sampleRecord("14:03:07", domain.SeverityMedium)
	assert.Empty(t, NewPayload(rec).Timestamp, "time-of-day only records carry no full timestamp")

	rec.Timestamp = rec.Timestamp.AddDate(2026, 4, 0)
	assert.NotEmpty(t, NewPayload(rec).Timestamp)
	assert.Len(t, NewPayloads([]domain.AlertRecord{rec, rec}), 2)
}
