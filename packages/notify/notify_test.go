package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, a *Alert) error {
	r.alerts = append(r.alerts, *a)
	return r.err
}

func reading(v float64) Alert {
	return Alert{Key: "wca_utilizedcolpercent", Value: v, Source: "svrVal/index"}
}

func TestManager_Policies(t *testing.T) {
	values := []float64{50, 85, 90, 70, 60}

	tests := []struct {
		name string
		on   NotifyOn
		want []float64
	}{
		{"always", NotifyAlways, []float64{50, 85, 90, 70, 60}},
		{"breach", NotifyBreach, []float64{85, 90}},
		{"change", NotifyChange, []float64{85, 70}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingNotifier{}
			m := NewManager(tt.on, 80, rec)
			for _, v := range values {
				_, err := m.Check(context.Background(), reading(v))
				require.NoError(t, err)
			}

			var got []float64
			for _, a := range rec.alerts {
				got = append(got, a.Value)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManager_RecoveryFlag(t *testing.T) {
	rec := &recordingNotifier{}
	m := NewManager(NotifyChange, 80, rec)

	_, _ = m.Check(context.Background(), reading(80))
	_, _ = m.Check(context.Background(), reading(79.99))

	require.Len(t, rec.alerts, 2)
	assert.True(t, rec.alerts[0].Breached, "the threshold itself is a breach")
	assert.False(t, rec.alerts[0].IsRecovery)
	assert.False(t, rec.alerts[1].Breached)
	assert.True(t, rec.alerts[1].IsRecovery)
	assert.Equal(t, 80.0, rec.alerts[1].Threshold)
}

func TestManager_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: boom}
	m := NewManager(NotifyAlways, 0, failing, ok)

	sent, err := m.Check(context.Background(), reading(1))
	assert.True(t, sent)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.alerts, 1, "a failing notifier does not stop the others")
}

func TestManager_NoNotifiers(t *testing.T) {
	m := NewManager(NotifyAlways, 0)
	sent, err := m.Check(context.Background(), reading(1))
	assert.False(t, sent)
	assert.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func webhook(t *testing.T, status int) (*httptest.Server, func() []byte) {
	t.Helper()
	var mu sync.Mutex
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = data
		mu.Unlock()
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []byte {
		mu.Lock()
		defer mu.Unlock()
		return body
	}
}

func breachAlert() *Alert {
	return &Alert{
		Key:        "wca_utilizedcolpercent",
		Value:      91.5,
		Formatted:  "91.50",
		Source:     "svrVal/index",
		Threshold:  80,
		Breached:   true,
		ObservedAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
	}
}

func TestSlackNotifier(t *testing.T) {
	srv, body := webhook(t, http.StatusOK)
	n := NewSlackNotifier(srv.URL, WithSlackChannel("#risk"))

	require.NoError(t, n.Notify(context.Background(), breachAlert()))

	data := body()
	assert.Equal(t, "#risk", gjson.GetBytes(data, "channel").String())
	assert.Equal(t, "danger", gjson.GetBytes(data, "attachments.0.color").String())
	assert.Contains(t, gjson.GetBytes(data, "attachments.0.title").String(), "above threshold")
	assert.Equal(t, "91.50", gjson.GetBytes(data, `attachments.0.fields.#(title=="Utilization").value`).String())
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	srv, _ := webhook(t, http.StatusForbidden)
	err := NewSlackNotifier(srv.URL).Notify(context.Background(), breachAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestTeamsNotifier(t *testing.T) {
	srv, body := webhook(t, http.StatusAccepted)

	require.NoError(t, NewTeamsNotifier(srv.URL).Notify(context.Background(), breachAlert()))

	data := body()
	assert.Equal(t, "AdaptiveCard", gjson.GetBytes(data, "attachments.0.content.type").String())
	assert.Equal(t, "attention", gjson.GetBytes(data, "attachments.0.content.body.0.color").String())
	assert.Equal(t, "91.50", gjson.GetBytes(data, "attachments.0.content.body.1.columns.0.items.1.text").String())
}
