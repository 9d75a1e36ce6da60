// Package notify sends margin utilization alerts to chat webhooks.
package notify

import (
	"context"
	"errors"
	"time"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends a notification for every reading
	NotifyAlways NotifyOn = "always"
	// NotifyBreach sends notifications only while the threshold is breached
	NotifyBreach NotifyOn = "breach"
	// NotifyChange sends notifications when a breach starts or ends
	NotifyChange NotifyOn = "change"
)

// Alert describes one reading checked against the threshold.
type Alert struct {
	Key        string    `json:"key"`
	Value      float64   `json:"value"`
	Formatted  string    `json:"formatted"`
	Source     string    `json:"source"`
	Threshold  float64   `json:"threshold"`
	Breached   bool      `json:"breached"`
	IsRecovery bool      `json:"is_recovery,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify sends one alert
	Notify(ctx context.Context, alert *Alert) error

	// Name returns the name of the notifier
	Name() string
}

// Manager applies the threshold and policy, then fans out to notifiers.
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	threshold float64
	breached  bool
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, threshold float64, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		threshold: threshold,
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Len returns the number of configured notifiers.
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// Check builds the alert for a reading and sends it when the policy says so.
// It reports whether notifiers were called. A value at or above the
// threshold is a breach.
func (m *Manager) Check(ctx context.Context, alert Alert) (bool, error) {
	alert.Threshold = m.threshold
	alert.Breached = alert.Value >= m.threshold

	wasBreached := m.breached
	m.breached = alert.Breached

	shouldNotify := false
	switch m.notifyOn {
	case NotifyAlways:
		shouldNotify = true
	case NotifyBreach:
		shouldNotify = alert.Breached
	case NotifyChange:
		shouldNotify = alert.Breached != wasBreached
	}
	alert.IsRecovery = wasBreached && !alert.Breached

	if !shouldNotify || len(m.notifiers) == 0 {
		return false, nil
	}

	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, &alert); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}
