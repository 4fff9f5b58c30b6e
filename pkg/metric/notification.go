// SPDX-License-Identifier: GPL-3.0-or-later

package metric

import (
	"fmt"
	"strings"

	"github.com/collectd/collectd-sub006/pkg/cdtime"
	"github.com/collectd/collectd-sub006/pkg/meta"
)

// MaxMessageLen bounds notification messages.
const MaxMessageLen = 256

type Severity int

const (
	SeverityFailure Severity = 1
	SeverityWarning Severity = 2
	SeverityOkay    Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SeverityFailure:
		return "FAILURE"
	case SeverityWarning:
		return "WARNING"
	case SeverityOkay:
		return "OKAY"
	default:
		return "UNKNOWN"
	}
}

func (s Severity) Valid() bool {
	return s == SeverityFailure || s == SeverityWarning || s == SeverityOkay
}

func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FAILURE":
		return SeverityFailure, nil
	case "WARNING":
		return SeverityWarning, nil
	case "OKAY":
		return SeverityOkay, nil
	}
	return 0, fmt.Errorf("%w: unknown severity '%s'", ErrInvalid, s)
}

type Notification struct {
	Severity       Severity
	Time           cdtime.Time
	Message        string
	Host           string
	Plugin         string
	PluginInstance string
	Type           string
	TypeInstance   string
	Meta           *meta.Data
}

// Validate checks the mandatory fields. The time is filled in by the dispatcher.
func (n *Notification) Validate() error {
	if !n.Severity.Valid() {
		return fmt.Errorf("%w: notification severity %d", ErrInvalid, n.Severity)
	}
	if n.Message == "" {
		return fmt.Errorf("%w: notification without message", ErrInvalid)
	}
	return nil
}

func (n *Notification) Clone() *Notification {
	c := *n
	c.Meta = n.Meta.Clone()
	return &c
}

// NotificationFromValueList fills the identifier fields from vl.
func NotificationFromValueList(vl *ValueList, severity Severity, message string) *Notification {
	return &Notification{
		Severity:       severity,
		Time:           vl.Time,
		Message:        message,
		Host:           vl.Host,
		Plugin:         vl.Plugin,
		PluginInstance: vl.PluginInstance,
		Type:           vl.Type,
		TypeInstance:   vl.TypeInstance,
	}
}
