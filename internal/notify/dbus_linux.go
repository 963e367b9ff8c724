//go:build linux

package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

// freedesktop notification service
const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"
)

const (
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// DBus sends notifications over the session bus. The connection is opened
// on first use.
type DBus struct {
	appName string
	icon    string
	timeout int32

	mu   sync.Mutex
	conn *dbus.Conn
}

// New returns the platform notifier.
func New(appName string) Notifier {
	return &DBus{appName: appName, icon: "document-edit", timeout: 8000}
}

func (d *DBus) connect() (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	d.conn = conn
	return conn, nil
}

// Notify calls org.freedesktop.Notifications.Notify.
func (d *DBus) Notify(ctx context.Context, n Notification) error {
	conn, err := d.connect()
	if err != nil {
		return err
	}
	urgency := urgencyNormal
	if n.Urgent {
		urgency = urgencyCritical
	}
	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency)}

	obj := conn.Object(notifyService, dbus.ObjectPath(notifyPath))
	call := obj.CallWithContext(ctx, notifyInterface+".Notify", 0,
		d.appName, uint32(0), d.icon, n.Title, n.Body, []string{}, hints, d.timeout)
	if call.Err != nil {
		return fmt.Errorf("send notification: %w", call.Err)
	}
	return nil
}
