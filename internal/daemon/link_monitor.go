package daemon

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"daqbridge/internal/health"
	"daqbridge/internal/logging"
)

const linkMonitorName = "link-monitor"

// linkMonitor listens for udev netlink events on the network interface that
// reaches the device. A link that disappears and returns leaves the control
// connection half open, so every event drops the connection and asks for a
// full table reload.
type linkMonitor struct {
	iface    string
	logger   *slog.Logger
	onChange func(ctx context.Context, action, iface string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	last    string
}

// newLinkMonitor returns nil when no interface is configured.
func newLinkMonitor(iface string, logger *slog.Logger, onChange func(ctx context.Context, action, iface string)) *linkMonitor {
	iface = strings.TrimSpace(iface)
	if iface == "" {
		return nil
	}
	return &linkMonitor{
		iface:    iface,
		logger:   logging.NewComponentLogger(logger, linkMonitorName),
		onChange: onChange,
	}
}

// Start begins listening for udev netlink events.
func (m *linkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; link changes will be found by the next failed command",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "device reconnects are slower after a link flap"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("link monitor started",
		logging.String(logging.FieldEventType, "link_monitor_started"),
		logging.String("interface", m.iface),
	)
	return nil
}

// Stop shuts down the link monitor.
func (m *linkMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("link monitor stopped",
		logging.String(logging.FieldEventType, "link_monitor_stopped"),
	)
}

// Running reports whether the link monitor is active.
func (m *linkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *linkMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "link changes may go unnoticed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=net events for the configured interface.
func (m *linkMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove|change|move|online|offline"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^net$",
			"INTERFACE": "^" + regexp.QuoteMeta(m.iface) + "$",
		},
	})
	return rules
}

func (m *linkMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	iface := extractInterface(uevent)
	if iface != m.iface {
		m.logger.Debug("ignoring event for other interface",
			logging.String("interface", iface),
			logging.String("configured_interface", m.iface),
		)
		return
	}

	action := string(uevent.Action)
	m.mu.Lock()
	m.last = action
	m.mu.Unlock()

	m.logger.Info("device link changed",
		logging.String(logging.FieldEventType, "link_changed"),
		logging.String("interface", iface),
		logging.String("action", action),
	)
	if m.onChange != nil {
		m.onChange(ctx, action, iface)
	}
}

// extractInterface gets the interface name from a uevent, falling back to
// the last DEVPATH element.
func extractInterface(uevent netlink.UEvent) string {
	if name := uevent.Env["INTERFACE"]; name != "" {
		return name
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return parts[len(parts)-1]
}

// HealthCheck reports whether netlink events are being received.
func (m *linkMonitor) HealthCheck(context.Context) health.Health {
	if m == nil {
		return health.Healthy(linkMonitorName)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return health.Unhealthy(linkMonitorName, "netlink unavailable")
	}
	h := health.Healthy(linkMonitorName)
	if m.last != "" {
		h.Detail = "last event: " + m.last
	}
	return h
}
