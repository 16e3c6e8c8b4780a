package one

// HostStatus is the argument of host.status.
type HostStatus int

const (
	HostStatusEnabled HostStatus = iota
	HostStatusDisabled
	HostStatusOffline
)

func (s HostStatus) String() string {
	switch s {
	case HostStatusEnabled:
		return "ENABLED"
	case HostStatusDisabled:
		return "DISABLED"
	case HostStatusOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// HostState is the STATE of a host document.
type HostState int

const (
	HostStateInit HostState = iota
	HostStateMonitoringMonitored
	HostStateMonitored
	HostStateError
	HostStateDisabled
	HostStateMonitoringError
	HostStateMonitoringInit
	HostStateMonitoringDisabled
	HostStateOffline
)

var hostStateNames = [...]string{
	"INIT",
	"MONITORING_MONITORED",
	"MONITORED",
	"ERROR",
	"DISABLED",
	"MONITORING_ERROR",
	"MONITORING_INIT",
	"MONITORING_DISABLED",
	"OFFLINE",
}

func (s HostState) String() string {
	if s < 0 || int(s) >= len(hostStateNames) {
		return "UNKNOWN"
	}
	return hostStateNames[s]
}

// MarketAppState is the STATE of a marketplace app document.
type MarketAppState int

const (
	MarketAppStateInit MarketAppState = iota
	MarketAppStateReady
	MarketAppStateLocked
	MarketAppStateError
	MarketAppStateDisabled
)

func (s MarketAppState) String() string {
	switch s {
	case MarketAppStateInit:
		return "INIT"
	case MarketAppStateReady:
		return "READY"
	case MarketAppStateLocked:
		return "LOCKED"
	case MarketAppStateError:
		return "ERROR"
	case MarketAppStateDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}
