package connection

// Stats is a point-in-time snapshot of a Pool's occupancy, mirroring the
// Python backend's PoolStats/PoolMonitor pair.
type Stats struct {
	Live      int
	Idle      int
	InUse     int
	Unhealthy int
	Min       int
	Max       int
}

// Healthy reports whether live connections sit within [Min, Max].
func (s Stats) Healthy() bool {
	return s.Live >= s.Min && s.Live <= s.Max
}
