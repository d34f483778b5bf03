package pipeline

import (
	"sync"

	"github.com/paddockcloud/lt-engine/internal/enrich"
)

// Telemetry caches driver and in-car video assignments delivered on the
// event stream, serving the driver/video enrichers.
type Telemetry struct {
	mu      sync.RWMutex
	byCar   map[string]enrich.Driver
	byTrans map[int]enrich.Driver
	video   map[int]string
}

func NewTelemetry() *Telemetry {
	return &Telemetry{
		byCar:   make(map[string]enrich.Driver),
		byTrans: make(map[int]enrich.Driver),
		video:   make(map[int]string),
	}
}

func (t *Telemetry) Driver(eventID int, carNumber string) (enrich.Driver, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.byCar[carNumber]
	return d, ok
}

func (t *Telemetry) Video(transponderID int) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.video[transponderID]
	return v, ok
}

func (t *Telemetry) DriverByTransponder(transponderID int) (enrich.Driver, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.byTrans[transponderID]
	return d, ok
}

func (t *Telemetry) SetDriver(carNumber string, d enrich.Driver) {
	t.mu.Lock()
	t.byCar[carNumber] = d
	t.mu.Unlock()
}

func (t *Telemetry) SetDriverByTransponder(transponderID int, d enrich.Driver) {
	t.mu.Lock()
	t.byTrans[transponderID] = d
	t.mu.Unlock()
}

func (t *Telemetry) SetVideo(transponderID int, status string) {
	t.mu.Lock()
	t.video[transponderID] = status
	t.mu.Unlock()
}
