// Package pipeline runs the per-event processing engine: a single
// writer that drains the event's status stream, folds each timing
// message into the session snapshot through the decoder and enricher
// passes, and hands the resulting patches to the publisher.
package pipeline

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/paddockcloud/lt-engine/internal/bus"
	"github.com/paddockcloud/lt-engine/internal/controllog"
	"github.com/paddockcloud/lt-engine/internal/database"
	"github.com/paddockcloud/lt-engine/internal/enrich"
	"github.com/paddockcloud/lt-engine/internal/metrics"
	"github.com/paddockcloud/lt-engine/internal/protocol/multiloop"
	"github.com/paddockcloud/lt-engine/internal/protocol/x2"
	"github.com/paddockcloud/lt-engine/internal/registry"
	"github.com/paddockcloud/lt-engine/internal/state"
)

const (
	consumerGroup = "engine"

	readBlock    = 30 * time.Millisecond
	readBatch    = 64
	errorBackoff = 5 * time.Second

	// Full driver/video refresh cadence, counted in result-monitor
	// messages.
	refreshEvery = 60

	statsInterval = time.Minute
)

// Store is the persistence surface the pipeline writes through. All
// writes are log-and-continue; the in-memory snapshot stays
// authoritative.
type Store interface {
	enrich.FlagLogWriter
	enrich.LapLogWriter
	EndSession(ctx context.Context, eventID, sessionID int, endedAt time.Time) error
	ArchiveSessionResult(ctx context.Context, s *state.SessionState, payload string) error
}

// Publisher is the egress surface the pipeline drives after each pass.
type Publisher interface {
	PublishPatches(sessionPatch *state.SessionStatePatch, carPatches []*state.CarPositionPatch)
	SendReset()
	RequestRelayReset(ctx context.Context)
}

// ResultArchiver pushes final results to object storage. Nil disables
// archival.
type ResultArchiver interface {
	StoreResult(ctx context.Context, eventID, sessionID int, resultJSON []byte) error
}

// ControlLogSource supplies parsed control-log entries for the penalty
// pass.
type ControlLogSource interface {
	Entries(eventID int) []controllog.Entry
}

// InCarSender delivers per-car driver updates to subscribed clients.
type InCarSender interface {
	SendInCarUpdate(eventID int, car string, payload any)
}

// InCarPayload is the per-lap update for the in-car driver display.
type InCarPayload struct {
	EventID       int    `json:"eventId"`
	SessionID     int    `json:"sessionId"`
	Number        string `json:"number"`
	Lap           int    `json:"lap"`
	LapTimeMs     int64  `json:"lapTime"`
	BestTimeMs    int64  `json:"bestTime"`
	Position      int    `json:"overallPosition"`
	ClassPosition int    `json:"classPosition"`
	Gap           string `json:"overallGap"`
	Pitted        bool   `json:"lapIncludedPit"`
	TrackFlag     string `json:"trackFlag,omitempty"`
}

// Options configures one event's pipeline.
type Options struct {
	EventID    int
	Consumer   string
	Endpoint   string
	StaleAfter time.Duration

	Bus       *bus.Client
	DB        Store
	State     *state.Store
	Publisher Publisher
	Registry  *registry.Registry

	ControlLogs ControlLogSource
	InCar       InCarSender
	Archiver    ResultArchiver

	Log zerolog.Logger
}

type Pipeline struct {
	opts Options

	bus   *bus.Client
	db    Store
	store *state.Store
	pub   Publisher
	log   zerolog.Logger

	dec       *decoder
	tracker   *multiloop.Tracker
	pits      *enrich.Pits
	laps      *enrich.Laps
	telemetry *Telemetry

	rmonSinceRefresh int

	publishCh chan publishBatch

	statsMu sync.Mutex
	stats   map[string]int

	avgPassMicros atomic.Int64
	busHealthy    atomic.Bool
}

func New(opts Options) *Pipeline {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 2 * time.Minute
	}
	return &Pipeline{
		opts:      opts,
		bus:       opts.Bus,
		db:        opts.DB,
		store:     opts.State,
		pub:       opts.Publisher,
		log:       opts.Log.With().Str("component", "pipeline").Int("event_id", opts.EventID).Logger(),
		dec:       newDecoder(),
		tracker:   multiloop.NewTracker(),
		pits:      enrich.NewPits(),
		laps:      enrich.NewLaps(),
		telemetry: NewTelemetry(),
		publishCh: make(chan publishBatch, 256),
		stats:     make(map[string]int),
	}
}

// Healthy reports whether the stream is being read and the average
// pass stays under the one-second budget.
func (p *Pipeline) Healthy() bool {
	return p.busHealthy.Load() && p.avgPassMicros.Load() < int64(time.Second/time.Microsecond)
}

// AvgPassMicros reports the moving average pass time for the metrics
// collector.
func (p *Pipeline) AvgPassMicros() int64 {
	return p.avgPassMicros.Load()
}

// Run claims the event, drains pending entries left from a previous
// incarnation, then follows the stream until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.opts.Registry != nil {
		if err := p.opts.Registry.Register(ctx, p.opts.EventID, p.opts.Endpoint); err != nil {
			return err
		}
		defer p.opts.Registry.Unregister(context.Background(), p.opts.EventID)
	}

	streamKey := bus.EventStream(p.opts.EventID)
	if err := p.bus.EnsureGroup(ctx, streamKey, consumerGroup); err != nil {
		return err
	}
	p.busHealthy.Store(true)

	go p.publishLoop(ctx)
	go p.statsLoop(ctx)
	go p.stalenessLoop(ctx)

	// At-least-once: entries delivered but unacked before a restart are
	// replayed first.
	pending, err := p.bus.Pending(ctx, streamKey, consumerGroup, p.opts.Consumer, readBatch)
	if err != nil {
		p.log.Warn().Err(err).Msg("pending drain failed")
	}
	for _, entry := range pending {
		p.handleEntry(ctx, streamKey, entry)
	}
	if len(pending) > 0 {
		p.log.Info().Int("entries", len(pending)).Msg("pending entries replayed")
	}

	p.log.Info().Str("stream", streamKey).Msg("pipeline started")
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		entries, err := p.bus.ReadGroup(ctx, streamKey, consumerGroup, p.opts.Consumer, readBatch, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.busHealthy.Store(false)
			p.log.Warn().Err(err).Msg("stream read failed, backing off")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			if err := p.bus.EnsureGroup(ctx, streamKey, consumerGroup); err != nil {
				p.log.Warn().Err(err).Msg("group re-ensure failed")
			}
			continue
		}
		p.busHealthy.Store(true)

		for _, entry := range entries {
			p.handleEntry(ctx, streamKey, entry)
		}
	}
}

func (p *Pipeline) handleEntry(ctx context.Context, streamKey string, entry bus.Entry) {
	msgType, eventID, sessionID, err := bus.ParseFieldTag(entry.Field)
	if err != nil {
		p.log.Warn().Err(err).Str("id", entry.ID).Msg("dropping malformed entry")
		p.ack(ctx, streamKey, entry.ID)
		return
	}
	if eventID != p.opts.EventID {
		p.ack(ctx, streamKey, entry.ID)
		return
	}

	p.countMessage(msgType)
	metrics.StreamMessagesTotal.WithLabelValues(msgType).Inc()

	start := time.Now()
	p.process(ctx, msgType, sessionID, entry.Payload)
	elapsed := time.Since(start)
	metrics.PipelinePassDuration.Observe(elapsed.Seconds())
	p.observePass(elapsed)

	p.ack(ctx, streamKey, entry.ID)
}

func (p *Pipeline) ack(ctx context.Context, streamKey, id string) {
	if err := p.bus.Ack(ctx, streamKey, consumerGroup, id); err != nil {
		p.log.Warn().Err(err).Str("id", id).Msg("ack failed")
	}
}

// observePass maintains an exponential moving average of pass time for
// the health gauge.
func (p *Pipeline) observePass(d time.Duration) {
	prev := p.avgPassMicros.Load()
	sample := d.Microseconds()
	p.avgPassMicros.Store((prev*7 + sample) / 8)
}

// process runs one message through the pipeline: decode and enrich on a
// working copy, verify invariants, swap the snapshot, publish patches.
func (p *Pipeline) process(ctx context.Context, msgType string, sessionID int, payload string) {
	now := time.Now().UTC()

	if msgType == bus.TypeSessionChanged {
		p.handleSessionChange(ctx, sessionID, payload, now)
		return
	}

	prior := p.store.Snapshot()
	if sessionID != 0 && prior.SessionID != 0 && sessionID != prior.SessionID {
		// A feed still sending for an ended session.
		p.log.Debug().Int("session_id", sessionID).Str("type", msgType).Msg("dropping message for inactive session")
		return
	}

	// A retried pass must see the exact decoder state the first one
	// did, or a stale-lap guard can swallow the update being retried.
	var trackerBefore *multiloop.Tracker
	rmonBefore := p.rmonSinceRefresh
	if needsConsistency(msgType) {
		trackerBefore = p.tracker.Clone()
	}

	work, ok := p.pass(ctx, prior, msgType, sessionID, payload, now)
	if !ok {
		return
	}

	if needsConsistency(msgType) && !state.CheckPositionConsistency(work) {
		metrics.ConsistencyRetriesTotal.Inc()
		p.tracker = trackerBefore
		p.rmonSinceRefresh = rmonBefore
		work, ok = p.pass(ctx, prior, msgType, sessionID, payload, now)
		if !ok {
			return
		}
		if !state.CheckPositionConsistency(work) {
			p.log.Warn().Str("type", msgType).Msg("position consistency violated, requesting relay reset")
			p.pub.RequestRelayReset(ctx)
			p.pub.SendReset()
			p.tracker.Reset()
			return
		}
	}

	// The lap pass mutates the snapshot (per-lap flags reset for the
	// new lap), so it must run before the diff or the reset never
	// reaches patch subscribers.
	lapEvents := p.laps.Process(ctx, work, p.db, p.log)
	sessionPatch, carPatches := diffStates(prior, work)

	p.store.Replace(work)
	p.queuePublish(ctx, publishBatch{
		session:   sessionPatch,
		cars:      carPatches,
		snapshot:  work,
		lapEvents: lapEvents,
	})
}

// publishBatch is one pass's fan-out work, queued so batches reach
// subscribers in pass order.
type publishBatch struct {
	session   *state.SessionStatePatch
	cars      []*state.CarPositionPatch
	snapshot  *state.SessionState
	lapEvents []enrich.LapEvent
}

func (p *Pipeline) queuePublish(ctx context.Context, b publishBatch) {
	if b.session == nil && len(b.cars) == 0 && len(b.lapEvents) == 0 {
		return
	}
	select {
	case p.publishCh <- b:
	case <-ctx.Done():
	}
}

// publishLoop fans batches out off the hot path, one at a time so the
// patch stream stays ordered.
func (p *Pipeline) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-p.publishCh:
			p.pub.PublishPatches(b.session, b.cars)
			if b.snapshot != nil {
				p.sendInCarUpdates(b.snapshot, b.lapEvents)
			}
		}
	}
}

// pass builds the next snapshot from a clone of prior. Returns false
// when the message was malformed or a no-op.
func (p *Pipeline) pass(ctx context.Context, prior *state.SessionState, msgType string, sessionID int, payload string, now time.Time) (*state.SessionState, bool) {
	work := prior.Clone()
	if work.SessionID == 0 && sessionID != 0 {
		work.SessionID = sessionID
	}
	enrich.ClearPulses(work)

	touched, err := p.dispatch(ctx, work, msgType, payload, now)
	if err != nil {
		metrics.StreamDecodeErrorsTotal.WithLabelValues(msgType).Inc()
		p.log.Warn().Err(err).Str("type", msgType).Msg("message dropped")
		return nil, false
	}

	p.enrichPass(work, touched, now)

	work.LastUpdated = now
	switch work.Liveness {
	case state.PreLive, state.Stale:
		work.Liveness = state.Live
		for _, car := range work.Cars {
			car.IsStale = false
		}
	}
	return work, true
}

// dispatch routes a message to its primary decoder. The returned list
// names the cars a targeted enricher pass should touch; nil means all.
func (p *Pipeline) dispatch(ctx context.Context, work *state.SessionState, msgType, payload string, now time.Time) ([]string, error) {
	switch msgType {
	case bus.TypeRMonitor:
		if err := p.applyRMonitor(ctx, work, payload, now); err != nil {
			return nil, err
		}
		p.rmonSinceRefresh++
		if p.rmonSinceRefresh >= refreshEvery {
			p.rmonSinceRefresh = 0
			enrich.Drivers(work, p.telemetry, nil)
			enrich.Videos(work, p.telemetry, nil)
		}
		return nil, nil

	case bus.TypeMultiloop:
		return nil, p.applyMultiloop(ctx, work, payload, now)

	case bus.TypePassings:
		passings, err := x2.ParsePassings([]byte(payload))
		if err != nil {
			return nil, err
		}
		p.pits.ProcessPassings(work, passings)
		return nil, nil

	case bus.TypeLoops:
		loops, err := x2.ParseLoops([]byte(payload))
		if err != nil {
			return nil, err
		}
		p.pits.SetLoops(work, loops)
		p.pits.Reapply(work)
		return nil, nil

	case bus.TypeFlags:
		var flags []state.FlagDuration
		if err := json.Unmarshal([]byte(payload), &flags); err != nil {
			return nil, err
		}
		enrich.Flags(ctx, work, flags, p.db, p.log)
		enrich.FlagAggregates(work, now)
		for _, car := range work.Cars {
			car.TrackFlag = work.CurrentFlag
		}
		return nil, nil

	case bus.TypeCompetitors:
		var competitors []database.CompetitorMetadata
		if err := json.Unmarshal([]byte(payload), &competitors); err != nil {
			return nil, err
		}
		affected := make([]string, 0, len(competitors))
		for _, m := range competitors {
			car := work.Car(m.CarNumber)
			if m.TransponderID != 0 {
				car.TransponderID = m.TransponderID
			}
			if m.Class != "" {
				car.Class = m.Class
			}
			affected = append(affected, m.CarNumber)
		}
		return affected, nil

	case bus.TypeDriverEvent:
		var msg struct {
			CarNumber  string `json:"carNumber"`
			DriverID   int    `json:"driverId"`
			DriverName string `json:"driverName"`
		}
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, err
		}
		p.telemetry.SetDriver(msg.CarNumber, enrich.Driver{ID: msg.DriverID, Name: msg.DriverName})
		enrich.Drivers(work, p.telemetry, []string{msg.CarNumber})
		return []string{msg.CarNumber}, nil

	case bus.TypeDriverTrans:
		var msg struct {
			TransponderID int    `json:"transponderId"`
			DriverID      int    `json:"driverId"`
			DriverName    string `json:"driverName"`
		}
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, err
		}
		p.telemetry.SetDriverByTransponder(msg.TransponderID, enrich.Driver{ID: msg.DriverID, Name: msg.DriverName})
		if car := work.CarByTransponder(msg.TransponderID); car != nil {
			p.telemetry.SetDriver(car.Number, enrich.Driver{ID: msg.DriverID, Name: msg.DriverName})
			enrich.Drivers(work, p.telemetry, []string{car.Number})
			return []string{car.Number}, nil
		}
		return nil, nil

	case bus.TypeVideo:
		var msg struct {
			TransponderID int    `json:"transponderId"`
			Status        string `json:"status"`
		}
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			return nil, err
		}
		p.telemetry.SetVideo(msg.TransponderID, msg.Status)
		if car := work.CarByTransponder(msg.TransponderID); car != nil {
			enrich.Videos(work, p.telemetry, []string{car.Number})
			return []string{car.Number}, nil
		}
		return nil, nil

	case bus.TypeConfigChanged:
		// Loop or event configuration changed out of band; re-derive
		// pit state and drop the control-log cache view.
		p.pits.Reapply(work)
		return nil, nil
	}

	p.log.Warn().Str("type", msgType).Msg("unknown message type")
	return nil, nil
}

// enrichPass runs the secondary enrichers in their fixed order.
func (p *Pipeline) enrichPass(work *state.SessionState, touched []string, now time.Time) {
	enrich.Positions(work)
	if touched != nil {
		enrich.Drivers(work, p.telemetry, touched)
		enrich.Videos(work, p.telemetry, touched)
	}
	if p.opts.ControlLogs != nil {
		enrich.Penalties(work, p.opts.ControlLogs.Entries(p.opts.EventID))
	}
}

func needsConsistency(msgType string) bool {
	return msgType == bus.TypeRMonitor || msgType == bus.TypeMultiloop
}

// diffStates computes the patch batch taking prior to next.
func diffStates(prior, next *state.SessionState) (*state.SessionStatePatch, []*state.CarPositionPatch) {
	sessionPatch := state.DiffSession(prior, next)

	numbers := make([]string, 0, len(next.Cars))
	for n := range next.Cars {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)

	var carPatches []*state.CarPositionPatch
	for _, n := range numbers {
		car := next.Cars[n]
		prev, ok := prior.Cars[n]
		if !ok {
			prev = &state.CarPosition{Number: n, EventID: next.EventID, SessionID: next.SessionID}
		}
		if patch := state.DiffCar(prev, car); patch != nil {
			carPatches = append(carPatches, patch)
		}
	}
	return sessionPatch, state.Consolidate(carPatches)
}

func (p *Pipeline) sendInCarUpdates(s *state.SessionState, events []enrich.LapEvent) {
	if p.opts.InCar == nil {
		return
	}
	for _, ev := range events {
		car, ok := s.Cars[ev.Number]
		if !ok {
			continue
		}
		p.opts.InCar.SendInCarUpdate(p.opts.EventID, ev.Number, InCarPayload{
			EventID:       s.EventID,
			SessionID:     s.SessionID,
			Number:        ev.Number,
			Lap:           ev.Lap,
			LapTimeMs:     ev.LapTimeMs,
			BestTimeMs:    car.BestTimeMs,
			Position:      car.OverallPosition,
			ClassPosition: car.ClassPosition,
			Gap:           car.OverallGap,
			Pitted:        ev.Pitted,
			TrackFlag:     car.TrackFlag,
		})
	}
}

// handleSessionChange updates the current session's context, or ends it
// and starts fresh when a new session id arrives for the event.
func (p *Pipeline) handleSessionChange(ctx context.Context, sessionID int, payload string, now time.Time) {
	var msg struct {
		SessionName    string  `json:"sessionName"`
		TimeZoneOffset float64 `json:"timeZoneOffset"`
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		p.log.Warn().Err(err).Msg("malformed session change")
		return
	}

	prior := p.store.Snapshot()

	if prior.SessionID == sessionID || prior.SessionID == 0 {
		work := prior.Clone()
		work.SessionID = sessionID
		work.SessionName = msg.SessionName
		work.TimeZoneOffset = msg.TimeZoneOffset
		work.LastUpdated = now
		for _, car := range work.Cars {
			car.SessionID = sessionID
		}
		sessionPatch, carPatches := diffStates(prior, work)
		p.store.Replace(work)
		p.queuePublish(ctx, publishBatch{session: sessionPatch, cars: carPatches})
		p.log.Info().Int("session_id", sessionID).Str("name", msg.SessionName).Msg("session registered")
		return
	}

	// A new session for the event ends the current one.
	p.finalizeSession(ctx, prior, now)

	next := state.NewSessionState(p.opts.EventID, sessionID)
	next.SessionName = msg.SessionName
	next.TimeZoneOffset = msg.TimeZoneOffset
	next.Sections = append([]state.TrackSection(nil), prior.Sections...)
	next.ClassColors = prior.ClassColors
	next.LastUpdated = now

	p.store.Replace(next)
	p.tracker.Reset()
	p.laps.Reset()
	p.dec.reset()
	p.rmonSinceRefresh = 0

	p.pub.SendReset()
	p.log.Info().
		Int("ended_session", prior.SessionID).
		Int("session_id", sessionID).
		Str("name", msg.SessionName).
		Msg("session changed")
}

// finalizeSession marks a session ended, archives its result payload,
// and closes the session row.
func (p *Pipeline) finalizeSession(ctx context.Context, s *state.SessionState, now time.Time) {
	s.Liveness = state.Ended

	encoded, err := state.EncodePayload(state.ToPayload(s))
	if err != nil {
		p.log.Error().Err(err).Msg("result payload encode failed")
		return
	}

	if err := p.db.ArchiveSessionResult(ctx, s, encoded); err != nil {
		p.log.Warn().Err(err).Msg("result archive to database failed")
	}
	if err := p.db.EndSession(ctx, s.EventID, s.SessionID, now); err != nil {
		p.log.Warn().Err(err).Msg("session close failed")
	}

	if p.opts.Archiver != nil {
		resultJSON, err := json.Marshal(state.ToPayload(s))
		if err == nil {
			err = p.opts.Archiver.StoreResult(ctx, s.EventID, s.SessionID, resultJSON)
		}
		if err != nil {
			p.log.Warn().Err(err).Msg("result archive to object storage failed")
		}
	}
}

// stalenessLoop demotes a live session that stopped receiving updates.
func (p *Pipeline) stalenessLoop(ctx context.Context) {
	interval := p.opts.StaleAfter / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			prior := p.store.Snapshot()
			if prior.Liveness != state.Live || now.Sub(prior.LastUpdated) < p.opts.StaleAfter {
				continue
			}

			work := prior.Clone()
			work.Liveness = state.Stale
			for _, car := range work.Cars {
				car.IsStale = true
			}
			sessionPatch, carPatches := diffStates(prior, work)
			p.store.Replace(work)
			p.queuePublish(ctx, publishBatch{session: sessionPatch, cars: carPatches})
			p.log.Info().
				Time("last_updated", prior.LastUpdated).
				Msg("session marked stale")
		}
	}
}

func (p *Pipeline) countMessage(msgType string) {
	p.statsMu.Lock()
	p.stats[msgType]++
	p.statsMu.Unlock()
}

// statsLoop logs per-type message counts once a minute.
func (p *Pipeline) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.statsMu.Lock()
			counts := p.stats
			p.stats = make(map[string]int)
			p.statsMu.Unlock()

			if len(counts) == 0 {
				continue
			}
			ev := p.log.Info()
			total := 0
			for t, n := range counts {
				ev = ev.Int(t, n)
				total += n
			}
			ev.Int("total", total).
				Dur("avg_pass", time.Duration(p.avgPassMicros.Load())*time.Microsecond).
				Msg("pipeline stats")
		}
	}
}
