package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stwalsh4118/marquee/internal/history"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/metadata"
	"github.com/stwalsh4118/marquee/internal/source"
)

// ErrInvalidTransition is returned when an operation is not legal in the current state
var ErrInvalidTransition = errors.New("invalid state transition")

// HistoryRecorder is the part of the history store the controller writes to
type HistoryRecorder interface {
	RecordPlay(id, sourceURL, title, thumbnailURL string)
	UpdateTitle(id, title string)
}

// TransitionHook observes every state change. It is called with the
// controller lock held and must not call back into the controller.
type TransitionHook func(from, to State, strategy source.Strategy)

// Options configures a Controller
type Options struct {
	Factory  Factory
	History  HistoryRecorder
	Autoplay bool
	OnStatus StatusSink
	OnChange TransitionHook
	Now      func() time.Time
}

// Display holds the transient fields shown for the current attempt
type Display struct {
	Title           string `json:"title,omitempty"`
	Author          string `json:"author,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`
	Duration        string `json:"duration,omitempty"`
	ViewCount       *int64 `json:"view_count,omitempty"`
	EmbedURL        string `json:"embed_url,omitempty"`
}

// Snapshot is a consistent copy of the controller state
type Snapshot struct {
	State        State            `json:"state"`
	Attempt      uint64           `json:"attempt"`
	AttemptID    string           `json:"attempt_id,omitempty"`
	Source       *source.Resolved `json:"source,omitempty"`
	Display      Display          `json:"display"`
	Levels       []QualityLevel   `json:"levels,omitempty"`
	CurrentLevel int              `json:"current_level"`
	RecoveryUsed bool             `json:"recovery_used"`
	Speed        float64          `json:"speed"`
	Muted        bool             `json:"muted"`
	Position     float64          `json:"position"`
	LastStatus   *Status          `json:"last_status,omitempty"`
}

// Controller is the playback state machine. All transitions are serialised by
// one mutex. Every load attempt gets a sequence number and backend events
// carrying an older sequence are ignored.
type Controller struct {
	factory  Factory
	history  HistoryRecorder
	autoplay bool
	onStatus StatusSink
	onChange TransitionHook
	now      func() time.Time

	mu           sync.Mutex
	state        State
	seq          uint64
	attemptID    string
	src          *source.Resolved
	backend      Backend
	levels       []QualityLevel
	currentLevel int
	recoveryUsed bool
	display      Display
	speedIndex   int
	muted        bool
	position     float64
	lastStatus   *Status
}

// NewController creates an idle controller
func NewController(opts Options) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		factory:      opts.Factory,
		history:      opts.History,
		autoplay:     opts.Autoplay,
		onStatus:     opts.OnStatus,
		onChange:     opts.OnChange,
		now:          opts.Now,
		state:        StateIdle,
		currentLevel: -1,
		speedIndex:   defaultSpeedIndex,
	}
}

// Submit starts a new load attempt for raw. It is legal from every state.
// A link that fails classification only publishes an error status and is
// returned; the current attempt keeps playing. Otherwise the current backend
// is torn down before the new one attaches.
func (c *Controller) Submit(ctx context.Context, raw string) error {
	resolved, err := source.Classify(raw)
	if err != nil {
		c.mu.Lock()
		st := c.statusLocked(StatusError, classificationMessage(err))
		c.mu.Unlock()
		c.publish([]Status{st})
		return err
	}

	c.mu.Lock()
	var out []Status

	c.teardownLocked()
	c.seq++
	seq := c.seq
	c.setStateLocked(StateResolving)

	c.src = &resolved
	c.attemptID = uuid.New().String()
	c.setStateLocked(StateLoading)
	log := c.attemptLogger()

	if c.history != nil {
		c.history.RecordPlay(historyID(resolved), resolved.CanonicalURL, history.PendingTitle, thumbnailFor(resolved))
	}

	backend, err := c.factory.New(resolved.Strategy)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create backend")
		c.setStateLocked(StateFailed)
		out = append(out, c.statusLocked(StatusError, failureMessage(resolved.Strategy, ErrorKindOther)))
		c.mu.Unlock()
		c.publish(out)
		return err
	}
	c.backend = backend
	c.mu.Unlock()

	log.Info().Msg("Attaching backend")
	attachErr := backend.Attach(ctx, resolved, c.emitterFor(seq))

	c.mu.Lock()
	if c.seq != seq {
		c.mu.Unlock()
		backend.Destroy()
		return nil
	}
	if attachErr != nil {
		log.Warn().Err(attachErr).Msg("Backend attach failed")
		c.teardownBackendLocked()
		c.setStateLocked(StateFailed)
		out = append(out, c.statusLocked(StatusError, failureMessage(resolved.Strategy, ClassifyError(attachErr))))
	}
	c.mu.Unlock()
	c.publish(out)
	return nil
}

// Reset tears down the backend, clears every transient field and returns to Idle
func (c *Controller) Reset() {
	c.mu.Lock()
	c.teardownLocked()
	c.seq++
	if c.state != StateIdle {
		c.setStateLocked(StateIdle)
	}
	st := c.statusLocked(StatusSuccess, MsgReset)
	c.mu.Unlock()
	c.publish([]Status{st})
}

// TogglePlayPause switches between Playing and Paused. From Ready it starts playback.
func (c *Controller) TogglePlayPause() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StatePlaying:
		if err := c.backend.Pause(); err != nil {
			return c.state, err
		}
		c.setStateLocked(StatePaused)
	case StatePaused, StateReady:
		if err := c.backend.Play(); err != nil {
			return c.state, err
		}
		c.setStateLocked(StatePlaying)
	default:
		return c.state, fmt.Errorf("%w: cannot toggle playback while %s", ErrInvalidTransition, c.state)
	}
	return c.state, nil
}

// SelectLevel pins a quality level, or -1 for automatic selection. It is
// forwarded to the backend without a state change. An invalid index keeps
// the previous selection.
func (c *Controller) SelectLevel(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.HasManifest() || c.src == nil || c.src.Strategy != source.StrategyAdaptiveStream {
		return ErrNoManifest
	}
	if index < -1 || index >= len(c.levels) {
		return fmt.Errorf("%w: %d", ErrInvalidQualityLevel, index)
	}
	if err := c.backend.SelectLevel(index); err != nil {
		return err
	}
	c.currentLevel = index
	c.attemptLogger().Info().Int("level", index).Msg("Quality level selected")
	return nil
}

// CycleSpeed advances the playback rate and returns it
func (c *Controller) CycleSpeed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speedIndex = nextSpeedIndex(c.speedIndex)
	return PlaybackSpeeds[c.speedIndex]
}

// ToggleMute flips the mute flag and returns the new value
func (c *Controller) ToggleMute() bool {
	c.mu.Lock()
	c.muted = !c.muted
	muted := c.muted
	msg := MsgUnmuted
	if muted {
		msg = MsgMuted
	}
	st := c.statusLocked(StatusSuccess, msg)
	c.mu.Unlock()
	c.publish([]Status{st})
	return muted
}

// Seek moves the position by delta seconds, clamped to the known duration
func (c *Controller) Seek(delta float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var duration float64
	if c.display.DurationSeconds != nil {
		duration = float64(*c.display.DurationSeconds)
	}
	c.position = ClampSeek(c.position, delta, duration)
	return c.position
}

// Attempt returns the current attempt sequence number
func (c *Controller) Attempt() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the controller state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:        c.state,
		Attempt:      c.seq,
		AttemptID:    c.attemptID,
		Display:      c.display,
		Levels:       append([]QualityLevel(nil), c.levels...),
		CurrentLevel: c.currentLevel,
		RecoveryUsed: c.recoveryUsed,
		Speed:        PlaybackSpeeds[c.speedIndex],
		Muted:        c.muted,
		Position:     c.position,
	}
	if c.src != nil {
		src := *c.src
		snap.Source = &src
	}
	if c.lastStatus != nil {
		st := *c.lastStatus
		snap.LastStatus = &st
	}
	return snap
}

// HandleEvent applies a backend event for attempt. Events for any attempt
// other than the current one return ErrStaleAttempt and change nothing.
func (c *Controller) HandleEvent(attempt uint64, ev Event) error {
	c.mu.Lock()
	if attempt != c.seq || c.backend == nil {
		c.mu.Unlock()
		logger.Log.Debug().
			Uint64("attempt", attempt).
			Str("event", string(ev.Type)).
			Msg("Dropping event from superseded attempt")
		return ErrStaleAttempt
	}
	out := c.handleLocked(ev)
	c.mu.Unlock()
	c.publish(out)
	return nil
}

func (c *Controller) emitterFor(seq uint64) Emitter {
	return func(ev Event) {
		_ = c.HandleEvent(seq, ev)
	}
}

// handleLocked applies ev to the current attempt (must hold lock)
func (c *Controller) handleLocked(ev Event) []Status {
	log := c.attemptLogger()
	strategy := c.src.Strategy

	switch ev.Type {
	case EventReady:
		if c.state != StateLoading {
			return nil
		}
		if ev.EmbedURL != "" {
			c.display.EmbedURL = ev.EmbedURL
		}
		c.setStateLocked(StateReady)
		out := []Status{c.statusLocked(StatusSuccess, loadedMessage(strategy))}
		return append(out, c.autoplayLocked()...)

	case EventQualityLevelsChanged:
		c.replaceLevelsLocked(ev.Levels)
		return nil

	case EventFatalError:
		return c.fatalLocked(ev)

	case EventNonFatalWarning:
		log.Warn().Err(ev.Err).Str("kind", ev.Kind.String()).Msg("Backend warning")
		return nil

	case EventHealthy:
		if c.state == StateError {
			c.setStateLocked(StatePlaying)
			log.Info().Msg("Backend recovered")
		}
		return nil

	case EventMetadataResolved:
		if ev.Metadata != nil {
			c.applyMetadataLocked(*ev.Metadata)
		}
		return nil

	case EventDurationResolved:
		if ev.DurationSeconds > 0 {
			c.setDurationLocked(ev.DurationSeconds)
		}
		return nil

	default:
		log.Warn().Str("event", string(ev.Type)).Msg("Ignoring unknown backend event")
		return nil
	}
}

// autoplayLocked attempts to start playback after Ready (must hold lock)
func (c *Controller) autoplayLocked() []Status {
	if !c.autoplay {
		c.setStateLocked(StatePaused)
		return []Status{c.statusLocked(StatusNotice, MsgAutoplayBlocked)}
	}

	if err := c.backend.Play(); err != nil {
		if !errors.Is(err, ErrAutoplayBlocked) {
			c.attemptLogger().Warn().Err(err).Msg("Autoplay failed")
		}
		c.setStateLocked(StatePaused)
		return []Status{c.statusLocked(StatusNotice, MsgAutoplayBlocked)}
	}
	c.setStateLocked(StatePlaying)
	return nil
}

// fatalLocked classifies a fatal backend error (must hold lock)
func (c *Controller) fatalLocked(ev Event) []Status {
	log := c.attemptLogger()

	switch c.state {
	case StateLoading, StateReady, StatePlaying, StatePaused, StateError:
	default:
		return nil
	}

	log.Error().Err(ev.Err).Str("kind", ev.Kind.String()).Msg("Backend fatal error")

	if c.src.Strategy == source.StrategyAdaptiveStream && ev.Kind == ErrorKindMedia && !c.recoveryUsed {
		c.recoveryUsed = true
		c.setStateLocked(StateError)
		out := []Status{c.statusLocked(StatusError, MsgMediaRecovering)}
		if err := c.backend.RecoverMediaError(); err != nil {
			log.Error().Err(err).Msg("Media recovery could not start")
			c.setStateLocked(StateFailed)
			return append(out, c.statusLocked(StatusError, MsgAdaptiveFailed))
		}
		log.Info().Msg("Attempting media error recovery")
		return out
	}

	c.setStateLocked(StateFailed)
	return []Status{c.statusLocked(StatusError, failureMessage(c.src.Strategy, ev.Kind))}
}

// replaceLevelsLocked swaps the level list, reverting a pin the new list
// cannot express (must hold lock)
func (c *Controller) replaceLevelsLocked(levels []QualityLevel) {
	if len(levels) > 1 {
		c.levels = append([]QualityLevel(nil), levels...)
	} else {
		c.levels = nil
	}
	if c.currentLevel >= len(c.levels) {
		c.currentLevel = -1
	}
}

func (c *Controller) applyMetadataLocked(p metadata.Payload) {
	if p.Title != "" {
		c.display.Title = p.Title
		if c.history != nil {
			c.history.UpdateTitle(historyID(*c.src), p.Title)
		}
	}
	if p.Author != "" {
		c.display.Author = p.Author
	}
	if p.ThumbnailURL != "" {
		c.display.ThumbnailURL = p.ThumbnailURL
	}
	if p.ViewCount != nil {
		v := *p.ViewCount
		c.display.ViewCount = &v
	}
	if p.DurationSeconds != nil && *p.DurationSeconds > 0 {
		c.setDurationLocked(*p.DurationSeconds)
	}
}

func (c *Controller) setDurationLocked(seconds int64) {
	c.display.DurationSeconds = &seconds
	c.display.Duration = FormatDuration(float64(seconds))
}

// setStateLocked moves to next if the transition is legal (must hold lock)
func (c *Controller) setStateLocked(next State) bool {
	prev := c.state
	if prev == next {
		return true
	}
	if !prev.CanTransitionTo(next) {
		logger.Log.Warn().
			Str("from", prev.String()).
			Str("to", next.String()).
			Msg("Rejected invalid player transition")
		return false
	}

	c.state = next
	var strategy source.Strategy
	if c.src != nil {
		strategy = c.src.Strategy
	}
	if c.onChange != nil {
		c.onChange(prev, next, strategy)
	}
	logger.Log.Debug().
		Uint64("attempt", c.seq).
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("Player state changed")
	return true
}

// teardownLocked destroys the backend and clears transient fields (must hold lock)
func (c *Controller) teardownLocked() {
	c.teardownBackendLocked()
	c.src = nil
	c.attemptID = ""
	c.levels = nil
	c.currentLevel = -1
	c.recoveryUsed = false
	c.display = Display{}
	c.speedIndex = defaultSpeedIndex
	c.muted = false
	c.position = 0
}

func (c *Controller) teardownBackendLocked() {
	if c.backend == nil {
		return
	}
	c.backend.Destroy()
	c.backend = nil
}

func (c *Controller) statusLocked(kind StatusKind, msg string) Status {
	st := newStatus(kind, msg, c.now())
	c.lastStatus = &st
	return st
}

// publish delivers statuses to the sink (must not hold lock)
func (c *Controller) publish(statuses []Status) {
	if c.onStatus == nil {
		return
	}
	for _, st := range statuses {
		c.onStatus(st)
	}
}

func (c *Controller) attemptLogger() *zerolog.Logger {
	l := logger.Log.With().Uint64("attempt", c.seq).Str("attempt_id", c.attemptID).Logger()
	if c.src != nil {
		l = l.With().Str("strategy", c.src.Strategy.String()).Logger()
	}
	return &l
}

// historyID keys history by platform id for embeds and by URL otherwise
func historyID(r source.Resolved) string {
	if r.PlatformID != "" {
		return r.PlatformID
	}
	return r.CanonicalURL
}

func thumbnailFor(r source.Resolved) string {
	if r.PlatformID != "" {
		return source.ThumbnailURL(r.PlatformID)
	}
	return ""
}

func classificationMessage(err error) string {
	switch {
	case errors.Is(err, source.ErrEmptyInput):
		return MsgEmptyInput
	case errors.Is(err, source.ErrUnrecognizedPlatformURL):
		return MsgUnrecognizedLink
	default:
		return MsgInvalidURL
	}
}

func loadedMessage(s source.Strategy) string {
	switch s {
	case source.StrategyAdaptiveStream:
		return MsgAdaptiveLoaded
	case source.StrategyDirectFile:
		return MsgDirectLoaded
	default:
		return MsgEmbeddedLoaded
	}
}

func failureMessage(s source.Strategy, kind ErrorKind) string {
	switch s {
	case source.StrategyAdaptiveStream:
		if kind == ErrorKindNetwork {
			return MsgNetworkError
		}
		return MsgAdaptiveFailed
	default:
		return MsgDirectFailed
	}
}
