package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"quiz-session-engine/internal/domain"
)

// QuizSource loads quiz definitions.
type QuizSource interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Config describes one quiz attempt. The user identity is passed in explicitly.
type Config struct {
	QuizID           string
	UserID           string
	DisplayName      string
	Origin           string
	DefaultTimeLimit int
	TickInterval     time.Duration
	// RequestTimeout bounds the quiz fetch and the submission round-trip.
	RequestTimeout time.Duration
}

// Option customizes a Controller.
type Option func(*Controller)

// WithTicker replaces the wall-clock ticker.
func WithTicker(t Ticker) Option {
	return func(c *Controller) { c.ticker = t }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

type command struct {
	ev        Event
	reply     chan View
	awaitLoad bool
}

// Controller runs one session. All inputs are serialized through a single
// goroutine that owns the Machine, the answer store and the ticker.
type Controller struct {
	cfg      Config
	machine  *Machine
	quizzes  QuizSource
	pipeline *Pipeline
	guard    ProctoringGuard
	ticker   Ticker
	logger   *slog.Logger

	inbox       chan command
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	returned    chan ReturnSignal
	closeOnce   sync.Once
	loadWaiters []chan View // loop goroutine only
	returnDue   bool        // loop goroutine only

	mu          sync.RWMutex
	view        View
	closed      bool
	subscribers map[chan View]struct{}
}

// NewController starts the session loop. The session stays in PhaseLoading until Load is called.
func NewController(cfg Config, quizzes QuizSource, submissions SubmissionService, guard ProctoringGuard, opts ...Option) *Controller {
	c := newController(cfg, quizzes, submissions, guard, opts...)
	go c.run()
	go c.forwardSignals()
	return c
}

func newController(cfg Config, quizzes QuizSource, submissions SubmissionService, guard ProctoringGuard, opts ...Option) *Controller {
	if guard == nil {
		guard = HeadlessGuard{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg: cfg,
		machine: NewMachine(MachineConfig{
			QuizID:           cfg.QuizID,
			UserID:           cfg.UserID,
			Origin:           cfg.Origin,
			DefaultTimeLimit: cfg.DefaultTimeLimit,
		}),
		quizzes:     quizzes,
		guard:       guard,
		inbox:       make(chan command, 32),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		returned:    make(chan ReturnSignal, 1),
		subscribers: make(map[chan View]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("quiz_id", cfg.QuizID, "user_id", cfg.UserID)
	if c.ticker == nil {
		c.ticker = NewClockTicker(cfg.TickInterval)
	}
	c.pipeline = NewPipeline(submissions, cfg.UserID, cfg.DisplayName, c.logger)
	c.view = c.machine.View()
	return c
}

func (c *Controller) QuizID() string {
	return c.cfg.QuizID
}

func (c *Controller) UserID() string {
	return c.cfg.UserID
}

// Load fetches the quiz and waits until the session is InProgress or LoadFailed.
// After a failure it may be called again.
func (c *Controller) Load(ctx context.Context) (View, error) {
	v, err := c.request(ctx, command{ev: LoadRequested{}, awaitLoad: true})
	if err != nil {
		return v, err
	}
	if v.Phase == PhaseLoadFailed {
		return v, v.Err
	}
	return v, nil
}

// SelectAnswer records option as the answer to the current question.
func (c *Controller) SelectAnswer(ctx context.Context, option int) (View, error) {
	return c.request(ctx, command{ev: SelectAnswer{Option: option}})
}

// Advance moves to the next question, or submits on the last one.
func (c *Controller) Advance(ctx context.Context) (View, error) {
	return c.request(ctx, command{ev: Advance{}})
}

// ProctorExitDetected opens the exit confirmation as if the guard had reported an exit.
func (c *Controller) ProctorExitDetected(ctx context.Context) (View, error) {
	return c.request(ctx, command{ev: ProctorExitDetected{}})
}

// Signal hands a proctoring report to the session in order with the other
// requests of the same caller.
func (c *Controller) Signal(ctx context.Context, kind SignalKind) (View, error) {
	return c.request(ctx, command{ev: ProctorSignal{Kind: kind}})
}

// ConfirmExit resolves the exit confirmation: submit now, or continue the quiz.
func (c *Controller) ConfirmExit(ctx context.Context, submit bool) (View, error) {
	if submit {
		return c.request(ctx, command{ev: ConfirmExit{}})
	}
	return c.request(ctx, command{ev: CancelExit{}})
}

// Snapshot returns the view after every event queued so far was handled.
func (c *Controller) Snapshot(ctx context.Context) (View, error) {
	return c.request(ctx, command{})
}

// Current returns the last published view without waiting for the loop.
func (c *Controller) Current() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Returned yields one signal when the session reaches PhaseSubmitted.
func (c *Controller) Returned() <-chan ReturnSignal {
	return c.returned
}

// Done is closed once the session loop has stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Subscribe returns a channel of views, starting with the current one.
// Slow readers only miss intermediate views. The caller must invoke cancel.
func (c *Controller) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 8)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subscribers[ch] = struct{}{}
	ch <- c.view
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Close tears the session down. The ticker is stopped before Close returns and
// nothing is submitted on the session's behalf.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done

		c.mu.Lock()
		c.closed = true
		for ch := range c.subscribers {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	})
}

func (c *Controller) request(ctx context.Context, cmd command) (View, error) {
	cmd.reply = make(chan View, 1)
	select {
	case c.inbox <- cmd:
	case <-c.ctx.Done():
		return View{}, ErrSessionClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-cmd.reply:
		return v, nil
	case <-c.done:
		return View{}, ErrSessionClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// post queues an internal event; it is dropped once the session is closed.
func (c *Controller) post(ev Event) {
	select {
	case c.inbox <- command{ev: ev}:
	case <-c.ctx.Done():
	}
}

func (c *Controller) run() {
	defer close(c.done)
	defer c.ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case cmd := <-c.inbox:
			c.handle(cmd)
		case t := <-c.ticker.Ticks():
			c.handleTick(t)
		}
	}
}

func (c *Controller) handle(cmd command) {
	v := c.Current()
	if cmd.ev != nil {
		c.dispatch(cmd.ev)
		v = c.publish()
	}
	if cmd.reply == nil {
		return
	}
	if cmd.awaitLoad && v.Phase == PhaseLoading {
		c.loadWaiters = append(c.loadWaiters, cmd.reply)
		return
	}
	cmd.reply <- v
}

// handleTick lets user actions that are already queued win against a tick
// that would expire the current question. Queued commands run in order, and
// the expiring tick is dropped when one of them was a user action, so the
// countdown fires on the next tick at the earliest.
func (c *Controller) handleTick(t Tick) {
	if c.machine.Expires(t) {
		userWon := false
		for n := len(c.inbox); n > 0; n-- {
			cmd := <-c.inbox
			if cmd.ev != nil && isUserAction(cmd.ev) {
				userWon = true
			}
			c.handle(cmd)
		}
		if userWon {
			return
		}
	}
	c.dispatch(t)
	c.publish()
}

func (c *Controller) dispatch(ev Event) {
	queue := []Event{ev}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, eff := range c.machine.Apply(next) {
			queue = append(queue, c.execute(eff)...)
		}
	}
}

// execute carries out one effect and returns follow-up events to apply immediately.
func (c *Controller) execute(eff Effect) []Event {
	switch eff := eff.(type) {
	case FetchQuiz:
		go c.fetch()
	case StartTimer:
		c.ticker.Reset(eff.Gen)
	case StopTimer:
		c.ticker.Stop()
	case RequestExclusive:
		if err := c.guard.RequestExclusive(c.ctx); err != nil {
			if !errors.Is(err, ErrExclusiveUnsupported) {
				c.logger.Warn("exclusive mode request failed", "error", err)
			}
			return []Event{ProctorSignal{Kind: SignalExclusiveUnsupported}}
		}
	case ReleaseExclusive:
		if err := c.guard.ReleaseExclusive(c.ctx); err != nil {
			c.logger.Warn("exclusive mode release failed", "error", err)
		}
	case WarnLeave:
		if err := c.guard.WarnLeave(c.ctx); err != nil {
			c.logger.Warn("leave warning failed", "error", err)
		}
	case SubmitAnswers:
		go c.submit(eff.Answers)
	case SignalReturn:
		// sent by publish, once the final view is visible
		c.returnDue = true
	}
	return nil
}

func (c *Controller) fetch() {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
	defer cancel()
	quiz, err := c.quizzes.GetQuiz(ctx, c.cfg.QuizID)
	if err != nil {
		c.logger.Warn("quiz load failed", "error", err)
		c.post(QuizLoadFailed{Err: err})
		return
	}
	c.post(QuizLoaded{Quiz: quiz})
}

func (c *Controller) submit(answers []AnswerSlot) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
	defer cancel()
	outcome, err := c.pipeline.Submit(ctx, c.cfg.QuizID, answers)
	if err != nil {
		c.logger.Error("submission failed", "error", err)
		c.post(SubmitFailed{Err: err})
		return
	}
	c.post(SubmitSucceeded{Result: outcome.Result, Leaderboard: outcome.Leaderboard})
}

func (c *Controller) forwardSignals() {
	signals := c.guard.Signals()
	if signals == nil {
		return
	}
	for {
		select {
		case <-c.ctx.Done():
			return
		case kind, ok := <-signals:
			if !ok {
				return
			}
			c.post(ProctorSignal{Kind: kind})
		}
	}
}

func (c *Controller) publish() View {
	v := c.machine.View()

	c.mu.Lock()
	prev := c.view.Phase
	c.view = v
	for ch := range c.subscribers {
		select {
		case ch <- v:
		default:
			// drop the stale view so a slow reader never blocks the loop
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
	c.mu.Unlock()

	if prev != v.Phase {
		c.logger.Info("session phase changed", "from", prev, "to", v.Phase)
	}
	if c.returnDue {
		c.returnDue = false
		select {
		case c.returned <- ReturnSignal{Origin: c.cfg.Origin}:
		default:
		}
	}
	if v.Phase != PhaseLoading && len(c.loadWaiters) > 0 {
		for _, w := range c.loadWaiters {
			w <- v
		}
		c.loadWaiters = nil
	}
	return v
}
