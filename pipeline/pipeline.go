package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"superscribe/audio"
	"superscribe/history"
	"superscribe/log"
	"superscribe/session"
	"superscribe/transcriber"
)

const (
	DefaultMinDuration = 300 * time.Millisecond

	mailboxSize = 64
	title       = "superscribe"
)

// ErrClosed is returned by commands issued after the pipeline stopped.
var ErrClosed = errors.New("pipeline closed")

type Monitor interface {
	Start(onPress, onRelease func()) error
	Stop()
}

type Capture interface {
	Start() (audio.Stream, error)
	Stop(audio.Stream) *audio.Buffer
}

type Injector interface {
	Inject(ctx context.Context, text string) error
}

// Copier receives the transcript when auto-paste is off.
type Copier interface {
	Copy(text string) error
}

type History interface {
	Append(history.Record) (history.Entry, error)
	List(filter string) ([]history.Entry, error)
	Delete(id int64) error
	NextID() (int64, error)
}

type Notifier interface {
	Notify(title, message string)
}

type Cues interface {
	Start()
	End()
	Error()
}

// Events observes the pipeline. Methods are called from the event loop and
// must not block.
type Events interface {
	SessionStarted(id int64)
	SessionCompleted(Summary)
	HistoryChanged()
	StateChanged(session.State)
}

// Summary describes how a session ended.
type Summary struct {
	ID         int64
	Success    bool
	Skipped    bool
	Transcript string
	Duration   time.Duration
	Err        error
	ErrorKind  string
	Message    string // user-facing, empty on success
	RateLimit  string
}

type Deps struct {
	Monitor     Monitor
	Capture     Capture
	Transcriber transcriber.Transcriber
	Injector    Injector
	Copier      Copier
	History     History
	Notifier    Notifier
	Cues        Cues
	Events      Events
}

type Options struct {
	// Shorter recordings are dropped without a request or history entry.
	MinDuration time.Duration
	AutoPaste   bool
	Format      string
	Now         func() time.Time
}

// Pipeline runs capture sessions one at a time. All session state is owned
// by the goroutine in Run; hotkey callbacks, capture auto-stop and the
// transcription and injection workers only post to its mailbox.
type Pipeline struct {
	deps Deps
	opts Options

	mailbox  chan any
	exit     chan struct{}
	exitOnce sync.Once
	done     chan struct{}

	meter atomic.Pointer[audio.Stream]

	// owned by Run
	cur       *session.Session
	stream    audio.Stream
	unwatch   chan struct{}
	rateLimit string
	nextID    int64
	count     int
	work      sync.WaitGroup
}

type (
	pressEvent       struct{}
	releaseEvent     struct{}
	autoStopEvent    struct{ id int64 }
	transcribedEvent struct {
		id  int64
		res transcriber.Result
	}
	injectedEvent struct {
		id  int64
		err error
	}
	listCmd struct {
		filter string
		reply  chan listReply
	}
	listReply struct {
		entries []history.Entry
		err     error
	}
	deleteCmd struct {
		id    int64
		reply chan error
	}
)

func New(deps Deps, opts Options) *Pipeline {
	if opts.MinDuration <= 0 {
		opts.MinDuration = DefaultMinDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Events == nil {
		deps.Events = nopEvents{}
	}
	if deps.Cues == nil {
		deps.Cues = nopCues{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		mailbox: make(chan any, mailboxSize),
		exit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run installs the hotkey and processes events until ctx is cancelled or
// Exit is called. A hook install failure is returned immediately. On exit
// the session in flight, if any, runs to completion first; a recording that
// was never released is discarded.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)

	id, err := p.deps.History.NextID()
	if err != nil {
		return err
	}
	p.nextID = id

	if err := p.deps.Monitor.Start(p.onPress, p.onRelease); err != nil {
		return err
	}
	defer p.deps.Monitor.Stop()

	p.deps.Events.StateChanged(session.StateIdle)

	ctxDone, exit := ctx.Done(), p.exit
	exiting := false
	for {
		if exiting && p.cur == nil {
			p.work.Wait()
			log.SessionEnd(p.count)
			return nil
		}
		select {
		case <-ctxDone:
			ctxDone, exit = nil, nil
			exiting = true
			p.shutdown()
		case <-exit:
			ctxDone, exit = nil, nil
			exiting = true
			p.shutdown()
		case ev := <-p.mailbox:
			p.handle(ctx, ev)
		}
	}
}

// Exit asks Run to return. It never blocks.
func (p *Pipeline) Exit() {
	p.exitOnce.Do(func() { close(p.exit) })
}

// Done closes when Run has returned.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// ShowHistory lists history entries newest first, filtered by transcript.
func (p *Pipeline) ShowHistory(filter string) ([]history.Entry, error) {
	reply := make(chan listReply, 1)
	if !p.post(listCmd{filter: filter, reply: reply}) {
		return nil, ErrClosed
	}
	select {
	case r := <-reply:
		return r.entries, r.err
	case <-p.done:
		return nil, ErrClosed
	}
}

// DeleteEntry removes one entry and its audio.
func (p *Pipeline) DeleteEntry(id int64) error {
	reply := make(chan error, 1)
	if !p.post(deleteCmd{id: id, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-p.done:
		return ErrClosed
	}
}

// Level is the input level of the active recording, or zero.
func (p *Pipeline) Level() float64 {
	if s := p.meter.Load(); s != nil {
		return (*s).Level()
	}
	return 0
}

func (p *Pipeline) post(ev any) bool {
	select {
	case p.mailbox <- ev:
		return true
	case <-p.done:
		return false
	}
}

// hotkey callbacks run on the monitor goroutine and must not block
func (p *Pipeline) onPress()   { p.offer(pressEvent{}) }
func (p *Pipeline) onRelease() { p.offer(releaseEvent{}) }

func (p *Pipeline) offer(ev any) {
	select {
	case p.mailbox <- ev:
	default:
		log.Warnf("pipeline: mailbox full, dropped %T", ev)
	}
}

func (p *Pipeline) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case pressEvent:
		p.press()
	case releaseEvent:
		p.release(ctx, 0)
	case autoStopEvent:
		log.Infof("session %d: reached maximum recording length", ev.id)
		p.release(ctx, ev.id)
	case transcribedEvent:
		p.transcribed(ctx, ev)
	case injectedEvent:
		p.injected(ev)
	case listCmd:
		entries, err := p.deps.History.List(ev.filter)
		ev.reply <- listReply{entries, err}
	case deleteCmd:
		err := p.deps.History.Delete(ev.id)
		if err == nil {
			p.deps.Events.HistoryChanged()
		}
		ev.reply <- err
	}
}

func (p *Pipeline) press() {
	if p.cur != nil {
		log.Infof("press ignored: session %d is %s", p.cur.ID, p.cur.State)
		return
	}

	s := session.New(p.nextID, p.opts.Now())
	p.nextID++
	p.count++
	_ = s.Fire(session.EventPress)

	stream, err := p.deps.Capture.Start()
	if err != nil {
		_ = s.Fail(session.EventStartFailed, err)
		p.finish(s)
		return
	}

	p.cur, p.stream = s, stream
	p.meter.Store(&stream)
	p.unwatch = make(chan struct{})
	go watchAutoStop(p.mailbox, stream, s.ID, p.unwatch)

	p.deps.Cues.Start()
	p.deps.Events.SessionStarted(s.ID)
	p.deps.Events.StateChanged(s.State)
}

func watchAutoStop(mailbox chan<- any, stream audio.Stream, id int64, unwatch <-chan struct{}) {
	select {
	case <-stream.AutoStopped():
		select {
		case mailbox <- autoStopEvent{id: id}:
		case <-unwatch:
		}
	case <-unwatch:
	}
}

// release finalizes the recording. id is zero for a hotkey release and the
// session id for an auto-stop.
func (p *Pipeline) release(ctx context.Context, id int64) {
	s := p.cur
	if s == nil || s.State != session.StateRecording || (id != 0 && id != s.ID) {
		return
	}

	close(p.unwatch)
	p.meter.Store(nil)
	buf := p.deps.Capture.Stop(p.stream)
	p.stream = nil

	s.Audio = buf
	s.Duration = buf.Duration()
	_ = s.Fire(session.EventRelease)
	log.CaptureStats(s.ID, len(buf.Samples), buf.SampleRate, buf.Partial)
	p.deps.Cues.End()
	p.deps.Events.StateChanged(s.State)

	if buf.Empty() || s.Duration < p.opts.MinDuration {
		_ = s.Fire(session.EventSkip)
		log.Infof("session %d: %s is below %s, skipped", s.ID, s.Duration, p.opts.MinDuration)
		p.cur = nil
		p.deps.Events.SessionCompleted(Summary{ID: s.ID, Skipped: true, Duration: s.Duration})
		p.deps.Events.StateChanged(session.StateIdle)
		return
	}

	// sessions run to completion; only the transcriber's timeout cancels
	workCtx := context.WithoutCancel(ctx)
	p.work.Add(1)
	go func() {
		defer p.work.Done()
		res := p.deps.Transcriber.Transcribe(workCtx, buf)
		p.mailbox <- transcribedEvent{id: s.ID, res: res}
	}()
}

func (p *Pipeline) transcribed(ctx context.Context, ev transcribedEvent) {
	s := p.cur
	if s == nil || s.ID != ev.id || s.State != session.StateTranscribing {
		return
	}
	p.logMetrics(s, ev.res)
	p.rateLimit = ev.res.RateLimit

	if !ev.res.Ok() {
		_ = s.Fail(session.EventTranscribeFailed, ev.res.Err())
		p.finish(s)
		return
	}

	s.Transcript = ev.res.Text
	_ = s.Fire(session.EventTranscribed)
	p.deps.Events.StateChanged(s.State)
	if s.Transcript != "" {
		log.TranscriptionText(s.Transcript)
	}

	switch {
	case s.Transcript == "":
		p.injected(injectedEvent{id: s.ID})
	case !p.opts.AutoPaste:
		var err error
		if p.deps.Copier != nil {
			err = p.deps.Copier.Copy(s.Transcript)
		}
		p.injected(injectedEvent{id: s.ID, err: err})
	default:
		text := s.Transcript
		workCtx := context.WithoutCancel(ctx)
		p.work.Add(1)
		go func() {
			defer p.work.Done()
			err := p.safeInject(workCtx, text)
			p.mailbox <- injectedEvent{id: s.ID, err: err}
		}()
	}
}

// safeInject turns a panic in a platform backend into an error so the
// session still completes.
func (p *Pipeline) safeInject(ctx context.Context, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &injectPanic{value: r}
		}
	}()
	return p.deps.Injector.Inject(ctx, text)
}

func (p *Pipeline) injected(ev injectedEvent) {
	s := p.cur
	if s == nil || s.ID != ev.id || s.State != session.StateInjecting {
		return
	}
	if ev.err != nil {
		_ = s.Fail(session.EventInjectFailed, ev.err)
	} else {
		_ = s.Fire(session.EventInjected)
	}
	p.finish(s)
}

// finish persists a terminal session, tells the user once and returns the
// pipeline to Idle.
func (p *Pipeline) finish(s *session.Session) {
	sum := Summary{
		ID:         s.ID,
		Success:    s.Err == nil,
		Transcript: s.Transcript,
		Duration:   s.Duration,
		Err:        s.Err,
		ErrorKind:  session.Kind(s.Err),
		RateLimit:  p.rateLimit,
	}
	p.rateLimit = ""

	_, herr := p.deps.History.Append(s.Record())
	if herr != nil {
		log.Errorf("session %d: history append: %v", s.ID, herr)
	}

	switch {
	case s.Err != nil:
		sum.Message = Message(s.Err)
		if herr != nil {
			sum.Message += " " + Message(herr)
		}
	case herr != nil:
		sum.Message = Message(herr)
	}
	if sum.Message != "" {
		p.deps.Cues.Error()
		p.deps.Notifier.Notify(title, sum.Message)
	}

	log.SessionOutcome(log.Outcome{
		SessionID:  s.ID,
		State:      string(s.State),
		ErrorKind:  sum.ErrorKind,
		Message:    errString(s.Err),
		AudioS:     s.Duration.Seconds(),
		Transcript: len(s.Transcript),
	})

	if s.State == session.StateFailed {
		_ = s.Fire(session.EventReset)
	}
	p.cur = nil

	p.deps.Events.SessionCompleted(sum)
	if herr == nil {
		p.deps.Events.HistoryChanged()
	}
	p.deps.Events.StateChanged(session.StateIdle)
}

func (p *Pipeline) shutdown() {
	p.deps.Monitor.Stop()
	if p.cur == nil || p.cur.State != session.StateRecording {
		return
	}
	log.Infof("session %d: recording discarded at exit", p.cur.ID)
	close(p.unwatch)
	p.meter.Store(nil)
	p.deps.Capture.Stop(p.stream)
	p.stream = nil
	p.cur = nil
}

func (p *Pipeline) logMetrics(s *session.Session, res transcriber.Result) {
	m := log.Metrics{
		Provider:   p.deps.Transcriber.Name(),
		Format:     res.Format,
		Audio:      s.Duration,
		RawBytes:   len(s.Audio.Samples) * 2,
		Encoded:    res.EncodedBytes,
		EncodeTime: res.EncodeTime,
	}
	if m.Format == "" {
		m.Format = p.opts.Format
	}
	if nm := res.Metrics; nm != nil {
		m.DNS, m.TLS, m.TTFB, m.Total = nm.DNS, nm.TLS, nm.TTFB, nm.Total
		m.ConnReused, m.TLSProto = nm.ConnReused, nm.TLSProtocol
	}
	log.TranscriptionMetrics(m)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type nopEvents struct{}

func (nopEvents) SessionStarted(int64)       {}
func (nopEvents) SessionCompleted(Summary)   {}
func (nopEvents) HistoryChanged()            {}
func (nopEvents) StateChanged(session.State) {}

type nopCues struct{}

func (nopCues) Start() {}
func (nopCues) End()   {}
func (nopCues) Error() {}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) {}
