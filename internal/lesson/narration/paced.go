package narration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yungbote/blackboard-backend/internal/platform/clock"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

// Synthesizer turns an utterance into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, u Utterance) (Audio, error)
}

type PacedConfig struct {
	// Speaking speed used when audio duration is unknown.
	WordsPerSecond float64
}

// Paced narrates on a clock: it reports a word boundary every 1/(wps*rate)
// seconds, or spreads the boundaries over the synthesized audio when its
// duration is known, then reports the end.
type Paced struct {
	log    *logger.Logger
	clock  clock.Clock
	synth  Synthesizer
	voices []Voice
	wps    float64

	mu     sync.Mutex
	active *pacedUtterance
}

type pacedUtterance struct {
	ends     []int
	interval time.Duration
	cb       Callbacks
	timer    clock.Timer
	cancel   context.CancelFunc
}

func NewPaced(log *logger.Logger, clk clock.Clock, voices []Voice, synth Synthesizer, cfg PacedConfig) *Paced {
	if cfg.WordsPerSecond <= 0 {
		cfg.WordsPerSecond = 2.5
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Paced{
		log:    log.With("service", "PacedNarrator"),
		clock:  clk,
		synth:  synth,
		voices: voices,
		wps:    cfg.WordsPerSecond,
	}
}

func (p *Paced) ListVoices(ctx context.Context) ([]Voice, error) {
	out := make([]Voice, len(p.voices))
	copy(out, p.voices)
	return out, nil
}

func (p *Paced) Speak(ctx context.Context, u Utterance, cb Callbacks) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ut := &pacedUtterance{ends: WordEnds(u.Text), cb: cb, cancel: cancel}

	p.mu.Lock()
	p.cancelLocked()
	p.active = ut
	if p.synth == nil {
		ut.interval = p.interval(u.Rate, 0, len(ut.ends))
		p.scheduleLocked(ut, 0, p.firstDelay(ut))
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	go p.synthesize(uctx, ut, u)
	return nil
}

func (p *Paced) synthesize(ctx context.Context, ut *pacedUtterance, u Utterance) {
	audio, err := p.synth.Synthesize(ctx, u)

	p.mu.Lock()
	if p.active != ut {
		p.mu.Unlock()
		return
	}
	if err != nil {
		p.active = nil
		ut.cancel()
		p.mu.Unlock()
		if errors.Is(err, context.Canceled) {
			return
		}
		p.log.Warn("speech synthesis failed", "error", err)
		ut.cb.fail(err)
		return
	}
	ut.interval = p.interval(u.Rate, audio.Duration, len(ut.ends))
	p.mu.Unlock()

	ut.cb.start(audio)

	p.mu.Lock()
	if p.active == ut {
		p.scheduleLocked(ut, 0, p.firstDelay(ut))
	}
	p.mu.Unlock()
}

func (p *Paced) firstDelay(ut *pacedUtterance) time.Duration {
	if len(ut.ends) == 0 {
		return 0
	}
	return ut.interval
}

func (p *Paced) interval(rate float64, audio time.Duration, words int) time.Duration {
	if audio > 0 && words > 0 {
		return audio / time.Duration(words)
	}
	if rate <= 0 {
		rate = 1
	}
	return time.Duration(float64(time.Second) / (p.wps * rate))
}

func (p *Paced) scheduleLocked(ut *pacedUtterance, i int, d time.Duration) {
	ut.timer = p.clock.AfterFunc(d, func() { p.fire(ut, i) })
}

func (p *Paced) fire(ut *pacedUtterance, i int) {
	p.mu.Lock()
	if p.active != ut {
		p.mu.Unlock()
		return
	}
	if i >= len(ut.ends) {
		p.active = nil
		ut.cancel()
		p.mu.Unlock()
		ut.cb.end()
		return
	}
	off := ut.ends[i]
	p.mu.Unlock()

	ut.cb.progress(off)

	p.mu.Lock()
	if p.active == ut {
		p.scheduleLocked(ut, i+1, ut.interval)
	}
	p.mu.Unlock()
}

// CancelAll stops the utterance in flight and its pending timer.
func (p *Paced) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

func (p *Paced) cancelLocked() {
	if p.active == nil {
		return
	}
	if p.active.timer != nil {
		p.active.timer.Stop()
	}
	p.active.cancel()
	p.active = nil
}
