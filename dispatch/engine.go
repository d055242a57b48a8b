package dispatch

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"time"

	"github.com/cskr/pubsub"
	"github.com/dchest/uniuri"
	"github.com/europasms/sender/history"
	"github.com/europasms/sender/model"
	"go.uber.org/zap"
)

const (
	PROGRESS = "progress"

	//FailLimit is the number of failed recipients after which the circuit
	//opens and the rest of the batch is skipped
	FailLimit = 10
)

const (
	EventAttempt   = "ATTEMPT"
	EventResult    = "RESULT"
	EventRecipient = "RECIPIENT"
	EventBatch     = "BATCH"
)

var (
	ErrNoChannels   = errors.New("no channels to dispatch on")
	ErrNoRecipients = errors.New("no recipients to dispatch to")

	nameTokenRx = regexp.MustCompile(`(?i)<name>`)
)

type Sender interface {
	Send(section, number, text string, flash bool) (ok bool, stdout, stderr string)
}

type Recorder interface {
	Append(r history.Record) error
}

//DelayPolicy is the pause between consecutive recipients: fixed when
//MinSec == MaxSec, uniformly random in [MinSec, MaxSec] otherwise.
//MaxSec == 0 degrades to no delay.
type DelayPolicy struct {
	MinSec float64
	MaxSec float64
}

func FixedDelay(sec float64) DelayPolicy {
	return DelayPolicy{MinSec: sec, MaxSec: sec}
}

func (p DelayPolicy) Next() time.Duration {
	if p.MaxSec <= 0 {
		return 0
	}
	min := p.MinSec
	if min < 0 {
		min = 0
	}
	if p.MaxSec <= min {
		return time.Duration(min * float64(time.Second))
	}
	sec := min + rand.Float64()*(p.MaxSec-min)
	return time.Duration(sec * float64(time.Second))
}

//Event is one progress notification of a dispatch run.
type Event struct {
	Kind        string
	RunId       string
	BatchId     uint32
	Index       int
	Total       int
	Sent        int
	Failed      int
	Skipped     int
	RecipientId uint32
	Number      string
	Name        string
	Channel     string
	Section     string
	Status      string
}

type Result struct {
	RunId         string
	Sent          int
	Skipped       int
	FailedNumbers []string
}

type Engine interface {
	//Run dispatches one batch to completion and returns a typed result.
	//Recipient statuses and last-assigned channel labels are mutated in
	//place. Exactly one history record is appended per attempt, including
	//synthetic records for skipped recipients, before the engine proceeds.
	Run(ctx context.Context, batchId uint32, recipients []*model.Recipient, channels []model.Channel, text string, flash bool, delay DelayPolicy) (Result, error)
	//Events returns a subscription to the progress event stream
	Events() chan interface{}
}

func NewEngine(sender Sender, recorder Recorder) Engine {
	return &engine{
		sender:    sender,
		recorder:  recorder,
		ps:        pubsub.New(100),
		failLimit: FailLimit,
	}
}

type engine struct {
	sender    Sender
	recorder  Recorder
	ps        *pubsub.PubSub
	failLimit int
}

func (e *engine) Events() chan interface{} {
	return e.ps.Sub(PROGRESS)
}

//RenderTemplate substitutes the case-insensitive <name> token with the
//recipient's display name, empty string if absent.
func RenderTemplate(text, name string) string {
	return nameTokenRx.ReplaceAllString(text, name)
}

func (e *engine) Run(ctx context.Context, batchId uint32, recipients []*model.Recipient, channels []model.Channel, text string, flash bool, delay DelayPolicy) (Result, error) {
	if len(channels) == 0 {
		return Result{}, ErrNoChannels
	}
	if len(recipients) == 0 {
		return Result{}, ErrNoRecipients
	}

	res := Result{RunId: uniuri.New()}
	total := len(recipients)
	canceled := false

	for i, r := range recipients {
		if !canceled {
			select {
			case <-ctx.Done():
				canceled = true
			default:
			}
		}

		if canceled || len(res.FailedNumbers) >= e.failLimit {
			e.skip(&res, batchId, r, i, total, text, flash, canceled)
			continue
		}

		e.dispatchOne(ctx, &res, batchId, r, i, total, channels, text, flash)

		//pause between recipients only: never after the last one and
		//never once the circuit is open
		if i < total-1 && len(res.FailedNumbers) < e.failLimit {
			if d := delay.Next(); d > 0 {
				select {
				case <-ctx.Done():
					canceled = true
				case <-time.After(d):
				}
			}
		}
	}

	e.publish(Event{
		Kind:    EventBatch,
		RunId:   res.RunId,
		BatchId: batchId,
		Total:   total,
		Sent:    res.Sent,
		Failed:  len(res.FailedNumbers),
		Skipped: res.Skipped,
	})

	return res, nil
}

func (e *engine) dispatchOne(ctx context.Context, res *Result, batchId uint32, r *model.Recipient, i, total int, channels []model.Channel, text string, flash bool) {
	r.Status = model.SENDING
	start := i % len(channels)
	sent := false

	for off := 0; off < len(channels); off++ {
		ch := channels[(start+off)%len(channels)]
		message := RenderTemplate(text, r.Name)

		e.publish(Event{
			Kind:        EventAttempt,
			RunId:       res.RunId,
			BatchId:     batchId,
			Index:       i,
			Total:       total,
			Sent:        res.Sent,
			Failed:      len(res.FailedNumbers),
			Skipped:     res.Skipped,
			RecipientId: r.Id,
			Number:      r.Number,
			Name:        r.Name,
			Channel:     ch.Label,
			Section:     ch.Section(),
			Status:      model.SENDING,
		})

		ok, out, errOut := e.sender.Send(ch.Section(), r.Number, message, flash)

		status := model.FAIL
		response := errOut
		if response == "" {
			response = out
		}
		if ok {
			status = model.OK
			response = out
		}

		//every attempt is recorded before the engine proceeds
		e.record(history.Record{
			Ts:       time.Now(),
			Name:     r.Name,
			Number:   r.Number,
			Message:  message,
			Flash:    flash,
			Status:   status,
			Device:   ch.Canonical,
			Section:  ch.Section(),
			Response: response,
		})

		r.Channel = ch.Label
		if ok {
			r.Status = model.SENT
			res.Sent++
			sent = true
		}

		//outcome of this single attempt, so consumers can render failed
		//failover tries and not just the recipient's final state
		e.publish(Event{
			Kind:        EventResult,
			RunId:       res.RunId,
			BatchId:     batchId,
			Index:       i,
			Total:       total,
			Sent:        res.Sent,
			Failed:      len(res.FailedNumbers),
			Skipped:     res.Skipped,
			RecipientId: r.Id,
			Number:      r.Number,
			Name:        r.Name,
			Channel:     ch.Label,
			Section:     ch.Section(),
			Status:      status,
		})

		if ok {
			break
		}

		zap.L().Warn("Send attempt failed",
			zap.String("number", r.Number),
			zap.String("channel", ch.Label),
			zap.String("response", response))
	}

	if !sent {
		r.Status = model.FAILED
		res.FailedNumbers = append(res.FailedNumbers, r.Number)
	}

	e.publish(Event{
		Kind:        EventRecipient,
		RunId:       res.RunId,
		BatchId:     batchId,
		Index:       i,
		Total:       total,
		Sent:        res.Sent,
		Failed:      len(res.FailedNumbers),
		Skipped:     res.Skipped,
		RecipientId: r.Id,
		Number:      r.Number,
		Name:        r.Name,
		Channel:     r.Channel,
		Status:      r.Status,
	})
}

func (e *engine) skip(res *Result, batchId uint32, r *model.Recipient, i, total int, text string, flash bool, canceled bool) {
	marker := "skipped: too many failures, circuit open"
	if canceled {
		marker = "skipped: dispatch canceled"
	}

	r.Status = model.SKIPPED
	r.Channel = ""
	res.Skipped++

	//synthetic record distinguishing a skip from a normal failure
	e.record(history.Record{
		Ts:       time.Now(),
		Name:     r.Name,
		Number:   r.Number,
		Message:  RenderTemplate(text, r.Name),
		Flash:    flash,
		Status:   model.FAIL,
		Response: marker,
	})

	e.publish(Event{
		Kind:        EventRecipient,
		RunId:       res.RunId,
		BatchId:     batchId,
		Index:       i,
		Total:       total,
		Sent:        res.Sent,
		Failed:      len(res.FailedNumbers),
		Skipped:     res.Skipped,
		RecipientId: r.Id,
		Number:      r.Number,
		Name:        r.Name,
		Status:      r.Status,
	})
}

func (e *engine) record(r history.Record) {
	//a history write failure must not abort dispatch
	if err := e.recorder.Append(r); err != nil {
		zap.L().Error("Error appending history record", zap.Error(err))
	}
}

func (e *engine) publish(ev Event) {
	//non-blocking so a slow or dead consumer cannot stall dispatch
	e.ps.TryPub(ev, PROGRESS)
}
