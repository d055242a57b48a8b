package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/europasms/sender/dao"
	"github.com/europasms/sender/device"
	"github.com/europasms/sender/dispatch"
	"github.com/europasms/sender/history"
	"github.com/europasms/sender/model"
	"github.com/europasms/sender/report"
	"github.com/europasms/sender/service/dto"
	"github.com/europasms/sender/util"
	"go.uber.org/zap"
)

var (
	//ErrBusy is returned while another dispatch run is in flight;
	//there is only one sequential worker by design
	ErrBusy = errors.New("another dispatch is already running")
	//ErrNoChannels is returned when discovery yields no usable modems
	ErrNoChannels = errors.New("no ready channels detected")
)

type InvalidPayloadErr struct {
	message string
}

func (e *InvalidPayloadErr) Error() string {
	return e.message
}

func NewInvalidPayloadError(msg string) *InvalidPayloadErr {
	return &InvalidPayloadErr{message: msg}
}

type Service interface {
	SendMessage(message dto.Message) (dto.Id, error)
	CheckStatusOfBatch(id uint32) (dto.BatchStatus, error)
	ResendFailed(id uint32) (dto.Id, error)
	ResendFromHistory() (dto.Id, error)
	StopDispatch() bool
	History(since string, limit int) (dto.History, error)
	Report() (dto.Report, error)
	Devices() []dto.Device
	RunCommands(req dto.RawCommands) (dto.RawResult, error)
	ReleaseDevices() ([]dto.ReleaseResult, error)
}

type Config struct {
	CountryPrefix   string
	Delay           dispatch.DelayPolicy
	ValidateModems  bool
	ProbeNumbers    bool
	StatusStoreDays int
	MessageMaxLen   int
	Webhook         string
	//Preferred holds canonical identifiers of previously selected devices
	Preferred map[string]bool
}

type service struct {
	registry     device.Registry
	client       modemClient
	engine       dispatch.Engine
	batchDao     dao.BatchDao
	recipientDao dao.RecipientDao
	store        history.Store
	httpClient   *http.Client
	cfg          Config

	running int32
	mu      sync.Mutex
	cancel  context.CancelFunc
}

//modemClient is the slice of the transport the service itself needs;
//the engine talks to the transport through its own Sender interface
type modemClient interface {
	WriteConfig(channels []model.Channel) error
	IsReady(ch model.Channel) bool
	OwnNumber(ch model.Channel) string
	RunRawCommands(ch model.Channel, commands []string, baud int) (bool, string)
	ReleasePort(ch model.Channel) (bool, string)
}

func NewService(registry device.Registry, client modemClient, engine dispatch.Engine, batchDao dao.BatchDao, recipientDao dao.RecipientDao, store history.Store, cfg Config) Service {
	if cfg.StatusStoreDays <= 0 {
		cfg.StatusStoreDays = 7
	}
	service := &service{
		registry:     registry,
		client:       client,
		engine:       engine,
		batchDao:     batchDao,
		recipientDao: recipientDao,
		store:        store,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		cfg:          cfg,
	}

	go service.consumeEvents()

	return service
}

//consumeEvents mirrors engine progress into recipient records so status
//queries see a live picture of the running batch. The stream drops events
//under backpressure; durable statuses are written by persistStatuses when
//the run finishes, never from here.
func (s *service) consumeEvents() {
	for ev := range s.engine.Events() {
		event, ok := ev.(dispatch.Event)
		if !ok {
			continue
		}
		switch event.Kind {
		case dispatch.EventAttempt:
			err := s.recipientDao.UpdateStatus(event.RecipientId, model.SENDING, event.Channel)
			if err != nil {
				zap.L().Warn("Error updating recipient status", zap.Error(err))
			}
		case dispatch.EventRecipient:
			err := s.recipientDao.UpdateStatus(event.RecipientId, event.Status, event.Channel)
			if err != nil {
				zap.L().Warn("Error updating recipient status", zap.Error(err))
			}
			zap.L().Info("Recipient processed",
				zap.String("number", event.Number),
				zap.String("status", event.Status),
				zap.String("channel", event.Channel),
				zap.Int("index", event.Index),
				zap.Int("total", event.Total))
		case dispatch.EventBatch:
			zap.L().Info("Batch finished",
				zap.Uint32("batch", event.BatchId),
				zap.Int("sent", event.Sent),
				zap.Int("failed", event.Failed),
				zap.Int("skipped", event.Skipped))
		}
	}
}

func (s *service) SendMessage(message dto.Message) (dto.Id, error) {
	if util.IsBlank(message.Text) {
		return dto.Id{}, NewInvalidPayloadError("Invalid message")
	}
	if len([]rune(message.Text)) > s.cfg.MessageMaxLen {
		return dto.Id{}, NewInvalidPayloadError("Message too long. Must be <= " + strconv.Itoa(s.cfg.MessageMaxLen) + " symbols in length")
	}

	recipients := s.normalize(message)
	if len(recipients) == 0 {
		return dto.Id{}, NewInvalidPayloadError("No valid recipients")
	}

	return s.dispatchBatch(message.Text, message.Flash, recipients)
}

//normalize converts every destination to canonical international form and
//removes duplicates, keeping first occurrence order. Normalization happens
//here exactly once; the batch is never re-normalized.
func (s *service) normalize(message dto.Message) []dto.Recipient {
	seen := make(map[string]bool)
	var recipients []dto.Recipient
	add := func(number, name string) {
		num := util.FormatNumber(number, s.cfg.CountryPrefix)
		if num == "" || seen[num] {
			return
		}
		seen[num] = true
		recipients = append(recipients, dto.Recipient{Number: num, Name: name})
	}

	for _, r := range message.Recipients {
		add(r.Number, strings.TrimSpace(r.Name))
	}
	for _, num := range util.ParseNumbers(message.Numbers, s.cfg.CountryPrefix) {
		add(num, "")
	}

	return recipients
}

func (s *service) dispatchBatch(text string, flash bool, recipients []dto.Recipient) (dto.Id, error) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return dto.Id{}, ErrBusy
	}

	channels := s.readyChannels()
	if len(channels) == 0 {
		atomic.StoreInt32(&s.running, 0)
		return dto.Id{}, ErrNoChannels
	}

	batchId, err := s.batchDao.Create(text, flash)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		return dto.Id{}, err
	}

	var batch []*model.Recipient
	for _, r := range recipients {
		id, err := s.recipientDao.Create(batchId, r.Number, r.Name)
		if err != nil {
			atomic.StoreInt32(&s.running, 0)
			return dto.Id{}, err
		}
		batch = append(batch, &model.Recipient{Id: id, BatchId: batchId, Number: r.Number, Name: r.Name, Status: model.PENDING})
	}

	//the engine owns the session mapping file for the duration of the run
	if err := s.client.WriteConfig(channels); err != nil {
		atomic.StoreInt32(&s.running, 0)
		return dto.Id{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer atomic.StoreInt32(&s.running, 0)
		defer cancel()

		res, err := s.engine.Run(ctx, batchId, batch, channels, text, flash, s.cfg.Delay)
		if err != nil {
			zap.L().Error("Dispatch run failed", zap.Uint32("batch", batchId), zap.Error(err))
			return
		}
		//the event stream is lossy live progress; durable statuses come
		//from the recipients the engine mutated, written before any
		//completion work reads them back
		s.persistStatuses(batch)
		s.afterBatch(batchId, res)
	}()

	return dto.Id{Id: batchId}, nil
}

func (s *service) persistStatuses(recipients []*model.Recipient) {
	for _, r := range recipients {
		if err := s.recipientDao.UpdateStatus(r.Id, r.Status, r.Channel); err != nil {
			zap.L().Warn("Error persisting recipient status", zap.Uint32("id", r.Id), zap.Error(err))
		}
	}
}

//afterBatch performs the lazy retention work and the completion webhook
func (s *service) afterBatch(batchId uint32, res dispatch.Result) {
	_, err := s.store.Prune(s.cfg.StatusStoreDays)
	if err != nil {
		zap.L().Warn("Error pruning history", zap.Error(err))
	}
	if err := s.batchDao.RemoveOlderThanDays(s.cfg.StatusStoreDays); err != nil {
		zap.L().Warn("Error cleaning up batches", zap.Error(err))
	}
	if err := s.recipientDao.RemoveOlderThanDays(s.cfg.StatusStoreDays); err != nil {
		zap.L().Warn("Error cleaning up recipients", zap.Error(err))
	}

	if util.IsBlank(s.cfg.Webhook) {
		return
	}

	status, err := s.CheckStatusOfBatch(batchId)
	if err != nil {
		zap.L().Error("Error checking batch status", zap.Error(err))
		return
	}

	body, err := json.Marshal(status)
	if err != nil {
		zap.L().Error("Error marshaling batch status", zap.Error(err))
		return
	}

	req, err := http.NewRequest("POST", s.cfg.Webhook, bytes.NewBuffer(body))
	if err != nil {
		zap.L().Error("Error calling web hook", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		zap.L().Error("Error calling web hook", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if !(resp.StatusCode >= 200 && resp.StatusCode <= 202) {
		zap.L().Warn("Webhook returned unexpected status", zap.String("status", resp.Status))
	}
}

//readyChannels discovers devices and filters them down to usable ones
func (s *service) readyChannels() []model.Channel {
	channels := s.registry.Discover(s.cfg.Preferred)

	var ready []model.Channel
	for _, ch := range channels {
		if s.cfg.ValidateModems {
			if s.client.IsReady(ch) {
				ch.Status = model.READY
			} else {
				ch.Status = model.UNREADY
				zap.L().Warn("Modem not responding", zap.String("device", ch.Canonical))
				continue
			}
		}
		if s.cfg.ProbeNumbers {
			ch.Number = s.client.OwnNumber(ch)
		}
		ch.Ordinal = len(ready)
		ready = append(ready, ch)
	}

	return ready
}

func (s *service) CheckStatusOfBatch(id uint32) (dto.BatchStatus, error) {
	batch, err := s.batchDao.GetOneById(id)
	if err != nil {
		return dto.BatchStatus{}, err
	}
	recipients, err := s.recipientDao.GetAllByBatchId(batch.Id)
	if err != nil {
		return dto.BatchStatus{}, err
	}

	status := dto.BatchStatus{
		Id:       batch.Id,
		Text:     batch.Text,
		Flash:    batch.Flash,
		Statuses: []dto.RecipientStatus{},
	}
	for _, r := range recipients {
		switch r.Status {
		case model.SENT:
			status.Sent++
		case model.FAILED:
			status.Failed++
		case model.SKIPPED:
			status.Skipped++
		default:
			status.Pending++
		}
		status.Statuses = append(status.Statuses, dto.RecipientStatus{
			Number:  r.Number,
			Name:    r.Name,
			Status:  r.Status,
			Channel: r.Channel,
		})
	}

	return status, nil
}

//ResendFailed submits the failed subset of a completed batch as a fresh
//batch; the engine has no notion of attempt numbers beyond a single run
func (s *service) ResendFailed(id uint32) (dto.Id, error) {
	batch, err := s.batchDao.GetOneById(id)
	if err != nil {
		return dto.Id{}, err
	}
	failed, err := s.recipientDao.GetFailedByBatchId(id)
	if err != nil {
		return dto.Id{}, err
	}
	if len(failed) == 0 {
		return dto.Id{}, NewInvalidPayloadError("No failed recipients in batch " + strconv.Itoa(int(id)))
	}

	var recipients []dto.Recipient
	for _, r := range failed {
		recipients = append(recipients, dto.Recipient{Number: r.Number, Name: r.Name})
	}

	return s.dispatchBatch(batch.Text, batch.Flash, recipients)
}

//ResendFromHistory builds a fresh batch from every number whose most
//recent history record within the retention window is a failure
func (s *service) ResendFromHistory() (dto.Id, error) {
	records, err := s.store.LoadAll()
	if err != nil {
		return dto.Id{}, err
	}
	latest := history.LatestByNumber(history.Within(records, s.cfg.StatusStoreDays))

	var recipients []dto.Recipient
	var text string
	var flash bool
	var lastTs time.Time
	for number, r := range latest {
		if r.Status == model.OK {
			continue
		}
		recipients = append(recipients, dto.Recipient{Number: number, Name: r.Name})
		if r.Ts.After(lastTs) {
			lastTs = r.Ts
			text = r.Message
			flash = r.Flash
		}
	}
	if len(recipients) == 0 {
		return dto.Id{}, NewInvalidPayloadError("No failed sends in history")
	}

	return s.dispatchBatch(text, flash, recipients)
}

//StopDispatch asks the running batch to stop between recipients.
//Returns false when nothing is running.
func (s *service) StopDispatch() bool {
	if atomic.LoadInt32(&s.running) == 0 {
		return false
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

func (s *service) History(since string, limit int) (dto.History, error) {
	records, err := s.store.LoadAll()
	if err != nil {
		return dto.History{}, err
	}

	kept := history.Within(records, s.cfg.StatusStoreDays)

	if !util.IsBlank(since) {
		if ts, ok := parseTs(since); ok {
			var filtered []history.Record
			for _, r := range kept {
				if !r.Ts.Before(ts) {
					filtered = append(filtered, r)
				}
			}
			kept = filtered
		}
	}

	if limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}

	if kept == nil {
		kept = []history.Record{}
	}

	return dto.History{Count: len(kept), Items: kept}, nil
}

func parseTs(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (s *service) Report() (dto.Report, error) {
	records, err := s.store.LoadAll()
	if err != nil {
		return dto.Report{}, err
	}

	stats := report.Aggregate(history.Within(records, s.cfg.StatusStoreDays))

	return dto.Report{Channels: stats}, nil
}

func (s *service) Devices() []dto.Device {
	channels := s.registry.Discover(s.cfg.Preferred)

	devices := []dto.Device{}
	for _, ch := range channels {
		if s.cfg.ValidateModems {
			if s.client.IsReady(ch) {
				ch.Status = model.READY
			} else {
				ch.Status = model.UNREADY
			}
		}
		if s.cfg.ProbeNumbers && ch.Status != model.UNREADY {
			ch.Number = s.client.OwnNumber(ch)
		}
		devices = append(devices, dto.Device{
			Raw:       ch.Raw,
			Canonical: ch.Canonical,
			Label:     ch.Label,
			Section:   ch.Section(),
			Status:    ch.Status,
			Number:    ch.Number,
		})
	}

	return devices
}

//RunCommands feeds raw AT commands to one modem, outside the dispatch path
func (s *service) RunCommands(req dto.RawCommands) (dto.RawResult, error) {
	if util.IsBlank(req.Device) || len(req.Commands) == 0 {
		return dto.RawResult{}, NewInvalidPayloadError("Device and commands are required")
	}
	//the tty must not be contended while a batch is in flight
	if atomic.LoadInt32(&s.running) == 1 {
		return dto.RawResult{}, ErrBusy
	}

	for _, ch := range s.registry.Discover(s.cfg.Preferred) {
		if ch.Canonical == req.Device || ch.Raw == req.Device {
			ok, response := s.client.RunRawCommands(ch, req.Commands, req.Baud)
			return dto.RawResult{Ok: ok, Response: response}, nil
		}
	}

	return dto.RawResult{}, NewInvalidPayloadError("Unknown device " + req.Device)
}

//ReleaseDevices kills processes holding the discovered modems open, one
//result per device. Refused while a dispatch is running: the engine itself
//would be killed off its ports.
func (s *service) ReleaseDevices() ([]dto.ReleaseResult, error) {
	if atomic.LoadInt32(&s.running) == 1 {
		return nil, ErrBusy
	}

	channels := s.registry.Discover(s.cfg.Preferred)
	if len(channels) == 0 {
		return nil, NewInvalidPayloadError("No devices found")
	}

	results := []dto.ReleaseResult{}
	for _, ch := range channels {
		ok, response := s.client.ReleasePort(ch)
		results = append(results, dto.ReleaseResult{Device: ch.Canonical, Ok: ok, Response: response})
	}

	return results, nil
}
