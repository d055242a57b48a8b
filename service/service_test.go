package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/europasms/sender/dispatch"
	"github.com/europasms/sender/history"
	"github.com/europasms/sender/model"
	"github.com/europasms/sender/service/dto"
	"github.com/stretchr/testify/require"
)

const (
	TEXT    = "Hello <name>!"
	NUMBER  = "11987654321"
	NUMBER2 = "21912345678"
	PREFIX  = "55"
)

type mockRegistry struct {
	channels []model.Channel
}

func (m *mockRegistry) Discover(preferred map[string]bool) []model.Channel {
	return m.channels
}

type mockClient struct {
	mu            sync.Mutex
	ready         bool
	configWritten bool
	rawOk         bool
	rawResponse   string
	released      []string
}

func (m *mockClient) WriteConfig(channels []model.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configWritten = true
	return nil
}

func (m *mockClient) IsReady(ch model.Channel) bool {
	return m.ready
}

func (m *mockClient) OwnNumber(ch model.Channel) string {
	return "+5511900000000"
}

func (m *mockClient) RunRawCommands(ch model.Channel, commands []string, baud int) (bool, string) {
	return m.rawOk, m.rawResponse
}

func (m *mockClient) ReleasePort(ch model.Channel) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, ch.Canonical)
	return true, "1234"
}

type mockEngine struct {
	mu         sync.Mutex
	events     chan interface{}
	runCalls   int
	recipients []*model.Recipient
	text       string
	result     dispatch.Result
	err        error
	complete   func(recipients []*model.Recipient)
}

func newMockEngine() *mockEngine {
	return &mockEngine{events: make(chan interface{}, 100)}
}

func (m *mockEngine) Run(ctx context.Context, batchId uint32, recipients []*model.Recipient, channels []model.Channel, text string, flash bool, delay dispatch.DelayPolicy) (dispatch.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runCalls++
	m.recipients = recipients
	m.text = text
	if m.complete != nil {
		m.complete(recipients)
	}
	return m.result, m.err
}

func (m *mockEngine) Events() chan interface{} {
	return m.events
}

type mockBatchDao struct {
	mu      sync.Mutex
	batch   model.Batch
	cleaned bool
}

func (m *mockBatchDao) Create(text string, flash bool) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batch = model.Batch{Id: 1, Text: text, Flash: flash, CreatedAt: time.Now()}
	return 1, nil
}

func (m *mockBatchDao) GetOneById(id uint32) (model.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batch, nil
}

func (m *mockBatchDao) GetAll() ([]model.Batch, error) {
	return nil, nil
}

func (m *mockBatchDao) RemoveOlderThanDays(days int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaned = true
	return nil
}

type mockRecipientDao struct {
	mu       sync.Mutex
	created  []model.Recipient
	statuses map[uint32]string
	channels map[uint32]string
	failed   []model.Recipient
	cleaned  bool
}

func newMockRecipientDao() *mockRecipientDao {
	return &mockRecipientDao{statuses: make(map[uint32]string), channels: make(map[uint32]string)}
}

func (m *mockRecipientDao) Create(batchId uint32, number, name string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uint32(len(m.created) + 1)
	m.created = append(m.created, model.Recipient{Id: id, BatchId: batchId, Number: number, Name: name, Status: model.PENDING})
	return id, nil
}

func (m *mockRecipientDao) UpdateStatus(id uint32, status, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = status
	m.channels[id] = channel
	return nil
}

func (m *mockRecipientDao) GetAllByBatchId(batchId uint32) ([]model.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Recipient(nil), m.created...), nil
}

func (m *mockRecipientDao) GetFailedByBatchId(batchId uint32) ([]model.Recipient, error) {
	return m.failed, nil
}

func (m *mockRecipientDao) GetAll() ([]model.Recipient, error) {
	return nil, nil
}

func (m *mockRecipientDao) RemoveOlderThanDays(days int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaned = true
	return nil
}

type mockStore struct {
	mu      sync.Mutex
	records []history.Record
	pruned  bool
}

func (m *mockStore) Append(r history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *mockStore) LoadAll() ([]history.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Record(nil), m.records...), nil
}

func (m *mockStore) Prune(maxAgeDays int) ([]history.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = true
	return m.records, nil
}

type env struct {
	registry     *mockRegistry
	client       *mockClient
	engine       *mockEngine
	batchDao     *mockBatchDao
	recipientDao *mockRecipientDao
	store        *mockStore
	service      Service
}

func createService(t *testing.T, cfg Config) *env {
	e := &env{
		registry: &mockRegistry{channels: []model.Channel{
			{Raw: "/dev/ttyUSB0", Canonical: "/dev/ttyUSB0", Label: "ttyUSB0", Status: model.UNKNOWN},
		}},
		client:       &mockClient{ready: true, rawOk: true, rawResponse: "OK"},
		engine:       newMockEngine(),
		batchDao:     &mockBatchDao{},
		recipientDao: newMockRecipientDao(),
		store:        &mockStore{},
	}
	if cfg.MessageMaxLen == 0 {
		cfg.MessageMaxLen = 300
	}
	if cfg.CountryPrefix == "" {
		cfg.CountryPrefix = PREFIX
	}
	e.service = NewService(e.registry, e.client, e.engine, e.batchDao, e.recipientDao, e.store, cfg)
	return e
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestService_SendMessage(t *testing.T) {
	e := createService(t, Config{})

	id, err := e.service.SendMessage(dto.Message{
		Text:       TEXT,
		Recipients: []dto.Recipient{{Number: NUMBER, Name: "Bob"}, {Number: NUMBER}},
		Numbers:    NUMBER2,
	})

	require.NoError(t, err)
	require.Equal(t, uint32(1), id.Id)

	waitFor(t, func() bool {
		e.engine.mu.Lock()
		defer e.engine.mu.Unlock()
		return e.engine.runCalls == 1
	})

	//duplicates removed, numbers normalized exactly once
	require.Len(t, e.engine.recipients, 2)
	require.Equal(t, "+55"+NUMBER, e.engine.recipients[0].Number)
	require.Equal(t, "Bob", e.engine.recipients[0].Name)
	require.Equal(t, "+55"+NUMBER2, e.engine.recipients[1].Number)

	e.client.mu.Lock()
	require.True(t, e.client.configWritten)
	e.client.mu.Unlock()

	//retention work is lazy, right after the batch
	waitFor(t, func() bool {
		e.store.mu.Lock()
		defer e.store.mu.Unlock()
		return e.store.pruned
	})
	waitFor(t, func() bool {
		e.batchDao.mu.Lock()
		defer e.batchDao.mu.Unlock()
		return e.batchDao.cleaned
	})
}

func TestService_SendMessageValidation(t *testing.T) {
	e := createService(t, Config{})

	_, err := e.service.SendMessage(dto.Message{Text: " ", Recipients: []dto.Recipient{{Number: NUMBER}}})
	require.IsType(t, &InvalidPayloadErr{}, err)

	_, err = e.service.SendMessage(dto.Message{Text: TEXT})
	require.IsType(t, &InvalidPayloadErr{}, err)

	e = createService(t, Config{MessageMaxLen: 3})
	_, err = e.service.SendMessage(dto.Message{Text: "too long", Recipients: []dto.Recipient{{Number: NUMBER}}})
	require.IsType(t, &InvalidPayloadErr{}, err)
}

func TestService_SendMessageNoChannels(t *testing.T) {
	e := createService(t, Config{ValidateModems: true})
	e.client.ready = false

	_, err := e.service.SendMessage(dto.Message{Text: TEXT, Recipients: []dto.Recipient{{Number: NUMBER}}})

	require.Equal(t, ErrNoChannels, err)

	//the run slot must have been released
	_, err = e.service.SendMessage(dto.Message{Text: TEXT, Recipients: []dto.Recipient{{Number: NUMBER}}})
	require.Equal(t, ErrNoChannels, err)
}

func TestService_CheckStatusOfBatch(t *testing.T) {
	e := createService(t, Config{})

	_, _ = e.batchDao.Create(TEXT, false)
	_, _ = e.recipientDao.Create(1, "+55"+NUMBER, "Bob")
	e.recipientDao.created[0].Status = model.SENT
	e.recipientDao.created[0].Channel = "ttyUSB0"

	status, err := e.service.CheckStatusOfBatch(1)

	require.NoError(t, err)
	require.Equal(t, uint32(1), status.Id)
	require.Equal(t, TEXT, status.Text)
	require.Equal(t, 1, status.Sent)
	require.Equal(t, 0, status.Pending)
	require.Len(t, status.Statuses, 1)
	require.Equal(t, "ttyUSB0", status.Statuses[0].Channel)
}

func TestService_ResendFailed(t *testing.T) {
	e := createService(t, Config{})
	_, _ = e.batchDao.Create(TEXT, true)
	e.recipientDao.failed = []model.Recipient{{Id: 5, BatchId: 1, Number: "+55" + NUMBER, Name: "Bob", Status: model.FAILED}}

	id, err := e.service.ResendFailed(1)

	require.NoError(t, err)
	require.Equal(t, uint32(1), id.Id)

	waitFor(t, func() bool {
		e.engine.mu.Lock()
		defer e.engine.mu.Unlock()
		return e.engine.runCalls == 1
	})
	require.Equal(t, TEXT, e.engine.text)
	require.Equal(t, "+55"+NUMBER, e.engine.recipients[0].Number)
}

func TestService_ResendFailedEmpty(t *testing.T) {
	e := createService(t, Config{})
	_, _ = e.batchDao.Create(TEXT, false)

	_, err := e.service.ResendFailed(1)

	require.IsType(t, &InvalidPayloadErr{}, err)
}

func TestService_ResendFromHistory(t *testing.T) {
	e := createService(t, Config{})
	now := time.Now()
	e.store.records = []history.Record{
		{Ts: now.Add(-3 * time.Hour), Number: "+55" + NUMBER, Message: "offer", Status: model.FAIL},
		{Ts: now.Add(-2 * time.Hour), Number: "+55" + NUMBER, Message: "offer", Status: model.OK},
		{Ts: now.Add(-time.Hour), Number: "+55" + NUMBER2, Message: "offer", Status: model.FAIL},
	}

	id, err := e.service.ResendFromHistory()

	require.NoError(t, err)
	require.Equal(t, uint32(1), id.Id)

	waitFor(t, func() bool {
		e.engine.mu.Lock()
		defer e.engine.mu.Unlock()
		return e.engine.runCalls == 1
	})

	//only the number whose latest record failed is retried
	require.Len(t, e.engine.recipients, 1)
	require.Equal(t, "+55"+NUMBER2, e.engine.recipients[0].Number)
	require.Equal(t, "offer", e.engine.text)
}

func TestService_ResendFromHistoryEmpty(t *testing.T) {
	e := createService(t, Config{})

	_, err := e.service.ResendFromHistory()

	require.IsType(t, &InvalidPayloadErr{}, err)
}

func TestService_History(t *testing.T) {
	e := createService(t, Config{})
	now := time.Now()
	e.store.records = []history.Record{
		{Ts: now.Add(-8 * 24 * time.Hour), Number: "+5511111111111", Status: model.OK},
		{Ts: now.Add(-2 * time.Hour), Number: "+5522222222222", Status: model.OK},
		{Ts: now.Add(-time.Hour), Number: "+5533333333333", Status: model.FAIL},
	}

	h, err := e.service.History("", 0)
	require.NoError(t, err)
	//record outside the retention window is invisible
	require.Equal(t, 2, h.Count)

	h, err = e.service.History(now.Add(-90*time.Minute).Format(time.RFC3339), 0)
	require.NoError(t, err)
	require.Equal(t, 1, h.Count)
	require.Equal(t, "+5533333333333", h.Items[0].Number)

	h, err = e.service.History("", 1)
	require.NoError(t, err)
	require.Equal(t, 1, h.Count)
	//limit keeps the newest records
	require.Equal(t, "+5533333333333", h.Items[0].Number)
}

func TestService_Report(t *testing.T) {
	e := createService(t, Config{})
	e.store.records = []history.Record{
		{Ts: time.Now(), Number: "+5511111111111", Status: model.OK, Device: "/dev/ttyUSB0"},
		{Ts: time.Now(), Number: "+5522222222222", Status: model.FAIL, Device: "/dev/ttyUSB0"},
	}

	r, err := e.service.Report()

	require.NoError(t, err)
	require.Equal(t, 2, r.Channels["/dev/ttyUSB0"].Total)
	require.Equal(t, 1, r.Channels["/dev/ttyUSB0"].Ok)
	require.Equal(t, 1, r.Channels["/dev/ttyUSB0"].Failed)
}

func TestService_Devices(t *testing.T) {
	e := createService(t, Config{ValidateModems: true, ProbeNumbers: true})

	devices := e.service.Devices()

	require.Len(t, devices, 1)
	require.Equal(t, model.READY, devices[0].Status)
	require.Equal(t, "+5511900000000", devices[0].Number)
	require.Equal(t, "ttyUSB0_0", devices[0].Section)
}

func TestService_RunCommands(t *testing.T) {
	e := createService(t, Config{})

	res, err := e.service.RunCommands(dto.RawCommands{Device: "/dev/ttyUSB0", Commands: []string{"AT"}, Baud: 115200})

	require.NoError(t, err)
	require.True(t, res.Ok)
	require.Equal(t, "OK", res.Response)

	_, err = e.service.RunCommands(dto.RawCommands{Device: "/dev/ttyUSB9", Commands: []string{"AT"}})
	require.IsType(t, &InvalidPayloadErr{}, err)

	_, err = e.service.RunCommands(dto.RawCommands{Device: "/dev/ttyUSB0"})
	require.IsType(t, &InvalidPayloadErr{}, err)
}

func TestService_FinalStatusesPersistedWithoutEvents(t *testing.T) {
	e := createService(t, Config{})

	//the engine mutates recipients in place but publishes nothing, the
	//way a saturated progress stream behaves; durable statuses must not
	//depend on event delivery
	e.engine.complete = func(recipients []*model.Recipient) {
		recipients[0].Status = model.SENT
		recipients[0].Channel = "ttyUSB0"
		recipients[1].Status = model.FAILED
		recipients[1].Channel = "ttyUSB0"
		recipients[2].Status = model.SKIPPED
	}

	_, err := e.service.SendMessage(dto.Message{
		Text: TEXT,
		Recipients: []dto.Recipient{
			{Number: NUMBER}, {Number: NUMBER2}, {Number: "11911111111"},
		},
	})
	require.NoError(t, err)

	waitFor(t, func() bool {
		e.recipientDao.mu.Lock()
		defer e.recipientDao.mu.Unlock()
		return e.recipientDao.statuses[1] == model.SENT &&
			e.recipientDao.statuses[2] == model.FAILED &&
			e.recipientDao.statuses[3] == model.SKIPPED
	})

	e.recipientDao.mu.Lock()
	require.Equal(t, "ttyUSB0", e.recipientDao.channels[1])
	require.Equal(t, "ttyUSB0", e.recipientDao.channels[2])
	e.recipientDao.mu.Unlock()
}

func TestService_ReleaseDevices(t *testing.T) {
	e := createService(t, Config{})

	results, err := e.service.ReleaseDevices()

	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "/dev/ttyUSB0", results[0].Device)
	require.True(t, results[0].Ok)
	require.Equal(t, "1234", results[0].Response)
	require.Equal(t, []string{"/dev/ttyUSB0"}, e.client.released)
}

func TestService_ReleaseDevicesNoDevices(t *testing.T) {
	e := createService(t, Config{})
	e.registry.channels = nil

	_, err := e.service.ReleaseDevices()

	require.IsType(t, &InvalidPayloadErr{}, err)
}

func TestService_ReleaseDevicesBusy(t *testing.T) {
	e := createService(t, Config{})
	atomic.StoreInt32(&e.service.(*service).running, 1)
	defer atomic.StoreInt32(&e.service.(*service).running, 0)

	_, err := e.service.ReleaseDevices()

	require.Equal(t, ErrBusy, err)
	require.Empty(t, e.client.released)
}

func TestService_StopDispatchIdle(t *testing.T) {
	e := createService(t, Config{})

	require.False(t, e.service.StopDispatch())
}

func TestService_EventUpdatesRecipientStatus(t *testing.T) {
	e := createService(t, Config{})
	_, _ = e.recipientDao.Create(1, "+55"+NUMBER, "Bob")

	e.engine.events <- dispatch.Event{Kind: dispatch.EventRecipient, RecipientId: 1, Status: model.SENT, Channel: "ttyUSB0"}

	waitFor(t, func() bool {
		e.recipientDao.mu.Lock()
		defer e.recipientDao.mu.Unlock()
		return e.recipientDao.statuses[1] == model.SENT
	})
}
