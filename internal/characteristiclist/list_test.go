package characteristiclist

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/charlist/internal/device"
	"github.com/srg/charlist/internal/testutils"
	"github.com/srg/charlist/internal/ui/expandable"
	"github.com/srg/charlist/internal/ui/snackbar"
	"github.com/stretchr/testify/suite"
)

const (
	testAddress = "AA:BB:CC:DD:EE:FF"
	uartService = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
)

type notification struct {
	message string
	kind    snackbar.Type
	label   string
	action  func()
}

// recordingNotifier keeps every notification instead of printing it
type recordingNotifier struct {
	mu    sync.Mutex
	shown []notification
}

func (n *recordingNotifier) Show(message string, t snackbar.Type, actionLabel string, action func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, notification{message: message, kind: t, label: actionLabel, action: action})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notification, len(n.shown))
	copy(out, n.shown)
	return out
}

// nilBroker connects to a device that answers with no response at all
type nilBroker struct{}

func (nilBroker) ConnectToDevice(_ context.Context, address string) (device.DeviceHandle, error) {
	return nilHandle(address), nil
}

type nilHandle string

func (h nilHandle) Address() string { return string(h) }

func (nilHandle) GetCharacteristics(context.Context, string) (*device.CharacteristicsResponse, error) {
	return nil, nil
}

// yieldingBroker yields the processor on every call so racing loads interleave
type yieldingBroker struct {
	calls atomic.Int32
}

func (b *yieldingBroker) ConnectToDevice(_ context.Context, address string) (device.DeviceHandle, error) {
	b.calls.Add(1)
	runtime.Gosched()
	return nilHandle(address), nil
}

// ListTestSuite covers loading, failure reporting and rendering of a characteristic list
type ListTestSuite struct {
	suite.Suite
	helper   *testutils.TestHelper
	notifier *recordingNotifier
}

func (s *ListTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.notifier = &recordingNotifier{}
}

func (s *ListTestSuite) newList(broker device.Broker) *List {
	return NewList(broker, s.notifier, s.helper.Logger)
}

func (s *ListTestSuite) uartBroker() *testutils.FakeBroker {
	return testutils.CreateMockBroker().
		WithDevice(testAddress).
		WithService(uartService).
		WithCharacteristic("6e400003-b5a3-f393-e0a9-e50e24dcca9e", "notify").
		WithCharacteristic("6e400002-b5a3-f393-e0a9-e50e24dcca9e", "write,write_without_response").
		WithService("180F").
		Build()
}

func (s *ListTestSuite) TestNewListStartsLoading() {
	l := s.newList(s.uartBroker())

	s.True(l.IsLoading(), "new list MUST be loading")
	s.False(l.Requested())
	s.Equal(EmptyMessage, l.EmptyMessage())
	s.Nil(l.LastError())
}

func (s *ListTestSuite) TestLoadPopulatesInResponseOrder() {
	// GOAL: A successful load replaces the data with the broker result, in order
	//
	// TEST SCENARIO: Load UART service → two items in device order, loading cleared, no notification

	broker := s.uartBroker()
	l := s.newList(broker)

	s.True(l.Load(context.Background(), testAddress, uartService), "load MUST issue a request")

	s.False(l.IsLoading(), "loading MUST be cleared after success")
	s.False(l.Requested(), "requested MUST be cleared after success")
	s.Nil(l.LastError())
	s.Require().Equal(2, l.Len())

	items := l.Items()
	s.Equal("6e400003b5a3f393e0a9e50e24dcca9e", items[0].(*ListItem).Info().UUID.UUID)
	s.Equal("6e400002b5a3f393e0a9e50e24dcca9e", items[1].(*ListItem).Info().UUID.UUID)
	s.Equal(device.PropertyWrite|device.PropertyWriteWithoutResponse, items[1].(*ListItem).Info().Properties)

	s.Equal(1, broker.ConnectCalls())
	s.Equal(1, broker.FetchCalls())
	s.Equal(uartService, broker.LastServiceID(), "service id MUST be passed through unchanged")
	s.Empty(s.notifier.all(), "success MUST NOT notify")
	s.Contains(s.helper.Messages(logrus.InfoLevel), "Characteristics loaded")
}

func (s *ListTestSuite) TestLoadEmptyService() {
	l := s.newList(s.uartBroker())

	s.True(l.Load(context.Background(), testAddress, "180F"))

	s.True(l.IsEmpty())
	s.False(l.IsLoading())

	var buf bytes.Buffer
	s.Require().NoError(l.Render(&buf, expandable.RenderOptions{}))
	s.Equal("No Characteristics Found\n", buf.String())
}

func (s *ListTestSuite) TestLoadNilResponseIsEmpty() {
	l := s.newList(nilBroker{})

	s.True(l.Load(context.Background(), testAddress, "180F"))

	s.True(l.IsEmpty(), "missing response MUST be treated as no characteristics")
	s.False(l.IsLoading())
	s.Empty(s.notifier.all())
}

func (s *ListTestSuite) TestLoadIgnoredWhenNotLoading() {
	broker := s.uartBroker()
	l := s.newList(broker)
	l.SetLoading(false)

	s.False(l.Load(context.Background(), testAddress, uartService), "load MUST be a no-op when not loading")
	s.Zero(broker.ConnectCalls(), "broker MUST NOT be contacted")
	s.False(l.Requested(), "ignored load MUST NOT leave a request in flight")
	s.Empty(s.notifier.all())
}

func (s *ListTestSuite) TestReloadAfterSetLoading() {
	broker := s.uartBroker()
	l := s.newList(broker)
	ctx := context.Background()

	s.True(l.Load(ctx, testAddress, uartService))
	s.False(l.Load(ctx, testAddress, uartService), "populated list MUST ignore load")

	l.SetLoading(true)
	s.True(l.Load(ctx, testAddress, "180F"), "list MUST reload once loading again")
	s.True(l.IsEmpty(), "reload MUST replace the previous data")
	s.Equal(2, broker.ConnectCalls())
}

func (s *ListTestSuite) TestLoadSingleFlight() {
	// GOAL: At most one broker request is in flight per list
	//
	// TEST SCENARIO: Hold connect, load async, load again → second load dropped, one connect total

	broker := s.uartBroker()
	entered, release := broker.Hold()
	defer release()
	l := s.newList(broker)
	ctx := context.Background()

	done := l.LoadAsync(ctx, testAddress, uartService)
	select {
	case <-entered:
	case <-time.After(time.Second):
		s.FailNow("first load MUST reach the broker")
	}

	s.True(l.Requested(), "requested MUST be set while in flight")
	s.False(l.Load(ctx, testAddress, uartService), "second load MUST be dropped while in flight")
	s.Equal(1, broker.ConnectCalls(), "broker MUST NOT be called twice")

	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.FailNow("first load MUST finish after release")
	}

	s.False(l.Requested())
	s.Equal(2, l.Len())
	s.Equal(1, broker.ConnectCalls())
}

func (s *ListTestSuite) TestLoadConcurrentCallers() {
	broker := s.uartBroker()
	entered, release := broker.Hold()
	defer release()
	l := s.newList(broker)
	ctx := context.Background()

	const callers = 10
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		go func() { results <- l.Load(ctx, testAddress, uartService) }()
	}

	select {
	case <-entered:
	case <-time.After(time.Second):
		s.FailNow("one load MUST reach the broker")
	}
	for i := 0; i < callers-1; i++ {
		select {
		case issued := <-results:
			s.False(issued, "only one caller MUST issue a request")
		case <-time.After(time.Second):
			s.FailNow("dropped loads MUST return immediately")
		}
	}

	release()
	s.True(<-results)
	s.Equal(1, broker.ConnectCalls())
}

func (s *ListTestSuite) TestLoadRacingCompletedLoad() {
	// GOAL: A caller that arrives while another load is finishing MUST NOT issue a second
	// request once the list has stopped loading
	//
	// TEST SCENARIO: Repeatedly race 4 loads on a fresh list → exactly one broker call per list

	const (
		rounds  = 2000
		callers = 4
	)
	ctx := context.Background()

	for round := 0; round < rounds; round++ {
		broker := &yieldingBroker{}
		l := s.newList(broker)

		var start, done sync.WaitGroup
		start.Add(1)
		done.Add(callers)
		for i := 0; i < callers; i++ {
			go func() {
				defer done.Done()
				start.Wait()
				runtime.Gosched()
				l.Load(ctx, testAddress, uartService)
			}()
		}
		start.Done()
		done.Wait()

		if !s.Equal(int32(1), broker.calls.Load(), "round %d: single-shot list MUST reach the broker once", round) {
			return
		}
		s.False(l.IsLoading())
		s.False(l.Requested(), "a dropped load MUST release the in-flight flag")
	}
}

func (s *ListTestSuite) TestConnectFailureNotifiesWithRetry() {
	// GOAL: A failed load shows one error notification naming the address, and its Retry
	// action issues exactly one new load with the same arguments
	//
	// TEST SCENARIO: First connect times out → one notification; run Retry → data loaded, no new notification

	broker := s.uartBroker()
	timeout := errors.New("connection timeout")
	broker.FailNextConnects(1, timeout)
	l := s.newList(broker)

	s.True(l.Load(context.Background(), testAddress, uartService))

	shown := s.notifier.all()
	s.Require().Len(shown, 1, "failure MUST show exactly one notification")
	s.Equal(testAddress+": connection timeout", shown[0].message)
	s.Equal(snackbar.Error, shown[0].kind)
	s.Equal(RetryLabel, shown[0].label)
	s.Require().NotNil(shown[0].action)

	s.True(l.IsLoading(), "failure MUST keep the list loading")
	s.False(l.Requested(), "requested MUST be cleared after failure")
	s.Zero(l.Len())

	var fetchErr *FetchError
	s.Require().ErrorAs(l.LastError(), &fetchErr)
	s.Equal(testAddress, fetchErr.Address)
	s.Equal(uartService, fetchErr.ServiceID)
	s.ErrorIs(l.LastError(), timeout)
	s.Contains(s.helper.Messages(logrus.WarnLevel), "Failed to load characteristics")

	shown[0].action()

	s.Equal(2, broker.ConnectCalls(), "retry MUST issue exactly one new request")
	s.Equal(uartService, broker.LastServiceID(), "retry MUST reuse the service id")
	s.Equal(2, l.Len())
	s.False(l.IsLoading())
	s.Nil(l.LastError())
	s.Len(s.notifier.all(), 1, "successful retry MUST NOT notify")
}

func (s *ListTestSuite) TestFetchFailureRetryNotifiesAgain() {
	broker := testutils.CreateMockBrokerFromJSON(`{
		"devices": [{
			"address": "%s",
			"fetch_error": "att: insufficient authentication",
			"services": [{ "uuid": "180F" }]
		}]
	}`, testAddress).Build()
	l := s.newList(broker)

	s.True(l.Load(context.Background(), testAddress, "180F"))
	for attempt := 1; attempt <= 3; attempt++ {
		shown := s.notifier.all()
		s.Require().Len(shown, attempt, "each failed attempt MUST notify once")
		s.Equal(testAddress+": att: insufficient authentication", shown[attempt-1].message)
		s.Equal(attempt, broker.FetchCalls())

		shown[attempt-1].action()
	}
	s.Equal(4, broker.ConnectCalls())
	s.True(l.IsLoading())
}

func (s *ListTestSuite) TestRetryAfterRecoveryIsNoop() {
	broker := s.uartBroker()
	broker.FailNextConnects(1, errors.New("connection timeout"))
	l := s.newList(broker)
	ctx := context.Background()

	s.True(l.Load(ctx, testAddress, uartService))
	s.True(l.Load(ctx, testAddress, uartService), "a direct reload MUST proceed")

	s.notifier.all()[0].action()

	s.Equal(2, broker.ConnectCalls(), "stale retry MUST NOT contact the broker")
	s.Equal(2, l.Len())
}

func (s *ListTestSuite) TestLoadFromFixture() {
	profile, err := testutils.LoadFixture("internal/characteristiclist/testdata/nordic_uart.yaml")
	s.Require().NoError(err)
	broker := testutils.NewBrokerBuilder().FromYAML(profile).Build()
	l := s.newList(broker)

	s.True(l.Load(context.Background(), "c0:98:e5:49:00:01", "180a"))
	s.Require().Equal(1, l.Len())
	s.Equal("Characteristic: 2a29 (Manufacturer Name String)", l.Items()[0].Brief())
}

func (s *ListTestSuite) TestRender() {
	l := s.newList(testutils.CreateMockBroker().
		WithDevice(testAddress).
		WithService("180F").
		WithCharacteristic("2A19", "read,notify").
		WithCharacteristic("2A1A", "").
		Build())

	var buf bytes.Buffer
	s.Require().NoError(l.Render(&buf, expandable.RenderOptions{}))
	s.Equal("Loading characteristics...\n", buf.String())

	s.True(l.Load(context.Background(), testAddress, "180F"))

	buf.Reset()
	s.Require().NoError(l.Render(&buf, expandable.RenderOptions{}))
	testutils.NewTextAsserter(s.T()).Assert(buf.String(), `▸ Characteristic: 2a19 (Battery Level)
▸ Characteristic: 2a1a
`)

	l.ExpandAll(true)
	buf.Reset()
	s.Require().NoError(l.Render(&buf, expandable.RenderOptions{}))
	testutils.NewTextAsserter(s.T()).Assert(buf.String(), `▾ Characteristic: 2a19 (Battery Level)
  Characteristic Info
    ID    180f/0003
    UUID  2a19
  Properties
    Broadcast                      ✘
    Read                           ✔
    Write Without Response         ✘
    Write                          ✘
    Notify                         ✔
    Indicate                       ✘
    Authenticated Signed Writes    ✘
    Extended Properties            ✘
    Reliable Write                 ✘
    Writable Auxiliaries           ✘
    Read Encrypted                 ✘
    Write Encrypted                ✘
    Read Encrypted Authenticated   ✘
    Write Encrypted Authenticated  ✘
▾ Characteristic: 2a1a
  Characteristic Info
    ID    180f/0006
    UUID  2a1a
  Properties
    Broadcast                      ✘
    Read                           ✘
    Write Without Response         ✘
    Write                          ✘
    Notify                         ✘
    Indicate                       ✘
    Authenticated Signed Writes    ✘
    Extended Properties            ✘
    Reliable Write                 ✘
    Writable Auxiliaries           ✘
    Read Encrypted                 ✘
    Write Encrypted                ✘
    Read Encrypted Authenticated   ✘
    Write Encrypted Authenticated  ✘
`)
}

func (s *ListTestSuite) TestMarshalJSON() {
	l := s.newList(s.uartBroker())

	testutils.NewJSONAsserter(s.T()).AssertValue(l, `[]`)

	s.True(l.Load(context.Background(), testAddress, uartService))
	testutils.NewJSONAsserter(s.T()).AssertValue(l, `[
		{
			"id": "6e400001b5a3f393e0a9e50e24dcca9e/0003",
			"uuid": { "uuid": "6e400003b5a3f393e0a9e50e24dcca9e" },
			"name": "Nordic UART TX",
			"properties": { "notify": true, "write": false }
		},
		{
			"id": "6e400001b5a3f393e0a9e50e24dcca9e/0006",
			"uuid": { "uuid": "6e400002b5a3f393e0a9e50e24dcca9e" },
			"name": "Nordic UART RX",
			"properties": { "notify": false, "write": true, "write_without_response": true }
		}
	]`)
}

func TestListTestSuite(t *testing.T) {
	suite.Run(t, new(ListTestSuite))
}
