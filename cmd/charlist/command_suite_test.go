package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/charlist/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent fake device identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

func init() {
	color.NoColor = true
}

// closingFakeBroker counts Close calls on top of the fake broker
type closingFakeBroker struct {
	*testutils.FakeBroker
	closed atomic.Int32
}

func (b *closingFakeBroker) Close() error {
	b.closed.Add(1)
	return nil
}

// CommandResult is the outcome of one command execution
type CommandResult struct {
	Stdout string
	Stderr string
	Err    error
}

// CommandTestSuite swaps the broker factory and terminal detection for fakes.
// All cmd/charlist test suites should embed it.
type CommandTestSuite struct {
	suite.Suite
	Broker        *closingFakeBroker
	BrokerCreated int
	Timeout       time.Duration
	Terminal      bool

	savedNewBroker  func(*logrus.Logger, time.Duration) closableBroker
	savedIsTerminal func(any) bool
}

func (s *CommandTestSuite) SetupTest() {
	s.savedNewBroker = newBroker
	s.savedIsTerminal = isTerminal

	s.Broker = &closingFakeBroker{FakeBroker: testutils.CreateMockBrokerFromJSON(`{
		"devices": [
			{
				"address": "%s",
				"services": [
					{
						"uuid": "180F",
						"characteristics": [{ "uuid": "2A19", "properties": "read,notify" }]
					},
					{
						"uuid": "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
						"characteristics": [
							{ "uuid": "6e400003-b5a3-f393-e0a9-e50e24dcca9e", "properties": "notify" },
							{ "uuid": "6e400002-b5a3-f393-e0a9-e50e24dcca9e", "properties": "write,write_without_response" }
						]
					},
					{ "uuid": "180A" }
				]
			},
			{ "address": "%s", "fetch_error": "att: insufficient authentication", "services": [{ "uuid": "180F" }] }
		]
	}`, TestDeviceAddress1, TestDeviceAddress2).Build()}
	s.BrokerCreated = 0
	s.Timeout = 0
	s.Terminal = false

	newBroker = func(_ *logrus.Logger, connectTimeout time.Duration) closableBroker {
		s.BrokerCreated++
		s.Timeout = connectTimeout
		return s.Broker
	}
	isTerminal = func(any) bool { return s.Terminal }
}

func (s *CommandTestSuite) TearDownTest() {
	newBroker = s.savedNewBroker
	isTerminal = s.savedIsTerminal
}

// Execute runs the root command with args and stdin, capturing both output streams
func (s *CommandTestSuite) Execute(stdin string, args ...string) CommandResult {
	return s.ExecuteContext(context.Background(), strings.NewReader(stdin), args...)
}

// ExecuteContext runs the root command under ctx reading stdin from in
func (s *CommandTestSuite) ExecuteContext(ctx context.Context, in io.Reader, args ...string) CommandResult {
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(in)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return CommandResult{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}
