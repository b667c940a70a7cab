package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Hook   *logtest.Hook
}

// NewTestHelper creates a test helper with a debug logger whose entries are captured
// by Hook instead of printed.
func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Hook:   hook,
	}
}

// Messages returns the captured log messages at level, oldest first
func (h *TestHelper) Messages(level logrus.Level) []string {
	var out []string
	for _, e := range h.Hook.AllEntries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// CreateMockBroker starts a fake broker profile.
//
// Example:
//
//	broker := testutils.CreateMockBroker().
//		WithDevice("AA:BB:CC:DD:EE:FF").
//		WithService("180F").
//		WithCharacteristic("2A19", "read,notify").
//		Build()
func CreateMockBroker() *BrokerBuilder {
	return NewBrokerBuilder()
}

// CreateMockBrokerFromJSON builds a fake broker profile from JSON.
//
// Example:
//
//	broker := testutils.CreateMockBrokerFromJSON(`{
//		"devices": [{
//			"address": "%s",
//			"services": [
//				{
//					"uuid": "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
//					"characteristics": [
//						{ "uuid": "6e400003-b5a3-f393-e0a9-e50e24dcca9e", "properties": "notify" },
//						{ "uuid": "6e400002-b5a3-f393-e0a9-e50e24dcca9e", "properties": "write,write_without_response" }
//					]
//				}
//			]
//		}]
//	}`, address).Build()
func CreateMockBrokerFromJSON(jsonStrFmt string, args ...interface{}) *BrokerBuilder {
	return NewBrokerBuilder().FromJSON(jsonStrFmt, args...)
}

// LoadFixture reads a file relative to the module root
func LoadFixture(relPath string) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	// Walk up to the directory holding go.mod
	projectRoot := wd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			return "", fmt.Errorf("could not find project root (go.mod not found)")
		}
		projectRoot = parent
	}

	fullPath := filepath.Join(projectRoot, relPath)
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", fullPath, err)
	}
	return string(data), nil
}
