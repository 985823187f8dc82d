package logging

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"go.viam.com/test"
)

type BasicStruct struct {
	X int
	y string
}

// assertLogMatches will fuzzy match log lines. Notably, this checks the time format, but ignores
// the exact time. And it expects a match on the filename, but the exact line number can be wrong.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualParts := strings.Split(strings.TrimSuffix(output, "\n"), "\t")
	expectedParts := strings.Split(expected, "\t")
	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	// Use the length of the first string as a weak verification of checking that the result looks like a date.
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))

	for idx := 1; idx < len(expectedParts); idx++ {
		expectedFilename, _, isCaller := strings.Cut(expectedParts[idx], ".go:")
		if isCaller {
			actualFilename, actualLineNumber, found := strings.Cut(actualParts[idx], ".go:")
			test.That(t, found, test.ShouldBeTrue)
			test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
			_, err = strconv.Atoi(actualLineNumber)
			test.That(t, err, test.ShouldBeNil)
			continue
		}
		if strings.HasPrefix(expectedParts[idx], "{") {
			// JSON encoding of maps is compared as maps.
			expectedMap := make(map[string]any)
			test.That(t, json.Unmarshal([]byte(expectedParts[idx]), &expectedMap), test.ShouldBeNil)
			actualMap := make(map[string]any)
			test.That(t, json.Unmarshal([]byte(actualParts[idx]), &actualMap), test.ShouldBeNil)
			test.That(t, actualMap, test.ShouldResemble, expectedMap)
			continue
		}
		test.That(t, actualParts[idx], test.ShouldEqual, expectedParts[idx])
	}
}

func TestConsoleOutputFormat(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := newImpl("", DEBUG, clock.New(), NewWriterAppender(notStdout))

	logger.Info("impl Info log")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:12:09.459Z	INFO	logging/impl_test.go:67	impl Info log`)

	logger.Infof("impl %s log", "infof")
	assertLogMatches(t, notStdout,
		`2023-10-30T09:45:20.764Z	INFO	logging/impl_test.go:131	impl infof log`)

	logger.Infow("impl logw", "key", "value")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:19:45.806Z	INFO	logging/impl_test.go:132	impl logw	{"key":"value"}`)

	// Only public fields are serialized.
	logger.Warnw("BasicStruct", "implOneKey", "1val", "BasicStruct", BasicStruct{1, "alice"})
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129Z	WARN	logging/impl_test.go:125	BasicStruct	{"BasicStruct":{"X":1},"implOneKey":"1val"}`)

	logger.Errorw("unpaired", "lonely")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129Z	ERROR	logging/impl_test.go:125	unpaired	{"lonely":"unpaired log key"}`)
}

func TestSubloggerAndLevels(t *testing.T) {
	notStdout := &bytes.Buffer{}
	logger := newImpl("replay", INFO, clock.New(), NewWriterAppender(notStdout))

	logger.Debug("hidden")
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	sub := logger.Sublogger("decoder")
	sub.Warnf("line %d", 3)
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129Z	WARN	replay.decoder	logging/impl_test.go:90	line 3`)

	// Subloggers copy the level rather than share it.
	sub.SetLevel(ERROR)
	test.That(t, logger.GetLevel(), test.ShouldEqual, INFO)
	sub.Warn("hidden")
	test.That(t, notStdout.Len(), test.ShouldEqual, 0)

	logger.SetLevel(DEBUG)
	logger.Debug("shown")
	assertLogMatches(t, notStdout,
		`2023-10-30T13:20:47.129Z	DEBUG	replay	logging/impl_test.go:100	shown`)

	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestEntryTimeFromClock(t *testing.T) {
	notStdout := &bytes.Buffer{}
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 14, 30, 0, 0, time.FixedZone("CEST", 2*60*60)))
	logger := newImpl("replay", DEBUG, mock, NewWriterAppender(notStdout))

	logger.Info("fused")
	line, err := notStdout.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	// Console lines are printed in UTC.
	test.That(t, strings.HasPrefix(line, "2024-05-01T12:30:00.000Z\tINFO\treplay\t"), test.ShouldBeTrue)

	mock.Add(1500 * time.Millisecond)
	logger.Sublogger("runner").Debug("paced")
	line, err = notStdout.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	test.That(t, strings.HasPrefix(line, "2024-05-01T12:30:01.500Z\tDEBUG\treplay.runner\t"), test.ShouldBeTrue)
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Infow("fused", "innovation", 0.5)
	logger.Sublogger("sub").Error("bad sample")

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	test.That(t, logs.FilterMessage("fused").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterField(zap.Float64("innovation", 0.5)).Len(), test.ShouldEqual, 1)
	test.That(t, logs.All()[1].LoggerName, test.ShouldEqual, "sub")
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.out)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"error"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, ERROR)
	test.That(t, json.Unmarshal([]byte(`"loud"`), &level), test.ShouldNotBeNil)
	test.That(t, level, test.ShouldEqual, ERROR)
}
