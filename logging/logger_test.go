package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"
	"github.com/rs/zerolog"
)

type LoggingSuite struct{}

func TestLogging(t *testing.T) {
	suite.RunTests(t, &LoggingSuite{})
}

func (LoggingSuite) TestParseLevel(t *testing.T) {
	for name, level := range map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"debug":    zerolog.DebugLevel,
		"":         zerolog.InfoLevel,
		"info":     zerolog.InfoLevel,
		"warn":     zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
	} {
		parsed, err := ParseLevel(name)
		expect.Nil(t, err)
		expect.Equal(t, level, parsed)
	}

	_, err := ParseLevel("loud")
	expect.Error(t, err, "invalid log level (loud)")
}

func (LoggingSuite) TestTraceLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "trace", Output: buf})

	logger.Trace().Msg("trace message")
	logger.Debug().Msg("debug message")

	output := buf.String()
	expect.True(t, strings.Contains(output, "trace message"))
	expect.True(t, strings.Contains(output, "debug message"))
}

func (LoggingSuite) TestDebugLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "debug", Output: buf})

	logger.Trace().Msg("trace message")
	logger.Debug().Msg("debug message")

	output := buf.String()
	expect.False(t, strings.Contains(output, "trace message"))
	expect.True(t, strings.Contains(output, "debug message"))
}

func (LoggingSuite) TestInvalidLevelFallsBackToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "loud", Output: buf})

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")

	output := buf.String()
	expect.False(t, strings.Contains(output, "debug message"))
	expect.True(t, strings.Contains(output, "info message"))
}

func (LoggingSuite) TestComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewWithComponent(Config{Level: "info", Output: buf}, "argspec")

	logger.Info().Msg("hello")

	expect.True(t, strings.Contains(buf.String(), `"component":"argspec"`))
}

func (LoggingSuite) TestPretty(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "info", Pretty: true, Output: buf})

	logger.Info().Str("function", "main").Msg("pretty message")

	output := buf.String()
	expect.True(t, strings.Contains(output, "pretty message"))
	expect.False(t, strings.HasPrefix(output, "{"))
}
