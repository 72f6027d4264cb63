package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunMapsOutcomesToExitCodes(t *testing.T) {
	restore := execute
	defer func() { execute = restore }()

	execute = func(ctx context.Context) error { return nil }
	assert.Equal(t, 0, run(context.Background()))

	execute = func(ctx context.Context) error { return errors.New("boom") }
	assert.Equal(t, 1, run(context.Background()))

	execute = func(ctx context.Context) error { return context.Canceled }
	assert.Equal(t, 0, run(context.Background()), "an interrupt counts as a clean exit")
}

func TestHandlePanicReportsAndExits(t *testing.T) {
	var buf bytes.Buffer
	var code int
	restoreStderr, restoreExit := stderr, osExit
	defer func() { stderr, osExit = restoreStderr, restoreExit }()
	stderr = &buf
	osExit = func(c int) { code = c }

	func() {
		defer handlePanic()
		panic("boom")
	}()

	assert.Equal(t, 2, code)
	assert.Contains(t, buf.String(), "panic: boom")
	assert.Contains(t, buf.String(), "goroutine", "the report includes a stack trace")
}

func TestHandlePanicNoopWithoutPanic(t *testing.T) {
	var code = -1
	restoreExit := osExit
	defer func() { osExit = restoreExit }()
	osExit = func(c int) { code = c }

	func() {
		defer handlePanic()
	}()

	assert.Equal(t, -1, code, "no panic, no exit")
}
