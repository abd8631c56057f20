package handler

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/airenas/vidsearch/internal/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/vgarvardt/gue/v5"
)

type testMsg struct {
	ID string `json:"id"`
}

type testData struct {
	err      error
	calls    int
	failures int
	got      string
}

func handle(ctx context.Context, m *testMsg, data *testData) error {
	data.calls++
	data.got = m.ID
	return data.err
}

func newOpts(data *testData) *Opts[testMsg] {
	return DefaultOpts[testMsg]().WithBackoff(NoBackoff()).WithFailure(func(ctx context.Context, m *testMsg, err error) error {
		data.failures++
		return nil
	})
}

func TestCreate(t *testing.T) {
	data := &testData{}
	f := Create(data, handle, newOpts(data))
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`)})
	assert.Nil(t, err)
	assert.Equal(t, 1, data.calls)
	assert.Equal(t, "olia", data.got)
	assert.Equal(t, 0, data.failures)
}

func TestCreate_WrongJSON_Drops(t *testing.T) {
	data := &testData{}
	f := Create(data, handle, newOpts(data))
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":`)})
	assert.Nil(t, err)
	assert.Equal(t, 0, data.calls)
}

func TestCreate_Retry(t *testing.T) {
	data := &testData{err: io.EOF}
	f := Create(data, handle, newOpts(data))
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`), ErrorCount: 1})
	assert.NotNil(t, err)
	assert.Equal(t, 0, data.failures)
}

func TestCreate_RetriesExhausted(t *testing.T) {
	data := &testData{err: io.EOF}
	f := Create(data, handle, newOpts(data))
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`), ErrorCount: 3})
	assert.Nil(t, err)
	assert.Equal(t, 1, data.failures)
}

func TestCreate_Permanent_NoRetry(t *testing.T) {
	data := &testData{err: fmt.Errorf("can't: %w", utils.NewErrPermanent(io.EOF))}
	f := Create(data, handle, newOpts(data))
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`)})
	assert.Nil(t, err)
	assert.Equal(t, 1, data.failures)
}

func TestCreate_FailureHandlerFails_Retry(t *testing.T) {
	data := &testData{err: io.EOF}
	opts := DefaultOpts[testMsg]().WithBackoff(NoBackoff()).WithFailure(func(ctx context.Context, m *testMsg, err error) error {
		return io.ErrUnexpectedEOF
	})
	f := Create(data, handle, opts)
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`), ErrorCount: 3})
	assert.NotNil(t, err)
	err = f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`), ErrorCount: 6})
	assert.Nil(t, err)
}

func TestCreate_Timeout(t *testing.T) {
	data := &testData{}
	var deadline time.Time
	f := Create(data, func(ctx context.Context, m *testMsg, data *testData) error {
		deadline, _ = ctx.Deadline()
		return nil
	}, DefaultOpts[testMsg]().WithTimeout(time.Minute))
	err := f(context.Background(), &gue.Job{Args: []byte(`{"id":"olia"}`)})
	assert.Nil(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, time.Second)
}

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()
	for i := 0; i < 10; i++ {
		d := b(2)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 20*time.Second)
	}
	assert.Equal(t, time.Duration(0), DefaultBackoffOrTest(true)(5))
}
