package utils

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrPermanent_Error(t *testing.T) {
	assert.Equal(t, "permanent error: olia", NewErrPermanent(errors.New("olia")).Error())
}

func TestErrPermanent_Unwrap(t *testing.T) {
	assert.True(t, errors.Is(NewErrPermanent(io.EOF), io.EOF))
}

func TestNewErrPermanent_Nil(t *testing.T) {
	assert.Nil(t, NewErrPermanent(nil))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(NewErrPermanent(io.EOF)))
	assert.True(t, IsPermanent(fmt.Errorf("can't do: %w", NewErrPermanent(io.EOF))))
	assert.False(t, IsPermanent(io.EOF))
	assert.False(t, IsPermanent(nil))
}
