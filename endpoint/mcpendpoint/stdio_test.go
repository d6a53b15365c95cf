package mcpendpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/goosecore/agentcore/endpoint"
)

func TestTransportErr_MapsExpiredContextToTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	err := transportErr(ctx, errors.New("child process closed the pipe"))
	assert.Equal(t, endpoint.ErrTimeout, err.Kind)
}

func TestTransportErr_MapsLiveContextToTransport(t *testing.T) {
	err := transportErr(context.Background(), errors.New("child process closed the pipe"))
	assert.Equal(t, endpoint.ErrTransport, err.Kind)
}
