package server

import (
	"context"
	"errors"
	"testing"

	xlogger "SignalPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
)

type plainDriver struct{}

func (plainDriver) Run(ctx context.Context) error { <-ctx.Done(); return nil }

type primingDriver struct {
	plainDriver
	primed int
	err    error
}

func (d *primingDriver) Prime(context.Context) error {
	d.primed++
	return d.err
}

func TestPrimeDriver(t *testing.T) {
	a := &App{logger: xlogger.Nop(), driver: plainDriver{}}
	assert.False(t, a.primeDriver(context.Background()), "driver without backlog")

	d := &primingDriver{}
	a.driver = d
	assert.True(t, a.primeDriver(context.Background()))
	assert.Equal(t, 1, d.primed)

	d.err = errors.New("prime timeout")
	assert.False(t, a.primeDriver(context.Background()))
	assert.Equal(t, 2, d.primed)
}
