package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	lines []string
}

func (r *recorder) Debug(m string, _ ...any) { r.lines = append(r.lines, "debug:"+m) }
func (r *recorder) Info(m string, _ ...any)  { r.lines = append(r.lines, "info:"+m) }
func (r *recorder) Warn(m string, _ ...any)  { r.lines = append(r.lines, "warn:"+m) }
func (r *recorder) Error(m string, _ ...any) { r.lines = append(r.lines, "error:"+m) }
func (r *recorder) Fatal(m string, _ ...any) { r.lines = append(r.lines, "fatal:"+m) }

func TestDispatchesToEveryBackend(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Init(a, b)
	t.Cleanup(func() { Init() })

	Info("[Test] hello", "k", 1)
	Warn("[Test] careful")

	assert.Equal(t, []string{"info:[Test] hello", "warn:[Test] careful"}, a.lines)
	assert.Equal(t, a.lines, b.lines)
}

func TestNoBackendsIsSilent(t *testing.T) {
	Init()
	assert.NotPanics(t, func() { Error("[Test] dropped") })
}
