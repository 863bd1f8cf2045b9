package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hamptokr/dragon-dmc/internal/link"
	"github.com/hamptokr/dragon-dmc/internal/session"
)

func fixed(name string, s Status) Checker {
	return CheckerFunc{CheckName: name, Fn: func(context.Context) CheckResult { return CheckResult{Status: s} }}
}

func TestAggregator_WorstStatusWins(t *testing.T) {
	tests := []struct {
		name string
		in   []Status
		want Status
	}{
		{name: "全部健康", in: []Status{StatusHealthy, StatusHealthy}, want: StatusHealthy},
		{name: "部分降级", in: []Status{StatusHealthy, StatusDegraded}, want: StatusDegraded},
		{name: "不健康优先", in: []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, want: StatusUnhealthy},
		{name: "无检查项", want: StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator()
			for i, s := range tt.in {
				agg.AddChecker(fixed(string(rune('a'+i)), s))
			}
			rep := agg.Check(context.Background())
			assert.Equal(t, tt.want, rep.Status)
			assert.Len(t, rep.Checks, len(tt.in))
		})
	}
}

func TestLinkChecker(t *testing.T) {
	tests := []struct {
		breaker string
		want    Status
	}{
		{breaker: "closed", want: StatusHealthy},
		{breaker: "half_open", want: StatusDegraded},
		{breaker: "open", want: StatusUnhealthy},
	}
	for _, tt := range tests {
		c := LinkChecker(func() link.Stats { return link.Stats{Breaker: tt.breaker} })
		assert.Equal(t, tt.want, c.Check(context.Background()).Status, tt.breaker)
	}
}

func TestSessionChecker(t *testing.T) {
	st := session.Stats{}
	hello := false
	c := SessionChecker(func() session.Stats { return st }, func() bool { return hello })
	ctx := context.Background()

	assert.Equal(t, StatusUnhealthy, c.Check(ctx).Status)

	hello = true
	assert.Equal(t, StatusHealthy, c.Check(ctx).Status)

	st.Timeouts = 2
	assert.Equal(t, StatusDegraded, c.Check(ctx).Status)
	assert.Equal(t, StatusHealthy, c.Check(ctx).Status, "only new timeouts degrade")

	st.Closed = true
	assert.Equal(t, StatusUnhealthy, c.Check(ctx).Status)
}
