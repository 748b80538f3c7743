package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(ctx context.Context, title, message string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &recordingSender{name: "a"}
	b := &recordingSender{name: "b"}
	n := New([]Sender{a, b}, nil, slog.Default())

	require.NoError(t, n.Notify(context.Background(), EventActionableGap, "gap", "details"))
	assert.Equal(t, []string{"gap"}, a.titles)
	assert.Equal(t, []string{"gap"}, b.titles)
}

func TestNotifyFiltersByEventType(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := New([]Sender{s}, []string{EventActionableGap}, slog.Default())

	require.NoError(t, n.Notify(context.Background(), EventFeedDown, "down", "details"))
	assert.Empty(t, s.titles, "unlisted event types are dropped")

	require.NoError(t, n.Notify(context.Background(), EventActionableGap, "gap", "details"))
	assert.Equal(t, []string{"gap"}, s.titles)
}

func TestNotifyJoinsSenderFailures(t *testing.T) {
	failing := &recordingSender{name: "telegram", err: errors.New("401 unauthorized")}
	healthy := &recordingSender{name: "discord"}
	n := New([]Sender{failing, healthy}, nil, slog.Default())

	err := n.Notify(context.Background(), EventActionableGap, "gap", "details")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Equal(t, []string{"gap"}, healthy.titles, "one failing sender must not block the rest")
}

func TestNotifyNoSenders(t *testing.T) {
	n := New(nil, nil, slog.Default())
	assert.NoError(t, n.Notify(context.Background(), EventActionableGap, "gap", "details"))
}
