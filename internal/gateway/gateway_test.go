package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   Result
		want Category
	}{
		{"ok", Result{OK: true, Status: 200}, CategoryNone},
		{"no whatsapp", Result{Status: 404}, CategoryInvalidNumber},
		{"unauthorized", Result{Status: 401}, CategoryNotConnected},
		{"forbidden", Result{Status: 403}, CategoryNotConnected},
		{"conflict", Result{Status: 409}, CategoryNotConnected},
		{"server", Result{Status: 500}, CategoryNotConnected},
		{"unavailable", Result{Status: 503}, CategoryNotConnected},
		{"timeout", Result{Status: StatusTimeout}, CategoryTimeout},
		{"network", NetworkError(errors.New("dial tcp: refused")), CategoryNetwork},
		{"bad request", Result{Status: 400}, CategoryGeneric},
		{"too many", Result{Status: 429}, CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}

func TestNetworkErrorShape(t *testing.T) {
	r := NetworkError(errors.New("boom"))
	assert.False(t, r.OK)
	assert.Equal(t, 0, r.Status)
	assert.True(t, strings.HasPrefix(r.BodyText, "<network error: "))
}

func TestCategoryMessages(t *testing.T) {
	assert.Empty(t, CategoryNone.Message())
	for _, c := range []Category{CategoryInvalidNumber, CategoryNotConnected, CategoryTimeout, CategoryNetwork, CategoryGeneric} {
		assert.NotEmpty(t, c.Message(), c)
	}
}

func TestSenderFuncAndUnconfigured(t *testing.T) {
	var s Sender = SenderFunc(func(_ context.Context, phone, text string) Result {
		return Result{OK: true, Status: 200, BodyText: phone + ":" + text}
	})
	assert.Equal(t, "1:x", s.SendText(context.Background(), "1", "x").BodyText)

	r := Unconfigured{}.SendText(context.Background(), "1", "x")
	assert.False(t, r.OK)
	assert.Equal(t, CategoryNotConnected, Classify(r))
}
