package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/payments-bot/internal/state"
)

type staticLister []*state.ChatState

func (s staticLister) GetAllStates(context.Context) ([]*state.ChatState, error) {
	return s, nil
}

func TestStateCollector_Collect(t *testing.T) {
	collector := NewStateCollector(staticLister{
		{ChatID: 1, Current: state.StateSendAwaitingAmount},
		{ChatID: 2, Current: state.StateSendAwaitingAmount},
		{ChatID: 3, Current: state.StateLoginAwaitingOTP},
	})

	require.NoError(t, collector.collect(context.Background()))

	assert.Equal(t, float64(3), testutil.ToFloat64(activeChats))
	assert.Equal(t, float64(2), testutil.ToFloat64(chatsByState.WithLabelValues(string(state.StateSendAwaitingAmount))))
	assert.Equal(t, float64(1), testutil.ToFloat64(chatsByState.WithLabelValues(string(state.StateLoginAwaitingOTP))))
	assert.Equal(t, float64(0), testutil.ToFloat64(chatsByState.WithLabelValues(string(state.StateBankAwaitingAccount))))
}

func TestStatusClass(t *testing.T) {
	testCases := map[int]string{0: "error", 200: "2xx", 302: "3xx", 429: "4xx", 503: "5xx"}
	for code, expected := range testCases {
		assert.Equal(t, expected, statusClass(code))
	}
}
