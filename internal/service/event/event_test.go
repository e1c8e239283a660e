package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float(v float64) *float64 { return &v }

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{name: "text", ev: Text{Content: "Hel"}, want: "data: {\"type\":\"text\",\"content\":\"Hel\"}\n\n"},
		{name: "done", ev: Done{}, want: "data: {\"type\":\"done\"}\n\n"},
		{name: "error", ev: Error{Message: "boom"}, want: "data: {\"type\":\"error\",\"error\":\"boom\"}\n\n"},
		{
			name: "usage",
			ev:   Usage{InputTokens: 12, OutputTokens: 4, CostUSD: float(0.00007)},
			want: "data: {\"type\":\"usage\",\"usage\":{\"input_tokens\":12,\"output_tokens\":4,\"cost_usd\":0.00007}}\n\n",
		},
		{
			name: "usage unknown cost",
			ev:   Usage{InputTokens: 1, OutputTokens: 2},
			want: "data: {\"type\":\"usage\",\"usage\":{\"input_tokens\":1,\"output_tokens\":2,\"cost_usd\":null}}\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestParseLine_Skips(t *testing.T) {
	lines := []string{
		"",
		": keep-alive",
		"event: message",
		"data: {not json",
		"data: {\"type\":\"mystery\"}",
		"data:{\"type\":\"done\"}",
	}
	for _, line := range lines {
		_, ok := ParseLine(line)
		assert.False(t, ok, line)
	}
}

func TestParseLine_CRLF(t *testing.T) {
	ev, ok := ParseLine("data: {\"type\":\"done\"}\r")
	require.True(t, ok)
	assert.Equal(t, Done{}, ev)
}

func TestDecoder_PartialLines(t *testing.T) {
	var d Decoder

	events := d.Feed([]byte("data: {\"type\":\"text\",\"con"))
	assert.Empty(t, events)
	assert.Positive(t, d.Pending())

	events = d.Feed([]byte("tent\":\"4\"}\n\ndata: {\"type\":\"usage\",\"usage\":{\"input_tokens\":12,\"output_tokens\":4,\"cost_usd\":0.00007}}\n\n"))
	require.Len(t, events, 2)
	assert.Equal(t, Text{Content: "4"}, events[0])
	usage, ok := events[1].(Usage)
	require.True(t, ok)
	assert.Equal(t, 12, usage.InputTokens)
	assert.Equal(t, 4, usage.OutputTokens)
	require.NotNil(t, usage.CostUSD)
	assert.InDelta(t, 0.00007, *usage.CostUSD, 1e-12)

	events = d.Feed([]byte("data: garbage\n\ndata: {\"type\":\"done\"}\n\n"))
	assert.Equal(t, []Event{Done{}}, events)
	assert.Zero(t, d.Pending())
}

func TestDecoder_RoundTrip(t *testing.T) {
	sent := []Event{Text{Content: "a"}, Text{Content: "b\nc"}, Error{Message: "x"}}
	var stream []byte
	for _, ev := range sent {
		b, err := Encode(ev)
		require.NoError(t, err)
		stream = append(stream, b...)
	}

	var d Decoder
	var got []Event
	for i := range stream {
		got = append(got, d.Feed(stream[i:i+1])...)
	}
	assert.Equal(t, sent, got)
}
