package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	GroupID uint   `msgpack:"group_id"`
	Index   int    `msgpack:"index"`
	Ref     string `msgpack:"ref"`
}

func TestJobPayloadRoundTrip(t *testing.T) {
	job, err := NewJob(KindSendMessage, samplePayload{GroupID: 7, Index: 3, Ref: "tpl"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, KindSendMessage, job.Kind)
	assert.Zero(t, job.Attempt)

	var got samplePayload
	require.NoError(t, job.Decode(&got))
	assert.Equal(t, samplePayload{GroupID: 7, Index: 3, Ref: "tpl"}, got)
}

func TestEntryDecodeAndRaw(t *testing.T) {
	e, err := NewEntry(2, map[string]string{"address": "a@example.com"})
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, e.Decode(&got))
	assert.Equal(t, "a@example.com", got["address"])

	withRaw := e.WithRaw("encoded")
	assert.Equal(t, "encoded", withRaw.Raw())
	assert.Equal(t, "", e.Raw())
}
