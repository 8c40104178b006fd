package request

import (
	"net/url"
	"testing"
	"time"

	"github.com/oggyb/courier/internal/domain/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaging(t *testing.T) {
	offset, limit := Paging(url.Values{})
	assert.Equal(t, 0, offset)
	assert.Equal(t, DefaultLimit, limit)

	offset, limit = Paging(url.Values{"offset": {"-3"}, "limit": {"99999"}})
	assert.Equal(t, 0, offset)
	assert.Equal(t, MaxLimit, limit)

	offset, limit = Paging(url.Values{"offset": {"20"}, "limit": {"abc"}})
	assert.Equal(t, 20, offset)
	assert.Equal(t, DefaultLimit, limit)
}

func TestTags(t *testing.T) {
	q := url.Values{"tags": {"a, b", "c", ""}}
	assert.Equal(t, []string{"a", "b", "c"}, Tags(q))
	assert.Nil(t, Tags(url.Values{}))
}

func TestWindow(t *testing.T) {
	now := time.Date(2032, 6, 15, 10, 0, 0, 0, time.UTC)

	start, end, err := Window(url.Values{}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2032, 6, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, now, end)

	start, end, err = Window(url.Values{"start": {"2032-01-01T00:00:00+02:00"}, "end": {"2032-02-01"}}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2031, 12, 31, 22, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2032, 2, 1, 0, 0, 0, 0, time.UTC), end)

	_, _, err = Window(url.Values{"start": {"yesterday"}}, now)
	assert.Error(t, err)

	_, _, err = Window(url.Values{"start": {"2032-06-10"}, "end": {"2032-06-10"}}, now)
	assert.Error(t, err)
}

func TestStatuses(t *testing.T) {
	got, err := Statuses(url.Values{"status": {"open,click", "send"}})
	require.NoError(t, err)
	assert.Equal(t, []message.Status{message.StatusOpen, message.StatusClick, message.StatusSend}, got)

	_, err = Statuses(url.Values{"status": {"open,exploded"}})
	assert.Error(t, err)
}

func TestNumbersRequestNormalize(t *testing.T) {
	r := NumbersRequest{}
	require.NoError(t, r.Normalize())
	assert.Equal(t, "GB", r.CountryCode)

	r = NumbersRequest{CountryCode: "us"}
	require.NoError(t, r.Normalize())
	assert.Equal(t, "US", r.CountryCode)

	r = NumbersRequest{CountryCode: "USA"}
	assert.Error(t, r.Normalize())
}
