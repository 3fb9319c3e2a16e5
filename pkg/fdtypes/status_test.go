package fdtypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsError(t *testing.T) {
	cases := []struct {
		status  Status
		isError bool
	}{
		{StatusOK, false},
		{StatusAutoReplyOK, false},
		{StatusSubscribeOK, false},
		{StatusUnsubscribeOK, false},
		{StatusSubscribeFail, true},
		{StatusTimeout, true},
		{StatusNotImplemented, true},
		{Status(-999), true},
	}
	for _, c := range cases {
		assert.Equal(t, c.isError, c.status.IsError(), "status %d", c.status)
	}
}

func TestStatusIsSubscribeResult(t *testing.T) {
	assert.True(t, StatusSubscribeOK.IsSubscribeResult())
	assert.True(t, StatusSubscribeFail.IsSubscribeResult())
	assert.False(t, StatusOK.IsSubscribeResult())
}

func TestStatusErrorStringsKnownAndUnknown(t *testing.T) {
	assert.Contains(t, StatusTimeout.Error(), "timeout")
	assert.Contains(t, Status(-999).Error(), "status -999")
}
