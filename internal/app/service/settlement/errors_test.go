package settlement

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelErrors_AreWrapFriendly(t *testing.T) {
	for _, sentinel := range []error{ErrValidation, ErrPaymentNotFound, ErrPaymentNotApproved, ErrCaptureFailed} {
		err := fmt.Errorf("wrapped: %w", sentinel)
		require.True(t, errors.Is(err, sentinel))
	}
}
