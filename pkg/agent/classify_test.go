package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Categories(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"rate limit", errors.New("429 Too Many Requests"), ClassTransient},
		{"overloaded", errors.New("Overloaded, please retry"), ClassTransient},
		{"server error", errors.New("upstream returned 503"), ClassTransient},
		{"timeout", errors.New("request timed out"), ClassTransient},
		{"unauthorized", errors.New("401 Unauthorized"), ClassAuth},
		{"bad key", errors.New("invalid api key provided"), ClassAuth},
		{"forbidden", errors.New("403 Forbidden"), ClassAuth},
		{"refused", errors.New("dial tcp: connection refused"), ClassNetwork},
		{"dns", errors.New("lookup api.example.com: no such host"), ClassNetwork},
		{"unknown", errors.New("something odd happened"), ClassPermanent},
		{"empty message", errors.New(""), ClassPermanent},
		{"nil", nil, ClassPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

// TestClassify_Deterministic verifies the same message always yields the
// same class.
func TestClassify_Deterministic(t *testing.T) {
	err := errors.New("connection reset by peer")
	first := Classify(err)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(err))
	}
}

// TestClassify_TransientBeforeAuth verifies priority order: a message
// matching both transient and auth keywords classifies transient.
func TestClassify_TransientBeforeAuth(t *testing.T) {
	err := errors.New("429 rate limit hit while refreshing authentication")
	assert.Equal(t, ClassTransient, Classify(err))
}

func TestWrapClassified(t *testing.T) {
	assert.NoError(t, WrapClassified(nil))

	base := errors.New("503 service unavailable")
	wrapped := WrapClassified(base)

	var classified *ClassifiedError
	require.True(t, errors.As(wrapped, &classified))
	assert.Equal(t, ClassTransient, classified.Class)
	assert.ErrorIs(t, wrapped, base)
	assert.Contains(t, wrapped.Error(), "transient")
}

func TestClassify_CaseInsensitive(t *testing.T) {
	assert.Equal(t, ClassTransient, Classify(fmt.Errorf("RATE LIMIT exceeded")))
	assert.Equal(t, ClassAuth, Classify(fmt.Errorf("UNAUTHORIZED request")))
}
