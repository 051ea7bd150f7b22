package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidURI(t *testing.T) {
	t.Run("accepts http and https URLs", func(t *testing.T) {
		assert.True(t, isValidURI("https://example.com/page"))
		assert.True(t, isValidURI("http://example.com"))
	})

	t.Run("rejects blank uri", func(t *testing.T) {
		assert.False(t, isValidURI(""))
	})

	t.Run("rejects relative paths", func(t *testing.T) {
		assert.False(t, isValidURI("/page"))
	})

	t.Run("rejects unsupported schemes", func(t *testing.T) {
		assert.False(t, isValidURI("ftp://example.com"))
	})
}

func TestSourceIsReadyForExtraction(t *testing.T) {
	t.Run("ready with content", func(t *testing.T) {
		s := &Source{Status: StatusReady, Content: "hello"}
		assert.True(t, s.IsReadyForExtraction())
	})

	t.Run("ready but empty content", func(t *testing.T) {
		s := &Source{Status: StatusReady, Content: ""}
		assert.False(t, s.IsReadyForExtraction())
	})

	t.Run("pending", func(t *testing.T) {
		s := &Source{Status: StatusPending, Content: "hello"}
		assert.False(t, s.IsReadyForExtraction())
	})
}
