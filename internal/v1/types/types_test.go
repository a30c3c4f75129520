package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateChatMessage(t *testing.T) {
	assert.NoError(t, ValidateChatMessage("hello"))
	assert.NoError(t, ValidateChatMessage(strings.Repeat("a", MaxChatMessageLength)))

	assert.Error(t, ValidateChatMessage(""))
	assert.Error(t, ValidateChatMessage(strings.Repeat("a", MaxChatMessageLength+1)))
}
