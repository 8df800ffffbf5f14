package memory_test

import (
	"testing"

	"github.com/parleyhq/parley/pkg/adapters/memory"
	"github.com/parleyhq/parley/pkg/ports"
)

func TestSessionStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, memory.NewSessionStore())
}

func TestMessageStore_Contract(t *testing.T) {
	ports.RunMessageStoreContract(t, memory.NewMessageStore())
}
