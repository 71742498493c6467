package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	prev := PlayRecord{Player: "alice", Score: 300, When: time.Now()}

	assert.Equal(t, Pairing{Winner: "bob"}, Resolve(prev, "bob", 500))
	assert.Equal(t, Pairing{Tie: true}, Resolve(prev, "bob", 300))
	assert.Equal(t, Pairing{Winner: "alice"}, Resolve(prev, "bob", 0))
}
