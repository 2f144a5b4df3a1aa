package strategy

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/yourusername/trading-bot/internal/models"
)

func TestDeterministicIDs(t *testing.T) {
	namespace := uuid.MustParse("0b6c7c8e-1a2b-4c3d-8e9f-001122334455")

	a := NewDeterministicIDs(namespace)
	b := NewDeterministicIDs(namespace)
	a.SetDay(testDay)
	b.SetDay(testDay.Add(7))

	first := a.NewID()
	assert.Equal(t, first, b.NewID())
	assert.NotEqual(t, first, a.NewID())

	a.SetDay(models.AddDays(testDay, 1))
	assert.NotEqual(t, first, a.NewID())

	a.SetDay(testDay)
	assert.Equal(t, first, a.NewID())

	other := NewDeterministicIDs(uuid.New())
	other.SetDay(testDay)
	assert.NotEqual(t, first, other.NewID())
}

func TestRandomIDs(t *testing.T) {
	var ids RandomIDs
	assert.NotEqual(t, ids.NewID(), ids.NewID())
}
