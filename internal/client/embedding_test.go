package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kube-rca/bugsys/internal/config"
)

func TestNewGenAIClientRequiresAPIKey(t *testing.T) {
	c, err := NewGenAIClient(context.Background(), config.EmbeddingConfig{})
	assert.Nil(t, c)
	assert.Error(t, err)
}
